// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/symview/outline/services/outline"
)

var (
	printJSON   bool
	printFilter string
	printSorted bool
)

var printCmd = &cobra.Command{
	Use:   "print <file>",
	Short: "Print the symbol outline of one file and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrint,
}

func init() {
	printCmd.Flags().BoolVar(&printJSON, "json", false, "emit the outline as JSON")
	printCmd.Flags().StringVar(&printFilter, "filter", "", "only show symbols matching this substring")
	printCmd.Flags().BoolVar(&printSorted, "sorted", false, "sort siblings alphabetically")
}

func runPrint(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if printJSON && printFilter == "" && !printSorted {
		// No view transforms requested: the one-shot extraction path is
		// cheaper and carries provenance (language, hash, timings).
		result, err := outline.Extract(cmd.Context(), path, content)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	session := outline.NewDocumentSession(sessionConfigFromGlobal())
	defer session.Close()

	snap, err := session.Open(cmd.Context(), path, content)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if snap.Status == outline.StatusUnsupported {
		return fmt.Errorf("%s: %s", path, snap.Status)
	}

	if printSorted {
		snap = session.SetSorted(true)
	}
	if printFilter != "" {
		// Filter changes are debounced for interactive use; for a one-shot
		// print, apply directly and take the resulting snapshot.
		session.SetFilter(printFilter)
		session.FlushFilter()
		snap = session.Snapshot()
	}

	if printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	var sb strings.Builder
	renderForest(&sb, snap.Roots, 0)
	fmt.Print(sb.String())
	return nil
}

// renderForest writes an indented text outline.
//
// Example output:
//
//	namespace app [1-40]
//	  class Widget [3-30]
//	    + Widget(int) [5-7]
//	    - int count_ [29]
func renderForest(sb *strings.Builder, nodes []*outline.SymbolNode, depth int) {
	for _, n := range nodes {
		sb.WriteString(strings.Repeat("  ", depth))
		switch n.Access {
		case outline.AccessProtected:
			sb.WriteString("# ")
		case outline.AccessPrivate:
			sb.WriteString("- ")
		default:
			if depth > 0 {
				sb.WriteString("+ ")
			}
		}
		sb.WriteString(n.Kind.String())
		sb.WriteString(" ")
		sb.WriteString(n.Name)
		if n.EndLine > n.StartLine {
			fmt.Fprintf(sb, " [%d-%d]", n.StartLine, n.EndLine)
		} else {
			fmt.Fprintf(sb, " [%d]", n.StartLine)
		}
		if n.Declaration {
			sb.WriteString(" (decl)")
		}
		sb.WriteString("\n")
		renderForest(sb, n.Children, depth+1)
	}
}
