// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command outlined serves incremental C/C++ symbol outlines to editor hosts.
//
// Usage:
//
//	outlined serve              # start the HTTP/websocket daemon
//	outlined print file.cpp     # print the outline of one file and exit
//	outlined watch file.cpp     # reprint the outline on every file change
//
// Example requests against the daemon:
//
//	# Health check
//	curl http://localhost:7317/v1/outline/health
//
//	# Create a session
//	curl -X POST http://localhost:7317/v1/outline/sessions
//
//	# Open a document
//	curl -X POST http://localhost:7317/v1/outline/sessions/SESSION_ID/open \
//	  -H "Content-Type: application/json" \
//	  -d '{"path": "/path/to/file.cpp"}'
//
//	# Fetch the current outline tree
//	curl http://localhost:7317/v1/outline/sessions/SESSION_ID/tree | jq
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/symview/outline/cmd/outlined/config"
	"github.com/symview/outline/pkg/logging"
	"github.com/symview/outline/services/outline"
)

var rootCmd = &cobra.Command{
	Use:   "outlined",
	Short: "Incremental C/C++ symbol outline daemon",
	Long: `outlined parses C and C++ sources with tree-sitter and maintains a
live symbol outline: namespaces, classes, functions, fields, enums and
macros, updated incrementally as the file changes.

Configuration is read from ~/.outlined/outlined.yaml and created with
defaults on first run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Global.Logging.Level),
			LogDir:  config.Global.Logging.Dir,
			Service: "outlined",
			JSON:    config.Global.Logging.JSON,
			Quiet:   quietFlag,
		})
		logger.SetDefault()
		return nil
	},
}

var quietFlag bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false,
		"suppress log output on stderr")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(watchCmd)
}

// sessionConfigFromGlobal maps the config file onto session settings.
func sessionConfigFromGlobal() outline.SessionConfig {
	cfg := outline.DefaultSessionConfig()
	oc := config.Global.Outline
	if oc.EditDebounceMs > 0 {
		cfg.Scheduler.EditDebounce = time.Duration(oc.EditDebounceMs) * time.Millisecond
	}
	if oc.FilterDebounceMs > 0 {
		cfg.Scheduler.FilterDebounce = time.Duration(oc.FilterDebounceMs) * time.Millisecond
	}
	if oc.CursorIntervalMs > 0 {
		cfg.CursorInterval = time.Duration(oc.CursorIntervalMs) * time.Millisecond
	}
	if oc.MaxFileSizeBytes > 0 {
		cfg.MaxFileSize = int64(oc.MaxFileSizeBytes)
	}
	cfg.StartSorted = oc.SortByDefault
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
