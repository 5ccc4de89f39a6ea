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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/symview/outline/services/outline"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Reprint the symbol outline whenever the file changes",
	Long: `Watches one C/C++ file and reprints its outline after every save,
using the same incremental reparse pipeline the daemon runs for editor
sessions. Changes are debounced with the configured edit quiescence
window before a reparse starts.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	session := outline.NewDocumentSession(sessionConfigFromGlobal())
	defer session.Close()

	printSnap := func(snap outline.Snapshot) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "── %s (generation %d) ──\n", path, snap.Generation)
		renderForest(&sb, snap.Roots, 0)
		fmt.Print(sb.String())
	}
	session.OnUpdate(printSnap)

	// Open notifies the listener above, which prints the initial outline.
	snap, err := session.Open(cmd.Context(), path, content)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if snap.Status == outline.StatusUnsupported {
		return fmt.Errorf("%s: %s", path, snap.Status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors that save via rename
	// replace the inode and a file-level watch would go stale.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prev := content
	abs, _ := filepath.Abs(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			evAbs, _ := filepath.Abs(event.Name)
			if evAbs != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			next, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("read after change failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}

			// A whole-file replacement expressed as one splice keeps the
			// session on its incremental path.
			change := outline.Change{
				OldStart: 0,
				OldEnd:   len(prev),
				NewEnd:   len(next),
			}
			if err := session.ApplyChange(change, next); err != nil {
				slog.Warn("apply change failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			prev = next

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}
