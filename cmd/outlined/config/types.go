// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

type OutlinedConfig struct {
	// Server: HTTP listener settings for `outlined serve`
	Server ServerConfig `yaml:"server"`

	// Logging: destination and verbosity
	Logging LoggingConfig `yaml:"logging"`

	// Outline: parse and scheduling knobs
	Outline OutlineConfig `yaml:"outline"`
}

type ServerConfig struct {
	Host string `yaml:"host"` // e.g. 127.0.0.1
	Port int    `yaml:"port"` // e.g. 7317
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // e.g. ~/.outlined/logs, empty disables file logs
	JSON  bool   `yaml:"json"`  // JSON on stderr instead of text
}

type OutlineConfig struct {
	// EditDebounceMs is the quiet period after the last edit before a
	// reparse starts. e.g. 5000
	EditDebounceMs int `yaml:"edit_debounce_ms"`

	// FilterDebounceMs is the quiet period after the last filter
	// keystroke before the tree is re-filtered. e.g. 300
	FilterDebounceMs int `yaml:"filter_debounce_ms"`

	// CursorIntervalMs is the minimum spacing between processed caret
	// moves in follow-cursor mode. e.g. 100
	CursorIntervalMs int `yaml:"cursor_interval_ms"`

	// MaxFileSizeBytes rejects documents larger than this. e.g. 10485760
	MaxFileSizeBytes int `yaml:"max_file_size_bytes"`

	// MaxSessions caps concurrent outline sessions in the daemon.
	MaxSessions int `yaml:"max_sessions"`

	// SortByDefault starts new sessions with alphabetic sorting on.
	SortByDefault bool `yaml:"sort_by_default"`
}

func DefaultConfig() OutlinedConfig {
	return OutlinedConfig{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7317,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.outlined/logs",
			JSON:  false,
		},
		Outline: OutlineConfig{
			EditDebounceMs:   5000,
			FilterDebounceMs: 300,
			CursorIntervalMs: 100,
			MaxFileSizeBytes: 10 * 1024 * 1024,
			MaxSessions:      16,
			SortByDefault:    false,
		},
	}
}
