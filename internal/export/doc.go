// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations to files.
//
// # Key Types
//
//   - Transcript: a conversation with the models and tabs it used
//   - Exporter: converts a Transcript to one format
//   - Options: output directory and what to include
//
// # Supported Formats
//
//   - Markdown: human-readable, with tab mentions in bold
//   - JSON: the complete transcript
//
// # Usage
//
//	t := export.NewTranscript("default", history)
//	exp, err := export.ForFormat("markdown", nil)
//	path, err := export.ExportToFile(t, exp, &export.Options{OutputDir: "."})
package export
