// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the tabchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateWidth, StringWidth, PadRight: display-width aware helpers
//   - SanitizeFilename: one safe path element from user text
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	display := util.TruncateWidth(tab.Title, 40)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
