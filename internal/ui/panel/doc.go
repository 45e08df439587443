// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package panel implements the full-screen chat panel.
//
// The panel is a Bubble Tea program over an orchestrator.Orchestrator. The
// input line drives a mention.Editor, so typing @ opens a suggestion list
// of open tabs that arrow keys navigate and Tab or Enter commits. Answers
// stream into the conversation as they are generated.
//
// # Key Types
//
//   - Model: the Bubble Tea model
//   - Options: theme, markdown rendering and startup state
//
// # Usage
//
//	err := panel.Run(ctx, orch, panel.Options{Theme: "auto", Browser: true})
//
// # Shortcuts
//
//	enter   send the question
//	ctrl+p  include the active tab
//	ctrl+n  select the next model
//	ctrl+r  refresh the tab list
//	ctrl+l  clear the conversation
//	ctrl+c  quit
package panel
