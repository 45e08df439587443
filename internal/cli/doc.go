// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the tabchat command tree.
//
// Every command builds a Runtime from the configuration: the logger,
// the history store, the Ollama client, the optional browser connection and
// the orchestrator over them. Commands print text for people and, with
// --json, a JSONResponse document for scripts.
//
// # Key Types
//
//   - Options: persistent flags shared by every command
//   - Runtime: the wired application behind a command
//   - ChatSession: the line-oriented chat loop
//   - UsageError, ValidationError, NotFoundError: errors with exit codes
//
// # Usage
//
//	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
//
// # Commands
//
//   - chat: interactive chat with @mention completion (the default)
//   - panel: full-screen chat panel
//   - ask: one question, streamed to stdout
//   - serve: the HTTP and WebSocket messaging endpoint
//   - models, tabs, history, status, config: inspect and change state
//
// # Exit Codes
//
//	0 success, 1 error, 2 usage, 3 config, 5 network, 7 not found, 8 timeout
package cli
