// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the conversation history and the selected model.
//
// History is an append-only, ordered log of Messages replayed verbatim when
// the conversation is reopened. Two backends implement Store:
//
//   - SQLiteStore: modernc.org/sqlite database (default)
//   - FileStore: JSON documents written atomically
//
// # Usage
//
//	store, err := storage.Open(storage.BackendSQLite, dataDir, "")
//	defer store.Close()
//	err = store.AppendMessages(ctx,
//	    storage.NewMessage(storage.RoleUser, "hi"),
//	    storage.NewMessage(storage.RoleAssistant, "hello"))
//	history, err := store.LoadHistory(ctx)
package storage
