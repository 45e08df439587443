// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the explicit per-conversation state of a chat.
//
// A State is owned by the orchestrator and handed by reference to whatever
// renders it. Nothing in it is global.
//
// # Key Types
//
//   - State: selected model, model descriptors, tab snapshot, history
//   - StreamState: accumulated text of one in-flight generation
//   - Status: point-in-time summary for status displays
//
// # Usage
//
//	st := session.New()
//	st.RestoreModel(saved)
//	st.SetModels(models) // clears saved if it is gone
//
//	if err := st.BeginQuery(); err != nil {
//	    return err // session.ErrQueryInFlight
//	}
//	defer st.EndQuery()
package session
