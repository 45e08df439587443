// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/tabs"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamEventMsg carries one orchestrator stream event into the program.
type StreamEventMsg struct {
	Event orchestrator.Event
}

// AnswerMsg is the final outcome of a query.
type AnswerMsg struct {
	MessageID string
	Answer    *orchestrator.Answer
	Err       error
}

// =============================================================================
// MODEL SERVER MESSAGES
// =============================================================================

// ConnectionMsg reports whether the model server is reachable.
type ConnectionMsg struct {
	Connected bool
}

// ModelsMsg delivers the model catalog.
type ModelsMsg struct {
	Models []ollama.ModelDescriptor
	Err    error
}

// ModelSelectedMsg reports the outcome of a model switch.
type ModelSelectedMsg struct {
	Name string
	Err  error
}

// =============================================================================
// TAB AND HISTORY MESSAGES
// =============================================================================

// TabsMsg delivers a fresh tab snapshot.
type TabsMsg struct {
	Tabs []tabs.Tab
	Err  error
}

// HistoryClearedMsg reports the outcome of clearing the conversation.
type HistoryClearedMsg struct {
	Err error
}
