// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"errors"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tabchat/internal/orchestrator"
)

// connectionTimeout bounds the reachability probe.
const connectionTimeout = 3 * time.Second

// errNoProgram is returned by the bridge before Run attaches a program.
var errNoProgram = errors.New("panel program not running")

// =============================================================================
// STREAM BRIDGE
// =============================================================================

// bridge forwards stream events from the query goroutine into the running
// program.
type bridge struct {
	mu      sync.Mutex
	program *tea.Program
}

func (b *bridge) attach(p *tea.Program) {
	b.mu.Lock()
	b.program = p
	b.mu.Unlock()
}

// Notify implements orchestrator.Notifier.
func (b *bridge) Notify(ev orchestrator.Event) error {
	b.mu.Lock()
	p := b.program
	b.mu.Unlock()
	if p == nil {
		return errNoProgram
	}
	p.Send(StreamEventMsg{Event: ev})
	return nil
}

// =============================================================================
// COMMANDS
// =============================================================================

// CheckConnectionCmd probes the model server.
func CheckConnectionCmd(ctx context.Context, orch *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
		return ConnectionMsg{Connected: orch.CheckConnection(ctx)}
	}
}

// ListModelsCmd refreshes the model catalog.
func ListModelsCmd(ctx context.Context, orch *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		models, err := orch.RefreshModels(ctx)
		return ModelsMsg{Models: models, Err: err}
	}
}

// SelectModelCmd selects and persists a model.
func SelectModelCmd(ctx context.Context, orch *orchestrator.Orchestrator, name string) tea.Cmd {
	return func() tea.Msg {
		return ModelSelectedMsg{Name: name, Err: orch.SelectModel(ctx, name)}
	}
}

// RefreshTabsCmd snapshots the open tabs.
func RefreshTabsCmd(ctx context.Context, orch *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		list, err := orch.RefreshTabs(ctx)
		return TabsMsg{Tabs: list, Err: err}
	}
}

// ClearHistoryCmd clears the conversation.
func ClearHistoryCmd(ctx context.Context, orch *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return HistoryClearedMsg{Err: orch.ClearHistory(ctx)}
	}
}

// QueryCmd runs q, streaming through n, and reports the answer.
func QueryCmd(ctx context.Context, orch *orchestrator.Orchestrator, q orchestrator.Query, messageID string, n orchestrator.Notifier) tea.Cmd {
	return func() tea.Msg {
		answer, err := orch.HandleStreamingQuery(ctx, q, messageID, n)
		return AnswerMsg{MessageID: messageID, Answer: answer, Err: err}
	}
}
