// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabstest provides an in-memory tabs.Browser for tests.
package tabstest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/tabchat/internal/tabs"
)

// Page is one fake tab.
type Page struct {
	Tab  tabs.Tab
	HTML string

	// AgentInstalled means Snapshot works without injection.
	AgentInstalled bool

	// InjectErr fails every injection.
	InjectErr error

	// AgentNeverSticks makes Snapshot report a missing agent even after
	// injection.
	AgentNeverSticks bool

	// Delay is applied to Snapshot.
	Delay time.Duration
}

// Browser is a tabs.Browser over a fixed set of pages. It records how often
// page scripting was invoked.
type Browser struct {
	mu        sync.Mutex
	pages     []*Page
	snapshots map[string]int
	injects   map[string]int

	// TargetsErr fails Targets and Target.
	TargetsErr error
}

// New creates a Browser holding pages in order.
func New(pages ...Page) *Browser {
	b := &Browser{
		snapshots: make(map[string]int),
		injects:   make(map[string]int),
	}
	for _, p := range pages {
		b.Add(p)
	}
	return b
}

// Add appends a page.
func (b *Browser) Add(p Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	page := p
	b.pages = append(b.pages, &page)
}

// Remove closes the tab with id.
func (b *Browser) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.pages {
		if p.Tab.ID == id {
			b.pages = append(b.pages[:i], b.pages[i+1:]...)
			return
		}
	}
}

// Calls returns the number of Snapshot and Inject calls made for id.
func (b *Browser) Calls(id string) (snapshots, injects int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots[id], b.injects[id]
}

// ScriptCalls returns the total number of page scripting calls.
func (b *Browser) ScriptCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.snapshots {
		n += c
	}
	for _, c := range b.injects {
		n += c
	}
	return n
}

// Targets implements tabs.Browser.
func (b *Browser) Targets(ctx context.Context) ([]tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.TargetsErr != nil {
		return nil, b.TargetsErr
	}
	out := make([]tabs.Tab, 0, len(b.pages))
	for _, p := range b.pages {
		out = append(out, p.Tab)
	}
	return out, nil
}

// Target implements tabs.Browser.
func (b *Browser) Target(ctx context.Context, id string) (tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.TargetsErr != nil {
		return tabs.Tab{}, b.TargetsErr
	}
	p := b.find(id)
	if p == nil {
		return tabs.Tab{}, tabs.ErrTabNotFound
	}
	return p.Tab, nil
}

// Snapshot implements tabs.Browser.
func (b *Browser) Snapshot(ctx context.Context, id string) (*tabs.PageSnapshot, error) {
	b.mu.Lock()
	b.snapshots[id]++
	p := b.find(id)
	var page Page
	if p != nil {
		page = *p
	}
	b.mu.Unlock()

	if p == nil {
		return nil, tabs.ErrTabNotFound
	}
	if page.Delay > 0 {
		select {
		case <-time.After(page.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !page.AgentInstalled || page.AgentNeverSticks {
		return nil, tabs.ErrAgentMissing
	}
	return &tabs.PageSnapshot{Title: page.Tab.Title, URL: page.Tab.URL, HTML: page.HTML}, nil
}

// Inject implements tabs.Browser.
func (b *Browser) Inject(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.injects[id]++
	p := b.find(id)
	if p == nil {
		return tabs.ErrTabNotFound
	}
	if p.InjectErr != nil {
		return p.InjectErr
	}
	p.AgentInstalled = true
	return nil
}

func (b *Browser) find(id string) *Page {
	for _, p := range b.pages {
		if p.Tab.ID == id {
			return p
		}
	}
	return nil
}

// ErrScripting is a convenience injection failure.
var ErrScripting = errors.New("cannot access contents of the page")
