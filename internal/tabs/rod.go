// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tabs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// =============================================================================
// IN-PAGE AGENT
// =============================================================================

// agentScript installs window.__tabchatAgent in the page.
const agentScript = `() => {
	if (window.__tabchatAgent) return true;
	window.__tabchatAgent = {
		snapshot() {
			return {
				title: document.title || '',
				url: location.href,
				html: document.documentElement ? document.documentElement.outerHTML : '',
			};
		},
	};
	return true;
}`

// snapshotScript calls the agent, or returns null when it is absent.
const snapshotScript = `() => window.__tabchatAgent ? window.__tabchatAgent.snapshot() : null`

// focusScript reports page visibility and window focus.
const focusScript = `() => ({ visible: document.visibilityState === 'visible', focused: document.hasFocus() })`

// =============================================================================
// ROD BROWSER
// =============================================================================

// RodBrowser is a Browser backed by a Chromium DevTools connection.
type RodBrowser struct {
	browser    *rod.Browser
	controlURL string
	logger     *zap.Logger
	cancel     context.CancelFunc

	mu    sync.Mutex
	pages map[string]*rod.Page
}

// ConnectRod attaches to a running browser. controlURL may be a DevTools
// websocket URL, an http://host:port debugger address, or a bare port.
func ConnectRod(ctx context.Context, controlURL string, logger *zap.Logger) (*RodBrowser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wsURL, err := launcher.ResolveURL(controlURL)
	if err != nil {
		return nil, fmt.Errorf("resolve debugger url %q: %w", controlURL, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	logger.Info("attached to browser", zap.String("control_url", wsURL))
	return &RodBrowser{
		browser:    browser,
		controlURL: wsURL,
		logger:     logger.Named("rod"),
		cancel:     cancel,
		pages:      make(map[string]*rod.Page),
	}, nil
}

// ControlURL returns the resolved DevTools websocket URL.
func (b *RodBrowser) ControlURL() string {
	return b.controlURL
}

// Close drops the DevTools connection. The browser itself keeps running.
func (b *RodBrowser) Close() error {
	b.cancel()
	return nil
}

// Targets lists page targets and marks the focused one active.
func (b *RodBrowser) Targets(ctx context.Context) ([]Tab, error) {
	infos, err := b.pageInfos(ctx)
	if err != nil {
		return nil, err
	}

	tabs := make([]Tab, 0, len(infos))
	active, visible := -1, -1
	for i, info := range infos {
		tab := Tab{ID: string(info.TargetID), Title: info.Title, URL: info.URL}
		tabs = append(tabs, tab)
		if active >= 0 || IsRestricted(tab.URL) {
			continue
		}
		focus, err := b.focus(ctx, tab.ID)
		if err != nil {
			b.logger.Debug("focus probe failed", zap.String("tab", tab.ID), zap.Error(err))
			continue
		}
		if focus.Focused {
			active = i
		} else if focus.Visible && visible < 0 {
			visible = i
		}
	}

	if active < 0 {
		active = visible
	}
	if active >= 0 {
		tabs[active].Active = true
	}
	return tabs, nil
}

// Target returns one page target by id.
func (b *RodBrowser) Target(ctx context.Context, id string) (Tab, error) {
	infos, err := b.pageInfos(ctx)
	if err != nil {
		return Tab{}, err
	}
	for _, info := range infos {
		if string(info.TargetID) == id {
			return Tab{ID: id, Title: info.Title, URL: info.URL}, nil
		}
	}
	return Tab{}, ErrTabNotFound
}

// Snapshot asks the in-page agent for the document.
func (b *RodBrowser) Snapshot(ctx context.Context, id string) (*PageSnapshot, error) {
	var snap *PageSnapshot
	if err := b.eval(ctx, id, snapshotScript, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrAgentMissing
	}
	return snap, nil
}

// Inject installs the in-page agent.
func (b *RodBrowser) Inject(ctx context.Context, id string) error {
	var ok bool
	if err := b.eval(ctx, id, agentScript, &ok); err != nil {
		return fmt.Errorf("inject agent: %w", err)
	}
	if !ok {
		return fmt.Errorf("inject agent: script returned false")
	}
	return nil
}

type focusState struct {
	Visible bool `json:"visible"`
	Focused bool `json:"focused"`
}

func (b *RodBrowser) focus(ctx context.Context, id string) (focusState, error) {
	var state focusState
	err := b.eval(ctx, id, focusScript, &state)
	return state, err
}

func (b *RodBrowser) pageInfos(ctx context.Context) ([]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(b.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("get targets: %w", err)
	}
	pages := make([]*proto.TargetTargetInfo, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if string(info.Type) == "page" {
			pages = append(pages, info)
		}
	}
	b.prune(pages)
	return pages, nil
}

// prune forgets attached pages whose targets have gone away.
func (b *RodBrowser) prune(infos []*proto.TargetTargetInfo) {
	live := make(map[string]bool, len(infos))
	for _, info := range infos {
		live[string(info.TargetID)] = true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.pages {
		if !live[id] {
			delete(b.pages, id)
		}
	}
}

func (b *RodBrowser) page(id string) (*rod.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pages[id]; ok {
		return p, nil
	}
	p, err := b.browser.PageFromTarget(proto.TargetTargetID(id))
	if err != nil {
		return nil, fmt.Errorf("attach to tab %s: %w", id, err)
	}
	b.pages[id] = p
	return p, nil
}

func (b *RodBrowser) eval(ctx context.Context, id, js string, out any) error {
	page, err := b.page(id)
	if err != nil {
		return err
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluate in tab %s: %w", id, err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode result from tab %s: %w", id, err)
	}
	return json.Unmarshal(raw, out)
}
