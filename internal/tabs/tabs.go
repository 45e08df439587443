// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabs enumerates open browser tabs and extracts their content.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/extract"
)

// =============================================================================
// TYPES
// =============================================================================

// Tab is one open page as reported by the browser. IDs are only unique within
// a single snapshot.
type Tab struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// PageSnapshot is the document state returned by the in-page agent.
type PageSnapshot struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	HTML  string `json:"html"`
}

// Browser is the tab platform. Implementations must be safe for concurrent
// use.
type Browser interface {
	// Targets lists open page targets in platform order.
	Targets(ctx context.Context) ([]Tab, error)

	// Target returns one tab by id, or ErrTabNotFound.
	Target(ctx context.Context, id string) (Tab, error)

	// Snapshot asks the in-page agent for the document. It returns
	// ErrAgentMissing when the agent is not installed in the page.
	Snapshot(ctx context.Context, id string) (*PageSnapshot, error)

	// Inject installs the in-page agent.
	Inject(ctx context.Context, id string) error
}

// Sentinel errors for Browser implementations.
var (
	ErrTabNotFound  = errors.New("tab not found")
	ErrAgentMissing = errors.New("extraction agent not present in page")
	ErrNoActiveTab  = errors.New("no active tab")
)

// RestrictedSchemes are URL prefixes whose pages are never scripted.
var RestrictedSchemes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"chrome-search://",
	"devtools://",
	"edge://",
	"brave://",
	"about:",
	"view-source:",
	"moz-extension://",
}

// IsRestricted reports whether pageURL uses a privileged or internal scheme.
func IsRestricted(pageURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(pageURL))
	for _, prefix := range RestrictedSchemes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Placeholder builds the substitute result for a tab that cannot be read.
func Placeholder(tab Tab, reason string) extract.Result {
	return extract.Result{
		Title:         tab.Title,
		URL:           tab.URL,
		Content:       "[Content unavailable: " + reason + "]",
		ContentLength: 0,
		Placeholder:   true,
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

// Directory lists tabs and extracts their content through a Browser.
// Extraction never returns an error; every failure becomes a placeholder.
type Directory struct {
	browser     Browser
	logger      *zap.Logger
	evalTimeout time.Duration
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the directory logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithEvalTimeout bounds each in-page call.
func WithEvalTimeout(timeout time.Duration) Option {
	return func(d *Directory) {
		if timeout > 0 {
			d.evalTimeout = timeout
		}
	}
}

// NewDirectory creates a Directory over browser.
func NewDirectory(browser Browser, opts ...Option) *Directory {
	d := &Directory{
		browser:     browser,
		logger:      zap.NewNop(),
		evalTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("tabs")
	return d
}

// ListTabs returns a snapshot of the open tabs.
func (d *Directory) ListTabs(ctx context.Context) ([]Tab, error) {
	tabs, err := d.browser.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	return tabs, nil
}

// ActiveTab returns the focused tab.
func (d *Directory) ActiveTab(ctx context.Context) (Tab, error) {
	tabs, err := d.ListTabs(ctx)
	if err != nil {
		return Tab{}, err
	}
	for _, tab := range tabs {
		if tab.Active {
			return tab, nil
		}
	}
	return Tab{}, ErrNoActiveTab
}

// ExtractTabContent extracts the tab with the given id.
func (d *Directory) ExtractTabContent(ctx context.Context, id string) extract.Result {
	tab, err := d.browser.Target(ctx, id)
	if err != nil {
		d.logger.Debug("tab lookup failed", zap.String("tab", id), zap.Error(err))
		if errors.Is(err, ErrTabNotFound) {
			return Placeholder(Tab{ID: id}, "the tab is no longer open")
		}
		return Placeholder(Tab{ID: id}, "the tab could not be found")
	}
	return d.extract(ctx, tab)
}

// ExtractActiveTabContent extracts the focused tab.
func (d *Directory) ExtractActiveTabContent(ctx context.Context) extract.Result {
	tab, err := d.ActiveTab(ctx)
	if err != nil {
		d.logger.Debug("active tab lookup failed", zap.Error(err))
		return Placeholder(Tab{}, "no active tab is available")
	}
	return d.extract(ctx, tab)
}

func (d *Directory) extract(ctx context.Context, tab Tab) extract.Result {
	if IsRestricted(tab.URL) {
		d.logger.Debug("refusing restricted tab", zap.String("tab", tab.ID), zap.String("url", tab.URL))
		return Placeholder(tab, "browser internal pages cannot be read")
	}

	snap, err := d.snapshot(ctx, tab.ID)
	if errors.Is(err, ErrAgentMissing) {
		// Exactly one injection and one retry.
		if injectErr := d.inject(ctx, tab.ID); injectErr != nil {
			d.logger.Warn("agent injection failed", zap.String("tab", tab.ID), zap.Error(injectErr))
			return Placeholder(tab, "the page could not be scripted")
		}
		snap, err = d.snapshot(ctx, tab.ID)
	}
	if err != nil {
		d.logger.Warn("tab snapshot failed", zap.String("tab", tab.ID), zap.Error(err))
		return Placeholder(tab, "the page did not respond")
	}

	pageURL := snap.URL
	if pageURL == "" {
		pageURL = tab.URL
	}
	res := extract.ExtractHTML(snap.HTML, pageURL)
	if res.Title == "" {
		res.Title = firstNonEmpty(snap.Title, tab.Title)
	}
	if !res.OK() {
		d.logger.Warn("content extraction failed", zap.String("tab", tab.ID), zap.String("error", res.Error))
		return Placeholder(tab, res.Error)
	}
	return res
}

func (d *Directory) snapshot(ctx context.Context, id string) (*PageSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, d.evalTimeout)
	defer cancel()
	return d.browser.Snapshot(ctx, id)
}

func (d *Directory) inject(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, d.evalTimeout)
	defer cancel()
	return d.browser.Inject(ctx, id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
