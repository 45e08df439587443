// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tabs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tabchat/internal/tabs"
	"github.com/jeranaias/tabchat/internal/tabs/tabstest"
)

func docsPage() tabstest.Page {
	return tabstest.Page{
		Tab:            tabs.Tab{ID: "1", Title: "Docs", URL: "https://x", Active: true},
		HTML:           `<html><head><title>Docs</title></head><body><article>Hello world</article></body></html>`,
		AgentInstalled: true,
	}
}

func TestIsRestricted(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"chrome://settings", true},
		{"CHROME://settings", true},
		{"chrome-extension://abc/panel.html", true},
		{"edge://flags", true},
		{"about:blank", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"view-source:https://x", true},
		{"https://example.com/chrome://", false},
		{"http://localhost:8080", false},
		{"file:///tmp/a.html", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := tabs.IsRestricted(tc.url); got != tc.want {
			t.Errorf("IsRestricted(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestListTabs_PreservesOrder(t *testing.T) {
	browser := tabstest.New(
		tabstest.Page{Tab: tabs.Tab{ID: "3", Title: "C"}},
		tabstest.Page{Tab: tabs.Tab{ID: "1", Title: "A"}},
		tabstest.Page{Tab: tabs.Tab{ID: "2", Title: "B", Active: true}},
	)
	dir := tabs.NewDirectory(browser)

	got, err := dir.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{got[0].Title, got[1].Title, got[2].Title})

	active, err := dir.ActiveTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", active.ID)
}

func TestListTabs_Error(t *testing.T) {
	browser := tabstest.New()
	browser.TargetsErr = errors.New("connection closed")

	_, err := tabs.NewDirectory(browser).ListTabs(context.Background())
	assert.ErrorContains(t, err, "connection closed")
}

func TestExtractTabContent(t *testing.T) {
	browser := tabstest.New(docsPage())
	dir := tabs.NewDirectory(browser)

	res := dir.ExtractTabContent(context.Background(), "1")
	require.True(t, res.OK())
	assert.Equal(t, "Docs", res.Title)
	assert.Equal(t, "https://x", res.URL)
	assert.Equal(t, "Hello world", res.Content)
	assert.Equal(t, 11, res.ContentLength)

	snapshots, injects := browser.Calls("1")
	assert.Equal(t, 1, snapshots)
	assert.Zero(t, injects)
}

func TestExtractTabContent_InjectsOnceThenRetries(t *testing.T) {
	page := docsPage()
	page.AgentInstalled = false
	browser := tabstest.New(page)

	res := tabs.NewDirectory(browser).ExtractTabContent(context.Background(), "1")
	require.True(t, res.OK())
	assert.Equal(t, "Hello world", res.Content)

	snapshots, injects := browser.Calls("1")
	assert.Equal(t, 2, snapshots)
	assert.Equal(t, 1, injects)
}

func TestExtractTabContent_GivesUpAfterOneRetry(t *testing.T) {
	page := docsPage()
	page.AgentInstalled = false
	page.AgentNeverSticks = true
	browser := tabstest.New(page)

	res := tabs.NewDirectory(browser).ExtractTabContent(context.Background(), "1")
	assert.True(t, res.Placeholder)
	assert.Zero(t, res.ContentLength)
	assert.NotEmpty(t, res.Content)

	snapshots, injects := browser.Calls("1")
	assert.Equal(t, 2, snapshots)
	assert.Equal(t, 1, injects)
}

func TestExtractTabContent_InjectionFails(t *testing.T) {
	page := docsPage()
	page.AgentInstalled = false
	page.InjectErr = tabstest.ErrScripting
	browser := tabstest.New(page)

	res := tabs.NewDirectory(browser).ExtractTabContent(context.Background(), "1")
	assert.True(t, res.Placeholder)
	assert.Zero(t, res.ContentLength)

	snapshots, injects := browser.Calls("1")
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, injects)
}

func TestExtractTabContent_RestrictedNeverScripts(t *testing.T) {
	for _, url := range []string{"chrome://settings", "chrome-extension://id/x.html", "about:blank"} {
		t.Run(url, func(t *testing.T) {
			browser := tabstest.New(tabstest.Page{
				Tab:            tabs.Tab{ID: "9", Title: "Settings", URL: url},
				AgentInstalled: true,
			})

			res := tabs.NewDirectory(browser).ExtractTabContent(context.Background(), "9")
			assert.True(t, res.Placeholder)
			assert.Zero(t, res.ContentLength)
			assert.Equal(t, "Settings", res.Title)
			assert.Zero(t, browser.ScriptCalls())
		})
	}
}

func TestExtractTabContent_MissingTab(t *testing.T) {
	browser := tabstest.New(docsPage())
	browser.Remove("1")

	res := tabs.NewDirectory(browser).ExtractTabContent(context.Background(), "1")
	assert.True(t, res.Placeholder)
	assert.Zero(t, res.ContentLength)
	assert.Contains(t, res.Content, "no longer open")
}

func TestExtractTabContent_Timeout(t *testing.T) {
	page := docsPage()
	page.Delay = time.Second
	browser := tabstest.New(page)

	dir := tabs.NewDirectory(browser, tabs.WithEvalTimeout(20*time.Millisecond))
	res := dir.ExtractTabContent(context.Background(), "1")
	assert.True(t, res.Placeholder)
	assert.Zero(t, res.ContentLength)
}

func TestExtractActiveTabContent(t *testing.T) {
	other := tabstest.Page{
		Tab:            tabs.Tab{ID: "2", Title: "Other", URL: "https://y"},
		HTML:           "<body><p>Other page</p></body>",
		AgentInstalled: true,
	}
	browser := tabstest.New(other, docsPage())

	res := tabs.NewDirectory(browser).ExtractActiveTabContent(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, "Docs", res.Title)
}

func TestExtractActiveTabContent_NoActive(t *testing.T) {
	browser := tabstest.New(tabstest.Page{Tab: tabs.Tab{ID: "1", Title: "A", URL: "https://a"}})

	res := tabs.NewDirectory(browser).ExtractActiveTabContent(context.Background())
	assert.True(t, res.Placeholder)
	assert.Zero(t, res.ContentLength)
}
