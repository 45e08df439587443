// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabs enumerates open browser tabs and extracts their content.
//
// A Directory wraps a Browser (the tab platform). RodBrowser attaches to a
// Chromium instance over the DevTools protocol; tabstest.Browser is an
// in-memory stand-in for tests.
//
// Extraction never fails outward. Tabs on restricted schemes, tabs that have
// closed and pages that cannot be scripted all yield a placeholder result
// with ContentLength zero. When the in-page agent is missing the directory
// injects it once and retries once.
//
// # Usage
//
//	browser, err := tabs.ConnectRod(ctx, "http://127.0.0.1:9222", logger)
//	dir := tabs.NewDirectory(browser, tabs.WithLogger(logger))
//	list, err := dir.ListTabs(ctx)
//	res := dir.ExtractTabContent(ctx, list[0].ID)
package tabs
