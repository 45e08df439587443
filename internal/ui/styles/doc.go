// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the colors and lipgloss styles of the chat panel.
//
// All colors are lipgloss AdaptiveColor values so they follow the terminal
// background. NewTheme can pin dark or light.
//
// # Key Types
//
//   - Theme: every style the panel draws with
//   - SpinnerConfig: ASCII spinner frames
//
// # Usage
//
//	theme := styles.NewTheme(cfg.UI.Theme)
//	theme.SetSize(width, height)
//	header := theme.Header.Width(width).Render(theme.HeaderTitle.Render("tabchat"))
package styles
