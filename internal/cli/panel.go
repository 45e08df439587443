// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/ui/panel"
)

func newPanelCommand(opts *Options) *cobra.Command {
	var page bool
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Open the full-screen chat panel",
		Long: `Open the full-screen chat panel.

Type @ to pick a tab from the suggestion list. Use the arrow keys to move,
Tab or Enter to insert the mention and Esc to close the list.

Shortcuts: ctrl+p include the active tab, ctrl+n next model, ctrl+r refresh
tabs, ctrl+l clear the conversation, ctrl+c quit.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, opts, page)
		},
	}
	cmd.Flags().BoolVarP(&page, "page", "p", false, "start with the active tab included")
	return cmd
}

func runPanel(cmd *cobra.Command, opts *Options, page bool) error {
	if err := RequiresTTY("open the panel"); err != nil {
		return err
	}

	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	return panel.Run(cmd.Context(), rt.Orch, panel.Options{
		Theme:          cfg.UI.Theme,
		RenderMarkdown: cfg.UI.RenderMarkdown,
		IncludePage:    page || cfg.UI.IncludePage,
		Model:          opts.Model,
		Browser:        rt.BrowserAttached(),
		Version:        Version,
	})
}
