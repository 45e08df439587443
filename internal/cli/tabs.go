// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/orchestrator"
	"github.com/jeranaias/tabchat/internal/tabs"
	"github.com/jeranaias/tabchat/internal/util"
)

func newTabsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List open browser tabs",
		Long: `List the open browser tabs with the reference token used to mention each
one. The active tab is marked with *.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTabs(cmd, opts)
		},
	}
}

func runTabs(cmd *cobra.Command, opts *Options) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.BrowserAttached() {
		return fmt.Errorf("%w: %v", orchestrator.ErrNoBrowser, rt.BrowserErr)
	}
	list, err := rt.Orch.RefreshTabs(cmd.Context())
	if err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cmd, list)
	}
	writeTabs(cmd.OutOrStdout(), list)
	return nil
}

// writeTabs prints one tab per line with its mention token.
func writeTabs(w io.Writer, list []tabs.Tab) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No open tabs.")
		return
	}
	urlWidth := GetTerminalWidth() - 4
	for _, tab := range list {
		marker := "  "
		if tab.Active {
			marker = "* "
		}
		restricted := ""
		if tabs.IsRestricted(tab.URL) {
			restricted = RenderConditional(WarningStyle, "  (restricted)")
		}
		fmt.Fprintf(w, "%s%s%s\n", marker, RenderConditional(MentionStyle, mention.Token(tab.Title)), restricted)
		fmt.Fprintf(w, "    %s\n", RenderConditional(DimStyle, util.TruncateWidth(tab.URL, urlWidth)))
	}
}
