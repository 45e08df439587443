// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/tabchat/internal/mention"
	"github.com/jeranaias/tabchat/internal/orchestrator"
)

// askFlags are the flags of the ask command.
type askFlags struct {
	page     bool
	noStream bool
	tabs     []string
}

func newAskCommand(opts *Options) *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask a single question and print the answer",
		Long: `Ask a single question and print the answer.

Mention tabs inline with @"Title", or with --tab. With --page the active tab is
used when no tab is mentioned.`,
		Example: `  tabchat ask "what is this page about?" --page
  tabchat ask --tab "Release notes" "what changed in 2.0?"
  tabchat ask 'compare @"Plan A" with @"Plan B"'`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, strings.Join(args, " "), flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.page, "page", "p", false, "include the active tab when no tab is mentioned")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "wait for the full answer before printing")
	cmd.Flags().StringArrayVarP(&flags.tabs, "tab", "t", nil, "mention a tab by title (repeatable)")
	return cmd
}

// withMentions prefixes text with a reference token per title.
func withMentions(text string, titles []string) string {
	if len(titles) == 0 {
		return text
	}
	tokens := make([]string, len(titles))
	for i, title := range titles {
		tokens[i] = mention.Token(title)
	}
	return strings.Join(tokens, " ") + " " + text
}

func runAsk(cmd *cobra.Command, opts *Options, question string, flags askFlags) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{browser: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if rt.BrowserAttached() {
		if _, err := rt.Orch.RefreshTabs(ctx); err != nil {
			rt.Logger.Warn("tab snapshot failed", zap.Error(err))
		}
	} else if len(flags.tabs) > 0 {
		return fmt.Errorf("--tab: %w", orchestrator.ErrNoBrowser)
	}

	snapshot := rt.Orch.State().Snapshot()
	for _, title := range flags.tabs {
		if _, ok := mention.FindByTitle(snapshot, title); !ok {
			return &NotFoundError{Resource: "tab", ID: title}
		}
	}

	q := rt.Orch.ParseQuery(withMentions(question, flags.tabs), opts.Model, flags.page || rt.Config.UI.IncludePage)

	out := cmd.OutOrStdout()
	stream := !flags.noStream && !opts.JSON

	var answer *orchestrator.Answer
	if stream {
		answer, err = rt.Orch.HandleStreamingQuery(ctx, q, uuid.NewString(),
			orchestrator.NotifierFunc(func(ev orchestrator.Event) error {
				if ev.Type == orchestrator.EventStreamChunk {
					_, err := fmt.Fprint(out, ev.Chunk)
					return err
				}
				return nil
			}))
		if err == nil {
			fmt.Fprintln(out)
		}
	} else {
		answer, err = rt.Orch.HandleQuery(ctx, q)
	}
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(cmd, answer)
	}
	if !stream {
		fmt.Fprintln(out, renderMarkdown(out, answer.Text, rt.Config.UI.RenderMarkdown))
	}
	printSources(cmd.ErrOrStderr(), answer)
	printIncomplete(cmd.ErrOrStderr(), answer)
	return nil
}
