// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/export"
	"github.com/jeranaias/tabchat/internal/storage"
)

func newHistoryCommand(opts *Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the saved conversation",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N messages")

	var format, outDir string
	var noMeta bool
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the saved conversation to a Markdown or JSON file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportHistory(cmd, opts, format, &export.Options{
				OutputDir:         outDir,
				IncludeMetadata:   !noMeta,
				IncludeTimestamps: !noMeta,
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown or json")
	exportCmd.Flags().StringVarP(&outDir, "output", "o", ".", "directory to write the file to")
	exportCmd.Flags().BoolVar(&noMeta, "no-metadata", false, "omit the session summary and timestamps")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the saved conversation",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClearHistory(cmd, opts)
		},
	}, exportCmd)
	return cmd
}

func runHistory(cmd *cobra.Command, opts *Options, limit int) error {
	if limit < 0 {
		return &ValidationError{Field: "limit", Value: fmt.Sprint(limit), Reason: "must not be negative"}
	}
	rt, err := newRuntime(cmd, opts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	history := rt.Orch.State().History()
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if opts.JSON {
		if history == nil {
			history = []storage.Message{}
		}
		return printJSON(cmd, history)
	}
	writeHistory(cmd.OutOrStdout(), history)
	return nil
}

func runClearHistory(cmd *cobra.Command, opts *Options) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Orch.ClearHistory(cmd.Context()); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cmd, map[string]bool{"cleared": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Conversation cleared\n", RenderStatus("ok"))
	return nil
}

func runExportHistory(cmd *cobra.Command, opts *Options, format string, exportOpts *export.Options) error {
	exporter, err := export.ForFormat(format, exportOpts)
	if err != nil {
		return &ValidationError{Field: "format", Value: format, Reason: err.Error(), Example: "tabchat history export --format json"}
	}

	rt, err := newRuntime(cmd, opts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	transcript := export.NewTranscript(rt.Config.Storage.Conversation, rt.Orch.State().History())
	path, err := export.ExportToFile(transcript, exporter, exportOpts)
	if err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cmd, map[string]any{"path": path, "messages": len(transcript.Messages)})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d messages to %s\n", RenderStatus("ok"), len(transcript.Messages), path)
	return nil
}

// writeHistory prints the conversation as a transcript.
func writeHistory(w io.Writer, msgs []storage.Message) {
	fmt.Fprintln(w, storage.FormatHistory(msgs))
}
