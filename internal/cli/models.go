// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/ollama"
	"github.com/jeranaias/tabchat/internal/util"
)

// modelsData is the JSON form of the models command.
type modelsData struct {
	Models   []ollama.ModelDescriptor `json:"models"`
	Selected string                   `json:"selected"`
}

func newModelsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "List installed models",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, opts)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "select NAME",
		Short: "Select and remember the model used for questions",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelectModel(cmd, opts, args[0])
		},
	})
	return cmd
}

func runModels(cmd *cobra.Command, opts *Options) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	models, err := rt.Orch.RefreshModels(cmd.Context())
	if err != nil {
		return err
	}
	selected := rt.Orch.State().SelectedModel()
	if opts.JSON {
		return printJSON(cmd, modelsData{Models: models, Selected: selected})
	}
	writeModels(cmd.OutOrStdout(), models, selected)
	return nil
}

func runSelectModel(cmd *cobra.Command, opts *Options, name string) error {
	rt, err := newRuntime(cmd, opts, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if _, err := rt.Orch.RefreshModels(ctx); err != nil {
		return err
	}
	if err := rt.Orch.SelectModel(ctx, name); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cmd, modelsData{Models: rt.Orch.State().Models(), Selected: name})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Selected model: %s\n", RenderStatus("ok"), name)
	return nil
}

// writeModels prints the catalog, marking the selected model.
func writeModels(w io.Writer, models []ollama.ModelDescriptor, selected string) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models installed. Pull one with: ollama pull llama3.2")
		return
	}
	nameWidth := 0
	for _, m := range models {
		nameWidth = max(nameWidth, util.StringWidth(m.Name))
	}
	for _, m := range models {
		marker := "  "
		name := util.PadRight(m.Name, nameWidth)
		if m.Name == selected {
			marker = "* "
			name = RenderConditional(SuccessStyle, name)
		}
		fmt.Fprintf(w, "%s%s  %s\n", marker, name, RenderConditional(DimStyle, m.HumanSize()))
	}
}
