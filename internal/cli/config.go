// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tabchat/internal/config"
)

func newConfigCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show or change configuration.

Keys use dot notation matching the TOML file, for example ollama.url or
server.auth_token. Run 'tabchat config keys' for the full list.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, opts)
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, opts, force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one configuration value",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(cmd, opts, args[0])
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Change one value in the config file",
			Args:  exactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd, opts, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List configuration keys",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				keys := config.GetAllKeys()
				sort.Strings(keys)
				if opts.JSON {
					return printJSON(cmd, keys)
				}
				for _, k := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  exactArgs(0),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := configFilePath(opts)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd, map[string]any{"path": path, "exists": configExists(path)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		initCmd,
	)
	return cmd
}

// configFilePath is --config or the default path.
func configFilePath(opts *Options) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	return config.ConfigPath()
}

func runConfigShow(cmd *cobra.Command, opts *Options) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	safe := cfg.Clone()
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	if opts.JSON {
		return printJSON(cmd, safe)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}

func runConfigGet(cmd *cobra.Command, opts *Options, key string) error {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return &NotFoundError{Resource: "config key", ID: key}
	}
	if opts.JSON {
		return printJSON(cmd, map[string]any{"key": key, "value": value})
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

// runConfigSet edits the file itself, so environment overrides are not
// written back.
func runConfigSet(cmd *cobra.Command, opts *Options, key, value string) error {
	path, err := configFilePath(opts)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if configExists(path) {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(cmd, map[string]any{"key": key, "value": value, "path": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}

func runConfigInit(cmd *cobra.Command, opts *Options, force bool) error {
	path, err := configFilePath(opts)
	if err != nil {
		return err
	}
	if configExists(path) && !force {
		return &ValidationError{Field: "config", Value: path, Reason: "file already exists", Example: "tabchat config init --force"}
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if opts.JSON {
		return printJSON(cmd, map[string]string{"path": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", RenderStatus("ok"), path)
	return nil
}
