// Package config implements the 'dwarfscope config' command family.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(opts *helpers.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the dwarfscope configuration",
		Long: `Inspect and create the dwarfscope configuration.

Configuration Priority:
  1. DWARFSCOPE_* environment variables (highest)
  2. The config file (--config, default ~/.dwarfscope/config.yaml)
  3. Built-in defaults

Environment Variables:
  DWARFSCOPE_CONFIG    Override the base directory of the default config file`,
	}

	cmd.AddCommand(newViewCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newSchemaCmd())

	return cmd
}

func configPath(opts *helpers.GlobalOptions) string {
	if opts.ConfigPath != "" {
		return opts.ConfigPath
	}
	return config.DefaultPath()
}

// newViewCmd creates the 'config view' command.
func newViewCmd(opts *helpers.GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long:  `Show the configuration, as YAML, after defaults, the config file and environment overrides are merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(opts))
			if err != nil {
				return err
			}
			return (&helpers.YAMLFormatter{}).Format(cfg, cmd.OutOrStdout())
		},
	}
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd(opts *helpers.GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(opts)
			if _, err := config.Load(path); err != nil {
				return err
			}
			cmd.Printf("✓ %s is valid\n", path)
			return nil
		},
	}
}

// newInitCmd creates the 'config init' command.
func newInitCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(opts)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check %s: %w", path, err)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			cmd.Printf("✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// newSchemaCmd creates the 'config schema' command.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
