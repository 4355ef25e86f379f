// Package cli wires the dwarfscope command tree.
package cli

import (
	"github.com/spf13/cobra"

	configcmd "github.com/coral-mesh/dwarfscope/internal/cli/config"
	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/internal/cli/inspect"
	"github.com/coral-mesh/dwarfscope/pkg/version"
)

// NewRootCmd builds the dwarfscope command tree.
func NewRootCmd() *cobra.Command {
	opts := &helpers.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "dwarfscope",
		Short: "dwarfscope - resolve names and definitions in DWARF debug info",
		Long: `Inspect the debugging information entries of ELF, Mach-O and PE binaries.

Every entry gets a fully-qualified name built from its enclosing structs,
classes, unions and namespaces. Declaration-only entries can be matched to
the entry that defines them, in the same binary or in others.

Commands accept --fixture file.yaml in place of binaries to inspect an entry
tree described in YAML.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	opts.Bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(inspect.NewUnitsCmd(opts))
	rootCmd.AddCommand(inspect.NewNamesCmd(opts))
	rootCmd.AddCommand(inspect.NewDefineCmd(opts))
	rootCmd.AddCommand(inspect.NewAttrsCmd(opts))
	rootCmd.AddCommand(inspect.NewLookupCmd(opts))
	rootCmd.AddCommand(configcmd.NewConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("dwarfscope version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
