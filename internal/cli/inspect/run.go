// Package inspect implements the commands that read entry trees: units,
// names, define, attrs and lookup.
package inspect

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/internal/errors"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// query produces the rows a command prints.
type query func(env *helpers.Env, sources []lookup.Source) (any, error)

// run opens the targets, runs q and writes its rows in the chosen format.
func run(cmd *cobra.Command, opts *helpers.GlobalOptions, format string, paths []string, q query) error {
	if err := helpers.ValidateFormat(format, helpers.SupportedFormats); err != nil {
		return err
	}
	formatter, err := helpers.NewFormatter(helpers.OutputFormat(format))
	if err != nil {
		return err
	}

	env, err := helpers.NewEnv(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer errors.DeferClose(env.Logger, env, "failed to close image cache")

	sources, release, err := env.Open(cmd.Context(), paths)
	if err != nil {
		return err
	}
	defer errors.DeferRelease(env.Logger, release, "failed to release images")

	rows, err := q(env, sources)
	if err != nil {
		return err
	}

	if err := formatter.Format(rows, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func hex[T ~uint32](off T) string {
	return fmt.Sprintf("%#x", uint32(off))
}
