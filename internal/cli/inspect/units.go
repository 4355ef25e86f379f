package inspect

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// UnitRow is one unit root.
type UnitRow struct {
	Source string `header:"SOURCE" json:"source" yaml:"source"`
	Unit   string `header:"UNIT" json:"unit" yaml:"unit"`
	Offset string `header:"OFFSET" json:"offset" yaml:"offset"`
	Tag    string `header:"TAG" json:"tag" yaml:"tag"`
	Name   string `header:"NAME" json:"name" yaml:"name"`
}

// NewUnitsCmd lists the root entry of every unit.
func NewUnitsCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "units <binary>...",
		Short: "List the root entry of every unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, format, args, listUnits)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.SupportedFormats)
	return cmd
}

func listUnits(_ *helpers.Env, sources []lookup.Source) (any, error) {
	rows := []UnitRow{}
	for _, src := range sources {
		roots, err := die.RootEntries(src.Info)
		if err != nil {
			return nil, err
		}
		for _, root := range roots {
			rows = append(rows, UnitRow{
				Source: src.Name,
				Unit:   hex(root.Unit().Offset()),
				Offset: hex(root.Offset()),
				Tag:    root.Tag().String(),
				Name:   die.LocalName(root),
			})
		}
	}
	return rows, nil
}
