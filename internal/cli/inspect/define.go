package inspect

import (
	"debug/dwarf"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// declarationTags are searched by define when --tag is not given.
var declarationTags = []dwarf.Tag{
	dwarf.TagStructType,
	dwarf.TagClassType,
	dwarf.TagUnionType,
	dwarf.TagEnumerationType,
}

// DefineRow pairs one declaration with the definition found for it. The
// definition columns are empty when no source defines it.
type DefineRow struct {
	Source     string `header:"SOURCE" json:"source" yaml:"source"`
	Offset     string `header:"DECLARATION" json:"declaration" yaml:"declaration"`
	Tag        string `header:"TAG" json:"tag" yaml:"tag"`
	Name       string `header:"NAME" json:"name" yaml:"name"`
	Definition string `header:"DEFINITION" json:"definition,omitempty" yaml:"definition,omitempty"`
	DefinedIn  string `header:"DEFINED IN" json:"defined_in,omitempty" yaml:"defined_in,omitempty"`
}

// NewDefineCmd finds the declarations of a name and their definitions.
func NewDefineCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var (
		format   string
		tagNames []string
		parallel bool
	)

	cmd := &cobra.Command{
		Use:   "define [binary...] <qualified::name>",
		Short: "Find the definitions of a declared name",
		Long: `Find every declaration-only entry named <qualified::name> and look up the
entry that defines it, searching each binary in order. The first unit that
defines the name wins.

A name that is declared but never defined prints without a definition and is
not an error: the definition usually lives in a library that was not given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := helpers.ParseTags(tagNames)
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				tags = declarationTags
			}
			name := args[len(args)-1]
			paths := args[:len(args)-1]

			return run(cmd, opts, format, paths, func(env *helpers.Env, sources []lookup.Source) (any, error) {
				return define(env, sources, name, tags, parallel)
			})
		},
	}

	cmd.Flags().StringSliceVar(&tagNames, "tag", nil, "Declaration tags to consider (default struct, class, union, enum)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Search the units of each binary concurrently")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.SupportedFormats)
	return cmd
}

func define(env *helpers.Env, sources []lookup.Source, name string, tags []dwarf.Tag, parallel bool) ([]DefineRow, error) {
	locators := make([]*die.Locator, len(sources))
	for i, src := range sources {
		locators[i] = die.NewLocator(src.Info, env.Logger, env.LocatorOptions()...)
	}

	rows := []DefineRow{}
	for _, src := range sources {
		err := eachEntry(src.Info, func(e die.Entry) error {
			if !slices.Contains(tags, e.Tag()) || !die.IsDeclaration(e) {
				return nil
			}
			if local, ok := die.NameOf(e); !ok || local != lastSegment(name) {
				return nil
			}
			qualified, err := die.QualifiedName(e)
			if err != nil {
				return err
			}
			if qualified != name {
				return nil
			}

			row := DefineRow{
				Source: src.Name,
				Offset: hex(e.Offset()),
				Tag:    e.Tag().String(),
				Name:   qualified,
			}
			for i, loc := range locators {
				find := loc.FindDefinition
				if parallel {
					find = loc.FindDefinitionParallel
				}
				def, err := find(e)
				if err != nil {
					return fmt.Errorf("failed to find definition of %s: %w", qualified, err)
				}
				if def != nil {
					row.Definition = hex(def.Offset())
					row.DefinedIn = sources[i].Name
					break
				}
			}
			if row.Definition == "" {
				env.Logger.Info().Str("name", qualified).Msg("Declared but not defined in any binary")
			}
			rows = append(rows, row)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func lastSegment(name string) string {
	parts := die.SplitName(name)
	return parts[len(parts)-1]
}
