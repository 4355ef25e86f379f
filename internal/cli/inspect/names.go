package inspect

import (
	"debug/dwarf"
	"slices"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// NameRow is one entry and its fully-qualified name.
type NameRow struct {
	Source string `header:"SOURCE" json:"source" yaml:"source"`
	Offset string `header:"OFFSET" json:"offset" yaml:"offset"`
	Tag    string `header:"TAG" json:"tag" yaml:"tag"`
	Name   string `header:"NAME" json:"name" yaml:"name"`
}

// NewNamesCmd prints fully-qualified names of entries.
func NewNamesCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var (
		format   string
		tagNames []string
	)

	cmd := &cobra.Command{
		Use:   "names <binary>...",
		Short: "Print fully-qualified names of entries",
		Long: `Print the fully-qualified name of every named or scope-introducing entry.

Anonymous structs, classes, unions and namespaces appear as anon_<offset>.
Use --tag to restrict the listing to some tags, e.g. --tag struct,class.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := helpers.ParseTags(tagNames)
			if err != nil {
				return err
			}
			return run(cmd, opts, format, args, func(_ *helpers.Env, sources []lookup.Source) (any, error) {
				return listNames(sources, tags)
			})
		},
	}

	cmd.Flags().StringSliceVar(&tagNames, "tag", nil, "Only list entries with these tags")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.SupportedFormats)
	return cmd
}

func listNames(sources []lookup.Source, tags []dwarf.Tag) ([]NameRow, error) {
	rows := []NameRow{}
	for _, src := range sources {
		err := eachEntry(src.Info, func(e die.Entry) error {
			if !wantName(e, tags) {
				return nil
			}
			name, err := die.QualifiedName(e)
			if err != nil {
				return err
			}
			rows = append(rows, NameRow{
				Source: src.Name,
				Offset: hex(e.Offset()),
				Tag:    e.Tag().String(),
				Name:   name,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func wantName(e die.Entry, tags []dwarf.Tag) bool {
	if len(tags) > 0 {
		return slices.Contains(tags, e.Tag())
	}
	if die.IsUnitTag(e.Tag()) {
		return false
	}
	if _, named := die.NameOf(e); named {
		return true
	}
	return die.IsNamespaceTag(e.Tag())
}

// eachEntry calls fn for every entry of info in unit order, depth first.
func eachEntry(info die.Info, fn func(die.Entry) error) error {
	units, err := info.Units()
	if err != nil {
		return err
	}
	for _, u := range units {
		top, err := u.TopLevel()
		if err != nil {
			return err
		}
		for _, e := range top {
			if err := walk(e, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func walk(e die.Entry, fn func(die.Entry) error) error {
	if err := fn(e); err != nil {
		return err
	}
	for child := range e.Children() {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}
