package inspect

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// LookupRow is one requested name and what it resolved to.
type LookupRow struct {
	Kind   string `header:"KIND" json:"kind" yaml:"kind"`
	Name   string `header:"NAME" json:"name" yaml:"name"`
	Tag    string `header:"TAG" json:"tag,omitempty" yaml:"tag,omitempty"`
	Offset string `header:"OFFSET" json:"offset,omitempty" yaml:"offset,omitempty"`
	Source string `header:"SOURCE" json:"source,omitempty" yaml:"source,omitempty"`
}

type lookupRequest struct {
	types     []string
	variables []string
	functions []string
}

// NewLookupCmd resolves requested types, variables and functions.
func NewLookupCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var (
		format string
		req    lookupRequest
	)

	cmd := &cobra.Command{
		Use:   "lookup <binary>... [--type T] [--var V] [--func F]",
		Short: "Resolve qualified names to the entries that define them",
		Long: `Resolve each requested qualified name (e.g. ns::Widget) to the first entry
that defines it, walking every unit of every binary once.

Extern variable declarations are followed to their definitions. Names that
cannot be resolved are reported on stderr and listed without an offset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(req.types)+len(req.variables)+len(req.functions) == 0 {
				return fmt.Errorf("nothing to look up, use --type, --var or --func")
			}
			return run(cmd, opts, format, args, func(env *helpers.Env, sources []lookup.Source) (any, error) {
				return resolve(env, sources, req, cmd.ErrOrStderr())
			})
		},
	}

	cmd.Flags().StringSliceVar(&req.types, "type", nil, "Qualified type names to resolve")
	cmd.Flags().StringSliceVar(&req.variables, "var", nil, "Qualified variable names to resolve")
	cmd.Flags().StringSliceVar(&req.functions, "func", nil, "Qualified function names to resolve")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.SupportedFormats)
	return cmd
}

func resolve(env *helpers.Env, sources []lookup.Source, req lookupRequest, stderr io.Writer) ([]LookupRow, error) {
	r := lookup.NewResolver(env.Logger, sources,
		lookup.WithLocatorOptions(env.LocatorOptions()...),
		lookup.WithReporter(func(msg string) {
			_, _ = fmt.Fprintf(stderr, "warning: %s\n", msg)
		}),
	)

	add := func(names []string, fn func(string) error) {
		for _, name := range names {
			// Duplicates are reported through the reporter and skipped.
			_ = fn(name)
		}
	}
	add(req.types, r.AddType)
	add(req.variables, r.AddVariable)
	add(req.functions, r.AddFunction)

	if err := r.Resolve(); err != nil {
		return nil, err
	}

	rows := []LookupRow{}
	for _, b := range r.Bindings() {
		e, source := b.Entry, b.Source
		if b.Kind == lookup.KindVariable && die.IsDeclaration(e) {
			def, err := r.Definition(e)
			if err != nil {
				return nil, err
			}
			if def != e {
				e, source = def, sourceOf(sources, def)
			}
		}
		rows = append(rows, LookupRow{
			Kind:   b.Kind.String(),
			Name:   b.Name,
			Tag:    e.Tag().String(),
			Offset: hex(e.Offset()),
			Source: source,
		})
	}
	for _, u := range r.Unresolved() {
		rows = append(rows, LookupRow{Kind: u.Kind.String(), Name: u.Name})
	}
	return rows, nil
}

// sourceOf names the source whose entry tree holds e. Offsets repeat across
// binaries, so the entry itself is compared rather than its key.
func sourceOf(sources []lookup.Source, e die.Entry) string {
	for _, src := range sources {
		if found, err := src.Info.EntryAt(e.Offset()); err == nil && found == e {
			return src.Name
		}
	}
	return ""
}
