package inspect

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/lookup"
)

// AttrRow is one decoded attribute.
type AttrRow struct {
	Attr  string `header:"ATTRIBUTE" json:"attr" yaml:"attr"`
	Form  string `header:"FORM" json:"form" yaml:"form"`
	Value string `header:"VALUE" json:"value" yaml:"value"`
}

// NewAttrsCmd decodes the attributes of one entry.
func NewAttrsCmd(opts *helpers.GlobalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "attrs [binary] <offset>",
		Short: "Decode the attributes of the entry at an offset",
		Long: `Decode every attribute of the entry at <offset> (decimal, or hex with 0x).

Attributes whose encoding form has no decoder are listed with the anomaly
instead of a value.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := strconv.ParseUint(args[len(args)-1], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid offset %q: %w", args[len(args)-1], err)
			}
			return run(cmd, opts, format, args[:len(args)-1], func(env *helpers.Env, sources []lookup.Source) (any, error) {
				return attrs(env, sources, dwarf.Offset(off))
			})
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatText, helpers.SupportedFormats)
	return cmd
}

func attrs(env *helpers.Env, sources []lookup.Source, off dwarf.Offset) ([]AttrRow, error) {
	if len(sources) != 1 {
		return nil, fmt.Errorf("attrs reads exactly one binary, got %d", len(sources))
	}
	info := sources[0].Info

	e, err := info.EntryAt(off)
	if err != nil {
		return nil, err
	}
	lister, ok := e.(die.AttributeLister)
	if !ok {
		return nil, fmt.Errorf("entry %#x does not expose its attributes", uint32(off))
	}

	dec := die.NewDecoder(info, env.Logger)
	rows := []AttrRow{}
	for _, a := range lister.Attributes() {
		row := AttrRow{Attr: a.Attr.String(), Form: a.Form.String()}

		v, err := dec.Value(e, a.Attr)
		switch {
		case errors.Is(err, die.ErrUnsupportedForm):
			row.Value = "<" + err.Error() + ">"
		case err != nil:
			return nil, err
		default:
			row.Value = formatValue(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatValue(v die.Value) string {
	switch v := v.(type) {
	case die.Address:
		return fmt.Sprintf("%#x", uint64(v))
	case die.Unsigned:
		return strconv.FormatUint(uint64(v), 10)
	case die.Signed:
		return strconv.FormatInt(int64(v), 10)
	case die.String:
		return strconv.Quote(string(v))
	case die.Flag:
		return strconv.FormatBool(bool(v))
	case die.Reference:
		name, err := die.QualifiedName(v.Entry)
		if err != nil {
			return hex(v.Entry.Offset())
		}
		return fmt.Sprintf("%s (%s %s)", hex(v.Entry.Offset()), v.Entry.Tag(), name)
	default:
		return ""
	}
}
