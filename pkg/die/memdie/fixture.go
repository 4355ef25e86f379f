package memdie

import (
	"debug/dwarf"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// Fixture is the YAML description of an entry tree.
//
//	units:
//	  - entries:
//	      - tag: compile_unit
//	        name: a.cc
//	        children:
//	          - tag: namespace
//	            name: N
//	            children:
//	              - id: s
//	                tag: structure_type
//	                name: S
//	                declaration: true
//	          - tag: typedef
//	            name: S_t
//	            attrs:
//	              - {attr: type, ref: s}
type Fixture struct {
	Units []FixtureUnit `yaml:"units"`
}

// FixtureUnit describes one unit.
type FixtureUnit struct {
	Offset  *uint32        `yaml:"offset,omitempty"`
	Entries []FixtureEntry `yaml:"entries"`
}

// FixtureEntry describes one entry and its subtree.
type FixtureEntry struct {
	// ID names the entry so that attributes can reference it.
	ID  string `yaml:"id,omitempty"`
	Tag string `yaml:"tag"`
	// Offset and Parent are only honoured on unit-level entries, where
	// they produce an orphan with an explicit parent pointer.
	Offset      *uint32        `yaml:"offset,omitempty"`
	Parent      *uint32        `yaml:"parent,omitempty"`
	Name        string         `yaml:"name,omitempty"`
	Declaration bool           `yaml:"declaration,omitempty"`
	Attrs       []FixtureAttr  `yaml:"attrs,omitempty"`
	Children    []FixtureEntry `yaml:"children,omitempty"`
}

// FixtureAttr describes one attribute. Form is inferred from Value or Ref
// when omitted.
type FixtureAttr struct {
	Attr  string `yaml:"attr"`
	Form  string `yaml:"form,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Ref   string `yaml:"ref,omitempty"`
}

// LoadFile reads a YAML fixture from path and builds it.
func LoadFile(path string) (*Info, error) {
	//nolint:gosec // G304: fixture path is supplied by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close() // nolint:errcheck

	return Load(f)
}

// Load reads a YAML fixture and builds it.
func Load(r io.Reader) (*Info, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return fx.Build()
}

type pendingRef struct {
	node *Node
	attr dwarf.Attr
	form die.Form
	id   string
}

// Build turns the fixture into an Info.
func (fx *Fixture) Build() (*Info, error) {
	b := NewBuilder()
	ids := make(map[string]*Node)
	var refs []pendingRef

	var add func(parent *Node, ub *UnitBuilder, fe FixtureEntry) error
	add = func(parent *Node, ub *UnitBuilder, fe FixtureEntry) error {
		tag, err := die.ParseTag(fe.Tag)
		if err != nil {
			return err
		}

		attrs, deferred, err := fixtureAttrs(fe)
		if err != nil {
			return fmt.Errorf("entry %q: %w", fe.Tag, err)
		}

		var n *Node
		switch {
		case parent != nil:
			n = parent.Child(tag, attrs...)
		case fe.Parent != nil:
			if fe.Offset == nil {
				return fmt.Errorf("entry %q: parent requires an explicit offset", fe.Tag)
			}
			n = ub.Orphan(dwarf.Offset(*fe.Offset), dwarf.Offset(*fe.Parent), tag, attrs...)
		default:
			n = ub.Root(tag, attrs...)
		}

		if fe.ID != "" {
			if _, dup := ids[fe.ID]; dup {
				return fmt.Errorf("duplicate entry id %q", fe.ID)
			}
			ids[fe.ID] = n
		}
		for _, d := range deferred {
			d.node = n
			refs = append(refs, d)
		}

		for _, child := range fe.Children {
			if err := add(n, ub, child); err != nil {
				return err
			}
		}
		return nil
	}

	for _, fu := range fx.Units {
		var ub *UnitBuilder
		if fu.Offset != nil {
			ub = b.UnitAt(dwarf.Offset(*fu.Offset))
		} else {
			ub = b.Unit()
		}
		for _, fe := range fu.Entries {
			if err := add(nil, ub, fe); err != nil {
				return nil, err
			}
		}
	}

	for _, r := range refs {
		target, ok := ids[r.id]
		if !ok {
			return nil, fmt.Errorf("reference to unknown entry id %q", r.id)
		}
		form := r.form
		if form == 0 {
			form = die.FormRefAddr
			if target.e.unit == r.node.e.unit {
				form = die.FormRef4
			}
		}
		r.node.With(die.Attribute{Attr: r.attr, Form: form, Val: target.Offset()})
	}

	return b.Build(), nil
}

func fixtureAttrs(fe FixtureEntry) ([]die.Attribute, []pendingRef, error) {
	var attrs []die.Attribute
	var refs []pendingRef

	if fe.Name != "" {
		attrs = append(attrs, Name(fe.Name))
	}
	if fe.Declaration {
		attrs = append(attrs, Declaration())
	}

	for _, fa := range fe.Attrs {
		attr, err := die.ParseAttr(fa.Attr)
		if err != nil {
			return nil, nil, err
		}

		var form die.Form
		if fa.Form != "" {
			f, ok := die.ParseForm(fa.Form)
			if !ok {
				return nil, nil, fmt.Errorf("unknown form %q", fa.Form)
			}
			form = f
		}

		if fa.Ref != "" {
			refs = append(refs, pendingRef{attr: attr, form: form, id: fa.Ref})
			continue
		}

		val := fa.Value
		if form == 0 {
			form = inferForm(val)
		}
		if n, ok := val.(int); ok {
			val = int64(n)
		}
		attrs = append(attrs, die.Attribute{Attr: attr, Form: form, Val: val})
	}
	return attrs, refs, nil
}

func inferForm(v any) die.Form {
	switch n := v.(type) {
	case string:
		return die.FormString
	case bool:
		return die.FormFlag
	case int:
		if n < 0 {
			return die.FormSdata
		}
		return die.FormData4
	case uint64:
		return die.FormUdata
	default:
		return die.FormBlock
	}
}
