package die

import (
	"debug/dwarf"
	"iter"
)

// NoParent is the parent offset reported by the root entries of a unit.
const NoParent = ^dwarf.Offset(0)

// Entry is a read-only view of one debugging information entry.
//
// Implementations are immutable once produced. Entries are owned by their
// unit and must not be used after the image holding that unit is released.
type Entry interface {
	Tag() dwarf.Tag
	Offset() dwarf.Offset
	// ParentOffset returns the offset of the enclosing entry, or NoParent
	// when the entry sits at the top of its unit.
	ParentOffset() dwarf.Offset
	Unit() Unit
	// Children yields the direct children in stream order. The sequence
	// may be ranged over any number of times.
	Children() iter.Seq[Entry]
	// Attribute returns the raw attribute and whether it is present.
	Attribute(attr dwarf.Attr) (Attribute, bool)
}

// Unit is one compilation unit's tree of entries.
type Unit interface {
	// Offset distinguishes entries with equal local offsets that come from
	// different units.
	Offset() dwarf.Offset
	// TopLevel returns the root entries of the unit, usually a single
	// compile unit entry.
	TopLevel() ([]Entry, error)
	// EntryAt resolves an offset owned by this unit. An offset outside the
	// unit fails with a *ReferenceError.
	EntryAt(off dwarf.Offset) (Entry, error)
}

// Info is the collection of units of one loaded image.
type Info interface {
	Units() ([]Unit, error)
	// EntryAt resolves an offset against every unit of the image.
	EntryAt(off dwarf.Offset) (Entry, error)
}

// AttributeLister is implemented by entries that can enumerate every
// attribute they carry, in stream order.
type AttributeLister interface {
	Attributes() []Attribute
}

// Attribute is a raw attribute value as stored by the decoding layer.
//
// Val holds the Go value that matches Form: uint64 or int64 for integer
// forms, string for string forms, bool for flags, dwarf.Offset for
// references and []byte for blocks.
type Attribute struct {
	Attr dwarf.Attr
	Form Form
	Val  any
}

// namespaceTags are the tags whose entries qualify the names of the entries
// nested beneath them.
var namespaceTags = map[dwarf.Tag]struct{}{
	dwarf.TagStructType: {},
	dwarf.TagClassType:  {},
	dwarf.TagUnionType:  {},
	dwarf.TagNamespace:  {},
}

// IsNamespaceTag reports whether entries with tag contribute a name segment
// to the entries nested inside them.
func IsNamespaceTag(tag dwarf.Tag) bool {
	_, ok := namespaceTags[tag]
	return ok
}

// IsUnitTag reports whether tag marks the root of a unit. Unit roots are
// transparent for naming and for definition search.
func IsUnitTag(tag dwarf.Tag) bool {
	return tag == dwarf.TagCompileUnit || tag == dwarf.TagPartialUnit
}

// IsDeclaration reports whether e carries a truthy DW_AT_declaration marker.
func IsDeclaration(e Entry) bool {
	a, ok := e.Attribute(dwarf.AttrDeclaration)
	if !ok {
		return false
	}
	switch v := a.Val.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case uint64:
		return v != 0
	default:
		// flag_present carries no payload.
		return a.Form == FormFlagPresent
	}
}

// RootEntries returns the first top-level entry of every unit in info.
func RootEntries(info Info) ([]Entry, error) {
	units, err := info.Units()
	if err != nil {
		return nil, err
	}

	roots := make([]Entry, 0, len(units))
	for _, u := range units {
		top, err := u.TopLevel()
		if err != nil {
			return nil, err
		}
		if len(top) > 0 {
			roots = append(roots, top[0])
		}
	}
	return roots, nil
}
