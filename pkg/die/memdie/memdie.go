// Package memdie is an in-memory implementation of the die entry model.
//
// Trees are assembled with a Builder or loaded from a YAML fixture. Offsets
// are allocated in increasing order across the whole Info, so parents
// always sit at lower offsets than their children, as in a real
// .debug_info section.
package memdie

import (
	"debug/dwarf"
	"iter"
	"slices"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// unitHeaderSize mirrors a 32-bit DWARF 4 unit header.
const unitHeaderSize = 11

// Info is a collection of in-memory units.
type Info struct {
	units []*Unit
}

// Unit is one in-memory unit.
type Unit struct {
	offset   dwarf.Offset
	roots    []*Entry
	byOffset map[dwarf.Offset]*Entry
}

// Entry is one in-memory debugging information entry.
type Entry struct {
	unit     *Unit
	tag      dwarf.Tag
	offset   dwarf.Offset
	parent   dwarf.Offset
	attrs    []die.Attribute
	children []*Entry
}

var (
	_ die.Info  = (*Info)(nil)
	_ die.Unit  = (*Unit)(nil)
	_ die.Entry = (*Entry)(nil)
)

// Units returns the units in the order they were added.
func (i *Info) Units() ([]die.Unit, error) {
	out := make([]die.Unit, len(i.units))
	for n, u := range i.units {
		out[n] = u
	}
	return out, nil
}

// EntryAt finds off in whichever unit owns it.
func (i *Info) EntryAt(off dwarf.Offset) (die.Entry, error) {
	for _, u := range i.units {
		if e, ok := u.byOffset[off]; ok {
			return e, nil
		}
	}
	return nil, &die.ReferenceError{Unit: die.NoParent, Offset: off, Reason: "offset not in any unit"}
}

// Offset returns the unit's section offset.
func (u *Unit) Offset() dwarf.Offset {
	return u.offset
}

// TopLevel returns the unit's root entries.
func (u *Unit) TopLevel() ([]die.Entry, error) {
	out := make([]die.Entry, len(u.roots))
	for n, e := range u.roots {
		out[n] = e
	}
	return out, nil
}

// EntryAt resolves off within the unit.
func (u *Unit) EntryAt(off dwarf.Offset) (die.Entry, error) {
	if e, ok := u.byOffset[off]; ok {
		return e, nil
	}
	return nil, &die.ReferenceError{Unit: u.offset, Offset: off}
}

func (e *Entry) Tag() dwarf.Tag             { return e.tag }
func (e *Entry) Offset() dwarf.Offset       { return e.offset }
func (e *Entry) ParentOffset() dwarf.Offset { return e.parent }
func (e *Entry) Unit() die.Unit             { return e.unit }

// Children yields the entry's children in insertion order.
func (e *Entry) Children() iter.Seq[die.Entry] {
	return func(yield func(die.Entry) bool) {
		for _, c := range e.children {
			if !yield(c) {
				return
			}
		}
	}
}

// Attribute returns the first attribute named attr.
func (e *Entry) Attribute(attr dwarf.Attr) (die.Attribute, bool) {
	for _, a := range e.attrs {
		if a.Attr == attr {
			return a, true
		}
	}
	return die.Attribute{}, false
}

// Attributes returns every attribute of the entry in insertion order.
func (e *Entry) Attributes() []die.Attribute {
	return slices.Clone(e.attrs)
}
