package memdie

import (
	"debug/dwarf"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// Builder assembles an Info. It is not safe for concurrent use, and the
// Info it returns must not be modified through the builder once shared.
type Builder struct {
	info *Info
	next dwarf.Offset
}

// UnitBuilder adds entries to one unit.
type UnitBuilder struct {
	b *Builder
	u *Unit
}

// Node is a handle on an entry under construction.
type Node struct {
	b *Builder
	e *Entry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{info: &Info{}}
}

// Unit starts a new unit after every unit added so far.
func (b *Builder) Unit() *UnitBuilder {
	return b.UnitAt(b.next)
}

// UnitAt starts a new unit at an explicit section offset. Later entries
// are allocated after off.
func (b *Builder) UnitAt(off dwarf.Offset) *UnitBuilder {
	u := &Unit{offset: off, byOffset: make(map[dwarf.Offset]*Entry)}
	b.info.units = append(b.info.units, u)
	if next := off + unitHeaderSize; next > b.next {
		b.next = next
	}
	return &UnitBuilder{b: b, u: u}
}

// Build returns the assembled Info.
func (b *Builder) Build() *Info {
	return b.info
}

// Root adds a top-level entry to the unit.
func (ub *UnitBuilder) Root(tag dwarf.Tag, attrs ...die.Attribute) *Node {
	n := ub.b.newEntry(ub.u, die.NoParent, tag, attrs)
	ub.u.roots = append(ub.u.roots, n.e)
	return n
}

// Orphan registers an entry in the unit's offset table with an arbitrary
// parent offset, without attaching it to any parent's children. It models
// a corrupt stream whose parent pointer does not lead back to the root.
func (ub *UnitBuilder) Orphan(off, parent dwarf.Offset, tag dwarf.Tag, attrs ...die.Attribute) *Node {
	e := &Entry{unit: ub.u, tag: tag, offset: off, parent: parent, attrs: attrs}
	ub.u.byOffset[off] = e
	if off >= ub.b.next {
		ub.b.next = off + 1
	}
	return &Node{b: ub.b, e: e}
}

// Offset returns the unit's section offset.
func (ub *UnitBuilder) Offset() dwarf.Offset {
	return ub.u.offset
}

// Child appends a child entry to n.
func (n *Node) Child(tag dwarf.Tag, attrs ...die.Attribute) *Node {
	c := n.b.newEntry(n.e.unit, n.e.offset, tag, attrs)
	n.e.children = append(n.e.children, c.e)
	return c
}

// With appends attributes to n. It is meant for references to entries that
// did not exist yet when n was created.
func (n *Node) With(attrs ...die.Attribute) *Node {
	n.e.attrs = append(n.e.attrs, attrs...)
	return n
}

// Entry returns the entry under construction.
func (n *Node) Entry() *Entry {
	return n.e
}

// Offset returns the entry's section offset.
func (n *Node) Offset() dwarf.Offset {
	return n.e.offset
}

func (b *Builder) newEntry(u *Unit, parent dwarf.Offset, tag dwarf.Tag, attrs []die.Attribute) *Node {
	e := &Entry{unit: u, tag: tag, offset: b.next, parent: parent, attrs: attrs}
	u.byOffset[e.offset] = e
	// An abbreviation code plus a word per attribute.
	b.next += dwarf.Offset(1 + 4*len(attrs))
	return &Node{b: b, e: e}
}

// Name returns a DW_AT_name attribute with an inline string.
func Name(name string) die.Attribute {
	return die.Attribute{Attr: dwarf.AttrName, Form: die.FormString, Val: name}
}

// Declaration returns a DW_AT_declaration flag_present attribute.
func Declaration() die.Attribute {
	return die.Attribute{Attr: dwarf.AttrDeclaration, Form: die.FormFlagPresent, Val: true}
}

// ByteSize returns a DW_AT_byte_size constant.
func ByteSize(size int64) die.Attribute {
	return die.Attribute{Attr: dwarf.AttrByteSize, Form: die.FormData1, Val: size}
}

// Attr returns an arbitrary raw attribute.
func Attr(attr dwarf.Attr, form die.Form, val any) die.Attribute {
	return die.Attribute{Attr: attr, Form: form, Val: val}
}

// Ref returns a section-relative reference (DW_FORM_ref_addr) to target,
// which may live in any unit.
func Ref(attr dwarf.Attr, target *Node) die.Attribute {
	return die.Attribute{Attr: attr, Form: die.FormRefAddr, Val: target.Offset()}
}

// LocalRef returns a unit-local reference (DW_FORM_ref4) to target.
func LocalRef(attr dwarf.Attr, target *Node) die.Attribute {
	return die.Attribute{Attr: attr, Form: die.FormRef4, Val: target.Offset()}
}
