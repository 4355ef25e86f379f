package dwarfimage

import (
	"debug/dwarf"
	"fmt"
	"iter"
	"sync"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// unit is decoded on first use. debug/dwarf does not expose unit header
// offsets, so a unit is identified by the offset of its root entry, which
// is equally unique within the section.
type unit struct {
	img    *Image
	offset dwarf.Offset

	once     sync.Once
	roots    []*entry
	byOffset map[dwarf.Offset]*entry
	err      error
}

type entry struct {
	unit     *unit
	tag      dwarf.Tag
	offset   dwarf.Offset
	parent   dwarf.Offset
	fields   []dwarf.Field
	children []*entry
}

var (
	_ die.Unit            = (*unit)(nil)
	_ die.Entry           = (*entry)(nil)
	_ die.AttributeLister = (*entry)(nil)
)

func (u *unit) Offset() dwarf.Offset {
	return u.offset
}

func (u *unit) TopLevel() ([]die.Entry, error) {
	if err := u.load(); err != nil {
		return nil, err
	}
	out := make([]die.Entry, len(u.roots))
	for i, e := range u.roots {
		out[i] = e
	}
	return out, nil
}

func (u *unit) EntryAt(off dwarf.Offset) (die.Entry, error) {
	if err := u.load(); err != nil {
		return nil, err
	}
	if e, ok := u.byOffset[off]; ok {
		return e, nil
	}
	return nil, &die.ReferenceError{Unit: u.offset, Offset: off}
}

func (u *unit) load() error {
	u.once.Do(u.decode)
	return u.err
}

// decode reads the unit's entries, rebuilding the parent links that the
// flat debug/dwarf stream leaves implicit.
func (u *unit) decode() {
	u.byOffset = make(map[dwarf.Offset]*entry)

	r := u.img.data.Reader()
	r.Seek(u.offset)

	var stack []*entry
	for {
		e, err := r.Next()
		if err != nil {
			u.err = fmt.Errorf("failed to decode unit %#x: %w", u.offset, err)
			return
		}
		if e == nil {
			break
		}

		if e.Tag == 0 {
			if len(stack) == 0 {
				break
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			continue
		}

		n := &entry{
			unit:   u,
			tag:    e.Tag,
			offset: e.Offset,
			parent: die.NoParent,
			fields: e.Field,
		}
		u.byOffset[n.offset] = n

		if len(stack) > 0 {
			top := stack[len(stack)-1]
			n.parent = top.offset
			top.children = append(top.children, n)
		} else {
			u.roots = append(u.roots, n)
		}

		if e.Children {
			stack = append(stack, n)
		} else if len(stack) == 0 {
			break
		}
	}

	u.img.logger.Debug().
		Uint32("unit", uint32(u.offset)).
		Int("entries", len(u.byOffset)).
		Msg("Decoded unit")
}

func (e *entry) Tag() dwarf.Tag             { return e.tag }
func (e *entry) Offset() dwarf.Offset       { return e.offset }
func (e *entry) ParentOffset() dwarf.Offset { return e.parent }
func (e *entry) Unit() die.Unit             { return e.unit }

func (e *entry) Children() iter.Seq[die.Entry] {
	return func(yield func(die.Entry) bool) {
		for _, c := range e.children {
			if !yield(c) {
				return
			}
		}
	}
}

func (e *entry) Attribute(attr dwarf.Attr) (die.Attribute, bool) {
	for _, f := range e.fields {
		if f.Attr == attr {
			return convertField(f), true
		}
	}
	return die.Attribute{}, false
}

func (e *entry) Attributes() []die.Attribute {
	out := make([]die.Attribute, len(e.fields))
	for i, f := range e.fields {
		out[i] = convertField(f)
	}
	return out
}

// convertField maps a debug/dwarf field to a raw attribute. debug/dwarf
// reports the class rather than the exact form, and has already widened
// integers and resolved string-pool and unit-relative references, so each
// class maps to the most general form that carries its payload.
func convertField(f dwarf.Field) die.Attribute {
	a := die.Attribute{Attr: f.Attr, Val: f.Val}
	switch f.Class {
	case dwarf.ClassAddress:
		a.Form = die.FormAddr
	case dwarf.ClassConstant:
		a.Form = die.FormSdata
	case dwarf.ClassFlag:
		a.Form = die.FormFlag
	case dwarf.ClassString:
		a.Form = die.FormString
	case dwarf.ClassStringAlt:
		a.Form = die.FormGNUStrpAlt
	case dwarf.ClassReference:
		a.Form = die.FormRefAddr
	case dwarf.ClassReferenceAlt:
		a.Form = die.FormGNURefAlt
	case dwarf.ClassReferenceSig:
		a.Form = die.FormRefSig8
	case dwarf.ClassBlock:
		a.Form = die.FormBlock
	case dwarf.ClassExprLoc:
		a.Form = die.FormExprloc
	default:
		a.Form = die.FormSecOffset
	}
	return a
}
