package die

import (
	"debug/dwarf"
	"errors"
	"strconv"
	"strings"
)

// DefaultMaxDepth bounds parent-chain walks and definition searches.
const DefaultMaxDepth = 256

// Scope is the separator used when a qualified name is rendered as text.
const Scope = "::"

// LocalName returns the DW_AT_name of e, or a placeholder derived from its
// offset when the entry has no usable name. Placeholders are unique per
// offset, so anonymous structs and unions stay distinguishable.
func LocalName(e Entry) string {
	if name, ok := NameOf(e); ok {
		return name
	}
	return "anon_" + strconv.FormatUint(uint64(e.Offset()), 10)
}

// NameOf returns the string value of DW_AT_name, if present.
func NameOf(e Entry) (string, bool) {
	a, ok := e.Attribute(dwarf.AttrName)
	if !ok {
		return "", false
	}
	s, ok := a.Val.(string)
	return s, ok
}

// FullName returns the qualified name of e, outermost scope first. Only
// struct, class, union and namespace ancestors contribute a segment; the
// entry itself always does. The result is never empty.
func FullName(e Entry) ([]string, error) {
	return fullName(e, DefaultMaxDepth)
}

// QualifiedName renders FullName joined with "::".
func QualifiedName(e Entry) (string, error) {
	parts, err := FullName(e)
	if err != nil {
		return "", err
	}
	return strings.Join(parts, Scope), nil
}

// SplitName splits a "::"-separated qualified name into its segments.
func SplitName(name string) []string {
	return strings.Split(name, Scope)
}

func fullName(e Entry, maxDepth int) ([]string, error) {
	chain, err := ancestors(e, maxDepth)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(chain)+1)
	for i := len(chain) - 1; i >= 0; i-- {
		if IsNamespaceTag(chain[i].Tag()) {
			names = append(names, LocalName(chain[i]))
		}
	}
	return append(names, LocalName(e)), nil
}

// ancestors returns the enclosing entries of e, innermost first. The walk
// fails on a self-referential chain, an offset that does not resolve in the
// unit, or a chain deeper than maxDepth.
func ancestors(e Entry, maxDepth int) ([]Entry, error) {
	var chain []Entry
	seen := map[dwarf.Offset]struct{}{e.Offset(): {}}
	unit := e.Unit()

	for cur := e; cur.ParentOffset() != NoParent; {
		parentOff := cur.ParentOffset()
		if _, dup := seen[parentOff]; dup {
			return nil, &ReferenceError{Unit: unit.Offset(), Offset: parentOff, Reason: "cyclic parent chain"}
		}
		if len(chain) >= maxDepth {
			return nil, &ReferenceError{Unit: unit.Offset(), Offset: parentOff, Reason: "parent chain too deep"}
		}

		parent, err := unit.EntryAt(parentOff)
		if err != nil {
			if errors.Is(err, ErrBrokenReference) {
				return nil, err
			}
			return nil, &ReferenceError{Unit: unit.Offset(), Offset: parentOff, Reason: err.Error()}
		}
		seen[parentOff] = struct{}{}
		chain = append(chain, parent)
		cur = parent
	}
	return chain, nil
}
