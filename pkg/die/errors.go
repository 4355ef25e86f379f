package die

import (
	"debug/dwarf"
	"errors"
	"fmt"
)

var (
	// ErrBrokenReference is returned when a parent pointer or a reference
	// attribute names an offset that does not resolve to an entry.
	ErrBrokenReference = errors.New("broken reference")

	// ErrUnsupportedForm is returned when an attribute is stored with a
	// form the decoder has no handler for.
	ErrUnsupportedForm = errors.New("unsupported attribute form")
)

// ReferenceError describes an offset that could not be resolved.
type ReferenceError struct {
	Unit   dwarf.Offset
	Offset dwarf.Offset
	Reason string
}

func (e *ReferenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("broken reference to offset %#x in unit %#x: %s", e.Offset, e.Unit, e.Reason)
	}
	return fmt.Sprintf("broken reference to offset %#x in unit %#x", e.Offset, e.Unit)
}

func (e *ReferenceError) Unwrap() error {
	return ErrBrokenReference
}

// FormError describes an attribute the decoder could not interpret.
type FormError struct {
	Attr   dwarf.Attr
	Form   Form
	Offset dwarf.Offset
	Reason string
}

func (e *FormError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no handler for form %s in attribute %s of entry %#x: %s", e.Form, e.Attr, e.Offset, e.Reason)
	}
	return fmt.Sprintf("no handler for form %s in attribute %s of entry %#x", e.Form, e.Attr, e.Offset)
}

func (e *FormError) Unwrap() error {
	return ErrUnsupportedForm
}
