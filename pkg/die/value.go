package die

import (
	"debug/dwarf"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Value is a decoded attribute value. The concrete type is one of Address,
// Unsigned, Signed, String, Flag or Reference.
type Value interface {
	isValue()
}

// Address is an address-sized unsigned integer (DW_FORM_addr).
type Address uint64

// Unsigned is an unsigned constant.
type Unsigned uint64

// Signed is a signed constant.
type Signed int64

// String is an inline or string-pool string.
type String string

// Flag is an explicit or implicit boolean.
type Flag bool

// Reference points at another entry, possibly in a different unit.
type Reference struct {
	Entry Entry
}

func (Address) isValue()   {}
func (Unsigned) isValue()  {}
func (Signed) isValue()    {}
func (String) isValue()    {}
func (Flag) isValue()      {}
func (Reference) isValue() {}

// Decoder turns raw attributes into typed values.
type Decoder struct {
	info      Info
	alt       Info
	logger    zerolog.Logger
	anomalies atomic.Int64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithSupplementary sets the image that DW_FORM_GNU_ref_alt references
// point into (the dwz supplementary file). Without it those references
// fail with a *ReferenceError.
func WithSupplementary(alt Info) DecoderOption {
	return func(d *Decoder) {
		d.alt = alt
	}
}

// NewDecoder creates a decoder. info resolves section-relative references
// (DW_FORM_ref_addr); when nil, those resolve within the owning unit only.
func NewDecoder(info Info, logger zerolog.Logger, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		info:   info,
		logger: logger.With().Str("component", "attr-decoder").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Anomalies returns how many attributes failed to decode because of their
// form since the decoder was created.
func (d *Decoder) Anomalies() int64 {
	return d.anomalies.Load()
}

// Value decodes attribute attr of e.
//
// An absent attribute yields (nil, nil). A form without a handler yields a
// nil value and a *FormError; the anomaly is also logged so a caller that
// ignores the error still leaves a trace. An unresolvable reference yields
// a *ReferenceError.
func (d *Decoder) Value(e Entry, attr dwarf.Attr) (Value, error) {
	a, ok := e.Attribute(attr)
	if !ok {
		return nil, nil
	}

	v, err := d.decode(e, a)
	if err != nil {
		if fe, isForm := err.(*FormError); isForm {
			d.anomalies.Add(1)
			d.logger.Warn().
				Str("form", fe.Form.String()).
				Str("attr", attr.String()).
				Uint32("offset", uint32(e.Offset())).
				Msg(fe.Error())
		}
		return nil, err
	}
	return v, nil
}

func (d *Decoder) decode(e Entry, a Attribute) (Value, error) {
	switch a.Form {
	case FormAddr:
		u, ok := asUint64(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		return Address(u), nil

	case FormData1, FormData2, FormData4, FormData8, FormSdata, FormImplicitConst:
		i, ok := asInt64(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		return Signed(i), nil

	case FormUdata:
		u, ok := asUint64(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		return Unsigned(u), nil

	case FormString, FormStrp, FormLineStrp, FormStrx, FormGNUStrpAlt:
		s, ok := a.Val.(string)
		if !ok {
			return nil, mismatch(e, a)
		}
		return String(s), nil

	case FormRef1, FormRef2, FormRef4, FormRef8, FormRefUdata:
		off, ok := asOffset(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		target, err := e.Unit().EntryAt(off)
		if err != nil {
			return nil, err
		}
		return Reference{Entry: target}, nil

	case FormRefAddr:
		off, ok := asOffset(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		target, err := d.resolve(e, off)
		if err != nil {
			return nil, err
		}
		return Reference{Entry: target}, nil

	case FormGNURefAlt:
		off, ok := asOffset(a.Val)
		if !ok {
			return nil, mismatch(e, a)
		}
		if d.alt == nil {
			return nil, &ReferenceError{Unit: e.Unit().Offset(), Offset: off, Reason: "no supplementary image for DW_FORM_GNU_ref_alt"}
		}
		target, err := d.alt.EntryAt(off)
		if err != nil {
			return nil, err
		}
		return Reference{Entry: target}, nil

	case FormFlagPresent:
		return Flag(true), nil

	case FormFlag:
		switch v := a.Val.(type) {
		case bool:
			return Flag(v), nil
		default:
			i, ok := asInt64(a.Val)
			if !ok {
				return nil, mismatch(e, a)
			}
			return Flag(i != 0), nil
		}

	case FormBlock, FormBlock1, FormBlock2, FormBlock4, FormExprloc,
		FormIndirect, FormSecOffset, FormRefSig8, FormLoclistx, FormRnglistx:
		return nil, &FormError{Attr: a.Attr, Form: a.Form, Offset: e.Offset()}

	default:
		return nil, &FormError{Attr: a.Attr, Form: a.Form, Offset: e.Offset(), Reason: "unknown form"}
	}
}

// resolve looks a section-relative offset up in the owning unit first, then
// across the whole image.
func (d *Decoder) resolve(e Entry, off dwarf.Offset) (Entry, error) {
	if target, err := e.Unit().EntryAt(off); err == nil {
		return target, nil
	} else if d.info == nil {
		return nil, err
	}
	return d.info.EntryAt(off)
}

func mismatch(e Entry, a Attribute) *FormError {
	return &FormError{
		Attr:   a.Attr,
		Form:   a.Form,
		Offset: e.Offset(),
		Reason: fmt.Sprintf("unexpected payload %T", a.Val),
	}
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case dwarf.Offset:
		return uint64(n), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asOffset(v any) (dwarf.Offset, bool) {
	switch n := v.(type) {
	case dwarf.Offset:
		return n, true
	case uint64:
		return dwarf.Offset(n), true
	case int64:
		return dwarf.Offset(n), true
	case int:
		return dwarf.Offset(n), true
	default:
		return 0, false
	}
}
