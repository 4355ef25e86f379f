package dwarfimage

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/dwarfscope/pkg/die"
)

var (
	// ErrNoDebugInfo is returned when an object file loads but carries no
	// DWARF sections.
	ErrNoDebugInfo = errors.New("no DWARF debug information")

	// ErrUnknownFormat is returned for files that are not ELF, Mach-O or PE.
	ErrUnknownFormat = errors.New("unrecognized object file format")

	// ErrReleased is returned when an image is used after its last
	// reference was released.
	ErrReleased = errors.New("image already released")
)

// LoadError reports a binary that could not be opened or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Image is an opened object file together with its DWARF data.
//
// An Image starts with one reference, owned by whoever opened it. Anyone
// keeping it beyond that owner's lifetime, such as a search running on
// another goroutine, must Retain it first and Release it when done.
type Image struct {
	id     uuid.UUID
	path   string
	format string
	data   *dwarf.Data
	closer io.Closer
	logger zerolog.Logger

	refs atomic.Int32

	unitsOnce sync.Once
	units     []*unit
	unitsErr  error
}

var _ die.Info = (*Image)(nil)

// Open loads the object file at path (ELF, Mach-O or PE) and its DWARF
// data. Failures are reported as *LoadError.
func Open(path string, logger zerolog.Logger) (*Image, error) {
	data, closer, format, err := openObject(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	img := New(path, format, data, closer, logger)
	img.logger.Info().
		Str("binary", path).
		Str("format", format).
		Msg("Opened image with DWARF data")
	return img, nil
}

// New wraps already-loaded DWARF data. closer may be nil.
func New(path, format string, data *dwarf.Data, closer io.Closer, logger zerolog.Logger) *Image {
	id := uuid.New()
	img := &Image{
		id:     id,
		path:   path,
		format: format,
		data:   data,
		closer: closer,
		logger: logger.With().
			Str("component", "dwarf-image").
			Str("image_id", id.String()).
			Logger(),
	}
	img.refs.Store(1)
	return img
}

func openObject(path string) (*dwarf.Data, io.Closer, string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, "", err
	}

	if f, err := elf.Open(path); err == nil {
		data, err := f.DWARF()
		if err != nil {
			f.Close() // nolint:errcheck
			return nil, nil, "", fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
		}
		return data, f, "elf", nil
	}

	if f, err := macho.Open(path); err == nil {
		data, err := f.DWARF()
		if err != nil {
			f.Close() // nolint:errcheck
			return nil, nil, "", fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
		}
		return data, f, "macho", nil
	}

	if f, err := pe.Open(path); err == nil {
		data, err := f.DWARF()
		if err != nil {
			f.Close() // nolint:errcheck
			return nil, nil, "", fmt.Errorf("%w: %v", ErrNoDebugInfo, err)
		}
		return data, f, "pe", nil
	}

	return nil, nil, "", ErrUnknownFormat
}

// ID is unique to this opening of the file.
func (img *Image) ID() uuid.UUID {
	return img.id
}

// Path returns the file the image was loaded from.
func (img *Image) Path() string {
	return img.path
}

// Format returns "elf", "macho" or "pe".
func (img *Image) Format() string {
	return img.format
}

// Retain adds a reference. It fails once the image has been released.
func (img *Image) Retain() error {
	for {
		n := img.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if img.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and closes the file when none remain.
func (img *Image) Release() error {
	for {
		n := img.refs.Load()
		if n <= 0 {
			return ErrReleased
		}
		if !img.refs.CompareAndSwap(n, n-1) {
			continue
		}
		if n > 1 {
			return nil
		}

		img.logger.Debug().Str("binary", img.path).Msg("Releasing image")
		if img.closer != nil {
			return img.closer.Close()
		}
		return nil
	}
}

// Released reports whether the last reference has been dropped.
func (img *Image) Released() bool {
	return img.refs.Load() <= 0
}

// Units lists the image's units. Only unit boundaries are read here; each
// unit decodes its entries the first time they are asked for.
func (img *Image) Units() ([]die.Unit, error) {
	if img.Released() {
		return nil, ErrReleased
	}

	img.unitsOnce.Do(img.loadUnits)
	if img.unitsErr != nil {
		return nil, img.unitsErr
	}

	out := make([]die.Unit, len(img.units))
	for i, u := range img.units {
		out[i] = u
	}
	return out, nil
}

// EntryAt resolves a section offset to the entry that starts there.
func (img *Image) EntryAt(off dwarf.Offset) (die.Entry, error) {
	if img.Released() {
		return nil, ErrReleased
	}

	img.unitsOnce.Do(img.loadUnits)
	if img.unitsErr != nil {
		return nil, img.unitsErr
	}

	// Units are enumerated in section order; the owner is the last unit
	// starting at or before off.
	i := sort.Search(len(img.units), func(i int) bool {
		return img.units[i].offset > off
	})
	if i == 0 {
		return nil, &die.ReferenceError{Unit: die.NoParent, Offset: off, Reason: "offset precedes every unit"}
	}
	return img.units[i-1].EntryAt(off)
}

func (img *Image) loadUnits() {
	r := img.data.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			img.unitsErr = fmt.Errorf("failed to enumerate units after %d: %w", len(img.units), err)
			return
		}
		if e == nil {
			break
		}
		if e.Tag == 0 {
			continue
		}

		img.units = append(img.units, &unit{img: img, offset: e.Offset})
		if e.Children {
			r.SkipChildren()
		}
	}

	img.logger.Debug().
		Int("units", len(img.units)).
		Msg("Enumerated units")
}
