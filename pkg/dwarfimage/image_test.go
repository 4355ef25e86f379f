package dwarfimage

import (
	"debug/dwarf"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/dwarfscope/internal/testutil"
	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// openSelf opens the running test binary, skipping when it was built
// without DWARF (e.g. -ldflags=-w).
func openSelf(t *testing.T) *Image {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	img, err := Open(exe, testutil.NewTestLogger(t))
	if errors.Is(err, ErrNoDebugInfo) || errors.Is(err, ErrUnknownFormat) {
		t.Skipf("test binary has no usable DWARF: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = img.Release() })
	return img
}

// firstStructWithMember finds a named struct that has a named member.
func firstStructWithMember(t *testing.T, img *Image) (die.Entry, die.Entry) {
	t.Helper()

	units, err := img.Units()
	require.NoError(t, err)
	for _, u := range units {
		top, err := u.TopLevel()
		require.NoError(t, err)
		for _, root := range top {
			for e := range root.Children() {
				if e.Tag() != dwarf.TagStructType {
					continue
				}
				if _, ok := die.NameOf(e); !ok {
					continue
				}
				for m := range e.Children() {
					if _, ok := die.NameOf(m); ok && m.Tag() == dwarf.TagMember {
						return e, m
					}
				}
			}
		}
	}
	t.Skip("no struct with members in the test binary")
	return nil, nil
}

func TestOpen_SelfBinary(t *testing.T) {
	img := openSelf(t)

	assert.NotEmpty(t, img.ID().String())
	assert.Contains(t, []string{"elf", "macho", "pe"}, img.Format())

	roots, err := die.RootEntries(img)
	require.NoError(t, err)
	require.NotEmpty(t, roots)
	for _, root := range roots {
		assert.True(t, die.IsUnitTag(root.Tag()), root.Tag().String())
		assert.Equal(t, die.NoParent, root.ParentOffset())
		assert.Equal(t, root.Offset(), root.Unit().Offset())
	}
}

func TestImage_NamesAndLookup(t *testing.T) {
	img := openSelf(t)
	s, m := firstStructWithMember(t, img)

	name, err := die.FullName(m)
	require.NoError(t, err)
	assert.Equal(t, []string{die.LocalName(s), die.LocalName(m)}, name)

	again, err := img.EntryAt(m.Offset())
	require.NoError(t, err)
	assert.True(t, die.Equal(again, m))
	assert.Same(t, m.(*entry), again.(*entry))

	def, err := die.NewLocator(img, testutil.NewTestLogger(t)).FindDefinition(s)
	require.NoError(t, err)
	require.NotNil(t, def)
	wantKey, err := die.TypeKeyOf(s)
	require.NoError(t, err)
	gotKey, err := die.TypeKeyOf(def)
	require.NoError(t, err)
	assert.Equal(t, wantKey, gotKey)
}

func TestImage_DecodeAttributes(t *testing.T) {
	img := openSelf(t)
	s, _ := firstStructWithMember(t, img)

	dec := die.NewDecoder(img, testutil.NewTestLogger(t))

	v, err := dec.Value(s, dwarf.AttrName)
	require.NoError(t, err)
	assert.Equal(t, die.String(die.LocalName(s)), v)

	v, err = dec.Value(s, dwarf.AttrByteSize)
	require.NoError(t, err)
	size, ok := v.(die.Signed)
	require.True(t, ok, "byte size decodes as a constant, got %T", v)
	assert.GreaterOrEqual(t, int64(size), int64(0))

	v, err = dec.Value(s, dwarf.AttrLowpc)
	require.NoError(t, err)
	assert.Nil(t, v, "structs carry no low_pc")
}

func TestImage_EntryAtOutOfRange(t *testing.T) {
	img := openSelf(t)

	_, err := img.EntryAt(^dwarf.Offset(0) - 1)
	assert.ErrorIs(t, err, die.ErrBrokenReference)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("not an object file"), 0600))

	tests := []struct {
		name   string
		path   string
		target error
	}{
		{name: "missing file", path: filepath.Join(dir, "absent"), target: fs.ErrNotExist},
		{name: "not an object file", path: text, target: ErrUnknownFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path, testutil.NewTestLogger(t))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.path, loadErr.Path)
		})
	}
}

type countingCloser struct {
	closed int
}

func (c *countingCloser) Close() error {
	c.closed++
	return nil
}

func TestImage_RetainRelease(t *testing.T) {
	closer := &countingCloser{}
	img := New("/bin/fake", "elf", nil, closer, testutil.NewTestLogger(t))

	require.NoError(t, img.Retain())
	require.NoError(t, img.Release())
	assert.False(t, img.Released())
	assert.Zero(t, closer.closed)

	require.NoError(t, img.Release())
	assert.True(t, img.Released())
	assert.Equal(t, 1, closer.closed)

	assert.ErrorIs(t, img.Release(), ErrReleased)
	assert.ErrorIs(t, img.Retain(), ErrReleased)
	assert.Equal(t, 1, closer.closed, "closed exactly once")

	_, err := img.Units()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = img.EntryAt(0)
	assert.ErrorIs(t, err, ErrReleased)
}

func TestNew_DistinctIDs(t *testing.T) {
	a := New("/bin/a", "elf", nil, nil, testutil.NewTestLogger(t))
	b := New("/bin/a", "elf", nil, nil, testutil.NewTestLogger(t))

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "/bin/a", a.Path())
	assert.NoError(t, a.Release())
}

func TestConvertField(t *testing.T) {
	tests := []struct {
		class dwarf.Class
		want  die.Form
	}{
		{dwarf.ClassAddress, die.FormAddr},
		{dwarf.ClassConstant, die.FormSdata},
		{dwarf.ClassFlag, die.FormFlag},
		{dwarf.ClassString, die.FormString},
		{dwarf.ClassStringAlt, die.FormGNUStrpAlt},
		{dwarf.ClassReference, die.FormRefAddr},
		{dwarf.ClassReferenceAlt, die.FormGNURefAlt},
		{dwarf.ClassReferenceSig, die.FormRefSig8},
		{dwarf.ClassBlock, die.FormBlock},
		{dwarf.ClassExprLoc, die.FormExprloc},
		{dwarf.ClassLinePtr, die.FormSecOffset},
	}

	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			a := convertField(dwarf.Field{Attr: dwarf.AttrName, Val: "v", Class: tt.class})
			assert.Equal(t, tt.want, a.Form)
			assert.Equal(t, "v", a.Val)
		})
	}
}
