package lookup

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/dwarfscope/internal/testutil"
	"github.com/coral-mesh/dwarfscope/pkg/die"
)

// program declares N::S, N::g and N::helper in a.cc and defines them in
// b.cc, which also carries N::S::Inner and a typedef.
const program = `
units:
  - entries:
      - tag: compile_unit
        name: a.cc
        children:
          - tag: namespace
            name: N
            children:
              - tag: structure_type
                name: S
                declaration: true
              - tag: variable
                name: g
                declaration: true
              - tag: subprogram
                name: helper
                declaration: true
          - tag: subprogram
            name: main
  - entries:
      - tag: compile_unit
        name: b.cc
        children:
          - tag: namespace
            name: N
            children:
              - tag: structure_type
                name: S
                children:
                  - tag: structure_type
                    name: Inner
              - tag: subprogram
                name: helper
              - tag: variable
                name: g
          - tag: typedef
            name: word
`

type reported struct {
	msgs []string
}

func (r *reported) report(msg string) {
	r.msgs = append(r.msgs, msg)
}

func newTestResolver(t *testing.T, sources ...Source) (*Resolver, *reported) {
	t.Helper()
	rep := &reported{}
	return NewResolver(testutil.NewTestLogger(t), sources, WithReporter(rep.report)), rep
}

func TestResolver_Binds(t *testing.T) {
	info := testutil.LoadFixture(t, program)
	r, rep := newTestResolver(t, Source{Name: "prog", Info: info})

	require.NoError(t, r.AddType("N::S"))
	require.NoError(t, r.AddType("N::S::Inner"))
	require.NoError(t, r.AddVariable("N::g"))
	require.NoError(t, r.AddFunction("N::helper"))
	require.NoError(t, r.AddFunction("main"))
	require.NoError(t, r.AddType("word"))

	require.NoError(t, r.Resolve())
	assert.Empty(t, rep.msgs)
	assert.Empty(t, r.Unresolved())

	bindings := r.Bindings()
	require.Len(t, bindings, 6)

	tests := []struct {
		name string
		kind Kind
		tag  dwarf.Tag
		decl bool
	}{
		// Declarations of types and functions are skipped.
		{"N::S", KindType, dwarf.TagStructType, false},
		{"N::S::Inner", KindType, dwarf.TagStructType, false},
		// Variables bind on their first occurrence, declaration or not.
		{"N::g", KindVariable, dwarf.TagVariable, true},
		{"N::helper", KindFunction, dwarf.TagSubprogram, false},
		{"main", KindFunction, dwarf.TagSubprogram, false},
		{"word", KindType, dwarf.TagTypedef, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bindings[i]
			assert.Equal(t, tt.name, b.Name)
			assert.Equal(t, tt.kind, b.Kind)
			assert.Equal(t, "prog", b.Source)
			assert.Equal(t, tt.tag, b.Entry.Tag())
			assert.Equal(t, tt.decl, die.IsDeclaration(b.Entry))
			assert.Equal(t, die.TypeKey{Tag: tt.tag, Name: tt.name}, b.Key)
			assert.Same(t, testutil.FindEntry(t, info, tt.name, tt.decl), b.Entry)
		})
	}
}

func TestResolver_ReportsUnresolved(t *testing.T) {
	info := testutil.LoadFixture(t, program)
	r, rep := newTestResolver(t, Source{Name: "prog", Info: info})

	require.NoError(t, r.AddType("N::S"))
	require.NoError(t, r.AddType("missing::X"))
	require.NoError(t, r.AddVariable("nope"))
	require.NoError(t, r.AddFunction("N::S"))

	require.NoError(t, r.Resolve())

	assert.Equal(t, []string{
		"no type for missing::X",
		"variable nope not found",
		"function N::S not found",
	}, rep.msgs)
	assert.Equal(t, 3, r.Problems())
	assert.Equal(t, []Request{
		{Kind: KindType, Name: "missing::X"},
		{Kind: KindVariable, Name: "nope"},
		{Kind: KindFunction, Name: "N::S"},
	}, r.Unresolved())
	require.Len(t, r.Bindings(), 1)
}

func TestResolver_DuplicateRequest(t *testing.T) {
	r, rep := newTestResolver(t)

	require.NoError(t, r.AddType("N::S"))
	require.NoError(t, r.AddVariable("N::S"), "same name with another kind is allowed")

	err := r.AddType("N::S")
	require.ErrorIs(t, err, ErrDuplicateRequest)
	assert.Equal(t, []string{"duplicate name: N::S"}, rep.msgs)
	assert.Equal(t, 1, r.Problems())
	assert.Len(t, r.Unresolved(), 2)
}

func TestResolver_Scopes(t *testing.T) {
	r, _ := newTestResolver(t)

	require.NoError(t, r.AddType("N::S::Inner"))
	require.NoError(t, r.AddType("missing::X"))
	require.NoError(t, r.AddType("N::S"))
	require.NoError(t, r.AddFunction("main"))

	assert.Equal(t, []string{"N", "N::S", "missing"}, r.Scopes())
}

// countingInfo records how far a walk got into the wrapped Info.
type countingInfo struct {
	die.Info
	unitCalls int
	topCalls  map[dwarf.Offset]int
}

type countingUnit struct {
	die.Unit
	info *countingInfo
}

func (c *countingInfo) Units() ([]die.Unit, error) {
	c.unitCalls++
	units, err := c.Info.Units()
	if err != nil {
		return nil, err
	}
	out := make([]die.Unit, len(units))
	for i, u := range units {
		out[i] = countingUnit{Unit: u, info: c}
	}
	return out, nil
}

func (u countingUnit) TopLevel() ([]die.Entry, error) {
	u.info.topCalls[u.Offset()]++
	return u.Unit.TopLevel()
}

func TestResolver_StopsWhenAllBound(t *testing.T) {
	info := testutil.LoadFixture(t, program)
	first := &countingInfo{Info: info, topCalls: map[dwarf.Offset]int{}}
	second := &countingInfo{Info: info, topCalls: map[dwarf.Offset]int{}}

	r := NewResolver(testutil.NewTestLoggerWithOutput(t), []Source{
		{Name: "first", Info: first},
		{Name: "second", Info: second},
	})
	require.NoError(t, r.AddFunction("main"))
	require.NoError(t, r.Resolve())

	assert.Zero(t, r.Problems())
	assert.Len(t, first.topCalls, 1, "only the first unit is read")
	assert.Zero(t, second.unitCalls)
	assert.Equal(t, "first", r.Bindings()[0].Source)
}

func TestResolver_SearchesLaterSources(t *testing.T) {
	empty := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: empty.cc
	`)
	info := testutil.LoadFixture(t, program)

	r, rep := newTestResolver(t,
		Source{Name: "empty", Info: empty},
		Source{Name: "prog", Info: info},
	)
	require.NoError(t, r.AddType("word"))
	require.NoError(t, r.Resolve())

	assert.Empty(t, rep.msgs)
	require.Len(t, r.Bindings(), 1)
	assert.Equal(t, "prog", r.Bindings()[0].Source)
}

func TestResolver_Definition(t *testing.T) {
	info := testutil.LoadFixture(t, program)
	r, rep := newTestResolver(t, Source{Name: "prog", Info: info})

	t.Run("declaration is followed", func(t *testing.T) {
		decl := testutil.FindEntry(t, info, "N::g", true)
		def, err := r.Definition(decl)
		require.NoError(t, err)
		assert.Same(t, testutil.FindEntry(t, info, "N::g", false), def)
	})

	t.Run("definition is returned as is", func(t *testing.T) {
		def := testutil.FindEntry(t, info, "word", false)
		got, err := r.Definition(def)
		require.NoError(t, err)
		assert.Same(t, def, got)
	})

	assert.Empty(t, rep.msgs)
}

func TestResolver_DefinitionFallsBackToDeclaration(t *testing.T) {
	info := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: a.cc
		        children:
		          - tag: namespace
		            name: ext
		            children:
		              - tag: class_type
		                name: Opaque
		                declaration: true
	`)
	r, rep := newTestResolver(t, Source{Name: "prog", Info: info})

	decl := testutil.FindEntry(t, info, "ext::Opaque", true)
	got, err := r.Definition(decl)
	require.NoError(t, err)
	assert.Same(t, decl, got)
	assert.Equal(t, []string{"failed to find definition for ext::Opaque"}, rep.msgs)
	assert.Equal(t, 1, r.Problems())
}

func TestDefinition_FirstLocatorWins(t *testing.T) {
	declOnly := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: a.cc
		        children:
		          - tag: structure_type
		            name: Conf
		            declaration: true
	`)
	defA := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: liba.cc
		        children:
		          - tag: structure_type
		            name: Conf
	`)
	defB := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: libb.cc
		        children:
		          - tag: structure_type
		            name: Conf
	`)

	logger := testutil.NewTestLogger(t)
	locators := []*die.Locator{
		die.NewLocator(declOnly, logger),
		die.NewLocator(defA, logger),
		die.NewLocator(defB, logger),
	}
	decl := testutil.FindEntry(t, declOnly, "Conf", true)

	def, found, err := Definition(locators, decl)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Same(t, testutil.FindEntry(t, defA, "Conf", false), def)

	def, found, err = Definition(locators[:1], decl)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Same(t, decl, def)
}

func TestDefinition_BrokenDeclaration(t *testing.T) {
	info := testutil.LoadFixture(t, `
		units:
		  - entries:
		      - tag: compile_unit
		        name: a.cc
		      - tag: structure_type
		        name: Lost
		        declaration: true
		        offset: 500
		        parent: 900
	`)
	decl, err := info.EntryAt(500)
	require.NoError(t, err)

	locators := []*die.Locator{die.NewLocator(info, testutil.NewTestLogger(t))}
	_, _, err = Definition(locators, decl)
	require.Error(t, err)
	assert.ErrorIs(t, err, die.ErrBrokenReference)
}
