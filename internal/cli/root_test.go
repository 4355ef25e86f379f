package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/dwarfscope/internal/cli/inspect"
	"github.com/coral-mesh/dwarfscope/internal/testutil"
	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/version"
)

const widgets = `
	units:
	  - entries:
	      - tag: compile_unit
	        name: app.cc
	        children:
	          - tag: namespace
	            name: ui
	            children:
	              - tag: class_type
	                name: Widget
	                declaration: true
	              - tag: class_type
	                name: Missing
	                declaration: true
	              - tag: variable
	                name: theme
	                declaration: true
	          - tag: structure_type
	            children:
	              - tag: member
	                name: field
	  - entries:
	      - tag: compile_unit
	        name: widget.cc
	        children:
	          - id: int
	            tag: base_type
	            name: int
	            attrs:
	              - {attr: byte_size, value: 4}
	              - {attr: encoding, form: data1, value: 5}
	          - tag: namespace
	            name: ui
	            children:
	              - tag: class_type
	                name: Widget
	                attrs:
	                  - {attr: byte_size, value: 16}
	                  - {attr: location, form: exprloc, value: "AQI="}
	              - tag: variable
	                name: theme
	                attrs:
	                  - {attr: type, ref: int}
	              - tag: subprogram
	                name: draw
`

// execute runs the root command with a fixture target and returns stdout
// and stderr.
func execute(t *testing.T, fixture string, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	base := []string{
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--log-level", "disabled",
	}
	if fixture != "" {
		base = append(base, "--fixture", testutil.WriteFixture(t, fixture))
	}
	cmd.SetArgs(append(args, base...))

	ctx, cancel := testutil.NewTestContext()
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func offsetOf(t *testing.T, name string, decl bool) string {
	t.Helper()
	info := testutil.LoadFixture(t, widgets)
	return fmt.Sprintf("%#x", uint32(testutil.FindEntry(t, info, name, decl).Offset()))
}

func decode[T any](t *testing.T, out string) []T {
	t.Helper()
	var rows []T
	require.NoError(t, json.Unmarshal([]byte(out), &rows), out)
	return rows
}

func TestUnitsCmd(t *testing.T) {
	out, _, err := execute(t, widgets, "units", "-o", "json")
	require.NoError(t, err)

	rows := decode[inspect.UnitRow](t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "app.cc", rows[0].Name)
	assert.Equal(t, "widget.cc", rows[1].Name)
	assert.Equal(t, "CompileUnit", rows[0].Tag)
}

func TestNamesCmd(t *testing.T) {
	out, _, err := execute(t, widgets, "names", "-o", "json")
	require.NoError(t, err)

	var names []string
	for _, row := range decode[inspect.NameRow](t, out) {
		names = append(names, row.Name)
	}
	assert.Contains(t, names, "ui::Widget")
	assert.Contains(t, names, "ui::theme")
	assert.Contains(t, names, "ui::draw")

	var anon []string
	for _, name := range names {
		if strings.HasPrefix(name, "anon_") {
			anon = append(anon, name)
		}
	}
	require.Len(t, anon, 2, "the anonymous struct and its member")
	assert.Equal(t, anon[0]+die.Scope+"field", anon[1])
	assert.NotContains(t, names, "app.cc", "unit roots are not listed")
}

func TestNamesCmd_TagFilter(t *testing.T) {
	out, _, err := execute(t, widgets, "names", "--tag", "class", "-o", "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "SOURCE,OFFSET,TAG,NAME", lines[0])
	for _, line := range lines[1:] {
		assert.Contains(t, line, ",ClassType,ui::")
	}
}

func TestDefineCmd(t *testing.T) {
	out, _, err := execute(t, widgets, "define", "ui::Widget", "-o", "json")
	require.NoError(t, err)

	rows := decode[inspect.DefineRow](t, out)
	require.Len(t, rows, 1)
	assert.Equal(t, offsetOf(t, "ui::Widget", true), rows[0].Offset)
	assert.Equal(t, offsetOf(t, "ui::Widget", false), rows[0].Definition)
	assert.Equal(t, "ClassType", rows[0].Tag)
	assert.NotEmpty(t, rows[0].DefinedIn)

	parallel, _, err := execute(t, widgets, "define", "--parallel", "ui::Widget", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, rows, decode[inspect.DefineRow](t, parallel))
}

func TestDefineCmd_NoDefinitionIsNotAnError(t *testing.T) {
	out, _, err := execute(t, widgets, "define", "ui::Missing", "-o", "json")
	require.NoError(t, err)

	rows := decode[inspect.DefineRow](t, out)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Definition)
	assert.Empty(t, rows[0].DefinedIn)
}

func TestDefineCmd_TextOutput(t *testing.T) {
	out, _, err := execute(t, widgets, "define", "ui::Widget")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^SOURCE\s+DECLARATION\s+TAG\s+NAME\s+DEFINITION\s+DEFINED IN$`, lines[0])
	assert.Contains(t, lines[1], "ui::Widget")
}

func TestAttrsCmd(t *testing.T) {
	t.Run("decoded values", func(t *testing.T) {
		out, _, err := execute(t, widgets, "attrs", offsetOf(t, "int", false), "-o", "json")
		require.NoError(t, err)

		rows := decode[inspect.AttrRow](t, out)
		require.Len(t, rows, 3)
		assert.Equal(t, `"int"`, rows[0].Value)
		assert.Equal(t, "4", rows[1].Value)
		assert.Equal(t, "5", rows[2].Value)
	})

	t.Run("reference", func(t *testing.T) {
		out, _, err := execute(t, widgets, "attrs", offsetOf(t, "ui::theme", false), "-o", "json")
		require.NoError(t, err)

		rows := decode[inspect.AttrRow](t, out)
		require.Len(t, rows, 2)
		assert.Equal(t, offsetOf(t, "int", false)+" (BaseType int)", rows[1].Value)
	})

	t.Run("unsupported form", func(t *testing.T) {
		out, _, err := execute(t, widgets, "attrs", offsetOf(t, "ui::Widget", false), "-o", "json")
		require.NoError(t, err)

		rows := decode[inspect.AttrRow](t, out)
		require.Len(t, rows, 3)
		assert.Contains(t, rows[2].Value, "no handler for form")
	})

	t.Run("bad offset", func(t *testing.T) {
		_, _, err := execute(t, widgets, "attrs", "zz")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid offset")
	})

	t.Run("unknown offset", func(t *testing.T) {
		_, _, err := execute(t, widgets, "attrs", "0xffff")
		require.ErrorIs(t, err, die.ErrBrokenReference)
	})
}

func TestLookupCmd(t *testing.T) {
	out, stderr, err := execute(t, widgets, "lookup",
		"--type", "ui::Widget,ui::Nope",
		"--var", "ui::theme",
		"--func", "ui::draw",
		"-o", "json",
	)
	require.NoError(t, err)

	rows := decode[inspect.LookupRow](t, out)
	require.Len(t, rows, 4)

	byName := map[string]inspect.LookupRow{}
	for _, row := range rows {
		byName[row.Name] = row
	}
	assert.Equal(t, offsetOf(t, "ui::Widget", false), byName["ui::Widget"].Offset)
	// The extern declaration in app.cc is followed to its definition.
	assert.Equal(t, offsetOf(t, "ui::theme", false), byName["ui::theme"].Offset)
	assert.Equal(t, "Subprogram", byName["ui::draw"].Tag)

	nope := byName["ui::Nope"]
	assert.Equal(t, "type", nope.Kind)
	assert.Empty(t, nope.Offset)
	assert.Contains(t, stderr, "warning: no type for ui::Nope")
}

func TestLookupCmd_NothingRequested(t *testing.T) {
	_, _, err := execute(t, widgets, "lookup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to look up")
}

func TestCommands_RequireTarget(t *testing.T) {
	_, _, err := execute(t, "", "units")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no binary or --fixture given")
}

func TestCommands_FixtureAndBinary(t *testing.T) {
	_, _, err := execute(t, widgets, "units", "/bin/true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "given together with --fixture")
}

func TestCommands_InvalidFormat(t *testing.T) {
	_, _, err := execute(t, widgets, "units", "-o", "xml")
	require.Error(t, err)
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dwarfscope version "+version.Version)
}
