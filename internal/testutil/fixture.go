package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/dwarfscope/pkg/die"
	"github.com/coral-mesh/dwarfscope/pkg/die/memdie"
)

// LoadFixture builds an entry tree from an inline YAML fixture. Leading tabs
// are stripped so fixtures can be indented with the test code.
func LoadFixture(t *testing.T, doc string) *memdie.Info {
	t.Helper()

	info, err := memdie.Load(strings.NewReader(dedent(doc)))
	require.NoError(t, err)
	return info
}

// WriteFixture writes an inline YAML fixture to a temporary file and
// returns its path.
func WriteFixture(t *testing.T, doc string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dedent(doc)), 0600))
	return path
}

func dedent(doc string) string {
	lines := strings.Split(doc, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimLeft(line, "\t")
	}
	return strings.Join(lines, "\n")
}

// FindEntry returns the first entry of info, in unit then stream order,
// whose qualified name is name and whose declaration marker matches decl.
func FindEntry(t *testing.T, info die.Info, name string, decl bool) die.Entry {
	t.Helper()

	units, err := info.Units()
	require.NoError(t, err)

	var found die.Entry
	var visit func(e die.Entry) bool
	visit = func(e die.Entry) bool {
		if !die.IsUnitTag(e.Tag()) && die.IsDeclaration(e) == decl {
			if q, err := die.QualifiedName(e); err == nil && q == name {
				found = e
				return true
			}
		}
		for c := range e.Children() {
			if visit(c) {
				return true
			}
		}
		return false
	}

	for _, u := range units {
		top, err := u.TopLevel()
		require.NoError(t, err)
		for _, e := range top {
			if visit(e) {
				return found
			}
		}
	}
	require.Failf(t, "entry not found", "no entry named %q (declaration=%v)", name, decl)
	return nil
}
