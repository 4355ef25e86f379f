package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/dwarfscope/internal/cli/helpers"
	"github.com/coral-mesh/dwarfscope/internal/config"
)

func runConfig(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()

	cmd := NewConfigCmd(&helpers.GlobalOptions{ConfigPath: path})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestInitViewValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dwarfscope", "config.yaml")

	out, err := runConfig(t, path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = runConfig(t, path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runConfig(t, path, "init", "--force")
	require.NoError(t, err)

	t.Setenv("DWARFSCOPE_CACHE_MAX_IMAGES", "2")
	out, err = runConfig(t, path, "view")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 2, cfg.Cache.MaxImages, "environment overrides are shown")
	assert.Equal(t, config.Default().Locator, cfg.Locator)

	out, err = runConfig(t, path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidate_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, &config.Config{
		Log:     config.LogConfig{Level: "loud"},
		Cache:   config.CacheConfig{MaxImages: 1},
		Locator: config.LocatorConfig{MaxDepth: 1},
	}))

	_, err := runConfig(t, path, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestSchemaCmd(t *testing.T) {
	out, err := runConfig(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"max_depth"`)
}
