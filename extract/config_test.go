package extract

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig(`
output = "out"
mode = "keep"
workers = 3
convert = false

[rpa]
key_override = 0x42424242

[skip]
extensions = [".PNG", "ogg"]
`)

	require.NoError(t, err)
	require.Equal(t, "out", config.Output)
	require.Equal(t, ModeKeep, config.Mode)
	require.Equal(t, 3, config.Workers)
	require.False(t, config.Convert)
	require.NotNil(t, config.RPA.KeyOverride)
	require.Equal(t, uint64(0x42424242), *config.RPA.KeyOverride)
	require.Equal(t, []string{"png", "ogg"}, config.Skip.Extensions)

	require.True(t, config.Skips("PNG"))
	require.True(t, config.Skips("ogg"))
	require.False(t, config.Skips("rpyc"))
}

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig(`output = "somewhere"`)
	require.NoError(t, err)

	require.Equal(t, "somewhere", config.Output)
	require.Equal(t, ModeOverwrite, config.Mode)
	require.Equal(t, runtime.NumCPU(), config.Workers)
	require.True(t, config.Convert)
	require.Nil(t, config.RPA.KeyOverride)
}

func TestParseConfigRejects(t *testing.T) {
	_, err := ParseConfig(`mode = "merge"`)
	require.ErrorContains(t, err, `unknown mode "merge"`)

	_, err = ParseConfig(`output = ""`)
	require.Error(t, err)

	_, err = ParseConfig(`workers = "many"`)
	require.Error(t, err)
}

func TestValidateFixesWorkers(t *testing.T) {
	config := DefaultConfig()
	config.Workers = 0

	require.NoError(t, config.Validate())
	require.Equal(t, runtime.NumCPU(), config.Workers)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unpack.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"clean\"\n"), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ModeClean, config.Mode)
	require.Equal(t, "extracted", config.Output)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
