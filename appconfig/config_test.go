package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	v := NewViper()
	v.Set("home", home)

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "settings.toml"), cfg.SettingsFile)
	assert.Equal(t, filepath.Join(home, "settings.db"), cfg.SettingsDB)
	assert.Equal(t, "parquet", cfg.Format)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
home = "`+filepath.ToSlash(dir)+`"
format = "CSV"
settings_db = ""
settings_file = "/etc/fitview/options.toml"
`), 0o644))
	t.Setenv("FITVIEW_CONCURRENCY", "8")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Format)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Empty(t, cfg.SettingsDB)
	assert.Equal(t, "/etc/fitview/options.toml", cfg.SettingsFile)
}

func TestLoadValidates(t *testing.T) {
	tests := map[string]any{
		"format":      "xlsx",
		"concurrency": 0,
		"log_level":   "loud",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			v := NewViper()
			v.Set("home", t.TempDir())
			v.Set(key, value)
			_, err := Load(v, "")
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
