package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMainConfigMissingOptionalFileUsesDefaults(t *testing.T) {
	cfg, err := LoadMainConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, 20000, cfg.AdmissionScanLimit)
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe", cfg.NFeNamespace)
	assert.Equal(t, "não possui", cfg.MissingPlaceholder)
	assert.Equal(t, float64(120), cfg.MaxColumnWidth)
	assert.Equal(t, float64(80), cfg.RawDumpMaxColumnWidth)
}

func TestLoadMainConfigMissingRequiredFile(t *testing.T) {
	_, err := LoadMainConfig(filepath.Join(t.TempDir(), "nope.yaml"), true)
	require.Error(t, err)
}

func TestLoadMainConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "output_dir: out\nmax_files: 3\nlog_level: debug\nmissing_placeholder: \"-\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadMainConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 3, cfg.MaxFiles)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "-", cfg.MissingPlaceholder)
	assert.Equal(t, "ConversorNFe_{timestamp}.xlsx", cfg.OutputNameFormat)
}

func TestLoadMainConfigTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	scratch := filepath.Join(dir, "scratch")
	body := "max_column_width = 60.0\nscratch_dir = \"" + filepath.ToSlash(scratch) + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadMainConfig(path, true)
	require.NoError(t, err)

	assert.Equal(t, float64(60), cfg.MaxColumnWidth)
	assert.DirExists(t, scratch)
}

func TestLoadMainConfigRejectsUnknownLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o644))

	_, err := LoadMainConfig(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}
