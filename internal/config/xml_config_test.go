package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/models"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcforge.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLimits(), cfg.ModelLimits())
	assert.Equal(t, dialect.SchneiderM221, cfg.DefaultTarget())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "artifacts"), cfg.Storage.ArtifactDirectory)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<PLCForge>")
	assert.Contains(t, string(data), "<MaxInputBytes>67108864</MaxInputBytes>")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcforge.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<PLCForge>
  <Limits>
    <MaxInputBytes>1024</MaxInputBytes>
    <MaxPOUs>8</MaxPOUs>
  </Limits>
  <Document>
    <Author>Line 3</Author>
    <DefaultTarget>Rockwell-Logix</DefaultTarget>
    <SchneiderFirmware>legacy</SchneiderFirmware>
  </Document>
  <Server>
    <Port>9000</Port>
    <BodyLimit>2M</BodyLimit>
  </Server>
</PLCForge>`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	l := cfg.ModelLimits()
	assert.Equal(t, int64(1024), l.MaxInputBytes)
	assert.Equal(t, 8, l.MaxPOUs)
	assert.Equal(t, models.DefaultLimits().MaxRungsPerPOU, l.MaxRungsPerPOU)
	assert.Equal(t, dialect.RockwellLogix, cfg.DefaultTarget())
	assert.Equal(t, int64(2<<20), cfg.BodyLimitBytes())
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())

	opts := cfg.CodecOptions()
	assert.Equal(t, "Line 3", opts.Document.Author)
	assert.Equal(t, "plcforge", opts.Document.CompanyName)
	assert.Equal(t, dialect.FirmwareLegacy, opts.Firmware)
	assert.Equal(t, l, opts.Limits)
}

func TestLoadConfig_Environment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcforge.xml")
	t.Setenv("PLCFORGE_MAX_INPUT_BYTES", "4K")
	t.Setenv("PLCFORGE_LOG_LEVEL", "debug")
	t.Setenv("PLCFORGE_AUTHOR", "ci")
	t.Setenv("PORT", "7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), cfg.ModelLimits().MaxInputBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "ci", cfg.Document.Author)
	assert.Equal(t, 7070, cfg.Server.Port)

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("PORT", "http")
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", "<PLCForge><Limits>"},
		{"unknown target", "<PLCForge><Document><DefaultTarget>Omron</DefaultTarget></Document></PLCForge>"},
		{"negative limit", "<PLCForge><Limits><MaxPOUs>-1</MaxPOUs></Limits></PLCForge>"},
		{"bad body limit", "<PLCForge><Server><BodyLimit>lots</BodyLimit></Server></PLCForge>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "plcforge.xml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"2K", 2048},
		{"64M", 64 << 20},
		{"1GB", 1 << 30},
		{" 3 m ", 3 << 20},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseSize("x")
	assert.Error(t, err)
}
