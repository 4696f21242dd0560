package logs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_Fanout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plcforge.log")
	var term bytes.Buffer

	log, closer, err := New(config.LoggingConfig{Level: "info", File: path}, &term)
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("emit", "verb", "convert", "dialect", "Rockwell-Logix", "bytes", 2048)
	require.NoError(t, closer.Close())

	assert.NotContains(t, term.String(), "hidden")
	assert.Contains(t, term.String(), "verb=convert")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "emit", rec["msg"])
	assert.Equal(t, "Rockwell-Logix", rec["dialect"])
	assert.Equal(t, float64(2048), rec["bytes"])
}

func TestNew_BadFile(t *testing.T) {
	_, _, err := New(config.LoggingConfig{File: filepath.Join(t.TempDir(), "missing", "x.log")}, &bytes.Buffer{})
	assert.Error(t, err)
}
