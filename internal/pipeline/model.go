package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Model encodings for dumps and generator input.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// ModelFormat picks the model encoding from a file name or format name.
// Unknown names fall back to JSON.
func ModelFormat(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = strings.ToLower(name)
	}
	switch ext {
	case "yaml", "yml":
		return FormatYAML
	case "msgpack", "mp":
		return FormatMsgpack
	}
	return FormatJSON
}

// IsModelFile reports whether name carries a model document rather than a
// controller project.
func IsModelFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".msgpack", ".mp":
		return true
	}
	return false
}

// LoadModel decodes a model document in the encoding its name suggests.
func LoadModel(name string, data []byte, limits models.Limits) (*models.Project, error) {
	if err := limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	switch ModelFormat(name) {
	case FormatYAML:
		return models.DecodeYAML(data, limits)
	case FormatMsgpack:
		return models.DecodeMsgpack(data, limits)
	}
	return models.DecodeJSON(data, limits)
}

// Load reads a model document or a controller project, choosing by the
// name's extension.
func (e *Engine) Load(name string, data []byte, hint dialect.Dialect) (*models.Project, error) {
	if !IsModelFile(name) {
		return e.Parse(data, hint)
	}
	p, err := LoadModel(name, data, e.opts.Limits)
	if err != nil {
		return nil, err
	}
	p.SetMapper(e.mapper)
	return p, nil
}

// DumpModel encodes p in format.
func DumpModel(p *models.Project, format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return models.EncodeJSON(p)
	case FormatYAML:
		return models.EncodeYAML(p)
	case FormatMsgpack:
		return models.EncodeMsgpack(p)
	}
	return nil, faults.Unsupported("model format " + format)
}
