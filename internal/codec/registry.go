package codec

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// Registry holds the available codecs and detects formats.
type Registry struct {
	codecs []Codec
}

// NewRegistry creates a registry probing codecs in the given order.
func NewRegistry(codecs ...Codec) *Registry {
	return &Registry{codecs: codecs}
}

// Register adds a codec after the existing ones.
func (r *Registry) Register(c Codec) {
	r.codecs = append(r.codecs, c)
}

// Codecs returns the registered codecs in probe order.
func (r *Registry) Codecs() []Codec {
	return append([]Codec(nil), r.codecs...)
}

// Detect returns the first codec whose Sniff accepts data.
func (r *Registry) Detect(data []byte) (Codec, error) {
	for _, c := range r.codecs {
		if c.Sniff(data) {
			return c, nil
		}
	}
	return nil, faults.New(faults.KindUnknownObjectKind, "no codec recognises the input")
}

// ByName returns a codec by its name or file extension.
func (r *Registry) ByName(name string) (Codec, error) {
	name = strings.TrimPrefix(strings.ToLower(name), ".")
	for _, c := range r.codecs {
		if strings.ToLower(c.Name()) == name || strings.TrimPrefix(strings.ToLower(c.Extension()), ".") == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("codec not found: %s", name)
}

// ForDialect returns the codec that emits dialect d.
func (r *Registry) ForDialect(d dialect.Dialect) (Codec, error) {
	for _, c := range r.codecs {
		for _, x := range c.Dialects() {
			if x == d {
				return c, nil
			}
		}
	}
	return nil, faults.Unsupported("emitting " + d.String())
}
