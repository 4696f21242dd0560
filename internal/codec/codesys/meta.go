package codesys

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Marker is the first byte of a meta payload and names the object kind.
type Marker byte

const (
	MarkerPOU         Marker = 0x01
	MarkerGVL         Marker = 0x02
	MarkerApplication Marker = 0x03
	MarkerProjectTree Marker = 0x04
)

// Object kinds, spelled as the root element of their payload.
const (
	KindPOU         = "POU"
	KindGVL         = "GVL"
	KindApplication = "Application"
	KindProjectTree = "ProjectTree"
)

var markerKinds = map[Marker]string{
	MarkerPOU:         KindPOU,
	MarkerGVL:         KindGVL,
	MarkerApplication: KindApplication,
	MarkerProjectTree: KindProjectTree,
}

func markerFor(kind string) (Marker, bool) {
	for m, k := range markerKinds {
		if k == kind {
			return m, true
		}
	}
	return 0, false
}

// Known reports whether the layout of m is understood.
func (m Marker) Known() bool {
	_, ok := markerKinds[m]
	return ok
}

// kindBytes is the number of type-specific bytes following the marker.
func (m Marker) kindBytes() int {
	if m == MarkerPOU {
		return 1
	}
	return 0
}

// POU type byte of a POU meta.
var pouTypeBytes = map[models.POUKind]byte{
	models.POUProgram:       0x00,
	models.POUFunctionBlock: 0x01,
	models.POUFunction:      0x02,
}

var trailer = []byte{0x00, 0x00}

// Meta is a decoded meta payload. Raw holds the payload of kinds whose layout
// is not understood; only their parent reference can be rewritten.
type Meta struct {
	Marker Marker
	Kind   []byte
	Parent uuid.UUID // uuid.Nil when the object has no parent
	Raw    []byte
}

// Bytes serialises m: marker, type bytes, parent flag, parent GUID in
// little-endian field order, trailer.
func (m Meta) Bytes() []byte {
	if !m.Marker.Known() {
		return append([]byte(nil), m.Raw...)
	}
	out := []byte{byte(m.Marker)}
	out = append(out, m.Kind...)
	if m.Parent == uuid.Nil {
		out = append(out, 0x00)
	} else {
		le := LittleEndian(m.Parent)
		out = append(out, 0x01)
		out = append(out, le[:]...)
	}
	return append(out, trailer...)
}

// ParseMeta decodes a meta payload. Payloads with an unknown marker are kept
// raw.
func ParseMeta(entry string, payload []byte) (Meta, error) {
	if len(payload) == 0 {
		return Meta{}, faults.SchemaViolation(entry, "empty meta payload")
	}
	m := Meta{Marker: Marker(payload[0])}
	if !m.Marker.Known() {
		m.Raw = append([]byte(nil), payload...)
		return m, nil
	}
	bad := func(reason string) (Meta, error) {
		return Meta{}, faults.SchemaViolation(entry, fmt.Sprintf("%s meta: %s", markerKinds[m.Marker], reason))
	}
	rest := payload[1:]
	n := m.Marker.kindBytes()
	if len(rest) < n+1 {
		return bad("truncated")
	}
	m.Kind, rest = append([]byte(nil), rest[:n]...), rest[n:]
	switch rest[0] {
	case 0x00:
		rest = rest[1:]
	case 0x01:
		if len(rest) < 17 {
			return bad("truncated parent reference")
		}
		m.Parent = FromLittleEndian(rest[1:17])
		rest = rest[17:]
	default:
		return bad(fmt.Sprintf("parent flag 0x%02x", rest[0]))
	}
	if !bytes.Equal(rest, trailer) {
		return bad("bad trailer")
	}
	return m, nil
}

// pouMeta synthesises the meta of a POU object.
func pouMeta(kind models.POUKind, parent uuid.UUID) Meta {
	return Meta{Marker: MarkerPOU, Kind: []byte{pouTypeBytes[kind]}, Parent: parent}
}

// rebase clones a template meta for a new parent. For raw metas the old
// parent's bytes must occur exactly once.
func (m Meta) rebase(oldParent, parent uuid.UUID) (Meta, error) {
	if m.Marker.Known() {
		m.Kind = append([]byte(nil), m.Kind...)
		m.Parent = parent
		return m, nil
	}
	if oldParent == uuid.Nil {
		return Meta{}, faults.New(faults.KindUnsupportedObjectKind, "template meta with marker 0x%02x has no parent to rewrite", byte(m.Marker))
	}
	old, next := LittleEndian(oldParent), LittleEndian(parent)
	if bytes.Count(m.Raw, old[:]) != 1 {
		return Meta{}, faults.New(faults.KindUnsupportedObjectKind, "parent reference not found in meta with marker 0x%02x", byte(m.Marker))
	}
	m.Raw = bytes.Replace(m.Raw, old[:], next[:], 1)
	return m, nil
}
