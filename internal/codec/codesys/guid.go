package codesys

import (
	"github.com/google/uuid"
)

// Well-known objects present in every project.
var (
	ProjectTreeGUID = uuid.MustParse("5c5a8b2e-1d3f-4a6b-9c7d-0e1f2a3b4c5d")
	ApplicationGUID = uuid.MustParse("9a8b7c6d-5e4f-4321-8fed-cba987654321")
)

// LittleEndian returns g in the on-disk field order: the first three fields
// byte-reversed, the last two as written.
func LittleEndian(g uuid.UUID) [16]byte {
	var b [16]byte
	b[0], b[1], b[2], b[3] = g[3], g[2], g[1], g[0]
	b[4], b[5] = g[5], g[4]
	b[6], b[7] = g[7], g[6]
	copy(b[8:], g[8:])
	return b
}

// FromLittleEndian reverses LittleEndian.
func FromLittleEndian(b []byte) uuid.UUID {
	var g uuid.UUID
	g[0], g[1], g[2], g[3] = b[3], b[2], b[1], b[0]
	g[4], g[5] = b[5], b[4]
	g[6], g[7] = b[7], b[6]
	copy(g[8:], b[8:16])
	return g
}

// derivedGUID names an object the model gives no identity of its own. The
// value depends only on the name, so re-emission is stable.
func derivedGUID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(ApplicationGUID, []byte(kind+":"+name))
}

func entryName(g uuid.UUID, suffix string) string {
	return g.String() + suffix
}
