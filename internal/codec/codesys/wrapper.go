package codesys

import (
	"bytes"
	"encoding/binary"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

// Every .object and .meta entry is a 20-byte header followed by the payload:
// four magic bytes, twelve zero bytes and the payload length as a
// little-endian uint32.
const headerSize = 20

var magic = []byte{0x02, 0x20, 0x09, 0x28}

// Wrap prefixes payload with the binary header.
func Wrap(payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	copy(out, magic)
	binary.LittleEndian.PutUint32(out[16:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

// Unwrap checks the header of an archive entry and returns its payload. A
// declared length that disagrees with the bytes present fails with
// LengthMismatch; trailing bytes count as a mismatch too.
func Unwrap(entry string, data []byte) ([]byte, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		n := min(len(data), len(magic))
		return nil, faults.MagicMismatch(entry, data[:n])
	}
	if len(data) < headerSize {
		return nil, faults.LengthMismatch(entry, 0, len(data)-headerSize)
	}
	for _, b := range data[len(magic):16] {
		if b != 0 {
			e := faults.New(faults.KindMagicMismatch, "reserved header bytes are not zero")
			e.Path = entry
			return nil, e
		}
	}
	declared := binary.LittleEndian.Uint32(data[16:headerSize])
	present := len(data) - headerSize
	if uint64(declared) != uint64(present) {
		return nil, faults.LengthMismatch(entry, int(declared), present)
	}
	return data[headerSize:], nil
}
