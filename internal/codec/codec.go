package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"time"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Document carries the header fields stamped on emitted files.
type Document struct {
	CompanyName    string
	ProductName    string
	ProductVersion string
	Author         string
}

// DefaultDocument is used when no configuration overrides it.
var DefaultDocument = Document{
	CompanyName:    "plcforge",
	ProductName:    "plcforge",
	ProductVersion: "1.0",
}

// Options tune one decode or encode call.
type Options struct {
	Limits   models.Limits
	Document Document
	// Target selects the dialect for codecs serving several. Zero means the
	// project's own target.
	Target dialect.Dialect
	// Firmware selects the Schneider timer shape when the project does not
	// record one.
	Firmware dialect.SchneiderFirmware
	// Now stamps documents whose project carries no creation time.
	Now func() time.Time
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Limits:   models.DefaultLimits(),
		Document: DefaultDocument,
		Firmware: dialect.Firmware16Plus,
		Now:      time.Now,
	}
}

// Stamp returns the creation time of p, or the current time when unset.
func (o Options) Stamp(p *models.Project) time.Time {
	if !p.Created.IsZero() {
		return p.Created
	}
	if o.Now != nil {
		return o.Now().UTC().Truncate(time.Second)
	}
	return time.Now().UTC().Truncate(time.Second)
}

// Codec reads and writes one file format.
type Codec interface {
	// Name returns the short format name, e.g. "smbp".
	Name() string
	// Dialects lists the dialects the codec emits; the first is the
	// dialect assigned to decoded projects.
	Dialects() []dialect.Dialect
	// Extension is the usual file suffix including the dot.
	Extension() string
	// Sniff reports whether data looks like this format.
	Sniff(data []byte) bool
	Decode(data []byte, opts Options) (*models.Project, error)
	Encode(p *models.Project, opts Options) ([]byte, error)
}

// RootElement returns the name of the first element of an XML document. A
// UTF-8 byte order mark is skipped.
func RootElement(data []byte) (xml.Name, error) {
	dec := xml.NewDecoder(bytes.NewReader(TrimBOM(data)))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.Name{}, faults.ParseError(1, 1, "document has no root element")
		}
		if err != nil {
			return xml.Name{}, XMLError(data, dec, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name, nil
		}
	}
}

// TrimBOM strips a UTF-8 byte order mark.
func TrimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

// XMLError converts a decoder failure. Malformed XML becomes a ParseError
// carrying the decoder's line and column; a well-formed document whose values
// do not fit the schema becomes a SchemaViolation.
func XMLError(data []byte, dec *xml.Decoder, err error) error {
	line, col := Position(data, dec.InputOffset())
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return faults.ParseError(se.Line, col, se.Msg)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return faults.ParseError(line, col, "unexpected end of document")
	}
	e := faults.SchemaViolation("", err.Error())
	e.Line, e.Column = line, col
	return e
}

// DecodeXML unmarshals an XML document into v, skipping a UTF-8 byte order
// mark and converting failures through XMLError.
func DecodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(TrimBOM(data)))
	if err := dec.Decode(v); err != nil {
		return XMLError(TrimBOM(data), dec, err)
	}
	return nil
}

// EncodeXML marshals v with a two-space indent behind the standard XML
// declaration and ends the document with a newline.
func EncodeXML(header string, v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(header)+len(out)+1)
	buf = append(buf, header...)
	buf = append(buf, out...)
	return append(buf, '\n'), nil
}

// Position converts a byte offset into a 1-based line and column.
func Position(data []byte, offset int64) (int, int) {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
