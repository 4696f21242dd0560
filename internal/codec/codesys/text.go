package codesys

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

const textHeader = `<?xml version="1.0" encoding="utf-16"?>` + "\n"

var (
	// written without a byte order mark
	utf16Out = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	// a leading mark is honoured and dropped
	utf16In = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
)

func encodeText(s string) ([]byte, error) {
	return utf16Out.NewEncoder().Bytes([]byte(s))
}

// decodeText converts a UTF-16 LE payload. Odd lengths and unpaired
// surrogates fail with Utf16DecodeError.
func decodeText(entry string, payload []byte) (string, error) {
	fail := func(reason string) error {
		e := faults.New(faults.KindUtf16DecodeError, "%s", reason)
		e.Path = entry
		return e
	}
	if len(payload)%2 != 0 {
		return "", fail("odd payload length")
	}
	out, err := utf16In.NewDecoder().Bytes(payload)
	if err != nil {
		return "", fail(err.Error())
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", fail("payload contains an unpaired surrogate")
	}
	return string(out), nil
}

// marshalText renders v as a UTF-16 XML payload.
func marshalText(v any) ([]byte, error) {
	doc, err := codec.EncodeXML(textHeader, v)
	if err != nil {
		return nil, err
	}
	return encodeText(string(doc))
}

// newDecoder reads already-decoded text whose declaration still names utf-16.
func newDecoder(text string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	return dec
}

// rootTag returns the local name of the first element of text.
func rootTag(text string) (string, error) {
	dec := newDecoder(text)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", faults.ParseError(1, 1, "payload has no root element")
		}
		if err != nil {
			return "", codec.XMLError([]byte(text), dec, err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func unmarshalText(text string, v any) error {
	dec := newDecoder(text)
	if err := dec.Decode(v); err != nil {
		return codec.XMLError([]byte(text), dec, err)
	}
	return nil
}
