// Package faults carries the error taxonomy shared by the model, the address
// mapper and every codec. Nothing in the core prints; failures travel back to
// the caller as *Error values with enough context to locate the cause.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names one entry of the error taxonomy.
type Kind string

// Input errors.
const (
	KindParseError                   Kind = "ParseError"
	KindSchemaViolation              Kind = "SchemaViolation"
	KindMagicMismatch                Kind = "MagicMismatch"
	KindLengthMismatch               Kind = "LengthMismatch"
	KindUtf16DecodeError             Kind = "Utf16DecodeError"
	KindUnknownObjectKind            Kind = "UnknownObjectKind"
	KindMissingMeta                  Kind = "MissingMeta"
	KindDanglingProjectTreeReference Kind = "DanglingProjectTreeReference"
	KindMalformedAddress             Kind = "MalformedAddress"
)

// Model errors.
const (
	KindDuplicateSymbol    Kind = "DuplicateSymbol"
	KindAddressOutOfRange  Kind = "AddressOutOfRange"
	KindUnmappedCoil       Kind = "UnmappedCoil"
	KindCellOccupied       Kind = "CellOccupied"
	KindGridOutOfBounds    Kind = "GridOutOfBounds"
	KindDanglingConnection Kind = "DanglingConnection"
	KindInvariantViolation Kind = "InvariantViolation"
	KindDuplicateRung      Kind = "DuplicateRung"
	KindUnresolvedSymbol   Kind = "UnresolvedSymbol"
)

// Translation errors and warnings.
const (
	KindUntranslatableAddress Kind = "UntranslatableAddress"
	KindTypeDowncast          Kind = "TypeDowncast"
	KindTimeBaseRounded       Kind = "TimeBaseRounded"
)

// Resource and capability errors.
const (
	KindResourceLimitExceeded Kind = "ResourceLimitExceeded"
	KindUnsupportedFeature    Kind = "UnsupportedFeature"
	KindUnsupportedObjectKind Kind = "UnsupportedObjectKind"
)

// Category groups kinds for exit-code purposes.
type Category int

const (
	CategoryNone Category = iota
	CategoryValidation
	CategoryInput
	CategoryUnsupported
	CategoryResource
)

var categories = map[Kind]Category{
	KindParseError:                   CategoryInput,
	KindSchemaViolation:              CategoryInput,
	KindMagicMismatch:                CategoryInput,
	KindLengthMismatch:               CategoryInput,
	KindUtf16DecodeError:             CategoryInput,
	KindMissingMeta:                  CategoryInput,
	KindDanglingProjectTreeReference: CategoryInput,
	KindMalformedAddress:             CategoryInput,
	KindDuplicateSymbol:              CategoryValidation,
	KindAddressOutOfRange:            CategoryValidation,
	KindUnmappedCoil:                 CategoryValidation,
	KindCellOccupied:                 CategoryValidation,
	KindGridOutOfBounds:              CategoryValidation,
	KindDanglingConnection:           CategoryValidation,
	KindInvariantViolation:           CategoryValidation,
	KindDuplicateRung:                CategoryValidation,
	KindUnresolvedSymbol:             CategoryValidation,
	KindTypeDowncast:                 CategoryValidation,
	KindTimeBaseRounded:              CategoryValidation,
	KindUnknownObjectKind:            CategoryUnsupported,
	KindUntranslatableAddress:        CategoryUnsupported,
	KindUnsupportedFeature:           CategoryUnsupported,
	KindUnsupportedObjectKind:        CategoryUnsupported,
	KindResourceLimitExceeded:        CategoryResource,
}

// Category returns the exit-code category of k.
func (k Kind) Category() Category {
	return categories[k]
}

// Error lets a Kind be used as an errors.Is target.
func (k Kind) Error() string { return string(k) }

// Error is a structured failure. Only the fields relevant to the kind are set.
type Error struct {
	Kind    Kind
	Message string
	Path    string // element path, file entry or symbol
	Line    int
	Column  int
	Offset  int64 // byte offset, -1 when unknown
	GUID    string
	Limit   int64
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (at %s)", e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " [line %d, column %d]", e.Line, e.Column)
	}
	if e.Offset > 0 {
		fmt.Fprintf(&b, " [offset %d]", e.Offset)
	}
	if e.GUID != "" {
		fmt.Fprintf(&b, " [guid %s]", e.GUID)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches both *Error values of the same kind and bare Kind sentinels.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ExitCode maps an error to the CLI exit status: 0 success, 2 validation,
// 3 parse, 4 unsupported feature, 5 resource limit, 1 anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err).Category() {
	case CategoryValidation:
		return 2
	case CategoryInput:
		return 3
	case CategoryUnsupported:
		return 4
	case CategoryResource:
		return 5
	}
	return 1
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Cause = cause
	return e
}

// ParseError reports malformed input at a line and column.
func ParseError(line, column int, reason string) *Error {
	return &Error{Kind: KindParseError, Message: reason, Line: line, Column: column, Offset: -1}
}

// SchemaViolation reports a structurally valid document that breaks the schema.
func SchemaViolation(path, reason string) *Error {
	return &Error{Kind: KindSchemaViolation, Message: reason, Path: path, Offset: -1}
}

// MagicMismatch reports a binary wrapper whose magic bytes are wrong.
func MagicMismatch(entry string, got []byte) *Error {
	return &Error{Kind: KindMagicMismatch, Message: fmt.Sprintf("unexpected magic % x", got), Path: entry, Offset: 0}
}

// LengthMismatch reports a declared payload length that disagrees with the data.
func LengthMismatch(entry string, declared, present int) *Error {
	return &Error{
		Kind:    KindLengthMismatch,
		Message: fmt.Sprintf("declared %d payload bytes, %d present", declared, present),
		Path:    entry,
		Offset:  16,
	}
}

// MissingMeta reports an object without its sibling meta entry.
func MissingMeta(guid string) *Error {
	return &Error{Kind: KindMissingMeta, Message: "object has no .meta sibling", GUID: guid, Offset: -1}
}

// DanglingProjectTreeReference reports a tree node pointing at no object.
func DanglingProjectTreeReference(guid string) *Error {
	return &Error{Kind: KindDanglingProjectTreeReference, Message: "project tree references a missing object", GUID: guid, Offset: -1}
}

// MalformedAddress reports an address surface the dialect grammar rejects.
func MalformedAddress(surface, reason string) *Error {
	return &Error{Kind: KindMalformedAddress, Message: reason, Path: surface, Offset: -1}
}

// UntranslatableAddress reports an address with no rule for the target dialect.
func UntranslatableAddress(surface, target string) *Error {
	return &Error{Kind: KindUntranslatableAddress, Message: "no translation rule for " + target, Path: surface, Offset: -1}
}

// ResourceLimitExceeded reports a configured ceiling being crossed.
func ResourceLimitExceeded(what string, limit int64) *Error {
	return &Error{
		Kind:    KindResourceLimitExceeded,
		Message: fmt.Sprintf("%s exceeds limit %d", what, limit),
		Path:    what,
		Limit:   limit,
		Offset:  -1,
	}
}

// Unsupported reports a construct the selected dialect cannot carry.
func Unsupported(what string) *Error {
	return &Error{Kind: KindUnsupportedFeature, Message: what, Offset: -1}
}
