package faults

import (
	"fmt"
	"strings"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// Diagnostic is one entry of a validation report.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
}

// Format renders the diagnostic as a single line.
func (d Diagnostic) Format() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString(" ")
	b.WriteString(string(d.Kind))
	if d.Path != "" {
		b.WriteString(" ")
		b.WriteString(d.Path)
	}
	if d.Message != "" {
		b.WriteString(": ")
		b.WriteString(d.Message)
	}
	return b.String()
}

// Report accumulates diagnostics in the order they were found.
type Report struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Add appends a diagnostic.
func (r *Report) Add(sev Severity, kind Kind, path, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Severity: sev,
		Kind:     kind,
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
	})
}

// AddError is shorthand for an error-severity diagnostic.
func (r *Report) AddError(kind Kind, path, format string, args ...any) {
	r.Add(SeverityError, kind, path, format, args...)
}

// AddWarning is shorthand for a warning-severity diagnostic.
func (r *Report) AddWarning(kind Kind, path, format string, args ...any) {
	r.Add(SeverityWarning, kind, path, format, args...)
}

// Merge appends every diagnostic of other.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
}

// HasErrors reports whether any entry is error-severity.
func (r *Report) HasErrors() bool {
	return len(r.Errors()) > 0
}

// HasWarnings reports whether any entry is warning-severity.
func (r *Report) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

// Errors returns the error-severity entries.
func (r *Report) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity entries.
func (r *Report) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

func (r *Report) filter(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// Empty reports whether the report holds no errors and no warnings.
func (r *Report) Empty() bool {
	return !r.HasErrors() && !r.HasWarnings()
}

// Downgrade turns every error into a warning (the --force behaviour).
func (r *Report) Downgrade() {
	for i := range r.Diagnostics {
		if r.Diagnostics[i].Severity == SeverityError {
			r.Diagnostics[i].Severity = SeverityWarning
		}
	}
}

// Upgrade turns every warning into an error (strict mode).
func (r *Report) Upgrade() {
	for i := range r.Diagnostics {
		if r.Diagnostics[i].Severity == SeverityWarning {
			r.Diagnostics[i].Severity = SeverityError
		}
	}
}

// Err returns an *Error for the first error-severity entry of the worst
// category present, or nil. Its kind decides the exit code.
func (r *Report) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	d := errs[0]
	worst := r.Worst()
	for _, x := range errs {
		if x.Kind.Category() == worst {
			d = x
			break
		}
	}
	e := New(d.Kind, "%s", d.Message)
	e.Path = d.Path
	if n := len(errs); n > 1 {
		e.Message = fmt.Sprintf("%s (and %d more)", d.Message, n-1)
	}
	return e
}

// Worst returns the highest exit-code category present among errors.
func (r *Report) Worst() Category {
	worst := CategoryNone
	for _, d := range r.Errors() {
		if c := d.Kind.Category(); c > worst {
			worst = c
		}
	}
	return worst
}

// Summary renders the one-line summary followed by a bulleted list.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d error(s), %d warning(s)\n", len(r.Errors()), len(r.Warnings()))
	for _, d := range r.Diagnostics {
		b.WriteString("  - ")
		b.WriteString(d.Format())
		b.WriteString("\n")
	}
	return b.String()
}
