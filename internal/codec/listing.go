package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// RungText is one rung recovered from a marked IL listing.
type RungText struct {
	Index   int
	Name    string
	Comment string
	IL      []models.Instruction
}

var rungMarker = regexp.MustCompile(`^\(\*\s*RUNG\s+(\d+)\s*(?::(.*?))?\s*\*\)$`)

// RungMarker renders the comment line that opens rung r in a listing.
func RungMarker(r *models.Rung) string {
	name := oneLine(r.Name)
	comment := oneLine(r.Comment)
	switch {
	case comment != "":
		return fmt.Sprintf("(* RUNG %d: %s | %s *)", r.Index+1, name, comment)
	case name != "":
		return fmt.Sprintf("(* RUNG %d: %s *)", r.Index+1, name)
	}
	return fmt.Sprintf("(* RUNG %d *)", r.Index+1)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "*)", "* )")
	return strings.Join(strings.Fields(s), " ")
}

// RungListing renders the IL of every rung of u, each rung opened by its
// marker comment.
func RungListing(u *models.POU) string {
	var b strings.Builder
	for _, r := range u.Rungs {
		b.WriteString(RungMarker(r))
		b.WriteByte('\n')
		for _, in := range r.IL {
			b.WriteString(in.Text())
			if in.Comment != "" {
				b.WriteString(" (* " + oneLine(in.Comment) + " *)")
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ParseRungListing splits a marked listing back into rungs. Statements before
// the first marker form an unnamed rung.
func ParseRungListing(text string) ([]RungText, error) {
	var out []RungText
	cur := -1
	for n, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if m := rungMarker.FindStringSubmatch(t); m != nil {
			idx, _ := strconv.Atoi(m[1])
			name, comment, _ := strings.Cut(m[2], "|")
			out = append(out, RungText{Index: idx - 1, Name: strings.TrimSpace(name), Comment: strings.TrimSpace(comment)})
			cur = len(out) - 1
			continue
		}
		if strings.HasPrefix(t, "(*") && strings.HasSuffix(t, "*)") {
			continue
		}
		in, err := models.ParseInstruction(t)
		if err != nil {
			return nil, faults.ParseError(n+1, 1, err.Error())
		}
		if cur < 0 {
			out = append(out, RungText{})
			cur = 0
		}
		out[cur].IL = append(out[cur].IL, in)
	}
	return out, nil
}

// ApplyRungListing appends the rungs of a marked listing to u and lays out
// their grids. Errors carry the POU name as path.
func ApplyRungListing(u *models.POU, text string) error {
	rungs, err := ParseRungListing(text)
	if err != nil {
		if fe, ok := err.(*faults.Error); ok {
			fe.Path = "pou " + u.Name
		}
		return err
	}
	for _, rt := range rungs {
		r, err := u.AddRung(rt.Name, rt.Comment, "")
		if err != nil {
			return err
		}
		if err := r.SetIL(rt.IL); err != nil {
			return err
		}
		if err := r.SyncGrid(); err != nil {
			return err
		}
	}
	return nil
}
