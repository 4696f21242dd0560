package codesys

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

var pouKeywords = map[models.POUKind]string{
	models.POUProgram:       "PROGRAM",
	models.POUFunctionBlock: "FUNCTION_BLOCK",
	models.POUFunction:      "FUNCTION",
}

const instancePragma = "plcforge.instance"

var (
	varLine    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?:AT\s+(\S+))?\s*:\s*([^;:]+?)\s*(?::=\s*(.*?))?\s*;\s*(?:\(\*\s*(.*?)\s*\*\))?$`)
	pragmaLine = regexp.MustCompile(`^\{attribute\s+'([^']+)'\s*:=\s*'([^']*)'\}$`)
	blockStart = regexp.MustCompile(`^VAR(_[A-Z_]+)?(\s+(CONSTANT|RETAIN|PERSISTENT))*$`)
)

// flatten keeps a comment on one line and out of the way of the closing
// comment marker.
func flatten(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "*)", "* )")), " ")
}

func writeVar(b *strings.Builder, name, addr, dataType, initial, comment string) {
	b.WriteString("    " + name)
	if addr != "" {
		b.WriteString(" AT " + addr)
	}
	b.WriteString(" : " + dataType)
	if initial != "" {
		b.WriteString(" := " + initial)
	}
	b.WriteByte(';')
	if c := flatten(comment); c != "" {
		b.WriteString(" (* " + c + " *)")
	}
	b.WriteByte('\n')
}

// instanceName is the variable an instance is declared as: its symbol, or
// its descriptor stripped to an identifier.
func instanceName(in *models.Instance) string {
	if in.Symbol != "" {
		return in.Symbol
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, in.Descriptor)
}

func instanceType(in *models.Instance) string {
	switch {
	case in.Type != "":
		return in.Type
	case in.Kind == models.InstanceCounter:
		return string(models.CounterCTU)
	case in.Kind == models.InstancePID:
		return "PID"
	}
	return string(models.TimerTON)
}

// renderVars writes one block of variables. Instances carry their model
// fields in an attribute pragma on the line before their declaration.
func renderVars(b *strings.Builder, keyword string, tags []*models.Tag, instances []*models.Instance) {
	b.WriteString(keyword + "\n")
	for _, t := range tags {
		writeVar(b, t.Name, t.Address, t.DataType, t.Initial, t.Comment)
	}
	for _, in := range instances {
		fields := []string{"kind=" + string(in.Kind), "descriptor=" + in.Descriptor}
		if in.Symbol != "" {
			fields = append(fields, "symbol="+in.Symbol)
		}
		if in.Type != "" {
			fields = append(fields, "type="+in.Type)
		}
		fields = append(fields, "preset="+strconv.FormatInt(in.Preset, 10))
		if in.Base.Valid() {
			fields = append(fields, "base="+in.Base.String())
		}
		fields = append(fields, "allocation="+string(in.Allocation))
		fmt.Fprintf(b, "    {attribute '%s' := '%s'}\n", instancePragma, strings.Join(fields, ";"))
		writeVar(b, instanceName(in), "", instanceType(in), "", in.Comment)
	}
	b.WriteString("END_VAR\n")
}

// pouDeclaration renders the interface of u.
func pouDeclaration(u *models.POU) string {
	var b strings.Builder
	b.WriteString(pouKeywords[u.Kind] + " " + u.Name + "\n")
	renderVars(&b, "VAR", u.Tags, u.Instances)
	return b.String()
}

func globalDeclaration(tags []*models.Tag) string {
	var b strings.Builder
	renderVars(&b, "VAR_GLOBAL", tags, nil)
	return b.String()
}

// declVar is one variable read back from a declaration.
type declVar struct {
	Name, Address, DataType, Initial, Comment string
}

// parseDeclaration reads the variables of every VAR block in text. Lines
// outside blocks are ignored; an unreadable line inside one is an error.
func parseDeclaration(path, text string) ([]declVar, []models.Instance, error) {
	var (
		vars      []declVar
		instances []models.Instance
		pending   *models.Instance
		inBlock   bool
	)
	for n, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(line)
		upper := strings.ToUpper(t)
		switch {
		case t == "":
			continue
		case upper == "END_VAR":
			inBlock = false
			continue
		case blockStart.MatchString(upper):
			inBlock = true
			continue
		case !inBlock:
			continue
		case strings.HasPrefix(t, "(*") && strings.HasSuffix(t, "*)"):
			continue
		}
		bad := func(reason string) error {
			e := faults.SchemaViolation(path, fmt.Sprintf("declaration line %d: %s", n+1, reason))
			e.Line = n + 1
			return e
		}
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			m := pragmaLine.FindStringSubmatch(t)
			if m == nil || m[1] != instancePragma {
				continue
			}
			in, err := parseInstance(m[2])
			if err != nil {
				return nil, nil, bad(err.Error())
			}
			pending = &in
			continue
		}
		m := varLine.FindStringSubmatch(t)
		if m == nil {
			return nil, nil, bad(fmt.Sprintf("cannot read %q", t))
		}
		if pending != nil {
			pending.Comment = m[5]
			instances = append(instances, *pending)
			pending = nil
			continue
		}
		vars = append(vars, declVar{Name: m[1], Address: m[2], DataType: m[3], Initial: m[4], Comment: m[5]})
	}
	return vars, instances, nil
}

func parseInstance(s string) (models.Instance, error) {
	var in models.Instance
	for _, field := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return in, fmt.Errorf("instance field %q has no value", field)
		}
		switch k {
		case "kind":
			in.Kind = models.InstanceKind(v)
		case "descriptor":
			in.Descriptor = v
		case "symbol":
			in.Symbol = v
		case "type":
			in.Type = v
		case "preset":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return in, fmt.Errorf("instance preset %q: %w", v, err)
			}
			in.Preset = n
		case "base":
			b, err := address.ParseTimeBase(v)
			if err != nil {
				return in, err
			}
			in.Base = b
		case "allocation":
			in.Allocation = models.AllocationPolicy(v)
		}
	}
	if in.Descriptor == "" {
		return in, fmt.Errorf("instance without descriptor")
	}
	return in, nil
}
