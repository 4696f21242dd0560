package l5x

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Rockwell comparison instructions by IEC operator.
var compareOps = map[string]string{
	"=":  "EQU",
	"<>": "NEQ",
	"<":  "LES",
	"<=": "LEQ",
	">":  "GRT",
	">=": "GEQ",
}

// doneBit is the member that carries a TIMER or COUNTER output.
const doneBit = "DN"

// textWriter renders the networks of one POU as neutral rung text.
type textWriter struct {
	u *models.POU
}

// name prints descriptor d by its tag name when one is bound to it and
// checks that the result is a Rockwell operand.
func (w textWriter) name(d string) (string, error) {
	s := w.u.SymbolOf(d)
	if in := w.u.Instance(d); s == "" && in != nil && in.Symbol != "" {
		s = in.Symbol
	}
	if s == "" {
		s = d
	}
	if _, err := address.ParseOperand(dialect.RockwellLogix, s); err != nil {
		return "", err
	}
	return s, nil
}

// operand prints one side of a comparison; literals pass through.
func (w textWriter) operand(s string) string {
	if t := w.u.SymbolOf(s); t != "" {
		return t
	}
	return s
}

func branch(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// rung renders r as one rung text, trailing semicolon included.
func (w textWriter) rung(r *models.Rung) (string, error) {
	var nets []models.Network
	var err error
	if len(r.IL) > 0 {
		nets, err = r.ILNetworks()
	} else {
		nets, err = r.Networks()
	}
	if err != nil {
		return "", err
	}
	var segs []string
	for _, n := range nets {
		s, err := w.network(n)
		if err != nil {
			return "", err
		}
		segs = append(segs, s)
	}
	text := "NOP()"
	if len(segs) > 0 {
		text = branch(segs)
	}
	if r.Label != "" {
		text = "LBL(" + r.Label + ")" + text
	}
	return text + ";", nil
}

func (w textWriter) network(n models.Network) (string, error) {
	var parts []string
	pin := ""
	if n.Block != nil {
		in, err := w.expr(n.Block.Input, "")
		if err != nil {
			return "", err
		}
		blk, err := w.block(n.Block.Element)
		if err != nil {
			return "", err
		}
		name, err := w.name(models.Descriptor(n.Block.Element))
		if err != nil {
			return "", err
		}
		pin = name + "." + doneBit
		parts = append(parts, in+blk)
	}
	for _, d := range n.Drives {
		pw, err := w.expr(d.Power, pin)
		if err != nil {
			return "", err
		}
		outs, err := w.outputs(d.Outputs)
		if err != nil {
			return "", err
		}
		parts = append(parts, pw+outs)
	}
	return branch(parts), nil
}

// expr renders e as series and branch instructions. pin is the done bit of
// the network's block, if any.
func (w textWriter) expr(e *models.Expr, pin string) (string, error) {
	switch e.Kind {
	case models.ExprTrue:
		return "", nil
	case models.ExprContact:
		s, err := w.name(e.Operand)
		if err != nil {
			return "", err
		}
		if e.Negated {
			return "XIO(" + s + ")", nil
		}
		return "XIC(" + s + ")", nil
	case models.ExprCompare:
		c, err := models.ParseComparison(e.Operand)
		if err != nil {
			return "", faults.Unsupported("comparison " + e.Operand + " in Rockwell rung text")
		}
		return fmt.Sprintf("%s(%s,%s)", compareOps[c.Op], w.operand(c.Left), w.operand(c.Right)), nil
	case models.ExprPin:
		return "XIC(" + pin + ")", nil
	}
	var parts []string
	for _, a := range e.Args {
		s, err := w.expr(a, pin)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if e.Kind == models.ExprAnd {
		return strings.Join(parts, ""), nil
	}
	return branch(parts), nil
}

func (w textWriter) block(e models.Element) (string, error) {
	name, err := w.name(models.Descriptor(e))
	if err != nil {
		return "", err
	}
	switch v := e.(type) {
	case *models.Timer:
		if v.Type == models.TimerTP {
			return "", faults.Unsupported("TP timer " + name + " on " + dialect.RockwellLogix.String())
		}
		base := v.Base
		if !base.Valid() {
			base = address.Base1ms
		}
		ms := address.Preset{Value: v.Preset, Base: base}.Millis()
		return fmt.Sprintf("%s(%s,%d,0)", v.Type, name, ms), nil
	case *models.Counter:
		if v.Type == models.CounterCTUD {
			return "", faults.Unsupported("CTUD counter " + name + " on " + dialect.RockwellLogix.String())
		}
		return fmt.Sprintf("%s(%s,%d,0)", v.Type, name, v.Preset), nil
	}
	return "", faults.Unsupported(string(e.Kind()) + " block in Rockwell rung text")
}

func (w textWriter) outputs(outs []models.Element) (string, error) {
	var parts []string
	for _, o := range outs {
		var s string
		switch v := o.(type) {
		case *models.Coil:
			name, err := w.name(v.Descriptor)
			if err != nil {
				return "", err
			}
			switch v.Storage {
			case models.StorageSet:
				s = "OTL(" + name + ")"
			case models.StorageReset:
				s = "OTU(" + name + ")"
			case models.StorageNegated:
				return "", faults.Unsupported("negated coil " + name + " on " + dialect.RockwellLogix.String())
			default:
				s = "OTE(" + name + ")"
			}
		case *models.Jump:
			s = "JMP(" + v.Label + ")"
		case *models.Operation:
			dest, src, _ := strings.Cut(v.Expr, ":=")
			dest, src = w.operand(strings.TrimSpace(dest)), strings.TrimSpace(src)
			if simpleOperand(src) {
				s = "MOV(" + w.operand(src) + "," + dest + ")"
			} else {
				s = "CPT(" + dest + "," + src + ")"
			}
		default:
			return "", faults.Unsupported(string(o.Kind()) + " in Rockwell rung text")
		}
		parts = append(parts, s)
	}
	return branch(parts), nil
}

func simpleOperand(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return !strings.ContainsAny(s, " +-*/()")
}
