package pipeline

import (
	"errors"
	"regexp"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Notes for rewrites that are not address translations.
const (
	NoteTypesNarrowed = "Data types without a target counterpart were narrowed"
	NotePresetRounded = "Timer presets rounded to the nearest representable time base"
)

// embedded finds address surfaces inside expressions, calls and ST bodies.
var embedded = regexp.MustCompile(`Local:\d+:[IO]\.Data\[\d+\]\.\d+|%[A-Za-z]+[0-9]+(?:\.[0-9]+)*(?:\.[A-Za-z]+)?`)

// translator rewrites one cloned project in place.
type translator struct {
	p      *models.Project
	m      *address.Mapper
	from   dialect.Dialect
	to     dialect.Dialect
	named  map[string]string // source surface -> tag name for tags that lost their address
	tags   []*address.Synthesized
	blocks map[string]bool
}

// Translate returns a copy of p retargeted to dialect to. Every tag address,
// operand, instance and preset is rewritten; tags the target needs are
// synthesised and each lossy or synthetic rewrite leaves a note.
func Translate(p *models.Project, to dialect.Dialect) (*models.Project, error) {
	if !to.Valid() {
		return nil, faults.Unsupported("target dialect " + to.String())
	}
	c := p.Clone()
	c.SourceDialect = p.Target
	if p.Target == to {
		return c, nil
	}
	t := &translator{
		p:      c,
		m:      c.Mapper(),
		from:   p.Target,
		to:     to,
		named:  map[string]string{},
		blocks: map[string]bool{},
	}
	if err := t.run(); err != nil {
		return nil, err
	}
	c.Target = to
	if !to.IsSchneider() {
		c.Catalog = ""
		c.HardwareID = ""
		c.Identity = models.ControllerIdentity{}
	}
	return c, nil
}

func (t *translator) run() error {
	if err := t.declarations(t.p.Tags, t.p.Name); err != nil {
		return err
	}
	for _, u := range t.p.POUs {
		if err := t.declarations(u.Tags, u.Name); err != nil {
			return err
		}
	}
	for _, u := range t.p.POUs {
		if err := t.pou(u); err != nil {
			return err
		}
	}
	for _, vl := range t.p.VarLists {
		body, err := t.text(vl.Body)
		if err != nil {
			return err
		}
		vl.Body = body
	}
	return t.synthesize()
}

// declarations rewrites tag addresses and types. A tag whose address turns
// into a synthesised name keeps its own name; operands using the old address
// are pointed at the tag.
func (t *translator) declarations(tags []*models.Tag, path string) error {
	for _, tag := range tags {
		if tag.Address != "" {
			tr, err := t.m.Translate(t.from, t.to, tag.Address)
			if err != nil {
				return located(err, path+"/"+tag.Name)
			}
			t.p.AddNote(tr.Note)
			if tr.Tag != nil {
				t.named[strings.TrimSpace(tag.Address)] = tag.Name
				if tag.DataType == "" {
					tag.DataType = tr.Tag.DataType
				}
				tag.Address = ""
			} else {
				tag.Address = tr.Surface
			}
		}
		if tag.DataType == "" {
			continue
		}
		dt, downcast := address.MapType(tag.DataType, t.to)
		if downcast {
			t.p.Warnings.AddWarning(faults.KindTypeDowncast, path+"/"+tag.Name,
				"%s narrowed to %s on %s", tag.DataType, dt, t.to)
			t.p.AddNote(NoteTypesNarrowed)
		}
		tag.DataType = dt
	}
	return nil
}

func (t *translator) pou(u *models.POU) error {
	for _, in := range u.Instances {
		if in.Kind == models.InstancePID {
			t.blocks[in.Descriptor] = true
			continue
		}
		d, err := t.operand(in.Descriptor)
		if err != nil {
			return located(err, u.Name+"/"+in.Descriptor)
		}
		in.Descriptor = d
		t.blocks[d] = true
		if in.Kind == models.InstanceTimer && in.Base.Valid() {
			in.Preset, in.Base = t.retime(in.Preset, in.Base, u.Name+"/"+d)
		}
	}
	if u.Language == models.LangST {
		body, err := t.text(u.Body)
		if err != nil {
			return located(err, u.Name)
		}
		u.Body = body
		return nil
	}
	for _, r := range u.Rungs {
		path := u.Name + "/" + r.Name
		for i := range r.IL {
			in := &r.IL[i]
			op, err := t.instruction(*in)
			if err != nil {
				return located(err, path)
			}
			in.Operand = op
			if in.Op == models.OpBLK {
				t.blocks[op] = true
			}
		}
		for _, e := range r.Elements {
			if err := t.element(u, e, path); err != nil {
				return located(err, path)
			}
		}
	}
	return nil
}

// instruction returns the rewritten operand of one IL statement.
func (t *translator) instruction(in models.Instruction) (string, error) {
	switch in.Op {
	case models.OpJMP, models.OpIN, models.OpCU, models.OpCD, models.OpOutBLK, models.OpEndBLK, models.OpClose:
		return in.Operand, nil
	case models.OpCAL, models.OpExpr:
		return t.text(in.Operand)
	}
	if in.Operand == "" {
		return "", nil
	}
	return t.operand(in.Operand)
}

func (t *translator) element(u *models.POU, e models.Element, path string) error {
	var err error
	switch v := e.(type) {
	case *models.Contact:
		if v.Descriptor, err = t.operand(v.Descriptor); err == nil {
			v.Symbol = u.SymbolOf(v.Descriptor)
		}
	case *models.Coil:
		if v.Descriptor, err = t.operand(v.Descriptor); err == nil {
			v.Symbol = u.SymbolOf(v.Descriptor)
		}
	case *models.Timer:
		if v.Descriptor, err = t.operand(v.Descriptor); err == nil && v.Base.Valid() {
			v.Preset, v.Base = t.retime(v.Preset, v.Base, path+"/"+v.Descriptor)
		}
	case *models.Counter:
		v.Descriptor, err = t.operand(v.Descriptor)
	case *models.Comparison:
		if v.Left, err = t.text(v.Left); err == nil {
			v.Right, err = t.text(v.Right)
		}
	case *models.Operation:
		v.Expr, err = t.text(v.Expr)
	case *models.FunctionBlock:
		for i := range v.Inputs {
			if v.Inputs[i].Expr, err = t.text(v.Inputs[i].Expr); err != nil {
				return err
			}
		}
		for i := range v.Outputs {
			if v.Outputs[i].Expr, err = t.text(v.Outputs[i].Expr); err != nil {
				return err
			}
		}
	}
	return err
}

// operand translates a whole operand. Surfaces the source dialect cannot
// parse are expressions or literals and get their embedded addresses
// rewritten instead.
func (t *translator) operand(s string) (string, error) {
	if name, ok := t.named[strings.TrimSpace(s)]; ok {
		return name, nil
	}
	tr, err := t.m.Translate(t.from, t.to, s)
	if errors.Is(err, faults.KindMalformedAddress) {
		return t.text(s)
	}
	if err != nil {
		return "", err
	}
	t.record(tr)
	return tr.Surface, nil
}

// text rewrites every address embedded in s.
func (t *translator) text(s string) (string, error) {
	var first error
	out := embedded.ReplaceAllStringFunc(s, func(m string) string {
		if first != nil {
			return m
		}
		if name, ok := t.named[m]; ok {
			return name
		}
		tr, err := t.m.Translate(t.from, t.to, m)
		if errors.Is(err, faults.KindMalformedAddress) {
			return m
		}
		if err != nil {
			first = err
			return m
		}
		t.record(tr)
		return tr.Surface
	})
	return out, first
}

func (t *translator) record(tr address.Translation) {
	t.p.AddNote(tr.Note)
	if tr.Tag != nil {
		t.tags = append(t.tags, tr.Tag)
	}
}

// retime fits a timer preset into the target's preset register. Rockwell
// presets are milliseconds, so the finest exact base is always chosen there.
func (t *translator) retime(value int64, base address.TimeBase, path string) (int64, address.TimeBase) {
	p := address.Preset{Value: value, Base: base}
	var out address.Preset
	var exact bool
	if t.to == dialect.RockwellLogix {
		out, exact = address.FromMillis(p.Millis(), address.PresetRange(t.to))
	} else {
		out, exact = address.Retime(p, address.PresetRange(t.to))
	}
	if !exact {
		t.p.Warnings.AddWarning(faults.KindTimeBaseRounded, path,
			"preset of %dms stored as %d x %s", p.Millis(), out.Value, out.Base)
		t.p.AddNote(NotePresetRounded)
	}
	return out.Value, out.Base
}

// synthesize declares the controller tags translations asked for. Names that
// already denote a tag or a block instance are left alone.
func (t *translator) synthesize() error {
	for _, s := range t.tags {
		if t.blocks[s.Name] || t.p.Tag(s.Name) != nil {
			continue
		}
		if _, err := t.p.AddTag(s.Name, "", s.DataType, ""); err != nil {
			return err
		}
	}
	return nil
}

// located fills in the element path of an error that has none.
func located(err error, path string) error {
	var fe *faults.Error
	if errors.As(err, &fe) && fe.Path == "" {
		fe.Path = path
	}
	return err
}
