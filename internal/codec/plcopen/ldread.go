package plcopen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

type connKey struct {
	id    int
	param string
}

// ldReader recovers rungs from an LD body. The power reaching every
// connection point is computed once and shared, so contacts that the writer
// emitted once for several branches come back as one factored series term.
type ldReader struct {
	p     *models.Project
	u     *models.POU
	byID  map[int]*ldItem
	order []*ldItem

	out      map[connKey]*models.Expr
	in       map[string]*models.Expr
	pins     map[*models.Expr]int
	blocks   map[int]models.Element
	outVars  map[connKey]*ldItem
	visiting map[int]bool
}

func newLDReader(p *models.Project, u *models.POU) *ldReader {
	return &ldReader{
		p:        p,
		u:        u,
		byID:     map[int]*ldItem{},
		out:      map[connKey]*models.Expr{},
		in:       map[string]*models.Expr{},
		pins:     map[*models.Expr]int{},
		blocks:   map[int]models.Element{},
		outVars:  map[connKey]*ldItem{},
		visiting: map[int]bool{},
	}
}

func (r *ldReader) path(it *ldItem) string {
	return fmt.Sprintf("pou %s/%s[%d]", r.u.Name, it.XMLName.Local, it.LocalID)
}

func (r *ldReader) read(ld *ldXML) error {
	if err := r.index(ld); err != nil {
		return err
	}
	for _, it := range r.order {
		if it.XMLName.Local == "block" && isBlockType(strings.ToUpper(it.TypeName)) {
			e, err := r.blockElement(it)
			if err != nil {
				return err
			}
			r.blocks[it.LocalID] = e
		}
	}
	for _, seg := range r.segments() {
		if err := r.rung(seg); err != nil {
			return err
		}
	}
	return nil
}

// connections lists every reference made by it.
func connections(it *ldItem) []connXML {
	var out []connXML
	for _, in := range it.In {
		out = append(out, in.Connections...)
	}
	for _, vars := range []*blockVarsXML{it.Inputs, it.InOuts} {
		if vars == nil {
			continue
		}
		for _, v := range vars.Variables {
			if v.In != nil {
				out = append(out, v.In.Connections...)
			}
		}
	}
	return out
}

func (r *ldReader) index(ld *ldXML) error {
	rails := 0
	for i := range ld.Items {
		it := &ld.Items[i]
		if it.LocalID <= 0 {
			return faults.SchemaViolation(fmt.Sprintf("pou %s/%s", r.u.Name, it.XMLName.Local), "missing or invalid localId")
		}
		if _, dup := r.byID[it.LocalID]; dup {
			return faults.SchemaViolation(r.path(it), "localId is used twice")
		}
		r.byID[it.LocalID] = it
		r.order = append(r.order, it)
		if it.XMLName.Local == "leftPowerRail" {
			rails++
		}
		for _, a := range it.Unknown {
			r.p.Warnings.AddWarning(faults.KindSchemaViolation, r.path(it), "unknown attribute %s ignored", a.Name.Local)
		}
	}
	if rails != 1 {
		return faults.SchemaViolation("pou "+r.u.Name+"/LD", fmt.Sprintf("expected exactly one leftPowerRail, found %d", rails))
	}
	sort.SliceStable(r.order, func(i, j int) bool { return r.order[i].LocalID < r.order[j].LocalID })
	for _, it := range r.order {
		for _, c := range connections(it) {
			if _, ok := r.byID[c.RefLocalID]; !ok {
				e := faults.New(faults.KindDanglingConnection, "refLocalId %d does not name an object", c.RefLocalID)
				e.Path = r.path(it)
				return e
			}
			if it.XMLName.Local == "outVariable" {
				r.outVars[connKey{c.RefLocalID, c.FormalParameter}] = it
			}
		}
	}
	return nil
}

type segment struct {
	name, comment, label string
	items                []*ldItem
}

// segments splits the body at comment objects in localId order. Objects
// before the first comment form an unnamed rung.
func (r *ldReader) segments() []*segment {
	var out []*segment
	var cur *segment
	for _, it := range r.order {
		switch it.XMLName.Local {
		case "leftPowerRail", "rightPowerRail":
			continue
		case "comment":
			cur = &segment{}
			if it.Content != nil {
				cur.name, cur.comment, _ = strings.Cut(it.Content.Text, "\n")
			}
			out = append(out, cur)
			continue
		}
		if cur == nil {
			cur = &segment{}
			out = append(out, cur)
		}
		if it.XMLName.Local == "label" {
			cur.label = it.Label
			continue
		}
		cur.items = append(cur.items, it)
	}
	return out
}

func formal(vars *blockVarsXML, name string) *blockVarXML {
	if vars == nil {
		return nil
	}
	for i := range vars.Variables {
		if strings.EqualFold(vars.Variables[i].FormalParameter, name) {
			return &vars.Variables[i]
		}
	}
	return nil
}

func (r *ldReader) operand(name string) string {
	if t := r.u.LookupTag(name); t != nil && t.Address != "" {
		return t.Address
	}
	return name
}

// source returns the inVariable feeding pin, or nil.
func (r *ldReader) source(v *blockVarXML) *ldItem {
	if v == nil || v.In == nil || len(v.In.Connections) != 1 {
		return nil
	}
	it := r.byID[v.In.Connections[0].RefLocalID]
	if it.XMLName.Local != "inVariable" {
		return nil
	}
	return it
}

// blockElement resolves a timer or counter block through the POU's
// declarations. Blocks without a declaration are declared from their
// preset input.
func (r *ldReader) blockElement(it *ldItem) (models.Element, error) {
	name := it.InstanceName
	if name == "" {
		return nil, unknownBlock(r.path(it), it.TypeName)
	}
	if r.u.Instance(name) == nil {
		typ := strings.ToUpper(it.TypeName)
		in := models.Instance{Descriptor: name, Type: typ}
		switch typ {
		case string(models.TimerTON), string(models.TimerTOF), string(models.TimerTP):
			in.Kind = models.InstanceTimer
			in.Base = address.Base1ms
			if src := r.source(formal(it.Inputs, "PT")); src != nil {
				ms, err := address.ParseIECTime(src.Expression)
				if err != nil {
					return nil, faults.SchemaViolation(r.path(it)+"/PT", err.Error())
				}
				pr, exact := address.FromMillis(ms, address.PresetRange(r.p.Target))
				if !exact {
					r.p.Warnings.AddWarning(faults.KindTimeBaseRounded, r.path(it), "preset %s rounded to %d x %s", src.Expression, pr.Value, pr.Base)
				}
				in.Preset, in.Base = pr.Value, pr.Base
			}
		default:
			in.Kind = models.InstanceCounter
			if src := r.source(formal(it.Inputs, "PV")); src != nil {
				v, err := strconv.ParseInt(strings.TrimSpace(src.Expression), 10, 64)
				if err != nil {
					return nil, faults.SchemaViolation(r.path(it)+"/PV", err.Error())
				}
				in.Preset = v
			}
		}
		if _, err := r.u.AddInstance(in); err != nil {
			return nil, err
		}
	}
	return r.u.Resolver()(name), nil
}

// power is the boolean expression carried by connection point c.
func (r *ldReader) power(c connXML) (*models.Expr, error) {
	k := connKey{c.RefLocalID, c.FormalParameter}
	if e, ok := r.out[k]; ok {
		return e, nil
	}
	it := r.byID[c.RefLocalID]
	if r.visiting[it.LocalID] {
		e := faults.New(faults.KindInvariantViolation, "connection loop through localId %d", it.LocalID)
		e.Path = r.path(it)
		return nil, e
	}
	r.visiting[it.LocalID] = true
	defer delete(r.visiting, it.LocalID)

	var (
		e   *models.Expr
		err error
	)
	switch it.XMLName.Local {
	case "leftPowerRail":
		e = models.True()
	case "contact":
		var in *models.Expr
		if in, err = r.inPower(it.In); err == nil {
			e = models.And(in, r.leaf(it))
		}
	case "coil":
		e, err = r.inPower(it.In)
	case "block":
		if el, ok := r.blocks[it.LocalID]; ok {
			e = models.Pin(models.OutputPin(el))
			r.pins[e] = it.LocalID
			break
		}
		if c.FormalParameter != "" && !strings.EqualFold(c.FormalParameter, "ENO") {
			err = faults.Unsupported(fmt.Sprintf("output %s of block %s used as a contact", c.FormalParameter, it.TypeName))
			break
		}
		e, err = r.enable(it)
	case "inVariable":
		if strings.EqualFold(strings.TrimSpace(it.Expression), "TRUE") {
			e = models.True()
		} else {
			e = models.Lit(r.operand(strings.TrimSpace(it.Expression)), false)
		}
	default:
		err = faults.SchemaViolation(r.path(it), "object cannot carry power")
	}
	if err != nil {
		return nil, err
	}
	r.out[k] = e
	return e, nil
}

func (r *ldReader) leaf(it *ldItem) *models.Expr {
	v := strings.TrimSpace(it.Variable)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return models.Cmp(strings.TrimSpace(v[1 : len(v)-1]))
	}
	return models.Lit(r.operand(v), it.Negated == "true")
}

// enable is the power at a block's EN input; a block without EN always runs.
func (r *ldReader) enable(it *ldItem) (*models.Expr, error) {
	en := formal(it.Inputs, "EN")
	if en == nil {
		return models.True(), nil
	}
	if en.In == nil {
		return nil, nil
	}
	return r.inPower([]connInXML{*en.In})
}

// inPower joins every connection of an input point. Branches whose
// expressions start with the same object are factored back into a series.
func (r *ldReader) inPower(points []connInXML) (*models.Expr, error) {
	var conns []connXML
	for _, p := range points {
		conns = append(conns, p.Connections...)
	}
	if len(conns) == 0 {
		return nil, nil
	}
	var key strings.Builder
	for _, c := range conns {
		fmt.Fprintf(&key, "%d/%s,", c.RefLocalID, c.FormalParameter)
	}
	if e, ok := r.in[key.String()]; ok {
		return e, nil
	}
	var args []*models.Expr
	for _, c := range conns {
		e, err := r.power(c)
		if err != nil {
			return nil, err
		}
		if e != nil {
			args = append(args, e)
		}
	}
	e := factor(args)
	r.in[key.String()] = e
	return e, nil
}

func head(e *models.Expr) *models.Expr {
	if e.Kind == models.ExprAnd {
		return e.Args[0]
	}
	return e
}

func tail(e *models.Expr) *models.Expr {
	if e.Kind == models.ExprAnd {
		return models.And(e.Args[1:]...)
	}
	return models.True()
}

// factor disjoins args, pulling a shared leading term of adjacent branches
// out as a series: (x AND a) OR (x AND b) becomes x AND (a OR b) when both
// branches start at the same object.
func factor(args []*models.Expr) *models.Expr {
	var out []*models.Expr
	for i := 0; i < len(args); {
		h := head(args[i])
		j := i + 1
		for j < len(args) && head(args[j]) == h {
			j++
		}
		if j-i == 1 || h.Kind == models.ExprTrue {
			out = append(out, args[i:j]...)
		} else {
			rests := make([]*models.Expr, 0, j-i)
			for _, a := range args[i:j] {
				rests = append(rests, tail(a))
			}
			out = append(out, models.And(h, factor(rests)))
		}
		i = j
	}
	return models.Or(out...)
}

// output builds the model element of an output object and the power it needs.
func (r *ldReader) output(it *ldItem) (models.Element, *models.Expr, error) {
	switch it.XMLName.Local {
	case "coil":
		c := &models.Coil{Descriptor: r.operand(strings.TrimSpace(it.Variable)), Storage: models.StorageNone}
		switch {
		case it.Negated == "true":
			c.Storage = models.StorageNegated
		case strings.EqualFold(it.Storage, "set"):
			c.Storage = models.StorageSet
		case strings.EqualFold(it.Storage, "reset"):
			c.Storage = models.StorageReset
		}
		pw, err := r.inPower(it.In)
		return c, pw, err
	case "jump":
		pw, err := r.inPower(it.In)
		return &models.Jump{Label: it.Label}, pw, err
	case "block":
		pw, err := r.enable(it)
		if err != nil {
			return nil, nil, err
		}
		if strings.EqualFold(it.TypeName, operateBlock) {
			var expr string
			if it.Documentation != nil {
				expr = strings.TrimSpace(it.Documentation.Text)
			}
			return &models.Operation{Expr: expr}, pw, nil
		}
		f, err := r.call(it)
		return f, pw, err
	}
	return nil, nil, nil
}

func (r *ldReader) call(it *ldItem) (*models.FunctionBlock, error) {
	if it.InstanceName == "" {
		return nil, unknownBlock(r.path(it), it.TypeName)
	}
	f := &models.FunctionBlock{TypeName: it.TypeName, Instance: it.InstanceName}
	if it.Inputs != nil {
		for i := range it.Inputs.Variables {
			v := &it.Inputs.Variables[i]
			if strings.EqualFold(v.FormalParameter, "EN") {
				continue
			}
			src := r.source(v)
			if src == nil {
				return nil, faults.Unsupported(fmt.Sprintf("%s input %s must be fed by an inVariable", it.InstanceName, v.FormalParameter))
			}
			f.Inputs = append(f.Inputs, models.Binding{Pin: v.FormalParameter, Expr: strings.TrimSpace(src.Expression)})
		}
	}
	if it.Outputs != nil {
		for _, v := range it.Outputs.Variables {
			if strings.EqualFold(v.FormalParameter, "ENO") {
				continue
			}
			if ov, ok := r.outVars[connKey{it.LocalID, v.FormalParameter}]; ok {
				f.Outputs = append(f.Outputs, models.Binding{Pin: v.FormalParameter, Expr: strings.TrimSpace(ov.Expression)})
			}
		}
	}
	return f, nil
}

type pendingNet struct {
	key    int
	net    models.Network
	drives map[*models.Expr]int
}

func (n *pendingNet) add(pw *models.Expr, e models.Element) {
	if i, ok := n.drives[pw]; ok {
		n.net.Drives[i].Outputs = append(n.net.Drives[i].Outputs, e)
		return
	}
	n.drives[pw] = len(n.net.Drives)
	n.net.Drives = append(n.net.Drives, models.Drive{Power: pw, Outputs: []models.Element{e}})
}

func pinOwner(r *ldReader, e *models.Expr) int {
	for _, l := range e.Leaves() {
		if id, ok := r.pins[l]; ok {
			return id
		}
	}
	return 0
}

func (r *ldReader) rung(seg *segment) error {
	byBlock := map[int]*pendingNet{}
	plain := map[*models.Expr]*pendingNet{}
	var nets []*pendingNet
	for _, it := range seg.items {
		el, ok := r.blocks[it.LocalID]
		if !ok {
			continue
		}
		pin := formal(it.Inputs, string(models.InputPin(el)))
		if pin == nil || pin.In == nil {
			return faults.SchemaViolation(r.path(it), "block input "+string(models.InputPin(el))+" is not connected")
		}
		in, err := r.inPower([]connInXML{*pin.In})
		if err != nil {
			return err
		}
		if in == nil {
			e := faults.New(faults.KindInvariantViolation, "no conductive path to %s", it.InstanceName)
			e.Path = r.path(it)
			return e
		}
		if in.HasPin() {
			e := faults.New(faults.KindInvariantViolation, "cascaded blocks: %s is fed by another block", it.InstanceName)
			e.Path = r.path(it)
			return e
		}
		n := &pendingNet{key: it.LocalID, net: models.Network{Block: &models.BlockCall{Element: el, Input: in}}, drives: map[*models.Expr]int{}}
		byBlock[it.LocalID] = n
		nets = append(nets, n)
	}
	for _, it := range seg.items {
		if _, isBlock := r.blocks[it.LocalID]; isBlock {
			continue
		}
		el, pw, err := r.output(it)
		if err != nil {
			return err
		}
		if el == nil {
			continue
		}
		if pw == nil {
			e := faults.New(faults.KindInvariantViolation, "no conductive path to %s", el.Kind())
			e.Path = r.path(it)
			return e
		}
		if pw.HasPin() {
			n := byBlock[pinOwner(r, pw)]
			if _, _, ok := pw.SplitPin(); !ok || n == nil {
				return faults.Unsupported(fmt.Sprintf("%s: branch around a timer/counter block or across rungs", r.path(it)))
			}
			n.add(pw, el)
			continue
		}
		n, ok := plain[pw]
		if !ok {
			n = &pendingNet{key: it.LocalID, drives: map[*models.Expr]int{}}
			plain[pw] = n
			nets = append(nets, n)
		}
		n.add(pw, el)
	}
	sort.SliceStable(nets, func(i, j int) bool { return nets[i].key < nets[j].key })

	rg, err := r.u.AddRung(seg.name, seg.comment, seg.label)
	if err != nil {
		return err
	}
	list := make([]models.Network, len(nets))
	for i, n := range nets {
		list[i] = n.net
	}
	if err := rg.SetIL(models.RenderIL(list)); err != nil {
		return err
	}
	return rg.SyncGrid()
}
