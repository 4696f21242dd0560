package plcopen

import (
	"encoding/xml"
	"strconv"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Layout pitch of emitted LD objects. Positions are informative only; the
// reader works from connections.
const (
	cellWidth  = 40
	cellHeight = 30
)

// operateBlock is the typeName of the block carrying an assignment.
const operateBlock = "OPERATE"

func elem(local string) xml.Name { return xml.Name{Local: local} }

// ldWriter lays out the LD body of one POU. localIds are allocated in
// emission order starting at the left rail.
type ldWriter struct {
	u     *models.POU
	items []ldItem
	col   int
	row   int
	// ENO outputs wired to the right rail
	enos []connXML
}

func newLDWriter(u *models.POU) *ldWriter {
	return &ldWriter{u: u}
}

func (w *ldWriter) add(it ldItem) int {
	it.LocalID = len(w.items) + 1
	it.Position = positionXML{X: w.col * cellWidth, Y: w.row * cellHeight}
	w.items = append(w.items, it)
	return it.LocalID
}

func conn(refs []connXML) []connInXML {
	return []connInXML{{Connections: refs}}
}

var outPoint = []connOutXML{{}}

func (w *ldWriter) body() (*ldXML, error) {
	rail := w.add(ldItem{XMLName: elem("leftPowerRail"), Outs: outPoint})
	for _, r := range w.u.Rungs {
		if err := w.rung(r, rail); err != nil {
			return nil, err
		}
	}
	if len(w.enos) > 0 {
		w.col, w.row = models.OutputColumn+1, 0
		var ins []connInXML
		for _, c := range w.enos {
			ins = append(ins, connInXML{Connections: []connXML{c}})
		}
		w.add(ldItem{XMLName: elem("rightPowerRail"), In: ins})
	}
	return &ldXML{Items: w.items}, nil
}

func (w *ldWriter) rung(r *models.Rung, rail int) error {
	text := r.Name
	if r.Comment != "" {
		text += "\n" + r.Comment
	}
	w.col = 0
	w.add(ldItem{XMLName: elem("comment"), Height: cellHeight, Width: cellWidth * models.GridColumns, Content: xhtml(text)})
	w.row++
	if r.Label != "" {
		w.add(ldItem{XMLName: elem("label"), Label: r.Label})
	}
	var nets []models.Network
	var err error
	if len(r.Elements) > 0 {
		nets, err = r.Networks()
	} else {
		nets, err = r.ILNetworks()
	}
	if err != nil {
		return err
	}
	railRef := []connXML{{RefLocalID: rail}}
	for _, n := range nets {
		w.col = 0
		if n.Block == nil {
			for _, d := range n.Drives {
				w.col = 0
				w.outputs(d.Outputs, w.expr(d.Power, railRef, nil))
				w.row++
			}
			continue
		}
		in := w.expr(n.Block.Input, railRef, nil)
		pin := w.block(n.Block.Element, in)
		for _, d := range n.Drives {
			w.outputs(d.Outputs, w.expr(d.Power, nil, &pin))
			w.row++
		}
		w.row++
	}
	return nil
}

// variable names an operand by its tag when one is bound to the address.
func (w *ldWriter) variable(d string) string {
	if s := w.u.SymbolOf(d); s != "" {
		return s
	}
	return d
}

// expr emits the contacts of e fed from in and returns the connection points
// carrying its result. pin is the output of the network's block, if any.
func (w *ldWriter) expr(e *models.Expr, in []connXML, pin *connXML) []connXML {
	switch e.Kind {
	case models.ExprTrue:
		return in
	case models.ExprContact, models.ExprCompare:
		it := ldItem{XMLName: elem("contact"), In: conn(in), Outs: outPoint}
		if e.Kind == models.ExprCompare {
			it.Variable = "[" + e.Operand + "]"
		} else {
			it.Variable = w.variable(e.Operand)
		}
		if e.Negated {
			it.Negated = "true"
		}
		id := w.add(it)
		w.col++
		return []connXML{{RefLocalID: id}}
	case models.ExprPin:
		return []connXML{*pin}
	case models.ExprAnd:
		for _, a := range e.Args {
			in = w.expr(a, in, pin)
		}
		return in
	}
	var out []connXML
	start, top := w.col, w.col
	for i, a := range e.Args {
		if i > 0 {
			w.row++
		}
		w.col = start
		out = append(out, w.expr(a, in, pin)...)
		if w.col > top {
			top = w.col
		}
	}
	w.col = top
	return out
}

func (w *ldWriter) outputs(outs []models.Element, in []connXML) {
	w.col = models.OutputColumn
	for i, o := range outs {
		if i > 0 {
			w.row++
		}
		switch v := o.(type) {
		case *models.Coil:
			it := ldItem{XMLName: elem("coil"), In: conn(in), Outs: outPoint, Variable: w.variable(v.Descriptor)}
			switch v.Storage {
			case models.StorageSet:
				it.Storage = "set"
			case models.StorageReset:
				it.Storage = "reset"
			case models.StorageNegated:
				it.Negated = "true"
			}
			w.add(it)
		case *models.Jump:
			w.add(ldItem{XMLName: elem("jump"), Label: v.Label, In: conn(in)})
		case *models.Operation:
			id := w.add(ldItem{
				XMLName:       elem("block"),
				TypeName:      operateBlock,
				Inputs:        &blockVarsXML{Variables: []blockVarXML{{FormalParameter: "EN", In: &connInXML{Connections: in}}}},
				Outputs:       &blockVarsXML{Variables: []blockVarXML{{FormalParameter: "ENO", Out: &connOutXML{}}}},
				Documentation: xhtml(v.Expr),
			})
			w.enos = append(w.enos, connXML{RefLocalID: id, FormalParameter: "ENO"})
		case *models.FunctionBlock:
			w.call(v, in)
		}
	}
}

// call emits a CAL: one inVariable per input binding, the block, then one
// outVariable per output binding.
func (w *ldWriter) call(f *models.FunctionBlock, in []connXML) {
	inputs := []blockVarXML{{FormalParameter: "EN", In: &connInXML{Connections: in}}}
	for _, b := range f.Inputs {
		id := w.add(ldItem{XMLName: elem("inVariable"), Outs: outPoint, Expression: b.Expr})
		inputs = append(inputs, blockVarXML{FormalParameter: b.Pin, In: &connInXML{Connections: []connXML{{RefLocalID: id}}}})
	}
	outputs := []blockVarXML{{FormalParameter: "ENO", Out: &connOutXML{}}}
	for _, b := range f.Outputs {
		outputs = append(outputs, blockVarXML{FormalParameter: b.Pin, Out: &connOutXML{}})
	}
	typeName := f.TypeName
	if typeName == "" {
		if inst := w.u.Instance(f.Instance); inst != nil && inst.Type != "" {
			typeName = inst.Type
		} else {
			typeName = "FB"
		}
	}
	id := w.add(ldItem{
		XMLName:      elem("block"),
		TypeName:     typeName,
		InstanceName: f.Instance,
		Inputs:       &blockVarsXML{Variables: inputs},
		Outputs:      &blockVarsXML{Variables: outputs},
	})
	w.enos = append(w.enos, connXML{RefLocalID: id, FormalParameter: "ENO"})
	for _, b := range f.Outputs {
		w.row++
		w.add(ldItem{XMLName: elem("outVariable"), In: conn([]connXML{{RefLocalID: id, FormalParameter: b.Pin}}), Expression: b.Expr})
	}
}

// block emits a timer or counter with its preset and returns the connection
// point of the output that powers the rest of the network.
func (w *ldWriter) block(e models.Element, in []connXML) connXML {
	var (
		typeName, inPin, presetPin, preset string
		outs                               []string
	)
	switch v := e.(type) {
	case *models.Timer:
		base := v.Base
		if !base.Valid() {
			base = address.Base1ms
		}
		typeName, inPin, presetPin = string(v.Type), "IN", "PT"
		preset = address.FormatIECTime(address.Preset{Value: v.Preset, Base: base}.Millis())
		outs = []string{"Q", "ET"}
	case *models.Counter:
		typeName, inPin, presetPin = string(v.Type), "CU", "PV"
		if v.Type == models.CounterCTD {
			inPin = "CD"
		}
		preset = strconv.FormatInt(v.Preset, 10)
		outs = []string{iecPin(e), "CV"}
	}
	pv := w.add(ldItem{XMLName: elem("inVariable"), Outs: outPoint, Expression: preset})
	var outputs []blockVarXML
	for _, o := range outs {
		outputs = append(outputs, blockVarXML{FormalParameter: o, Out: &connOutXML{}})
	}
	id := w.add(ldItem{
		XMLName:      elem("block"),
		TypeName:     typeName,
		InstanceName: models.Descriptor(e),
		Inputs: &blockVarsXML{Variables: []blockVarXML{
			{FormalParameter: inPin, In: &connInXML{Connections: in}},
			{FormalParameter: presetPin, In: &connInXML{Connections: []connXML{{RefLocalID: pv}}}},
		}},
		Outputs: &blockVarsXML{Variables: outputs},
	})
	w.col++
	return connXML{RefLocalID: id, FormalParameter: iecPin(e)}
}

// iecPin is the IEC name of the output a block's power leaves through.
func iecPin(e models.Element) string {
	if c, ok := e.(*models.Counter); ok && c.Type == models.CounterCTUD {
		return "QU"
	}
	return "Q"
}

func isBlockType(typeName string) bool {
	switch typeName {
	case string(models.TimerTON), string(models.TimerTOF), string(models.TimerTP),
		string(models.CounterCTU), string(models.CounterCTD), string(models.CounterCTUD):
		return true
	}
	return false
}

func unknownBlock(path, typeName string) error {
	return faults.SchemaViolation(path, "block "+typeName+" has no instanceName")
}
