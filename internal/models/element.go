package models

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
)

// Grid bounds. Column 0 touches the left rail, column 10 is the output column.
const (
	OutputColumn = 10
	GridColumns  = 11
)

// ElementKind names a ladder element variant. The string is also the
// <ElementType> value written to Schneider documents.
type ElementKind string

const (
	KindNormalContact  ElementKind = "NormalContact"
	KindNegatedContact ElementKind = "NegatedContact"
	KindCoil           ElementKind = "Coil"
	KindLine           ElementKind = "Line"
	KindTimer          ElementKind = "Timer"
	KindCounter        ElementKind = "Counter"
	KindFunctionBlock  ElementKind = "FunctionBlock"
	KindComparison     ElementKind = "Comparison"
	KindOperation      ElementKind = "Operation"
	KindConnector      ElementKind = "Connector"
	KindJump           ElementKind = "Jump"
)

// Directions is the set of cell edges an element exposes.
type Directions uint8

const (
	Up Directions = 1 << iota
	Down
	Left
	Right
)

var directionNames = []struct {
	d    Directions
	name string
}{{Up, "Up"}, {Down, "Down"}, {Left, "Left"}, {Right, "Right"}}

// Has reports whether every direction in x is present.
func (d Directions) Has(x Directions) bool { return d&x == x }

// String renders the set comma-separated in Up, Down, Left, Right order.
func (d Directions) String() string {
	var parts []string
	for _, n := range directionNames {
		if d.Has(n.d) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseDirections reads a comma-separated direction list.
func ParseDirections(s string) (Directions, error) {
	var d Directions
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		found := false
		for _, n := range directionNames {
			if strings.EqualFold(p, n.name) {
				d |= n.d
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown connection %q", p)
		}
	}
	return d, nil
}

// Placement locates an element on the grid.
type Placement struct {
	Row         int
	Column      int
	Connections Directions
}

func (p *Placement) placement() *Placement { return p }

// Element is the closed set of ladder element variants. Every variant embeds
// Placement; switch on the concrete type to handle a variant.
type Element interface {
	Kind() ElementKind
	placement() *Placement
}

// Pos returns the placement of e.
func Pos(e Element) Placement { return *e.placement() }

// CoilStorage selects how a coil writes its operand.
type CoilStorage string

const (
	StorageNone    CoilStorage = "none"
	StorageSet     CoilStorage = "set"
	StorageReset   CoilStorage = "reset"
	StorageNegated CoilStorage = "negated"
)

// LineShape is the drawing of a Line cell.
type LineShape string

const (
	LineHorizontal LineShape = "horizontal"
	LineVertical   LineShape = "vertical"
	LineCornerNE   LineShape = "corner-NE"
	LineCornerNW   LineShape = "corner-NW"
	LineCornerSE   LineShape = "corner-SE"
	LineCornerSW   LineShape = "corner-SW"
)

// TimerType selects the IEC timer behaviour.
type TimerType string

const (
	TimerTON TimerType = "TON"
	TimerTOF TimerType = "TOF"
	TimerTP  TimerType = "TP"
)

// CounterType selects the IEC counter behaviour.
type CounterType string

const (
	CounterCTU  CounterType = "CTU"
	CounterCTD  CounterType = "CTD"
	CounterCTUD CounterType = "CTUD"
)

// Contact reads a boolean operand. Negated contacts conduct when it is false.
type Contact struct {
	Placement
	Descriptor string
	Symbol     string
	Comment    string
	Negated    bool
}

func (c *Contact) Kind() ElementKind {
	if c.Negated {
		return KindNegatedContact
	}
	return KindNormalContact
}

// Coil writes the rung result to its operand.
type Coil struct {
	Placement
	Descriptor string
	Symbol     string
	Comment    string
	Storage    CoilStorage
}

func (*Coil) Kind() ElementKind { return KindCoil }

// Line is wiring between cells.
type Line struct {
	Placement
	Shape LineShape
}

func (*Line) Kind() ElementKind { return KindLine }

// Conducts reports whether the line carries power from its left edge to its right.
func (l *Line) Conducts() bool {
	return l.Shape == LineHorizontal || l.Connections.Has(Left|Right)
}

// Timer is a %TM block placed on the grid.
type Timer struct {
	Placement
	Descriptor string
	Symbol     string
	Comment    string
	Type       TimerType
	Base       address.TimeBase
	Preset     int64
}

func (*Timer) Kind() ElementKind { return KindTimer }

// Counter is a %C block placed on the grid.
type Counter struct {
	Placement
	Descriptor string
	Symbol     string
	Comment    string
	Type       CounterType
	Preset     int64
}

func (*Counter) Kind() ElementKind { return KindCounter }

// Binding ties a block pin to an operand expression.
type Binding struct {
	Pin  string `json:"pin" yaml:"pin"`
	Expr string `json:"expr" yaml:"expr"`
}

// FunctionBlock calls a block instance such as PID_FIXCYCLE.
type FunctionBlock struct {
	Placement
	TypeName string
	Instance string
	Inputs   []Binding
	Outputs  []Binding
}

func (*FunctionBlock) Kind() ElementKind { return KindFunctionBlock }

// Call renders the CAL operand: inst(IN := x, OUT => y).
func (f *FunctionBlock) Call() string {
	var args []string
	for _, b := range f.Inputs {
		args = append(args, b.Pin+" := "+b.Expr)
	}
	for _, b := range f.Outputs {
		args = append(args, b.Pin+" => "+b.Expr)
	}
	return f.Instance + "(" + strings.Join(args, ", ") + ")"
}

// ParseCall is the inverse of FunctionBlock.Call.
func ParseCall(s string) (instance string, inputs, outputs []Binding, err error) {
	t := strings.TrimSpace(s)
	open := strings.IndexByte(t, '(')
	if open < 0 {
		return t, nil, nil, nil
	}
	if !strings.HasSuffix(t, ")") {
		return "", nil, nil, fmt.Errorf("unterminated call %q", s)
	}
	instance = strings.TrimSpace(t[:open])
	body := strings.TrimSpace(t[open+1 : len(t)-1])
	if body == "" {
		return instance, nil, nil, nil
	}
	for _, arg := range strings.Split(body, ",") {
		if pin, expr, ok := strings.Cut(arg, "=>"); ok {
			outputs = append(outputs, Binding{Pin: strings.TrimSpace(pin), Expr: strings.TrimSpace(expr)})
		} else if pin, expr, ok := strings.Cut(arg, ":="); ok {
			inputs = append(inputs, Binding{Pin: strings.TrimSpace(pin), Expr: strings.TrimSpace(expr)})
		} else {
			return "", nil, nil, fmt.Errorf("malformed argument %q", arg)
		}
	}
	return instance, inputs, outputs, nil
}

// Comparison operators.
var comparisonOps = []string{"<>", "<=", ">=", "=", "<", ">"}

// Comparison conducts when its expression holds.
type Comparison struct {
	Placement
	Left  string
	Op    string
	Right string
}

func (*Comparison) Kind() ElementKind { return KindComparison }

// Expression renders "a OP b".
func (c *Comparison) Expression() string {
	return c.Left + " " + c.Op + " " + c.Right
}

// ParseComparison splits "a OP b". The operators ≠ ≤ ≥ are accepted as
// spellings of <> <= >=.
func ParseComparison(s string) (*Comparison, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(t, "[")
	t = strings.TrimSuffix(t, "]")
	t = strings.NewReplacer("≠", "<>", "≤", "<=", "≥", ">=").Replace(t)
	for _, op := range comparisonOps {
		if i := strings.Index(t, op); i > 0 {
			l := strings.TrimSpace(t[:i])
			r := strings.TrimSpace(t[i+len(op):])
			if l == "" || r == "" {
				break
			}
			return &Comparison{Left: l, Op: op, Right: r}, nil
		}
	}
	return nil, fmt.Errorf("malformed comparison %q", s)
}

// Operation is an assignment block, "destination := expression".
type Operation struct {
	Placement
	Expr string
}

func (*Operation) Kind() ElementKind { return KindOperation }

// Destination returns the left-hand side of the assignment.
func (o *Operation) Destination() string {
	d, _, _ := strings.Cut(o.Expr, ":=")
	return strings.TrimSpace(d)
}

// Connector is purely geometric wiring.
type Connector struct {
	Placement
}

func (*Connector) Kind() ElementKind { return KindConnector }

// Jump transfers control to a labelled rung.
type Jump struct {
	Placement
	Label string
}

func (*Jump) Kind() ElementKind { return KindJump }

// Descriptor returns the operand an element reads or writes, if any.
func Descriptor(e Element) string {
	switch v := e.(type) {
	case *Contact:
		return v.Descriptor
	case *Coil:
		return v.Descriptor
	case *Timer:
		return v.Descriptor
	case *Counter:
		return v.Descriptor
	case *FunctionBlock:
		return v.Instance
	}
	return ""
}

// IsOutput reports whether e belongs in the output column.
func IsOutput(e Element) bool {
	switch e.(type) {
	case *Coil, *Operation, *FunctionBlock, *Jump:
		return true
	}
	return false
}

// IsBlock reports whether e is a timer or counter block.
func IsBlock(e Element) bool {
	switch e.(type) {
	case *Timer, *Counter:
		return true
	}
	return false
}

// OutputPin is the pin that powers the right edge of a timer or counter.
func OutputPin(e Element) string {
	switch v := e.(type) {
	case *Timer:
		return "Q"
	case *Counter:
		if v.Type == CounterCTD {
			return "E"
		}
		return "D"
	}
	return ""
}

// InputPin is the IL mnemonic that latches a block's input.
func InputPin(e Element) Mnemonic {
	if c, ok := e.(*Counter); ok {
		if c.Type == CounterCTD {
			return OpCD
		}
		return OpCU
	}
	return OpIN
}

// CloneElement returns a deep copy of e.
func CloneElement(e Element) Element {
	switch v := e.(type) {
	case *Contact:
		c := *v
		return &c
	case *Coil:
		c := *v
		return &c
	case *Line:
		c := *v
		return &c
	case *Timer:
		c := *v
		return &c
	case *Counter:
		c := *v
		return &c
	case *FunctionBlock:
		c := *v
		c.Inputs = append([]Binding(nil), v.Inputs...)
		c.Outputs = append([]Binding(nil), v.Outputs...)
		return &c
	case *Comparison:
		c := *v
		return &c
	case *Operation:
		c := *v
		return &c
	case *Connector:
		c := *v
		return &c
	case *Jump:
		c := *v
		return &c
	}
	panic(fmt.Sprintf("models: unknown element %T", e))
}
