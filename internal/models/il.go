package models

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

// RenderIL renders networks in IL normal form.
func RenderIL(nets []Network) []Instruction {
	var out []Instruction
	for _, n := range nets {
		if n.Block == nil {
			for _, d := range n.Drives {
				out = append(out, renderLoad(d.Power)...)
				out = append(out, outputInstructions(d.Outputs)...)
			}
			continue
		}
		out = append(out, Instruction{Op: OpBLK, Operand: Descriptor(n.Block.Element)})
		out = append(out, renderLoad(n.Block.Input)...)
		out = append(out, Instruction{Op: InputPin(n.Block.Element)}, Instruction{Op: OpOutBLK})
		for _, d := range n.Drives {
			out = append(out, renderLoad(d.Power)...)
			out = append(out, outputInstructions(d.Outputs)...)
		}
		out = append(out, Instruction{Op: OpEndBLK})
	}
	return out
}

func leafOperand(e *Expr) string {
	switch e.Kind {
	case ExprTrue:
		return "TRUE"
	case ExprCompare:
		return "[ " + e.Operand + " ]"
	}
	return e.Operand
}

// renderLoad loads e into the accumulator.
func renderLoad(e *Expr) []Instruction {
	if e.IsLeaf() {
		op := OpLD
		if e.Negated {
			op = OpLDN
		}
		return []Instruction{{Op: op, Operand: leafOperand(e)}}
	}
	out := renderLoad(e.Args[0])
	combine := OpAND
	if e.Kind == ExprOr {
		combine = OpOR
	}
	for _, a := range e.Args[1:] {
		out = append(out, renderOperand(combine, a)...)
	}
	return out
}

// renderOperand combines e into the accumulator with AND or OR. Composite
// operands open a parenthesis; a leading plain load folds into it.
func renderOperand(combine Mnemonic, e *Expr) []Instruction {
	if e.IsLeaf() {
		op := combine
		if e.Negated {
			op += "N"
		}
		return []Instruction{{Op: op, Operand: leafOperand(e)}}
	}
	open := OpANDP
	if combine == OpOR {
		open = OpORP
	}
	inner := renderLoad(e)
	var out []Instruction
	if inner[0].Op == OpLD {
		out = append(out, Instruction{Op: open, Operand: inner[0].Operand})
		inner = inner[1:]
	} else {
		out = append(out, Instruction{Op: open})
	}
	out = append(out, inner...)
	return append(out, Instruction{Op: OpClose})
}

func outputInstructions(outs []Element) []Instruction {
	var out []Instruction
	for _, o := range outs {
		switch v := o.(type) {
		case *Coil:
			op := OpST
			switch v.Storage {
			case StorageNegated:
				op = OpSTN
			case StorageSet:
				op = OpS
			case StorageReset:
				op = OpR
			}
			out = append(out, Instruction{Op: op, Operand: v.Descriptor})
		case *Operation:
			out = append(out, Instruction{Op: OpExpr, Operand: v.Expr})
		case *FunctionBlock:
			out = append(out, Instruction{Op: OpCAL, Operand: v.Call()})
		case *Jump:
			out = append(out, Instruction{Op: OpJMP, Operand: v.Label})
		}
	}
	return out
}

// BlockResolver supplies the timer or counter behind a BLK operand.
type BlockResolver func(descriptor string) Element

// DefaultBlock guesses a block from its descriptor: counters for %C and C
// prefixes, timers otherwise.
func DefaultBlock(descriptor string) Element {
	d := strings.ToUpper(strings.TrimPrefix(descriptor, "%"))
	if strings.HasPrefix(d, "C") {
		return &Counter{Descriptor: descriptor, Type: CounterCTU}
	}
	return &Timer{Descriptor: descriptor, Type: TimerTON}
}

type blockMode int

const (
	modePlain blockMode = iota
	modeBlockInput
	modeBlockLatched
	modeBlockOutput
)

type ilFrame struct {
	acc     *Expr
	combine Mnemonic
}

type ilParser struct {
	resolve BlockResolver
	nets    []Network
	cur     *Network
	mode    blockMode
	acc     *Expr
	stack   []ilFrame
	drive   *Expr // power of the drive currently collecting outputs
}

// ParseIL rebuilds the networks of an IL listing. A nil resolver falls back to
// DefaultBlock.
func ParseIL(ins []Instruction, resolve BlockResolver) ([]Network, error) {
	if resolve == nil {
		resolve = DefaultBlock
	}
	p := &ilParser{resolve: resolve}
	for i, in := range ins {
		if err := p.step(in); err != nil {
			return nil, faults.ParseError(i+1, 1, fmt.Sprintf("%s: %v", in.Text(), err))
		}
	}
	if len(p.stack) > 0 {
		return nil, faults.ParseError(len(ins), 1, "unbalanced parenthesis")
	}
	if p.mode != modePlain {
		return nil, faults.ParseError(len(ins), 1, "missing END_BLK")
	}
	if p.acc != nil && p.drive != p.acc {
		return nil, faults.ParseError(len(ins), 1, "condition without output")
	}
	p.flush()
	return p.nets, nil
}

func (p *ilParser) operand(s string) (*Expr, error) {
	t := strings.TrimSpace(s)
	switch {
	case t == "":
		return nil, fmt.Errorf("missing operand")
	case strings.EqualFold(t, "TRUE"):
		return True(), nil
	case strings.HasPrefix(t, "["):
		return Cmp(strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(t, "["), "]"))), nil
	case p.mode == modeBlockOutput && p.cur != nil && t == OutputPin(p.cur.Block.Element):
		return Pin(t), nil
	}
	return Lit(t, false), nil
}

func (p *ilParser) flush() {
	if p.cur != nil && (len(p.cur.Drives) > 0 || p.cur.Block != nil) {
		p.nets = append(p.nets, *p.cur)
	}
	p.cur = nil
	p.drive = nil
}

func (p *ilParser) step(in Instruction) error {
	switch in.Op {
	case OpLD, OpLDN:
		x, err := p.operand(in.Operand)
		if err != nil {
			return err
		}
		if in.Op == OpLDN {
			x = negate(x)
		}
		if len(p.stack) > 0 && p.acc == nil {
			p.acc = x
			return nil
		}
		if len(p.stack) > 0 {
			return fmt.Errorf("load inside an open parenthesis")
		}
		if p.mode == modeBlockLatched {
			return fmt.Errorf("expected OUT_BLK")
		}
		if p.mode == modePlain && p.cur != nil {
			p.flush()
		}
		p.acc = x
	case OpAND, OpANDN, OpOR, OpORN:
		if p.acc == nil {
			return fmt.Errorf("no condition loaded")
		}
		x, err := p.operand(in.Operand)
		if err != nil {
			return err
		}
		if in.Op == OpANDN || in.Op == OpORN {
			x = negate(x)
		}
		if in.Op == OpAND || in.Op == OpANDN {
			p.acc = And(p.acc, x)
		} else {
			p.acc = Or(p.acc, x)
		}
	case OpANDP, OpORP:
		if p.acc == nil {
			return fmt.Errorf("no condition loaded")
		}
		combine := OpAND
		if in.Op == OpORP {
			combine = OpOR
		}
		p.stack = append(p.stack, ilFrame{acc: p.acc, combine: combine})
		p.acc = nil
		if in.Operand != "" {
			x, err := p.operand(in.Operand)
			if err != nil {
				return err
			}
			p.acc = x
		}
	case OpClose:
		if len(p.stack) == 0 {
			return fmt.Errorf("unbalanced parenthesis")
		}
		if p.acc == nil {
			return fmt.Errorf("empty parenthesis")
		}
		f := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		if f.combine == OpAND {
			p.acc = And(f.acc, p.acc)
		} else {
			p.acc = Or(f.acc, p.acc)
		}
	case OpST, OpSTN, OpS, OpR, OpJMP, OpCAL, OpExpr:
		return p.output(in)
	case OpBLK:
		if p.mode != modePlain || len(p.stack) > 0 {
			return fmt.Errorf("nested block")
		}
		if in.Operand == "" {
			return fmt.Errorf("missing block operand")
		}
		p.flush()
		p.cur = &Network{Block: &BlockCall{Element: p.resolve(in.Operand)}}
		p.mode = modeBlockInput
		p.acc = nil
	case OpIN, OpCU, OpCD:
		if p.mode != modeBlockInput {
			return fmt.Errorf("%s outside a block", in.Op)
		}
		if p.acc == nil || len(p.stack) > 0 {
			return fmt.Errorf("block input has no condition")
		}
		p.cur.Block.Input = p.acc
		p.mode = modeBlockLatched
		p.acc = nil
	case OpOutBLK:
		if p.mode != modeBlockLatched {
			return fmt.Errorf("OUT_BLK before the block input")
		}
		p.mode = modeBlockOutput
	case OpEndBLK:
		if p.mode != modeBlockOutput && p.mode != modeBlockLatched {
			return fmt.Errorf("END_BLK outside a block")
		}
		if p.acc != nil && p.drive != p.acc {
			return fmt.Errorf("condition without output")
		}
		p.nets = append(p.nets, *p.cur)
		p.cur = nil
		p.drive = nil
		p.acc = nil
		p.mode = modePlain
	default:
		return fmt.Errorf("unsupported mnemonic")
	}
	return nil
}

func (p *ilParser) output(in Instruction) error {
	if p.acc == nil {
		return fmt.Errorf("output without condition")
	}
	if len(p.stack) > 0 {
		return fmt.Errorf("output inside an open parenthesis")
	}
	if p.mode == modeBlockInput || p.mode == modeBlockLatched {
		return fmt.Errorf("output inside the block input section")
	}
	var e Element
	switch in.Op {
	case OpST:
		e = &Coil{Descriptor: in.Operand, Storage: StorageNone}
	case OpSTN:
		e = &Coil{Descriptor: in.Operand, Storage: StorageNegated}
	case OpS:
		e = &Coil{Descriptor: in.Operand, Storage: StorageSet}
	case OpR:
		e = &Coil{Descriptor: in.Operand, Storage: StorageReset}
	case OpJMP:
		e = &Jump{Label: in.Operand}
	case OpExpr:
		e = &Operation{Expr: in.Operand}
	case OpCAL:
		inst, ins, outs, err := ParseCall(in.Operand)
		if err != nil {
			return err
		}
		e = &FunctionBlock{Instance: inst, Inputs: ins, Outputs: outs}
	}
	if in.Operand == "" {
		return fmt.Errorf("missing operand")
	}
	if p.mode == modePlain {
		if p.cur != nil && p.drive != p.acc {
			p.flush()
		}
		if p.cur == nil {
			p.cur = &Network{}
		}
	} else if p.acc.HasPin() {
		if _, _, ok := p.acc.SplitPin(); !ok {
			return fmt.Errorf("branch around the block output")
		}
	} else {
		return fmt.Errorf("block output section must start from %s", OutputPin(p.cur.Block.Element))
	}
	if p.drive != p.acc || len(p.cur.Drives) == 0 {
		p.cur.Drives = append(p.cur.Drives, Drive{Power: p.acc})
		p.drive = p.acc
	}
	d := &p.cur.Drives[len(p.cur.Drives)-1]
	d.Outputs = append(d.Outputs, e)
	return nil
}

func negate(x *Expr) *Expr {
	c := *x
	c.Negated = !c.Negated
	return &c
}
