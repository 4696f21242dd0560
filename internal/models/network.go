package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

// Drive is a set of outputs sharing one power expression.
type Drive struct {
	Power   *Expr
	Outputs []Element
}

// BlockCall is a timer or counter whose input pin latches Input.
type BlockCall struct {
	Element Element
	Input   *Expr
}

// Network is one independent circuit of a rung. A plain network has a
// single drive; a block network has any number of drives expressed over
// the block's output pin, or none when the block itself terminates the rung.
type Network struct {
	Block  *BlockCall
	Drives []Drive
}

// Canonical renders the network so that equivalent networks compare equal.
// Powers are compared in sum-of-products form.
func (n Network) Canonical() string {
	var drives []string
	for _, d := range n.Drives {
		outs := make([]string, len(d.Outputs))
		for i, o := range d.Outputs {
			outs[i] = canonicalOutput(o)
		}
		sort.Strings(outs)
		drives = append(drives, d.Power.Normal()+" => "+strings.Join(outs, "; "))
	}
	sort.Strings(drives)
	body := strings.Join(drives, " | ")
	if n.Block == nil {
		return body
	}
	return fmt.Sprintf("BLK %s %s(%s) {%s}",
		Descriptor(n.Block.Element), InputPin(n.Block.Element), n.Block.Input.Normal(), body)
}

func canonicalOutput(e Element) string {
	switch v := e.(type) {
	case *Coil:
		s := v.Storage
		if s == "" {
			s = StorageNone
		}
		return "coil/" + string(s) + " " + v.Descriptor
	case *Operation:
		return "op " + normalizeSpaces(v.Expr)
	case *FunctionBlock:
		return "cal " + normalizeSpaces(v.Call())
	case *Jump:
		return "jmp " + v.Label
	}
	return string(e.Kind())
}

// CanonicalNetworks sorts the canonical forms of nets.
func CanonicalNetworks(nets []Network) []string {
	out := make([]string, len(nets))
	for i, n := range nets {
		out[i] = n.Canonical()
	}
	sort.Strings(out)
	return out
}

// unionFind joins grid nodes that are wired together vertically.
type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(x int) int {
	for u[x] != x {
		u[x] = u[u[x]]
		x = u[x]
	}
	return x
}

func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u[rb] = ra
	} else {
		u[ra] = rb
	}
}

// boundaries is the number of vertical node lines per row: the left rail,
// one between each pair of columns, and the right rail.
const boundaries = GridColumns + 1

type termGroup struct {
	left int
	lits []*Expr
}

type blockState struct {
	elem   Element
	input  *Expr
	drives []Drive
	anchor int
}

// ExtractNetworks derives the boolean networks of a ladder grid. Power enters
// at the left rail and flows strictly left to right, so node powers are
// computed one boundary at a time.
func ExtractNetworks(elems []Element) ([]Network, error) {
	if len(elems) == 0 {
		return nil, nil
	}
	rows := 0
	for _, e := range elems {
		p := e.placement()
		if p.Row < 0 || p.Column < 0 || p.Column >= GridColumns {
			return nil, faults.New(faults.KindGridOutOfBounds, "cell (%d,%d) is outside the grid", p.Row, p.Column)
		}
		if p.Row+1 > rows {
			rows = p.Row + 1
		}
	}
	sorted := append([]Element(nil), elems...)
	sortElements(sorted)

	node := func(r, k int) int { return r*boundaries + k }
	uf := newUnionFind(rows * boundaries)
	for r := 1; r < rows; r++ {
		uf.union(node(0, 0), node(r, 0))
	}
	for _, e := range sorted {
		p := e.placement()
		if p.Connections.Has(Up) && p.Row > 0 {
			uf.union(node(p.Row, p.Column+1), node(p.Row-1, p.Column+1))
		}
		if p.Connections.Has(Down) && p.Row+1 < rows {
			uf.union(node(p.Row, p.Column+1), node(p.Row+1, p.Column+1))
		}
	}

	power := map[int]*Expr{uf.find(node(0, 0)): True()}
	var blocks []*blockState
	byColumn := make([][]Element, GridColumns)
	for _, e := range sorted {
		c := e.placement().Column
		byColumn[c] = append(byColumn[c], e)
	}

	for c := 0; c < GridColumns; c++ {
		var order []int
		groups := map[int][]*termGroup{}
		add := func(right, left int, lit *Expr) {
			gs, seen := groups[right]
			if !seen {
				order = append(order, right)
			}
			for _, g := range gs {
				if g.left == left {
					g.lits = append(g.lits, lit)
					return
				}
			}
			groups[right] = append(gs, &termGroup{left: left, lits: []*Expr{lit}})
		}
		for _, e := range byColumn[c] {
			p := e.placement()
			left := uf.find(node(p.Row, c))
			in := power[left]
			if in == nil {
				continue
			}
			right := uf.find(node(p.Row, c+1))
			switch v := e.(type) {
			case *Contact:
				add(right, left, Lit(v.Descriptor, v.Negated))
			case *Comparison:
				add(right, left, Cmp(v.Expression()))
			case *Line:
				if v.Conducts() {
					add(right, left, True())
				}
			case *Timer, *Counter:
				b := &blockState{elem: e, input: in, anchor: p.Row}
				blocks = append(blocks, b)
				pin := Pin(OutputPin(e))
				pin.block = len(blocks)
				// a block term stands alone; the pseudo-left key keeps it out of other groups
				add(right, -len(blocks), pin)
				power[-len(blocks)] = True()
			}
		}
		for _, right := range order {
			var terms []*Expr
			for _, g := range groups[right] {
				terms = append(terms, And(power[g.left], Or(g.lits...)))
			}
			power[right] = Or(append([]*Expr{power[right]}, terms...)...)
		}
	}

	for _, b := range blocks {
		if b.input.HasPin() {
			return nil, faults.New(faults.KindInvariantViolation, "cascaded blocks: %s is fed by another block", Descriptor(b.elem))
		}
	}

	type plain struct {
		drive  Drive
		anchor int
	}
	var plains []*plain
	type driveRef struct {
		pl    *plain
		block *blockState
		index int
	}
	driveIndex := map[int]driveRef{}
	for _, e := range sorted {
		if !IsOutput(e) {
			continue
		}
		p := e.placement()
		if p.Column != OutputColumn {
			return nil, faults.New(faults.KindInvariantViolation, "%s at (%d,%d) is outside the output column", e.Kind(), p.Row, p.Column)
		}
		class := uf.find(node(p.Row, OutputColumn))
		if ref, ok := driveIndex[class]; ok {
			if ref.pl != nil {
				ref.pl.drive.Outputs = append(ref.pl.drive.Outputs, e)
			} else {
				d := &ref.block.drives[ref.index]
				d.Outputs = append(d.Outputs, e)
			}
			continue
		}
		pw := power[class]
		if pw == nil {
			return nil, faults.New(faults.KindInvariantViolation, "no conductive path to %s at (%d,%d)", e.Kind(), p.Row, p.Column)
		}
		if !pw.HasPin() {
			pl := &plain{drive: Drive{Power: pw, Outputs: []Element{e}}, anchor: p.Row}
			plains = append(plains, pl)
			driveIndex[class] = driveRef{pl: pl}
			continue
		}
		owner := pinOwner(pw)
		if _, _, ok := pw.SplitPin(); !ok || owner == 0 {
			return nil, faults.Unsupported(fmt.Sprintf("branch around a timer/counter block feeding (%d,%d)", p.Row, p.Column))
		}
		b := blocks[owner-1]
		b.drives = append(b.drives, Drive{Power: pw, Outputs: []Element{e}})
		driveIndex[class] = driveRef{block: b, index: len(b.drives) - 1}
	}

	type anchored struct {
		net    Network
		anchor int
	}
	var all []anchored
	for _, pl := range plains {
		all = append(all, anchored{Network{Drives: []Drive{pl.drive}}, pl.anchor})
	}
	for _, b := range blocks {
		all = append(all, anchored{Network{Block: &BlockCall{Element: b.elem, Input: b.input}, Drives: b.drives}, b.anchor})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].anchor < all[j].anchor })
	nets := make([]Network, len(all))
	for i, a := range all {
		nets[i] = a.net
	}
	return nets, nil
}

// pinOwner returns the 1-based block index of the leading pin of e.
func pinOwner(e *Expr) int {
	for _, l := range e.Leaves() {
		if l.Kind == ExprPin {
			return l.block
		}
	}
	return 0
}

func sortElements(elems []Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i].placement(), elems[j].placement()
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Column < b.Column
	})
}
