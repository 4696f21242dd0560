package models

import (
	"github.com/plc-visualizer/plcforge/internal/faults"
)

type cell struct{ row, col int }

// layout accumulates the cells of a synthesised grid.
type layout struct {
	cells map[cell]Element
}

func (l *layout) put(r, c int, e Element) error {
	if c < 0 || c >= GridColumns {
		return faults.New(faults.KindGridOutOfBounds, "rung layout needs column %d", c)
	}
	p := e.placement()
	p.Row, p.Column = r, c
	l.cells[cell{r, c}] = e
	return nil
}

func (l *layout) line(r, from, to int) error {
	for c := from; c <= to; c++ {
		if err := l.put(r, c, &Line{Placement: Placement{Connections: Left | Right}, Shape: LineHorizontal}); err != nil {
			return err
		}
	}
	return nil
}

// joinUp wires the right edge of (r, c) to the row above. An empty cell gets
// a connector; a branch ending there turns upward instead of continuing.
func (l *layout) joinUp(r, c int, turn bool) error {
	if e, ok := l.cells[cell{r, c}]; ok {
		p := e.placement()
		p.Connections |= Up
		if turn {
			p.Connections &^= Right
		}
		return nil
	}
	return l.put(r, c, &Connector{Placement: Placement{Connections: Up}})
}

// place lays e out with its main row at r starting at column c and returns
// the width and height it used.
func (l *layout) place(e *Expr, r, c int) (w, h int, err error) {
	switch e.Kind {
	case ExprTrue, ExprPin:
		return 0, 1, nil
	case ExprContact:
		return 1, 1, l.put(r, c, &Contact{Placement: Placement{Connections: Left | Right}, Descriptor: e.Operand, Negated: e.Negated})
	case ExprCompare:
		cmp, perr := ParseComparison(e.Operand)
		if perr != nil {
			return 0, 0, faults.Wrap(faults.KindInvariantViolation, perr, "comparison cannot be drawn")
		}
		cmp.Connections = Left | Right
		return 1, 1, l.put(r, c, cmp)
	case ExprAnd:
		h = 1
		for _, a := range e.Args {
			aw, ah, err := l.place(a, r, c+w)
			if err != nil {
				return 0, 0, err
			}
			w += aw
			if ah > h {
				h = ah
			}
		}
		return w, h, nil
	}

	// parallel branches stack downward
	mains := make([]int, len(e.Args))
	widths := make([]int, len(e.Args))
	row := r
	for i, a := range e.Args {
		aw, ah, err := l.place(a, row, c)
		if err != nil {
			return 0, 0, err
		}
		mains[i], widths[i] = row, aw
		if aw > w {
			w = aw
		}
		row += ah
	}
	h = row - r
	if w == 0 {
		return 0, h, nil
	}
	for i := range e.Args {
		if widths[i] < w {
			if err := l.line(mains[i], c+widths[i], c+w-1); err != nil {
				return 0, 0, err
			}
		}
	}
	last := mains[len(mains)-1]
	for rr := r + 1; rr <= last; rr++ {
		turn := false
		for _, m := range mains[1:] {
			if m == rr {
				turn = true
			}
		}
		if err := l.joinUp(rr, c+w-1, turn); err != nil {
			return 0, 0, err
		}
		if c > 0 {
			if err := l.joinUp(rr, c-1, false); err != nil {
				return 0, 0, err
			}
		}
	}
	return w, h, nil
}

// drive lays out one drive whose condition starts at column c on row r and
// returns the rows it used.
func (l *layout) drive(cond *Expr, outs []Element, r, c int) (int, error) {
	w, h, err := l.place(cond, r, c)
	if err != nil {
		return 0, err
	}
	if c+w > OutputColumn {
		return 0, faults.New(faults.KindGridOutOfBounds, "condition needs %d columns", c+w)
	}
	if err := l.line(r, c+w, OutputColumn-1); err != nil {
		return 0, err
	}
	for i, o := range outs {
		e := CloneElement(o)
		e.placement().Connections = Left | Right
		if err := l.put(r+i, OutputColumn, e); err != nil {
			return 0, err
		}
		if i > 0 {
			if err := l.joinUp(r+i, OutputColumn-1, false); err != nil {
				return 0, err
			}
		}
	}
	if len(outs) > h {
		h = len(outs)
	}
	return h, nil
}

// SynthesizeGrid lays networks out in canonical form: series runs
// horizontally, parallel branches stack downward, lines pad each condition to
// column 9 and outputs occupy column 10.
func SynthesizeGrid(nets []Network) ([]Element, error) {
	l := &layout{cells: map[cell]Element{}}
	row := 0
	for _, n := range nets {
		if n.Block == nil {
			for _, d := range n.Drives {
				h, err := l.drive(d.Power, d.Outputs, row, 0)
				if err != nil {
					return nil, err
				}
				row += h
			}
			continue
		}
		wi, hi, err := l.place(n.Block.Input, row, 0)
		if err != nil {
			return nil, err
		}
		blk := CloneElement(n.Block.Element)
		blk.placement().Connections = Left | Right
		if len(n.Drives) == 0 {
			if wi > OutputColumn {
				return nil, faults.New(faults.KindGridOutOfBounds, "block input needs %d columns", wi)
			}
			if err := l.line(row, wi, OutputColumn-1); err != nil {
				return nil, err
			}
			if err := l.put(row, OutputColumn, blk); err != nil {
				return nil, err
			}
			row += hi
			continue
		}
		if wi >= OutputColumn {
			return nil, faults.New(faults.KindGridOutOfBounds, "block input needs %d columns", wi+1)
		}
		if err := l.put(row, wi, blk); err != nil {
			return nil, err
		}
		used := 0
		for i, d := range n.Drives {
			_, rest, ok := d.Power.SplitPin()
			if !ok {
				return nil, faults.Unsupported("branch around a timer/counter block")
			}
			if i > 0 {
				for rr := row + 1; rr <= row+used; rr++ {
					if err := l.joinUp(rr, wi, false); err != nil {
						return nil, err
					}
				}
			}
			h, err := l.drive(rest, d.Outputs, row+used, wi+1)
			if err != nil {
				return nil, err
			}
			used += h
		}
		if hi > used {
			used = hi
		}
		row += used
	}
	out := make([]Element, 0, len(l.cells))
	for _, e := range l.cells {
		out = append(out, e)
	}
	sortElements(out)
	return out, nil
}
