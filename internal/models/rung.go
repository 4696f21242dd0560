package models

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

// Rung is one ladder rung. Elements is the grid view and IL the instruction
// view; both describe the same networks.
type Rung struct {
	Index          int
	Name           string
	Comment        string
	Label          string
	LadderSelected bool
	Elements       []Element
	IL             []Instruction

	owner *POU
}

// POU returns the POU owning r.
func (r *Rung) POU() *POU { return r.owner }

func (r *Rung) project() *Project {
	if r.owner == nil {
		return nil
	}
	return r.owner.owner
}

func (r *Rung) path() string {
	if r.owner == nil {
		return fmt.Sprintf("rung %d", r.Index)
	}
	return fmt.Sprintf("%s/rung %d", r.owner.Name, r.Index)
}

func (r *Rung) maxElements() int {
	if p := r.project(); p != nil {
		return p.Limits.MaxElementsPerRung
	}
	return DefaultLimits().MaxElementsPerRung
}

// At returns the element at (row, col), or nil.
func (r *Rung) At(row, col int) Element {
	for _, e := range r.Elements {
		p := e.placement()
		if p.Row == row && p.Column == col {
			return e
		}
	}
	return nil
}

// Rows is the number of grid rows in use.
func (r *Rung) Rows() int {
	n := 0
	for _, e := range r.Elements {
		if row := e.placement().Row + 1; row > n {
			n = row
		}
	}
	return n
}

// Place puts e on the grid at (row, col).
func (r *Rung) Place(e Element, row, col int) error {
	if err := r.project().mutable(); err != nil {
		return err
	}
	if row < 0 || col < 0 || col >= GridColumns {
		err := faults.New(faults.KindGridOutOfBounds, "cell (%d,%d) is outside columns 0..%d", row, col, OutputColumn)
		err.Path = r.path()
		return err
	}
	if other := r.At(row, col); other != nil {
		err := faults.New(faults.KindCellOccupied, "cell (%d,%d) already holds %s", row, col, other.Kind())
		err.Path = r.path()
		return err
	}
	if max := r.maxElements(); max > 0 && len(r.Elements) >= max {
		return faults.ResourceLimitExceeded("elements in "+r.path(), int64(max))
	}
	p := e.placement()
	p.Row, p.Column = row, col
	r.Elements = append(r.Elements, e)
	return nil
}

// Networks derives the networks of the grid view.
func (r *Rung) Networks() ([]Network, error) {
	nets, err := ExtractNetworks(r.Elements)
	if err != nil {
		if fe, ok := err.(*faults.Error); ok && fe.Path == "" {
			fe.Path = r.path()
		}
		return nil, err
	}
	return nets, nil
}

func (r *Rung) resolver() BlockResolver {
	if r.owner == nil {
		return DefaultBlock
	}
	grid := map[string]Element{}
	for _, e := range r.Elements {
		if IsBlock(e) {
			grid[Descriptor(e)] = e
		}
	}
	declared := r.owner.Resolver()
	return func(d string) Element {
		if e, ok := grid[d]; ok {
			return CloneElement(e)
		}
		return declared(d)
	}
}

// ILNetworks derives the networks of the instruction view.
func (r *Rung) ILNetworks() ([]Network, error) {
	nets, err := ParseIL(r.IL, r.resolver())
	if err != nil {
		if fe, ok := err.(*faults.Error); ok {
			fe.Path = r.path()
		}
		return nil, err
	}
	return nets, nil
}

// EmitIL regenerates the instruction view from the grid.
func (r *Rung) EmitIL() error {
	if err := r.project().mutable(); err != nil {
		return err
	}
	nets, err := r.Networks()
	if err != nil {
		return err
	}
	r.IL = RenderIL(nets)
	return nil
}

// SetIL replaces the instruction view.
func (r *Rung) SetIL(ins []Instruction) error {
	if err := r.project().mutable(); err != nil {
		return err
	}
	r.IL = append([]Instruction(nil), ins...)
	return nil
}

// SyncGrid rebuilds the grid from the instruction view in canonical layout.
// Contacts and coils pick up the symbol of the tag bound to their address.
func (r *Rung) SyncGrid() error {
	if err := r.project().mutable(); err != nil {
		return err
	}
	nets, err := r.ILNetworks()
	if err != nil {
		return err
	}
	elems, err := SynthesizeGrid(nets)
	if err != nil {
		if fe, ok := err.(*faults.Error); ok {
			fe.Path = r.path()
		}
		return err
	}
	if max := r.maxElements(); max > 0 && len(elems) > max {
		return faults.ResourceLimitExceeded("elements in "+r.path(), int64(max))
	}
	if r.owner != nil {
		for _, e := range elems {
			switch v := e.(type) {
			case *Contact:
				v.Symbol = r.owner.SymbolOf(v.Descriptor)
			case *Coil:
				v.Symbol = r.owner.SymbolOf(v.Descriptor)
			}
		}
	}
	r.Elements = elems
	return nil
}

// ValidateEquivalence checks that the grid and the instruction view describe
// the same networks.
func (r *Rung) ValidateEquivalence() error {
	grid, err := r.Networks()
	if err != nil {
		return err
	}
	il, err := r.ILNetworks()
	if err != nil {
		return err
	}
	g, i := CanonicalNetworks(grid), CanonicalNetworks(il)
	if strings.Join(g, "\n") != strings.Join(i, "\n") {
		e := faults.New(faults.KindInvariantViolation, "ladder and IL views differ: grid %s, IL %s",
			strings.Join(g, " ; "), strings.Join(i, " ; "))
		e.Path = r.path()
		return e
	}
	return nil
}

// SymbolOf returns the name of the tag bound to address d, or "".
func (u *POU) SymbolOf(d string) string {
	for _, t := range u.Tags {
		if t.Address == d {
			return t.Name
		}
	}
	if u.owner != nil {
		for _, t := range u.owner.Tags {
			if t.Address == d {
				return t.Name
			}
		}
	}
	return ""
}
