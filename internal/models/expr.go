package models

import (
	"sort"
	"strings"
)

// ExprKind classifies a node of a rung's boolean network.
type ExprKind int

const (
	ExprTrue ExprKind = iota
	ExprContact
	ExprCompare
	ExprPin
	ExprAnd
	ExprOr
)

// Expr is the boolean expression powering a node of the ladder grid.
// Contact leaves carry a descriptor, compare leaves the "a OP b" text and pin
// leaves the output pin of the block in the same network.
type Expr struct {
	Kind    ExprKind
	Operand string
	Negated bool
	Args    []*Expr

	block int // 1-based owner of a pin leaf while extracting a grid
}

// True is the always-powered left rail.
func True() *Expr { return &Expr{Kind: ExprTrue} }

// Lit is a contact leaf.
func Lit(descriptor string, negated bool) *Expr {
	return &Expr{Kind: ExprContact, Operand: descriptor, Negated: negated}
}

// Cmp is a comparison leaf. Well-formed comparisons are respaced as "a OP b".
func Cmp(expr string) *Expr {
	if c, err := ParseComparison(expr); err == nil {
		expr = c.Expression()
	}
	return &Expr{Kind: ExprCompare, Operand: expr}
}

// Pin is a block output leaf.
func Pin(name string) *Expr { return &Expr{Kind: ExprPin, Operand: name} }

// And conjoins its operands, flattening nested conjunctions and dropping
// constant true. Nil operands mean "no power" and make the result nil.
func And(xs ...*Expr) *Expr {
	var args []*Expr
	for _, x := range xs {
		switch {
		case x == nil:
			return nil
		case x.Kind == ExprTrue:
		case x.Kind == ExprAnd:
			args = append(args, x.Args...)
		default:
			args = append(args, x)
		}
	}
	switch len(args) {
	case 0:
		return True()
	case 1:
		return args[0]
	}
	return &Expr{Kind: ExprAnd, Args: args}
}

// Or disjoins its operands, flattening nested disjunctions. Nil operands are
// skipped; an operand of constant true makes the result true.
func Or(xs ...*Expr) *Expr {
	var args []*Expr
	for _, x := range xs {
		switch {
		case x == nil:
		case x.Kind == ExprTrue:
			return True()
		case x.Kind == ExprOr:
			args = append(args, x.Args...)
		default:
			args = append(args, x)
		}
	}
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	}
	return &Expr{Kind: ExprOr, Args: args}
}

// IsLeaf reports whether e is a single operand.
func (e *Expr) IsLeaf() bool {
	return e.Kind == ExprContact || e.Kind == ExprCompare || e.Kind == ExprPin || e.Kind == ExprTrue
}

// HasPin reports whether a block output occurs anywhere in e.
func (e *Expr) HasPin() bool {
	if e == nil {
		return false
	}
	if e.Kind == ExprPin {
		return true
	}
	for _, a := range e.Args {
		if a.HasPin() {
			return true
		}
	}
	return false
}

// SplitPin separates a block-output expression into the pin and the series
// that follows it. ok is false when the pin is not the leading term of a
// plain series.
func (e *Expr) SplitPin() (pin string, rest *Expr, ok bool) {
	switch {
	case e.Kind == ExprPin:
		return e.Operand, True(), true
	case e.Kind == ExprAnd && e.Args[0].Kind == ExprPin:
		tail := And(e.Args[1:]...)
		if tail.HasPin() {
			return "", nil, false
		}
		return e.Args[0].Operand, tail, true
	}
	return "", nil, false
}

// Canonical renders e with commutative operands sorted, so two expressions
// are equivalent when their canonical strings match.
func (e *Expr) Canonical() string {
	if e == nil {
		return "<none>"
	}
	switch e.Kind {
	case ExprTrue:
		return "TRUE"
	case ExprContact:
		if e.Negated {
			return "!" + e.Operand
		}
		return e.Operand
	case ExprCompare:
		return "[" + normalizeSpaces(e.Operand) + "]"
	case ExprPin:
		return "@" + e.Operand
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.Canonical()
	}
	sort.Strings(parts)
	op := "&"
	if e.Kind == ExprOr {
		op = "|"
	}
	return op + "(" + strings.Join(parts, ",") + ")"
}

// maxTerms bounds the sum-of-products expansion done by Normal.
const maxTerms = 4096

// Normal renders e as a sorted sum of products, so expressions that only
// differ in how a shared series term is factored compare equal: a grid branch
// x AND (a OR b) and the expanded (x AND a) OR (x AND b) have the same form.
// Expressions expanding past maxTerms fall back to Canonical.
func (e *Expr) Normal() string {
	if e == nil {
		return "<none>"
	}
	terms, ok := e.products()
	if !ok {
		return e.Canonical()
	}
	seen := map[string]bool{}
	var rendered []string
	for _, t := range terms {
		sort.Strings(t)
		t = dedupe(t)
		var s string
		switch len(t) {
		case 0:
			return "TRUE"
		case 1:
			s = t[0]
		default:
			s = "&(" + strings.Join(t, ",") + ")"
		}
		if !seen[s] {
			seen[s] = true
			rendered = append(rendered, s)
		}
	}
	sort.Strings(rendered)
	if len(rendered) == 1 {
		return rendered[0]
	}
	return "|(" + strings.Join(rendered, ",") + ")"
}

func (e *Expr) products() ([][]string, bool) {
	switch e.Kind {
	case ExprTrue:
		return [][]string{{}}, true
	case ExprAnd:
		acc := [][]string{{}}
		for _, a := range e.Args {
			sub, ok := a.products()
			if !ok || len(acc)*len(sub) > maxTerms {
				return nil, false
			}
			next := make([][]string, 0, len(acc)*len(sub))
			for _, x := range acc {
				for _, y := range sub {
					t := make([]string, 0, len(x)+len(y))
					next = append(next, append(append(t, x...), y...))
				}
			}
			acc = next
		}
		return acc, true
	case ExprOr:
		var out [][]string
		for _, a := range e.Args {
			sub, ok := a.products()
			if !ok || len(out)+len(sub) > maxTerms {
				return nil, false
			}
			out = append(out, sub...)
		}
		return out, true
	}
	return [][]string{{e.Canonical()}}, true
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// String renders e in a readable infix form.
func (e *Expr) String() string {
	if e == nil {
		return "<none>"
	}
	switch e.Kind {
	case ExprAnd, ExprOr:
		sep := " AND "
		if e.Kind == ExprOr {
			sep = " OR "
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = a.String()
			if !a.IsLeaf() {
				parts[i] = "(" + parts[i] + ")"
			}
		}
		return strings.Join(parts, sep)
	case ExprCompare:
		return "[" + e.Operand + "]"
	}
	return e.Canonical()
}

// Leaves returns every leaf in left-to-right order.
func (e *Expr) Leaves() []*Expr {
	if e == nil {
		return nil
	}
	if e.IsLeaf() {
		return []*Expr{e}
	}
	var out []*Expr
	for _, a := range e.Args {
		out = append(out, a.Leaves()...)
	}
	return out
}

// Map returns a copy of e with every contact descriptor rewritten by fn.
func (e *Expr) Map(fn func(string) string) *Expr {
	if e == nil {
		return nil
	}
	c := *e
	if e.Kind == ExprContact {
		c.Operand = fn(e.Operand)
	}
	if len(e.Args) > 0 {
		c.Args = make([]*Expr, len(e.Args))
		for i, a := range e.Args {
			c.Args[i] = a.Map(fn)
		}
	}
	return &c
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
