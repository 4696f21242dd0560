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

// node is one instruction or one parallel branch of rung text.
type node struct {
	op       string
	args     []string
	branches [][]node
}

type scanner struct {
	s string
	i int
}

func (sc *scanner) skip() {
	for sc.i < len(sc.s) && (sc.s[sc.i] == ' ' || sc.s[sc.i] == '\t' || sc.s[sc.i] == '\r' || sc.s[sc.i] == '\n') {
		sc.i++
	}
}

func (sc *scanner) fail(format string, args ...any) error {
	return faults.ParseError(1, sc.i+1, fmt.Sprintf(format, args...))
}

// parseRungText splits rung text into its instruction tree. The text must
// end in a semicolon.
func parseRungText(text string) ([]node, error) {
	t := strings.TrimSpace(text)
	if !strings.HasSuffix(t, ";") {
		return nil, faults.ParseError(1, len(t)+1, "rung text does not end in ';'")
	}
	sc := &scanner{s: strings.TrimSuffix(t, ";")}
	seq, err := sc.series()
	if err != nil {
		return nil, err
	}
	sc.skip()
	if sc.i < len(sc.s) {
		return nil, sc.fail("unexpected %q", sc.s[sc.i])
	}
	return seq, nil
}

// series reads instructions and branches up to a ',' or ']' or the end.
func (sc *scanner) series() ([]node, error) {
	var seq []node
	for {
		sc.skip()
		if sc.i >= len(sc.s) || sc.s[sc.i] == ',' || sc.s[sc.i] == ']' {
			return seq, nil
		}
		if sc.s[sc.i] == '[' {
			sc.i++
			var branches [][]node
			for {
				b, err := sc.series()
				if err != nil {
					return nil, err
				}
				branches = append(branches, b)
				if sc.i >= len(sc.s) {
					return nil, sc.fail("unterminated branch")
				}
				c := sc.s[sc.i]
				sc.i++
				if c == ']' {
					break
				}
			}
			seq = append(seq, node{branches: branches})
			continue
		}
		n, err := sc.instruction()
		if err != nil {
			return nil, err
		}
		seq = append(seq, n)
	}
}

// instruction reads MNEMONIC(arg,arg). Arguments may nest parentheses.
func (sc *scanner) instruction() (node, error) {
	start := sc.i
	for sc.i < len(sc.s) && (isLetter(sc.s[sc.i]) || (sc.i > start && sc.s[sc.i] >= '0' && sc.s[sc.i] <= '9')) {
		sc.i++
	}
	if sc.i == start {
		return node{}, sc.fail("expected an instruction, found %q", sc.s[sc.i])
	}
	op := strings.ToUpper(sc.s[start:sc.i])
	sc.skip()
	if sc.i >= len(sc.s) || sc.s[sc.i] != '(' {
		return node{}, sc.fail("expected '(' after %s", op)
	}
	sc.i++
	var args []string
	depth, from := 0, sc.i
	for ; sc.i < len(sc.s); sc.i++ {
		switch sc.s[sc.i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				if arg := strings.TrimSpace(sc.s[from:sc.i]); arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				sc.i++
				return node{op: op, args: args}, nil
			}
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(sc.s[from:sc.i]))
				from = sc.i + 1
			}
		}
	}
	return node{}, sc.fail("unterminated %s", op)
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// emission is an output or a block in rung order with the power feeding it.
type emission struct {
	power *models.Expr
	out   models.Element
	block models.Element
}

// rungReader rebuilds the networks of one rung text.
type rungReader struct {
	p     *models.Project
	u     *models.POU
	path  string
	label string
	// blocks seen so far by name, and the block each pin leaf belongs to
	blocks map[string]models.Element
	pins   map[*models.Expr]string
	emits  []emission
}

func newRungReader(p *models.Project, u *models.POU, path string) *rungReader {
	return &rungReader{p: p, u: u, path: path, blocks: map[string]models.Element{}, pins: map[*models.Expr]string{}}
}

func (r *rungReader) fail(format string, args ...any) error {
	return faults.SchemaViolation(r.path, fmt.Sprintf(format, args...))
}

// descriptor maps a rung operand back to the address of the tag it names.
func (r *rungReader) descriptor(name string) string {
	if t := r.u.LookupTag(name); t != nil && t.Address != "" {
		return t.Address
	}
	return name
}

func (r *rungReader) want(n node, count int) error {
	if len(n.args) != count {
		return r.fail("%s takes %d operands, got %d", n.op, count, len(n.args))
	}
	for _, a := range n.args {
		if a == "" {
			return r.fail("%s has an empty operand", n.op)
		}
	}
	return nil
}

// series evaluates seq fed by in. It returns the conditions the series
// adds, without in.
func (r *rungReader) series(seq []node, in *models.Expr, top bool) (*models.Expr, error) {
	local := models.True()
	power := in
	for i, n := range seq {
		if n.branches != nil {
			var ends []*models.Expr
			for _, b := range n.branches {
				e, err := r.series(b, power, false)
				if err != nil {
					return nil, err
				}
				ends = append(ends, e)
			}
			alt := models.Or(ends...)
			if alt.Kind != models.ExprTrue {
				local = models.And(local, alt)
				power = models.And(in, local)
			}
			continue
		}
		leaf, err := r.instruction(n, power, top && i == 0)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			local = models.And(local, leaf)
			power = models.And(in, local)
		}
	}
	return local, nil
}

// instruction applies one instruction. Input instructions return the leaf
// they contribute; outputs and blocks are recorded against power.
func (r *rungReader) instruction(n node, power *models.Expr, first bool) (*models.Expr, error) {
	switch n.op {
	case "XIC", "XIO":
		if err := r.want(n, 1); err != nil {
			return nil, err
		}
		neg := n.op == "XIO"
		if name, ok := strings.CutSuffix(n.args[0], "."+doneBit); ok && !neg {
			if blk, ok := r.blocks[name]; ok {
				leaf := models.Pin(models.OutputPin(blk))
				r.pins[leaf] = name
				return leaf, nil
			}
		}
		return models.Lit(r.descriptor(n.args[0]), neg), nil
	case "EQU", "NEQ", "LES", "LEQ", "GRT", "GEQ":
		if err := r.want(n, 2); err != nil {
			return nil, err
		}
		for op, m := range compareOps {
			if m == n.op {
				return models.Cmp(r.descriptor(n.args[0]) + " " + op + " " + r.descriptor(n.args[1])), nil
			}
		}
	case "OTE", "OTL", "OTU":
		if err := r.want(n, 1); err != nil {
			return nil, err
		}
		storage := models.StorageNone
		switch n.op {
		case "OTL":
			storage = models.StorageSet
		case "OTU":
			storage = models.StorageReset
		}
		r.emits = append(r.emits, emission{power: power, out: &models.Coil{Descriptor: r.descriptor(n.args[0]), Storage: storage}})
	case "JMP":
		if err := r.want(n, 1); err != nil {
			return nil, err
		}
		r.emits = append(r.emits, emission{power: power, out: &models.Jump{Label: n.args[0]}})
	case "LBL":
		if err := r.want(n, 1); err != nil {
			return nil, err
		}
		if !first {
			return nil, r.fail("LBL(%s) must open the rung", n.args[0])
		}
		r.label = n.args[0]
	case "NOP":
	case "MOV":
		if err := r.want(n, 2); err != nil {
			return nil, err
		}
		r.emits = append(r.emits, emission{power: power, out: &models.Operation{Expr: r.descriptor(n.args[1]) + " := " + r.descriptor(n.args[0])}})
	case "CPT":
		if err := r.want(n, 2); err != nil {
			return nil, err
		}
		r.emits = append(r.emits, emission{power: power, out: &models.Operation{Expr: r.descriptor(n.args[0]) + " := " + n.args[1]}})
	case "TON", "TOF", "RTO", "CTU", "CTD":
		if err := r.want(n, 3); err != nil {
			return nil, err
		}
		blk, err := r.block(n)
		if err != nil {
			return nil, err
		}
		r.blocks[n.args[0]] = blk
		r.emits = append(r.emits, emission{power: power, block: blk})
	default:
		return nil, faults.Unsupported(fmt.Sprintf("%s: instruction %s", r.path, n.op))
	}
	return nil, nil
}

// block declares or updates the instance behind a timer or counter
// instruction and returns its element.
func (r *rungReader) block(n node) (models.Element, error) {
	name := n.args[0]
	preset, err := strconv.ParseInt(n.args[1], 10, 64)
	if err != nil {
		return nil, r.fail("%s(%s) preset %q is not an integer", n.op, name, n.args[1])
	}
	kind, typ := models.InstanceTimer, n.op
	switch n.op {
	case "CTU", "CTD":
		kind = models.InstanceCounter
	case "RTO":
		typ = string(models.TimerTON)
		r.p.Warnings.AddWarning(faults.KindUnsupportedFeature, r.path, "retentive timer %s read as TON", name)
	}
	in := r.u.Instance(name)
	if in == nil {
		if in, err = r.u.AddInstance(models.Instance{Kind: kind, Descriptor: name}); err != nil {
			return nil, err
		}
	}
	in.Kind, in.Type = kind, typ
	if kind == models.InstanceTimer {
		pr, _ := address.FromMillis(preset, address.PresetRange(dialect.RockwellLogix))
		in.Preset, in.Base = pr.Value, pr.Base
	} else {
		in.Preset, in.Base = preset, 0
	}
	return r.u.Resolver()(name), nil
}

type pendingNet struct {
	net    models.Network
	drives map[*models.Expr]int
}

func (n *pendingNet) add(power *models.Expr, out models.Element) {
	i, ok := n.drives[power]
	if !ok {
		i = len(n.net.Drives)
		n.drives[power] = i
		n.net.Drives = append(n.net.Drives, models.Drive{Power: power})
	}
	n.net.Drives[i].Outputs = append(n.net.Drives[i].Outputs, out)
}

// networks groups the emissions: outputs powered through a done bit join
// their block's network, the rest group by shared power.
func (r *rungReader) networks() ([]models.Network, error) {
	byBlock := map[string]*pendingNet{}
	plain := map[*models.Expr]*pendingNet{}
	var nets []*pendingNet
	for _, e := range r.emits {
		if e.block != nil {
			if e.power.HasPin() {
				err := faults.New(faults.KindInvariantViolation, "cascaded blocks: %s is fed by another block", models.Descriptor(e.block))
				err.Path = r.path
				return nil, err
			}
			n := &pendingNet{net: models.Network{Block: &models.BlockCall{Element: e.block, Input: e.power}}, drives: map[*models.Expr]int{}}
			byBlock[models.Descriptor(e.block)] = n
			nets = append(nets, n)
			continue
		}
		if e.power.HasPin() {
			var owner string
			for _, l := range e.power.Leaves() {
				if name, ok := r.pins[l]; ok {
					owner = name
					break
				}
			}
			n := byBlock[owner]
			if _, _, ok := e.power.SplitPin(); !ok || n == nil {
				return nil, faults.Unsupported(r.path + ": branch around a timer/counter block")
			}
			n.add(e.power, e.out)
			continue
		}
		n, ok := plain[e.power]
		if !ok {
			n = &pendingNet{drives: map[*models.Expr]int{}}
			plain[e.power] = n
			nets = append(nets, n)
		}
		n.add(e.power, e.out)
	}
	out := make([]models.Network, len(nets))
	for i, n := range nets {
		out[i] = n.net
	}
	return out, nil
}

// readRung parses text and appends it to u as a new rung.
func readRung(p *models.Project, u *models.POU, index int, comment, text string) error {
	path := fmt.Sprintf("%s/rung[%d]", u.Name, index)
	seq, err := parseRungText(text)
	if err != nil {
		if fe, ok := err.(*faults.Error); ok {
			fe.Path = path
		}
		return err
	}
	r := newRungReader(p, u, path)
	if _, err := r.series(seq, models.True(), true); err != nil {
		return err
	}
	nets, err := r.networks()
	if err != nil {
		return err
	}
	name, rest, _ := strings.Cut(comment, "\n")
	rg, err := u.AddRung(name, rest, r.label)
	if err != nil {
		return err
	}
	if err := rg.SetIL(models.RenderIL(nets)); err != nil {
		return err
	}
	return rg.SyncGrid()
}
