package address

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// DefaultCacheSize bounds the number of parsed surfaces a Mapper remembers.
const DefaultCacheSize = 4096

// Conversion notes attached to translated projects.
const (
	NoteRockwellIO      = "Schneider %I/%Q addresses converted to Rockwell tag-based addressing"
	NoteRockwellMemory  = "Memory bits converted to named tags"
	NoteRockwellWords   = "Memory words converted to named tags"
	NoteRockwellTimers  = "Timers converted to TIMER tags"
	NoteRockwellCounter = "Counters converted to COUNTER tags"
	NoteSiemensMemory   = "Memory bits mapped to Siemens byte.bit addressing"
	NoteSiemensWords    = "Memory and analog words mapped to Siemens byte offsets"
	NoteSiemensBlocks   = "Timers and counters mapped to Siemens T/C numbers"
	NoteMitsubishiIO    = "Inputs and outputs mapped to hexadecimal X/Y devices"
	NoteMitsubishiWords = "Memory words mapped to D registers"
	NoteMitsubishiDWord = "Double words mapped to the low register of a D register pair"
	NoteCodesysMemory   = "Memory bits mapped to %MX byte.bit addressing"
	NoteCodesysBlocks   = "Timers and counters converted to IEC function block instances"
)

// Synthesized is a tag the target dialect needs for a translated address.
type Synthesized struct {
	Name     string
	DataType string
	Origin   Address
}

// Translation is the result of mapping one address onto a target dialect.
type Translation struct {
	Surface string
	Tag     *Synthesized
	Note    string
}

type rule struct {
	target dialect.Dialect // empty matches every dialect
	areas  []Area
	apply  func(a Address, to dialect.Dialect) (Translation, error)
}

func (r rule) matches(a Address, to dialect.Dialect) bool {
	if r.target != "" && r.target != to {
		return false
	}
	for _, x := range r.areas {
		if x == a.Area {
			return true
		}
	}
	return false
}

// rendered applies the dialect's physical renderer and attaches a note.
func rendered(note string) func(Address, dialect.Dialect) (Translation, error) {
	return func(a Address, to dialect.Dialect) (Translation, error) {
		s, err := Render(to, a)
		if err != nil {
			return Translation{}, err
		}
		return Translation{Surface: s, Note: note}, nil
	}
}

// synthesized names a controller tag after the address index.
func synthesized(prefix, dataType, member, note string) func(Address, dialect.Dialect) (Translation, error) {
	return func(a Address, _ dialect.Dialect) (Translation, error) {
		if a.HasMinor || a.HasSub {
			return Translation{}, faults.UntranslatableAddress(a.String(), "a named tag")
		}
		name := fmt.Sprintf("%s%d", prefix, a.Major)
		surface := name
		if member != "" {
			surface += "." + member
		}
		return Translation{
			Surface: surface,
			Tag:     &Synthesized{Name: name, DataType: dataType, Origin: a.Instance()},
			Note:    note,
		}, nil
	}
}

func rockwellCounter(a Address, to dialect.Dialect) (Translation, error) {
	member := ""
	switch a.Pin {
	case "D", "E":
		member = "DN"
	case "F":
		member = "OV"
	case "":
	default:
		return Translation{}, faults.UntranslatableAddress(a.String(), to.String())
	}
	return synthesized("Counter_", "COUNTER", member, NoteRockwellCounter)(a, to)
}

func codesysCounter(a Address, to dialect.Dialect) (Translation, error) {
	member := ""
	switch a.Pin {
	case "D", "E":
		member = "Q"
	case "":
	default:
		return Translation{}, faults.UntranslatableAddress(a.String(), to.String())
	}
	return synthesized("C", "CTU", member, NoteCodesysBlocks)(a, to)
}

// rules is the translation table; the first matching row wins.
var rules = []rule{
	{target: dialect.RockwellLogix, areas: []Area{AreaTMQ}, apply: synthesized("Timer_", "TIMER", "DN", NoteRockwellTimers)},
	{target: dialect.SiemensS7, areas: []Area{AreaTMQ}, apply: rendered(NoteSiemensBlocks)},
	{target: dialect.MitsubishiFX, areas: []Area{AreaTMQ}, apply: rendered("")},
	{target: dialect.CodesysGeneric, areas: []Area{AreaTMQ}, apply: synthesized("TM", "TON", "Q", NoteCodesysBlocks)},

	{target: dialect.RockwellLogix, areas: []Area{AreaI, AreaQ}, apply: rendered(NoteRockwellIO)},
	{target: dialect.RockwellLogix, areas: []Area{AreaM}, apply: synthesized("Memory_Bit_", "BOOL", "", NoteRockwellMemory)},
	{target: dialect.RockwellLogix, areas: []Area{AreaTM}, apply: synthesized("Timer_", "TIMER", "", NoteRockwellTimers)},
	{target: dialect.RockwellLogix, areas: []Area{AreaC}, apply: rockwellCounter},
	{target: dialect.RockwellLogix, areas: []Area{AreaMW}, apply: synthesized("Memory_Word_", "INT", "", NoteRockwellWords)},
	{target: dialect.RockwellLogix, areas: []Area{AreaMD}, apply: synthesized("Memory_DWord_", "DINT", "", NoteRockwellWords)},

	{target: dialect.SiemensS7, areas: []Area{AreaI, AreaQ}, apply: rendered("")},
	{target: dialect.SiemensS7, areas: []Area{AreaM}, apply: rendered(NoteSiemensMemory)},
	{target: dialect.SiemensS7, areas: []Area{AreaMW, AreaMD, AreaIW, AreaQW}, apply: rendered(NoteSiemensWords)},
	{target: dialect.SiemensS7, areas: []Area{AreaTM, AreaC}, apply: rendered(NoteSiemensBlocks)},

	{target: dialect.MitsubishiFX, areas: []Area{AreaI, AreaQ}, apply: rendered(NoteMitsubishiIO)},
	{target: dialect.MitsubishiFX, areas: []Area{AreaM, AreaTM, AreaC}, apply: rendered("")},
	{target: dialect.MitsubishiFX, areas: []Area{AreaMW}, apply: rendered(NoteMitsubishiWords)},
	{target: dialect.MitsubishiFX, areas: []Area{AreaMD}, apply: rendered(NoteMitsubishiDWord)},

	{target: dialect.CodesysGeneric, areas: []Area{AreaI, AreaQ, AreaMW, AreaMD, AreaIW, AreaQW}, apply: rendered("")},
	{target: dialect.CodesysGeneric, areas: []Area{AreaM}, apply: rendered(NoteCodesysMemory)},
	{target: dialect.CodesysGeneric, areas: []Area{AreaTM}, apply: synthesized("TM", "TON", "", NoteCodesysBlocks)},
	{target: dialect.CodesysGeneric, areas: []Area{AreaC}, apply: codesysCounter},
}

// iecIdentity covers the dialects whose surface is the normal form itself.
func iecIdentity(to dialect.Dialect) bool {
	return to.IsSchneider() || to == dialect.PLCopenNeutral
}

type cacheKey struct {
	d dialect.Dialect
	s string
}

// Mapper parses and translates address surfaces. Parsed surfaces are cached
// per dialect; the cache is safe for concurrent use.
type Mapper struct {
	cache *lru.Cache[cacheKey, Operand]
}

// NewMapper creates a mapper remembering up to size parsed surfaces.
func NewMapper(size int) *Mapper {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[cacheKey, Operand](size)
	if err != nil {
		panic(err) // only reachable with a non-positive size
	}
	return &Mapper{cache: c}
}

// Parse parses a descriptor in dialect d, consulting the cache first.
func (m *Mapper) Parse(d dialect.Dialect, s string) (Operand, error) {
	key := cacheKey{d: d, s: s}
	if op, ok := m.cache.Get(key); ok {
		return op, nil
	}
	op, err := ParseOperand(d, s)
	if err != nil {
		return Operand{}, err
	}
	m.cache.Add(key, op)
	return op, nil
}

// Render prints a in the physical surface of dialect d.
func (m *Mapper) Render(d dialect.Dialect, a Address) (string, error) {
	return Render(d, a)
}

// TranslateAddress maps a normal-form address onto dialect to.
func (m *Mapper) TranslateAddress(a Address, to dialect.Dialect) (Translation, error) {
	if iecIdentity(to) {
		return Translation{Surface: a.String()}, nil
	}
	for _, r := range rules {
		if r.matches(a, to) {
			return r.apply(a, to)
		}
	}
	return Translation{}, faults.UntranslatableAddress(a.String(), to.String())
}

// Translate parses surface in dialect from and maps it onto dialect to.
// Symbols are names rather than addresses and carry over unchanged.
func (m *Mapper) Translate(from, to dialect.Dialect, surface string) (Translation, error) {
	op, err := m.Parse(from, surface)
	if err != nil {
		return Translation{}, err
	}
	if !op.IsAddress() {
		return Translation{Surface: strings.Join(append([]string{op.Symbol}, op.Members...), ".")}, nil
	}
	if from == to {
		return Translation{Surface: strings.TrimSpace(surface)}, nil
	}
	return m.TranslateAddress(op.Addr, to)
}

// Len reports how many surfaces are cached.
func (m *Mapper) Len() int { return m.cache.Len() }
