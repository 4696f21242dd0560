package address

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// Operand is a parsed element descriptor: a physical address or a symbol.
type Operand struct {
	Addr    Address
	Symbol  string
	Members []string
}

// IsAddress reports whether the operand is a physical address.
func (o Operand) IsAddress() bool { return !o.Addr.IsZero() }

// scanner walks an address surface one token at a time.
type scanner struct {
	s string
	i int
}

func (sc *scanner) eof() bool { return sc.i >= len(sc.s) }

func (sc *scanner) peek() byte {
	if sc.eof() {
		return 0
	}
	return sc.s[sc.i]
}

// accept consumes lit case-insensitively.
func (sc *scanner) accept(lit string) bool {
	if len(sc.s)-sc.i < len(lit) {
		return false
	}
	if strings.EqualFold(sc.s[sc.i:sc.i+len(lit)], lit) {
		sc.i += len(lit)
		return true
	}
	return false
}

func (sc *scanner) number() (int, bool) {
	start := sc.i
	for !sc.eof() && sc.peek() >= '0' && sc.peek() <= '9' {
		sc.i++
	}
	if start == sc.i {
		return 0, false
	}
	n, err := strconv.Atoi(sc.s[start:sc.i])
	return n, err == nil
}

func (sc *scanner) hexDigits() string {
	start := sc.i
	for !sc.eof() && isHex(sc.peek()) {
		sc.i++
	}
	return sc.s[start:sc.i]
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// areaToken maps a surface prefix onto a normal-form area. Tables are ordered
// longest prefix first so the first match wins.
type areaToken struct {
	prefix string
	area   Area
}

var iecAreas = []areaToken{
	{"HSC", AreaHSC}, {"PLS", AreaPLS}, {"PWM", AreaPWM},
	{"MW", AreaMW}, {"MD", AreaMD}, {"IW", AreaIW}, {"QW", AreaQW},
	{"TM", AreaTM}, {"SW", AreaSW}, {"CT", AreaC},
	{"I", AreaI}, {"Q", AreaQ}, {"M", AreaM}, {"C", AreaC}, {"S", AreaS},
}

var codesysAreas = []areaToken{
	{"IX", AreaI}, {"QX", AreaQ}, {"MX", AreaM},
	{"IW", AreaIW}, {"QW", AreaQW}, {"MW", AreaMW}, {"MD", AreaMD},
}

var siemensAreas = []areaToken{
	{"MW", AreaMW}, {"MD", AreaMD}, {"IW", AreaIW}, {"QW", AreaQW},
	{"I", AreaI}, {"Q", AreaQ}, {"M", AreaM}, {"T", AreaTM}, {"C", AreaC},
}

var mitsubishiAreas = []areaToken{
	{"X", AreaI}, {"Y", AreaQ}, {"M", AreaM}, {"T", AreaTM}, {"C", AreaC}, {"D", AreaMW},
}

func (sc *scanner) area(table []areaToken) (Area, bool) {
	for _, t := range table {
		if sc.accept(t.prefix) {
			return t.area, true
		}
	}
	return "", false
}

// validPins lists the output pins each block area may carry.
var validPins = map[Area]string{
	AreaTM: "QPV",
	AreaC:  "DEFPV",
}

// ParseOperand parses a descriptor in dialect d.
func ParseOperand(d dialect.Dialect, s string) (Operand, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return Operand{}, faults.MalformedAddress(s, "empty descriptor")
	}
	switch d {
	case dialect.RockwellLogix:
		if strings.HasPrefix(strings.ToLower(t), "local:") {
			a, err := parseRockwell(t)
			return Operand{Addr: a}, err
		}
		return parseSymbol(t)
	case dialect.SiemensS7:
		if a, err := parseSiemens(t); err == nil {
			return Operand{Addr: a}, nil
		} else if strings.HasPrefix(strings.ToUpper(t), "DB") {
			return Operand{}, err
		}
		return parseSymbol(t)
	case dialect.MitsubishiFX:
		if a, err := parseMitsubishi(t); err == nil {
			return Operand{Addr: a}, nil
		}
		return parseSymbol(t)
	case dialect.CodesysGeneric:
		if t[0] == '%' {
			if a, err := parseCodesys(t); err == nil {
				return Operand{Addr: a}, nil
			}
			a, err := parseIEC(t)
			return Operand{Addr: a}, err
		}
		return parseSymbol(t)
	default:
		if t[0] == '%' {
			a, err := parseIEC(t)
			return Operand{Addr: a}, err
		}
		return parseSymbol(t)
	}
}

// Parse parses a physical address; symbols are rejected.
func Parse(d dialect.Dialect, s string) (Address, error) {
	op, err := ParseOperand(d, s)
	if err != nil {
		return Address{}, err
	}
	if !op.IsAddress() {
		return Address{}, faults.MalformedAddress(s, "not a physical address in "+d.String())
	}
	return op.Addr, nil
}

func parseSymbol(s string) (Operand, error) {
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" || !isIdentStart(p[0]) {
			return Operand{}, faults.MalformedAddress(s, "invalid identifier")
		}
		for i := 1; i < len(p); i++ {
			if !isIdentPart(p[i]) {
				return Operand{}, faults.MalformedAddress(s, "invalid identifier")
			}
		}
	}
	return Operand{Symbol: parts[0], Members: parts[1:]}, nil
}

func parseIEC(s string) (Address, error) {
	sc := &scanner{s: s}
	if !sc.accept("%") {
		return Address{}, faults.MalformedAddress(s, "missing %")
	}
	area, ok := sc.area(iecAreas)
	if !ok {
		return Address{}, faults.MalformedAddress(s, "unknown area")
	}
	a := Address{Area: area}
	if a.Major, ok = sc.number(); !ok {
		return Address{}, faults.MalformedAddress(s, "missing index")
	}
	if sc.peek() == '.' {
		sc.i++
		if n, ok := sc.number(); ok {
			a.Minor, a.HasMinor = n, true
		} else {
			sc.i--
		}
	}
	if sc.peek() == '.' {
		sc.i++
		pin := strings.ToUpper(string(sc.peek()))
		if sc.eof() || !strings.Contains(validPins[a.Area], pin) {
			return Address{}, faults.MalformedAddress(s, "invalid output pin")
		}
		sc.i++
		if a.Area == AreaTM && pin == "Q" {
			a.Area = AreaTMQ
		} else {
			a.Pin = pin
		}
	}
	if sc.accept(":X") {
		n, ok := sc.number()
		if !ok {
			return Address{}, faults.MalformedAddress(s, "missing bit index")
		}
		a.Sub, a.HasSub = n, true
	}
	if !sc.eof() {
		return Address{}, faults.MalformedAddress(s, fmt.Sprintf("unexpected %q", s[sc.i:]))
	}
	return a, checkShape(s, a)
}

// checkShape enforces which areas carry a minor index.
func checkShape(s string, a Address) error {
	switch a.Area {
	case AreaI, AreaQ:
		if !a.HasMinor {
			return faults.MalformedAddress(s, "bit address needs module.channel")
		}
	case AreaIW, AreaQW:
	default:
		if a.HasMinor && a.Area != AreaM {
			return faults.MalformedAddress(s, "area takes a single index")
		}
	}
	if a.HasSub && a.Area != AreaMW && a.Area != AreaMD && a.Area != AreaSW {
		return faults.MalformedAddress(s, "bit extraction only applies to words")
	}
	return nil
}

func parseCodesys(s string) (Address, error) {
	sc := &scanner{s: s}
	if !sc.accept("%") {
		return Address{}, faults.MalformedAddress(s, "missing %")
	}
	area, ok := sc.area(codesysAreas)
	if !ok {
		return Address{}, faults.MalformedAddress(s, "unknown area")
	}
	major, ok := sc.number()
	if !ok {
		return Address{}, faults.MalformedAddress(s, "missing index")
	}
	minor, hasMinor := 0, false
	if sc.accept(".") {
		if minor, hasMinor = sc.number(); !hasMinor {
			return Address{}, faults.MalformedAddress(s, "missing bit index")
		}
	}
	if !sc.eof() {
		return Address{}, faults.MalformedAddress(s, fmt.Sprintf("unexpected %q", s[sc.i:]))
	}
	switch area {
	case AreaI, AreaQ:
		if !hasMinor {
			return Address{}, faults.MalformedAddress(s, "bit address needs byte.bit")
		}
		return Bit(area, major, minor), nil
	case AreaM:
		if !hasMinor || minor > 7 {
			return Address{}, faults.MalformedAddress(s, "memory bit needs byte.bit")
		}
		return Word(AreaM, major*8+minor), nil
	case AreaIW, AreaQW:
		if hasMinor {
			return Address{}, faults.MalformedAddress(s, "word address takes a single index")
		}
		return Bit(area, 0, major), nil
	default:
		if hasMinor {
			return Address{}, faults.MalformedAddress(s, "word address takes a single index")
		}
		return Word(area, major), nil
	}
}

func parseSiemens(s string) (Address, error) {
	if strings.HasPrefix(strings.ToUpper(s), "DB") {
		return Address{}, faults.MalformedAddress(s, "data block addressing is not supported")
	}
	sc := &scanner{s: s}
	area, ok := sc.area(siemensAreas)
	if !ok {
		return Address{}, faults.MalformedAddress(s, "unknown area")
	}
	major, ok := sc.number()
	if !ok {
		return Address{}, faults.MalformedAddress(s, "missing index")
	}
	minor, hasMinor := 0, false
	if sc.accept(".") {
		if minor, hasMinor = sc.number(); !hasMinor || minor > 7 {
			return Address{}, faults.MalformedAddress(s, "bit index must be 0..7")
		}
	}
	if !sc.eof() {
		return Address{}, faults.MalformedAddress(s, fmt.Sprintf("unexpected %q", s[sc.i:]))
	}
	switch area {
	case AreaI, AreaQ:
		if !hasMinor {
			return Address{}, faults.MalformedAddress(s, "bit address needs byte.bit")
		}
		return Bit(area, major, minor), nil
	case AreaM:
		if !hasMinor {
			return Address{}, faults.MalformedAddress(s, "memory bit needs byte.bit")
		}
		if minor == 0 {
			return Word(AreaM, major), nil
		}
		return Bit(AreaM, major, minor), nil
	case AreaIW, AreaQW:
		if hasMinor || major%2 != 0 {
			return Address{}, faults.MalformedAddress(s, "word address must be an even byte offset")
		}
		return Bit(area, 0, major/2), nil
	case AreaMW:
		if hasMinor || major%2 != 0 {
			return Address{}, faults.MalformedAddress(s, "word address must be an even byte offset")
		}
		return Word(AreaMW, major/2), nil
	case AreaMD:
		if hasMinor || major%4 != 0 {
			return Address{}, faults.MalformedAddress(s, "double word address must be a multiple of 4")
		}
		return Word(AreaMD, major/4), nil
	default:
		if hasMinor {
			return Address{}, faults.MalformedAddress(s, "area takes a single index")
		}
		return Word(area, major), nil
	}
}

func parseRockwell(s string) (Address, error) {
	sc := &scanner{s: s}
	if !sc.accept("Local:") {
		return Address{}, faults.MalformedAddress(s, "expected Local:")
	}
	if _, ok := sc.number(); !ok {
		return Address{}, faults.MalformedAddress(s, "missing slot")
	}
	if !sc.accept(":") {
		return Address{}, faults.MalformedAddress(s, "expected ':' after slot")
	}
	var area Area
	switch {
	case sc.accept("I"):
		area = AreaI
	case sc.accept("O"):
		area = AreaQ
	default:
		return Address{}, faults.MalformedAddress(s, "expected I or O")
	}
	if !sc.accept(".Data[") {
		return Address{}, faults.MalformedAddress(s, "expected .Data[")
	}
	major, ok := sc.number()
	if !ok || !sc.accept("].") {
		return Address{}, faults.MalformedAddress(s, "malformed data index")
	}
	minor, ok := sc.number()
	if !ok || !sc.eof() {
		return Address{}, faults.MalformedAddress(s, "malformed bit index")
	}
	return Bit(area, major, minor), nil
}

func parseMitsubishi(s string) (Address, error) {
	sc := &scanner{s: s}
	area, ok := sc.area(mitsubishiAreas)
	if !ok {
		return Address{}, faults.MalformedAddress(s, "unknown device")
	}
	if area == AreaI || area == AreaQ {
		digits := sc.hexDigits()
		if digits == "" || !sc.eof() {
			return Address{}, faults.MalformedAddress(s, "expected hexadecimal device number")
		}
		minor, _ := strconv.ParseUint(digits[len(digits)-1:], 16, 8)
		major := uint64(0)
		if len(digits) > 1 {
			major, _ = strconv.ParseUint(digits[:len(digits)-1], 16, 32)
		}
		return Bit(area, int(major), int(minor)), nil
	}
	n, ok := sc.number()
	if !ok || !sc.eof() {
		return Address{}, faults.MalformedAddress(s, "expected decimal device number")
	}
	return Word(area, n), nil
}

// Render prints a in the physical surface of dialect d. Areas a dialect only
// reaches through synthesised tags (Rockwell memory, timers) have no surface
// here; Mapper.Translate handles those.
func Render(d dialect.Dialect, a Address) (string, error) {
	fail := func() (string, error) {
		return "", faults.UntranslatableAddress(a.String(), d.String())
	}
	switch d {
	case dialect.RockwellLogix:
		switch a.Area {
		case AreaI:
			return fmt.Sprintf("Local:1:I.Data[%d].%d", a.Major, a.Minor), nil
		case AreaQ:
			return fmt.Sprintf("Local:2:O.Data[%d].%d", a.Major, a.Minor), nil
		}
		return fail()
	case dialect.SiemensS7:
		switch a.Area {
		case AreaI, AreaQ:
			return fmt.Sprintf("%s%d.%d", a.Area, a.Major, a.Minor), nil
		case AreaM:
			if a.HasMinor {
				return fmt.Sprintf("M%d.%d", a.Major, a.Minor), nil
			}
			return fmt.Sprintf("M%d.0", a.Major), nil
		case AreaMW:
			return fmt.Sprintf("MW%d", a.Major*2), nil
		case AreaMD:
			return fmt.Sprintf("MD%d", a.Major*4), nil
		case AreaIW, AreaQW:
			if a.Major != 0 {
				return fail()
			}
			return fmt.Sprintf("%s%d", a.Area, a.Minor*2), nil
		case AreaTM, AreaTMQ:
			return fmt.Sprintf("T%d", a.Major), nil
		case AreaC:
			return fmt.Sprintf("C%d", a.Major), nil
		}
		return fail()
	case dialect.MitsubishiFX:
		switch a.Area {
		case AreaI, AreaQ:
			if a.Minor > 15 {
				return fail()
			}
			prefix := "X"
			if a.Area == AreaQ {
				prefix = "Y"
			}
			if a.Major == 0 {
				return fmt.Sprintf("%s0%X", prefix, a.Minor), nil
			}
			return fmt.Sprintf("%s%X%X", prefix, a.Major, a.Minor), nil
		case AreaM:
			if a.HasMinor {
				return fail()
			}
			return fmt.Sprintf("M%d", a.Major), nil
		case AreaTM, AreaTMQ:
			return fmt.Sprintf("T%d", a.Major), nil
		case AreaC:
			return fmt.Sprintf("C%d", a.Major), nil
		case AreaMW, AreaMD:
			return fmt.Sprintf("D%d", a.Major), nil
		}
		return fail()
	case dialect.CodesysGeneric:
		switch a.Area {
		case AreaI:
			return fmt.Sprintf("%%IX%d.%d", a.Major, a.Minor), nil
		case AreaQ:
			return fmt.Sprintf("%%QX%d.%d", a.Major, a.Minor), nil
		case AreaM:
			if a.HasMinor {
				return fail()
			}
			return fmt.Sprintf("%%MX%d.%d", a.Major/8, a.Major%8), nil
		case AreaMW, AreaMD:
			return fmt.Sprintf("%%%s%d", a.Area, a.Major), nil
		case AreaIW, AreaQW:
			if a.Major != 0 {
				return fail()
			}
			return fmt.Sprintf("%%%s%d", a.Area, a.Minor), nil
		}
		return fail()
	default:
		return a.String(), nil
	}
}
