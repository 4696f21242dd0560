package address

import (
	"strings"

	"github.com/plc-visualizer/plcforge/internal/dialect"
)

// Elementary data types carried by tags.
const (
	TypeBOOL   = "BOOL"
	TypeINT    = "INT"
	TypeDINT   = "DINT"
	TypeREAL   = "REAL"
	TypeTIME   = "TIME"
	TypeSTRING = "STRING"
	TypeWORD   = "WORD"
	TypeDWORD  = "DWORD"
)

type typeRule struct {
	to       string
	downcast bool
}

// typeRules lists the types a dialect lacks and what replaces them.
var typeRules = map[dialect.Dialect]map[string]typeRule{
	dialect.RockwellLogix: {
		TypeTIME:  {to: TypeDINT, downcast: true},
		TypeWORD:  {to: TypeINT, downcast: true},
		TypeDWORD: {to: TypeDINT, downcast: true},
	},
	dialect.MitsubishiFX: {
		TypeTIME:   {to: TypeDINT, downcast: true},
		TypeSTRING: {to: TypeWORD, downcast: true},
	},
}

// MapType returns the counterpart of dataType on dialect to and whether the
// conversion loses meaning. Derived type names pass through unchanged.
func MapType(dataType string, to dialect.Dialect) (string, bool) {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	if r, ok := typeRules[to][t]; ok {
		return r.to, r.downcast
	}
	switch t {
	case TypeBOOL, TypeINT, TypeDINT, TypeREAL, TypeTIME, TypeSTRING, TypeWORD, TypeDWORD:
		return t, false
	}
	return dataType, false
}

// DefaultType is the natural data type of an address area.
func DefaultType(a Area) string {
	switch a {
	case AreaI, AreaQ, AreaM, AreaS, AreaTMQ:
		return TypeBOOL
	case AreaMD:
		return TypeDINT
	case AreaMW, AreaIW, AreaQW, AreaSW:
		return TypeINT
	case AreaTM:
		return "TIMER"
	case AreaC:
		return "COUNTER"
	}
	return TypeDINT
}
