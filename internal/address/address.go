// Package address normalises controller address surfaces and translates them
// between dialects.
//
// Every dialect grammar parses into the same normal form, Address, and every
// renderer starts from it. Translation never passes a surface through
// unchanged: a missing rule is an UntranslatableAddress error.
package address

import (
	"fmt"
	"strconv"
	"strings"
)

// Area is the memory area of a normalised address.
type Area string

const (
	AreaI   Area = "I"   // digital input bit
	AreaQ   Area = "Q"   // digital output bit
	AreaM   Area = "M"   // memory bit
	AreaMW  Area = "MW"  // memory word
	AreaMD  Area = "MD"  // memory double word
	AreaIW  Area = "IW"  // analog input word
	AreaQW  Area = "QW"  // analog output word
	AreaTM  Area = "TM"  // timer instance
	AreaTMQ Area = "TMQ" // timer done bit
	AreaC   Area = "C"   // counter instance
	AreaS   Area = "S"   // system bit
	AreaSW  Area = "SW"  // system word
	AreaHSC Area = "HSC" // high-speed counter
	AreaPLS Area = "PLS" // pulse generator
	AreaPWM Area = "PWM" // pulse-width modulation
)

// IsBit reports whether the area addresses a single boolean.
func (a Area) IsBit() bool {
	switch a {
	case AreaI, AreaQ, AreaM, AreaS, AreaTMQ:
		return true
	}
	return false
}

// IsIO reports whether the area maps onto a hardware channel.
func (a Area) IsIO() bool {
	switch a {
	case AreaI, AreaQ, AreaIW, AreaQW, AreaHSC, AreaPLS, AreaPWM:
		return true
	}
	return false
}

// IsMemory reports whether the area lives in controller memory.
func (a Area) IsMemory() bool {
	return a == AreaM || a == AreaMW || a == AreaMD
}

// IsSystem reports whether the area is predeclared by the controller.
func (a Area) IsSystem() bool {
	return a == AreaS || a == AreaSW
}

// IsBlock reports whether the area names a timer or counter instance.
func (a Area) IsBlock() bool {
	return a == AreaTM || a == AreaTMQ || a == AreaC
}

// Address is the normal form shared by every dialect.
type Address struct {
	Area     Area   `json:"area"`
	Major    int    `json:"major"`
	Minor    int    `json:"minor,omitempty"`
	HasMinor bool   `json:"hasMinor,omitempty"`
	Sub      int    `json:"sub,omitempty"`
	HasSub   bool   `json:"hasSub,omitempty"`
	Pin      string `json:"pin,omitempty"` // block output pin other than timer Q, e.g. counter D
}

// Bit builds a two-level bit address such as %I0.3.
func Bit(area Area, major, minor int) Address {
	return Address{Area: area, Major: major, Minor: minor, HasMinor: true}
}

// Word builds a single-index address such as %MW10 or %TM2.
func Word(area Area, index int) Address {
	return Address{Area: area, Major: index}
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a.Area == ""
}

// Instance strips the pin of a block address: %TM0.Q becomes %TM0.
func (a Address) Instance() Address {
	out := a
	if out.Area == AreaTMQ {
		out.Area = AreaTM
	}
	out.Pin = ""
	return out
}

// String renders a in the IEC/Schneider surface, which is also the canonical
// key used by the model for lookups.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteByte('%')
	area := a.Area
	if area == AreaTMQ {
		area = AreaTM
	}
	b.WriteString(string(area))
	b.WriteString(strconv.Itoa(a.Major))
	if a.HasMinor {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(a.Minor))
	}
	if a.Area == AreaTMQ {
		b.WriteString(".Q")
	} else if a.Pin != "" {
		b.WriteByte('.')
		b.WriteString(a.Pin)
	}
	if a.HasSub {
		fmt.Fprintf(&b, ":X%d", a.Sub)
	}
	return b.String()
}

// Less orders addresses by area, major, minor and sub-bit.
func Less(x, y Address) bool {
	if x.Area != y.Area {
		return x.Area < y.Area
	}
	if x.Major != y.Major {
		return x.Major < y.Major
	}
	if x.Minor != y.Minor {
		return x.Minor < y.Minor
	}
	if x.Sub != y.Sub {
		return x.Sub < y.Sub
	}
	return x.Pin < y.Pin
}
