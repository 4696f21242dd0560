// Package dialect enumerates the controller families the engine can target.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect identifies the target family of a project.
type Dialect string

const (
	SchneiderM221  Dialect = "Schneider-M221"
	SchneiderM241  Dialect = "Schneider-M241"
	RockwellLogix  Dialect = "Rockwell-Logix"
	SiemensS7      Dialect = "Siemens-S7"
	MitsubishiFX   Dialect = "Mitsubishi-FX"
	CodesysGeneric Dialect = "Codesys-Generic"
	PLCopenNeutral Dialect = "PLCopen-Neutral"
)

// All lists every dialect in declaration order.
var All = []Dialect{
	SchneiderM221,
	SchneiderM241,
	RockwellLogix,
	SiemensS7,
	MitsubishiFX,
	CodesysGeneric,
	PLCopenNeutral,
}

// aliases are accepted by Parse in addition to the canonical names.
var aliases = map[string]Dialect{
	"m221":       SchneiderM221,
	"smbp":       SchneiderM221,
	"schneider":  SchneiderM221,
	"m241":       SchneiderM241,
	"rockwell":   RockwellLogix,
	"logix":      RockwellLogix,
	"l5x":        RockwellLogix,
	"siemens":    SiemensS7,
	"s7":         SiemensS7,
	"mitsubishi": MitsubishiFX,
	"fx":         MitsubishiFX,
	"codesys":    CodesysGeneric,
	"project":    CodesysGeneric,
	"plcopen":    PLCopenNeutral,
	"tc6":        PLCopenNeutral,
	"xml":        PLCopenNeutral,
}

// Parse resolves a dialect name or one of its short aliases.
func Parse(s string) (Dialect, error) {
	t := strings.TrimSpace(s)
	for _, d := range All {
		if strings.EqualFold(string(d), t) {
			return d, nil
		}
	}
	if d, ok := aliases[strings.ToLower(t)]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unknown dialect: %q", s)
}

func (d Dialect) String() string { return string(d) }

// Valid reports whether d is one of the enumerated dialects.
func (d Dialect) Valid() bool {
	for _, x := range All {
		if x == d {
			return true
		}
	}
	return false
}

// IsSchneider reports whether d uses Schneider/IEC percent addressing.
func (d Dialect) IsSchneider() bool {
	return d == SchneiderM221 || d == SchneiderM241
}

// UsesIEC reports whether d renders addresses in the IEC percent syntax.
func (d Dialect) UsesIEC() bool {
	return d.IsSchneider() || d == CodesysGeneric || d == PLCopenNeutral
}

// SchneiderFirmware selects between the two timer declaration shapes found in
// Schneider projects. The cut-over is recorded as observed, not derived.
type SchneiderFirmware string

const (
	FirmwareLegacy SchneiderFirmware = "legacy" // <Timer> with <TimeBase>
	Firmware16Plus SchneiderFirmware = "1.6+"   // <TimerTM> with <Base>
)

// ParseFirmware accepts "legacy", "1.6+", or a dotted firmware version.
func ParseFirmware(s string) SchneiderFirmware {
	t := strings.TrimSpace(strings.ToLower(s))
	switch t {
	case "", "1.6+", "tm", "timertm":
		return Firmware16Plus
	case "legacy", "timer":
		return FirmwareLegacy
	}
	var major, minor int
	if _, err := fmt.Sscanf(t, "%d.%d", &major, &minor); err == nil {
		if major > 1 || (major == 1 && minor >= 6) {
			return Firmware16Plus
		}
		return FirmwareLegacy
	}
	return Firmware16Plus
}
