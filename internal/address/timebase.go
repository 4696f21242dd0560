package address

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// TimeBase is the tick of a timer preset, in milliseconds.
type TimeBase int64

const (
	Base1ms   TimeBase = 1
	Base10ms  TimeBase = 10
	Base100ms TimeBase = 100
	Base1s    TimeBase = 1000
	Base1min  TimeBase = 60000
)

// Bases lists the supported bases from finest to coarsest.
var Bases = []TimeBase{Base1ms, Base10ms, Base100ms, Base1s, Base1min}

var baseNames = map[TimeBase][2]string{
	Base1ms:   {"1ms", "OneMs"},
	Base10ms:  {"10ms", "TenMs"},
	Base100ms: {"100ms", "HundredMs"},
	Base1s:    {"1s", "OneSecond"},
	Base1min:  {"1min", "OneMinute"},
}

func (b TimeBase) String() string {
	if n, ok := baseNames[b]; ok {
		return n[0]
	}
	return fmt.Sprintf("%dms", int64(b))
}

// SchneiderName is the enumeration value used in .smbp documents.
func (b TimeBase) SchneiderName() string {
	return baseNames[b][1]
}

// Valid reports whether b is one of the supported bases.
func (b TimeBase) Valid() bool {
	_, ok := baseNames[b]
	return ok
}

// ParseTimeBase accepts either naming, e.g. "1s" or "OneSecond".
func ParseTimeBase(s string) (TimeBase, error) {
	t := strings.TrimSpace(s)
	for _, b := range Bases {
		n := baseNames[b]
		if strings.EqualFold(t, n[0]) || strings.EqualFold(t, n[1]) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown time base %q", s)
}

// Preset is a timer preset counted in ticks of Base.
type Preset struct {
	Value int64
	Base  TimeBase
}

// Millis returns the preset duration in milliseconds.
func (p Preset) Millis() int64 {
	return p.Value * int64(p.Base)
}

// PresetRange is the largest preset register value a dialect accepts.
func PresetRange(d dialect.Dialect) int64 {
	switch d {
	case dialect.SchneiderM221, dialect.SchneiderM241, dialect.MitsubishiFX:
		return 32767
	case dialect.SiemensS7:
		return 999
	default:
		return math.MaxInt32
	}
}

// Retime fits p into a preset register holding at most max ticks. A preset
// already in range keeps its base. Otherwise the finest base that represents
// the duration exactly is chosen; when none exists the value is rounded at the
// finest base that fits and exact is false.
func Retime(p Preset, max int64) (out Preset, exact bool) {
	if p.Value >= 0 && p.Value <= max {
		return p, true
	}
	return FromMillis(p.Millis(), max)
}

// FromMillis picks a preset for a duration given in milliseconds.
func FromMillis(ms, max int64) (Preset, bool) {
	if ms < 0 {
		ms = 0
	}
	for _, b := range Bases {
		if ms%int64(b) == 0 && ms/int64(b) <= max {
			return Preset{Value: ms / int64(b), Base: b}, true
		}
	}
	for _, b := range Bases {
		v := int64(math.Round(float64(ms) / float64(b)))
		if v <= max {
			return Preset{Value: v, Base: b}, false
		}
	}
	return Preset{Value: max, Base: Base1min}, false
}

// FormatIECTime renders a duration as an IEC literal such as T#2s500ms.
func FormatIECTime(ms int64) string {
	if ms == 0 {
		return "T#0ms"
	}
	var b strings.Builder
	b.WriteString("T#")
	if ms < 0 {
		b.WriteByte('-')
		ms = -ms
	}
	units := []struct {
		suffix string
		size   int64
	}{{"d", 86400000}, {"h", 3600000}, {"m", 60000}, {"s", 1000}, {"ms", 1}}
	for _, u := range units {
		if n := ms / u.size; n > 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteString(u.suffix)
			ms -= n * u.size
		}
	}
	return b.String()
}

// ParseIECTime parses T#/TIME# literals such as T#1m30s or TIME#2500ms.
func ParseIECTime(s string) (int64, error) {
	t := strings.TrimSpace(s)
	up := strings.ToUpper(t)
	switch {
	case strings.HasPrefix(up, "TIME#"):
		t = t[5:]
	case strings.HasPrefix(up, "T#"):
		t = t[2:]
	default:
		return 0, faults.New(faults.KindParseError, "time literal %q lacks T# prefix", s)
	}
	t = strings.ReplaceAll(strings.ToLower(t), "_", "")
	neg := strings.HasPrefix(t, "-")
	t = strings.TrimPrefix(t, "-")
	if t == "" {
		return 0, faults.New(faults.KindParseError, "empty time literal %q", s)
	}
	var total int64
	for t != "" {
		i := 0
		for i < len(t) && t[i] >= '0' && t[i] <= '9' {
			i++
		}
		if i == 0 {
			return 0, faults.New(faults.KindParseError, "malformed time literal %q", s)
		}
		n, err := strconv.ParseInt(t[:i], 10, 64)
		if err != nil {
			return 0, faults.New(faults.KindParseError, "time literal %q out of range", s)
		}
		t = t[i:]
		var size int64
		switch {
		case strings.HasPrefix(t, "ms"):
			size, t = 1, t[2:]
		case strings.HasPrefix(t, "d"):
			size, t = 86400000, t[1:]
		case strings.HasPrefix(t, "h"):
			size, t = 3600000, t[1:]
		case strings.HasPrefix(t, "m"):
			size, t = 60000, t[1:]
		case strings.HasPrefix(t, "s"):
			size, t = 1000, t[1:]
		default:
			return 0, faults.New(faults.KindParseError, "unknown time unit in %q", s)
		}
		if n > (math.MaxInt64-total)/size {
			return 0, faults.New(faults.KindParseError, "time literal %q out of range", s)
		}
		total += n * size
	}
	if neg {
		total = -total
	}
	return total, nil
}
