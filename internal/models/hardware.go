package models

import (
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
)

// ModuleType enumerates I/O module kinds.
type ModuleType string

const (
	ModuleDigitalIn  ModuleType = "digital-in"
	ModuleDigitalOut ModuleType = "digital-out"
	ModuleAnalogIn   ModuleType = "analog-in"
	ModuleAnalogOut  ModuleType = "analog-out"
	ModuleHSC        ModuleType = "high-speed-counter"
	ModulePulseTrain ModuleType = "pulse-train"
	ModuleEthernet   ModuleType = "ethernet"
	ModuleSerial     ModuleType = "serial"
)

var moduleTypes = []ModuleType{
	ModuleDigitalIn, ModuleDigitalOut, ModuleAnalogIn, ModuleAnalogOut,
	ModuleHSC, ModulePulseTrain, ModuleEthernet, ModuleSerial,
}

// ParseModuleType accepts the model names case-insensitively.
func ParseModuleType(s string) (ModuleType, error) {
	for _, t := range moduleTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown module type %q", s)
}

// Area is the address area of the module's channels.
func (t ModuleType) Area() address.Area {
	switch t {
	case ModuleDigitalIn:
		return address.AreaI
	case ModuleDigitalOut:
		return address.AreaQ
	case ModuleAnalogIn:
		return address.AreaIW
	case ModuleAnalogOut:
		return address.AreaQW
	case ModuleHSC:
		return address.AreaHSC
	case ModulePulseTrain:
		return address.AreaPLS
	}
	return ""
}

// Channel is the per-channel configuration of a module.
type Channel struct {
	Index      int
	Symbol     string
	Comment    string
	Filter     string // input filter, e.g. "3ms"
	Latch      bool
	AnalogType string // e.g. "0-10V", "4-20mA", "PT100-3-wire"
	Scope      string // scaling scope, e.g. "Normal" or "Customized"
	Min        int
	Max        int
}

// Module is one entry of the hardware configuration. Index is the module
// position: 0 for the CPU's embedded I/O, 1.. for expansion modules.
type Module struct {
	Index      int
	Type       ModuleType
	Catalog    string
	HardwareID string
	Channels   []Channel
}

// NewModule builds a module with count dense, unconfigured channels.
func NewModule(index int, t ModuleType, catalog string, count int) *Module {
	m := &Module{Index: index, Type: t, Catalog: catalog}
	for i := 0; i < count; i++ {
		ch := Channel{Index: i}
		if t == ModuleAnalogIn || t == ModuleAnalogOut {
			ch.AnalogType = "0-10V"
			ch.Scope = "Normal"
			ch.Max = 1000
		}
		m.Channels = append(m.Channels, ch)
	}
	return m
}

// ChannelAddress returns the address of channel i, or the zero address for
// communication modules.
func (m *Module) ChannelAddress(i int) address.Address {
	switch a := m.Type.Area(); a {
	case address.AreaI, address.AreaQ, address.AreaIW, address.AreaQW:
		return address.Bit(a, m.Index, i)
	case address.AreaHSC, address.AreaPLS:
		return address.Word(a, i)
	}
	return address.Address{}
}

// Channel returns channel i, or nil.
func (m *Module) Channel(i int) *Channel {
	for k := range m.Channels {
		if m.Channels[k].Index == i {
			return &m.Channels[k]
		}
	}
	return nil
}

// Hardware is the ordered I/O module list.
type Hardware struct {
	Modules []*Module
}

// Add appends m.
func (h *Hardware) Add(m *Module) { h.Modules = append(h.Modules, m) }

// Module returns the module of type t at index, or nil.
func (h *Hardware) Module(index int, t ModuleType) *Module {
	for _, m := range h.Modules {
		if m.Index == index && m.Type == t {
			return m
		}
	}
	return nil
}

// OfType lists the modules of type t in configuration order.
func (h *Hardware) OfType(t ModuleType) []*Module {
	var out []*Module
	for _, m := range h.Modules {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Configures reports whether any module carries channels of area a.
func (h *Hardware) Configures(a address.Area) bool {
	for _, m := range h.Modules {
		if m.Type.Area() == a {
			return true
		}
	}
	return false
}

// HasChannel reports whether a names a configured channel. Areas without
// any module in the plan are not checked.
func (h *Hardware) HasChannel(a address.Address) bool {
	if !h.Configures(a.Area) {
		return true
	}
	return h.Lookup(a) != nil
}

// Lookup returns the channel addressed by a, or nil.
func (h *Hardware) Lookup(a address.Address) *Channel {
	for _, m := range h.Modules {
		if m.Type.Area() != a.Area {
			continue
		}
		for i := range m.Channels {
			c := m.ChannelAddress(m.Channels[i].Index)
			if c.Major == a.Major && c.Minor == a.Minor && c.HasMinor == a.HasMinor {
				return &m.Channels[i]
			}
		}
	}
	return nil
}

// ChannelCount totals the channels of type t.
func (h *Hardware) ChannelCount(t ModuleType) int {
	n := 0
	for _, m := range h.OfType(t) {
		n += len(m.Channels)
	}
	return n
}
