// Package smbp reads and writes Schneider EcoStruxure Machine Basic project
// files (.smbp).
package smbp

import (
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

const (
	projectVersion  = "3.0.0.0"
	managementLevel = "FunctLevelMan21_0"
	cultureName     = "en-US"
	rootElement     = "ProjectDescriptor"
)

// Codec implements codec.Codec for .smbp documents.
type Codec struct{}

// New returns the .smbp codec.
func New() *Codec { return &Codec{} }

func (*Codec) Name() string                { return "smbp" }
func (*Codec) Extension() string           { return ".smbp" }
func (*Codec) Dialects() []dialect.Dialect { return []dialect.Dialect{dialect.SchneiderM221} }

// Sniff accepts any XML document rooted at <ProjectDescriptor>.
func (*Codec) Sniff(data []byte) bool {
	name, err := codec.RootElement(data)
	return err == nil && name.Local == rootElement
}

// Encode renders p. Structured-text POUs and tags without an address have no
// .smbp representation and fail with UnsupportedFeature.
func (*Codec) Encode(p *models.Project, opts codec.Options) ([]byte, error) {
	w := writer{p: p, opts: opts}
	doc, err := w.project()
	if err != nil {
		return nil, err
	}
	return codec.EncodeXML(xml.Header, doc)
}

type writer struct {
	p    *models.Project
	opts codec.Options
	// controller tags rendered as channel symbols instead of <Symbols>
	onChannel map[*models.Tag]bool
}

func (w *writer) firmware() dialect.SchneiderFirmware {
	switch {
	case w.p.Firmware != "":
		return w.p.Firmware
	case w.opts.Firmware != "":
		return w.opts.Firmware
	}
	return dialect.Firmware16Plus
}

func (w *writer) project() (*projectXML, error) {
	p := w.p
	doc := &projectXML{
		ProjectVersion:     projectVersion,
		ManagementLevel:    managementLevel,
		Name:               p.Name + ".smbp",
		FullName:           p.Name,
		CurrentCultureName: cultureName,
		Author:             p.Author,
		CreationDate:       w.opts.Stamp(p).UTC().Format("2006-01-02T15:04:05Z07:00"),
		Firmware:           string(w.firmware()),
	}
	if doc.Author == "" {
		doc.Author = w.opts.Document.Author
	}
	w.bindChannels()
	doc.Hardware = w.hardware()

	sw := &doc.Software
	for _, t := range p.Tags {
		if w.onChannel[t] {
			continue
		}
		s, err := symbol(t)
		if err != nil {
			return nil, err
		}
		sw.Symbols = append(sw.Symbols, s)
	}
	for i, u := range p.POUs {
		px, err := w.pou(i, u)
		if err != nil {
			return nil, err
		}
		sw.POUs = append(sw.POUs, px)
		if err := w.instances(sw, u); err != nil {
			return nil, err
		}
	}
	sw.Memory = memory(p.Memory)
	sw.Notes = append(sw.Notes, p.Notes...)
	for _, d := range p.Warnings.Diagnostics {
		sw.Warnings = append(sw.Warnings, diagnosticXML{Kind: string(d.Kind), Path: d.Path, Message: d.Message})
	}
	return doc, nil
}

// bindChannels picks the controller tags that are plain names for a
// configured I/O channel; those travel on the channel entry.
func (w *writer) bindChannels() {
	w.onChannel = map[*models.Tag]bool{}
	taken := map[string]bool{}
	for _, t := range w.p.Tags {
		if t.Address == "" || t.Initial != "" || taken[t.Address] {
			continue
		}
		op, err := w.p.Mapper().Parse(dialect.SchneiderM221, t.Address)
		if err != nil || !op.IsAddress() || !op.Addr.Area.IsIO() {
			continue
		}
		if w.p.Hardware.Lookup(op.Addr) == nil {
			continue
		}
		if t.DataType != "" && t.DataType != address.DefaultType(op.Addr.Area) {
			continue
		}
		w.onChannel[t] = true
		taken[t.Address] = true
	}
}

func (w *writer) channelTag(addr string) *models.Tag {
	for _, t := range w.p.Tags {
		if w.onChannel[t] && t.Address == addr {
			return t
		}
	}
	return nil
}

func symbol(t *models.Tag) (symbolXML, error) {
	if t.Address == "" {
		return symbolXML{}, faults.Unsupported(fmt.Sprintf("tag %s has no address; .smbp symbols must be located", t.Name))
	}
	return symbolXML{Address: t.Address, Symbol: t.Name, Type: t.DataType, Comment: t.Comment, Initial: t.Initial}, nil
}

func (w *writer) pou(i int, u *models.POU) (pouXML, error) {
	if u.Language == models.LangST {
		e := faults.Unsupported("structured text POUs cannot be stored in .smbp")
		e.Path = u.Name
		return pouXML{}, e
	}
	px := pouXML{Name: u.Name, SectionNumber: i, Kind: string(u.Kind), Language: string(u.Language)}
	for _, t := range u.Tags {
		s, err := symbol(t)
		if err != nil {
			return pouXML{}, err
		}
		px.Symbols = append(px.Symbols, s)
	}
	for _, r := range u.Rungs {
		px.Rungs = append(px.Rungs, rung(r))
	}
	return px, nil
}

func rung(r *models.Rung) rungXML {
	idx := r.Index
	rx := rungXML{
		Index:            &idx,
		Name:             r.Name,
		MainComment:      r.Comment,
		Label:            r.Label,
		IsLadderSelected: r.LadderSelected,
	}
	for _, e := range r.Elements {
		rx.Elements = append(rx.Elements, ladderEntity(e))
	}
	for _, in := range r.IL {
		rx.Lines = append(rx.Lines, lineXML{InstructionLine: in.Text(), Comment: in.Comment})
	}
	return rx
}

func ladderEntity(e models.Element) ladderXML {
	d := models.ElementToDoc(e)
	lx := ladderXML{
		ElementType:      d.Type,
		Descriptor:       d.Descriptor,
		Comment:          d.Comment,
		Symbol:           d.Symbol,
		Row:              d.Row,
		Column:           d.Column,
		ChosenConnection: d.Connections,
		Storage:          d.Storage,
		Shape:            d.Shape,
		Label:            d.Label,
	}
	switch v := e.(type) {
	case *models.Timer:
		lx.TimerType = d.BlockType
		if v.Base.Valid() {
			lx.TimeBase = v.Base.SchneiderName()
		}
		preset := v.Preset
		lx.Preset = &preset
	case *models.Counter:
		lx.CounterType = d.BlockType
		preset := v.Preset
		lx.Preset = &preset
	case *models.FunctionBlock:
		lx.BlockType = v.TypeName
		lx.Descriptor = v.Call()
	case *models.Comparison:
		lx.ComparisonExpression = d.Expression
	case *models.Operation:
		lx.OperationExpression = d.Expression
	}
	return lx
}

func (w *writer) instances(sw *softwareXML, u *models.POU) error {
	legacy := w.firmware() == dialect.FirmwareLegacy
	for _, in := range u.Instances {
		idx := 0
		if op, err := w.p.Mapper().Parse(dialect.SchneiderM221, in.Descriptor); err == nil && op.IsAddress() {
			idx = op.Addr.Major
		}
		switch in.Kind {
		case models.InstanceTimer:
			tx := timerXML{
				Address:    in.Descriptor,
				Index:      idx,
				Symbol:     in.Symbol,
				Comment:    in.Comment,
				TimerType:  in.Type,
				Preset:     in.Preset,
				Allocation: string(in.Allocation),
				Pou:        u.Name,
			}
			if tx.TimerType == "" {
				tx.TimerType = string(models.TimerTON)
			}
			if legacy {
				tx.TimeBase = in.Base.SchneiderName()
				sw.TimersLegacy = append(sw.TimersLegacy, tx)
			} else {
				tx.Base = in.Base.SchneiderName()
				sw.TimersTM = append(sw.TimersTM, tx)
			}
		case models.InstanceCounter:
			sw.Counters = append(sw.Counters, counterXML{
				Address:     in.Descriptor,
				Index:       idx,
				Symbol:      in.Symbol,
				Comment:     in.Comment,
				CounterType: in.Type,
				Preset:      in.Preset,
				Allocation:  string(in.Allocation),
				Pou:         u.Name,
			})
		case models.InstancePID:
			sw.FunctionBlock = append(sw.FunctionBlock, fbInstXML{Name: in.Descriptor, Type: in.Type, Comment: in.Comment, Pou: u.Name})
		default:
			return faults.Unsupported(fmt.Sprintf("instance kind %q", in.Kind))
		}
	}
	return nil
}

func alloc(a models.Allocation) allocXML {
	return allocXML{Capacity: a.Capacity, Forced: a.Forced, Allocation: string(a.Policy)}
}

func memory(m models.Memory) *memoryXML {
	return &memoryXML{
		Bits:        alloc(m.Bits),
		Words:       alloc(m.Words),
		DoubleWords: alloc(m.DoubleWords),
		Timers:      alloc(m.Timers),
		Counters:    alloc(m.Counters),
	}
}

// hardware groups modules by position: index 0 is the CPU's embedded I/O,
// every other index becomes an extension module.
func (w *writer) hardware() *hardwareXML {
	p := w.p
	if len(p.Hardware.Modules) == 0 && p.Catalog == "" {
		return nil
	}
	hw := &hardwareXML{Cpu: cpuXML{Reference: p.Catalog, HardwareID: p.HardwareID}}
	exts := map[int]*extXML{}
	for _, m := range p.Hardware.Modules {
		if m.Index == 0 {
			switch m.Type {
			case models.ModuleEthernet:
				hw.Cpu.Ethernet = &struct{}{}
				continue
			case models.ModuleSerial:
				hw.Cpu.Serial = &struct{}{}
				continue
			}
			w.channels(&hw.Cpu.ioXML, m)
			continue
		}
		x, ok := exts[m.Index]
		if !ok {
			x = &extXML{Index: m.Index}
			exts[m.Index] = x
		}
		if x.Reference == "" {
			x.Reference = m.Catalog
		}
		if x.HardwareID == "" {
			x.HardwareID = m.HardwareID
		}
		w.channels(&x.ioXML, m)
	}
	keys := make([]int, 0, len(exts))
	for k := range exts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		hw.Cpu.Extensions = append(hw.Cpu.Extensions, *exts[k])
	}
	return hw
}

func (w *writer) channels(io *ioXML, m *models.Module) {
	for _, ch := range m.Channels {
		addr := m.ChannelAddress(ch.Index).String()
		sym, comment := ch.Symbol, ch.Comment
		if t := w.channelTag(addr); t != nil {
			sym, comment = t.Name, t.Comment
		}
		switch m.Type {
		case models.ModuleAnalogIn, models.ModuleAnalogOut:
			ax := analogXML{
				Address: addr, Index: ch.Index, Symbol: sym, Comment: comment,
				Type: ch.AnalogType, Scope: ch.Scope, Minimum: ch.Min, Maximum: ch.Max,
			}
			if m.Type == models.ModuleAnalogIn {
				io.AnalogInputs = append(io.AnalogInputs, ax)
			} else {
				io.AnalogOutputs = append(io.AnalogOutputs, ax)
			}
			continue
		}
		dx := discreteXML{Address: addr, Index: ch.Index, Symbol: sym, Comment: comment, Filter: ch.Filter, Latch: ch.Latch}
		switch m.Type {
		case models.ModuleDigitalIn:
			io.DigitalInputs = append(io.DigitalInputs, dx)
		case models.ModuleDigitalOut:
			io.DigitalOutputs = append(io.DigitalOutputs, dx)
		case models.ModuleHSC:
			io.HighSpeed = append(io.HighSpeed, dx)
		case models.ModulePulseTrain:
			io.PulseTrain = append(io.PulseTrain, dx)
		}
	}
}
