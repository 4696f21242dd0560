package smbp

import (
	"fmt"
	"strings"
	"time"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Decode parses a .smbp document. Both timer declaration shapes are accepted;
// a rung carrying only one view gets the other derived from it.
func (*Codec) Decode(data []byte, opts codec.Options) (*models.Project, error) {
	if err := opts.Limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	var doc projectXML
	if err := codec.DecodeXML(data, &doc); err != nil {
		return nil, err
	}
	name := doc.FullName
	if name == "" {
		name = strings.TrimSuffix(doc.Name, ".smbp")
	}
	p := models.NewProject(name, dialect.SchneiderM221)
	p.Limits = opts.Limits
	p.Author = doc.Author
	p.Created = time.Time{}
	if doc.CreationDate != "" {
		ts, err := time.Parse(time.RFC3339, doc.CreationDate)
		if err != nil {
			return nil, faults.SchemaViolation("ProjectDescriptor/CreationDate", err.Error())
		}
		p.Created = ts.UTC()
	}
	sw := &doc.Software
	switch {
	case doc.Firmware != "":
		p.Firmware = dialect.ParseFirmware(doc.Firmware)
	case len(sw.TimersLegacy) > 0 && len(sw.TimersTM) == 0:
		p.Firmware = dialect.FirmwareLegacy
	default:
		p.Firmware = dialect.Firmware16Plus
	}

	r := reader{p: p}
	if doc.Hardware != nil {
		if err := r.hardware(doc.Hardware); err != nil {
			return nil, err
		}
	}
	if sw.Memory != nil {
		p.Memory = models.Memory{
			Bits:        fromAlloc(sw.Memory.Bits),
			Words:       fromAlloc(sw.Memory.Words),
			DoubleWords: fromAlloc(sw.Memory.DoubleWords),
			Timers:      fromAlloc(sw.Memory.Timers),
			Counters:    fromAlloc(sw.Memory.Counters),
		}
	}
	if err := r.channelTags(); err != nil {
		return nil, err
	}
	for _, s := range sw.Symbols {
		t, err := p.AddTag(s.Symbol, s.Address, s.Type, s.Comment)
		if err != nil {
			return nil, err
		}
		t.Initial = s.Initial
	}
	for i, px := range sw.POUs {
		if err := r.pou(px); err != nil {
			return nil, locate(err, fmt.Sprintf("Pous[%d]", i))
		}
	}
	if err := r.instances(sw); err != nil {
		return nil, err
	}
	for _, px := range sw.POUs {
		if err := r.rungs(px); err != nil {
			return nil, err
		}
	}
	p.Notes = append(p.Notes, sw.Notes...)
	for _, w := range sw.Warnings {
		p.Warnings.Diagnostics = append(p.Warnings.Diagnostics, faults.Diagnostic{
			Severity: faults.SeverityWarning, Kind: faults.Kind(w.Kind), Path: w.Path, Message: w.Message,
		})
	}
	return p, nil
}

func locate(err error, path string) error {
	if fe, ok := err.(*faults.Error); ok && fe.Path == "" {
		fe.Path = path
	}
	return err
}

func fromAlloc(a allocXML) models.Allocation {
	pol := models.AllocationPolicy(a.Allocation)
	if pol == "" {
		pol = models.AllocAuto
	}
	return models.Allocation{Capacity: a.Capacity, Forced: a.Forced, Policy: pol}
}

type reader struct {
	p *models.Project
}

func (r *reader) hardware(hw *hardwareXML) error {
	p := r.p
	cpu := hw.Cpu
	p.Catalog = cpu.Reference
	p.HardwareID = cpu.HardwareID
	p.Hardware = models.Hardware{}
	r.modules(0, cpu.Reference, cpu.HardwareID, cpu.ioXML)
	if cpu.Ethernet != nil {
		p.Hardware.Add(&models.Module{Type: models.ModuleEthernet, Catalog: cpu.Reference})
	}
	if cpu.Serial != nil {
		p.Hardware.Add(&models.Module{Type: models.ModuleSerial, Catalog: cpu.Reference})
	}
	seen := map[int]bool{}
	for _, x := range cpu.Extensions {
		if x.Index <= 0 || seen[x.Index] {
			return faults.SchemaViolation("HardwareConfiguration/Plc/Cpu/Extensions",
				fmt.Sprintf("extension index %d is reserved or repeated", x.Index))
		}
		seen[x.Index] = true
		r.modules(x.Index, x.Reference, x.HardwareID, x.ioXML)
	}
	return nil
}

// modules adds one module per non-empty channel list. Extension channels are
// keyed by the extension's own index, so an analog input 0 on extension 1
// never collides with the CPU's analog input 0.
func (r *reader) modules(index int, ref, hwID string, io ioXML) {
	discrete := func(t models.ModuleType, list []discreteXML) {
		if len(list) == 0 {
			return
		}
		m := &models.Module{Index: index, Type: t, Catalog: ref, HardwareID: hwID}
		for _, d := range list {
			m.Channels = append(m.Channels, models.Channel{
				Index: d.Index, Symbol: d.Symbol, Comment: d.Comment, Filter: d.Filter, Latch: d.Latch,
			})
		}
		r.p.Hardware.Add(m)
	}
	analog := func(t models.ModuleType, list []analogXML) {
		if len(list) == 0 {
			return
		}
		m := &models.Module{Index: index, Type: t, Catalog: ref, HardwareID: hwID}
		for _, a := range list {
			m.Channels = append(m.Channels, models.Channel{
				Index: a.Index, Symbol: a.Symbol, Comment: a.Comment,
				AnalogType: a.Type, Scope: a.Scope, Min: a.Minimum, Max: a.Maximum,
			})
		}
		r.p.Hardware.Add(m)
	}
	discrete(models.ModuleDigitalIn, io.DigitalInputs)
	discrete(models.ModuleDigitalOut, io.DigitalOutputs)
	analog(models.ModuleAnalogIn, io.AnalogInputs)
	analog(models.ModuleAnalogOut, io.AnalogOutputs)
	discrete(models.ModuleHSC, io.HighSpeed)
	discrete(models.ModulePulseTrain, io.PulseTrain)
}

// channelTags declares a controller tag for every named channel.
func (r *reader) channelTags() error {
	for _, m := range r.p.Hardware.Modules {
		for _, ch := range m.Channels {
			if ch.Symbol == "" {
				continue
			}
			addr := m.ChannelAddress(ch.Index).String()
			if _, err := r.p.AddTag(ch.Symbol, addr, "", ch.Comment); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reader) pou(px pouXML) error {
	kind, err := models.ParsePOUKind(px.Kind)
	if err != nil {
		return faults.SchemaViolation(px.Name+"/Kind", err.Error())
	}
	lang, err := models.ParseLanguage(px.Language)
	if err != nil {
		return faults.SchemaViolation(px.Name+"/Language", err.Error())
	}
	u, err := r.p.AddPOU(px.Name, kind, lang)
	if err != nil {
		return err
	}
	for _, s := range px.Symbols {
		t, err := u.AddTag(s.Symbol, s.Address, s.Type, "", s.Comment)
		if err != nil {
			return err
		}
		t.Initial = s.Initial
	}
	return nil
}

func (r *reader) owner(name string) (*models.POU, error) {
	if name == "" {
		if len(r.p.POUs) == 0 {
			return nil, faults.SchemaViolation("SoftwareConfiguration", "instance declared without any POU")
		}
		return r.p.POUs[0], nil
	}
	u := r.p.POU(name)
	if u == nil {
		return nil, faults.SchemaViolation("SoftwareConfiguration", "instance refers to unknown POU "+name)
	}
	return u, nil
}

func (r *reader) instances(sw *softwareXML) error {
	timers := append(append([]timerXML(nil), sw.TimersTM...), sw.TimersLegacy...)
	for _, tx := range timers {
		u, err := r.owner(tx.Pou)
		if err != nil {
			return err
		}
		in := models.Instance{
			Kind:       models.InstanceTimer,
			Descriptor: tx.Address,
			Symbol:     tx.Symbol,
			Comment:    tx.Comment,
			Type:       tx.TimerType,
			Preset:     tx.Preset,
			Allocation: models.AllocationPolicy(tx.Allocation),
		}
		base := tx.Base
		if base == "" {
			base = tx.TimeBase
		}
		if base != "" {
			b, err := address.ParseTimeBase(base)
			if err != nil {
				return faults.SchemaViolation("Timers/"+tx.Address, err.Error())
			}
			in.Base = b
		}
		if _, err := u.AddInstance(in); err != nil {
			return err
		}
	}
	for _, cx := range sw.Counters {
		u, err := r.owner(cx.Pou)
		if err != nil {
			return err
		}
		_, err = u.AddInstance(models.Instance{
			Kind:       models.InstanceCounter,
			Descriptor: cx.Address,
			Symbol:     cx.Symbol,
			Comment:    cx.Comment,
			Type:       cx.CounterType,
			Preset:     cx.Preset,
			Allocation: models.AllocationPolicy(cx.Allocation),
		})
		if err != nil {
			return err
		}
	}
	for _, fx := range sw.FunctionBlock {
		u, err := r.owner(fx.Pou)
		if err != nil {
			return err
		}
		in := models.Instance{Kind: models.InstancePID, Descriptor: fx.Name, Type: fx.Type, Comment: fx.Comment}
		if _, err := u.AddInstance(in); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) rungs(px pouXML) error {
	u := r.p.POU(px.Name)
	seen := map[int]bool{}
	for i, rx := range px.Rungs {
		path := fmt.Sprintf("%s/rung %d", u.Name, i)
		if rx.Index != nil {
			if seen[*rx.Index] {
				e := faults.New(faults.KindDuplicateRung, "rung index %d appears twice", *rx.Index)
				e.Path = path
				return e
			}
			seen[*rx.Index] = true
		}
		rg, err := u.AddRung(rx.Name, rx.MainComment, rx.Label)
		if err != nil {
			return err
		}
		rg.LadderSelected = rx.IsLadderSelected
		for _, lx := range rx.Elements {
			e, err := element(lx)
			if err != nil {
				return faults.SchemaViolation(path, err.Error())
			}
			if err := rg.Place(e, lx.Row, lx.Column); err != nil {
				return err
			}
		}
		for n, lx := range rx.Lines {
			in, err := models.ParseInstruction(lx.InstructionLine)
			if err != nil {
				return faults.Wrap(faults.KindParseError, err, "%s line %d: %v", path, n+1, err)
			}
			if lx.Comment != "" {
				in.Comment = lx.Comment
			}
			rg.IL = append(rg.IL, in)
		}
		switch {
		case len(rg.Elements) > 0 && len(rg.IL) == 0:
			err = rg.EmitIL()
		case len(rg.Elements) == 0 && len(rg.IL) > 0:
			err = rg.SyncGrid()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func element(lx ladderXML) (models.Element, error) {
	d := models.ElementDoc{
		Type:        lx.ElementType,
		Connections: lx.ChosenConnection,
		Descriptor:  lx.Descriptor,
		Symbol:      lx.Symbol,
		Comment:     lx.Comment,
		Storage:     lx.Storage,
		Shape:       lx.Shape,
		TimeBase:    lx.TimeBase,
		Label:       lx.Label,
	}
	if lx.Preset != nil {
		d.Preset = *lx.Preset
	}
	switch models.ElementKind(lx.ElementType) {
	case models.KindTimer:
		d.BlockType = lx.TimerType
	case models.KindCounter:
		d.BlockType = lx.CounterType
	case models.KindFunctionBlock:
		inst, ins, outs, err := models.ParseCall(lx.Descriptor)
		if err != nil {
			return nil, err
		}
		d.BlockType, d.Instance, d.Inputs, d.Outputs = lx.BlockType, inst, ins, outs
		d.Descriptor = ""
	case models.KindComparison:
		d.Expression = lx.ComparisonExpression
	case models.KindOperation:
		d.Expression = lx.OperationExpression
	}
	return models.ElementFromDoc(d)
}
