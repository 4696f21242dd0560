package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// ProjectDoc is the serialisable form of a Project shared by the JSON, YAML
// and msgpack encodings.
type ProjectDoc struct {
	Name          string              `json:"name" yaml:"name"`
	Author        string              `json:"author,omitempty" yaml:"author,omitempty"`
	Created       string              `json:"created,omitempty" yaml:"created,omitempty"`
	Target        string              `json:"target" yaml:"target"`
	SourceDialect string              `json:"sourceDialect,omitempty" yaml:"sourceDialect,omitempty"`
	Firmware      string              `json:"firmware,omitempty" yaml:"firmware,omitempty"`
	Catalog       string              `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Identity      *IdentityDoc        `json:"identity,omitempty" yaml:"identity,omitempty"`
	HardwareID    string              `json:"hardwareId,omitempty" yaml:"hardwareId,omitempty"`
	Hardware      []ModuleDoc         `json:"hardware,omitempty" yaml:"hardware,omitempty"`
	Memory        *MemoryDoc          `json:"memory,omitempty" yaml:"memory,omitempty"`
	Tags          []TagDoc            `json:"tags,omitempty" yaml:"tags,omitempty"`
	VarLists      []VarListDoc        `json:"varLists,omitempty" yaml:"varLists,omitempty"`
	POUs          []POUDoc            `json:"pous" yaml:"pous"`
	Notes         []string            `json:"notes,omitempty" yaml:"notes,omitempty"`
	Warnings      []faults.Diagnostic `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type IdentityDoc struct {
	DeviceType    string `json:"deviceType,omitempty" yaml:"deviceType,omitempty"`
	DeviceID      string `json:"deviceId,omitempty" yaml:"deviceId,omitempty"`
	DeviceVersion string `json:"deviceVersion,omitempty" yaml:"deviceVersion,omitempty"`
}

type ModuleDoc struct {
	Index      int          `json:"index" yaml:"index"`
	Type       string       `json:"type" yaml:"type"`
	Catalog    string       `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	HardwareID string       `json:"hardwareId,omitempty" yaml:"hardwareId,omitempty"`
	Channels   []ChannelDoc `json:"channels,omitempty" yaml:"channels,omitempty"`
}

type ChannelDoc struct {
	Index      int    `json:"index" yaml:"index"`
	Symbol     string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Filter     string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Latch      bool   `json:"latch,omitempty" yaml:"latch,omitempty"`
	AnalogType string `json:"analogType,omitempty" yaml:"analogType,omitempty"`
	Scope      string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Min        int    `json:"min,omitempty" yaml:"min,omitempty"`
	Max        int    `json:"max,omitempty" yaml:"max,omitempty"`
}

type AllocationDoc struct {
	Capacity int    `json:"capacity" yaml:"capacity"`
	Forced   int    `json:"forced,omitempty" yaml:"forced,omitempty"`
	Policy   string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

type MemoryDoc struct {
	Bits        AllocationDoc `json:"bits" yaml:"bits"`
	Words       AllocationDoc `json:"words" yaml:"words"`
	DoubleWords AllocationDoc `json:"doubleWords" yaml:"doubleWords"`
	Timers      AllocationDoc `json:"timers" yaml:"timers"`
	Counters    AllocationDoc `json:"counters" yaml:"counters"`
}

type TagDoc struct {
	Name     string `json:"name" yaml:"name"`
	Address  string `json:"address,omitempty" yaml:"address,omitempty"`
	DataType string `json:"type,omitempty" yaml:"type,omitempty"`
	Scope    string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Initial  string `json:"initial,omitempty" yaml:"initial,omitempty"`
}

type InstanceDoc struct {
	Kind       string `json:"kind" yaml:"kind"`
	Descriptor string `json:"descriptor" yaml:"descriptor"`
	Symbol     string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Comment    string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Preset     int64  `json:"preset,omitempty" yaml:"preset,omitempty"`
	Base       string `json:"base,omitempty" yaml:"base,omitempty"`
	Allocation string `json:"allocation,omitempty" yaml:"allocation,omitempty"`
}

type VarListDoc struct {
	Name string `json:"name" yaml:"name"`
	Body string `json:"body" yaml:"body"`
	GUID string `json:"guid,omitempty" yaml:"guid,omitempty"`
}

type POUDoc struct {
	Name      string        `json:"name" yaml:"name"`
	Kind      string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Language  string        `json:"language,omitempty" yaml:"language,omitempty"`
	GUID      string        `json:"guid,omitempty" yaml:"guid,omitempty"`
	Tags      []TagDoc      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Instances []InstanceDoc `json:"instances,omitempty" yaml:"instances,omitempty"`
	Rungs     []RungDoc     `json:"rungs,omitempty" yaml:"rungs,omitempty"`
	Body      string        `json:"body,omitempty" yaml:"body,omitempty"`
}

type RungDoc struct {
	Name           string       `json:"name,omitempty" yaml:"name,omitempty"`
	Comment        string       `json:"comment,omitempty" yaml:"comment,omitempty"`
	Label          string       `json:"label,omitempty" yaml:"label,omitempty"`
	LadderSelected *bool        `json:"ladderSelected,omitempty" yaml:"ladderSelected,omitempty"`
	Elements       []ElementDoc `json:"elements,omitempty" yaml:"elements,omitempty"`
	IL             []string     `json:"il,omitempty" yaml:"il,omitempty"`
}

// ElementDoc flattens every element variant; Type selects which fields apply.
type ElementDoc struct {
	Type        string    `json:"type" yaml:"type"`
	Row         int       `json:"row" yaml:"row"`
	Column      int       `json:"column" yaml:"column"`
	Connections string    `json:"connections,omitempty" yaml:"connections,omitempty"`
	Descriptor  string    `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
	Symbol      string    `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Comment     string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	Storage     string    `json:"storage,omitempty" yaml:"storage,omitempty"`
	Shape       string    `json:"shape,omitempty" yaml:"shape,omitempty"`
	BlockType   string    `json:"blockType,omitempty" yaml:"blockType,omitempty"`
	TimeBase    string    `json:"timeBase,omitempty" yaml:"timeBase,omitempty"`
	Preset      int64     `json:"preset,omitempty" yaml:"preset,omitempty"`
	Instance    string    `json:"instance,omitempty" yaml:"instance,omitempty"`
	Inputs      []Binding `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []Binding `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Expression  string    `json:"expression,omitempty" yaml:"expression,omitempty"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
}

// ToDoc converts p to its serialisable form.
func ToDoc(p *Project) *ProjectDoc {
	d := &ProjectDoc{
		Name:          p.Name,
		Author:        p.Author,
		Target:        string(p.Target),
		SourceDialect: string(p.SourceDialect),
		Firmware:      string(p.Firmware),
		Catalog:       p.Catalog,
		HardwareID:    p.HardwareID,
		Tags:          tagDocs(p.Tags),
		Notes:         append([]string(nil), p.Notes...),
		Warnings:      append([]faults.Diagnostic(nil), p.Warnings.Diagnostics...),
		POUs:          []POUDoc{},
	}
	if !p.Created.IsZero() {
		d.Created = p.Created.UTC().Format(time.RFC3339)
	}
	if p.Identity != (ControllerIdentity{}) {
		d.Identity = &IdentityDoc{p.Identity.DeviceType, p.Identity.DeviceID, p.Identity.DeviceVersion}
	}
	for _, m := range p.Hardware.Modules {
		md := ModuleDoc{Index: m.Index, Type: string(m.Type), Catalog: m.Catalog, HardwareID: m.HardwareID}
		for _, c := range m.Channels {
			md.Channels = append(md.Channels, ChannelDoc(c))
		}
		d.Hardware = append(d.Hardware, md)
	}
	if p.Memory != DefaultMemory() {
		d.Memory = &MemoryDoc{
			Bits:        allocDoc(p.Memory.Bits),
			Words:       allocDoc(p.Memory.Words),
			DoubleWords: allocDoc(p.Memory.DoubleWords),
			Timers:      allocDoc(p.Memory.Timers),
			Counters:    allocDoc(p.Memory.Counters),
		}
	}
	for _, v := range p.VarLists {
		d.VarLists = append(d.VarLists, VarListDoc{Name: v.Name, Body: v.Body, GUID: v.GUID})
	}
	for _, u := range p.POUs {
		ud := POUDoc{
			Name:     u.Name,
			Kind:     string(u.Kind),
			Language: string(u.Language),
			GUID:     u.GUID,
			Tags:     tagDocs(u.Tags),
			Body:     u.Body,
		}
		for _, in := range u.Instances {
			id := InstanceDoc{
				Kind:       string(in.Kind),
				Descriptor: in.Descriptor,
				Symbol:     in.Symbol,
				Comment:    in.Comment,
				Type:       in.Type,
				Preset:     in.Preset,
				Allocation: string(in.Allocation),
			}
			if in.Base.Valid() {
				id.Base = in.Base.String()
			}
			ud.Instances = append(ud.Instances, id)
		}
		for _, r := range u.Rungs {
			rd := RungDoc{Name: r.Name, Comment: r.Comment, Label: r.Label}
			if !r.LadderSelected {
				f := false
				rd.LadderSelected = &f
			}
			for _, e := range r.Elements {
				rd.Elements = append(rd.Elements, ElementToDoc(e))
			}
			for _, in := range r.IL {
				rd.IL = append(rd.IL, in.Text())
			}
			ud.Rungs = append(ud.Rungs, rd)
		}
		d.POUs = append(d.POUs, ud)
	}
	return d
}

func allocDoc(a Allocation) AllocationDoc {
	return AllocationDoc{Capacity: a.Capacity, Forced: a.Forced, Policy: string(a.Policy)}
}

func tagDocs(tags []*Tag) []TagDoc {
	var out []TagDoc
	for _, t := range tags {
		out = append(out, TagDoc{Name: t.Name, Address: t.Address, DataType: t.DataType, Scope: t.Scope, Comment: t.Comment, Initial: t.Initial})
	}
	return out
}

// ElementToDoc flattens e into its serialisable form.
func ElementToDoc(e Element) ElementDoc {
	p := Pos(e)
	d := ElementDoc{Type: string(e.Kind()), Row: p.Row, Column: p.Column, Connections: p.Connections.String()}
	switch v := e.(type) {
	case *Contact:
		d.Descriptor, d.Symbol, d.Comment = v.Descriptor, v.Symbol, v.Comment
	case *Coil:
		d.Descriptor, d.Symbol, d.Comment = v.Descriptor, v.Symbol, v.Comment
		if v.Storage != StorageNone {
			d.Storage = string(v.Storage)
		}
	case *Line:
		d.Shape = string(v.Shape)
	case *Timer:
		d.Descriptor, d.Symbol, d.Comment = v.Descriptor, v.Symbol, v.Comment
		d.BlockType, d.Preset = string(v.Type), v.Preset
		if v.Base.Valid() {
			d.TimeBase = v.Base.String()
		}
	case *Counter:
		d.Descriptor, d.Symbol, d.Comment = v.Descriptor, v.Symbol, v.Comment
		d.BlockType, d.Preset = string(v.Type), v.Preset
	case *FunctionBlock:
		d.BlockType, d.Instance = v.TypeName, v.Instance
		d.Inputs, d.Outputs = v.Inputs, v.Outputs
	case *Comparison:
		d.Expression = v.Expression()
	case *Operation:
		d.Expression = v.Expr
	case *Jump:
		d.Label = v.Label
	}
	return d
}

// FromDoc builds a project from its serialisable form through the builder
// operations, so every incremental invariant is enforced. Rungs given only
// as a grid get their IL generated; rungs given only as IL get a grid.
func FromDoc(d *ProjectDoc, limits Limits) (*Project, error) {
	target := dialect.PLCopenNeutral
	if d.Target != "" {
		t, err := dialect.Parse(d.Target)
		if err != nil {
			return nil, faults.SchemaViolation("target", err.Error())
		}
		target = t
	}
	p := NewProject(d.Name, target)
	p.Limits = limits
	p.Author = d.Author
	if d.Created != "" {
		ts, err := time.Parse(time.RFC3339, d.Created)
		if err != nil {
			return nil, faults.SchemaViolation("created", err.Error())
		}
		p.Created = ts.UTC()
	}
	if d.SourceDialect != "" {
		src, err := dialect.Parse(d.SourceDialect)
		if err != nil {
			return nil, faults.SchemaViolation("sourceDialect", err.Error())
		}
		p.SourceDialect = src
	}
	if d.Firmware != "" {
		p.Firmware = dialect.ParseFirmware(d.Firmware)
	}
	p.HardwareID = d.HardwareID
	if d.Identity != nil {
		p.Identity = ControllerIdentity{d.Identity.DeviceType, d.Identity.DeviceID, d.Identity.DeviceVersion}
	}
	if err := p.UseCatalog(d.Catalog); err != nil {
		return nil, err
	}
	if len(d.Hardware) > 0 {
		p.Hardware = Hardware{}
		for i, md := range d.Hardware {
			t, err := ParseModuleType(md.Type)
			if err != nil {
				return nil, faults.SchemaViolation(fmt.Sprintf("hardware[%d].type", i), err.Error())
			}
			m := &Module{Index: md.Index, Type: t, Catalog: md.Catalog, HardwareID: md.HardwareID}
			for _, c := range md.Channels {
				m.Channels = append(m.Channels, Channel(c))
			}
			p.Hardware.Add(m)
		}
	}
	if d.Memory != nil {
		p.Memory = Memory{
			Bits:        allocFromDoc(d.Memory.Bits),
			Words:       allocFromDoc(d.Memory.Words),
			DoubleWords: allocFromDoc(d.Memory.DoubleWords),
			Timers:      allocFromDoc(d.Memory.Timers),
			Counters:    allocFromDoc(d.Memory.Counters),
		}
	}
	for _, td := range d.Tags {
		t, err := p.AddTag(td.Name, td.Address, td.DataType, td.Comment)
		if err != nil {
			return nil, err
		}
		t.Initial = td.Initial
	}
	for _, v := range d.VarLists {
		p.VarLists = append(p.VarLists, &VarList{Name: v.Name, Body: v.Body, GUID: v.GUID})
	}
	for i, ud := range d.POUs {
		if err := pouFromDoc(p, ud); err != nil {
			var fe *faults.Error
			if errors.As(err, &fe) && fe.Path == "" {
				fe.Path = fmt.Sprintf("pous[%d]", i)
			}
			return nil, err
		}
	}
	p.Notes = append(p.Notes, d.Notes...)
	p.Warnings.Diagnostics = append(p.Warnings.Diagnostics, d.Warnings...)
	return p, nil
}

func allocFromDoc(a AllocationDoc) Allocation {
	pol := AllocationPolicy(a.Policy)
	if pol == "" {
		pol = AllocAuto
	}
	return Allocation{Capacity: a.Capacity, Forced: a.Forced, Policy: pol}
}

func pouFromDoc(p *Project, ud POUDoc) error {
	kind, err := ParsePOUKind(ud.Kind)
	if err != nil {
		return faults.SchemaViolation(ud.Name+".kind", err.Error())
	}
	lang, err := ParseLanguage(ud.Language)
	if err != nil {
		return faults.SchemaViolation(ud.Name+".language", err.Error())
	}
	u, err := p.AddPOU(ud.Name, kind, lang)
	if err != nil {
		return err
	}
	u.GUID, u.Body = ud.GUID, ud.Body
	for _, td := range ud.Tags {
		t, err := u.AddTag(td.Name, td.Address, td.DataType, td.Scope, td.Comment)
		if err != nil {
			return err
		}
		t.Initial = td.Initial
	}
	for _, id := range ud.Instances {
		in := Instance{
			Kind:       InstanceKind(id.Kind),
			Descriptor: id.Descriptor,
			Symbol:     id.Symbol,
			Comment:    id.Comment,
			Type:       id.Type,
			Preset:     id.Preset,
			Allocation: AllocationPolicy(id.Allocation),
		}
		if id.Base != "" {
			b, err := address.ParseTimeBase(id.Base)
			if err != nil {
				return faults.SchemaViolation(u.Name+"/"+id.Descriptor+".base", err.Error())
			}
			in.Base = b
		}
		if _, err := u.AddInstance(in); err != nil {
			return err
		}
	}
	for _, rd := range ud.Rungs {
		r, err := u.AddRung(rd.Name, rd.Comment, rd.Label)
		if err != nil {
			return err
		}
		if rd.LadderSelected != nil {
			r.LadderSelected = *rd.LadderSelected
		}
		for _, ed := range rd.Elements {
			e, err := ElementFromDoc(ed)
			if err != nil {
				return faults.SchemaViolation(r.path(), err.Error())
			}
			if err := r.Place(e, ed.Row, ed.Column); err != nil {
				return err
			}
		}
		if len(rd.IL) > 0 {
			ins, err := ParseListing(strings.Join(rd.IL, "\n"))
			if err != nil {
				return faults.Wrap(faults.KindParseError, err, "IL of %s", r.path())
			}
			r.IL = ins
		}
		switch {
		case len(r.Elements) > 0 && len(r.IL) == 0:
			if err := r.EmitIL(); err != nil {
				return err
			}
		case len(r.Elements) == 0 && len(r.IL) > 0:
			if err := r.SyncGrid(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ElementFromDoc rebuilds an element; the placement row and column are left
// for Rung.Place.
func ElementFromDoc(d ElementDoc) (Element, error) {
	conn, err := ParseDirections(d.Connections)
	if err != nil {
		return nil, err
	}
	pl := Placement{Connections: conn}
	switch ElementKind(d.Type) {
	case KindNormalContact, KindNegatedContact:
		return &Contact{Placement: pl, Descriptor: d.Descriptor, Symbol: d.Symbol, Comment: d.Comment,
			Negated: ElementKind(d.Type) == KindNegatedContact}, nil
	case KindCoil:
		st := CoilStorage(d.Storage)
		if st == "" {
			st = StorageNone
		}
		return &Coil{Placement: pl, Descriptor: d.Descriptor, Symbol: d.Symbol, Comment: d.Comment, Storage: st}, nil
	case KindLine:
		sh := LineShape(d.Shape)
		if sh == "" {
			sh = LineHorizontal
		}
		return &Line{Placement: pl, Shape: sh}, nil
	case KindTimer:
		t := &Timer{Placement: pl, Descriptor: d.Descriptor, Symbol: d.Symbol, Comment: d.Comment,
			Type: TimerType(d.BlockType), Preset: d.Preset}
		if t.Type == "" {
			t.Type = TimerTON
		}
		if d.TimeBase != "" {
			b, err := address.ParseTimeBase(d.TimeBase)
			if err != nil {
				return nil, err
			}
			t.Base = b
		}
		return t, nil
	case KindCounter:
		c := &Counter{Placement: pl, Descriptor: d.Descriptor, Symbol: d.Symbol, Comment: d.Comment,
			Type: CounterType(d.BlockType), Preset: d.Preset}
		if c.Type == "" {
			c.Type = CounterCTU
		}
		return c, nil
	case KindFunctionBlock:
		return &FunctionBlock{Placement: pl, TypeName: d.BlockType, Instance: d.Instance, Inputs: d.Inputs, Outputs: d.Outputs}, nil
	case KindComparison:
		c, err := ParseComparison(d.Expression)
		if err != nil {
			return nil, err
		}
		c.Placement = pl
		return c, nil
	case KindOperation:
		return &Operation{Placement: pl, Expr: d.Expression}, nil
	case KindConnector:
		return &Connector{Placement: pl}, nil
	case KindJump:
		return &Jump{Placement: pl, Label: d.Label}, nil
	}
	return nil, fmt.Errorf("unknown element type %q", d.Type)
}

// EncodeJSON renders p as indented JSON.
func EncodeJSON(p *Project) ([]byte, error) {
	return json.MarshalIndent(ToDoc(p), "", "  ")
}

// DecodeJSON builds a project from JSON.
func DecodeJSON(data []byte, limits Limits) (*Project, error) {
	var d ProjectDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			line, col := lineColumn(data, se.Offset)
			return nil, faults.ParseError(line, col, se.Error())
		}
		return nil, faults.SchemaViolation("", err.Error())
	}
	return FromDoc(&d, limits)
}

// EncodeYAML renders p as YAML.
func EncodeYAML(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToDoc(p)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeYAML builds a project from YAML.
func DecodeYAML(data []byte, limits Limits) (*Project, error) {
	var d ProjectDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, faults.Wrap(faults.KindParseError, err, "invalid YAML model")
	}
	return FromDoc(&d, limits)
}

// EncodeMsgpack renders p as msgpack using the JSON field names.
func EncodeMsgpack(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(ToDoc(p)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMsgpack builds a project from msgpack.
func DecodeMsgpack(data []byte, limits Limits) (*Project, error) {
	var d ProjectDoc
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&d); err != nil {
		return nil, faults.Wrap(faults.KindParseError, err, "invalid msgpack model")
	}
	return FromDoc(&d, limits)
}

func lineColumn(data []byte, offset int64) (int, int) {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
