// Package models holds the language-neutral ladder model: projects, program
// organization units, rungs with their grid and IL views, tags, hardware and
// the builder operations that keep the model consistent while it is edited.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// POUKind is the IEC kind of a program organization unit.
type POUKind string

const (
	POUProgram       POUKind = "program"
	POUFunction      POUKind = "function"
	POUFunctionBlock POUKind = "function-block"
)

// ParsePOUKind accepts the model names and the common vendor spellings.
func ParsePOUKind(s string) (POUKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "program", "prg", "":
		return POUProgram, nil
	case "function", "fun", "fc":
		return POUFunction, nil
	case "function-block", "functionblock", "function_block", "fb":
		return POUFunctionBlock, nil
	}
	return "", fmt.Errorf("unknown POU kind %q", s)
}

// Language is the implementation language of a POU.
type Language string

const (
	LangLD Language = "LD"
	LangIL Language = "IL"
	LangST Language = "ST"
)

// ParseLanguage accepts LD, IL or ST in any case.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToUpper(strings.TrimSpace(s))); l {
	case LangLD, LangIL, LangST:
		return l, nil
	case "":
		return LangLD, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// ScopeController is the scope of project-wide tags.
const ScopeController = "controller"

// ProgramScope is the scope of tags local to POU name.
func ProgramScope(name string) string { return "program:" + name }

// Tag binds a symbolic name to an address.
type Tag struct {
	Name     string
	Address  string
	DataType string
	Scope    string
	Comment  string
	Initial  string
}

// InstanceKind classifies declared block instances.
type InstanceKind string

const (
	InstanceTimer   InstanceKind = "timer"
	InstanceCounter InstanceKind = "counter"
	InstancePID     InstanceKind = "pid"
)

// AllocationPolicy records whether instance numbering was forced by the user.
type AllocationPolicy string

const (
	AllocManual AllocationPolicy = "manual"
	AllocAuto   AllocationPolicy = "auto"
)

// Instance declares a timer, counter or PID owned by a POU.
type Instance struct {
	Kind       InstanceKind
	Descriptor string
	Symbol     string
	Comment    string
	Type       string // TON/TOF/TP, CTU/CTD/CTUD or a block type such as PID_FIXCYCLE
	Preset     int64
	Base       address.TimeBase
	Allocation AllocationPolicy
}

// VarList is a named global variable list carried as declaration text.
type VarList struct {
	Name string
	Body string
	GUID string
}

// ControllerIdentity is the (device-type, device-id, device-version) triple.
type ControllerIdentity struct {
	DeviceType    string
	DeviceID      string
	DeviceVersion string
}

// Limits are the resource ceilings enforced by builders and parsers.
type Limits struct {
	MaxInputBytes      int64
	MaxPOUs            int
	MaxRungsPerPOU     int
	MaxElementsPerRung int
}

// DefaultLimits returns the standard ceilings: 64 MiB of input, 256 POUs,
// 4096 rungs per POU and 256 elements per rung.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes:      64 << 20,
		MaxPOUs:            256,
		MaxRungsPerPOU:     4096,
		MaxElementsPerRung: 256,
	}
}

// CheckInput fails when n bytes exceed the input ceiling.
func (l Limits) CheckInput(n int64) error {
	if l.MaxInputBytes > 0 && n > l.MaxInputBytes {
		return faults.ResourceLimitExceeded("input bytes", l.MaxInputBytes)
	}
	return nil
}

// Allocation is the capacity and forced count of one memory class.
type Allocation struct {
	Capacity int
	Forced   int
	Policy   AllocationPolicy
}

// Memory groups the allocation of every memory class.
type Memory struct {
	Bits        Allocation
	Words       Allocation
	DoubleWords Allocation
	Timers      Allocation
	Counters    Allocation
}

// DefaultMemory returns the M221 capacities.
func DefaultMemory() Memory {
	return Memory{
		Bits:        Allocation{Capacity: 1024, Policy: AllocAuto},
		Words:       Allocation{Capacity: 8000, Policy: AllocAuto},
		DoubleWords: Allocation{Capacity: 4000, Policy: AllocAuto},
		Timers:      Allocation{Capacity: 255, Policy: AllocAuto},
		Counters:    Allocation{Capacity: 255, Policy: AllocAuto},
	}
}

// Project is the root of the model.
type Project struct {
	Name          string
	Author        string
	Created       time.Time
	Target        dialect.Dialect
	SourceDialect dialect.Dialect
	Firmware      dialect.SchneiderFirmware
	Catalog       string
	Identity      ControllerIdentity
	HardwareID    string
	Hardware      Hardware
	Memory        Memory
	POUs          []*POU
	Tags          []*Tag // controller scope
	VarLists      []*VarList
	Notes         []string
	Warnings      faults.Report
	Limits        Limits

	finalized bool
	mapper    *address.Mapper
}

// NewProject creates an empty project for target.
func NewProject(name string, target dialect.Dialect) *Project {
	return &Project{
		Name:     name,
		Created:  time.Now().UTC().Truncate(time.Second),
		Target:   target,
		Firmware: dialect.Firmware16Plus,
		Memory:   DefaultMemory(),
		Limits:   DefaultLimits(),
	}
}

var errFinalized = faults.New(faults.KindInvariantViolation, "project is finalized")

func (p *Project) mutable() error {
	if p != nil && p.finalized {
		return errFinalized
	}
	return nil
}

// Finalized reports whether Finalize succeeded and the project is frozen.
func (p *Project) Finalized() bool { return p.finalized }

// Mapper returns the address mapper used for the project's lookups.
func (p *Project) Mapper() *address.Mapper {
	if p.mapper == nil {
		p.mapper = address.NewMapper(address.DefaultCacheSize)
	}
	return p.mapper
}

// SetMapper shares a mapper between projects.
func (p *Project) SetMapper(m *address.Mapper) { p.mapper = m }

// AddNote records a conversion note, skipping exact repeats.
func (p *Project) AddNote(note string) {
	if note == "" {
		return
	}
	for _, n := range p.Notes {
		if n == note {
			return
		}
	}
	p.Notes = append(p.Notes, note)
}

// POU returns the POU called name, or nil.
func (p *Project) POU(name string) *POU {
	for _, u := range p.POUs {
		if strings.EqualFold(u.Name, name) {
			return u
		}
	}
	return nil
}

// ValidIdentifier reports whether s is an IEC identifier.
func ValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// AddPOU appends a program organization unit.
func (p *Project) AddPOU(name string, kind POUKind, lang Language) (*POU, error) {
	if err := p.mutable(); err != nil {
		return nil, err
	}
	if !ValidIdentifier(name) {
		return nil, faults.New(faults.KindSchemaViolation, "POU name %q is not an identifier", name)
	}
	if p.POU(name) != nil {
		e := faults.New(faults.KindDuplicateSymbol, "POU %s already exists", name)
		e.Path = name
		return nil, e
	}
	if p.Limits.MaxPOUs > 0 && len(p.POUs) >= p.Limits.MaxPOUs {
		return nil, faults.ResourceLimitExceeded("POUs", int64(p.Limits.MaxPOUs))
	}
	u := &POU{Name: name, Kind: kind, Language: lang, owner: p}
	p.POUs = append(p.POUs, u)
	return u, nil
}

// AddTag declares a controller-scope tag.
func (p *Project) AddTag(name, addr, dataType, comment string) (*Tag, error) {
	if err := p.mutable(); err != nil {
		return nil, err
	}
	return p.addTag(&p.Tags, name, addr, dataType, ScopeController, comment)
}

// Tag returns the controller-scope tag called name, or nil.
func (p *Project) Tag(name string) *Tag {
	return findTag(p.Tags, name)
}

func findTag(tags []*Tag, name string) *Tag {
	for _, t := range tags {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (p *Project) addTag(list *[]*Tag, name, addr, dataType, scope, comment string) (*Tag, error) {
	if !ValidIdentifier(name) {
		return nil, faults.New(faults.KindSchemaViolation, "tag name %q is not an identifier", name)
	}
	if findTag(*list, name) != nil {
		e := faults.New(faults.KindDuplicateSymbol, "tag %s already declared in scope %s", name, scope)
		e.Path = name
		return nil, e
	}
	if addr != "" {
		if err := p.checkAddress(addr); err != nil {
			return nil, err
		}
	}
	if dataType == "" {
		dataType = address.TypeBOOL
		if op, err := p.Mapper().Parse(p.Target, addr); err == nil && op.IsAddress() {
			dataType = address.DefaultType(op.Addr.Area)
		}
	}
	t := &Tag{Name: name, Address: addr, DataType: dataType, Scope: scope, Comment: comment}
	*list = append(*list, t)
	return t, nil
}

// checkAddress verifies that addr fits the controller: I/O addresses need a
// configured channel when a hardware plan exists, memory and block addresses
// must lie within the allocation.
func (p *Project) checkAddress(addr string) error {
	op, err := p.Mapper().Parse(p.Target, addr)
	if err != nil {
		return err
	}
	if !op.IsAddress() {
		return nil
	}
	if !p.fits(op.Addr) {
		e := faults.New(faults.KindAddressOutOfRange, "%s does not fit the %s I/O plan", addr, p.describeController())
		e.Path = addr
		return e
	}
	return nil
}

func (p *Project) describeController() string {
	if p.Catalog != "" {
		return p.Catalog
	}
	return p.Target.String()
}

func within(index int, a Allocation) bool {
	return a.Capacity <= 0 || index < a.Capacity
}

func (p *Project) fits(a address.Address) bool {
	switch a.Area {
	case address.AreaI, address.AreaQ, address.AreaIW, address.AreaQW, address.AreaHSC, address.AreaPLS, address.AreaPWM:
		if len(p.Hardware.Modules) == 0 {
			return true
		}
		return p.Hardware.HasChannel(a)
	case address.AreaM:
		idx := a.Major
		if a.HasMinor {
			idx = a.Major*8 + a.Minor
		}
		return within(idx, p.Memory.Bits)
	case address.AreaMW:
		return within(a.Major, p.Memory.Words)
	case address.AreaMD:
		return within(a.Major, p.Memory.DoubleWords)
	case address.AreaTM, address.AreaTMQ:
		return within(a.Major, p.Memory.Timers)
	case address.AreaC:
		return within(a.Major, p.Memory.Counters)
	}
	return true
}

// POU is a program organization unit.
type POU struct {
	Name      string
	Kind      POUKind
	Language  Language
	Rungs     []*Rung
	Tags      []*Tag
	Instances []*Instance
	Body      string // structured text source of ST POUs
	GUID      string // CODESYS object identity, stable across re-emission

	owner *Project
}

// Project returns the project owning u.
func (u *POU) Project() *Project { return u.owner }

// AddTag declares a tag. An empty scope means the POU's own scope; the
// controller scope stores the tag on the project.
func (u *POU) AddTag(name, addr, dataType, scope, comment string) (*Tag, error) {
	if err := u.owner.mutable(); err != nil {
		return nil, err
	}
	if scope == ScopeController {
		return u.owner.addTag(&u.owner.Tags, name, addr, dataType, ScopeController, comment)
	}
	if scope == "" {
		scope = ProgramScope(u.Name)
	}
	return u.owner.addTag(&u.Tags, name, addr, dataType, scope, comment)
}

// Tag returns the POU-scope tag called name, or nil.
func (u *POU) Tag(name string) *Tag { return findTag(u.Tags, name) }

// LookupTag resolves name in POU scope first, then controller scope.
func (u *POU) LookupTag(name string) *Tag {
	if t := u.Tag(name); t != nil {
		return t
	}
	return u.owner.Tag(name)
}

// AddInstance declares a timer, counter or PID instance.
func (u *POU) AddInstance(in Instance) (*Instance, error) {
	if err := u.owner.mutable(); err != nil {
		return nil, err
	}
	if u.Instance(in.Descriptor) != nil {
		e := faults.New(faults.KindDuplicateSymbol, "instance %s already declared", in.Descriptor)
		e.Path = in.Descriptor
		return nil, e
	}
	if in.Kind != InstancePID {
		if err := u.owner.checkAddress(in.Descriptor); err != nil {
			return nil, err
		}
	}
	if in.Allocation == "" {
		in.Allocation = AllocAuto
	}
	inst := in
	u.Instances = append(u.Instances, &inst)
	return &inst, nil
}

// Instance returns the instance declared with descriptor or symbol d.
func (u *POU) Instance(d string) *Instance {
	for _, in := range u.Instances {
		if in.Descriptor == d || (in.Symbol != "" && in.Symbol == d) {
			return in
		}
	}
	return nil
}

// Resolver builds timer and counter elements from the POU's declarations.
func (u *POU) Resolver() BlockResolver {
	return func(d string) Element {
		in := u.Instance(d)
		if in == nil {
			return DefaultBlock(d)
		}
		switch in.Kind {
		case InstanceCounter:
			t := CounterType(in.Type)
			if t == "" {
				t = CounterCTU
			}
			return &Counter{Descriptor: in.Descriptor, Symbol: in.Symbol, Type: t, Preset: in.Preset}
		default:
			t := TimerType(in.Type)
			if t == "" {
				t = TimerTON
			}
			return &Timer{Descriptor: in.Descriptor, Symbol: in.Symbol, Type: t, Base: in.Base, Preset: in.Preset}
		}
	}
}

// AddRung appends a rung.
func (u *POU) AddRung(name, comment, label string) (*Rung, error) {
	if err := u.owner.mutable(); err != nil {
		return nil, err
	}
	if max := u.owner.Limits.MaxRungsPerPOU; max > 0 && len(u.Rungs) >= max {
		return nil, faults.ResourceLimitExceeded("rungs in "+u.Name, int64(max))
	}
	r := &Rung{Index: len(u.Rungs), Name: name, Comment: comment, Label: label, LadderSelected: true, owner: u}
	u.Rungs = append(u.Rungs, r)
	return r, nil
}

// ElementCount totals the grid elements across every rung of u.
func (u *POU) ElementCount() int {
	n := 0
	for _, r := range u.Rungs {
		n += len(r.Elements)
	}
	return n
}
