package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

// FinalizeOptions selects how diagnostics are graded.
type FinalizeOptions struct {
	Force  bool // downgrade errors to warnings
	Strict bool // upgrade warnings to errors
}

// Validate runs every global invariant and returns the diagnostics without
// freezing the project. Warnings accumulated on the project are included.
func (p *Project) Validate() *faults.Report {
	rep := &faults.Report{}
	if len(p.POUs) == 0 {
		rep.AddError(faults.KindInvariantViolation, p.Name, "project has no POU")
	}
	if max := p.Limits.MaxPOUs; max > 0 && len(p.POUs) > max {
		rep.AddError(faults.KindResourceLimitExceeded, "POUs", "%d POUs exceed limit %d", len(p.POUs), max)
	}
	p.checkTags(rep)
	for _, u := range p.POUs {
		p.checkPOU(u, rep)
	}
	rep.Merge(&p.Warnings)
	return rep
}

// Finalize validates the project and hands it off for emission. On success
// the project is frozen and further builder calls fail. The returned error
// stands for the worst category of error-level diagnostic after Force or
// Strict grading.
func (p *Project) Finalize(opts FinalizeOptions) (*faults.Report, error) {
	rep := p.Validate()
	if opts.Strict {
		rep.Upgrade()
	}
	if opts.Force {
		rep.Downgrade()
	}
	if err := rep.Err(); err != nil {
		return rep, err
	}
	p.finalized = true
	return rep, nil
}

func (p *Project) checkTags(rep *faults.Report) {
	seen := map[string]bool{}
	for _, t := range p.Tags {
		if seen[t.Name] {
			rep.AddError(faults.KindDuplicateSymbol, t.Name, "tag %s declared twice in controller scope", t.Name)
		}
		seen[t.Name] = true
	}
	for _, u := range p.POUs {
		local := map[string]bool{}
		for _, t := range u.Tags {
			if local[t.Name] {
				rep.AddError(faults.KindDuplicateSymbol, u.Name+"/"+t.Name, "tag %s declared twice in %s", t.Name, u.Name)
			}
			local[t.Name] = true
		}
	}
}

func (p *Project) checkPOU(u *POU, rep *faults.Report) {
	if max := p.Limits.MaxRungsPerPOU; max > 0 && len(u.Rungs) > max {
		rep.AddError(faults.KindResourceLimitExceeded, u.Name, "%d rungs exceed limit %d", len(u.Rungs), max)
	}
	seen := map[int]bool{}
	for i, r := range u.Rungs {
		path := fmt.Sprintf("%s/rung %d", u.Name, r.Index)
		switch {
		case seen[r.Index]:
			rep.AddError(faults.KindDuplicateRung, path, "rung index %d appears twice", r.Index)
		case r.Index != i:
			rep.AddError(faults.KindInvariantViolation, path, "rung index %d found at position %d", r.Index, i)
		}
		seen[r.Index] = true
		if max := p.Limits.MaxElementsPerRung; max > 0 && len(r.Elements) > max {
			rep.AddError(faults.KindResourceLimitExceeded, path, "%d elements exceed limit %d", len(r.Elements), max)
		}
		if u.Language == LangST {
			continue
		}
		if err := r.ValidateEquivalence(); err != nil {
			addErr(rep, path, err)
			continue
		}
		nets, _ := r.Networks()
		p.checkOperands(u, path, nets, rep)
	}
	for _, in := range u.Instances {
		if in.Kind == InstancePID {
			continue
		}
		max := address.PresetRange(p.Target)
		if in.Preset < 0 || in.Preset > max {
			rep.AddError(faults.KindAddressOutOfRange, u.Name+"/"+in.Descriptor,
				"preset %d is outside 0..%d for %s", in.Preset, max, p.Target)
		}
	}
}

func addErr(rep *faults.Report, path string, err error) {
	var fe *faults.Error
	if errors.As(err, &fe) {
		msg := fe.Message
		if fe.Path != "" && fe.Path != path {
			path = fe.Path
		}
		rep.AddError(fe.Kind, path, "%s", msg)
		return
	}
	rep.AddError(faults.KindInvariantViolation, path, "%v", err)
}

// checkOperands resolves every descriptor used by the networks and checks
// block presets and output channels.
func (p *Project) checkOperands(u *POU, path string, nets []Network, rep *faults.Report) {
	check := func(d string, coil bool) {
		if kind, msg := p.resolve(u, d, coil); kind != "" {
			rep.AddError(kind, path+"/"+d, "%s", msg)
		}
	}
	for _, n := range nets {
		if n.Block != nil {
			p.checkBlock(u, path, n.Block.Element, rep)
			for _, l := range n.Block.Input.Leaves() {
				if l.Kind == ExprContact {
					check(l.Operand, false)
				}
			}
		}
		for _, d := range n.Drives {
			for _, l := range d.Power.Leaves() {
				if l.Kind == ExprContact {
					check(l.Operand, false)
				}
			}
			for _, o := range d.Outputs {
				if c, ok := o.(*Coil); ok {
					check(c.Descriptor, true)
				}
			}
		}
	}
}

func (p *Project) checkBlock(u *POU, path string, e Element, rep *faults.Report) {
	var preset int64
	switch v := e.(type) {
	case *Timer:
		preset = v.Preset
	case *Counter:
		preset = v.Preset
	}
	if in := u.Instance(Descriptor(e)); in != nil && preset == 0 {
		preset = in.Preset
	}
	if max := address.PresetRange(p.Target); preset < 0 || preset > max {
		rep.AddError(faults.KindAddressOutOfRange, path+"/"+Descriptor(e), "preset %d is outside 0..%d", preset, max)
	}
}

// blockMembers are the pin and member suffixes accepted after an instance.
var blockMembers = map[string]bool{
	"Q": true, "D": true, "E": true, "F": true, "DN": true, "OV": true, "UN": true,
	"EN": true, "TT": true, "ACC": true, "PRE": true, "ET": true, "CV": true, "PT": true, "PV": true,
}

// resolve classifies descriptor d. It returns an empty kind when d resolves.
func (p *Project) resolve(u *POU, d string, coil bool) (faults.Kind, string) {
	if t := u.LookupTag(d); t != nil {
		if coil && t.Address != "" {
			return p.checkOutput(t.Address, coil)
		}
		return "", ""
	}
	base, member, hasMember := strings.Cut(d, ".")
	if hasMember && blockMembers[strings.ToUpper(member)] {
		if u.Instance(base) != nil || u.LookupTag(base) != nil || p.blockOnGrid(u, base) {
			return "", ""
		}
	}
	if u.Instance(d) != nil {
		return "", ""
	}
	op, err := p.Mapper().Parse(p.Target, d)
	if err != nil {
		return faults.KindOf(err), err.Error()
	}
	if !op.IsAddress() {
		if t := u.LookupTag(op.Symbol); t != nil {
			return "", ""
		}
		return faults.KindUnresolvedSymbol, fmt.Sprintf("%s is not a declared tag or instance", d)
	}
	return p.checkOutput(d, coil)
}

// checkOutput resolves a physical address surface.
func (p *Project) checkOutput(surface string, coil bool) (faults.Kind, string) {
	op, err := p.Mapper().Parse(p.Target, surface)
	if err != nil || !op.IsAddress() {
		// tag addresses in other notations are checked when the tag is declared
		return "", ""
	}
	a := op.Addr
	switch {
	case a.Area.IsSystem():
		return "", ""
	case a.Area == address.AreaQ:
		if !p.enforceOutputs() || p.Hardware.Lookup(a) != nil {
			return "", ""
		}
		if coil {
			return faults.KindUnmappedCoil, fmt.Sprintf("%s has no digital-output channel", a)
		}
		return faults.KindUnresolvedSymbol, fmt.Sprintf("%s has no digital-output channel", a)
	case a.Area.IsBlock():
		if within(a.Major, p.blockAllocation(a.Area)) {
			return "", ""
		}
		return faults.KindAddressOutOfRange, fmt.Sprintf("%s exceeds the %s allocation", a, a.Area)
	}
	if !p.fits(a) {
		if a.Area.IsIO() {
			return faults.KindUnresolvedSymbol, fmt.Sprintf("%s has no configured channel", a)
		}
		return faults.KindAddressOutOfRange, fmt.Sprintf("%s exceeds the memory allocation", a)
	}
	return "", ""
}

func (p *Project) blockAllocation(a address.Area) Allocation {
	if a == address.AreaC {
		return p.Memory.Counters
	}
	return p.Memory.Timers
}

// enforceOutputs reports whether coils on %Q need a configured channel: always
// on Schneider targets, elsewhere once any digital-output module is planned.
func (p *Project) enforceOutputs() bool {
	return p.Target.IsSchneider() || p.Hardware.Configures(address.AreaQ)
}

func (p *Project) blockOnGrid(u *POU, d string) bool {
	for _, r := range u.Rungs {
		for _, e := range r.Elements {
			if IsBlock(e) && Descriptor(e) == d {
				return true
			}
		}
	}
	return false
}
