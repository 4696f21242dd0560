package models

import (
	"fmt"
	"strings"
)

// Stats counts the contents of a project.
type Stats struct {
	POUs      int `json:"pous"`
	Rungs     int `json:"rungs"`
	Elements  int `json:"elements"`
	Tags      int `json:"tags"`
	Instances int `json:"instances"`
	Modules   int `json:"modules"`
}

// Stats counts p's POUs, rungs, elements, tags, instances and modules.
func (p *Project) Stats() Stats {
	s := Stats{POUs: len(p.POUs), Tags: len(p.Tags), Modules: len(p.Hardware.Modules)}
	for _, u := range p.POUs {
		s.Rungs += len(u.Rungs)
		s.Elements += u.ElementCount()
		s.Tags += len(u.Tags)
		s.Instances += len(u.Instances)
	}
	return s
}

// Summary renders a short human-readable description of p.
func (p *Project) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project %s (%s", p.Name, p.Target)
	if p.Catalog != "" {
		fmt.Fprintf(&b, ", %s", p.Catalog)
	}
	b.WriteString(")\n")
	if p.SourceDialect != "" {
		fmt.Fprintf(&b, "  translated from %s\n", p.SourceDialect)
	}
	s := p.Stats()
	fmt.Fprintf(&b, "  %d POU(s), %d rung(s), %d element(s), %d tag(s), %d instance(s)\n",
		s.POUs, s.Rungs, s.Elements, s.Tags, s.Instances)
	for _, u := range p.POUs {
		fmt.Fprintf(&b, "  - %s [%s, %s]: %d rung(s), %d tag(s)\n", u.Name, u.Kind, u.Language, len(u.Rungs), len(u.Tags))
	}
	if len(p.Hardware.Modules) > 0 {
		var io []string
		for _, t := range moduleTypes {
			if n := p.Hardware.ChannelCount(t); n > 0 {
				io = append(io, fmt.Sprintf("%d %s", n, t))
			}
		}
		fmt.Fprintf(&b, "  hardware: %s\n", strings.Join(io, ", "))
	}
	for _, n := range p.Notes {
		fmt.Fprintf(&b, "  note: %s\n", n)
	}
	return b.String()
}
