package models

import (
	"fmt"
	"sort"
	"strings"
)

// Clone returns a deep copy of p. The copy is not finalized and shares only
// the address mapper cache.
func (p *Project) Clone() *Project {
	c := *p
	c.finalized = false
	c.Hardware = Hardware{}
	for _, m := range p.Hardware.Modules {
		mc := *m
		mc.Channels = append([]Channel(nil), m.Channels...)
		c.Hardware.Modules = append(c.Hardware.Modules, &mc)
	}
	c.Tags = cloneTags(p.Tags)
	c.VarLists = nil
	for _, v := range p.VarLists {
		vc := *v
		c.VarLists = append(c.VarLists, &vc)
	}
	c.Notes = append([]string(nil), p.Notes...)
	c.Warnings.Diagnostics = append(c.Warnings.Diagnostics[:0:0], p.Warnings.Diagnostics...)
	c.POUs = nil
	for _, u := range p.POUs {
		uc := *u
		uc.owner = &c
		uc.Tags = cloneTags(u.Tags)
		uc.Instances = nil
		for _, in := range u.Instances {
			ic := *in
			uc.Instances = append(uc.Instances, &ic)
		}
		uc.Rungs = nil
		for _, r := range u.Rungs {
			rc := *r
			rc.owner = &uc
			rc.Elements = make([]Element, len(r.Elements))
			for i, e := range r.Elements {
				rc.Elements[i] = CloneElement(e)
			}
			rc.IL = append([]Instruction(nil), r.IL...)
			uc.Rungs = append(uc.Rungs, &rc)
		}
		c.POUs = append(c.POUs, &uc)
	}
	return &c
}

func cloneTags(tags []*Tag) []*Tag {
	var out []*Tag
	for _, t := range tags {
		tc := *t
		out = append(out, &tc)
	}
	return out
}

// LadderEquivalent reports whether a and b carry the same program, ignoring
// cosmetic attributes such as timestamps and author.
func LadderEquivalent(a, b *Project) bool {
	return len(LadderDiff(a, b)) == 0
}

// LadderDiff lists the differences that make a and b not ladder-equivalent.
func LadderDiff(a, b *Project) []string {
	var diffs []string
	add := func(format string, args ...any) { diffs = append(diffs, fmt.Sprintf(format, args...)) }

	if ta, tb := tagSet(a.Tags), tagSet(b.Tags); ta != tb {
		add("controller tags differ: %s vs %s", ta, tb)
	}
	if len(a.POUs) != len(b.POUs) {
		add("POU count %d vs %d", len(a.POUs), len(b.POUs))
		return diffs
	}
	for i, ua := range a.POUs {
		ub := b.POUs[i]
		if ua.Name != ub.Name || ua.Kind != ub.Kind || ua.Language != ub.Language {
			add("POU %d: %s/%s/%s vs %s/%s/%s", i, ua.Name, ua.Kind, ua.Language, ub.Name, ub.Kind, ub.Language)
			continue
		}
		if ta, tb := tagSet(ua.Tags), tagSet(ub.Tags); ta != tb {
			add("%s: tags differ: %s vs %s", ua.Name, ta, tb)
		}
		if ua.Language == LangST {
			if strings.TrimSpace(ua.Body) != strings.TrimSpace(ub.Body) {
				add("%s: structured text differs", ua.Name)
			}
			continue
		}
		if len(ua.Rungs) != len(ub.Rungs) {
			add("%s: rung count %d vs %d", ua.Name, len(ua.Rungs), len(ub.Rungs))
			continue
		}
		for k, ra := range ua.Rungs {
			rb := ub.Rungs[k]
			if x, y := rungForm(ra.ILNetworks), rungForm(rb.ILNetworks); x != y {
				add("%s/rung %d: IL differs: %s vs %s", ua.Name, k, x, y)
			}
			if x, y := rungForm(ra.Networks), rungForm(rb.Networks); x != y {
				add("%s/rung %d: grid differs: %s vs %s", ua.Name, k, x, y)
			}
		}
	}
	return diffs
}

func rungForm(derive func() ([]Network, error)) string {
	nets, err := derive()
	if err != nil {
		return "error: " + err.Error()
	}
	return strings.Join(CanonicalNetworks(nets), " ; ")
}

func tagSet(tags []*Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Name + "@" + t.Address + ":" + strings.ToUpper(t.DataType)
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
