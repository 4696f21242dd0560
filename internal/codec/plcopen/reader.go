package plcopen

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Decode parses a TC6 document. LD bodies are reduced to boolean networks
// and rendered into both rung views; the plcforge addData block, when
// present, restores what TC6 cannot express.
func (*Codec) Decode(data []byte, opts codec.Options) (*models.Project, error) {
	if err := opts.Limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	var doc projectXML
	if err := codec.DecodeXML(data, &doc); err != nil {
		return nil, err
	}
	if doc.XMLName.Local != "project" {
		return nil, faults.SchemaViolation(doc.XMLName.Local, "root element is not <project>")
	}
	if doc.XMLName.Space != Namespace && doc.XMLName.Space != NamespaceV200 {
		return nil, faults.SchemaViolation("project", fmt.Sprintf("unknown namespace %q", doc.XMLName.Space))
	}
	ext := findExtension(doc.AddData)

	target := dialect.PLCopenNeutral
	if ext != nil && ext.Target != "" {
		d, err := dialect.Parse(ext.Target)
		if err != nil {
			return nil, faults.SchemaViolation("addData/target", err.Error())
		}
		target = d
	}
	p := models.NewProject(doc.ContentHeader.Name, target)
	p.Limits = opts.Limits
	p.Author = doc.ContentHeader.Author
	p.Created = time.Time{}
	if ts := doc.FileHeader.CreationDateTime; ts != "" {
		t, err := parseDateTime(ts)
		if err != nil {
			return nil, faults.SchemaViolation("fileHeader/creationDateTime", err.Error())
		}
		p.Created = t.UTC()
	}
	r := &reader{p: p, ext: ext}
	if err := r.restoreController(); err != nil {
		return nil, err
	}
	for _, cfg := range doc.Instances.Configurations {
		for _, res := range cfg.Resources {
			for _, v := range res.GlobalVars {
				if err := r.tag(nil, v); err != nil {
					return nil, err
				}
			}
		}
	}
	for i := range doc.Types.POUs {
		if err := r.declarePOU(&doc.Types.POUs[i]); err != nil {
			return nil, err
		}
	}
	if err := r.restoreInstances(); err != nil {
		return nil, err
	}
	for i := range doc.Types.POUs {
		if err := r.body(&doc.Types.POUs[i]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// parseDateTime reads an xsd:dateTime; a value without a zone is taken as UTC.
func parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999999", s)
}

func findExtension(ad *addDataXML) *extXML {
	if ad == nil {
		return nil
	}
	for _, d := range ad.Data {
		if d.Name == dataName && d.Project != nil {
			return d.Project
		}
	}
	return nil
}

type reader struct {
	p   *models.Project
	ext *extXML
}

func (r *reader) extPOU(name string) *pouExtXML {
	if r.ext == nil {
		return nil
	}
	for i := range r.ext.POUs {
		if r.ext.POUs[i].Name == name {
			return &r.ext.POUs[i]
		}
	}
	return nil
}

// restoreController applies the hardware, memory and identity carried in
// addData. Tags are checked against the hardware plan, so this runs first.
func (r *reader) restoreController() error {
	x, p := r.ext, r.p
	if x == nil {
		return nil
	}
	p.Firmware = dialect.ParseFirmware(x.Firmware)
	p.Catalog = x.Catalog
	p.HardwareID = x.HardwareID
	if x.Source != "" {
		d, err := dialect.Parse(x.Source)
		if err != nil {
			return faults.SchemaViolation("addData/sourceDialect", err.Error())
		}
		p.SourceDialect = d
	}
	if x.Identity != nil {
		p.Identity = models.ControllerIdentity{
			DeviceType: x.Identity.DeviceType, DeviceID: x.Identity.DeviceID, DeviceVersion: x.Identity.DeviceVersion,
		}
	}
	for i, mx := range x.Modules {
		t, err := models.ParseModuleType(mx.Type)
		if err != nil {
			return faults.SchemaViolation(fmt.Sprintf("addData/hardware/module[%d]", i), err.Error())
		}
		m := &models.Module{Index: mx.Index, Type: t, Catalog: mx.Catalog, HardwareID: mx.HardwareID}
		for _, c := range mx.Channels {
			m.Channels = append(m.Channels, models.Channel{
				Index: c.Index, Symbol: c.Symbol, Comment: c.Comment, Filter: c.Filter, Latch: c.Latch,
				AnalogType: c.AnalogType, Scope: c.Scope, Min: c.Min, Max: c.Max,
			})
		}
		p.Hardware.Add(m)
	}
	if x.Memory != nil {
		a := func(x allocXML) models.Allocation {
			pol := models.AllocationPolicy(x.Policy)
			if pol == "" {
				pol = models.AllocAuto
			}
			return models.Allocation{Capacity: x.Capacity, Forced: x.Forced, Policy: pol}
		}
		p.Memory = models.Memory{
			Bits:        a(x.Memory.Bits),
			Words:       a(x.Memory.Words),
			DoubleWords: a(x.Memory.DoubleWords),
			Timers:      a(x.Memory.Timers),
			Counters:    a(x.Memory.Counters),
		}
	}
	for _, vl := range x.VarLists {
		p.VarLists = append(p.VarLists, &models.VarList{Name: vl.Name, GUID: vl.GUID, Body: vl.Body})
	}
	p.Notes = append(p.Notes, x.Notes...)
	for _, w := range x.Warnings {
		p.Warnings.AddWarning(faults.Kind(w.Kind), w.Path, "%s", w.Message)
	}
	return nil
}

// typeName reads the single element inside <type>.
func typeName(t typeXML) (string, error) {
	inner := strings.TrimSpace(t.Inner)
	if inner == "" {
		return "", nil
	}
	var el struct {
		XMLName xml.Name
		Name    string `xml:"name,attr"`
	}
	if err := xml.Unmarshal([]byte(inner), &el); err != nil {
		return "", err
	}
	if el.XMLName.Local == "derived" {
		return el.Name, nil
	}
	return el.XMLName.Local, nil
}

// tag declares v on u, or on the controller when u is nil.
func (r *reader) tag(u *models.POU, v variableXML) error {
	dt, err := typeName(v.Type)
	if err != nil {
		return faults.SchemaViolation("variable "+v.Name+"/type", err.Error())
	}
	var comment string
	if v.Documentation != nil {
		comment = v.Documentation.Text
	}
	var t *models.Tag
	if u == nil {
		t, err = r.p.AddTag(v.Name, v.Address, dt, comment)
	} else {
		t, err = u.AddTag(v.Name, v.Address, dt, "", comment)
	}
	if err != nil {
		return err
	}
	if v.InitialValue != nil {
		t.Initial = v.InitialValue.Value
	}
	return nil
}

func (r *reader) declarePOU(px *pouXML) error {
	kind, err := models.ParsePOUKind(px.POUType)
	if err != nil {
		return faults.SchemaViolation("pou "+px.Name+"/pouType", err.Error())
	}
	var lang models.Language
	switch {
	case px.Body.LD != nil:
		lang = models.LangLD
	case px.Body.IL != nil:
		lang = models.LangIL
	case px.Body.ST != nil:
		lang = models.LangST
	default:
		lang = models.LangLD
		if x := r.extPOU(px.Name); x != nil && x.Language != "" {
			if lang, err = models.ParseLanguage(x.Language); err != nil {
				return faults.SchemaViolation("pou "+px.Name, err.Error())
			}
		}
	}
	u, err := r.p.AddPOU(px.Name, kind, lang)
	if err != nil {
		return err
	}
	if x := r.extPOU(px.Name); x != nil {
		u.GUID = x.GUID
	}
	if px.Interface != nil {
		for _, v := range px.Interface.LocalVars {
			if err := r.tag(u, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reader) restoreInstances() error {
	if r.ext == nil {
		return nil
	}
	for _, ux := range r.ext.POUs {
		u := r.p.POU(ux.Name)
		if u == nil {
			return faults.SchemaViolation("addData/pou", "instances refer to unknown POU "+ux.Name)
		}
		for _, ix := range ux.Instances {
			in := models.Instance{
				Kind:       models.InstanceKind(ix.Kind),
				Descriptor: ix.Descriptor,
				Symbol:     ix.Symbol,
				Comment:    ix.Comment,
				Type:       ix.Type,
				Preset:     ix.Preset,
				Allocation: models.AllocationPolicy(ix.Allocation),
			}
			if ix.Base != "" {
				b, err := address.ParseTimeBase(ix.Base)
				if err != nil {
					return faults.SchemaViolation("addData/pou "+ux.Name+"/"+ix.Descriptor, err.Error())
				}
				in.Base = b
			}
			if _, err := u.AddInstance(in); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *reader) body(px *pouXML) error {
	u := r.p.POU(px.Name)
	switch {
	case px.Body.ST != nil:
		u.Body = px.Body.ST.Text
		return nil
	case px.Body.IL != nil:
		if err := codec.ApplyRungListing(u, px.Body.IL.Text); err != nil {
			return err
		}
	case px.Body.LD != nil:
		if err := newLDReader(r.p, u).read(px.Body.LD); err != nil {
			return err
		}
	}
	r.applyFlags(u)
	return nil
}

// applyFlags restores the per-rung flags TC6 has no attribute for.
func (r *reader) applyFlags(u *models.POU) {
	x := r.extPOU(u.Name)
	if x == nil {
		return
	}
	for _, f := range x.Rungs {
		if f.Index < 0 || f.Index >= len(u.Rungs) {
			continue
		}
		rg := u.Rungs[f.Index]
		rg.LadderSelected = f.LadderSelected
		if rg.Label == "" {
			rg.Label = f.Label
		}
	}
}
