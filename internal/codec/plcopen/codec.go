// Package plcopen reads and writes PLCopen TC6 XML, the neutral interchange
// format every other codec can be checked against.
package plcopen

import (
	"encoding/xml"
	"strings"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/models"
)

const dataName = "https://github.com/plc-visualizer/plcforge"

// Codec implements codec.Codec for TC6 documents.
type Codec struct{}

// New returns the PLCopen codec.
func New() *Codec { return &Codec{} }

func (*Codec) Name() string      { return "plcopen" }
func (*Codec) Extension() string { return ".xml" }

func (*Codec) Dialects() []dialect.Dialect {
	return []dialect.Dialect{dialect.PLCopenNeutral, dialect.SiemensS7, dialect.MitsubishiFX}
}

// Sniff accepts a <project> root in any plcopen.org namespace.
func (*Codec) Sniff(data []byte) bool {
	name, err := codec.RootElement(data)
	return err == nil && name.Local == "project" && strings.Contains(name.Space, "plcopen.org")
}

var pouTypes = map[models.POUKind]string{
	models.POUProgram:       "program",
	models.POUFunction:      "function",
	models.POUFunctionBlock: "functionBlock",
}

// Encode renders p as a TC6 v2.01 document.
func (*Codec) Encode(p *models.Project, opts codec.Options) ([]byte, error) {
	doc := &projectXML{
		XMLName: xml.Name{Space: Namespace, Local: "project"},
		FileHeader: fileHeaderXML{
			CompanyName:      opts.Document.CompanyName,
			ProductName:      opts.Document.ProductName,
			ProductVersion:   opts.Document.ProductVersion,
			CreationDateTime: opts.Stamp(p).UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
		ContentHeader: contentHeaderXML{
			Name:   p.Name,
			Author: p.Author,
			CoordinateInfo: coordinateInfoXML{
				FBD: scalingXML{X: 1, Y: 1},
				LD:  scalingXML{X: 1, Y: 1},
				SFC: scalingXML{X: 1, Y: 1},
			},
		},
	}
	if doc.ContentHeader.Author == "" {
		doc.ContentHeader.Author = opts.Document.Author
	}
	for _, u := range p.POUs {
		px, err := encodePOU(u)
		if err != nil {
			return nil, err
		}
		doc.Types.POUs = append(doc.Types.POUs, px)
	}
	if len(p.Tags) > 0 {
		res := resourceXML{Name: "Resource"}
		for _, t := range p.Tags {
			res.GlobalVars = append(res.GlobalVars, variable(t))
		}
		doc.Instances.Configurations = []configurationXML{{Name: "Config", Resources: []resourceXML{res}}}
	}
	doc.AddData = &addDataXML{Data: []dataXML{{Name: dataName, HandleUnknown: "preserve", Project: extension(p)}}}
	return codec.EncodeXML(xml.Header, doc)
}

func xhtml(text string) *xhtmlXML {
	return &xhtmlXML{XMLName: xml.Name{Space: nsXHTML, Local: "xhtml"}, Text: text}
}

func xhtmlData(text string) *xhtmlCDATA {
	return &xhtmlCDATA{XMLName: xml.Name{Space: nsXHTML, Local: "xhtml"}, Text: text}
}

func variable(t *models.Tag) variableXML {
	v := variableXML{Name: t.Name, Address: t.Address, Type: dataType(t.DataType)}
	if t.Initial != "" {
		v.InitialValue = &simpleXML{Value: t.Initial}
	}
	if t.Comment != "" {
		v.Documentation = xhtml(t.Comment)
	}
	return v
}

// dataType renders an elementary type as its own element and anything else
// as a derived reference.
func dataType(name string) typeXML {
	if name == "" {
		name = "BOOL"
	}
	if models.ValidIdentifier(name) && strings.ToUpper(name) == name {
		return typeXML{Inner: "<" + name + "/>"}
	}
	var b strings.Builder
	b.WriteString(`<derived name="`)
	_ = xml.EscapeText(&b, []byte(name))
	b.WriteString(`"/>`)
	return typeXML{Inner: b.String()}
}

func encodePOU(u *models.POU) (pouXML, error) {
	px := pouXML{Name: u.Name, POUType: pouTypes[u.Kind]}
	if len(u.Tags) > 0 {
		px.Interface = &interfaceXML{}
		for _, t := range u.Tags {
			px.Interface.LocalVars = append(px.Interface.LocalVars, variable(t))
		}
	}
	switch u.Language {
	case models.LangST:
		px.Body.ST = xhtmlData(u.Body)
	case models.LangIL:
		px.Body.IL = xhtmlData(codec.RungListing(u))
	default:
		ld, err := newLDWriter(u).body()
		if err != nil {
			return pouXML{}, err
		}
		px.Body.LD = ld
	}
	return px, nil
}

func extension(p *models.Project) *extXML {
	x := &extXML{
		Target:     string(p.Target),
		Firmware:   string(p.Firmware),
		Catalog:    p.Catalog,
		HardwareID: p.HardwareID,
		Source:     string(p.SourceDialect),
		Memory:     memory(p.Memory),
		Notes:      append([]string(nil), p.Notes...),
	}
	if id := p.Identity; id != (models.ControllerIdentity{}) {
		x.Identity = &identityXML{DeviceType: id.DeviceType, DeviceID: id.DeviceID, DeviceVersion: id.DeviceVersion}
	}
	for _, m := range p.Hardware.Modules {
		mx := moduleXML{Index: m.Index, Type: string(m.Type), Catalog: m.Catalog, HardwareID: m.HardwareID}
		for _, ch := range m.Channels {
			mx.Channels = append(mx.Channels, channelXML{
				Index: ch.Index, Symbol: ch.Symbol, Comment: ch.Comment, Filter: ch.Filter, Latch: ch.Latch,
				AnalogType: ch.AnalogType, Scope: ch.Scope, Min: ch.Min, Max: ch.Max,
			})
		}
		x.Modules = append(x.Modules, mx)
	}
	for _, u := range p.POUs {
		ux := pouExtXML{Name: u.Name, Language: string(u.Language), GUID: u.GUID}
		for _, in := range u.Instances {
			ix := instanceXML{
				Kind:       string(in.Kind),
				Descriptor: in.Descriptor,
				Symbol:     in.Symbol,
				Comment:    in.Comment,
				Type:       in.Type,
				Preset:     in.Preset,
				Allocation: string(in.Allocation),
			}
			if in.Base.Valid() {
				ix.Base = in.Base.String()
			}
			ux.Instances = append(ux.Instances, ix)
		}
		for _, r := range u.Rungs {
			ux.Rungs = append(ux.Rungs, rungFlagXML{Index: r.Index, Label: r.Label, LadderSelected: r.LadderSelected})
		}
		x.POUs = append(x.POUs, ux)
	}
	for _, vl := range p.VarLists {
		x.VarLists = append(x.VarLists, varListXML{Name: vl.Name, GUID: vl.GUID, Body: vl.Body})
	}
	for _, d := range p.Warnings.Diagnostics {
		x.Warnings = append(x.Warnings, warningXML{Kind: string(d.Kind), Path: d.Path, Message: d.Message})
	}
	return x
}

func memory(m models.Memory) *memoryXML {
	a := func(x models.Allocation) allocXML {
		return allocXML{Capacity: x.Capacity, Forced: x.Forced, Policy: string(x.Policy)}
	}
	return &memoryXML{
		Bits:        a(m.Bits),
		Words:       a(m.Words),
		DoubleWords: a(m.DoubleWords),
		Timers:      a(m.Timers),
		Counters:    a(m.Counters),
	}
}
