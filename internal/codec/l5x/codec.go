// Package l5x reads and writes Rockwell Studio 5000 / RSLogix 5000 exports
// (.L5X). Ladder routines carry neutral rung text; structured text routines
// carry their source line by line.
package l5x

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

const (
	header           = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	rootElement      = "RSLogix5000Content"
	schemaRevision   = "1.0"
	softwareRevision = "32.00"
	exportDate       = "Mon Jan 02 15:04:05 2006"
	exportOptions    = "NoRawData L5KData DecoratedData ForceProtectedEncoding AllProjDocTrans"
	processorType    = "1756-L83E"
	mainTask         = "MainTask"

	// languageNote prefixes the routine description of ladder routines that
	// were instruction lists before export.
	languageNote = "Source language: "
)

// Tag data types that declare block instances rather than plain tags.
const (
	typeTimer   = "TIMER"
	typeCounter = "COUNTER"
	typePID     = "PID"
)

// Codec implements codec.Codec for .L5X documents.
type Codec struct{}

// New returns the L5X codec.
func New() *Codec { return &Codec{} }

func (*Codec) Name() string                { return "l5x" }
func (*Codec) Extension() string           { return ".L5X" }
func (*Codec) Dialects() []dialect.Dialect { return []dialect.Dialect{dialect.RockwellLogix} }

// Sniff accepts any XML document rooted at <RSLogix5000Content>.
func (*Codec) Sniff(data []byte) bool {
	name, err := codec.RootElement(data)
	return err == nil && name.Local == rootElement
}

// Encode renders p. Operands must already be Rockwell tags or Local: I/O
// paths; Schneider projects go through translation first. Function and
// function block POUs, TP timers, CTUD counters, negated coils and block
// calls have no rung text form and fail with UnsupportedFeature.
func (*Codec) Encode(p *models.Project, opts codec.Options) ([]byte, error) {
	ctrl := controllerXML{
		Use:           "Target",
		Name:          p.Name,
		ProcessorType: p.Catalog,
		MajorRev:      "32",
		MinorRev:      "11",
	}
	if ctrl.ProcessorType == "" {
		ctrl.ProcessorType = processorType
	}
	taken := map[string]bool{}
	for _, t := range p.Tags {
		tx, err := tag(t)
		if err != nil {
			return nil, err
		}
		taken[t.Name] = true
		ctrl.Tags = append(ctrl.Tags, tx)
	}
	task := taskXML{
		Name: mainTask, Type: "CONTINUOUS", Priority: 10, Watchdog: 500,
		DisableUpdateOutputs: "false", InhibitTask: "false",
	}
	for _, u := range p.POUs {
		px, err := program(u, taken)
		if err != nil {
			return nil, err
		}
		ctrl.Programs = append(ctrl.Programs, px)
		task.Programs = append(task.Programs, scheduledXML{Name: u.Name})
	}
	if len(task.Programs) > 0 {
		ctrl.Tasks = []taskXML{task}
	}
	doc := &contentXML{
		SchemaRevision:   schemaRevision,
		SoftwareRevision: softwareRevision,
		TargetName:       p.Name,
		TargetType:       "Controller",
		ContainsContext:  "false",
		Owner:            p.Author,
		ExportDate:       opts.Stamp(p).UTC().Format(exportDate),
		ExportOptions:    exportOptions,
		Controller:       ctrl,
	}
	if doc.Owner == "" {
		doc.Owner = opts.Document.Author
	}
	return codec.EncodeXML(header, doc)
}

func description(text string) *cdataXML {
	if text == "" {
		return nil
	}
	return &cdataXML{Text: text}
}

func radix(dataType string) string {
	switch strings.ToUpper(dataType) {
	case address.TypeBOOL, "SINT", address.TypeINT, address.TypeDINT, "LINT":
		return "Decimal"
	case address.TypeREAL:
		return "Float"
	}
	return ""
}

// tag renders a tag. Tags bound to an address become aliases of it.
func tag(t *models.Tag) (tagXML, error) {
	tx := tagXML{Name: t.Name, ExternalAccess: "Read/Write", Description: description(t.Comment)}
	if t.Address != "" {
		if _, err := address.ParseOperand(dialect.RockwellLogix, t.Address); err != nil {
			return tagXML{}, err
		}
		tx.TagType, tx.AliasFor, tx.Radix = "Alias", t.Address, "Decimal"
		return tx, nil
	}
	tx.TagType, tx.DataType, tx.Radix = "Base", t.DataType, radix(t.DataType)
	if t.Initial != "" {
		tx.Data = []dataXML{{Format: "L5K", Text: t.Initial}}
	}
	return tx, nil
}

// instanceTag renders a block instance as a program tag with its preset in
// the L5K [CTL,PRE,ACC] form.
func instanceTag(in *models.Instance) tagXML {
	name := in.Descriptor
	if in.Symbol != "" {
		name = in.Symbol
	}
	tx := tagXML{Name: name, TagType: "Base", ExternalAccess: "Read/Write", Description: description(in.Comment)}
	switch in.Kind {
	case models.InstanceTimer:
		base := in.Base
		if !base.Valid() {
			base = address.Base1ms
		}
		tx.DataType = typeTimer
		tx.Data = []dataXML{{Format: "L5K", Text: fmt.Sprintf("[0,%d,0]", address.Preset{Value: in.Preset, Base: base}.Millis())}}
	case models.InstanceCounter:
		tx.DataType = typeCounter
		tx.Data = []dataXML{{Format: "L5K", Text: fmt.Sprintf("[0,%d,0]", in.Preset)}}
	default:
		tx.DataType = typePID
	}
	return tx
}

func program(u *models.POU, controller map[string]bool) (programXML, error) {
	if u.Kind != models.POUProgram {
		return programXML{}, faults.Unsupported(fmt.Sprintf("%s POU %s on %s", u.Kind, u.Name, dialect.RockwellLogix))
	}
	px := programXML{Name: u.Name, Type: "Normal", MainRoutineName: u.Name, Disabled: "false"}
	for _, t := range u.Tags {
		tx, err := tag(t)
		if err != nil {
			return programXML{}, err
		}
		px.Tags = append(px.Tags, tx)
	}
	for _, in := range u.Instances {
		tx := instanceTag(in)
		if controller[tx.Name] {
			continue
		}
		px.Tags = append(px.Tags, tx)
	}
	rt := routineXML{Name: u.Name}
	if u.Language == models.LangST {
		rt.Type = "ST"
		for i, line := range strings.Split(u.Body, "\n") {
			rt.Lines = append(rt.Lines, lineXML{Number: i, Text: line})
		}
		px.Routines = []routineXML{rt}
		return px, nil
	}
	rt.Type = "RLL"
	if u.Language == models.LangIL {
		rt.Description = description(languageNote + string(u.Language))
	}
	w := textWriter{u: u}
	for i, r := range u.Rungs {
		text, err := w.rung(r)
		if err != nil {
			if fe, ok := err.(*faults.Error); ok && fe.Path == "" {
				fe.Path = fmt.Sprintf("%s/rung[%d]", u.Name, i)
			}
			return programXML{}, err
		}
		rx := rungXML{Number: i, Type: "N", Text: cdataXML{Text: text}}
		comment := r.Name
		if r.Comment != "" {
			comment += "\n" + r.Comment
		}
		rx.Comment = description(comment)
		rt.Rungs = append(rt.Rungs, rx)
	}
	px.Routines = []routineXML{rt}
	return px, nil
}

// Decode parses an L5X export into a Rockwell project. Each program becomes
// a POU built from its main routine.
func (*Codec) Decode(data []byte, opts codec.Options) (*models.Project, error) {
	if err := opts.Limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	var doc contentXML
	if err := codec.DecodeXML(data, &doc); err != nil {
		return nil, err
	}
	if doc.XMLName.Local != rootElement {
		return nil, faults.SchemaViolation(doc.XMLName.Local, "root element is not <"+rootElement+">")
	}
	if doc.TargetType != "" && doc.TargetType != "Controller" {
		return nil, faults.Unsupported("L5X export of a " + doc.TargetType)
	}
	ctrl := doc.Controller
	name := doc.TargetName
	if name == "" {
		name = ctrl.Name
	}
	p := models.NewProject(name, dialect.RockwellLogix)
	p.Limits = opts.Limits
	p.Author = doc.Owner
	p.Catalog = ctrl.ProcessorType
	p.Created = time.Time{}
	if doc.ExportDate != "" {
		t, err := time.Parse(exportDate, doc.ExportDate)
		if err != nil {
			return nil, faults.SchemaViolation(rootElement+"/ExportDate", err.Error())
		}
		p.Created = t.UTC()
	}
	for _, tx := range ctrl.Tags {
		if err := readTag(p, nil, tx); err != nil {
			return nil, err
		}
	}
	for _, px := range ctrl.Programs {
		if err := readProgram(p, px); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// l5kTriple matches the [CTL,PRE,ACC] data of TIMER and COUNTER tags.
var l5kTriple = regexp.MustCompile(`^\[\s*-?\d+\s*,\s*(-?\d+)\s*,\s*-?\d+\s*\]$`)

func l5k(tx tagXML) string {
	for _, d := range tx.Data {
		if d.Format == "L5K" {
			return strings.TrimSpace(d.Text)
		}
	}
	return ""
}

func comment(tx tagXML) string {
	if tx.Description == nil {
		return ""
	}
	return strings.TrimSpace(tx.Description.Text)
}

// readTag declares tx on u, or on the controller when u is nil. Program
// tags of block types declare instances.
func readTag(p *models.Project, u *models.POU, tx tagXML) error {
	path := "tag " + tx.Name
	dt := strings.ToUpper(tx.DataType)
	if u != nil && tx.TagType != "Alias" && (dt == typeTimer || dt == typeCounter || dt == typePID) {
		in := models.Instance{Kind: models.InstancePID, Descriptor: tx.Name, Comment: comment(tx), Type: typePID}
		if dt != typePID {
			var pre int64
			if m := l5kTriple.FindStringSubmatch(l5k(tx)); m != nil {
				pre, _ = strconv.ParseInt(m[1], 10, 64)
			}
			in.Type = ""
			if dt == typeTimer {
				in.Kind = models.InstanceTimer
				pr, _ := address.FromMillis(pre, address.PresetRange(dialect.RockwellLogix))
				in.Preset, in.Base = pr.Value, pr.Base
			} else {
				in.Kind = models.InstanceCounter
				in.Preset = pre
			}
		}
		_, err := u.AddInstance(in)
		return err
	}
	var addr string
	switch tx.TagType {
	case "Alias":
		if tx.AliasFor == "" {
			return faults.SchemaViolation(path, "alias without AliasFor")
		}
		addr = tx.AliasFor
	case "", "Base":
		if tx.DataType == "" {
			return faults.SchemaViolation(path, "base tag without DataType")
		}
	default:
		return faults.Unsupported(fmt.Sprintf("%s: %s tag", path, tx.TagType))
	}
	var (
		t   *models.Tag
		err error
	)
	if u == nil {
		t, err = p.AddTag(tx.Name, addr, tx.DataType, comment(tx))
	} else {
		t, err = u.AddTag(tx.Name, addr, tx.DataType, "", comment(tx))
	}
	if err != nil {
		return err
	}
	if v := l5k(tx); v != "" && !strings.HasPrefix(v, "[") {
		t.Initial = v
	}
	return nil
}

// routineLanguage recovers the language recorded by Encode on a ladder
// routine. Routines from other tools are ladder.
func routineLanguage(rt *routineXML) models.Language {
	if rt.Description == nil {
		return models.LangLD
	}
	text, ok := strings.CutPrefix(strings.TrimSpace(rt.Description.Text), languageNote)
	if !ok {
		return models.LangLD
	}
	if lang, err := models.ParseLanguage(strings.TrimSpace(text)); err == nil && lang == models.LangIL {
		return lang
	}
	return models.LangLD
}

func readProgram(p *models.Project, px programXML) error {
	var main *routineXML
	for i := range px.Routines {
		rt := &px.Routines[i]
		if main == nil && (px.MainRoutineName == "" || rt.Name == px.MainRoutineName) {
			main = rt
			continue
		}
		p.Warnings.AddWarning(faults.KindUnsupportedFeature, "program "+px.Name, "routine %s is not the main routine and was skipped", rt.Name)
	}
	lang := models.LangLD
	if main != nil {
		switch main.Type {
		case "RLL":
			lang = routineLanguage(main)
		case "ST":
			lang = models.LangST
		default:
			return faults.Unsupported(fmt.Sprintf("program %s: %s routine %s", px.Name, main.Type, main.Name))
		}
	}
	u, err := p.AddPOU(px.Name, models.POUProgram, lang)
	if err != nil {
		return err
	}
	for _, tx := range px.Tags {
		if err := readTag(p, u, tx); err != nil {
			return err
		}
	}
	if main == nil {
		return nil
	}
	if lang == models.LangST {
		lines := make([]string, len(main.Lines))
		for i, l := range main.Lines {
			lines[i] = l.Text
		}
		u.Body = strings.Join(lines, "\n")
		return nil
	}
	for i, rx := range main.Rungs {
		var c string
		if rx.Comment != nil {
			c = rx.Comment.Text
		}
		if err := readRung(p, u, i, c, rx.Text.Text); err != nil {
			return err
		}
	}
	return nil
}
