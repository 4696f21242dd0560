// Package codesys reads and writes CODESYS .project archives: a flat ZIP of
// <guid>.object and <guid>.meta entries, each wrapped in a short binary
// header, with POU and GVL objects stored as UTF-16 XML.
package codesys

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// ControllerGVL is the list holding controller-scope tags.
const ControllerGVL = "GVL"

// Codec implements codec.Codec for .project archives.
type Codec struct{}

// New returns the CODESYS codec.
func New() *Codec { return &Codec{} }

func (*Codec) Name() string      { return "codesys" }
func (*Codec) Extension() string { return ".project" }

func (*Codec) Dialects() []dialect.Dialect {
	return []dialect.Dialect{dialect.CodesysGeneric, dialect.SchneiderM241}
}

// Sniff accepts a ZIP archive holding at least one .object entry.
func (*Codec) Sniff(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if _, suffix, ok := splitEntry(f.Name); ok && suffix == objectSuffix {
			return true
		}
	}
	return false
}

// objectGUID parses a stored identity, deriving a stable one when none is
// stored.
func objectGUID(stored, kind, name string) (uuid.UUID, error) {
	if stored == "" {
		return derivedGUID(kind, name), nil
	}
	g, err := uuid.Parse(stored)
	if err != nil {
		return uuid.Nil, faults.SchemaViolation(name, fmt.Sprintf("bad GUID %q", stored))
	}
	return g, nil
}

// Encode writes the project tree, the application, one object per POU, a
// GVL for the controller tags and one GVL per variable list. The project is
// not modified; POUs without a GUID get one derived from their name.
func (*Codec) Encode(p *models.Project, opts codec.Options) ([]byte, error) {
	a, err := NewArchive(p.Name)
	if err != nil {
		return nil, err
	}
	a.Tree.Target = string(p.Target)
	a.Tree.Catalog = p.Catalog
	a.Tree.Created = opts.Stamp(p).UTC().Format(time.RFC3339)
	if err := addProject(a, p, ApplicationGUID, objectGUID); err != nil {
		return nil, err
	}
	return a.Bytes()
}

// addProject adds the POUs, controller tags and variable lists of p under
// parent. ident picks each object's GUID.
func addProject(a *Archive, p *models.Project, parent uuid.UUID, ident func(stored, kind, name string) (uuid.UUID, error)) error {
	for _, u := range p.POUs {
		g, err := ident(u.GUID, KindPOU, u.Name)
		if err != nil {
			return err
		}
		payload, err := pouPayload(u)
		if err != nil {
			return err
		}
		o := &Object{GUID: g, Kind: KindPOU, Name: u.Name, Meta: pouMeta(u.Kind, parent), Payload: payload}
		if err := a.put(o, parent); err != nil {
			return err
		}
	}
	gvl := func(stored, name, declaration string) error {
		g, err := ident(stored, KindGVL, name)
		if err != nil {
			return err
		}
		payload, err := gvlPayload(name, declaration)
		if err != nil {
			return err
		}
		return a.put(&Object{GUID: g, Kind: KindGVL, Name: name, Meta: Meta{Marker: MarkerGVL, Parent: parent}, Payload: payload}, parent)
	}
	if len(p.Tags) > 0 {
		if err := gvl("", ControllerGVL, globalDeclaration(p.Tags)); err != nil {
			return err
		}
	}
	for _, vl := range p.VarLists {
		if err := gvl(vl.GUID, vl.Name, vl.Body); err != nil {
			return err
		}
	}
	return nil
}

// AssignGUIDs gives every POU and variable list without an identity a fresh
// version-4 GUID. Stored GUIDs make later emissions byte-identical.
func AssignGUIDs(p *models.Project) error {
	next := func(g *string) error {
		if *g != "" {
			return nil
		}
		id, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		*g = id.String()
		return nil
	}
	for _, u := range p.POUs {
		if err := next(&u.GUID); err != nil {
			return err
		}
	}
	for _, vl := range p.VarLists {
		if err := next(&vl.GUID); err != nil {
			return err
		}
	}
	return nil
}

// Decode rebuilds a project from the tree: GVL objects first so POU
// declarations can refer to controller tags, then POUs in tree order.
// Objects of other kinds are skipped.
func (*Codec) Decode(data []byte, opts codec.Options) (*models.Project, error) {
	a, err := ReadArchive(data, opts.Limits)
	if err != nil {
		return nil, err
	}
	target := dialect.CodesysGeneric
	if a.Tree.Target != "" {
		if target, err = dialect.Parse(a.Tree.Target); err != nil {
			return nil, faults.SchemaViolation("ProjectTree/@Target", err.Error())
		}
	}
	p := models.NewProject(a.Tree.Name, target)
	p.Limits = opts.Limits
	p.Created = time.Time{}
	if a.Tree.Created != "" {
		ts, err := time.Parse(time.RFC3339, a.Tree.Created)
		if err != nil {
			return nil, faults.SchemaViolation("ProjectTree/@Created", err.Error())
		}
		p.Created = ts.UTC()
	}
	if a.Tree.Catalog != "" {
		if err := p.UseCatalog(a.Tree.Catalog); err != nil {
			return nil, err
		}
	}
	var pous, gvls []*Object
	_ = a.Tree.Walk(func(n, _ *Node) error {
		o := a.Objects[uuid.MustParse(n.GUID)]
		switch o.Kind {
		case KindPOU:
			pous = append(pous, o)
		case KindGVL:
			gvls = append(gvls, o)
		}
		return nil
	})
	for _, o := range gvls {
		if err := decodeGVL(p, o); err != nil {
			return nil, err
		}
	}
	for _, o := range pous {
		if err := decodePOU(p, o); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func decodeGVL(p *models.Project, o *Object) error {
	var x gvlXML
	if err := unmarshalText(o.Text, &x); err != nil {
		return err
	}
	if x.Name != ControllerGVL {
		p.VarLists = append(p.VarLists, &models.VarList{Name: x.Name, Body: x.Declaration.Text, GUID: o.GUID.String()})
		return nil
	}
	vars, _, err := parseDeclaration("GVL "+x.Name, x.Declaration.Text)
	if err != nil {
		return err
	}
	for _, v := range vars {
		t, err := p.AddTag(v.Name, v.Address, v.DataType, v.Comment)
		if err != nil {
			return err
		}
		t.Initial = v.Initial
	}
	return nil
}

func decodePOU(p *models.Project, o *Object) error {
	var x pouXML
	if err := unmarshalText(o.Text, &x); err != nil {
		return err
	}
	path := "POU " + x.Name
	kind, err := models.ParsePOUKind(x.POUType)
	if err != nil {
		return faults.SchemaViolation(path+"/@POUType", err.Error())
	}
	lang, err := models.ParseLanguage(x.Language)
	if err != nil {
		return faults.SchemaViolation(path+"/@Language", err.Error())
	}
	u, err := p.AddPOU(x.Name, kind, lang)
	if err != nil {
		return err
	}
	u.GUID = o.GUID.String()
	vars, instances, err := parseDeclaration(path, x.Declaration.Text)
	if err != nil {
		return err
	}
	for _, v := range vars {
		t, err := u.AddTag(v.Name, v.Address, v.DataType, "", v.Comment)
		if err != nil {
			return err
		}
		t.Initial = v.Initial
	}
	for _, in := range instances {
		if _, err := u.AddInstance(in); err != nil {
			return err
		}
	}
	if lang == models.LangST {
		u.Body = x.Implementation.Text
		return nil
	}
	return codec.ApplyRungListing(u, x.Implementation.Text)
}
