package codesys

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

const (
	objectSuffix = ".object"
	metaSuffix   = ".meta"
)

// 1980-01-01 in MS-DOS date format.
const dosEpoch = 1<<5 | 1

// Tree is the payload of the project-tree object.
type Tree struct {
	XMLName xml.Name `xml:"ProjectTree"`
	Name    string   `xml:"Name,attr,omitempty"`
	Target  string   `xml:"Target,attr,omitempty"`
	Catalog string   `xml:"Catalog,attr,omitempty"`
	Created string   `xml:"Created,attr,omitempty"`
	Nodes   []*Node  `xml:"Node"`
}

// Node places one object in the tree. Nodes refer to objects by GUID only.
type Node struct {
	GUID     string  `xml:"Guid,attr"`
	Name     string  `xml:"Name,attr"`
	Kind     string  `xml:"Kind,attr"`
	Children []*Node `xml:"Node"`
}

// Walk visits the nodes depth-first with their parent, nil at the top.
func (t *Tree) Walk(fn func(n, parent *Node) error) error {
	var walk func(nodes []*Node, parent *Node) error
	walk = func(nodes []*Node, parent *Node) error {
		for _, n := range nodes {
			if err := fn(n, parent); err != nil {
				return err
			}
			if err := walk(n.Children, n); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t.Nodes, nil)
}

// Find returns the node of object g, or nil.
func (t *Tree) Find(g uuid.UUID) *Node {
	var found *Node
	_ = t.Walk(func(n, _ *Node) error {
		if found == nil && strings.EqualFold(n.GUID, g.String()) {
			found = n
		}
		return nil
	})
	return found
}

// Object is one .object entry together with its meta.
type Object struct {
	GUID uuid.UUID
	// root element of the payload, or the tree node's kind for objects whose
	// payload is not understood
	Kind    string
	Name    string
	Meta    Meta
	Payload []byte
	Text    string // decoded payload of POU, GVL, Application and tree objects
}

// Archive is a .project held as an arena of objects keyed by GUID plus the
// project tree that arranges them.
type Archive struct {
	Objects  map[uuid.UUID]*Object
	Tree     *Tree
	TreeGUID uuid.UUID
	// entries outside the object and meta families, kept verbatim
	extra     map[string][]byte
	treeDirty bool
}

// NewArchive creates an archive holding only the project tree and the
// application.
func NewArchive(name string) (*Archive, error) {
	a := &Archive{
		Objects:   map[uuid.UUID]*Object{},
		Tree:      &Tree{Name: name},
		TreeGUID:  ProjectTreeGUID,
		extra:     map[string][]byte{},
		treeDirty: true,
	}
	a.Objects[ProjectTreeGUID] = &Object{GUID: ProjectTreeGUID, Kind: KindProjectTree, Meta: Meta{Marker: MarkerProjectTree}}
	payload, err := marshalText(applicationXML{Name: KindApplication})
	if err != nil {
		return nil, err
	}
	app := &Object{GUID: ApplicationGUID, Kind: KindApplication, Name: KindApplication, Meta: Meta{Marker: MarkerApplication}, Payload: payload}
	if err := a.put(app, uuid.Nil); err != nil {
		return nil, err
	}
	return a, nil
}

// ReadArchive opens a .project. Every object needs its meta and every tree
// node an object; payloads of the understood kinds are decoded and
// classified by their root element.
func ReadArchive(data []byte, limits models.Limits) (*Archive, error) {
	if err := limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, faults.Wrap(faults.KindParseError, err, "not a zip archive")
	}
	a := &Archive{Objects: map[uuid.UUID]*Object{}, extra: map[string][]byte{}}
	metas := map[uuid.UUID][]byte{}
	var order []uuid.UUID
	budget := limits.MaxInputBytes
	for _, f := range zr.File {
		raw, err := readEntry(f, budget)
		if err != nil {
			return nil, err
		}
		if budget > 0 {
			budget -= int64(len(raw))
		}
		g, suffix, ok := splitEntry(f.Name)
		if !ok {
			a.extra[f.Name] = raw
			continue
		}
		payload, err := Unwrap(f.Name, raw)
		if err != nil {
			return nil, err
		}
		if suffix == metaSuffix {
			metas[g] = payload
			continue
		}
		a.Objects[g] = &Object{GUID: g, Payload: payload}
		order = append(order, g)
	}
	for _, g := range order {
		raw, ok := metas[g]
		if !ok {
			return nil, faults.MissingMeta(g.String())
		}
		o := a.Objects[g]
		if o.Meta, err = ParseMeta(entryName(g, metaSuffix), raw); err != nil {
			return nil, err
		}
		if err := o.classify(); err != nil {
			return nil, err
		}
		delete(metas, g)
	}
	if len(metas) > 0 {
		orphans := make([]string, 0, len(metas))
		for g := range metas {
			orphans = append(orphans, entryName(g, metaSuffix))
		}
		sort.Strings(orphans)
		return nil, faults.SchemaViolation(orphans[0], "meta has no object")
	}
	if err := a.readTree(order); err != nil {
		return nil, err
	}
	return a, nil
}

func readEntry(f *zip.File, budget int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, faults.Wrap(faults.KindParseError, err, "cannot open %s", f.Name)
	}
	defer rc.Close()
	var r io.Reader = rc
	if budget > 0 {
		r = io.LimitReader(rc, budget+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, faults.Wrap(faults.KindParseError, err, "cannot read %s", f.Name)
	}
	if budget > 0 && int64(len(raw)) > budget {
		return nil, faults.ResourceLimitExceeded("uncompressed archive bytes", budget)
	}
	return raw, nil
}

// splitEntry recognises <guid>.object and <guid>.meta.
func splitEntry(name string) (uuid.UUID, string, bool) {
	for _, suffix := range []string{objectSuffix, metaSuffix} {
		if base, ok := strings.CutSuffix(name, suffix); ok {
			g, err := uuid.Parse(base)
			if err != nil || len(base) != 36 {
				return uuid.Nil, "", false
			}
			return g, suffix, true
		}
	}
	return uuid.Nil, "", false
}

// classify decodes the payload of an object whose meta marker is understood
// and checks that its root element names the same kind.
func (o *Object) classify() error {
	want, ok := markerKinds[o.Meta.Marker]
	if !ok {
		return nil
	}
	entry := entryName(o.GUID, objectSuffix)
	text, err := decodeText(entry, o.Payload)
	if err != nil {
		return err
	}
	root, err := rootTag(text)
	if err != nil {
		return err
	}
	if root != want {
		e := faults.New(faults.KindUnknownObjectKind, "root element <%s> in a %s object", root, want)
		e.GUID = o.GUID.String()
		e.Path = entry
		return e
	}
	o.Kind, o.Text = root, text
	return nil
}

func (a *Archive) readTree(order []uuid.UUID) error {
	for _, g := range order {
		if a.Objects[g].Meta.Marker != MarkerProjectTree {
			continue
		}
		if a.Tree != nil {
			return faults.SchemaViolation(entryName(g, objectSuffix), "second project tree")
		}
		a.Tree, a.TreeGUID = &Tree{}, g
		if err := unmarshalText(a.Objects[g].Text, a.Tree); err != nil {
			return err
		}
	}
	if a.Tree == nil {
		return faults.SchemaViolation(entryName(ProjectTreeGUID, objectSuffix), "archive has no project tree")
	}
	return a.Tree.Walk(func(n, _ *Node) error {
		g, err := uuid.Parse(n.GUID)
		if err != nil {
			return faults.SchemaViolation("ProjectTree/Node "+n.Name, fmt.Sprintf("bad Guid %q", n.GUID))
		}
		o, ok := a.Objects[g]
		if !ok {
			return faults.DanglingProjectTreeReference(g.String())
		}
		o.Name = n.Name
		if o.Kind == "" {
			o.Kind = n.Kind
		}
		return nil
	})
}

// Application returns the tree node of the first application.
func (a *Archive) Application() *Node {
	var app *Node
	_ = a.Tree.Walk(func(n, _ *Node) error {
		if app == nil && n.Kind == KindApplication {
			app = n
		}
		return nil
	})
	return app
}

// parentOf returns the GUID of the node above g, uuid.Nil at the top.
func (a *Archive) parentOf(g uuid.UUID) uuid.UUID {
	parent := uuid.Nil
	_ = a.Tree.Walk(func(n, p *Node) error {
		if p != nil && strings.EqualFold(n.GUID, g.String()) {
			parent = uuid.MustParse(p.GUID)
		}
		return nil
	})
	return parent
}

// put stores o in the arena and appends its node under parent, or at the
// top of the tree when parent is uuid.Nil.
func (a *Archive) put(o *Object, parent uuid.UUID) error {
	if _, ok := a.Objects[o.GUID]; ok {
		e := faults.New(faults.KindDuplicateSymbol, "object %s already exists", o.GUID)
		e.GUID = o.GUID.String()
		return e
	}
	node := &Node{GUID: o.GUID.String(), Name: o.Name, Kind: o.Kind}
	if parent == uuid.Nil {
		a.Tree.Nodes = append(a.Tree.Nodes, node)
	} else {
		p := a.Tree.Find(parent)
		if p == nil {
			return faults.DanglingProjectTreeReference(parent.String())
		}
		for _, c := range p.Children {
			if strings.EqualFold(c.Name, o.Name) {
				e := faults.New(faults.KindDuplicateSymbol, "%s already has a child named %s", p.Name, o.Name)
				e.Path = o.Name
				return e
			}
		}
		p.Children = append(p.Children, node)
	}
	a.Objects[o.GUID] = o
	a.treeDirty = true
	return nil
}

// AddObject adds an object of any kind under parent and returns its fresh
// GUID. Kinds with a known meta layout get a synthesised meta; other kinds
// clone the meta of an object of the same kind already in the archive and
// point it at the new parent. Without such a template the kind is refused.
// The root element of payload must name kind.
func (a *Archive) AddObject(kind, name string, payload []byte, parent uuid.UUID) (uuid.UUID, error) {
	text, err := decodeText(name, payload)
	if err != nil {
		return uuid.Nil, err
	}
	root, err := rootTag(text)
	if err != nil {
		return uuid.Nil, err
	}
	if root != kind {
		e := faults.New(faults.KindUnknownObjectKind, "root element <%s> in a %s object", root, kind)
		e.Path = name
		return uuid.Nil, e
	}
	var meta Meta
	if m, ok := markerFor(kind); ok && m != MarkerPOU {
		meta = Meta{Marker: m, Parent: parent}
	} else {
		tmpl := a.template(kind)
		if tmpl == nil {
			return uuid.Nil, faults.New(faults.KindUnsupportedObjectKind, "no meta template for %s objects", kind)
		}
		if meta, err = tmpl.Meta.rebase(a.parentOf(tmpl.GUID), parent); err != nil {
			return uuid.Nil, err
		}
	}
	g, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, err
	}
	o := &Object{GUID: g, Kind: kind, Name: name, Meta: meta, Payload: payload, Text: text}
	if err := a.put(o, parent); err != nil {
		return uuid.Nil, err
	}
	return g, nil
}

// template returns the first object of kind in GUID order.
func (a *Archive) template(kind string) *Object {
	var best *Object
	for _, o := range a.Objects {
		if o.Kind == kind && (best == nil || o.GUID.String() < best.GUID.String()) {
			best = o
		}
	}
	return best
}

// Bytes packs the archive. Entries are sorted by name, deflated at a fixed
// level and stamped with a fixed date, so equal archives give equal bytes.
func (a *Archive) Bytes() ([]byte, error) {
	if a.treeDirty {
		tree := a.Objects[a.TreeGUID]
		payload, err := marshalText(a.Tree)
		if err != nil {
			return nil, err
		}
		tree.Payload = payload
		a.treeDirty = false
	}
	entries := make(map[string][]byte, 2*len(a.Objects)+len(a.extra))
	for name, raw := range a.extra {
		entries[name] = raw
	}
	for g, o := range a.Objects {
		entries[entryName(g, objectSuffix)] = Wrap(o.Payload)
		entries[entryName(g, metaSuffix)] = Wrap(o.Meta.Bytes())
	}
	return writeZip(entries)
}

// Len is the number of archive entries Bytes writes.
func (a *Archive) Len() int {
	return 2*len(a.Objects) + len(a.extra)
}

func writeZip(entries map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
	for _, name := range names {
		// the legacy date fields keep the extended-timestamp extra field out
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, ModifiedDate: dosEpoch})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(entries[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
