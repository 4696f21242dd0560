// Package pipeline composes the codecs, the address mapper and the model
// checks into the parse, translate, emit and inject operations.
package pipeline

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/codec/codesys"
	"github.com/plc-visualizer/plcforge/internal/codec/l5x"
	"github.com/plc-visualizer/plcforge/internal/codec/plcopen"
	"github.com/plc-visualizer/plcforge/internal/codec/smbp"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Result is the outcome of an emit or inject call. Data is nil whenever the
// returned error is not.
type Result struct {
	Data    []byte
	Project *models.Project
	Report  *faults.Report
	Codec   codec.Codec
}

// Engine runs the pipeline. It holds no per-call state and may be shared
// between goroutines as long as each works on its own project.
type Engine struct {
	registry *codec.Registry
	mapper   *address.Mapper
	opts     codec.Options
}

// DefaultRegistry returns every built-in codec in probe order.
func DefaultRegistry() *codec.Registry {
	return codec.NewRegistry(codesys.New(), smbp.New(), plcopen.New(), l5x.New())
}

// New creates an engine over the built-in codecs.
func New(opts codec.Options) *Engine {
	return NewWithRegistry(DefaultRegistry(), opts)
}

// NewWithRegistry creates an engine over a custom codec set.
func NewWithRegistry(r *codec.Registry, opts codec.Options) *Engine {
	return &Engine{
		registry: r,
		mapper:   address.NewMapper(address.DefaultCacheSize),
		opts:     opts,
	}
}

// Registry exposes the engine's codecs.
func (e *Engine) Registry() *codec.Registry { return e.registry }

// Options returns the codec options applied to every call.
func (e *Engine) Options() codec.Options { return e.opts }

// Detect picks the codec for data. ZIP archives can only be CODESYS
// projects; everything else is probed by root element.
func (e *Engine) Detect(data []byte) (codec.Codec, error) {
	kind := mimetype.Detect(data)
	if is(kind, "application/zip") {
		c, err := e.registry.ByName("codesys")
		if err == nil && c.Sniff(data) {
			return c, nil
		}
		return nil, faults.New(faults.KindUnknownObjectKind, "archive is not a CODESYS project")
	}
	c, err := e.registry.Detect(data)
	if err != nil {
		return nil, faults.New(faults.KindUnknownObjectKind, "no codec recognises %s input", kind.String())
	}
	return c, nil
}

func is(kind *mimetype.MIME, name string) bool {
	for t := kind; t != nil; t = t.Parent() {
		if t.Is(name) {
			return true
		}
	}
	return false
}

// Parse decodes data. hint names the source dialect; when empty the format
// is sniffed.
func (e *Engine) Parse(data []byte, hint dialect.Dialect) (*models.Project, error) {
	if err := e.opts.Limits.CheckInput(int64(len(data))); err != nil {
		return nil, err
	}
	var c codec.Codec
	var err error
	if hint != "" {
		c, err = e.registry.ForDialect(hint)
	} else {
		c, err = e.Detect(data)
	}
	if err != nil {
		return nil, err
	}
	opts := e.opts
	opts.Target = hint
	p, err := c.Decode(data, opts)
	if err != nil {
		return nil, err
	}
	p.SetMapper(e.mapper)
	return p, nil
}

// Translate retargets a copy of p to dialect to.
func (e *Engine) Translate(p *models.Project, to dialect.Dialect) (*models.Project, error) {
	p.SetMapper(e.mapper)
	return Translate(p, to)
}

// Emit finalizes p and serialises it for dialect d, translating a copy
// first when d is not the project's target. An empty d emits the project's
// own target. No bytes are produced when finalization reports errors.
func (e *Engine) Emit(p *models.Project, d dialect.Dialect, fo models.FinalizeOptions) (*Result, error) {
	if d == "" {
		d = p.Target
	}
	c, err := e.registry.ForDialect(d)
	if err != nil {
		return nil, err
	}
	q := p
	if d != p.Target {
		if q, err = e.Translate(p, d); err != nil {
			return nil, err
		}
	}
	res := &Result{Project: q, Codec: c}
	res.Report, err = q.Finalize(fo)
	if err != nil {
		return res, err
	}
	opts := e.opts
	opts.Target = d
	if res.Data, err = c.Encode(q, opts); err != nil {
		return res, err
	}
	return res, nil
}

// Convert parses data and emits it for dialect to.
func (e *Engine) Convert(data []byte, hint, to dialect.Dialect, fo models.FinalizeOptions) (*Result, error) {
	p, err := e.Parse(data, hint)
	if err != nil {
		return nil, err
	}
	return e.Emit(p, to, fo)
}

// Validate grades p's diagnostics without freezing it. The error stands for
// the worst category of error-level diagnostic.
func (e *Engine) Validate(p *models.Project, fo models.FinalizeOptions) (*faults.Report, error) {
	p.SetMapper(e.mapper)
	rep := p.Validate()
	if fo.Strict {
		rep.Upgrade()
	}
	if fo.Force {
		rep.Downgrade()
	}
	return rep, rep.Err()
}

// Inject adds the POUs and variable lists of additions to a CODESYS
// template. The additions are validated and given GUIDs on a copy; the
// copy is returned with the result.
func (e *Engine) Inject(template []byte, additions *models.Project, fo models.FinalizeOptions) (*Result, error) {
	if err := e.opts.Limits.CheckInput(int64(len(template))); err != nil {
		return nil, err
	}
	c, err := e.Detect(template)
	if err != nil {
		return nil, err
	}
	if c.Name() != "codesys" {
		return nil, faults.Unsupported("injection into " + c.Name() + " documents")
	}
	add := additions.Clone()
	add.SetMapper(e.mapper)
	res := &Result{Project: add, Codec: c}
	if err := codesys.AssignGUIDs(add); err != nil {
		return nil, err
	}
	if res.Report, err = e.Validate(add, fo); err != nil {
		return res, err
	}
	if res.Data, err = codesys.Inject(template, add, e.opts); err != nil {
		return res, err
	}
	return res, nil
}
