package main

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseArgs parses fs from args, letting flags follow positional
// arguments, and checks the positional count.
func (a *app) parseArgs(fs *flag.FlagSet, args []string, positional int) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, errUsage
		}
		if fs.NArg() == 0 {
			break
		}
		pos = append(pos, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(pos) != positional {
		fmt.Fprintf(a.stderr, "%s: expected %d argument(s), got %d\n", fs.Name(), positional, len(pos))
		fs.Usage()
		return nil, errUsage
	}
	return pos, nil
}

func finalizeFlags(fs *flag.FlagSet) *models.FinalizeOptions {
	var fo models.FinalizeOptions
	fs.BoolVar(&fo.Force, "force", false, "downgrade errors to warnings")
	fs.BoolVar(&fo.Strict, "strict", false, "upgrade warnings to errors")
	return &fo
}

func parseDialect(flagName, s string) (dialect.Dialect, error) {
	if s == "" {
		return "", nil
	}
	d, err := dialect.Parse(s)
	if err != nil {
		return "", faults.Wrap(faults.KindUnsupportedFeature, err, "-%s %q", flagName, s)
	}
	return d, nil
}

func (a *app) read(path string) ([]byte, error) {
	return storage.ReadFile(path, a.cfg.ModelLimits().MaxInputBytes)
}

func (a *app) load(path string, hint dialect.Dialect) (*models.Project, int, error) {
	data, err := a.read(path)
	if err != nil {
		return nil, 0, err
	}
	p, err := a.engine.Load(filepath.Base(path), data, hint)
	return p, len(data), err
}

// printReport writes the one-line summary and the bulleted messages.
func (a *app) printReport(r *faults.Report) {
	if r == nil || len(r.Diagnostics) == 0 {
		return
	}
	fmt.Fprint(a.stdout, r.Summary())
}

func (a *app) cmdParse(args []string) error {
	fs := a.flags("parse")
	hint := fs.String("hint", "", "source dialect, skipping detection")
	out := fs.String("o", "", "write the model to this file (.json, .yaml or .msgpack)")
	pos, err := a.parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	h, err := parseDialect("hint", *hint)
	if err != nil {
		return err
	}

	start := time.Now()
	p, n, err := a.load(pos[0], h)
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, p.Summary())
	a.printReport(&p.Warnings)

	if *out != "" {
		data, err := pipeline.DumpModel(p, pipeline.ModelFormat(*out))
		if err != nil {
			return err
		}
		if err := storage.WriteFile(*out, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "wrote %s (%d bytes)\n", *out, len(data))
	}

	stats := p.Stats()
	a.log.Info("parse",
		"verb", "parse",
		"dialect", p.Target,
		"bytes", n,
		"pous", stats.POUs,
		"rungs", stats.Rungs,
		"duration", time.Since(start))
	return nil
}

func (a *app) cmdGenerate(args []string) error {
	fs := a.flags("generate")
	target := fs.String("target", "", "dialect to emit (default: the model's own, or the configured default)")
	fromJSON := fs.String("from-json", "", "model document (.json, .yaml or .msgpack)")
	fromPLCopen := fs.String("from-plcopen", "", "PLCopen TC6 XML project")
	out := fs.String("o", "", "output file")
	fo := finalizeFlags(fs)
	if _, err := a.parseArgs(fs, args, 0); err != nil {
		return err
	}
	if (*fromJSON == "") == (*fromPLCopen == "") {
		fmt.Fprintln(a.stderr, "generate: exactly one of -from-json or -from-plcopen is required")
		return errUsage
	}
	d, err := parseDialect("target", *target)
	if err != nil {
		return err
	}

	start := time.Now()
	var p *models.Project
	var n int
	if *fromJSON != "" {
		data, err := a.read(*fromJSON)
		if err != nil {
			return err
		}
		if p, err = pipeline.LoadModel(filepath.Base(*fromJSON), data, a.cfg.ModelLimits()); err != nil {
			return err
		}
		n = len(data)
	} else {
		if p, n, err = a.load(*fromPLCopen, dialect.PLCopenNeutral); err != nil {
			return err
		}
		if d == "" {
			d = a.cfg.DefaultTarget()
		}
	}

	res, err := a.engine.Emit(p, d, *fo)
	return a.finish("generate", res, err, *out, n, start)
}

func (a *app) cmdConvert(args []string) error {
	fs := a.flags("convert")
	target := fs.String("target", "", "dialect to emit")
	hint := fs.String("hint", "", "source dialect, skipping detection")
	out := fs.String("o", "", "output file")
	fo := finalizeFlags(fs)
	pos, err := a.parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	d, err := parseDialect("target", *target)
	if err != nil {
		return err
	}
	if d == "" {
		fmt.Fprintln(a.stderr, "convert: -target is required")
		return errUsage
	}
	h, err := parseDialect("hint", *hint)
	if err != nil {
		return err
	}

	start := time.Now()
	data, err := a.read(pos[0])
	if err != nil {
		return err
	}
	res, err := a.engine.Convert(data, h, d, *fo)
	return a.finish("convert", res, err, *out, len(data), start)
}

func (a *app) cmdValidate(args []string) error {
	fs := a.flags("validate")
	hint := fs.String("hint", "", "source dialect, skipping detection")
	fo := finalizeFlags(fs)
	pos, err := a.parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	h, err := parseDialect("hint", *hint)
	if err != nil {
		return err
	}

	start := time.Now()
	p, n, err := a.load(pos[0], h)
	if err != nil {
		return err
	}
	rep, verr := a.engine.Validate(p, *fo)
	fmt.Fprint(a.stdout, rep.Summary())

	stats := p.Stats()
	a.log.Info("validate",
		"verb", "validate",
		"dialect", p.Target,
		"bytes", n,
		"pous", stats.POUs,
		"rungs", stats.Rungs,
		"errors", len(rep.Errors()),
		"duration", time.Since(start))
	return verr
}

func (a *app) cmdInject(args []string) error {
	fs := a.flags("inject")
	additions := fs.String("additions", "", "model or project holding the POUs to add")
	out := fs.String("o", "", "output file (default: <template>_injected.project)")
	fo := finalizeFlags(fs)
	pos, err := a.parseArgs(fs, args, 1)
	if err != nil {
		return err
	}
	if *additions == "" {
		fmt.Fprintln(a.stderr, "inject: -additions is required")
		return errUsage
	}

	start := time.Now()
	template, err := a.read(pos[0])
	if err != nil {
		return err
	}
	add, _, err := a.load(*additions, "")
	if err != nil {
		return err
	}
	if *out == "" {
		*out = strings.TrimSuffix(pos[0], filepath.Ext(pos[0])) + "_injected.project"
	}
	res, err := a.engine.Inject(template, add, *fo)
	return a.finish("inject", res, err, *out, len(template), start)
}

// finish prints the report and notes of a pipeline run and writes its output.
func (a *app) finish(verb string, res *pipeline.Result, err error, out string, inBytes int, start time.Time) error {
	if res != nil {
		a.printReport(res.Report)
	}
	if err != nil {
		return err
	}
	if res == nil || res.Data == nil {
		return errors.New(verb + " produced no output")
	}

	p := res.Project
	for _, note := range p.Notes {
		fmt.Fprintf(a.stdout, "note: %s\n", note)
	}
	if out == "" {
		out = p.Name + res.Codec.Extension()
	}
	if err := storage.WriteFile(out, res.Data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %s (%d bytes, %s)\n", out, len(res.Data), p.Target)

	stats := p.Stats()
	a.log.Info(verb,
		"verb", verb,
		"dialect", p.Target,
		"codec", res.Codec.Name(),
		"bytes", inBytes,
		"out_bytes", len(res.Data),
		"pous", stats.POUs,
		"rungs", stats.Rungs,
		"duration", time.Since(start))
	return nil
}
