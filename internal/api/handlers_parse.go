// handlers_parse.go - Project parse and validation handlers
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/logs"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
)

// ParseHandlerImpl implements the ParseHandler interface
type ParseHandlerImpl struct {
	engine *pipeline.Engine
	log    *slog.Logger
}

// NewParseHandler creates a new parse handler instance
func NewParseHandler(engine *pipeline.Engine, log *slog.Logger) ParseHandler {
	if log == nil {
		log = logs.Discard()
	}
	return &ParseHandlerImpl{
		engine: engine,
		log:    log,
	}
}

type parseResponse struct {
	Dialect  string             `json:"dialect"`
	Stats    models.Stats       `json:"stats"`
	Summary  string             `json:"summary"`
	Warnings []string           `json:"warnings"`
	Project  *models.ProjectDoc `json:"project"`
}

// HandleParse reads an uploaded project and returns its model
func (h *ParseHandlerImpl) HandleParse(c echo.Context) error {
	opts, err := parseRequestOptions(c)
	if err != nil {
		return err
	}

	start := time.Now()
	p, err := loadProject(c, h.engine, "file", opts.Hint)
	if err != nil {
		return err
	}
	stats := p.Stats()
	h.log.Info("parse",
		"dialect", p.Target,
		"pous", stats.POUs,
		"rungs", stats.Rungs,
		"duration", time.Since(start))

	if opts.Format != "" && opts.Format != pipeline.FormatJSON {
		return respondModel(c, p, opts.Format)
	}
	return c.JSON(http.StatusOK, parseResponse{
		Dialect:  p.Target.String(),
		Stats:    stats,
		Summary:  p.Summary(),
		Warnings: diagnostics(&p.Warnings),
		Project:  models.ToDoc(p),
	})
}

type validateResponse struct {
	Valid       bool     `json:"valid"`
	Errors      int      `json:"errors"`
	Warnings    int      `json:"warnings"`
	Diagnostics []string `json:"diagnostics"`
	Summary     string   `json:"summary"`
}

// HandleValidate checks an uploaded project without emitting it. Findings
// are reported in the body; the status is 200 either way.
func (h *ParseHandlerImpl) HandleValidate(c echo.Context) error {
	opts, err := parseRequestOptions(c)
	if err != nil {
		return err
	}

	p, err := loadProject(c, h.engine, "file", opts.Hint)
	if err != nil {
		return err
	}
	rep, verr := h.engine.Validate(p, opts.Finalize)
	h.log.Info("validate",
		"dialect", p.Target,
		"errors", len(rep.Errors()),
		"warnings", len(rep.Warnings()))

	return c.JSON(http.StatusOK, validateResponse{
		Valid:       verr == nil,
		Errors:      len(rep.Errors()),
		Warnings:    len(rep.Warnings()),
		Diagnostics: diagnostics(rep),
		Summary:     rep.Summary(),
	})
}
