// handlers_convert.go - Project generation, conversion and injection handlers
package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/logs"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

// ConvertHandlerImpl implements the ConvertHandler interface
type ConvertHandlerImpl struct {
	engine *pipeline.Engine
	store  storage.Store
	log    *slog.Logger
}

// NewConvertHandler creates a new convert handler instance
func NewConvertHandler(engine *pipeline.Engine, store storage.Store, log *slog.Logger) ConvertHandler {
	if log == nil {
		log = logs.Discard()
	}
	return &ConvertHandlerImpl{
		engine: engine,
		store:  store,
		log:    log,
	}
}

type emitResponse struct {
	Artifact *storage.Artifact `json:"artifact"`
	Codec    string            `json:"codec"`
	Dialect  string            `json:"dialect"`
	Warnings []string          `json:"warnings"`
	Notes    []string          `json:"notes"`
}

// HandleEmit generates a controller project from an uploaded model
func (h *ConvertHandlerImpl) HandleEmit(c echo.Context) error {
	opts, err := parseRequestOptions(c)
	if err != nil {
		return err
	}
	start := time.Now()
	p, err := loadProject(c, h.engine, "file", opts.Hint)
	if err != nil {
		return err
	}
	res, err := h.engine.Emit(p, opts.Target, opts.Finalize)
	return h.finish(c, "emit", opts, res, err, start)
}

// HandleConvert translates an uploaded controller project to another dialect
func (h *ConvertHandlerImpl) HandleConvert(c echo.Context) error {
	opts, err := parseRequestOptions(c)
	if err != nil {
		return err
	}
	if opts.Target == "" {
		return NewValidationError("target")
	}
	start := time.Now()
	_, data, err := readFormFile(c, "file", h.engine.Options().Limits.MaxInputBytes)
	if err != nil {
		return err
	}
	res, err := h.engine.Convert(data, opts.Hint, opts.Target, opts.Finalize)
	return h.finish(c, "convert", opts, res, err, start)
}

// HandleInject adds the POUs of an uploaded model to a CODESYS template
func (h *ConvertHandlerImpl) HandleInject(c echo.Context) error {
	opts, err := parseRequestOptions(c)
	if err != nil {
		return err
	}
	start := time.Now()
	_, template, err := readFormFile(c, "template", h.engine.Options().Limits.MaxInputBytes)
	if err != nil {
		return err
	}
	additions, err := loadProject(c, h.engine, "additions", opts.Hint)
	if err != nil {
		return err
	}
	res, err := h.engine.Inject(template, additions, opts.Finalize)
	return h.finish(c, "inject", opts, res, err, start)
}

// finish stores or streams a pipeline result. Failed runs answer with the
// fault mapping and whatever report was produced.
func (h *ConvertHandlerImpl) finish(c echo.Context, verb string, opts *requestOptions, res *pipeline.Result, err error, start time.Time) error {
	if err != nil {
		apiErr := NewFaultError(err)
		if res != nil && res.Report != nil {
			apiErr.Report = diagnostics(res.Report)
		}
		h.log.Warn(verb+" failed", "code", apiErr.Code, "error", err)
		return apiErr
	}

	p := res.Project
	stats := p.Stats()
	h.log.Info(verb,
		"dialect", p.Target,
		"codec", res.Codec.Name(),
		"bytes", len(res.Data),
		"pous", stats.POUs,
		"rungs", stats.Rungs,
		"duration", time.Since(start))

	name := p.Name + res.Codec.Extension()
	if opts.Download {
		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
		return c.Blob(http.StatusOK, contentType(res.Data), res.Data)
	}

	artifact, err := h.store.Save(name, bytes.NewReader(res.Data))
	if err != nil {
		return NewInternalError("failed to save artifact", err)
	}
	return c.JSON(http.StatusCreated, emitResponse{
		Artifact: artifact,
		Codec:    res.Codec.Name(),
		Dialect:  p.Target.String(),
		Warnings: diagnostics(res.Report),
		Notes:    append([]string{}, p.Notes...),
	})
}
