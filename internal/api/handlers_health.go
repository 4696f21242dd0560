// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/pipeline"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	engine  *pipeline.Engine
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, engine *pipeline.Engine) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		engine:  engine,
	}
}

type codecInfo struct {
	Name      string   `json:"name"`
	Extension string   `json:"extension"`
	Dialects  []string `json:"dialects"`
}

// HandleHealth returns server health status and the available codecs
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	var codecs []codecInfo
	for _, cd := range h.engine.Registry().Codecs() {
		info := codecInfo{Name: cd.Name(), Extension: cd.Extension()}
		for _, d := range cd.Dialects() {
			info.Dialects = append(info.Dialects, d.String())
		}
		codecs = append(codecs, info)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"codecs":  codecs,
	})
}
