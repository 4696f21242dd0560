// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Engine  *pipeline.Engine
	Store   storage.Store
	Logger  *slog.Logger
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Parse    ParseHandler
	Convert  ConvertHandler
	Artifact ArtifactHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Engine),
		Parse:    NewParseHandler(deps.Engine, deps.Logger),
		Convert:  NewConvertHandler(deps.Engine, deps.Store, deps.Logger),
		Artifact: NewArtifactHandler(deps.Store, deps.Engine.Options().Limits.MaxInputBytes),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Pipeline routes
	apiGroup.POST("/parse", handlers.Parse.HandleParse)
	apiGroup.POST("/validate", handlers.Parse.HandleValidate)
	apiGroup.POST("/emit", handlers.Convert.HandleEmit)
	apiGroup.POST("/convert", handlers.Convert.HandleConvert)
	apiGroup.POST("/inject", handlers.Convert.HandleInject)

	// Artifact routes
	artifactGroup := apiGroup.Group("/artifacts")
	artifactGroup.POST("", handlers.Artifact.HandleUploadArtifact)
	artifactGroup.GET("", handlers.Artifact.HandleRecentArtifacts)
	artifactGroup.GET("/:id", handlers.Artifact.HandleGetArtifact)
	artifactGroup.GET("/:id/download", handlers.Artifact.HandleDownloadArtifact)
	artifactGroup.DELETE("/:id", handlers.Artifact.HandleDeleteArtifact)
}

// MiddlewareConfig carries the server settings the middleware chain needs
type MiddlewareConfig struct {
	BodyLimit      string
	RequestTimeout time.Duration
	AllowOrigins   []string
	Logger         *slog.Logger
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	if cfg.Logger != nil {
		log := cfg.Logger
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:  true,
			LogURI:     true,
			LogStatus:  true,
			LogLatency: true,
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == "/api/health"
			},
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				log.Info("request",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency", v.Latency)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      cfg.RequestTimeout,
			ErrorMessage: "Request timeout - conversion took too long",
		}))
	}

	e.Use(middleware.Gzip())

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
}
