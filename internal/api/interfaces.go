// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// ParseHandler reads controller projects and checks them
type ParseHandler interface {
	HandleParse(c echo.Context) error
	HandleValidate(c echo.Context) error
}

// ConvertHandler produces controller projects
type ConvertHandler interface {
	HandleEmit(c echo.Context) error
	HandleConvert(c echo.Context) error
	HandleInject(c echo.Context) error
}

// ArtifactHandler manages stored inputs and generated files
type ArtifactHandler interface {
	HandleUploadArtifact(c echo.Context) error
	HandleRecentArtifacts(c echo.Context) error
	HandleGetArtifact(c echo.Context) error
	HandleDownloadArtifact(c echo.Context) error
	HandleDeleteArtifact(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
