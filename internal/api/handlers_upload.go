// handlers_upload.go - Artifact upload and retrieval handlers
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// ArtifactHandlerImpl implements the ArtifactHandler interface
type ArtifactHandlerImpl struct {
	store    storage.Store
	maxBytes int64
}

// NewArtifactHandler creates a new artifact handler instance
func NewArtifactHandler(store storage.Store, maxBytes int64) ArtifactHandler {
	return &ArtifactHandlerImpl{
		store:    store,
		maxBytes: maxBytes,
	}
}

// HandleUploadArtifact accepts raw file upload (multipart/form-data)
func (h *ArtifactHandlerImpl) HandleUploadArtifact(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		return NewFaultError(faults.ResourceLimitExceeded("input bytes of "+file.Filename, h.maxBytes))
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if faults.KindOf(err) != "" {
		return err
	}
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleRecentArtifacts returns the most recently stored artifacts
func (h *ArtifactHandlerImpl) HandleRecentArtifacts(c echo.Context) error {
	limit := defaultRecentLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxRecentLimit)
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list artifacts", err)
	}
	if files == nil {
		files = []*storage.Artifact{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetArtifact returns metadata for a specific artifact
func (h *ArtifactHandlerImpl) HandleGetArtifact(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return notFound(id, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDownloadArtifact streams the artifact content
func (h *ArtifactHandlerImpl) HandleDownloadArtifact(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return notFound(id, err)
	}
	data, err := h.store.Read(id)
	if err != nil {
		return notFound(id, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", info.Name))
	return c.Blob(http.StatusOK, contentType(data), data)
}

// HandleDeleteArtifact deletes a stored artifact
func (h *ArtifactHandlerImpl) HandleDeleteArtifact(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return notFound(id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func notFound(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError("artifact", id)
	}
	return NewInternalError("failed to access artifact", err)
}

// contentType sniffs generated files; projects are XML or zip archives.
func contentType(data []byte) string {
	return mimetype.Detect(data).String()
}
