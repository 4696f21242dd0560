// handlers_upload_test.go - Tests for artifact handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/storage"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

func idContext(method, target, id string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func TestArtifactHandler_HandleUploadArtifact(t *testing.T) {
	tests := []struct {
		name       string
		maxBytes   int64
		data       []byte
		wantStatus int
		wantErr    bool
	}{
		{"valid upload", 0, []byte("<project/>"), http.StatusCreated, false},
		{"within limit", 16, []byte("0123456789"), http.StatusCreated, false},
		{"over limit", 4, []byte("0123456789"), http.StatusRequestEntityTooLarge, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			handler := NewArtifactHandler(store, tt.maxBytes)
			c, rec := multipartContext(t, "/api/artifacts", formFile{"file", "motor.smbp", tt.data})

			err := handler.HandleUploadArtifact(c)
			if tt.wantErr {
				requireAPIError(t, err, tt.wantStatus, string(faults.KindResourceLimitExceeded))
				assert.Zero(t, store.Count())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var response storage.Artifact
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.NotEmpty(t, response.ID)
			assert.Equal(t, "motor.smbp", response.Name)
			assert.Equal(t, int64(len(tt.data)), response.Size)
		})
	}

	t.Run("no file", func(t *testing.T) {
		c, _ := multipartContext(t, "/api/artifacts")
		requireAPIError(t, NewArtifactHandler(testutil.NewMockStorage(), 0).HandleUploadArtifact(c),
			http.StatusBadRequest, "BAD_REQUEST")
	})
}

func TestArtifactHandler_HandleRecentArtifacts(t *testing.T) {
	tests := []struct {
		name       string
		files      int
		query      string
		wantCount  int
		wantStatus int
	}{
		{"empty store", 0, "", 0, http.StatusOK},
		{"default limit", 25, "", defaultRecentLimit, http.StatusOK},
		{"explicit limit", 5, "?limit=3", 3, http.StatusOK},
		{"bad limit", 1, "?limit=zero", 0, http.StatusBadRequest},
		{"negative limit", 1, "?limit=-2", 0, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage()
			for i := 0; i < tt.files; i++ {
				store.AddFile(fmt.Sprintf("out%d.L5X", i), []byte("x"))
			}
			handler := NewArtifactHandler(store, 0)

			req := httptest.NewRequest(http.MethodGet, "/api/artifacts"+tt.query, nil)
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			err := handler.HandleRecentArtifacts(c)
			if tt.wantStatus != http.StatusOK {
				requireAPIError(t, err, tt.wantStatus, "VALIDATION_ERROR")
				return
			}
			require.NoError(t, err)

			var files []*storage.Artifact
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
			assert.Len(t, files, tt.wantCount)
			assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
		})
	}
}

func TestArtifactHandler_Lifecycle(t *testing.T) {
	store := testutil.NewMockStorage()
	handler := NewArtifactHandler(store, 0)
	xml := []byte(`<?xml version="1.0" encoding="utf-8"?><project/>`)
	a := store.AddFile("Motor.xml", xml)

	t.Run("get", func(t *testing.T) {
		c, rec := idContext(http.MethodGet, "/api/artifacts/"+a.ID, a.ID)
		require.NoError(t, handler.HandleGetArtifact(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"Motor.xml"`)
	})

	t.Run("download", func(t *testing.T) {
		c, rec := idContext(http.MethodGet, "/api/artifacts/"+a.ID+"/download", a.ID)
		require.NoError(t, handler.HandleDownloadArtifact(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, xml, rec.Body.Bytes())
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "xml")
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="Motor.xml"`)
	})

	t.Run("delete", func(t *testing.T) {
		c, rec := idContext(http.MethodDelete, "/api/artifacts/"+a.ID, a.ID)
		require.NoError(t, handler.HandleDeleteArtifact(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Zero(t, store.Count())
	})

	t.Run("missing", func(t *testing.T) {
		for name, call := range map[string]func(echo.Context) error{
			"get":      handler.HandleGetArtifact,
			"download": handler.HandleDownloadArtifact,
			"delete":   handler.HandleDeleteArtifact,
		} {
			t.Run(name, func(t *testing.T) {
				c, _ := idContext(http.MethodGet, "/api/artifacts/nope", "nope")
				requireAPIError(t, call(c), http.StatusNotFound, "NOT_FOUND")
			})
		}
	})

	t.Run("empty id", func(t *testing.T) {
		c, _ := idContext(http.MethodGet, "/api/artifacts/", "")
		requireAPIError(t, handler.HandleGetArtifact(c), http.StatusBadRequest, "VALIDATION_ERROR")
	})
}
