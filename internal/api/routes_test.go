package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/testutil"
)

func TestRegisterRoutes(t *testing.T) {
	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, nil))
	store := testutil.NewMockStorage()
	a := store.AddFile("Motor.L5X", []byte("<RSLogix5000Content/>"))

	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{
		BodyLimit: "1M",
		Logger:    log,
	})
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Engine:  newEngine(),
		Store:   store,
		Logger:  log,
		Version: "test",
	}))

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"version":"test"`)
	})

	t.Run("artifacts", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/artifacts")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), a.ID)

		rec = serve(http.MethodGet, "/api/artifacts/"+a.ID)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = serve(http.MethodGet, "/api/artifacts/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"NOT_FOUND"`)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := serve(http.MethodGet, "/api/nothing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"HTTP_ERROR"`)
	})

	t.Run("fault mapping", func(t *testing.T) {
		c, _ := multipartContext(t, "/api/parse", formFile{"file", "notes.txt", []byte("hello")})
		req := c.Request()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"UnknownObjectKind"`)
	})

	t.Run("request log", func(t *testing.T) {
		require.Contains(t, logBuf.String(), "msg=request")
		assert.Contains(t, logBuf.String(), "uri=/api/artifacts")
		assert.False(t, strings.Contains(logBuf.String(), "uri=/api/health"))
	})
}
