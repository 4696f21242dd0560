package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/codec/codesys"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/storage"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

type formFile struct {
	field string
	name  string
	data  []byte
}

func newEngine() *pipeline.Engine {
	return pipeline.New(codec.DefaultOptions())
}

// multipartContext builds an echo context for a multipart POST.
func multipartContext(t *testing.T, target string, files ...formFile) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func motorSMBP(t *testing.T) []byte {
	t.Helper()
	res, err := newEngine().Emit(testutil.Motor(t), "", models.FinalizeOptions{})
	require.NoError(t, err)
	return res.Data
}

func modelJSON(t *testing.T, p *models.Project) []byte {
	t.Helper()
	data, err := models.EncodeJSON(p)
	require.NoError(t, err)
	return data
}

func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T", err)
	assert.Equal(t, status, apiErr.Status)
	assert.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("1.2.3", newEngine())
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.HandleHealth(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version":"1.2.3"`)
	for _, name := range []string{"codesys", "smbp", "plcopen", "l5x"} {
		assert.Contains(t, body, `"name":"`+name+`"`)
	}
}

func TestParseHandler(t *testing.T) {
	h := NewParseHandler(newEngine(), nil)

	t.Run("controller project", func(t *testing.T) {
		c, rec := multipartContext(t, "/api/parse", formFile{"file", "motor.smbp", motorSMBP(t)})
		require.NoError(t, h.HandleParse(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp parseResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, dialect.SchneiderM221.String(), resp.Dialect)
		assert.Equal(t, 1, resp.Stats.POUs)
		assert.Equal(t, 2, resp.Stats.Rungs)
		require.NotNil(t, resp.Project)
		assert.Equal(t, "Motor", resp.Project.Name)
	})

	t.Run("model document", func(t *testing.T) {
		c, rec := multipartContext(t, "/api/parse", formFile{"file", "motor.json", modelJSON(t, testutil.Motor(t))})
		require.NoError(t, h.HandleParse(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"dialect":"Schneider-M221"`)
	})

	t.Run("yaml output", func(t *testing.T) {
		c, rec := multipartContext(t, "/api/parse?format=yaml", formFile{"file", "motor.smbp", motorSMBP(t)})
		require.NoError(t, h.HandleParse(c))
		assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))

		back, err := models.DecodeYAML(rec.Body.Bytes(), models.DefaultLimits())
		require.NoError(t, err)
		assert.Empty(t, models.LadderDiff(testutil.Motor(t), back))
	})

	t.Run("unknown input", func(t *testing.T) {
		c, _ := multipartContext(t, "/api/parse", formFile{"file", "notes.txt", []byte("hello")})
		err := h.HandleParse(c)
		assert.ErrorIs(t, err, faults.KindUnknownObjectKind)
	})

	t.Run("missing file", func(t *testing.T) {
		c, _ := multipartContext(t, "/api/parse")
		requireAPIError(t, h.HandleParse(c), http.StatusBadRequest, "BAD_REQUEST")
	})

	t.Run("bad query", func(t *testing.T) {
		c, _ := multipartContext(t, "/api/parse?format=toml", formFile{"file", "motor.smbp", motorSMBP(t)})
		requireAPIError(t, h.HandleParse(c), http.StatusBadRequest, "BAD_REQUEST")

		c, _ = multipartContext(t, "/api/parse?hint=fanuc", formFile{"file", "motor.smbp", motorSMBP(t)})
		assert.ErrorIs(t, h.HandleParse(c), faults.KindUnsupportedFeature)
	})
}

func TestValidateHandler(t *testing.T) {
	h := NewParseHandler(newEngine(), nil)

	tests := []struct {
		name      string
		target    string
		project   func(testing.TB) *models.Project
		wantValid bool
	}{
		{"clean project", "/api/validate", testutil.Motor, true},
		{"unmapped coil", "/api/validate", testutil.UnmappedCoil, false},
		{"unmapped coil forced", "/api/validate?force=true", testutil.UnmappedCoil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := multipartContext(t, tt.target, formFile{"file", "project.json", modelJSON(t, tt.project(t))})
			require.NoError(t, h.HandleValidate(c))
			assert.Equal(t, http.StatusOK, rec.Code)

			var resp validateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantValid, resp.Valid)
			if !tt.wantValid {
				assert.Positive(t, resp.Errors)
				assert.Contains(t, resp.Summary, string(faults.KindUnmappedCoil))
			}
		})
	}
}

func TestConvertHandler(t *testing.T) {
	t.Run("stores artifact", func(t *testing.T) {
		store := testutil.NewMockStorage()
		h := NewConvertHandler(newEngine(), store, nil)
		c, rec := multipartContext(t, "/api/convert?target=rockwell", formFile{"file", "motor.smbp", motorSMBP(t)})

		require.NoError(t, h.HandleConvert(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp emitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "l5x", resp.Codec)
		assert.Equal(t, dialect.RockwellLogix.String(), resp.Dialect)
		assert.NotEmpty(t, resp.Notes)
		require.NotNil(t, resp.Artifact)
		assert.Equal(t, "Motor.L5X", resp.Artifact.Name)

		data, err := store.Read(resp.Artifact.ID)
		require.NoError(t, err)
		assert.Contains(t, string(data), "OTE(MOTOR_RUN)")
	})

	t.Run("download", func(t *testing.T) {
		store := testutil.NewMockStorage()
		h := NewConvertHandler(newEngine(), store, nil)
		c, rec := multipartContext(t, "/api/convert?target=plcopen&download=true", formFile{"file", "motor.smbp", motorSMBP(t)})

		require.NoError(t, h.HandleConvert(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "Motor.xml")
		assert.Contains(t, rec.Body.String(), "<project")
		assert.Zero(t, store.Count())
	})

	t.Run("missing target", func(t *testing.T) {
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, _ := multipartContext(t, "/api/convert", formFile{"file", "motor.smbp", motorSMBP(t)})
		requireAPIError(t, h.HandleConvert(c), http.StatusBadRequest, "VALIDATION_ERROR")
	})

	t.Run("untranslatable", func(t *testing.T) {
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, _ := multipartContext(t, "/api/emit?target=rockwell", formFile{"file", "loop.json", modelJSON(t, testutil.PID(t))})
		requireAPIError(t, h.HandleEmit(c), http.StatusUnsupportedMediaType, string(faults.KindUntranslatableAddress))
	})
}

func TestEmitHandler(t *testing.T) {
	t.Run("own target", func(t *testing.T) {
		store := testutil.NewMockStorage()
		h := NewConvertHandler(newEngine(), store, nil)
		c, rec := multipartContext(t, "/api/emit", formFile{"file", "motor.json", modelJSON(t, testutil.Motor(t))})

		require.NoError(t, h.HandleEmit(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"Motor.smbp"`)
		assert.Equal(t, 1, store.Count())
	})

	t.Run("yaml model", func(t *testing.T) {
		data, err := models.EncodeYAML(testutil.Motor(t))
		require.NoError(t, err)
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, rec := multipartContext(t, "/api/emit?target=m241", formFile{"file", "motor.yml", data})

		require.NoError(t, h.HandleEmit(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"codec":"codesys"`)
	})

	t.Run("validation failure", func(t *testing.T) {
		store := testutil.NewMockStorage()
		h := NewConvertHandler(newEngine(), store, nil)
		c, _ := multipartContext(t, "/api/emit", formFile{"file", "catch.json", modelJSON(t, testutil.UnmappedCoil(t))})

		apiErr := requireAPIError(t, h.HandleEmit(c), http.StatusUnprocessableEntity, string(faults.KindUnmappedCoil))
		assert.NotEmpty(t, apiErr.Report)
		assert.Zero(t, store.Count())
	})

	t.Run("forced", func(t *testing.T) {
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, rec := multipartContext(t, "/api/emit?force=1", formFile{"file", "catch.json", modelJSON(t, testutil.UnmappedCoil(t))})

		require.NoError(t, h.HandleEmit(c))
		var resp emitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Warnings)
	})
}

func TestInjectHandler(t *testing.T) {
	tmplProject := models.NewProject("Template", dialect.SchneiderM241)
	require.NoError(t, tmplProject.UseCatalog("TM241CE40T"))
	tmpl, err := codesys.New().Encode(tmplProject, codec.DefaultOptions())
	require.NoError(t, err)

	t.Run("adds POUs", func(t *testing.T) {
		store := testutil.NewMockStorage()
		h := NewConvertHandler(newEngine(), store, nil)
		c, rec := multipartContext(t, "/api/inject",
			formFile{"template", "base.project", tmpl},
			formFile{"additions", "additions.json", modelJSON(t, testutil.Additions(t))})

		require.NoError(t, h.HandleInject(c))
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp emitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Additions.project", resp.Artifact.Name)

		data, err := store.Read(resp.Artifact.ID)
		require.NoError(t, err)
		back, err := newEngine().Parse(data, "")
		require.NoError(t, err)
		require.NotNil(t, back.POU("Motor_Control_ST"))
	})

	t.Run("not a template", func(t *testing.T) {
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, _ := multipartContext(t, "/api/inject",
			formFile{"template", "motor.smbp", motorSMBP(t)},
			formFile{"additions", "additions.json", modelJSON(t, testutil.Additions(t))})
		requireAPIError(t, h.HandleInject(c), http.StatusUnsupportedMediaType, string(faults.KindUnsupportedFeature))
	})

	t.Run("missing additions", func(t *testing.T) {
		h := NewConvertHandler(newEngine(), testutil.NewMockStorage(), nil)
		c, _ := multipartContext(t, "/api/inject", formFile{"template", "base.project", tmpl})
		requireAPIError(t, h.HandleInject(c), http.StatusBadRequest, "BAD_REQUEST")
	})
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewNotFoundError("artifact", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"missing artifact", storage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"input fault", faults.ParseError(3, 1, "bad token"), http.StatusBadRequest, "ParseError"},
		{"model fault", faults.New(faults.KindDuplicateSymbol, "twice"), http.StatusUnprocessableEntity, "DuplicateSymbol"},
		{"unsupported fault", faults.Unsupported("SFC"), http.StatusUnsupportedMediaType, "UnsupportedFeature"},
		{"resource fault", faults.ResourceLimitExceeded("pous", 4), http.StatusRequestEntityTooLarge, "ResourceLimitExceeded"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(req, rec)

			ErrorHandler(tt.err, c)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}
