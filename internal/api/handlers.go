package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

// Content types for model documents.
var modelContentTypes = map[string]string{
	pipeline.FormatJSON:    echo.MIMEApplicationJSON,
	pipeline.FormatYAML:    "application/yaml",
	pipeline.FormatMsgpack: "application/msgpack",
}

// requestOptions are the query parameters shared by the pipeline endpoints.
type requestOptions struct {
	Hint     dialect.Dialect
	Target   dialect.Dialect
	Finalize models.FinalizeOptions
	Format   string
	Download bool
}

func parseRequestOptions(c echo.Context) (*requestOptions, error) {
	var opts requestOptions
	var err error
	if opts.Hint, err = queryDialect(c, "hint"); err != nil {
		return nil, err
	}
	if opts.Target, err = queryDialect(c, "target"); err != nil {
		return nil, err
	}
	if opts.Finalize.Force, err = queryBool(c, "force"); err != nil {
		return nil, err
	}
	if opts.Finalize.Strict, err = queryBool(c, "strict"); err != nil {
		return nil, err
	}
	if opts.Download, err = queryBool(c, "download"); err != nil {
		return nil, err
	}
	opts.Format = strings.ToLower(c.QueryParam("format"))
	if _, ok := modelContentTypes[opts.Format]; opts.Format != "" && !ok {
		return nil, NewBadRequestError("unknown format: "+opts.Format, nil)
	}
	return &opts, nil
}

func queryDialect(c echo.Context, name string) (dialect.Dialect, error) {
	v := c.QueryParam(name)
	if v == "" {
		return "", nil
	}
	d, err := dialect.Parse(v)
	if err != nil {
		return "", faults.Wrap(faults.KindUnsupportedFeature, err, "%s dialect %q", name, v)
	}
	return d, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, NewValidationError(name)
	}
	return b, nil
}

// readFormFile reads a multipart file field, bounded by limit.
func readFormFile(c echo.Context, field string, limit int64) (string, []byte, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", nil, NewBadRequestError("no "+field+" provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return "", nil, NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	data, err := storage.ReadAll(src, limit, file.Filename)
	if err != nil {
		return "", nil, err
	}
	return file.Filename, data, nil
}

// loadProject reads a project from either a model document or any format
// the engine can detect.
func loadProject(c echo.Context, engine *pipeline.Engine, field string, hint dialect.Dialect) (*models.Project, error) {
	limits := engine.Options().Limits
	name, data, err := readFormFile(c, field, limits.MaxInputBytes)
	if err != nil {
		return nil, err
	}
	return engine.Load(name, data, hint)
}

// respondModel writes p in the requested model encoding.
func respondModel(c echo.Context, p *models.Project, format string) error {
	data, err := pipeline.DumpModel(p, format)
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, modelContentTypes[format], data)
}

// diagnostics flattens a report for JSON responses.
func diagnostics(r *faults.Report) []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		out = append(out, d.Format())
	}
	return out
}
