package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/codec/codesys"
	"github.com/plc-visualizer/plcforge/internal/config"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/logs"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/pipeline"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

type cli struct {
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{dir: dir, config: filepath.Join(dir, configName)}
}

func (c *cli) path(name string) string { return filepath.Join(c.dir, name) }

func (c *cli) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-config", c.config}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) writeModel(t *testing.T, name string, p *models.Project) string {
	t.Helper()
	data, err := pipeline.DumpModel(p, pipeline.ModelFormat(name))
	require.NoError(t, err)
	path := c.path(name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "plcforge dev")
}

func TestRun_Usage(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run()
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Commands:")

	code, _, stderr = c.run("frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	code, _, _ = c.run("convert", c.path("missing.smbp"))
	assert.Equal(t, 1, code, "convert without -target")

	code, _, _ = c.run("generate", "-target", "m221")
	assert.Equal(t, 1, code, "generate without a source")
}

func TestRun_GenerateParseConvert(t *testing.T) {
	c := newCLI(t)
	model := c.writeModel(t, "motor.json", testutil.Motor(t))
	smbp := c.path("motor.smbp")

	code, stdout, stderr := c.run("generate", "-from-json", model, "-target", "m221", "-o", smbp)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "wrote "+smbp)
	assert.Contains(t, stderr, "verb=generate")
	assert.FileExists(t, c.config)

	dump := c.path("dump.yaml")
	code, stdout, stderr = c.run("parse", smbp, "-o", dump)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Motor")
	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	back, err := models.DecodeYAML(data, models.DefaultLimits())
	require.NoError(t, err)
	assert.Empty(t, models.LadderDiff(testutil.Motor(t), back))

	l5x := c.path("motor.L5X")
	code, stdout, stderr = c.run("convert", smbp, "-target", "rockwell", "-o", l5x)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "note: ")
	out, err := os.ReadFile(l5x)
	require.NoError(t, err)
	assert.Contains(t, string(out), "OTE(MOTOR_RUN)")

	code, _, stderr = c.run("parse", "-hint", "rockwell", l5x)
	assert.Equal(t, 0, code, stderr)
}

func TestRun_GenerateFromPLCopen(t *testing.T) {
	c := newCLI(t)
	xml := c.path("motor.xml")
	res, err := pipeline.New(codec.DefaultOptions()).Emit(testutil.Motor(t), dialect.PLCopenNeutral, models.FinalizeOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(xml, res.Data, 0644))

	out := c.path("from-plcopen.smbp")
	code, _, stderr := c.run("generate", "-from-plcopen", xml, "-target", "m221", "-o", out)
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, out)
}

func TestRun_ExitCodes(t *testing.T) {
	c := newCLI(t)
	catch := c.writeModel(t, "catch.json", testutil.UnmappedCoil(t))
	loop := c.writeModel(t, "loop.yaml", testutil.PID(t))
	junk := c.path("junk.bin")
	require.NoError(t, os.WriteFile(junk, []byte("not a project"), 0644))
	broken := c.path("broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"name": `), 0644))

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"validation error", []string{"validate", catch}, 2},
		{"validation forced", []string{"validate", "-force", catch}, 0},
		{"emit refused", []string{"generate", "-from-json", catch, "-o", c.path("catch.smbp")}, 2},
		{"parse error", []string{"parse", broken}, 3},
		{"unknown input", []string{"parse", junk}, 4},
		{"unknown dialect", []string{"convert", junk, "-target", "fanuc"}, 4},
		{"untranslatable", []string{"generate", "-from-json", loop, "-target", "rockwell", "-o", c.path("loop.L5X")}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := c.run(tt.args...)
			assert.Equal(t, tt.want, code, "stdout: %s\nstderr: %s", stdout, stderr)
		})
	}

	t.Run("report printed", func(t *testing.T) {
		_, stdout, _ := c.run("validate", catch)
		assert.Contains(t, stdout, "1 error(s)")
		assert.Contains(t, stdout, "  - error UnmappedCoil")
	})

	t.Run("worst category wins", func(t *testing.T) {
		p := testutil.UnmappedCoil(t)
		p.Warnings.AddWarning(faults.KindResourceLimitExceeded, "Main", "2 rungs exceed limit 1")
		mixed := c.writeModel(t, "mixed.json", p)

		code, stdout, _ := c.run("validate", mixed)
		assert.Equal(t, 2, code)
		assert.Contains(t, stdout, "1 error(s), 1 warning(s)")

		code, stdout, stderr := c.run("validate", "-strict", mixed)
		assert.Equal(t, 5, code)
		assert.Contains(t, stdout, "2 error(s), 0 warning(s)")
		assert.Contains(t, stderr, "error: ResourceLimitExceeded")

		code, _, _ = c.run("generate", "-from-json", mixed, "-strict", "-o", c.path("mixed.smbp"))
		assert.Equal(t, 5, code)
	})

	t.Run("resource limit", func(t *testing.T) {
		t.Setenv("PLCFORGE_MAX_INPUT_BYTES", "8")
		code, _, _ := c.run("parse", junk)
		assert.Equal(t, 5, code)
	})
}

func TestRun_Inject(t *testing.T) {
	c := newCLI(t)
	tmplProject := models.NewProject("Template", dialect.SchneiderM241)
	require.NoError(t, tmplProject.UseCatalog("TM241CE40T"))
	tmpl, err := codesys.New().Encode(tmplProject, codec.DefaultOptions())
	require.NoError(t, err)
	template := c.path("base.project")
	require.NoError(t, os.WriteFile(template, tmpl, 0644))
	additions := c.writeModel(t, "additions.json", testutil.Additions(t))

	code, stdout, stderr := c.run("inject", template, "-additions", additions)
	require.Equal(t, 0, code, stderr)
	out := c.path("base_injected.project")
	assert.Contains(t, stdout, "wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	p, err := pipeline.New(codec.DefaultOptions()).Parse(data, "")
	require.NoError(t, err)
	assert.NotNil(t, p.POU("Motor_Control_ST"))
}

func TestNewServer(t *testing.T) {
	cfg := config.DefaultConfig()
	a := &app{
		cfg:    cfg,
		log:    logs.Discard(),
		engine: pipeline.New(cfg.CodecOptions()),
	}
	e := a.newServer(testutil.NewMockStorage())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
