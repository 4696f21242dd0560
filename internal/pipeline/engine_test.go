package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/codec/codesys"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

func engine() *Engine {
	return New(codec.DefaultOptions())
}

func emit(t *testing.T, e *Engine, p *models.Project, d dialect.Dialect) *Result {
	t.Helper()
	res, err := e.Emit(p, d, models.FinalizeOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Data)
	return res
}

func listing(r *models.Rung) []string {
	var out []string
	for _, in := range r.IL {
		out = append(out, strings.TrimSpace(string(in.Op)+" "+in.Operand))
	}
	return out
}

func zipEntries(t *testing.T, data []byte) int {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return len(zr.File)
}

func TestEmit_Motor(t *testing.T) {
	e := engine()
	res := emit(t, e, testutil.Motor(t), "")
	out := string(res.Data)

	assert.Equal(t, "smbp", res.Codec.Name())
	assert.Contains(t, out, "<InstructionLine>LD    %I0.0</InstructionLine>")
	assert.Contains(t, out, "<Symbol>MOTOR_RUN</Symbol>")
	assert.False(t, res.Report.HasErrors())

	back, err := e.Parse(res.Data, "")
	require.NoError(t, err)
	u := back.POU("Main")
	require.NotNil(t, u)
	require.Len(t, u.Rungs, 2)
	assert.Equal(t, []string{"LD %I0.0", "OR %M0", "ANDN %I0.1", "ST %M0"}, listing(u.Rungs[0]))
	assert.Empty(t, models.LadderDiff(testutil.Motor(t), back))
}

func TestEmit_Lights(t *testing.T) {
	e := engine()
	res := emit(t, e, testutil.Lights(t), dialect.SchneiderM221)

	back, err := e.Parse(res.Data, dialect.SchneiderM221)
	require.NoError(t, err)
	u := back.POU("Main")
	require.NotNil(t, u)
	require.Len(t, u.Instances, 3)
	for i, in := range u.Instances {
		assert.Equal(t, "%TM"+string(rune('0'+i)), in.Descriptor)
		assert.Equal(t, address.Base1s, in.Base)
		assert.Equal(t, int64(3), in.Preset)
	}
	assert.Equal(t, []string{"BLK %TM0", "LD %M0", "IN", "OUT_BLK", "LD Q", "ST %Q0.1", "END_BLK"}, listing(u.Rungs[2]))
}

func TestEmit_PLCopenRoundTrip(t *testing.T) {
	e := engine()
	first := emit(t, e, testutil.Motor(t), dialect.PLCopenNeutral)
	assert.Equal(t, "plcopen", first.Codec.Name())

	back, err := e.Parse(first.Data, "")
	require.NoError(t, err)
	second := emit(t, e, back, dialect.PLCopenNeutral)
	assert.Equal(t, string(first.Data), string(second.Data))
}

func TestEmit_Rockwell(t *testing.T) {
	e := engine()
	p := testutil.Motor(t)
	res := emit(t, e, p, dialect.RockwellLogix)
	out := string(res.Data)

	assert.Equal(t, "l5x", res.Codec.Name())
	assert.Contains(t, out, `<Text><![CDATA[[XIC(START_BTN),XIC(Memory_Bit_0)]XIO(STOP_BTN)OTE(Memory_Bit_0);]]></Text>`)
	assert.Contains(t, out, `<Text><![CDATA[XIC(Memory_Bit_0)OTE(MOTOR_RUN);]]></Text>`)
	assert.Contains(t, out, `AliasFor="Local:1:I.Data[0].0"`)
	assert.Contains(t, out, `AliasFor="Local:2:O.Data[0].0"`)
	assert.Contains(t, out, `<Tag Name="Memory_Bit_0" TagType="Base" DataType="BOOL"`)
	assert.Contains(t, res.Project.Notes, address.NoteRockwellIO)
	assert.Contains(t, res.Project.Notes, address.NoteRockwellMemory)

	t.Run("caller project untouched", func(t *testing.T) {
		assert.Equal(t, dialect.SchneiderM221, p.Target)
		assert.False(t, p.Finalized())
		assert.Equal(t, "%I0.0", p.Tag("START_BTN").Address)
		assert.Empty(t, p.Notes)
	})

	t.Run("read back", func(t *testing.T) {
		back, err := e.Parse(res.Data, "")
		require.NoError(t, err)
		assert.Equal(t, dialect.RockwellLogix, back.Target)
		assert.Empty(t, models.LadderDiff(res.Project, back))
	})
}

func TestEmit_RockwellTimers(t *testing.T) {
	res := emit(t, engine(), testutil.Lights(t), dialect.RockwellLogix)
	out := string(res.Data)

	assert.Contains(t, out, `<Text><![CDATA[[XIC(Memory_Bit_0)TON(Timer_0,3000,0),XIC(Timer_0.DN)OTE(Local:2:O.Data[0].1)];]]></Text>`)
	assert.Contains(t, out, `[XIC(Timer_0.DN)TON(Timer_1,3000,0),XIC(Timer_1.DN)OTE(Local:2:O.Data[0].2)];`)
	assert.Contains(t, out, `<Tag Name="Timer_2" TagType="Base" DataType="TIMER"`)
	assert.Contains(t, res.Project.Notes, address.NoteRockwellTimers)

	back, err := engine().Parse(res.Data, dialect.RockwellLogix)
	require.NoError(t, err)
	assert.Equal(t, models.LangIL, back.POU("Main").Language)
	assert.Empty(t, models.LadderDiff(res.Project, back))
}

func TestEmit_UnmappedCoil(t *testing.T) {
	p := testutil.UnmappedCoil(t)
	res, err := engine().Emit(p, "", models.FinalizeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, faults.KindUnmappedCoil)
	require.NotNil(t, res)
	assert.Nil(t, res.Data)
	assert.True(t, res.Report.HasErrors())
	assert.False(t, p.Finalized())

	t.Run("forced", func(t *testing.T) {
		res, err := engine().Emit(testutil.UnmappedCoil(t), "", models.FinalizeOptions{Force: true})
		require.NoError(t, err)
		assert.NotEmpty(t, res.Data)
		assert.True(t, res.Report.HasWarnings())
	})
}

func TestEmit_UnknownDialect(t *testing.T) {
	_, err := engine().Emit(testutil.Motor(t), dialect.Dialect("Omron-CJ"), models.FinalizeOptions{})
	assert.ErrorIs(t, err, faults.KindUnsupportedFeature)
}

func TestInject(t *testing.T) {
	e := engine()
	tmplProject := models.NewProject("Template", dialect.SchneiderM241)
	require.NoError(t, tmplProject.UseCatalog("TM241CE40T"))
	tmplProject.Created = testutil.Created
	tmpl, err := codesys.New().Encode(tmplProject, codec.DefaultOptions())
	require.NoError(t, err)

	add := testutil.Additions(t)
	res, err := e.Inject(tmpl, add, models.FinalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, zipEntries(t, tmpl)+4, zipEntries(t, res.Data))
	assert.Empty(t, add.POUs[0].GUID)
	assert.NotEmpty(t, res.Project.POUs[0].GUID)

	back, err := e.Parse(res.Data, "")
	require.NoError(t, err)
	require.NotNil(t, back.POU("Motor_Control_ST"))
	assert.Equal(t, testutil.MotorControlST, back.POU("Motor_Control_ST").Body)

	t.Run("not a template", func(t *testing.T) {
		smbp := emit(t, e, testutil.Motor(t), "")
		_, err := e.Inject(smbp.Data, testutil.Additions(t), models.FinalizeOptions{})
		assert.ErrorIs(t, err, faults.KindUnsupportedFeature)
	})
}

func TestParse_Detect(t *testing.T) {
	e := engine()
	for _, d := range []dialect.Dialect{
		dialect.SchneiderM221,
		dialect.SchneiderM241,
		dialect.PLCopenNeutral,
		dialect.RockwellLogix,
	} {
		t.Run(d.String(), func(t *testing.T) {
			res := emit(t, e, testutil.Motor(t), d)
			c, err := e.Detect(res.Data)
			require.NoError(t, err)
			assert.Equal(t, res.Codec.Name(), c.Name())
		})
	}

	t.Run("plain text", func(t *testing.T) {
		_, err := e.Parse([]byte("hello"), "")
		assert.ErrorIs(t, err, faults.KindUnknownObjectKind)
	})

	t.Run("foreign archive", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("readme.txt")
		require.NoError(t, err)
		_, err = w.Write([]byte("not a project"))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		_, err = e.Parse(buf.Bytes(), "")
		assert.ErrorIs(t, err, faults.KindUnknownObjectKind)
	})

	t.Run("input limit", func(t *testing.T) {
		opts := codec.DefaultOptions()
		opts.Limits.MaxInputBytes = 16
		_, err := New(opts).Parse(emit(t, e, testutil.Motor(t), "").Data, "")
		assert.ErrorIs(t, err, faults.KindResourceLimitExceeded)
	})
}

func TestConvert(t *testing.T) {
	e := engine()
	src := emit(t, e, testutil.Motor(t), dialect.PLCopenNeutral)

	res, err := e.Convert(src.Data, "", dialect.RockwellLogix, models.FinalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "l5x", res.Codec.Name())
	assert.Contains(t, string(res.Data), `XIC(Memory_Bit_0)OTE(MOTOR_RUN);`)
}

func TestValidate(t *testing.T) {
	e := engine()
	p := testutil.UnmappedCoil(t)

	rep, err := e.Validate(p, models.FinalizeOptions{})
	assert.ErrorIs(t, err, faults.KindUnmappedCoil)
	assert.True(t, rep.HasErrors())
	assert.False(t, p.Finalized())

	rep, err = e.Validate(testutil.Motor(t), models.FinalizeOptions{Strict: true})
	assert.NoError(t, err)
	assert.True(t, rep.Empty())
}
