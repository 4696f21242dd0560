package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

func TestTranslate_MotorToRockwell(t *testing.T) {
	p := testutil.Motor(t)
	out, err := Translate(p, dialect.RockwellLogix)
	require.NoError(t, err)

	assert.Equal(t, dialect.RockwellLogix, out.Target)
	assert.Equal(t, dialect.SchneiderM221, out.SourceDialect)
	assert.Empty(t, out.Catalog)
	assert.Equal(t, "Local:1:I.Data[0].0", out.Tag("START_BTN").Address)
	assert.Equal(t, "Local:1:I.Data[0].1", out.Tag("STOP_BTN").Address)
	assert.Equal(t, "Local:2:O.Data[0].0", out.Tag("MOTOR_RUN").Address)

	bit := out.Tag("Memory_Bit_0")
	require.NotNil(t, bit)
	assert.Equal(t, "BOOL", bit.DataType)
	assert.Empty(t, bit.Address)

	u := out.POU("Main")
	assert.Equal(t, []string{
		"LD Local:1:I.Data[0].0", "OR Memory_Bit_0", "ANDN Local:1:I.Data[0].1", "ST Memory_Bit_0",
	}, listing(u.Rungs[0]))
	assert.Equal(t, []string{"LD Memory_Bit_0", "ST Local:2:O.Data[0].0"}, listing(u.Rungs[1]))
	for _, r := range u.Rungs {
		assert.NoError(t, r.ValidateEquivalence())
	}
	for _, e := range u.Rungs[0].Elements {
		if c, ok := e.(*models.Contact); ok && c.Descriptor == "Local:1:I.Data[0].0" {
			assert.Equal(t, "START_BTN", c.Symbol)
		}
	}

	assert.Equal(t, []string{address.NoteRockwellIO, address.NoteRockwellMemory}, out.Notes)
	assert.Equal(t, "%I0.0", p.Tag("START_BTN").Address)
}

func TestTranslate_SameDialect(t *testing.T) {
	p := testutil.Motor(t)
	out, err := Translate(p, dialect.SchneiderM221)
	require.NoError(t, err)
	assert.NotSame(t, p, out)
	assert.Equal(t, dialect.SchneiderM221, out.SourceDialect)
	assert.Empty(t, models.LadderDiff(p, out))
	assert.Empty(t, out.Notes)
}

func TestTranslate_TaggedMemory(t *testing.T) {
	p := models.NewProject("Flag", dialect.SchneiderM221)
	_, err := p.AddTag("RUN_FLAG", "%M0", "", "Run latch")
	require.NoError(t, err)
	u, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	testutil.AddILRung(t, u, "", "", "LD %M0\nST %Q0.0")

	out, err := Translate(p, dialect.RockwellLogix)
	require.NoError(t, err)
	flag := out.Tag("RUN_FLAG")
	require.NotNil(t, flag)
	assert.Empty(t, flag.Address)
	assert.Equal(t, "BOOL", flag.DataType)
	assert.Nil(t, out.Tag("Memory_Bit_0"))
	assert.Equal(t, []string{"LD RUN_FLAG", "ST Local:2:O.Data[0].0"}, listing(out.POU("Main").Rungs[0]))
}

func TestTranslate_TimersToRockwell(t *testing.T) {
	out, err := Translate(testutil.Lights(t), dialect.RockwellLogix)
	require.NoError(t, err)

	u := out.POU("Main")
	for i, in := range u.Instances {
		assert.Equal(t, "Timer_"+string(rune('0'+i)), in.Descriptor)
		assert.Equal(t, int64(3000), in.Preset)
		assert.Equal(t, address.Base1ms, in.Base)
	}
	assert.Nil(t, out.Tag("Timer_0"))
	assert.Equal(t, "LD Timer_0.DN", listing(u.Rungs[3])[1])
	for _, e := range u.Rungs[2].Elements {
		if tm, ok := e.(*models.Timer); ok {
			assert.Equal(t, "Timer_0", tm.Descriptor)
			assert.Equal(t, int64(3000), tm.Preset)
		}
	}
	assert.Contains(t, out.Notes, address.NoteRockwellTimers)
}

func TestTranslate_Rounding(t *testing.T) {
	p := models.NewProject("Slow", dialect.SchneiderM221)
	u, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	_, err = u.AddInstance(models.Instance{
		Kind: models.InstanceTimer, Descriptor: "%TM0", Type: string(models.TimerTON),
		Preset: 40001, Base: address.Base1ms,
	})
	require.NoError(t, err)

	out, err := Translate(p, dialect.SiemensS7)
	require.NoError(t, err)
	in := out.POU("Main").Instances[0]
	assert.Equal(t, int64(400), in.Preset)
	assert.Equal(t, address.Base100ms, in.Base)
	require.Len(t, out.Warnings.Warnings(), 1)
	assert.Equal(t, faults.KindTimeBaseRounded, out.Warnings.Warnings()[0].Kind)
	assert.Contains(t, out.Notes, NotePresetRounded)
}

func TestTranslate_Downcast(t *testing.T) {
	p := testutil.Motor(t)
	_, err := p.AddTag("DELAY", "", address.TypeTIME, "Debounce time")
	require.NoError(t, err)

	out, err := Translate(p, dialect.RockwellLogix)
	require.NoError(t, err)
	assert.Equal(t, address.TypeDINT, out.Tag("DELAY").DataType)
	require.Len(t, out.Warnings.Warnings(), 1)
	assert.Equal(t, faults.KindTypeDowncast, out.Warnings.Warnings()[0].Kind)
	assert.Equal(t, "Motor/DELAY", out.Warnings.Warnings()[0].Path)
	assert.Contains(t, out.Notes, NoteTypesNarrowed)
}

func TestTranslate_Errors(t *testing.T) {
	t.Run("untranslatable operand", func(t *testing.T) {
		_, err := Translate(testutil.PID(t), dialect.RockwellLogix)
		assert.ErrorIs(t, err, faults.KindUntranslatableAddress)
	})

	t.Run("invalid target", func(t *testing.T) {
		_, err := Translate(testutil.Motor(t), dialect.Dialect("Omron-CJ"))
		assert.ErrorIs(t, err, faults.KindUnsupportedFeature)
	})
}

func TestTranslate_RockwellToSchneider(t *testing.T) {
	src, err := Translate(testutil.Motor(t), dialect.RockwellLogix)
	require.NoError(t, err)

	back, err := Translate(src, dialect.SchneiderM221)
	require.NoError(t, err)
	assert.Equal(t, "%I0.0", back.Tag("START_BTN").Address)
	assert.Equal(t, "%Q0.0", back.Tag("MOTOR_RUN").Address)
	assert.Equal(t, []string{"LD Memory_Bit_0", "ST %Q0.0"}, listing(back.POU("Main").Rungs[1]))
}
