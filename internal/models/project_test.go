package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
)

func placeAll(t *testing.T, r *Rung, elems []Element) {
	t.Helper()
	for _, e := range elems {
		p := Pos(e)
		require.NoError(t, r.Place(e, p.Row, p.Column))
	}
}

func seriesRung(in, out string) []Element {
	elems := []Element{&Contact{Placement: Placement{Connections: Left | Right}, Descriptor: in}}
	for c := 1; c < OutputColumn; c++ {
		elems = append(elems, &Line{Placement: Placement{Column: c, Connections: Left | Right}, Shape: LineHorizontal})
	}
	return append(elems, &Coil{Placement: Placement{Column: OutputColumn, Connections: Left | Right}, Descriptor: out, Storage: StorageNone})
}

func buildMotor(t *testing.T) *Project {
	t.Helper()
	p := NewProject("Motor", dialect.SchneiderM221)
	require.NoError(t, p.UseCatalog("TM221CE16T"))
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)
	for _, tag := range [][2]string{{"START_BTN", "%I0.0"}, {"STOP_BTN", "%I0.1"}, {"MOTOR_RUN", "%Q0.0"}} {
		_, err := u.AddTag(tag[0], tag[1], "", "", "")
		require.NoError(t, err)
	}
	r, err := u.AddRung("Seal-in", "Motor start/stop", "")
	require.NoError(t, err)
	placeAll(t, r, motorGrid())
	require.NoError(t, r.EmitIL())

	r2, err := u.AddRung("Output", "", "")
	require.NoError(t, err)
	placeAll(t, r2, seriesRung("%M0", "%Q0.0"))
	require.NoError(t, r2.EmitIL())
	return p
}

func TestBuilder_Motor(t *testing.T) {
	p := buildMotor(t)
	u := p.POU("main")
	require.NotNil(t, u)
	assert.Equal(t, []string{"LD    %I0.0", "OR    %M0", "ANDN  %I0.1", "ST    %M0"}, texts(u.Rungs[0].IL))
	assert.Equal(t, []string{"LD    %M0", "ST    %Q0.0"}, texts(u.Rungs[1].IL))
	assert.Equal(t, address.TypeBOOL, u.Tag("START_BTN").DataType)
	assert.Equal(t, ProgramScope("Main"), u.Tag("MOTOR_RUN").Scope)
	for _, r := range u.Rungs {
		assert.NoError(t, r.ValidateEquivalence())
	}

	rep, err := p.Finalize(FinalizeOptions{})
	require.NoError(t, err, rep.Summary())
	assert.True(t, rep.Empty())
	assert.True(t, p.Finalized())
}

func TestBuilder_DuplicatesAndRanges(t *testing.T) {
	p := NewProject("P", dialect.SchneiderM221)
	require.NoError(t, p.UseCatalog("TM221CE16T"))
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)

	_, err = p.AddPOU("Main", POUProgram, LangLD)
	assert.True(t, errors.Is(err, faults.KindDuplicateSymbol))

	_, err = u.AddTag("A", "%I0.0", "", "", "")
	require.NoError(t, err)
	_, err = u.AddTag("A", "%I0.1", "", "", "")
	assert.Equal(t, faults.KindDuplicateSymbol, faults.KindOf(err))

	// the same name is free in controller scope
	_, err = u.AddTag("A", "%I0.2", "", ScopeController, "")
	assert.NoError(t, err)

	// TM221CE16T has seven outputs, %Q0.0..%Q0.6
	_, err = u.AddTag("Lamp", "%Q0.9", "", "", "")
	assert.Equal(t, faults.KindAddressOutOfRange, faults.KindOf(err))

	_, err = u.AddTag("Bad", "%Q", "", "", "")
	assert.Equal(t, faults.KindMalformedAddress, faults.KindOf(err))

	_, err = u.AddInstance(Instance{Kind: InstanceTimer, Descriptor: "%TM300"})
	assert.Equal(t, faults.KindAddressOutOfRange, faults.KindOf(err))
}

func TestRungPlace(t *testing.T) {
	p := NewProject("P", dialect.SchneiderM221)
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)
	r, err := u.AddRung("", "", "")
	require.NoError(t, err)

	require.NoError(t, r.Place(&Contact{Descriptor: "%I0.0"}, 0, 0))
	err = r.Place(&Contact{Descriptor: "%I0.1"}, 0, 0)
	assert.Equal(t, faults.KindCellOccupied, faults.KindOf(err))
	err = r.Place(&Coil{Descriptor: "%Q0.0"}, 0, 11)
	assert.Equal(t, faults.KindGridOutOfBounds, faults.KindOf(err))
	err = r.Place(&Coil{Descriptor: "%Q0.0"}, -1, 10)
	assert.Equal(t, faults.KindGridOutOfBounds, faults.KindOf(err))
}

func TestLimits(t *testing.T) {
	p := NewProject("P", dialect.SchneiderM221)
	p.Limits.MaxPOUs = 1
	p.Limits.MaxRungsPerPOU = 1
	p.Limits.MaxElementsPerRung = 1
	u, err := p.AddPOU("A", POUProgram, LangLD)
	require.NoError(t, err)
	_, err = p.AddPOU("B", POUProgram, LangLD)
	assert.Equal(t, faults.KindResourceLimitExceeded, faults.KindOf(err))

	r, err := u.AddRung("", "", "")
	require.NoError(t, err)
	_, err = u.AddRung("", "", "")
	assert.Equal(t, faults.KindResourceLimitExceeded, faults.KindOf(err))

	require.NoError(t, r.Place(&Contact{Descriptor: "%I0.0"}, 0, 0))
	err = r.Place(&Contact{Descriptor: "%I0.1"}, 0, 1)
	assert.Equal(t, 5, faults.ExitCode(err))

	assert.Error(t, p.Limits.CheckInput(65<<20))
	assert.NoError(t, DefaultLimits().CheckInput(64<<20))
}

func TestFinalize_UnmappedCoil(t *testing.T) {
	p := NewProject("Catch", dialect.SchneiderM221)
	p.Hardware.Add(NewModule(0, ModuleDigitalIn, "", 8))
	p.Hardware.Add(NewModule(0, ModuleDigitalOut, "", 4))
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)
	r, err := u.AddRung("", "", "")
	require.NoError(t, err)
	placeAll(t, r, seriesRung("%I0.0", "%Q0.5"))
	require.NoError(t, r.EmitIL())

	rep, err := p.Finalize(FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.KindUnmappedCoil, faults.KindOf(err))
	assert.Contains(t, rep.Errors()[0].Path, "%Q0.5")
	assert.False(t, p.Finalized())
	assert.Equal(t, 2, faults.ExitCode(err))

	rep, err = p.Finalize(FinalizeOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, rep.HasWarnings())
	assert.True(t, p.Finalized())
}

func TestFinalize_WorstCategoryDecides(t *testing.T) {
	p := NewProject("Mixed", dialect.SchneiderM221)
	p.Hardware.Add(NewModule(0, ModuleDigitalIn, "", 8))
	p.Hardware.Add(NewModule(0, ModuleDigitalOut, "", 4))
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)
	r, err := u.AddRung("", "", "")
	require.NoError(t, err)
	placeAll(t, r, seriesRung("%I0.0", "%Q0.5"))
	require.NoError(t, r.EmitIL())

	aux, err := p.AddPOU("Aux", POUProgram, LangLD)
	require.NoError(t, err)
	for _, out := range []string{"%M1", "%M2"} {
		r, err := aux.AddRung("", "", "")
		require.NoError(t, err)
		placeAll(t, r, seriesRung("%I0.1", out))
		require.NoError(t, r.EmitIL())
	}
	p.Limits.MaxRungsPerPOU = 1

	rep, err := p.Finalize(FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.KindUnmappedCoil, rep.Errors()[0].Kind)
	assert.Equal(t, faults.KindResourceLimitExceeded, faults.KindOf(err))
	assert.Equal(t, 5, faults.ExitCode(err))
}

func TestFinalize_LoneCoil(t *testing.T) {
	p := NewProject("Lone", dialect.SchneiderM221)
	require.NoError(t, p.UseCatalog("TM221CE16T"))
	u, err := p.AddPOU("Main", POUProgram, LangLD)
	require.NoError(t, err)
	r, err := u.AddRung("", "", "")
	require.NoError(t, err)
	require.NoError(t, r.Place(&Coil{Descriptor: "%Q0.0"}, 0, OutputColumn))

	_, err = p.Finalize(FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, faults.KindInvariantViolation, faults.KindOf(err))
	assert.Contains(t, err.Error(), "no conductive path")
}

func TestFinalize_ViewsDisagree(t *testing.T) {
	p := buildMotor(t)
	u := p.POUs[0]
	require.NoError(t, u.Rungs[1].SetIL(mustListing(t, "LD %M0\nSTN %Q0.0")))

	_, err := p.Finalize(FinalizeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ladder and IL views differ")
}

func TestFinalize_UnresolvedSymbol(t *testing.T) {
	p := buildMotor(t)
	r, err := p.POUs[0].AddRung("", "", "")
	require.NoError(t, err)
	placeAll(t, r, seriesRung("UNKNOWN_TAG", "%M5"))
	require.NoError(t, r.EmitIL())

	_, err = p.Finalize(FinalizeOptions{})
	assert.Equal(t, faults.KindUnresolvedSymbol, faults.KindOf(err))
}

func TestFinalize_StrictUpgradesWarnings(t *testing.T) {
	p := buildMotor(t)
	p.Warnings.AddWarning(faults.KindTimeBaseRounded, "%TM0", "2500ms rounded")

	rep, err := p.Clone().Finalize(FinalizeOptions{})
	require.NoError(t, err)
	assert.True(t, rep.HasWarnings())

	_, err = p.Finalize(FinalizeOptions{Strict: true})
	assert.Equal(t, faults.KindTimeBaseRounded, faults.KindOf(err))
}

func TestFinalize_FreezesProject(t *testing.T) {
	p := buildMotor(t)
	_, err := p.Finalize(FinalizeOptions{})
	require.NoError(t, err)

	_, err = p.AddPOU("Other", POUProgram, LangLD)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project is finalized")
	err = p.POUs[0].Rungs[0].Place(&Contact{Descriptor: "%I0.2"}, 5, 0)
	assert.Equal(t, faults.KindInvariantViolation, faults.KindOf(err))

	c := p.Clone()
	assert.False(t, c.Finalized())
	_, err = c.AddPOU("Other", POUProgram, LangLD)
	assert.NoError(t, err)
}

func TestFinalize_Scenario2Presets(t *testing.T) {
	p := NewProject("Lights", dialect.SchneiderM221)
	require.NoError(t, p.UseCatalog("TM221CE16T"))
	u, err := p.AddPOU("Main", POUProgram, LangIL)
	require.NoError(t, err)
	for i, d := range []string{"%TM0", "%TM1", "%TM2"} {
		_, err := u.AddInstance(Instance{Kind: InstanceTimer, Descriptor: d, Type: "TON", Preset: 3, Base: address.Base1s})
		require.NoError(t, err, i)
	}
	listings := []string{
		"LD %I0.0\nOR %M0\nANDN %I0.1\nST %M0",
		"LD %M0\nST %Q0.0",
		"BLK %TM0\nLD %M0\nIN\nOUT_BLK\nLD Q\nST %Q0.1\nEND_BLK",
		"BLK %TM1\nLD %TM0.Q\nIN\nOUT_BLK\nLD Q\nST %Q0.2\nEND_BLK",
		"BLK %TM2\nLD %TM1.Q\nIN\nOUT_BLK\nLD Q\nST %Q0.3\nEND_BLK",
	}
	for _, src := range listings {
		r, err := u.AddRung("", "", "")
		require.NoError(t, err)
		require.NoError(t, r.SetIL(mustListing(t, src)))
		require.NoError(t, r.SyncGrid())
	}
	tm, ok := u.Rungs[2].At(0, 1).(*Timer)
	require.True(t, ok)
	assert.Equal(t, int64(3), tm.Preset)
	assert.Equal(t, address.Base1s, tm.Base)

	rep, err := p.Finalize(FinalizeOptions{})
	require.NoError(t, err, rep.Summary())
}

func TestSyncGridFillsSymbols(t *testing.T) {
	p := buildMotor(t)
	r := p.POUs[0].Rungs[0]
	require.NoError(t, r.SyncGrid())
	c, ok := r.At(0, 0).(*Contact)
	require.True(t, ok)
	assert.Equal(t, "START_BTN", c.Symbol)
}

func TestCatalogIO(t *testing.T) {
	mods, ok := CatalogIO("tm221ce16t")
	require.True(t, ok)
	h := Hardware{Modules: mods}
	assert.Equal(t, 9, h.ChannelCount(ModuleDigitalIn))
	assert.Equal(t, 7, h.ChannelCount(ModuleDigitalOut))
	assert.NotNil(t, h.Lookup(address.Bit(address.AreaQ, 0, 6)))
	assert.Nil(t, h.Lookup(address.Bit(address.AreaQ, 0, 7)))

	mods, ok = CatalogIO("TM221C16R")
	require.True(t, ok)
	h = Hardware{Modules: mods}
	assert.Empty(t, h.OfType(ModuleEthernet))
	assert.Empty(t, h.OfType(ModulePulseTrain))

	_, ok = CatalogIO("TM999")
	assert.False(t, ok)
}

func TestLadderEquivalent(t *testing.T) {
	a := buildMotor(t)
	b := a.Clone()
	b.Author = "someone else"
	assert.True(t, LadderEquivalent(a, b))

	b.POUs[0].Rungs[1].IL[1].Op = OpS
	diffs := LadderDiff(a, b)
	require.NotEmpty(t, diffs)
	assert.Contains(t, diffs[0], "IL differs")

	c := a.Clone()
	c.POUs[0].Tags[0].Address = "%I0.5"
	assert.False(t, LadderEquivalent(a, c))
}
