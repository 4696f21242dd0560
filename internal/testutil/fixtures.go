// fixtures.go - Sample projects shared by codec, pipeline and API tests
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/models"
)

// Created is the timestamp stamped on every fixture project.
var Created = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

// SealIn is the IL of the motor seal-in rung.
const SealIn = "LD %I0.0\nOR %M0\nANDN %I0.1\nST %M0"

func newProject(t testing.TB, name string, target dialect.Dialect, catalog string) *models.Project {
	t.Helper()
	p := models.NewProject(name, target)
	p.Author = "plcforge"
	p.Created = Created
	if catalog != "" {
		require.NoError(t, p.UseCatalog(catalog))
	}
	return p
}

// AddILRung appends a rung written as IL and lays out its grid.
func AddILRung(t testing.TB, u *models.POU, name, comment, listing string) *models.Rung {
	t.Helper()
	r, err := u.AddRung(name, comment, "")
	require.NoError(t, err)
	ins, err := models.ParseListing(listing)
	require.NoError(t, err)
	require.NoError(t, r.SetIL(ins))
	require.NoError(t, r.SyncGrid())
	return r
}

// Motor is the motor start/stop program on a TM221CE16T: a seal-in rung on
// %M0 and a rung copying %M0 to the motor output.
func Motor(t testing.TB) *models.Project {
	t.Helper()
	p := newProject(t, "Motor", dialect.SchneiderM221, "TM221CE16T")
	for _, tag := range []struct{ name, addr, comment string }{
		{"START_BTN", "%I0.0", "Start push button"},
		{"STOP_BTN", "%I0.1", "Stop push button"},
		{"MOTOR_RUN", "%Q0.0", "Motor contactor"},
	} {
		_, err := p.AddTag(tag.name, tag.addr, "", tag.comment)
		require.NoError(t, err)
	}
	u, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	AddILRung(t, u, "Seal-in", "Start latches, stop breaks", SealIn)
	AddILRung(t, u, "Motor", "", "LD %M0\nST %Q0.0")
	return p
}

// Lights runs four lights in sequence: the seal-in enables %Q0.0 and three
// one-second-base TON timers of preset 3 cascade through %Q0.1..%Q0.3.
func Lights(t testing.TB) *models.Project {
	t.Helper()
	p := newProject(t, "Sequential_Lights", dialect.SchneiderM221, "TM221CE16T")
	p.Firmware = dialect.Firmware16Plus
	u, err := p.AddPOU("Main", models.POUProgram, models.LangIL)
	require.NoError(t, err)
	for _, d := range []string{"%TM0", "%TM1", "%TM2"} {
		_, err := u.AddInstance(models.Instance{
			Kind: models.InstanceTimer, Descriptor: d, Type: string(models.TimerTON),
			Preset: 3, Base: address.Base1s,
		})
		require.NoError(t, err)
	}
	AddILRung(t, u, "Enable", "", SealIn)
	AddILRung(t, u, "Light 1", "", "LD %M0\nST %Q0.0")
	AddILRung(t, u, "Light 2", "", "BLK %TM0\nLD %M0\nIN\nOUT_BLK\nLD Q\nST %Q0.1\nEND_BLK")
	AddILRung(t, u, "Light 3", "", "BLK %TM1\nLD %TM0.Q\nIN\nOUT_BLK\nLD Q\nST %Q0.2\nEND_BLK")
	AddILRung(t, u, "Light 4", "", "BLK %TM2\nLD %TM1.Q\nIN\nOUT_BLK\nLD Q\nST %Q0.3\nEND_BLK")
	return p
}

// UnmappedCoil drives %Q0.5 on a controller with four digital outputs.
func UnmappedCoil(t testing.TB) *models.Project {
	t.Helper()
	p := newProject(t, "Catch", dialect.SchneiderM221, "")
	p.Hardware.Add(models.NewModule(0, models.ModuleDigitalIn, "", 8))
	p.Hardware.Add(models.NewModule(0, models.ModuleDigitalOut, "", 4))
	u, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	AddILRung(t, u, "", "", "LD %I0.0\nST %Q0.5")
	return p
}

// PID calls a PID instance from a memory-bit enable.
func PID(t testing.TB) *models.Project {
	t.Helper()
	p := newProject(t, "Loop", dialect.SchneiderM221, "TM221CE16T")
	u, err := p.AddPOU("Control", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	_, err = u.AddInstance(models.Instance{Kind: models.InstancePID, Descriptor: "PID1", Type: "PID"})
	require.NoError(t, err)
	_, err = u.AddTag("SETPOINT", "%MW10", address.TypeINT, "", "Level setpoint")
	require.NoError(t, err)
	AddILRung(t, u, "Loop", "", "LD %M10\nCAL PID1(SP := %MW10, PV := %IW0.0, OUT => %MW20)")
	return p
}

// MotorControlST is the body of the structured-text motor POU.
const MotorControlST = `IF START_BTN AND NOT STOP_BTN THEN
    MOTOR_RUN := TRUE;
ELSIF STOP_BTN THEN
    MOTOR_RUN := FALSE;
END_IF;`

// GVLIO declares the motor I/O as globals.
const GVLIO = `VAR_GLOBAL
    START_BTN AT %IX0.0 : BOOL;
    STOP_BTN AT %IX0.1 : BOOL;
    MOTOR_RUN AT %QX0.0 : BOOL;
END_VAR`

// Additions carries one ST program and one global variable list for
// injection into a CODESYS template.
func Additions(t testing.TB) *models.Project {
	t.Helper()
	p := newProject(t, "Additions", dialect.SchneiderM241, "")
	u, err := p.AddPOU("Motor_Control_ST", models.POUProgram, models.LangST)
	require.NoError(t, err)
	u.Body = MotorControlST
	p.VarLists = append(p.VarLists, &models.VarList{Name: "GVL_IO", Body: GVLIO})
	return p
}
