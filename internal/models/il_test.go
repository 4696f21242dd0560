package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

func TestInstructionText(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: OpLD, Operand: "%I0.0"}, "LD    %I0.0"},
		{Instruction{Op: OpANDN, Operand: "%I0.1"}, "ANDN  %I0.1"},
		{Instruction{Op: OpOutBLK}, "OUT_BLK"},
		{Instruction{Op: OpEndBLK}, "END_BLK"},
		{Instruction{Op: OpANDP, Operand: "%M1"}, "AND(  %M1"},
		{Instruction{Op: OpExpr, Operand: "%MW0 := 5"}, "[ %MW0 := 5 ]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Text())
	}
}

func TestParseInstruction(t *testing.T) {
	in, err := ParseInstruction("  ldn   %I0.3 (* stop *)")
	require.NoError(t, err)
	assert.Equal(t, OpLDN, in.Op)
	assert.Equal(t, "%I0.3", in.Operand)
	assert.Equal(t, "stop", in.Comment)

	in, err = ParseInstruction("OR(%M2")
	require.NoError(t, err)
	assert.Equal(t, OpORP, in.Op)
	assert.Equal(t, "%M2", in.Operand)

	_, err = ParseInstruction("MOV %MW0")
	assert.Error(t, err)
}

func TestParseIL_Scenario2Timer(t *testing.T) {
	src := "BLK %TM0\nLD %M0\nIN\nOUT_BLK\nLD Q\nST %Q0.1\nEND_BLK"
	nets, err := ParseIL(mustListing(t, src), func(d string) Element {
		return &Timer{Descriptor: d, Type: TimerTON, Preset: 3}
	})
	require.NoError(t, err)
	require.Len(t, nets, 1)
	require.NotNil(t, nets[0].Block)
	tm, ok := nets[0].Block.Element.(*Timer)
	require.True(t, ok)
	assert.Equal(t, int64(3), tm.Preset)
	assert.Equal(t, "BLK %TM0 IN(%M0) {@Q => coil/none %Q0.1}", nets[0].Canonical())
	assert.Equal(t, []string{"BLK   %TM0", "LD    %M0", "IN", "OUT_BLK", "LD    Q", "ST    %Q0.1", "END_BLK"}, texts(RenderIL(nets)))
}

func TestParseIL_SplitsNetworks(t *testing.T) {
	nets, err := ParseIL(mustListing(t, "LD %I0.0\nST %Q0.0\nST %Q0.1\nLD %I0.1\nS %M0"), nil)
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Len(t, nets[0].Drives[0].Outputs, 2)
	assert.Len(t, nets[1].Drives[0].Outputs, 1)
}

func TestParseIL_CallOutput(t *testing.T) {
	nets, err := ParseIL(mustListing(t, "LD %M10\nCAL PID1(SP := %MW10, PV := %IW0.0, OUT => %QW0.0)"), nil)
	require.NoError(t, err)
	fb, ok := nets[0].Drives[0].Outputs[0].(*FunctionBlock)
	require.True(t, ok)
	assert.Equal(t, "PID1", fb.Instance)
	assert.Equal(t, []Binding{{Pin: "SP", Expr: "%MW10"}, {Pin: "PV", Expr: "%IW0.0"}}, fb.Inputs)
	assert.Equal(t, []Binding{{Pin: "OUT", Expr: "%QW0.0"}}, fb.Outputs)
	assert.Equal(t, "PID1(SP := %MW10, PV := %IW0.0, OUT => %QW0.0)", fb.Call())
}

func TestParseIL_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"output without condition", "ST %Q0.0"},
		{"unbalanced close", "LD %I0.0\n)\nST %Q0.0"},
		{"unclosed paren", "LD %I0.0\nAND( %I0.1\nST %Q0.0"},
		{"missing END_BLK", "BLK %TM0\nLD %I0.0\nIN\nOUT_BLK\nLD Q\nST %Q0.0"},
		{"dangling condition", "LD %I0.0\nAND %I0.1"},
		{"output in block input", "BLK %TM0\nLD %I0.0\nST %Q0.0"},
		{"nested block", "BLK %TM0\nBLK %TM1"},
		{"block output not from pin", "BLK %TM0\nLD %I0.0\nIN\nOUT_BLK\nLD %I0.1\nST %Q0.0\nEND_BLK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIL(mustListing(t, tt.src), nil)
			require.Error(t, err)
			assert.Equal(t, faults.KindParseError, faults.KindOf(err))
		})
	}
}

func TestParseComparison(t *testing.T) {
	c, err := ParseComparison("%MW0≥%MW1")
	require.NoError(t, err)
	assert.Equal(t, "%MW0 >= %MW1", c.Expression())

	c, err = ParseComparison("[ %MW3 <> 7 ]")
	require.NoError(t, err)
	assert.Equal(t, "<>", c.Op)

	_, err = ParseComparison("%MW0")
	assert.Error(t, err)
}

func TestDirections(t *testing.T) {
	d, err := ParseDirections("Left, Up")
	require.NoError(t, err)
	assert.Equal(t, "Up,Left", d.String())
	assert.True(t, d.Has(Up))
	assert.False(t, d.Has(Down))

	_, err = ParseDirections("Sideways")
	assert.Error(t, err)
}

func TestExprConstruction(t *testing.T) {
	a, b := Lit("a", false), Lit("b", true)
	assert.Nil(t, And(a, nil))
	assert.Equal(t, ExprTrue, Or(a, True()).Kind)
	assert.Same(t, a, And(True(), a))
	assert.Equal(t, "&(!b,a)", And(a, b).Canonical())
	assert.Equal(t, "&(!b,a)", And(b, a).Canonical())
	assert.Equal(t, "a AND !b", And(a, b).String())

	pin, rest, ok := And(Pin("Q"), a, b).SplitPin()
	require.True(t, ok)
	assert.Equal(t, "Q", pin)
	assert.Equal(t, "&(!b,a)", rest.Canonical())

	_, _, ok = Or(Pin("Q"), a).SplitPin()
	assert.False(t, ok)
}

func TestExprNormal(t *testing.T) {
	x, a, b, c := Lit("%I0.0", false), Lit("%I0.1", false), Lit("%I0.2", false), Lit("%I0.3", false)
	factored := And(x, Or(And(a, c), b))
	expanded := Or(And(x, a, c), And(x, b))

	assert.NotEqual(t, factored.Canonical(), expanded.Canonical())
	assert.Equal(t, expanded.Normal(), factored.Normal())
	assert.Equal(t, "|(&(%I0.0,%I0.1,%I0.3),&(%I0.0,%I0.2))", factored.Normal())

	assert.Equal(t, "%I0.0", And(x, x).Normal())
	assert.Equal(t, "TRUE", True().Normal())
	assert.Equal(t, "<none>", (*Expr)(nil).Normal())
}
