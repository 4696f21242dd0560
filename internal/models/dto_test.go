package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/faults"
)

func TestDocRoundTrip(t *testing.T) {
	p := buildMotor(t)
	p.Author = "ops"
	p.AddNote("imported from bench")
	_, err := p.POUs[0].AddInstance(Instance{Kind: InstanceTimer, Descriptor: "%TM0", Type: "TON", Preset: 3})
	require.NoError(t, err)

	codecs := []struct {
		name   string
		encode func(*Project) ([]byte, error)
		decode func([]byte, Limits) (*Project, error)
	}{
		{"json", EncodeJSON, DecodeJSON},
		{"yaml", EncodeYAML, DecodeYAML},
		{"msgpack", EncodeMsgpack, DecodeMsgpack},
	}
	for _, c := range codecs {
		t.Run(c.name, func(t *testing.T) {
			data, err := c.encode(p)
			require.NoError(t, err)
			back, err := c.decode(data, DefaultLimits())
			require.NoError(t, err)

			assert.Empty(t, LadderDiff(p, back))
			want, got := ToDoc(p), ToDoc(back)
			if diff := cmp.Diff(want.POUs, got.POUs, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("POUs mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.Tags, got.Tags, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("tags mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "ops", back.Author)
			assert.Equal(t, "TM221CE16T", back.Catalog)
			assert.Equal(t, p.Stats(), back.Stats())
			assert.Equal(t, []string{"imported from bench"}, back.Notes)
			require.NotNil(t, back.POUs[0].Instance("%TM0"))
			assert.Equal(t, int64(3), back.POUs[0].Instance("%TM0").Preset)
		})
	}
}

func TestFromDoc_FillsMissingView(t *testing.T) {
	src := `{
  "name": "Half",
  "target": "Schneider-M221",
  "pous": [{
    "name": "Main",
    "kind": "program",
    "language": "LD",
    "rungs": [
      {"il": ["LD %I0.0", "ST %Q0.0"]},
      {"elements": [
        {"type": "NormalContact", "row": 0, "column": 0, "descriptor": "%I0.1"},
        {"type": "Line", "row": 0, "column": 1, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 2, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 3, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 4, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 5, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 6, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 7, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 8, "shape": "horizontal"},
        {"type": "Line", "row": 0, "column": 9, "shape": "horizontal"},
        {"type": "Coil", "row": 0, "column": 10, "descriptor": "%Q0.1"}
      ]}
    ]
  }]
}`
	p, err := DecodeJSON([]byte(src), DefaultLimits())
	require.NoError(t, err)
	rungs := p.POUs[0].Rungs
	require.Len(t, rungs, 2)
	assert.NotEmpty(t, rungs[0].Elements)
	assert.Equal(t, []string{"LD    %I0.1", "ST    %Q0.1"}, texts(rungs[1].IL))
	for _, r := range rungs {
		assert.NoError(t, r.ValidateEquivalence())
	}
}

func TestDecodeJSON_Errors(t *testing.T) {
	_, err := DecodeJSON([]byte("{\n  \"name\": \"x\",\n  oops\n}"), DefaultLimits())
	require.Error(t, err)
	assert.Equal(t, faults.KindParseError, faults.KindOf(err))
	var fe *faults.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.Line)

	_, err = DecodeJSON([]byte(`{"name": "x", "pous": [], "colour": "red"}`), DefaultLimits())
	assert.Equal(t, faults.KindSchemaViolation, faults.KindOf(err))

	_, err = DecodeJSON([]byte(`{"name": "x", "target": "vax", "pous": []}`), DefaultLimits())
	assert.Equal(t, faults.KindSchemaViolation, faults.KindOf(err))

	_, err = DecodeJSON([]byte(`{"name": "x", "pous": [{"name": "Main", "rungs": [{"il": ["LD %I0.0", "FOO"]}]}]}`), DefaultLimits())
	assert.Equal(t, faults.KindParseError, faults.KindOf(err))
}

func TestDecodeYAML_UnknownField(t *testing.T) {
	_, err := DecodeYAML([]byte("name: x\npous: []\nextra: 1\n"), DefaultLimits())
	assert.Equal(t, faults.KindParseError, faults.KindOf(err))
}
