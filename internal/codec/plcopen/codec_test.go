package plcopen

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plc-visualizer/plcforge/internal/address"
	"github.com/plc-visualizer/plcforge/internal/codec"
	"github.com/plc-visualizer/plcforge/internal/dialect"
	"github.com/plc-visualizer/plcforge/internal/faults"
	"github.com/plc-visualizer/plcforge/internal/models"
	"github.com/plc-visualizer/plcforge/internal/testutil"
)

func encode(t *testing.T, p *models.Project) []byte {
	t.Helper()
	out, err := New().Encode(p, codec.DefaultOptions())
	require.NoError(t, err)
	return out
}

func decode(t *testing.T, data string) *models.Project {
	t.Helper()
	p, err := New().Decode([]byte(data), codec.DefaultOptions())
	require.NoError(t, err)
	return p
}

func document(t *testing.T, data []byte) projectXML {
	t.Helper()
	var doc projectXML
	require.NoError(t, xml.Unmarshal(data, &doc))
	return doc
}

func listing(r *models.Rung) string {
	lines := make([]string, len(r.IL))
	for i, in := range r.IL {
		lines[i] = strings.Join(strings.Fields(in.Text()), " ")
	}
	return strings.Join(lines, "\n")
}

func count(items []ldItem, local string) int {
	n := 0
	for _, it := range items {
		if it.XMLName.Local == local {
			n++
		}
	}
	return n
}

func TestEncode_Motor(t *testing.T) {
	out := encode(t, testutil.Motor(t))
	assert.True(t, strings.HasPrefix(string(out), xml.Header+`<project xmlns="`+Namespace+`">`))
	assert.True(t, strings.HasSuffix(string(out), "</project>\n"))

	doc := document(t, out)
	assert.Equal(t, "2024-03-01T08:30:00Z", doc.FileHeader.CreationDateTime)
	assert.Equal(t, "plcforge", doc.FileHeader.CompanyName)
	assert.Equal(t, "Motor", doc.ContentHeader.Name)
	assert.Equal(t, 1, doc.ContentHeader.CoordinateInfo.LD.X)
	require.Len(t, doc.Types.POUs, 1)
	pou := doc.Types.POUs[0]
	assert.Equal(t, "program", pou.POUType)
	require.NotNil(t, pou.Body.LD)
	items := pou.Body.LD.Items

	t.Run("one left rail and two rung comments", func(t *testing.T) {
		assert.Equal(t, 1, count(items, "leftPowerRail"))
		assert.Equal(t, "leftPowerRail", items[0].XMLName.Local)
		assert.Equal(t, 1, items[0].LocalID)
		assert.Equal(t, 2, count(items, "comment"))
		assert.Equal(t, "Seal-in\nStart latches, stop breaks", items[1].Content.Text)
		assert.Equal(t, 0, count(items, "rightPowerRail"))
	})

	t.Run("localIds are monotonic and every reference resolves", func(t *testing.T) {
		ids := map[int]bool{}
		for i, it := range items {
			assert.Equal(t, i+1, it.LocalID)
			ids[it.LocalID] = true
		}
		for _, it := range items {
			for _, c := range connections(&it) {
				assert.True(t, ids[c.RefLocalID], "refLocalId %d", c.RefLocalID)
			}
		}
	})

	t.Run("contacts name bound tags", func(t *testing.T) {
		var vars []string
		for _, it := range items {
			if it.XMLName.Local == "contact" {
				vars = append(vars, it.Variable+"/"+it.Negated)
			}
		}
		assert.Equal(t, []string{"START_BTN/", "%M0/", "STOP_BTN/true", "%M0/"}, vars)
	})

	t.Run("controller tags are global variables", func(t *testing.T) {
		require.Len(t, doc.Instances.Configurations, 1)
		res := doc.Instances.Configurations[0].Resources
		require.Len(t, res, 1)
		require.Len(t, res[0].GlobalVars, 3)
		v := res[0].GlobalVars[2]
		assert.Equal(t, "MOTOR_RUN", v.Name)
		assert.Equal(t, "%Q0.0", v.Address)
		assert.Equal(t, "<BOOL/>", v.Type.Inner)
		assert.Equal(t, "Motor contactor", v.Documentation.Text)
	})

	t.Run("hardware rides in addData", func(t *testing.T) {
		ext := findExtension(doc.AddData)
		require.NotNil(t, ext)
		assert.Equal(t, "preserve", doc.AddData.Data[0].HandleUnknown)
		assert.Equal(t, "TM221CE16T", ext.Catalog)
		assert.Equal(t, string(dialect.SchneiderM221), ext.Target)
		assert.NotEmpty(t, ext.Modules)
		require.Len(t, ext.POUs, 1)
		assert.Len(t, ext.POUs[0].Rungs, 2)
	})
}

func TestRoundTrip(t *testing.T) {
	ldLights := func(tb testing.TB) *models.Project {
		p := testutil.Lights(tb)
		p.POUs[0].Language = models.LangLD
		return p
	}
	for name, build := range map[string]func(testing.TB) *models.Project{
		"motor":      testutil.Motor,
		"lights IL":  testutil.Lights,
		"lights LD":  ldLights,
		"pid":        testutil.PID,
		"st":         testutil.Additions,
		"empty pous": emptyPOUs,
	} {
		t.Run(name, func(t *testing.T) {
			p := build(t)
			first := encode(t, p)
			back, err := New().Decode(first, codec.DefaultOptions())
			require.NoError(t, err)
			assert.Empty(t, models.LadderDiff(p, back))
			assert.Equal(t, p.Created, back.Created)
			assert.Equal(t, p.Target, back.Target)
			assert.Equal(t, string(first), string(encode(t, back)))
		})
	}
}

func emptyPOUs(tb testing.TB) *models.Project {
	p := models.NewProject("Blank", dialect.PLCopenNeutral)
	p.Created = testutil.Created
	_, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(tb, err)
	_, err = p.AddPOU("Helper", models.POUFunctionBlock, models.LangIL)
	require.NoError(tb, err)
	return p
}

func TestRoundTrip_Preserves(t *testing.T) {
	p := testutil.Lights(t)
	p.Notes = append(p.Notes, "converted from smbp")
	p.POUs[0].Rungs[1].LadderSelected = false
	back, err := New().Decode(encode(t, p), codec.DefaultOptions())
	require.NoError(t, err)

	u := back.POU("Main")
	require.NotNil(t, u)
	require.Len(t, u.Instances, 3)
	in := u.Instance("%TM1")
	require.NotNil(t, in)
	assert.Equal(t, address.Base1s, in.Base)
	assert.Equal(t, int64(3), in.Preset)
	assert.Equal(t, []string{"converted from smbp"}, back.Notes)
	assert.False(t, u.Rungs[1].LadderSelected)
	assert.True(t, u.Rungs[0].LadderSelected)
	assert.Equal(t, "Light 2", u.Rungs[2].Name)
	assert.Equal(t, dialect.Firmware16Plus, back.Firmware)
}

func TestEncode_PIDUsesRightRail(t *testing.T) {
	doc := document(t, encode(t, testutil.PID(t)))
	items := doc.Types.POUs[0].Body.LD.Items
	require.Equal(t, 1, count(items, "rightPowerRail"))
	assert.Equal(t, 2, count(items, "inVariable"))
	assert.Equal(t, 1, count(items, "outVariable"))

	var blk *ldItem
	for i := range items {
		if items[i].XMLName.Local == "block" {
			blk = &items[i]
		}
	}
	require.NotNil(t, blk)
	assert.Equal(t, "PID", blk.TypeName)
	assert.Equal(t, "PID1", blk.InstanceName)
	require.NotNil(t, blk.Inputs)
	assert.Equal(t, "EN", blk.Inputs.Variables[0].FormalParameter)
	assert.Equal(t, "SP", blk.Inputs.Variables[1].FormalParameter)
	assert.Equal(t, "ENO", blk.Outputs.Variables[0].FormalParameter)

	rail := items[len(items)-1]
	assert.Equal(t, "rightPowerRail", rail.XMLName.Local)
	require.Len(t, rail.In, 1)
	assert.Equal(t, blk.LocalID, rail.In[0].Connections[0].RefLocalID)
	assert.Equal(t, "ENO", rail.In[0].Connections[0].FormalParameter)
}

func TestEncode_TimerBlock(t *testing.T) {
	p := testutil.Lights(t)
	p.POUs[0].Language = models.LangLD
	doc := document(t, encode(t, p))
	items := doc.Types.POUs[0].Body.LD.Items
	var blocks []ldItem
	presets := map[int]string{}
	for _, it := range items {
		switch it.XMLName.Local {
		case "block":
			blocks = append(blocks, it)
		case "inVariable":
			presets[it.LocalID] = it.Expression
		}
	}
	require.Len(t, blocks, 3)
	b := blocks[0]
	assert.Equal(t, "TON", b.TypeName)
	assert.Equal(t, "%TM0", b.InstanceName)
	pt := formal(b.Inputs, "PT")
	require.NotNil(t, pt)
	assert.Equal(t, "T#3s", presets[pt.In.Connections[0].RefLocalID])
	assert.NotNil(t, formal(b.Outputs, "Q"))
	assert.NotNil(t, formal(b.Outputs, "ET"))
}

const foreign = `<?xml version="1.0" encoding="utf-8"?>
<project xmlns="http://www.plcopen.org/xml/tc6_0200">
  <fileHeader companyName="Acme" productName="IDE" productVersion="2" creationDateTime="2023-11-05T10:00:00"/>
  <contentHeader name="Foreign">
    <coordinateInfo><fbd><scaling x="1" y="1"/></fbd><ld><scaling x="1" y="1"/></ld><sfc><scaling x="1" y="1"/></sfc></coordinateInfo>
  </contentHeader>
  <types>
    <dataTypes/>
    <pous>
      <pou name="Main" pouType="program">
        <interface>
          <localVars>
            <variable name="Count"><type><derived name="MyInt"/></type><initialValue><simpleValue value="5"/></initialValue></variable>
          </localVars>
        </interface>
        <body>
          <LD>
            <leftPowerRail localId="1"><position x="0" y="0"/><connectionPointOut/></leftPowerRail>
            <comment localId="2" height="30" width="400"><position x="0" y="0"/><content><xhtml xmlns="http://www.w3.org/1999/xhtml">Start
Either button runs the pump</xhtml></content></comment>
            <contact localId="3" vendorColour="red"><position x="40" y="30"/><connectionPointIn><connection refLocalId="1"/></connectionPointIn><connectionPointOut/><variable>A</variable></contact>
            <contact localId="4"><position x="40" y="60"/><connectionPointIn><connection refLocalId="1"/></connectionPointIn><connectionPointOut/><variable>B</variable></contact>
            <contact localId="5" negated="true"><position x="80" y="30"/><connectionPointIn><connection refLocalId="3"/><connection refLocalId="4"/></connectionPointIn><connectionPointOut/><variable>STOP</variable></contact>
            <coil localId="6"><position x="400" y="30"/><connectionPointIn><connection refLocalId="5"/></connectionPointIn><connectionPointOut/><variable>PUMP</variable></coil>
            <coil localId="7" storage="set"><position x="400" y="60"/><connectionPointIn><connection refLocalId="6"/></connectionPointIn><connectionPointOut/><variable>RAN</variable></coil>
            <comment localId="8" height="30" width="400"><position x="0" y="90"/><content><xhtml xmlns="http://www.w3.org/1999/xhtml">Delay</xhtml></content></comment>
            <contact localId="9"><position x="40" y="120"/><connectionPointIn><connection refLocalId="1"/></connectionPointIn><connectionPointOut/><variable>PUMP</variable></contact>
            <inVariable localId="10"><position x="40" y="150"/><connectionPointOut/><expression>T#5s</expression></inVariable>
            <block localId="11" typeName="TON" instanceName="T1"><position x="120" y="120"/>
              <inputVariables>
                <variable formalParameter="IN"><connectionPointIn><connection refLocalId="9"/></connectionPointIn></variable>
                <variable formalParameter="PT"><connectionPointIn><connection refLocalId="10"/></connectionPointIn></variable>
              </inputVariables>
              <outputVariables>
                <variable formalParameter="Q"><connectionPointOut/></variable>
              </outputVariables>
            </block>
            <coil localId="12"><position x="400" y="120"/><connectionPointIn><connection refLocalId="11" formalParameter="Q"/></connectionPointIn><connectionPointOut/><variable>ALARM</variable></coil>
          </LD>
        </body>
      </pou>
    </pous>
  </types>
  <instances><configurations/></instances>
</project>
`

func TestDecode_Foreign(t *testing.T) {
	p := decode(t, foreign)
	assert.Equal(t, dialect.PLCopenNeutral, p.Target)
	assert.Equal(t, "Foreign", p.Name)
	u := p.POU("Main")
	require.NotNil(t, u)
	assert.Equal(t, models.LangLD, u.Language)
	require.Len(t, u.Rungs, 2)

	t.Run("parallel contacts become an OR branch", func(t *testing.T) {
		r := u.Rungs[0]
		assert.Equal(t, "Start", r.Name)
		assert.Equal(t, "Either button runs the pump", r.Comment)
		assert.Equal(t, "LD A\nOR B\nANDN STOP\nST PUMP\nS RAN", listing(r))
		require.NoError(t, r.ValidateEquivalence())
	})

	t.Run("undeclared timer is declared from its preset", func(t *testing.T) {
		r := u.Rungs[1]
		assert.Equal(t, "BLK T1\nLD PUMP\nIN\nOUT_BLK\nLD Q\nST ALARM\nEND_BLK", listing(r))
		in := u.Instance("T1")
		require.NotNil(t, in)
		assert.Equal(t, models.InstanceTimer, in.Kind)
		assert.Equal(t, int64(5000), in.Preset)
		assert.Equal(t, address.Base1ms, in.Base)
	})

	t.Run("local variables", func(t *testing.T) {
		tag := u.Tag("Count")
		require.NotNil(t, tag)
		assert.Equal(t, "MyInt", tag.DataType)
		assert.Equal(t, "5", tag.Initial)
	})

	t.Run("unknown attribute is a warning", func(t *testing.T) {
		warnings := p.Warnings.Warnings()
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Message, "vendorColour")
	})
}

func TestDecode_FactoredBranch(t *testing.T) {
	p := models.NewProject("Branch", dialect.PLCopenNeutral)
	p.Created = testutil.Created
	u, err := p.AddPOU("Main", models.POUProgram, models.LangLD)
	require.NoError(t, err)
	testutil.AddILRung(t, u, "", "", "LD X\nAND( A\nOR B\n)\nOR C\nST Q")

	out := encode(t, p)
	back, err := New().Decode(out, codec.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, listing(u.Rungs[0]), listing(back.POUs[0].Rungs[0]))
	assert.Equal(t, string(out), string(encode(t, back)))
}

func TestDecode_Errors(t *testing.T) {
	motor := string(encode(t, testutil.Motor(t)))
	for _, tc := range []struct {
		name string
		doc  string
		kind faults.Kind
	}{
		{"unknown namespace", strings.Replace(motor, Namespace, "http://www.plcopen.org/xml/tc6_0300", 1), faults.KindSchemaViolation},
		{"dangling connection", strings.Replace(motor, `refLocalId="3"`, `refLocalId="99"`, 1), faults.KindDanglingConnection},
		{"duplicate localId", strings.Replace(motor, `localId="3"`, `localId="2"`, 1), faults.KindSchemaViolation},
		{"second left rail", strings.Replace(motor, `<comment localId="2"`, `<leftPowerRail localId="999"><position x="0" y="0"></position></leftPowerRail><comment localId="2"`, 1), faults.KindSchemaViolation},
		{"truncated", motor[:len(motor)/2], faults.KindParseError},
		{"bad pouType", strings.Replace(motor, `pouType="program"`, `pouType="class"`, 1), faults.KindSchemaViolation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Decode([]byte(tc.doc), codec.DefaultOptions())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	t.Run("input limit", func(t *testing.T) {
		opts := codec.DefaultOptions()
		opts.Limits.MaxInputBytes = 64
		_, err := New().Decode([]byte(motor), opts)
		assert.ErrorIs(t, err, faults.KindResourceLimitExceeded)
	})
}

func TestSniff(t *testing.T) {
	c := New()
	assert.True(t, c.Sniff(encode(t, testutil.Motor(t))))
	assert.True(t, c.Sniff([]byte(foreign)))
	assert.False(t, c.Sniff([]byte(`<project xmlns="urn:other"/>`)))
	assert.False(t, c.Sniff([]byte(`<ProjectDescriptor/>`)))
	assert.False(t, c.Sniff([]byte("PK\x03\x04")))
}
