package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Dialect
	}{
		{"Schneider-M221", SchneiderM221},
		{"schneider-m241", SchneiderM241},
		{" Rockwell-Logix ", RockwellLogix},
		{"m221", SchneiderM221},
		{"SMBP", SchneiderM221},
		{"l5x", RockwellLogix},
		{"s7", SiemensS7},
		{"fx", MitsubishiFX},
		{"codesys", CodesysGeneric},
		{"tc6", PLCopenNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := Parse("fanuc")
		assert.EqualError(t, err, `unknown dialect: "fanuc"`)
	})
}

func TestDialect_Predicates(t *testing.T) {
	for _, d := range All {
		assert.True(t, d.Valid(), d)
	}
	assert.False(t, Dialect("Fanuc").Valid())

	assert.True(t, SchneiderM241.IsSchneider())
	assert.False(t, CodesysGeneric.IsSchneider())

	assert.True(t, CodesysGeneric.UsesIEC())
	assert.True(t, PLCopenNeutral.UsesIEC())
	assert.False(t, RockwellLogix.UsesIEC())
	assert.False(t, MitsubishiFX.UsesIEC())
}

func TestParseFirmware(t *testing.T) {
	tests := []struct {
		in   string
		want SchneiderFirmware
	}{
		{"", Firmware16Plus},
		{"1.6+", Firmware16Plus},
		{"legacy", FirmwareLegacy},
		{"Timer", FirmwareLegacy},
		{"1.5", FirmwareLegacy},
		{"1.6", Firmware16Plus},
		{"2.0.1", Firmware16Plus},
		{"garbage", Firmware16Plus},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFirmware(tt.in))
		})
	}
}
