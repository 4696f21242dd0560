package faults

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	var r Report
	r.AddError(KindUnmappedCoil, "Main/Seal-in", "%%Q0.7 has no hardware channel")
	r.AddWarning(KindTimeBaseRounded, "Main/Delay", "preset rounded to 10 ms")
	r.Add(SeverityNote, KindTypeDowncast, "", "TIME stored as DINT")
	return &r
}

func TestReport_Filters(t *testing.T) {
	r := sampleReport()

	require.Len(t, r.Errors(), 1)
	require.Len(t, r.Warnings(), 1)
	assert.True(t, r.HasErrors())
	assert.True(t, r.HasWarnings())
	assert.False(t, r.Empty())
	assert.Equal(t, "%Q0.7 has no hardware channel", r.Errors()[0].Message)

	var empty Report
	assert.True(t, empty.Empty())
	assert.NoError(t, empty.Err())
	assert.Equal(t, CategoryNone, empty.Worst())
}

func TestReport_Err(t *testing.T) {
	r := sampleReport()
	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, KindUnmappedCoil)
	assert.Equal(t, 2, ExitCode(err))

	r.AddError(KindDuplicateSymbol, "", "START_BTN declared twice")
	assert.Contains(t, r.Err().Error(), "(and 1 more)")
	assert.ErrorIs(t, r.Err(), KindUnmappedCoil)
}

func TestReport_ErrCarriesWorstCategory(t *testing.T) {
	r := sampleReport()
	r.AddError(KindUntranslatableAddress, "%TM9", "no rule")
	r.AddError(KindResourceLimitExceeded, "Aux", "2 rungs exceed limit 1")
	r.AddError(KindUnsupportedFeature, "", "PID")

	err := r.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, KindResourceLimitExceeded)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Aux", fe.Path)
	assert.Equal(t, 5, ExitCode(err))
	assert.Contains(t, err.Error(), "(and 3 more)")
}

func TestReport_Modes(t *testing.T) {
	t.Run("downgrade", func(t *testing.T) {
		r := sampleReport()
		r.Downgrade()
		assert.False(t, r.HasErrors())
		assert.Len(t, r.Warnings(), 2)
		assert.NoError(t, r.Err())
	})

	t.Run("upgrade", func(t *testing.T) {
		r := sampleReport()
		r.Upgrade()
		assert.Len(t, r.Errors(), 2)
		assert.False(t, r.HasWarnings())
		assert.Len(t, r.Diagnostics, 3, "notes are left alone")
	})
}

func TestReport_Worst(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, CategoryValidation, r.Worst())
	r.AddError(KindUntranslatableAddress, "%TM9", "no rule")
	assert.Equal(t, CategoryUnsupported, r.Worst())
}

func TestReport_Merge(t *testing.T) {
	var r Report
	r.Merge(nil)
	r.Merge(sampleReport())
	assert.Len(t, r.Diagnostics, 3)
}

func TestReport_Summary(t *testing.T) {
	want := "1 error(s), 1 warning(s)\n" +
		"  - error UnmappedCoil Main/Seal-in: %Q0.7 has no hardware channel\n" +
		"  - warning TimeBaseRounded Main/Delay: preset rounded to 10 ms\n" +
		"  - note TypeDowncast: TIME stored as DINT\n"
	assert.Equal(t, want, sampleReport().Summary())
}
