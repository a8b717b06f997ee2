package fand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/fancurve"
)

func TestLUTEntries(t *testing.T) {
	t.Parallel()

	curve := DefaultConfig().Curve

	// 16 PWM steps: 25% and 50% land on steps 4 and 8.
	entries, err := lutEntries(curve, 15)
	require.NoError(t, err)
	assert.Equal(t, []emc2101.LUTEntry{
		{TempC: 30, Step: 4},
		{TempC: 45, Step: 8},
		{TempC: 60, Step: 15},
	}, entries)

	// The same curve on the 64-step DAC range.
	entries, err = lutEntries(curve, 63)
	require.NoError(t, err)
	assert.Equal(t, []emc2101.LUTEntry{
		{TempC: 30, Step: 16},
		{TempC: 45, Step: 32},
		{TempC: 60, Step: 63},
	}, entries)
}

func TestLUTEntriesThinning(t *testing.T) {
	t.Parallel()

	// 15 curve points must shrink to the 8 slots the chip has, keeping
	// both end points.
	var curve fancurve.Config
	for i := 0; i < 15; i++ {
		curve.Steps = append(curve.Steps, fancurve.Step{
			Temperature: float64(10 + 5*i),
			Percent:     uint8(20 + 5*i),
		})
	}

	entries, err := lutEntries(curve, 15)
	require.NoError(t, err)
	require.Len(t, entries, 8)
	assert.Equal(t, uint8(10), entries[0].TempC)
	assert.Equal(t, uint8(80), entries[7].TempC)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].TempC, entries[i-1].TempC)
		assert.GreaterOrEqual(t, entries[i].Step, entries[i-1].Step)
	}
}

func TestLUTEntriesCollapsesWholeDegreeDuplicates(t *testing.T) {
	t.Parallel()

	curve := fancurve.Config{Steps: []fancurve.Step{
		{Temperature: 30.2, Percent: 20},
		{Temperature: 30.4, Percent: 30},
		{Temperature: 40, Percent: 50},
	}}

	entries, err := lutEntries(curve, 15)
	require.NoError(t, err)
	assert.Equal(t, []emc2101.LUTEntry{
		{TempC: 30, Step: 3},
		{TempC: 40, Step: 8},
	}, entries)
}

func TestLUTEntriesRejectsOutOfRangeTemperatures(t *testing.T) {
	t.Parallel()

	for _, temp := range []float64{-0.5, 101} {
		curve := fancurve.Config{Steps: []fancurve.Step{
			{Temperature: temp, Percent: 20},
			{Temperature: 110, Percent: 100},
		}}
		_, err := lutEntries(curve, 15)
		assert.Error(t, err, "temperature %g", temp)
	}
}
