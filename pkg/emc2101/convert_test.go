package emc2101_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

func TestPWMSettings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 22500, emc2101.DefaultPWMSettings.Frequency())
	assert.Equal(t, uint8(15), emc2101.DefaultPWMSettings.StepMax())

	// Unusable register pairs yield no frequency and no steps.
	assert.Equal(t, 0, emc2101.PWMSettings{F: 0, D: 1}.Frequency())
	assert.Equal(t, uint8(0), emc2101.PWMSettings{F: 0, D: 1}.StepMax())
	assert.Equal(t, 0, emc2101.PWMSettings{F: 8, D: 0}.Frequency())
}

func TestCalcPWMSettings(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		freqHz   int
		expected emc2101.PWMSettings
		achieved int
	}{
		{
			name:     "default 22.5 kHz",
			freqHz:   22500,
			expected: emc2101.PWMSettings{F: 0x08, D: 0x01},
			achieved: 22500,
		},
		{
			name:     "maximum 180 kHz",
			freqHz:   180000,
			expected: emc2101.PWMSettings{F: 0x01, D: 0x01},
			achieved: 180000,
		},
		{
			name:     "1.4 kHz needs the divider",
			freqHz:   1400,
			expected: emc2101.PWMSettings{F: 0x1A, D: 0x05},
			achieved: 1384,
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			pwm, err := emc2101.CalcPWMSettings(tc.freqHz)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, pwm)
			assert.Equal(t, tc.achieved, pwm.Frequency())
		})
	}

	for _, freq := range []int{0, -10, 180001, 1000000} {
		_, err := emc2101.CalcPWMSettings(freq)
		assert.ErrorIs(t, err, emc2101.ErrValueRange, "frequency %d", freq)
	}
}

func TestStepToDutyCycle(t *testing.T) {
	t.Parallel()

	// The documented 16-step resolution band: step 8 of 15 is 53.3%.
	duty := emc2101.StepToDutyCycle(8, emc2101.DefaultPWMSettings)
	assert.InDelta(t, 53.3, duty, 0.05)

	assert.Equal(t, 0.0, emc2101.StepToDutyCycle(0, emc2101.DefaultPWMSettings))
	assert.Equal(t, 100.0, emc2101.StepToDutyCycle(15, emc2101.DefaultPWMSettings))

	// Steps beyond the resolution clamp at 100%.
	assert.Equal(t, 100.0, emc2101.StepToDutyCycle(40, emc2101.DefaultPWMSettings))
}

// TestDutyCycleStepRoundTrip pins the documented rounding policy: nearest
// step, so every duty cycle a step produces converts back to that step.
func TestDutyCycleStepRoundTrip(t *testing.T) {
	t.Parallel()

	for _, pwm := range []emc2101.PWMSettings{
		emc2101.DefaultPWMSettings,
		{F: 0x01, D: 0x01},
		{F: 0x1F, D: 0x04},
	} {
		for step := uint8(0); step <= pwm.StepMax(); step++ {
			duty := emc2101.StepToDutyCycle(step, pwm)
			back, err := emc2101.DutyCycleToStep(duty, pwm)
			require.NoError(t, err)
			assert.Equal(t, step, back, "pwm %+v step %d duty %.3f", pwm, step, duty)
		}
	}
}

func TestDutyCycleToStepRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	for _, duty := range []float64{-0.1, 100.1, 200} {
		_, err := emc2101.DutyCycleToStep(duty, emc2101.DefaultPWMSettings)
		assert.ErrorIs(t, err, emc2101.ErrValueRange, "duty %.1f", duty)
	}
	_, err := emc2101.DutyCycleToStep(50, emc2101.PWMSettings{})
	assert.ErrorIs(t, err, emc2101.ErrValueRange)
}

func TestTachToRPM(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		count uint16
		rpm   int
		ok    bool
	}{
		{count: 0, rpm: 0, ok: false},
		{count: 0xFFFF, rpm: 0, ok: false}, // stopped or unmonitored
		{count: 2700, rpm: 2000, ok: true},
		{count: 5400, rpm: 1000, ok: true},
		{count: 1, rpm: 5400000, ok: true},
	}
	for _, tc := range testcases {
		rpm, ok := emc2101.TachToRPM(tc.count)
		assert.Equal(t, tc.ok, ok, "count %d", tc.count)
		assert.Equal(t, tc.rpm, rpm, "count %d", tc.count)
	}
}

func TestRPMToTach(t *testing.T) {
	t.Parallel()

	count, err := emc2101.RPMToTach(2000)
	require.NoError(t, err)
	assert.Equal(t, uint16(2700), count)

	_, err = emc2101.RPMToTach(emc2101.MinRPM - 1)
	assert.ErrorIs(t, err, emc2101.ErrValueRange)
	_, err = emc2101.RPMToTach(0)
	assert.ErrorIs(t, err, emc2101.ErrValueRange)
}

func TestTemperatureCodec(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name      string
		degC      float64
		msb, lsb  uint8
		effective float64
	}{
		{name: "whole positive", degC: 20, msb: 0x14, lsb: 0x00, effective: 20},
		{name: "half degree", degC: 21.5, msb: 0x15, lsb: 0x80, effective: 21.5},
		{name: "finest resolution", degC: 0.125, msb: 0x00, lsb: 0x20, effective: 0.125},
		{name: "quantized up", degC: 54.99, msb: 0x37, lsb: 0x00, effective: 55},
		{name: "negative fraction", degC: -0.125, msb: 0xFF, lsb: 0xE0, effective: -0.125},
		{name: "minimum", degC: -64, msb: 0xC0, lsb: 0x00, effective: -64},
		{name: "maximum", degC: 127.875, msb: 0x7F, lsb: 0xE0, effective: 127.875},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			msb, lsb, effective, err := emc2101.EncodeTemperature(tc.degC)
			require.NoError(t, err)
			assert.Equal(t, tc.msb, msb)
			assert.Equal(t, tc.lsb, lsb)
			assert.Equal(t, tc.effective, effective)
			assert.Equal(t, tc.effective, emc2101.DecodeTemperature(msb, lsb))
		})
	}

	for _, degC := range []float64{-64.1, 128, math.NaN()} {
		_, _, _, err := emc2101.EncodeTemperature(degC)
		assert.ErrorIs(t, err, emc2101.ErrValueRange, "temperature %v", degC)
	}
}

func TestEncodeWholeTemperature(t *testing.T) {
	t.Parallel()

	reg, effective, err := emc2101.EncodeWholeTemperature(84.6)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x55), reg)
	assert.Equal(t, 85.0, effective)

	reg, effective, err = emc2101.EncodeWholeTemperature(-10)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xF6), reg)
	assert.Equal(t, -10.0, effective)

	for _, degC := range []float64{-65, 127.6, math.NaN()} {
		_, _, err := emc2101.EncodeWholeTemperature(degC)
		assert.ErrorIs(t, err, emc2101.ErrValueRange, "temperature %v", degC)
	}
}

func FuzzTemperatureCodec(f *testing.F) {
	f.Add(0.0)
	f.Add(21.5)
	f.Add(-0.125)
	f.Add(-64.0)
	f.Add(127.875)
	f.Add(99.99)

	f.Fuzz(func(t *testing.T, degC float64) {
		msb, lsb, effective, err := emc2101.EncodeTemperature(degC)
		if err != nil {
			// Out of the representable domain; nothing to round-trip.
			return
		}
		assert.InDelta(t, degC, effective, 0.0625+1e-9)
		assert.Equal(t, effective, emc2101.DecodeTemperature(msb, lsb))
	})
}
