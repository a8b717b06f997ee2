package emc2101_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/util"
)

// linearAbove2 stalls below step 2 and gains 150 RPM per step above it,
// mimicking a fan with a dead zone at the bottom of the duty range.
func linearAbove2(step uint8) int {
	if step < 2 {
		return 0
	}
	return 150 * int(step)
}

func TestCalibrate(t *testing.T) {
	t.Parallel()

	dev, chip := newTestDevice(t, emc2101.Config{PinSix: emc2101.PinTacho, PWMFrequency: 22500})
	require.NoError(t, dev.Init())
	chip.SetFanModel(linearAbove2)

	// Park the fan mid-range so the restore is observable.
	_, err := dev.SetFanSpeed(5, emc2101.UnitStep)
	require.NoError(t, err)
	priorSpinup := chip.Register(emc2101.RegFanSpinup)

	profile, err := emc2101.Calibrate(context.Background(), dev, emc2101.CalibrationOptions{
		Model: "test fan",
		Clock: util.NewFakeClock(time.Now()),
	})
	require.NoError(t, err)

	assert.Equal(t, "test fan", profile.Model)
	assert.Equal(t, emc2101.ProfilePWM, profile.Kind)
	assert.Equal(t, 22500, profile.PWMFrequency)
	require.NoError(t, profile.Validate())
	assert.True(t, profile.HasRPM())

	// Steps 0 and 1 both read 0 RPM; the plateau prune keeps only the last
	// of them, then every step up to the top.
	require.Len(t, profile.Steps, 15)
	assert.Equal(t, uint8(1), profile.Steps[0].Step)
	assert.Equal(t, 0, profile.Steps[0].RPM)
	assert.Equal(t, uint8(2), profile.Steps[1].Step)
	assert.Equal(t, 300, profile.Steps[1].RPM)
	last := profile.Steps[len(profile.Steps)-1]
	assert.Equal(t, uint8(15), last.Step)
	assert.Equal(t, 2250, last.RPM)
	assert.InDelta(t, 100.0/15, profile.MinDutyCycle, 0.01)
	assert.Equal(t, 100.0, profile.MaxDutyCycle)

	step, err := profile.StepForRPM(1000)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), step) // 1050 RPM is relatively closest

	// The sweep restored the previous drive and spin-up behavior.
	assert.Equal(t, uint8(5), chip.Register(emc2101.RegFanSetting))
	assert.Equal(t, priorSpinup, chip.Register(emc2101.RegFanSpinup))
}

func TestCalibrateNeedsTachInput(t *testing.T) {
	t.Parallel()

	// Power-on default routes pin 6 to the alert output.
	dev, _ := newTestDevice(t, emc2101.Config{})

	_, err := emc2101.Calibrate(context.Background(), dev, emc2101.CalibrationOptions{
		Clock: util.NewFakeClock(time.Now()),
	})
	assert.ErrorIs(t, err, emc2101.ErrConfiguration)
}

func TestCalibrateNeedsManualControl(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t, emc2101.Config{PinSix: emc2101.PinTacho, PWMFrequency: 22500})
	require.NoError(t, dev.Init())
	require.NoError(t, dev.ProgramLookupTable([]emc2101.LUTEntry{{TempC: 40, Step: 8}}))

	_, err := emc2101.Calibrate(context.Background(), dev, emc2101.CalibrationOptions{
		Clock: util.NewFakeClock(time.Now()),
	})
	assert.ErrorIs(t, err, emc2101.ErrInvalidMode)
}

func TestCalibrateUnresponsiveFan(t *testing.T) {
	t.Parallel()

	dev, chip := newTestDevice(t, emc2101.Config{PinSix: emc2101.PinTacho, PWMFrequency: 22500})
	require.NoError(t, dev.Init())

	// A fan that ignores the drive signal entirely, e.g. one wired straight
	// to the supply rail.
	chip.SetFanModel(func(uint8) int { return 1800 })

	_, err := emc2101.Calibrate(context.Background(), dev, emc2101.CalibrationOptions{
		Clock: util.NewFakeClock(time.Now()),
	})
	assert.ErrorIs(t, err, emc2101.ErrConfiguration)

	// Even the failed run restores the drive state.
	assert.Equal(t, uint8(0), chip.Register(emc2101.RegFanSetting))
}

func TestCalibrateNoTachSignal(t *testing.T) {
	t.Parallel()

	dev, chip := newTestDevice(t, emc2101.Config{PinSix: emc2101.PinTacho, PWMFrequency: 22500})
	require.NoError(t, dev.Init())
	chip.SetFanModel(func(uint8) int { return 0 })

	_, err := emc2101.Calibrate(context.Background(), dev, emc2101.CalibrationOptions{
		Clock: util.NewFakeClock(time.Now()),
	})
	assert.ErrorIs(t, err, emc2101.ErrSensorFault)
}

func TestCalibrateCanceled(t *testing.T) {
	t.Parallel()

	dev, chip := newTestDevice(t, emc2101.Config{PinSix: emc2101.PinTacho, PWMFrequency: 22500})
	require.NoError(t, dev.Init())
	chip.SetFanModel(linearAbove2)

	// The real clock never fires within the test: cancellation is the only
	// way out of the first warmup wait.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := emc2101.Calibrate(ctx, dev, emc2101.CalibrationOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
