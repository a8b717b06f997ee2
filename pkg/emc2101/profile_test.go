package emc2101_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, emc2101.GenericPWMProfile().Validate())
	require.NoError(t, emc2101.GenericDACProfile().Validate())

	testcases := []struct {
		name    string
		mutate  func(p *emc2101.FanProfile)
		wantErr error
	}{
		{
			name:    "unknown kind",
			mutate:  func(p *emc2101.FanProfile) { p.Kind = "voltage" },
			wantErr: emc2101.ErrValueRange,
		},
		{
			name:    "duty bounds inverted",
			mutate:  func(p *emc2101.FanProfile) { p.MinDutyCycle = 80; p.MaxDutyCycle = 20 },
			wantErr: emc2101.ErrValueRange,
		},
		{
			name:    "duty cycle above 100",
			mutate:  func(p *emc2101.FanProfile) { p.Steps[3].DutyCycle = 120 },
			wantErr: emc2101.ErrValueRange,
		},
		{
			name:    "steps not increasing",
			mutate:  func(p *emc2101.FanProfile) { p.Steps[4].Step = p.Steps[3].Step },
			wantErr: emc2101.ErrNonMonotonic,
		},
		{
			name:    "duty cycle drops",
			mutate:  func(p *emc2101.FanProfile) { p.Steps[5].DutyCycle = 10 },
			wantErr: emc2101.ErrNonMonotonic,
		},
		{
			name:    "rpm drops",
			mutate:  func(p *emc2101.FanProfile) { p.Steps[6].RPM = 100 },
			wantErr: emc2101.ErrNonMonotonic,
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := emc2101.GenericPWMProfile()
			tc.mutate(p)
			assert.ErrorIs(t, p.Validate(), tc.wantErr)
		})
	}
}

func TestProfileStepForRPM(t *testing.T) {
	t.Parallel()

	p := emc2101.GenericPWMProfile()
	require.True(t, p.HasRPM())

	testcases := []struct {
		rpm  int
		step uint8
	}{
		{rpm: 980, step: 7},  // exact hit
		{rpm: 1000, step: 7}, // 980 is relatively closer than 1120
		{rpm: 0, step: 3},    // floors at the slowest calibrated point
		{rpm: 9000, step: 15},
	}
	for _, tc := range testcases {
		step, err := p.StepForRPM(tc.rpm)
		require.NoError(t, err)
		assert.Equal(t, tc.step, step, "%d RPM", tc.rpm)
	}

	_, err := p.StepForRPM(-1)
	assert.ErrorIs(t, err, emc2101.ErrValueRange)

	// A profile without tach data cannot serve RPM requests.
	_, err = emc2101.GenericDACProfile().StepForRPM(1000)
	assert.ErrorIs(t, err, emc2101.ErrConfiguration)
}

func TestProfileStepLookups(t *testing.T) {
	t.Parallel()

	p := emc2101.GenericPWMProfile()

	rpm, ok := p.RPMForStep(10)
	assert.True(t, ok)
	assert.Equal(t, 1400, rpm)
	_, ok = p.RPMForStep(2) // below the usable range
	assert.False(t, ok)

	duty, ok := p.DutyForStep(8)
	assert.True(t, ok)
	assert.InDelta(t, 53.3, duty, 0.01)
	_, ok = p.DutyForStep(16)
	assert.False(t, ok)
}

func TestProfileSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "noctua-nf-a4.yaml")
	orig := emc2101.GenericPWMProfile()
	orig.Model = "Noctua NF-A4x20"

	require.NoError(t, emc2101.SaveProfile(path, orig))

	loaded, err := emc2101.LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, loaded)
}

func TestProfileSaveRejectsInvalid(t *testing.T) {
	t.Parallel()

	p := emc2101.GenericPWMProfile()
	p.Kind = "broken"

	path := filepath.Join(t.TempDir(), "broken.yaml")
	err := emc2101.SaveProfile(path, p)
	assert.ErrorIs(t, err, emc2101.ErrValueRange)
	assert.NoFileExists(t, path)
}

func TestLoadProfileErrors(t *testing.T) {
	t.Parallel()

	_, err := emc2101.LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	garbled := filepath.Join(t.TempDir(), "garbled.yaml")
	require.NoError(t, os.WriteFile(garbled, []byte("steps: [not a map"), 0o644))
	_, err = emc2101.LoadProfile(garbled)
	assert.Error(t, err)

	// Parses fine but fails validation.
	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(
		"model: test\nkind: pwm\nmin_duty_cycle: 90\nmax_duty_cycle: 10\n"), 0o644))
	_, err = emc2101.LoadProfile(invalid)
	assert.ErrorIs(t, err, emc2101.ErrValueRange)
}
