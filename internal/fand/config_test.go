package fand_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/internal/fand"
	"github.com/northbridge-labs/emcfan/pkg/fancurve"
)

func TestDefaultConfigValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, fand.DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name   string
		mutate func(c *fand.Config)
		errMsg string
	}{
		{
			name:   "zero poll interval",
			mutate: func(c *fand.Config) { c.PollInterval = 0 },
			errMsg: "poll interval",
		},
		{
			name:   "unknown mode",
			mutate: func(c *fand.Config) { c.Mode = "hardware" },
			errMsg: "mode",
		},
		{
			name:   "single point curve",
			mutate: func(c *fand.Config) { c.Curve.Steps = c.Curve.Steps[:1] },
			errMsg: "curve",
		},
		{
			name: "curve speed drops",
			mutate: func(c *fand.Config) {
				c.Curve.Steps = []fancurve.Step{
					{Temperature: 30, Percent: 50},
					{Temperature: 40, Percent: 25},
				}
			},
			errMsg: "curve",
		},
		{
			name:   "negative hysteresis",
			mutate: func(c *fand.Config) { c.CriticalHysteresis = -1 },
			errMsg: "hysteresis",
		},
		{
			name: "critical below the high limit",
			mutate: func(c *fand.Config) {
				c.ExternalHighLimit = 70
				c.CriticalTemperature = 65
			},
			errMsg: "critical temperature",
		},
		{
			name: "tach limit without tach input",
			mutate: func(c *fand.Config) {
				c.TachInput = false
				c.TachLimitRPM = 500
			},
			errMsg: "tach",
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := fand.DefaultConfig()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "emcfand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bus: 3
poll_interval: 2s
mode: lut
external_high_limit: 55
critical_temperature: 70
curve:
  steps:
    - temperature: 20
      percent: 10
    - temperature: 50
      percent: 100
`), 0o644))

	cfg, err := fand.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Bus)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, fand.ModeLUT, cfg.Mode)
	assert.Equal(t, 55.0, cfg.ExternalHighLimit)
	assert.Equal(t, []fancurve.Step{
		{Temperature: 20, Percent: 10},
		{Temperature: 50, Percent: 100},
	}, cfg.Curve.Steps)

	// Unset keys keep their defaults.
	assert.Equal(t, ":9666", cfg.MetricsAddr)
	assert.True(t, cfg.TachInput)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := fand.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "emcfand.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: banana\n"), 0o644))

	_, err := fand.Load(path)
	assert.ErrorContains(t, err, "invalid config")
}
