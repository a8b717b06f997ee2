// Package fancurve maps temperatures to fan speeds through a piecewise
// linear curve. The daemon evaluates the curve in software or quantizes it
// into the chip's hardware lookup table.
package fancurve

import (
	"fmt"
	"sync"
)

// Controller turns a temperature into a fan speed.
type Controller interface {
	Override(opts *OverrideOpts)
	GetFanSpeed(temperature float64) uint8
}

// OverrideOpts pins the fan to a fixed speed, ignoring the curve.
type OverrideOpts struct {
	Percent uint8 `mapstructure:"percent"`
}

// Step is one point of the curve: at Temperature the fan runs at Percent.
type Step struct {
	// Temperature is the temperature to react to
	Temperature float64 `mapstructure:"temperature"`
	// Percent is the fan speed in percent
	Percent uint8 `mapstructure:"percent"`
}

// Config defines the temperature/speed points of the curve.
type Config struct {
	Steps []Step `mapstructure:"steps"`
}

// Validate checks that the curve is usable: at least two points, strictly
// increasing temperatures, speeds between 0 and 100 that never fall as
// temperature rises.
func (c Config) Validate() error {
	if len(c.Steps) < 2 {
		return fmt.Errorf("at least two steps must be defined")
	}
	for i, step := range c.Steps {
		if step.Percent > 100 {
			return fmt.Errorf("step %d: speed must be between 0 and 100", i)
		}
		if i == 0 {
			continue
		}
		if step.Temperature <= c.Steps[i-1].Temperature {
			return fmt.Errorf("step %d: temperature must be higher than step %d", i, i-1)
		}
		if step.Percent < c.Steps[i-1].Percent {
			return fmt.Errorf("step %d: speed must not be lower than step %d", i, i-1)
		}
	}
	return nil
}

// linearController interpolates linearly between the configured points.
type linearController struct {
	mu       sync.Mutex
	override *OverrideOpts
	config   Config
}

// NewLinearController creates a Controller from a validated curve.
func NewLinearController(config Config) (Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &linearController{config: config}, nil
}

func (f *linearController) Override(opts *OverrideOpts) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.override = opts
}

// GetFanSpeed returns the fan speed in percent for the given temperature.
// Below the first point the first speed holds, above the last point the
// last speed holds.
func (f *linearController) GetFanSpeed(temperature float64) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.override != nil {
		return f.override.Percent
	}

	steps := f.config.Steps
	if temperature <= steps[0].Temperature {
		return steps[0].Percent
	}
	last := steps[len(steps)-1]
	if temperature >= last.Temperature {
		return last.Percent
	}

	for i := 1; i < len(steps); i++ {
		if temperature > steps[i].Temperature {
			continue
		}
		lo, hi := steps[i-1], steps[i]
		slope := float64(hi.Percent-lo.Percent) / (hi.Temperature - lo.Temperature)
		return uint8(float64(lo.Percent) + slope*(temperature-lo.Temperature))
	}
	return last.Percent
}
