package emc2101

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ProfileKind is the drive type a profile was calibrated for.
type ProfileKind string

const (
	ProfilePWM ProfileKind = "pwm"
	ProfileDAC ProfileKind = "dac"
)

// ProfileStep is one calibrated operating point of a fan. RPM 0 means the
// point carries no tach data.
type ProfileStep struct {
	Step      uint8   `yaml:"step"`
	DutyCycle float64 `yaml:"duty_cycle"`
	RPM       int     `yaml:"rpm,omitempty"`
}

// FanProfile is the empirical characterization of one fan model: which
// steps produce distinct speeds and what those speeds are. The duty/RPM
// relationship is non-linear and fan-specific, so the chip provides no
// formula; profiles supply the mapping, either from Calibrate or from a
// saved file.
type FanProfile struct {
	Model        string        `yaml:"model"`
	Kind         ProfileKind   `yaml:"kind"`
	PWMFrequency int           `yaml:"pwm_frequency,omitempty"`
	MinDutyCycle float64       `yaml:"min_duty_cycle"`
	MaxDutyCycle float64       `yaml:"max_duty_cycle"`
	Steps        []ProfileStep `yaml:"steps"`
}

// Validate checks the profile invariants: steps strictly increasing, duty
// cycles within [0, 100] and non-decreasing, RPM (where present)
// non-decreasing, duty bounds ordered.
func (p *FanProfile) Validate() error {
	switch p.Kind {
	case ProfilePWM, ProfileDAC:
	default:
		return fmt.Errorf("profile kind %q: %w", p.Kind, ErrValueRange)
	}
	if p.MinDutyCycle < 0 || p.MaxDutyCycle > 100 || p.MinDutyCycle > p.MaxDutyCycle {
		return fmt.Errorf("duty cycle bounds %.1f..%.1f: %w",
			p.MinDutyCycle, p.MaxDutyCycle, ErrValueRange)
	}
	var lastRPM int
	for i, s := range p.Steps {
		if s.DutyCycle < 0 || s.DutyCycle > 100 {
			return fmt.Errorf("step %d: duty cycle %.1f%%: %w", s.Step, s.DutyCycle, ErrValueRange)
		}
		if i == 0 {
			lastRPM = s.RPM
			continue
		}
		prev := p.Steps[i-1]
		if s.Step <= prev.Step {
			return fmt.Errorf("step %d not above %d: %w", s.Step, prev.Step, ErrNonMonotonic)
		}
		if s.DutyCycle < prev.DutyCycle {
			return fmt.Errorf("step %d: duty cycle %.1f%% drops below %.1f%%: %w",
				s.Step, s.DutyCycle, prev.DutyCycle, ErrNonMonotonic)
		}
		if s.RPM > 0 {
			if s.RPM < lastRPM {
				return fmt.Errorf("step %d: %d RPM drops below %d: %w",
					s.Step, s.RPM, lastRPM, ErrNonMonotonic)
			}
			lastRPM = s.RPM
		}
	}
	return nil
}

// HasRPM reports whether any operating point carries tach data.
func (p *FanProfile) HasRPM() bool {
	for _, s := range p.Steps {
		if s.RPM > 0 {
			return true
		}
	}
	return false
}

// StepForRPM finds the operating point whose calibrated speed is closest
// to the target, by relative deviation so low speeds are not drowned out
// by the wide top end. Profiles without tach data cannot serve RPM
// requests.
func (p *FanProfile) StepForRPM(rpm int) (uint8, error) {
	if rpm < 0 {
		return 0, fmt.Errorf("%d RPM: %w", rpm, ErrValueRange)
	}
	best, bestDev := uint8(0), math.Inf(1)
	for _, s := range p.Steps {
		if s.RPM <= 0 {
			continue
		}
		dev := math.Abs(1 - float64(rpm)/float64(s.RPM))
		if dev < bestDev {
			best, bestDev = s.Step, dev
		}
	}
	if math.IsInf(bestDev, 1) {
		return 0, fmt.Errorf("profile %q has no rpm calibration: %w", p.Model, ErrConfiguration)
	}
	return best, nil
}

// RPMForStep returns the calibrated speed of a step, if the profile knows
// it.
func (p *FanProfile) RPMForStep(step uint8) (int, bool) {
	for _, s := range p.Steps {
		if s.Step == step && s.RPM > 0 {
			return s.RPM, true
		}
	}
	return 0, false
}

// DutyForStep returns the calibrated duty cycle of a step, if the profile
// knows it.
func (p *FanProfile) DutyForStep(step uint8) (float64, bool) {
	for _, s := range p.Steps {
		if s.Step == step {
			return s.DutyCycle, true
		}
	}
	return 0, false
}

// GenericPWMProfile is a reasonable default for an unknown 4-pin fan at
// 22.5 kHz. Some fans treat a duty cycle below 20% as no signal and go
// full power, so the usable range starts at step 3. The RPM column is a
// ballpark for a 2000 RPM fan; calibrate against real hardware for
// accurate speed control.
func GenericPWMProfile() *FanProfile {
	return &FanProfile{
		Model:        "generic PWM fan",
		Kind:         ProfilePWM,
		PWMFrequency: 22500,
		MinDutyCycle: 20,
		MaxDutyCycle: 100,
		Steps: []ProfileStep{
			{Step: 3, DutyCycle: 20.0, RPM: 410},
			{Step: 4, DutyCycle: 26.7, RPM: 560},
			{Step: 5, DutyCycle: 33.3, RPM: 700},
			{Step: 6, DutyCycle: 40.0, RPM: 840},
			{Step: 7, DutyCycle: 46.7, RPM: 980},
			{Step: 8, DutyCycle: 53.3, RPM: 1120},
			{Step: 9, DutyCycle: 60.0, RPM: 1260},
			{Step: 10, DutyCycle: 66.7, RPM: 1400},
			{Step: 11, DutyCycle: 73.3, RPM: 1530},
			{Step: 12, DutyCycle: 80.0, RPM: 1650},
			{Step: 13, DutyCycle: 86.7, RPM: 1770},
			{Step: 14, DutyCycle: 93.3, RPM: 1890},
			{Step: 15, DutyCycle: 100.0, RPM: 2000},
		},
	}
}

// GenericDACProfile is a reasonable default for a voltage-controlled 2 or
// 3-pin fan. DC fans stall somewhere below half supply voltage and vary
// too much between models for a generic RPM table to be useful, so this
// profile carries none; RPM requests need a calibrated profile.
func GenericDACProfile() *FanProfile {
	return &FanProfile{
		Model:        "generic DC fan",
		Kind:         ProfileDAC,
		MinDutyCycle: 50,
		MaxDutyCycle: 100,
	}
}

// LoadProfile reads and validates a profile from a YAML file.
func LoadProfile(path string) (*FanProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fan profile: %w", err)
	}
	var p FanProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse fan profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("fan profile %s: %w", path, err)
	}
	return &p, nil
}

// SaveProfile validates and writes a profile to a YAML file.
func SaveProfile(path string, p *FanProfile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("fan profile: %w", err)
	}
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode fan profile: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("save fan profile: %w", err)
	}
	return nil
}
