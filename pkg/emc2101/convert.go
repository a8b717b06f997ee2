package emc2101

import (
	"fmt"
	"math"
)

const (
	// pwmBaseClock feeds the PWM generator when the clock override is
	// active. Frequency = 360 kHz / (2 * PWM_F * PWM_D).
	pwmBaseClock = 360000

	// tachClock converts tach counts to RPM for two-pole fans:
	// RPM = 5,400,000 / count.
	tachClock = 5400000

	// TachInvalid is the tach reading of a stopped or unmonitored fan.
	TachInvalid = 0xFFFF

	// MinRPM is the slowest speed the 16-bit tach counter can represent.
	MinRPM = 83
)

// PWMSettings is the PWM_F/PWM_D register pair. It fixes the PWM output
// frequency and with it the fan setting resolution: steps 0..2*F-1.
type PWMSettings struct {
	F uint8 // PWM_F, 1..0x1F
	D uint8 // PWM_D, 1..0xFF
}

// DefaultPWMSettings yields 22.5 kHz with 16 usable steps.
var DefaultPWMSettings = PWMSettings{F: 0x08, D: 0x01}

// Frequency returns the PWM output frequency in Hz, or 0 for an unusable
// register pair.
func (s PWMSettings) Frequency() int {
	if s.F == 0 || s.D == 0 {
		return 0
	}
	return pwmBaseClock / (2 * int(s.F) * int(s.D))
}

// StepMax returns the largest valid fan setting step for this pair.
func (s PWMSettings) StepMax() uint8 {
	if s.F == 0 {
		return 0
	}
	return 2*s.F - 1
}

func (s PWMSettings) valid() bool {
	return s.F >= 1 && s.F <= 0x1F && s.D >= 1
}

// CalcPWMSettings derives the register pair closest to the requested PWM
// frequency. Representable frequencies run from 23 Hz to 180 kHz; the
// achieved frequency is read back with Frequency.
func CalcPWMSettings(freqHz int) (PWMSettings, error) {
	if freqHz <= 0 || freqHz > pwmBaseClock/2 {
		return PWMSettings{}, fmt.Errorf("pwm frequency %d Hz: %w", freqHz, ErrValueRange)
	}
	base := float64(pwmBaseClock) / (2 * float64(freqHz))
	div := int(math.Ceil(base / 31))
	if div > 0xFF {
		return PWMSettings{}, fmt.Errorf("pwm frequency %d Hz too low: %w", freqHz, ErrValueRange)
	}
	f := int(math.Round(base / float64(div)))
	if f < 1 {
		f = 1
	}
	if f > 0x1F {
		f = 0x1F
	}
	return PWMSettings{F: uint8(f), D: uint8(div)}, nil
}

// StepToDutyCycle converts a fan setting step to the duty cycle percentage
// it produces under the given PWM settings. The result is clamped to
// [0, 100]; with the defaults, step 8 of 15 is 53.3%.
func StepToDutyCycle(step uint8, s PWMSettings) float64 {
	max := s.StepMax()
	if max == 0 {
		return 0
	}
	duty := 100 * float64(step) / float64(max)
	return math.Min(duty, 100)
}

// DutyCycleToStep converts a duty cycle percentage to the nearest fan
// setting step. Rounding policy: nearest step, so every value produced by
// StepToDutyCycle converts back to its original step. Duty cycles outside
// [0, 100] are rejected.
func DutyCycleToStep(duty float64, s PWMSettings) (uint8, error) {
	if duty < 0 || duty > 100 {
		return 0, fmt.Errorf("duty cycle %.1f%%: %w", duty, ErrValueRange)
	}
	max := s.StepMax()
	if max == 0 {
		return 0, fmt.Errorf("pwm settings %+v yield no usable steps: %w", s, ErrValueRange)
	}
	return uint8(math.Round(duty / 100 * float64(max))), nil
}

// TachToRPM converts a tach count to RPM. Counts of zero and the all-ones
// pattern mean the fan is stopped or not monitored; ok reports whether the
// reading is usable.
func TachToRPM(count uint16) (rpm int, ok bool) {
	if count == 0 || count == TachInvalid {
		return 0, false
	}
	return tachClock / int(count), true
}

// RPMToTach converts a target RPM to the tach count written to the tach
// limit registers. Speeds below MinRPM do not fit the 16-bit counter.
func RPMToTach(rpm int) (uint16, error) {
	if rpm < MinRPM {
		return 0, fmt.Errorf("%d RPM below minimum representable %d: %w",
			rpm, MinRPM, ErrValueRange)
	}
	return uint16(tachClock / rpm), nil
}

// Temperature byte layout: whole degrees as two's complement in the MSB,
// fraction in LSB bits 7..5 weighted 0.5, 0.25 and 0.125. The fraction
// always adds toward positive.
const (
	tempFractionHalf    = 1 << 7
	tempFractionQuarter = 1 << 6
	tempFractionEighth  = 1 << 5

	// externalFaultMSB is reported as the external MSB when the diode is
	// open or shorted.
	externalFaultMSB = 0x7F

	tempMin = -64
	tempMax = 127.875
)

// DecodeTemperature converts a latched register pair to degrees Celsius at
// 0.125 degree resolution.
func DecodeTemperature(msb, lsb uint8) float64 {
	t := float64(int8(msb))
	if lsb&tempFractionHalf != 0 {
		t += 0.5
	}
	if lsb&tempFractionQuarter != 0 {
		t += 0.25
	}
	if lsb&tempFractionEighth != 0 {
		t += 0.125
	}
	return t
}

// EncodeTemperature quantizes a temperature to the nearest 0.125 degree and
// splits it into the register pair. The quantized value is returned so
// callers can report the effective setting.
func EncodeTemperature(c float64) (msb, lsb uint8, effective float64, err error) {
	if math.IsNaN(c) || c < tempMin || c > tempMax {
		return 0, 0, 0, fmt.Errorf("temperature %.3f degC: %w", c, ErrValueRange)
	}
	q := math.Round(c*8) / 8
	whole := math.Floor(q)
	frac := q - whole
	msb = uint8(int8(whole))
	if frac >= 0.5 {
		lsb |= tempFractionHalf
		frac -= 0.5
	}
	if frac >= 0.25 {
		lsb |= tempFractionQuarter
		frac -= 0.25
	}
	if frac >= 0.125 {
		lsb |= tempFractionEighth
	}
	return msb, lsb, q, nil
}

// EncodeWholeTemperature quantizes to whole degrees for the single-byte
// limit registers.
func EncodeWholeTemperature(c float64) (reg uint8, effective float64, err error) {
	if math.IsNaN(c) || c < tempMin || c > 127 {
		return 0, 0, fmt.Errorf("temperature %.3f degC: %w", c, ErrValueRange)
	}
	q := math.Round(c)
	return uint8(int8(q)), q, nil
}
