package emc2101

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// PinMode selects the function of pin 6, which is shared between the ALERT
// interrupt output and the tachometer input. The chip powers up in alert
// mode.
type PinMode int

const (
	// PinTacho uses pin 6 as the tachometer input. Required for RPM
	// readings, the tach limit and spin-up supervision.
	PinTacho PinMode = iota
	// PinAlert uses pin 6 as the ALERT interrupt output.
	PinAlert
)

func (m PinMode) String() string {
	switch m {
	case PinTacho:
		return "tacho"
	case PinAlert:
		return "alert"
	default:
		return fmt.Sprintf("PinMode(%d)", int(m))
	}
}

// SpeedUnit selects the representation of a fan speed value.
type SpeedUnit int

const (
	// UnitStep is the raw fan setting register value, the ground truth
	// written to hardware.
	UnitStep SpeedUnit = iota
	// UnitDutyCycle is the drive percentage derived from the step and the
	// current PWM resolution.
	UnitDutyCycle
	// UnitRPM is the measured (reads) or calibrated (writes) fan speed.
	UnitRPM
)

func (u SpeedUnit) String() string {
	switch u {
	case UnitStep:
		return "step"
	case UnitDutyCycle:
		return "percent"
	case UnitRPM:
		return "rpm"
	default:
		return fmt.Sprintf("SpeedUnit(%d)", int(u))
	}
}

// SpinupStrength is the drive level applied while spinning a stopped fan
// up.
type SpinupStrength uint8

const (
	SpinupDriveBypass SpinupStrength = iota // no spin-up kick
	SpinupDrive50
	SpinupDrive75
	SpinupDrive100
)

// SpinupTime is how long the spin-up drive is applied.
type SpinupTime uint8

const (
	SpinupTimeNone SpinupTime = iota
	SpinupTime50ms
	SpinupTime100ms
	SpinupTime200ms
	SpinupTime400ms
	SpinupTime800ms
	SpinupTime1600ms
	SpinupTime3200ms
)

// SpinupConfig shapes the kick the chip gives a stopped fan before settling
// at the programmed setting. A strength of bypass or a time of none
// disables spin-up entirely.
type SpinupConfig struct {
	Strength SpinupStrength
	Time     SpinupTime
	// IgnoreTach keeps the spin-up sequence running for the full time
	// instead of aborting on the first valid tach reading.
	IgnoreTach bool
}

// dacStepMax is the fan setting range in DAC drive, fixed by the register
// width rather than the PWM resolution.
const dacStepMax = 0x3F

// PinSixMode reads which function pin 6 currently serves.
func (d *Device) PinSixMode() (PinMode, error) {
	raw, err := d.readRegister(RegConfig)
	if err != nil {
		return 0, err
	}
	if raw&ConfigTachInput != 0 {
		return PinTacho, nil
	}
	return PinAlert, nil
}

// ConfigurePinSix switches pin 6 between the ALERT output and the tach
// input, touching only the bits involved. Switching to alert is refused
// while the lookup table drives the fan: table control relies on tach
// feedback, and pulling the input out from under it would let the chip
// drive blind. A refused call writes nothing.
//
// Alert mode also zeroes the spin-up register, because without a tach the
// spin-up routine cannot tell whether the fan started.
func (d *Device) ConfigurePinSix(mode PinMode) error {
	switch mode {
	case PinTacho:
		return d.updateRegister(RegConfig, ConfigTachInput, 0)
	case PinAlert:
		active, err := d.lutActive()
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("pin 6 as alert while the lookup table drives the fan: %w",
				ErrConfiguration)
		}
		if err := d.updateRegister(RegConfig, 0, ConfigTachInput); err != nil {
			return err
		}
		return d.writeRegister(RegFanSpinup, 0x00)
	default:
		return fmt.Errorf("pin mode %d: %w", int(mode), ErrValueRange)
	}
}

// SetSpinup programs the spin-up behavior. Spin-up supervision needs tach
// feedback, so the call is refused while pin 6 is an alert output.
func (d *Device) SetSpinup(cfg SpinupConfig) error {
	if cfg.Strength > SpinupDrive100 {
		return fmt.Errorf("spin-up strength %d: %w", cfg.Strength, ErrValueRange)
	}
	if cfg.Time > SpinupTime3200ms {
		return fmt.Errorf("spin-up time %d: %w", cfg.Time, ErrValueRange)
	}
	mode, err := d.PinSixMode()
	if err != nil {
		return err
	}
	if mode == PinAlert {
		return fmt.Errorf("spin-up needs the tach input on pin 6: %w", ErrConfiguration)
	}
	value := uint8(cfg.Strength)<<3 | uint8(cfg.Time)
	if cfg.IgnoreTach {
		value |= SpinupIgnoreTach
	}
	const spinupMask = SpinupIgnoreTach | SpinupStrengthMask | SpinupDurationMask
	return d.updateRegister(RegFanSpinup, value, spinupMask&^value)
}

// PWMSettings reads the live PWM_F/PWM_D pair that fixes the PWM frequency
// and the step resolution.
func (d *Device) PWMSettings() (PWMSettings, error) {
	f, err := d.readRegister(RegPWMFrequency)
	if err != nil {
		return PWMSettings{}, err
	}
	div, err := d.readRegister(RegPWMDivide)
	if err != nil {
		return PWMSettings{}, err
	}
	return PWMSettings{F: f & 0x1F, D: div}, nil
}

// SetPWMFrequency reprograms the PWM clock to the closest achievable
// frequency and returns the applied register pair.
func (d *Device) SetPWMFrequency(freqHz int) (PWMSettings, error) {
	pwm, err := CalcPWMSettings(freqHz)
	if err != nil {
		return PWMSettings{}, err
	}
	return pwm, d.ApplyPWMSettings(pwm)
}

// ApplyPWMSettings writes an explicit PWM register pair and enables the
// divider override so PWM_D takes effect. Changing the pair changes the
// step resolution: fan setting values written under the old pair keep
// their step but produce a different duty cycle.
func (d *Device) ApplyPWMSettings(pwm PWMSettings) error {
	if !pwm.valid() {
		return fmt.Errorf("pwm settings %+v: %w", pwm, ErrValueRange)
	}
	if err := d.writeRegister(RegPWMFrequency, pwm.F); err != nil {
		return err
	}
	if err := d.writeRegister(RegPWMDivide, pwm.D); err != nil {
		return err
	}
	if err := d.updateRegister(RegFanConfig, FanCfgClockOverride, 0); err != nil {
		return err
	}
	d.log.Debug("pwm clock configured",
		zap.Uint8("pwm_f", pwm.F),
		zap.Uint8("pwm_d", pwm.D),
		zap.Int("frequency_hz", pwm.Frequency()),
	)
	return nil
}

// lutActive reports whether the lookup table currently drives the fan,
// straight from the fan configuration register. A clear program bit means
// table control; the fan setting register and table slots are read-only
// then.
func (d *Device) lutActive() (bool, error) {
	raw, err := d.readRegister(RegFanConfig)
	if err != nil {
		return false, err
	}
	return raw&FanCfgProgram == 0, nil
}

// stepRange resolves the largest usable fan setting step for the current
// drive type: the register width for DAC drive, 2*PWM_F-1 for PWM drive.
func (d *Device) stepRange() (uint8, error) {
	cfg, err := d.readRegister(RegConfig)
	if err != nil {
		return 0, err
	}
	if cfg&ConfigDACOutput != 0 {
		return dacStepMax, nil
	}
	pwm, err := d.PWMSettings()
	if err != nil {
		return 0, err
	}
	max := pwm.StepMax()
	if max == 0 {
		return 0, fmt.Errorf("pwm frequency register is zero: %w", ErrConfiguration)
	}
	return max, nil
}

// MaxStep returns the largest fan setting step the current drive
// configuration accepts.
func (d *Device) MaxStep() (uint8, error) {
	return d.stepRange()
}

// FanSpeed reads the current fan speed in the requested unit. Step and
// duty cycle report the programmed drive (whatever its source, manual or
// table); RPM reports the measured tach feedback and requires pin 6 in
// tach mode. A stopped or unreadable fan reports 0 RPM.
func (d *Device) FanSpeed(unit SpeedUnit) (float64, error) {
	switch unit {
	case UnitStep:
		step, err := d.ReadField(fieldFanSetting)
		return float64(step), err

	case UnitDutyCycle:
		step, err := d.ReadField(fieldFanSetting)
		if err != nil {
			return 0, err
		}
		max, err := d.stepRange()
		if err != nil {
			return 0, err
		}
		return math.Min(100*float64(step)/float64(max), 100), nil

	case UnitRPM:
		mode, err := d.PinSixMode()
		if err != nil {
			return 0, err
		}
		if mode != PinTacho {
			return 0, fmt.Errorf("rpm needs the tach input on pin 6: %w", ErrConfiguration)
		}
		count, err := d.tachCount()
		if err != nil {
			return 0, err
		}
		rpm, ok := TachToRPM(count)
		if !ok {
			return 0, nil
		}
		return float64(rpm), nil

	default:
		return 0, fmt.Errorf("speed unit %d: %w", int(unit), ErrValueRange)
	}
}

// tachCount reads the 16-bit tach counter, low byte first so the chip
// latches a consistent pair.
func (d *Device) tachCount() (uint16, error) {
	lsb, err := d.readRegister(RegTachLSB)
	if err != nil {
		return 0, err
	}
	msb, err := d.readRegister(RegTachMSB)
	if err != nil {
		return 0, err
	}
	return uint16(msb)<<8 | uint16(lsb), nil
}

// IsFanSpinning reports whether the tach input sees the fan turning.
// Requires pin 6 in tach mode.
func (d *Device) IsFanSpinning() (bool, error) {
	mode, err := d.PinSixMode()
	if err != nil {
		return false, err
	}
	if mode != PinTacho {
		return false, fmt.Errorf("spin detection needs the tach input on pin 6: %w",
			ErrConfiguration)
	}
	count, err := d.tachCount()
	if err != nil {
		return false, err
	}
	_, ok := TachToRPM(count)
	return ok, nil
}

// SetFanSpeed programs the fan drive in the requested unit and returns the
// effective value after step quantization, in the same unit. The write is
// refused with ErrInvalidMode while the lookup table drives the fan;
// disable the table first instead of silently fighting the chip's own
// control loop.
//
// Values are validated, never coerced: steps must be whole and within the
// drive's range, duty cycles within [0, 100], RPM within the profile's
// calibrated span. Boundary steps are deliberately not filtered even
// though 0 and the maximum are unreliable on some fans.
func (d *Device) SetFanSpeed(value float64, unit SpeedUnit) (float64, error) {
	active, err := d.lutActive()
	if err != nil {
		return 0, err
	}
	if active {
		return 0, fmt.Errorf("manual fan speed while the lookup table drives the fan: %w",
			ErrInvalidMode)
	}
	max, err := d.stepRange()
	if err != nil {
		return 0, err
	}

	var step uint8
	switch unit {
	case UnitStep:
		if value != math.Trunc(value) || value < 0 || value > float64(max) {
			return 0, fmt.Errorf("step %v outside 0..%d: %w", value, max, ErrValueRange)
		}
		step = uint8(value)

	case UnitDutyCycle:
		if value < 0 || value > 100 {
			return 0, fmt.Errorf("duty cycle %.1f%%: %w", value, ErrValueRange)
		}
		step = uint8(math.Round(value / 100 * float64(max)))

	case UnitRPM:
		step, err = d.profile.StepForRPM(int(math.Round(value)))
		if err != nil {
			return 0, err
		}
		if step > max {
			return 0, fmt.Errorf("profile step %d outside 0..%d: %w", step, max, ErrValueRange)
		}

	default:
		return 0, fmt.Errorf("speed unit %d: %w", int(unit), ErrValueRange)
	}

	if err := d.WriteField(fieldFanSetting, step); err != nil {
		return 0, err
	}

	effective := float64(step)
	switch unit {
	case UnitDutyCycle:
		effective = 100 * float64(step) / float64(max)
	case UnitRPM:
		if rpm, ok := d.profile.RPMForStep(step); ok {
			effective = float64(rpm)
		}
	}
	d.log.Debug("fan speed set",
		zap.Uint8("step", step),
		zap.Float64("requested", value),
		zap.Float64("effective", effective),
		zap.Stringer("unit", unit),
	)
	return effective, nil
}

// SetTachLimit arms the tach-low status bit below the given fan speed and
// returns the effective limit after quantization to a tach count. Low byte
// first, matching the register pair's latching.
func (d *Device) SetTachLimit(rpm int) (int, error) {
	count, err := RPMToTach(rpm)
	if err != nil {
		return 0, err
	}
	if err := d.writeRegister(RegTachLimitLSB, uint8(count)); err != nil {
		return 0, err
	}
	if err := d.writeRegister(RegTachLimitMSB, uint8(count>>8)); err != nil {
		return 0, err
	}
	effective, _ := TachToRPM(count)
	return effective, nil
}

// TachLimit reads the armed limit back; 0 means the limit is disabled
// (power-on default).
func (d *Device) TachLimit() (int, error) {
	lsb, err := d.readRegister(RegTachLimitLSB)
	if err != nil {
		return 0, err
	}
	msb, err := d.readRegister(RegTachLimitMSB)
	if err != nil {
		return 0, err
	}
	rpm, ok := TachToRPM(uint16(msb)<<8 | uint16(lsb))
	if !ok {
		return 0, nil
	}
	return rpm, nil
}
