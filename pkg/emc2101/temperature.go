package emc2101

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Sensor selects a temperature channel.
type Sensor int

const (
	// SensorInternal is the on-die diode, whole-degree resolution.
	SensorInternal Sensor = iota
	// SensorExternal is the remote diode channel, 0.125 degree resolution.
	SensorExternal
)

func (s Sensor) String() string {
	switch s {
	case SensorInternal:
		return "internal"
	case SensorExternal:
		return "external"
	default:
		return fmt.Sprintf("Sensor(%d)", int(s))
	}
}

// LimitKind names a temperature threshold. Accepted combinations follow
// the register map: the internal channel has a high limit only, the
// external channel has low, high and critical.
type LimitKind int

const (
	LimitLow LimitKind = iota
	LimitHigh
	LimitCritical
)

func (k LimitKind) String() string {
	switch k {
	case LimitLow:
		return "low"
	case LimitHigh:
		return "high"
	case LimitCritical:
		return "critical"
	default:
		return fmt.Sprintf("LimitKind(%d)", int(k))
	}
}

// Temperature reads a channel in degrees Celsius. The external read is MSB
// first so the chip latches a consistent fraction byte. A faulted diode
// reports ErrSensorFault; the fraction byte distinguishes open from short.
func (d *Device) Temperature(sensor Sensor) (float64, error) {
	switch sensor {
	case SensorInternal:
		raw, err := d.readRegister(RegInternalTemp)
		if err != nil {
			return 0, err
		}
		return float64(int8(raw)), nil

	case SensorExternal:
		msb, err := d.readRegister(RegExternalTempMSB)
		if err != nil {
			return 0, err
		}
		lsb, err := d.readRegister(RegExternalTempLSB)
		if err != nil {
			return 0, err
		}
		if msb == externalFaultMSB {
			return 0, fmt.Errorf("external diode %s: %w", faultKind(lsb), ErrSensorFault)
		}
		return DecodeTemperature(msb, lsb), nil

	default:
		return 0, fmt.Errorf("sensor %d: %w", int(sensor), ErrValueRange)
	}
}

func faultKind(lsb uint8) string {
	switch lsb {
	case 0x00:
		return "open circuit"
	case 0xE0:
		return "short circuit"
	default:
		return "faulted"
	}
}

// HasSensorFault reports whether the external diode reads as open or
// shorted. Unlike a status read this does not consume latched status bits.
func (d *Device) HasSensorFault() (bool, error) {
	msb, err := d.readRegister(RegExternalTempMSB)
	if err != nil {
		return false, err
	}
	return msb == externalFaultMSB, nil
}

// SetTemperatureLimit programs an alert threshold and returns the effective
// value after quantization (whole degrees for internal and critical, 0.125
// for the external low/high pair). The low < high <= critical ordering is
// validated against the other limits currently on the chip before anything
// is written; a violation reports ErrLimitOrder and writes nothing.
func (d *Device) SetTemperatureLimit(sensor Sensor, kind LimitKind, degC float64) (float64, error) {
	var (
		effective float64
		err       error
	)
	switch sensor {
	case SensorInternal:
		if kind != LimitHigh {
			return 0, fmt.Errorf("internal sensor has only a high limit: %w", ErrConfiguration)
		}
		var reg uint8
		reg, effective, err = EncodeWholeTemperature(degC)
		if err != nil {
			return 0, err
		}
		err = d.writeRegister(RegInternalLimit, reg)

	case SensorExternal:
		effective, err = d.setExternalLimit(kind, degC)

	default:
		return 0, fmt.Errorf("sensor %d: %w", int(sensor), ErrValueRange)
	}
	if err != nil {
		return 0, err
	}
	d.log.Debug("temperature limit set",
		zap.Stringer("sensor", sensor),
		zap.Stringer("kind", kind),
		zap.Float64("limit_degc", effective),
	)
	return effective, nil
}

func (d *Device) setExternalLimit(kind LimitKind, degC float64) (float64, error) {
	switch kind {
	case LimitLow:
		msb, lsb, eff, err := EncodeTemperature(degC)
		if err != nil {
			return 0, err
		}
		high, err := d.externalLimit(LimitHigh)
		if err != nil {
			return 0, err
		}
		if eff >= high {
			return 0, fmt.Errorf("low limit %.3f degC must stay below high limit %.3f: %w",
				eff, high, ErrLimitOrder)
		}
		if err := d.writeRegister(RegExternalLowMSB, msb); err != nil {
			return 0, err
		}
		return eff, d.writeRegister(RegExternalLowLSB, lsb)

	case LimitHigh:
		msb, lsb, eff, err := EncodeTemperature(degC)
		if err != nil {
			return 0, err
		}
		low, err := d.externalLimit(LimitLow)
		if err != nil {
			return 0, err
		}
		critical, err := d.externalLimit(LimitCritical)
		if err != nil {
			return 0, err
		}
		if eff <= low {
			return 0, fmt.Errorf("high limit %.3f degC must stay above low limit %.3f: %w",
				eff, low, ErrLimitOrder)
		}
		if eff > critical {
			return 0, fmt.Errorf("high limit %.3f degC must not exceed critical limit %.3f: %w",
				eff, critical, ErrLimitOrder)
		}
		if err := d.writeRegister(RegExternalHighMSB, msb); err != nil {
			return 0, err
		}
		return eff, d.writeRegister(RegExternalHighLSB, lsb)

	case LimitCritical:
		reg, eff, err := EncodeWholeTemperature(degC)
		if err != nil {
			return 0, err
		}
		high, err := d.externalLimit(LimitHigh)
		if err != nil {
			return 0, err
		}
		if eff < high {
			return 0, fmt.Errorf("critical limit %.3f degC must not drop below high limit %.3f: %w",
				eff, high, ErrLimitOrder)
		}
		// The critical limit register is locked until the one-time
		// override bit is set; the bit survives until power cycle, so the
		// update is a no-op on later calls.
		if err := d.updateRegister(RegConfig, ConfigCriticalOverride, 0); err != nil {
			return 0, err
		}
		return eff, d.writeRegister(RegCriticalLimit, reg)

	default:
		return 0, fmt.Errorf("limit kind %d: %w", int(kind), ErrValueRange)
	}
}

// TemperatureLimit reads an alert threshold back in degrees Celsius.
func (d *Device) TemperatureLimit(sensor Sensor, kind LimitKind) (float64, error) {
	switch sensor {
	case SensorInternal:
		if kind != LimitHigh {
			return 0, fmt.Errorf("internal sensor has only a high limit: %w", ErrConfiguration)
		}
		raw, err := d.readRegister(RegInternalLimit)
		if err != nil {
			return 0, err
		}
		return float64(int8(raw)), nil

	case SensorExternal:
		return d.externalLimit(kind)

	default:
		return 0, fmt.Errorf("sensor %d: %w", int(sensor), ErrValueRange)
	}
}

func (d *Device) externalLimit(kind LimitKind) (float64, error) {
	switch kind {
	case LimitLow:
		msb, err := d.readRegister(RegExternalLowMSB)
		if err != nil {
			return 0, err
		}
		lsb, err := d.readRegister(RegExternalLowLSB)
		if err != nil {
			return 0, err
		}
		return DecodeTemperature(msb, lsb), nil

	case LimitHigh:
		msb, err := d.readRegister(RegExternalHighMSB)
		if err != nil {
			return 0, err
		}
		lsb, err := d.readRegister(RegExternalHighLSB)
		if err != nil {
			return 0, err
		}
		return DecodeTemperature(msb, lsb), nil

	case LimitCritical:
		raw, err := d.readRegister(RegCriticalLimit)
		if err != nil {
			return 0, err
		}
		return float64(int8(raw)), nil

	default:
		return 0, fmt.Errorf("limit kind %d: %w", int(kind), ErrValueRange)
	}
}

// SetCriticalHysteresis sets how far the external temperature must drop
// below the critical limit before the condition releases. Whole degrees,
// 0 to 31.
func (d *Device) SetCriticalHysteresis(degC float64) (float64, error) {
	q := math.Round(degC)
	if q < 0 || q > float64(fieldCriticalHyst.Max()) {
		return 0, fmt.Errorf("critical hysteresis %.1f degC: %w", degC, ErrValueRange)
	}
	return q, d.WriteField(fieldCriticalHyst, uint8(q))
}

// CriticalHysteresis reads the release band below the critical limit.
func (d *Device) CriticalHysteresis() (float64, error) {
	raw, err := d.ReadField(fieldCriticalHyst)
	return float64(raw), err
}

// ForceTemperature substitutes a fixed value for the measured external
// temperature, which exercises lookup table behavior without heating
// anything. Whole degrees; the effective value is returned.
func (d *Device) ForceTemperature(degC float64) (float64, error) {
	reg, eff, err := EncodeWholeTemperature(degC)
	if err != nil {
		return 0, err
	}
	if err := d.writeRegister(RegForcedTemp, reg); err != nil {
		return 0, err
	}
	if err := d.updateRegister(RegFanConfig, FanCfgForceTemp, 0); err != nil {
		return 0, err
	}
	d.log.Debug("external temperature forced", zap.Float64("temp_degc", eff))
	return eff, nil
}

// ClearForcedTemperature returns the lookup table to the measured external
// temperature and resets the forced value register to its default.
func (d *Device) ClearForcedTemperature() error {
	if err := d.updateRegister(RegFanConfig, 0, FanCfgForceTemp); err != nil {
		return err
	}
	return d.writeRegister(RegForcedTemp, powerOnDefaults[RegForcedTemp])
}

// SetStandby stops or resumes continuous conversions. In standby the
// measurement registers hold their last values until a one-shot is
// triggered.
func (d *Device) SetStandby(standby bool) error {
	if standby {
		return d.updateRegister(RegConfig, ConfigStandby, 0)
	}
	return d.updateRegister(RegConfig, 0, ConfigStandby)
}

// TriggerOneShot requests a single conversion while the chip is in
// standby. The register is write-only and the written value is ignored.
func (d *Device) TriggerOneShot() error {
	return d.writeRegister(RegOneShot, 0x00)
}
