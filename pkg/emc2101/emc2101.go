// Package emc2101 drives the SMSC/Microchip EMC2101 fan controller and
// temperature monitor over an I2C-like register bus.
//
// The chip combines a PWM or DAC fan drive, a tachometer input, an internal
// temperature diode and one external diode channel, plus an 8-slot
// temperature-to-speed lookup table for autonomous control. The driver
// exposes typed operations on top of single-byte register transfers and
// keeps no chip state: every operation re-reads the registers it depends
// on.
//
// Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/2101.pdf
package emc2101

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/drivers"
)

// Config carries the settings Init applies to the chip. The zero value
// selects tach input on pin 6, PWM drive at the chip's default frequency
// and the generic fan profile.
type Config struct {
	// Address overrides the bus address, for bus multiplexer setups. Zero
	// means the fixed hardware address 0x4C.
	Address uint16

	// PinSix selects the pin 6 function. The zero value is PinTacho.
	PinSix PinMode

	// DACOutput switches the fan drive from PWM to the analog DAC output.
	DACOutput bool

	// PWMFrequency is the requested PWM output frequency in Hz. Zero keeps
	// the chip default. Ignored for DAC output.
	PWMFrequency int

	// Spinup, when non-nil, replaces the power-on spin-up behavior.
	Spinup *SpinupConfig

	// TachLimitRPM, when non-zero, asserts the tach-low status bit when
	// the fan drops below this speed.
	TachLimitRPM int

	// Profile supplies the fan calibration used for RPM conversions. Nil
	// selects the generic profile matching the drive type.
	Profile *FanProfile

	// Logger defaults to zap.L().Named("emc2101").
	Logger *zap.Logger
}

// Device is the driver facade for one EMC2101. It is constructed from an
// injected bus transport and owns the bus for the duration of each
// operation; operations are synchronous sequences of register transfers.
//
// Device deliberately caches nothing read from the chip. Mode checks, PWM
// resolution, limits and table contents are re-read per call so the driver
// never acts on stale state.
type Device struct {
	addr uint16
	bus  drivers.I2C
	log  *zap.Logger
	cfg  Config

	// profile is caller-supplied calibration, not chip state. The chip
	// provides no RPM-to-step formula; the mapping is empirical.
	profile *FanProfile
}

// New wires a Device to a bus transport. No bus traffic happens until Init
// or the first operation.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L().Named("emc2101")
	}
	profile := cfg.Profile
	if profile == nil {
		if cfg.DACOutput {
			profile = GenericDACProfile()
		} else {
			profile = GenericPWMProfile()
		}
	}
	return &Device{
		addr:    cfg.Address,
		bus:     bus,
		log:     logger,
		cfg:     cfg,
		profile: profile,
	}
}

// Profile returns the fan calibration the device converts RPM with.
func (d *Device) Profile() *FanProfile { return d.profile }

// Init verifies the chip identity and applies the configuration: pin 6
// function, drive type, PWM frequency, spin-up behavior and tach limit.
// A chip that does not identify as an EMC2101 is left untouched.
func (d *Device) Init() error {
	prod, rev, err := d.probe()
	if err != nil {
		return err
	}
	d.log.Info("device detected",
		zap.String("product", productName(prod)),
		zap.Uint8("revision", rev),
	)

	if err := d.ConfigurePinSix(d.cfg.PinSix); err != nil {
		return fmt.Errorf("configure pin 6: %w", err)
	}

	if d.cfg.DACOutput {
		err = d.updateRegister(RegConfig, ConfigDACOutput, 0)
	} else {
		err = d.updateRegister(RegConfig, 0, ConfigDACOutput)
	}
	if err != nil {
		return fmt.Errorf("configure fan drive: %w", err)
	}

	if !d.cfg.DACOutput && d.cfg.PWMFrequency > 0 {
		if _, err := d.SetPWMFrequency(d.cfg.PWMFrequency); err != nil {
			return fmt.Errorf("configure pwm frequency: %w", err)
		}
	}
	if d.cfg.Spinup != nil {
		if err := d.SetSpinup(*d.cfg.Spinup); err != nil {
			return fmt.Errorf("configure spin-up: %w", err)
		}
	}
	if d.cfg.TachLimitRPM > 0 {
		if _, err := d.SetTachLimit(d.cfg.TachLimitRPM); err != nil {
			return fmt.Errorf("configure tach limit: %w", err)
		}
	}
	return nil
}

func (d *Device) probe() (product, revision uint8, err error) {
	mfg, err := d.readRegister(RegManufacturerID)
	if err != nil {
		return 0, 0, err
	}
	if mfg != ManufacturerSMSC {
		return 0, 0, fmt.Errorf("manufacturer id 0x%02X: %w", mfg, ErrUnknownDevice)
	}
	prod, err := d.readRegister(RegProductID)
	if err != nil {
		return 0, 0, err
	}
	if prod != ProductEMC2101 && prod != ProductEMC2101R {
		return 0, 0, fmt.Errorf("product id 0x%02X: %w", prod, ErrUnknownDevice)
	}
	rev, err := d.readRegister(RegRevision)
	if err != nil {
		return 0, 0, err
	}
	return prod, rev, nil
}

func productName(id uint8) string {
	switch id {
	case ProductEMC2101:
		return "EMC2101"
	case ProductEMC2101R:
		return "EMC2101-R"
	default:
		return fmt.Sprintf("unknown(0x%02X)", id)
	}
}

// ManufacturerID reads the manufacturer identity register (0x5D for SMSC).
func (d *Device) ManufacturerID() (uint8, error) {
	return d.readRegister(RegManufacturerID)
}

// ProductID reads the product identity register.
func (d *Device) ProductID() (uint8, error) {
	return d.readRegister(RegProductID)
}

// Revision reads the silicon revision register.
func (d *Device) Revision() (uint8, error) {
	return d.readRegister(RegRevision)
}

// Describe reads the identity registers and renders them human-readable,
// e.g. "EMC2101-R rev 2".
func (d *Device) Describe() (string, error) {
	prod, rev, err := d.probe()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s rev %d", productName(prod), rev), nil
}

// RegisterValue is a single register and its current value.
type RegisterValue struct {
	Reg   uint8
	Value uint8
}

// RegisterSnapshot reads every known register in ascending address order.
// The status register is among them, so taking a snapshot consumes latched
// status bits like any other status read.
func (d *Device) RegisterSnapshot() ([]RegisterValue, error) {
	regs := snapshotRegisters()
	out := make([]RegisterValue, 0, len(regs))
	for _, reg := range regs {
		val, err := d.readRegister(reg)
		if err != nil {
			return nil, err
		}
		out = append(out, RegisterValue{Reg: reg, Value: val})
	}
	return out, nil
}

// snapshotRegisters lists the writable registers, the lookup table slots
// and the read-only measurement and identity registers.
func snapshotRegisters() []uint8 {
	regs := make([]uint8, 0, len(powerOnDefaults)+16+9)
	for reg := range powerOnDefaults {
		regs = append(regs, reg)
	}
	for i := uint8(0); i < lutSlots*2; i++ {
		regs = append(regs, RegLUTBase+i)
	}
	regs = append(regs,
		RegInternalTemp, RegExternalTempMSB, RegStatus, RegExternalTempLSB,
		RegTachLSB, RegTachMSB, RegProductID, RegManufacturerID, RegRevision,
	)
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}

// ResetRegisters rewrites every writable register to its power-on default,
// in ascending address order so the fan configuration register re-enables
// manual control before the fan setting register is restored. Lookup table
// slots are left alone; the chip ignores them once the default fan
// configuration is back. The critical limit write only takes effect if the
// one-time override bit was set earlier in the power cycle, which is the
// only way the limit can have changed.
func (d *Device) ResetRegisters() error {
	d.log.Info("resetting registers to power-on defaults")
	regs := make([]uint8, 0, len(powerOnDefaults))
	for reg := range powerOnDefaults {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	for _, reg := range regs {
		if err := d.writeRegister(reg, powerOnDefaults[reg]); err != nil {
			return err
		}
	}
	return nil
}

// ConversionRate enumerates the temperature conversion frequencies of the
// conversion rate register.
type ConversionRate uint8

const (
	Rate1Per16s ConversionRate = iota
	Rate1Per8s
	Rate1Per4s
	Rate1Per2s
	Rate1PerSecond
	Rate2PerSecond
	Rate4PerSecond
	Rate8PerSecond
	Rate16PerSecond // power-on default
	Rate32PerSecond
)

var rateNames = [...]string{
	"1/16 Hz", "1/8 Hz", "1/4 Hz", "1/2 Hz", "1 Hz",
	"2 Hz", "4 Hz", "8 Hz", "16 Hz", "32 Hz",
}

func (r ConversionRate) String() string {
	if int(r) < len(rateNames) {
		return rateNames[r]
	}
	return fmt.Sprintf("reserved(0x%02X)", uint8(r))
}

// Interval returns the time between two conversions at this rate.
func (r ConversionRate) Interval() time.Duration {
	if r > Rate32PerSecond {
		r = Rate32PerSecond
	}
	return time.Duration(16 * float64(time.Second) / float64(uint(1)<<r))
}

// SetConversionRate programs how often the chip samples its temperature
// channels.
func (d *Device) SetConversionRate(rate ConversionRate) error {
	if rate > Rate32PerSecond {
		return fmt.Errorf("conversion rate 0x%02X: %w", uint8(rate), ErrValueRange)
	}
	return d.WriteField(fieldConversionRate, uint8(rate))
}

// ConversionRate reads the active conversion rate. Reserved encodings above
// Rate32PerSecond are returned as read; the chip treats them as 32 Hz.
func (d *Device) ConversionRate() (ConversionRate, error) {
	raw, err := d.ReadField(fieldConversionRate)
	return ConversionRate(raw), err
}

// Ideality factor bounds of the external diode model register.
const (
	IdealityMin = 0x08
	IdealityMax = 0x37
)

// BetaAuto and values above select automatic beta compensation detection.
const BetaAuto = 0x08

// SetIdealityFactor tunes the external diode ideality correction. The
// default 0x12 suits a typical 2N3904. Tuning is refused while the diode
// reads as faulted.
func (d *Device) SetIdealityFactor(factor uint8) error {
	if factor < IdealityMin || factor > IdealityMax {
		return fmt.Errorf("ideality factor 0x%02X outside 0x%02X..0x%02X: %w",
			factor, IdealityMin, IdealityMax, ErrValueRange)
	}
	if err := d.requireDiode(); err != nil {
		return err
	}
	return d.WriteField(fieldIdeality, factor)
}

// SetBetaCompensation tunes the external channel for transistors used as
// diode-connected sensors; BetaAuto enables automatic detection. Tuning is
// refused while the diode reads as faulted.
func (d *Device) SetBetaCompensation(beta uint8) error {
	if beta > fieldBetaComp.Max() {
		return fmt.Errorf("beta compensation 0x%02X: %w", beta, ErrValueRange)
	}
	if err := d.requireDiode(); err != nil {
		return err
	}
	return d.WriteField(fieldBetaComp, beta)
}

func (d *Device) requireDiode() error {
	fault, err := d.HasSensorFault()
	if err != nil {
		return err
	}
	if fault {
		return fmt.Errorf("external diode tuning: %w", ErrSensorFault)
	}
	return nil
}

// Canonical fields the facade operations write through the register map.
var (
	fieldConversionRate = mustField("conversion_rate")
	fieldIdeality       = mustField("ideality")
	fieldBetaComp       = mustField("beta_comp")
	fieldCriticalHyst   = mustField("critical_hysteresis")
	fieldLUTHysteresis  = mustField("lut_hysteresis")
	fieldFanSetting     = mustField("fan_setting")
)

func mustField(name string) Field {
	f, err := FieldByName(name)
	if err != nil {
		panic(err)
	}
	return f
}
