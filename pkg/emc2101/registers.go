package emc2101

// Register addresses.
// Datasheet: https://ww1.microchip.com/downloads/en/DeviceDoc/2101.pdf
const (
	// Address is the I2C bus address. It is fixed in hardware.
	Address = 0x4C

	RegInternalTemp    = 0x00 // internal diode, whole degrees, read-only
	RegExternalTempMSB = 0x01 // read before the LSB, the chip latches the pair
	RegStatus          = 0x02 // latched bits clear on read
	RegConfig          = 0x03
	RegConversionRate  = 0x04
	RegInternalLimit   = 0x05 // internal high limit, whole degrees
	RegExternalHighMSB = 0x07
	RegExternalLowMSB  = 0x08
	RegForcedTemp      = 0x0C // substitute external temp used for lookup table testing
	RegOneShot         = 0x0F // write triggers a conversion while in standby
	RegExternalTempLSB = 0x10 // fraction bits 7..5
	RegScratch1        = 0x11
	RegScratch2        = 0x12
	RegExternalHighLSB = 0x13
	RegExternalLowLSB  = 0x14
	RegAlertMask       = 0x16
	RegIdealityFactor  = 0x17
	RegBetaComp        = 0x18
	RegCriticalLimit   = 0x19 // write-locked until ConfigCriticalOverride is set
	RegCriticalHyst    = 0x21
	RegTachLSB         = 0x46 // read before the MSB, the chip latches the pair
	RegTachMSB         = 0x47
	RegTachLimitLSB    = 0x48
	RegTachLimitMSB    = 0x49
	RegFanConfig       = 0x4A
	RegFanSpinup       = 0x4B
	RegFanSetting      = 0x4C // read-only while the lookup table drives the fan
	RegPWMFrequency    = 0x4D
	RegPWMDivide       = 0x4E
	RegLUTHysteresis   = 0x4F
	RegLUTBase         = 0x50 // 8 (temp, setting) pairs through 0x5F
	RegAveraging       = 0xBF
	RegProductID       = 0xFD
	RegManufacturerID  = 0xFE
	RegRevision        = 0xFF
)

// Config register (0x03) bits.
const (
	ConfigAlertMasked      = 1 << 7 // suppress ALERT assertions
	ConfigStandby          = 1 << 6
	ConfigFanStandby       = 1 << 5 // stop the fan output in standby
	ConfigDACOutput        = 1 << 4 // 1 = analog drive on the FAN pin, 0 = PWM
	ConfigTimeoutDisable   = 1 << 3 // disable the SMBus timeout
	ConfigTachInput        = 1 << 2 // 1 = pin 6 is the tach input, 0 = ALERT output
	ConfigCriticalOverride = 1 << 1 // unlock the TCRIT limit register
	ConfigQueue            = 1 << 0 // require consecutive out-of-limit readings
)

// Status register (0x02) bits. All except StatusBusy are latched and clear
// when the register is read.
const (
	StatusBusy         = 1 << 7 // conversion in progress
	StatusInternalHigh = 1 << 6
	StatusEEPROM       = 1 << 5 // EMC2101-R configuration load error
	StatusExternalHigh = 1 << 4
	StatusExternalLow  = 1 << 3
	StatusDiodeFault   = 1 << 2 // external diode open or shorted
	StatusCritical     = 1 << 1 // TCRIT limit exceeded
	StatusTachLow      = 1 << 0 // fan below the tach limit
)

// Fan config register (0x4A) bits.
const (
	FanCfgForceTemp     = 1 << 6 // use RegForcedTemp instead of the measured external temp
	FanCfgProgram       = 1 << 5 // 1 = RegFanSetting drives the fan and the table is writable
	FanCfgPolarity      = 1 << 4 // invert the PWM output
	FanCfgClockSelect   = 1 << 3 // use the 1.4 kHz base clock instead of 360 kHz
	FanCfgClockOverride = 1 << 2 // let RegPWMDivide override the base clock
	FanCfgTachModeMask  = 0x03   // tach input conditioning
)

// Fan spin-up register (0x4B) masks.
const (
	SpinupIgnoreTach   = 1 << 5 // do not abort spin-up on a valid tach reading
	SpinupStrengthMask = 0x18
	SpinupDurationMask = 0x07
)

// Identity register values.
const (
	ManufacturerSMSC = 0x5D
	ProductEMC2101   = 0x16
	ProductEMC2101R  = 0x28
)

// powerOnDefaults holds the reset value of every writable register.
// Measurement, status and identity registers are read-only and excluded.
var powerOnDefaults = map[uint8]uint8{
	RegConfig:          0x00,
	RegConversionRate:  0x08, // 16 conversions/s
	RegInternalLimit:   0x46, // 70 degC
	RegExternalHighMSB: 0x46,
	RegExternalLowMSB:  0x00,
	RegForcedTemp:      0x00,
	RegScratch1:        0x00,
	RegScratch2:        0x00,
	RegExternalHighLSB: 0x00,
	RegExternalLowLSB:  0x00,
	RegAlertMask:       0xA4,
	RegIdealityFactor:  0x12,
	RegBetaComp:        0x08,
	RegCriticalLimit:   0x55, // 85 degC
	RegCriticalHyst:    0x0A,
	RegTachLimitLSB:    0xFF, // no limit
	RegTachLimitMSB:    0xFF,
	RegFanConfig:       0x20, // fan setting register drives the fan
	RegFanSpinup:       0x3F,
	RegFanSetting:      0x00,
	RegPWMFrequency:    0x17,
	RegPWMDivide:       0x01,
	RegLUTHysteresis:   0x04,
	RegAveraging:       0x00,
}

// PowerOnDefaults returns the reset value of every writable register. The
// simulated backend seeds its register bank from the same table the reset
// utility writes.
func PowerOnDefaults() map[uint8]uint8 {
	out := make(map[uint8]uint8, len(powerOnDefaults))
	for reg, val := range powerOnDefaults {
		out[reg] = val
	}
	return out
}
