// Package sim provides an in-memory EMC2101 that implements the same bus
// contract as the physical chip. The point is that the full driver test
// suite runs unmodified against either: the simulation reproduces register
// defaults, read side effects and mode-dependent quirks, not just storage.
package sim

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

// DiodeFault selects the failure the external channel reports.
type DiodeFault int

const (
	DiodeOK DiodeFault = iota
	DiodeOpen
	DiodeShort
)

// Device is a simulated EMC2101 register bank with chip behavior attached:
// clear-on-read status, read-only registers, the lookup table write
// lockout, the sticky critical-limit override, and a tach reading derived
// from whatever currently drives the fan. Safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	addr uint16
	regs [256]uint8
	log  *zap.Logger

	// Physical inputs, applied to the measurement registers on the next
	// conversion.
	internalTemp float64
	externalTemp float64
	fault        DiodeFault

	// fanModel maps a drive step to the speed a fan would reach there.
	fanModel func(step uint8) int

	// Latches modeling the paired-register read behavior.
	extLSBLatch  uint8
	tachMSBLatch uint8

	reads  int
	writes int
}

// New seeds a simulated chip with its power-on defaults and plausible
// ambient conditions: 20 degC internal, 21.5 degC external, a generic
// 2000 RPM fan, no faults.
func New() *Device {
	d := &Device{
		addr:         emc2101.Address,
		log:          zap.L().Named("emc2101").Named("sim"),
		internalTemp: 20,
		externalTemp: 21.5,
		fanModel:     defaultFanModel(),
	}
	for reg, val := range emc2101.PowerOnDefaults() {
		d.regs[reg] = val
	}
	d.regs[emc2101.RegProductID] = emc2101.ProductEMC2101
	d.regs[emc2101.RegManufacturerID] = emc2101.ManufacturerSMSC
	d.regs[emc2101.RegRevision] = 0x02
	d.convert()
	d.extLSBLatch = d.regs[emc2101.RegExternalTempLSB]
	return d
}

func defaultFanModel() func(uint8) int {
	p := emc2101.GenericPWMProfile()
	return func(step uint8) int {
		best := 0
		for _, s := range p.Steps {
			if s.Step <= step && s.RPM > 0 {
				best = s.RPM
			}
		}
		return best
	}
}

// Tx implements the bus transport contract the driver runs on: a one-byte
// write selects a register to read, a two-byte write stores a value.
// Transfers to any other address simulate a missing device.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr != d.addr {
		return fmt.Errorf("no ack from address 0x%02X", addr)
	}
	switch {
	case len(w) == 1 && len(r) == 1:
		d.reads++
		r[0] = d.readReg(w[0])
		return nil
	case len(w) == 2 && len(r) == 0:
		d.writes++
		d.writeReg(w[0], w[1])
		return nil
	default:
		return fmt.Errorf("unsupported transfer shape: %d write, %d read bytes", len(w), len(r))
	}
}

// Reads returns how many register reads the device served.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Writes returns how many register writes the device accepted or ignored.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// SetInternalTemp changes the die temperature the chip measures.
func (d *Device) SetInternalTemp(degC float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.internalTemp = degC
	d.convertIfRunning()
}

// SetExternalTemp changes the remote diode temperature the chip measures.
func (d *Device) SetExternalTemp(degC float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.externalTemp = degC
	d.convertIfRunning()
}

// SetDiodeFault breaks or repairs the external diode.
func (d *Device) SetDiodeFault(fault DiodeFault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = fault
	d.convertIfRunning()
}

// SetFanModel replaces the step-to-RPM response of the attached fan. A
// return of 0 or less means the fan does not spin at that step.
func (d *Device) SetFanModel(model func(step uint8) int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fanModel = model
}

// SetProductID overrides the identity register, for probing mismatched
// hardware in tests.
func (d *Device) SetProductID(id uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[emc2101.RegProductID] = id
}

// SetManufacturerID overrides the identity register.
func (d *Device) SetManufacturerID(id uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[emc2101.RegManufacturerID] = id
}

// Register peeks at the raw register bank without read side effects.
func (d *Device) Register(reg uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

func (d *Device) readReg(reg uint8) uint8 {
	switch reg {
	case emc2101.RegStatus:
		// Latched bits are consumed by the read; busy is a level.
		val := d.regs[reg]
		d.regs[reg] &= emc2101.StatusBusy
		return val

	case emc2101.RegExternalTempMSB:
		// Reading the MSB latches the fraction byte so the pair stays
		// consistent.
		d.extLSBLatch = d.regs[emc2101.RegExternalTempLSB]
		return d.regs[reg]

	case emc2101.RegExternalTempLSB:
		return d.extLSBLatch

	case emc2101.RegTachLSB:
		count := d.tachCount()
		d.tachMSBLatch = uint8(count >> 8)
		return uint8(count)

	case emc2101.RegTachMSB:
		return d.tachMSBLatch

	case emc2101.RegFanSetting:
		// While the table drives the fan the register reflects the drive
		// the table selected, not the last manual value.
		if d.lutActive() {
			return d.currentStep()
		}
		return d.regs[reg]

	default:
		return d.regs[reg]
	}
}

func (d *Device) writeReg(reg, val uint8) {
	switch reg {
	case emc2101.RegInternalTemp, emc2101.RegExternalTempMSB, emc2101.RegStatus,
		emc2101.RegExternalTempLSB, emc2101.RegTachLSB, emc2101.RegTachMSB,
		emc2101.RegProductID, emc2101.RegManufacturerID, emc2101.RegRevision:
		d.log.Debug("write to read-only register ignored", zap.Uint8("reg", reg))
		return

	case emc2101.RegOneShot:
		// Write-only trigger; the value is ignored and nothing is stored.
		d.convert()
		return

	case emc2101.RegConfig:
		// The critical override bit is one-time until power cycle.
		if d.regs[reg]&emc2101.ConfigCriticalOverride != 0 {
			val |= emc2101.ConfigCriticalOverride
		}
		wasStandby := d.regs[reg]&emc2101.ConfigStandby != 0
		d.regs[reg] = val
		if wasStandby && val&emc2101.ConfigStandby == 0 {
			d.convert()
		}
		return

	case emc2101.RegCriticalLimit:
		if d.regs[emc2101.RegConfig]&emc2101.ConfigCriticalOverride == 0 {
			d.log.Debug("critical limit write ignored, override not set")
			return
		}
		d.regs[reg] = val
		return

	case emc2101.RegFanSetting:
		if d.lutActive() {
			d.log.Debug("fan setting write ignored, lookup table active")
			return
		}
		d.regs[reg] = val
		return
	}

	if reg >= emc2101.RegLUTBase && reg < emc2101.RegLUTBase+16 {
		if d.lutActive() {
			d.log.Debug("lookup table write ignored, table active", zap.Uint8("reg", reg))
			return
		}
	}
	d.regs[reg] = val
}

func (d *Device) lutActive() bool {
	return d.regs[emc2101.RegFanConfig]&emc2101.FanCfgProgram == 0
}

func (d *Device) convertIfRunning() {
	if d.regs[emc2101.RegConfig]&emc2101.ConfigStandby != 0 {
		return
	}
	d.convert()
}

// convert updates the measurement registers from the physical inputs and
// latches status bits for violated limits, like one conversion cycle of
// the real chip.
func (d *Device) convert() {
	d.regs[emc2101.RegInternalTemp] = uint8(int8(clampWhole(d.internalTemp)))

	switch d.fault {
	case DiodeOpen:
		d.regs[emc2101.RegExternalTempMSB] = 0x7F
		d.regs[emc2101.RegExternalTempLSB] = 0x00
	case DiodeShort:
		d.regs[emc2101.RegExternalTempMSB] = 0x7F
		d.regs[emc2101.RegExternalTempLSB] = 0xE0
	default:
		if msb, lsb, _, err := emc2101.EncodeTemperature(d.externalTemp); err == nil {
			d.regs[emc2101.RegExternalTempMSB] = msb
			d.regs[emc2101.RegExternalTempLSB] = lsb
		}
	}

	var status uint8
	internal := float64(int8(d.regs[emc2101.RegInternalTemp]))
	if internal > float64(int8(d.regs[emc2101.RegInternalLimit])) {
		status |= emc2101.StatusInternalHigh
	}
	if d.fault != DiodeOK {
		status |= emc2101.StatusDiodeFault
	} else {
		high := emc2101.DecodeTemperature(
			d.regs[emc2101.RegExternalHighMSB], d.regs[emc2101.RegExternalHighLSB])
		low := emc2101.DecodeTemperature(
			d.regs[emc2101.RegExternalLowMSB], d.regs[emc2101.RegExternalLowLSB])
		if d.externalTemp > high {
			status |= emc2101.StatusExternalHigh
		}
		if d.externalTemp < low {
			status |= emc2101.StatusExternalLow
		}
		if d.externalTemp > float64(int8(d.regs[emc2101.RegCriticalLimit])) {
			status |= emc2101.StatusCritical
		}
	}

	if d.tachMonitored() {
		limit := uint16(d.regs[emc2101.RegTachLimitMSB])<<8 |
			uint16(d.regs[emc2101.RegTachLimitLSB])
		if limit != emc2101.TachInvalid && d.tachCount() > limit {
			status |= emc2101.StatusTachLow
		}
	}
	d.regs[emc2101.RegStatus] |= status
}

func (d *Device) tachMonitored() bool {
	return d.regs[emc2101.RegConfig]&emc2101.ConfigTachInput != 0
}

// tachCount derives the tach reading from whatever currently drives the
// fan. With pin 6 in alert mode there is no tach input and the counter
// reads all ones, a real-chip quirk the driver has to live with.
func (d *Device) tachCount() uint16 {
	if !d.tachMonitored() {
		return emc2101.TachInvalid
	}
	rpm := d.fanModel(d.currentStep())
	if rpm <= 0 {
		return emc2101.TachInvalid
	}
	count := 5400000 / rpm
	if count >= emc2101.TachInvalid {
		return emc2101.TachInvalid
	}
	return uint16(count)
}

// currentStep resolves the drive step: the critical limit forces full
// drive, an active lookup table selects by temperature, otherwise the fan
// setting register holds.
func (d *Device) currentStep() uint8 {
	if d.fault == DiodeOK &&
		d.externalTemp > float64(int8(d.regs[emc2101.RegCriticalLimit])) {
		return 0x3F
	}
	if !d.lutActive() {
		return d.regs[emc2101.RegFanSetting]
	}
	if d.fault != DiodeOK {
		// No usable diode while the table needs one: full drive.
		return 0x3F
	}
	temp := d.externalTemp
	if d.regs[emc2101.RegFanConfig]&emc2101.FanCfgForceTemp != 0 {
		temp = float64(int8(d.regs[emc2101.RegForcedTemp]))
	}
	var step uint8
	for i := uint8(0); i < 8; i++ {
		slotTemp := d.regs[emc2101.RegLUTBase+2*i]
		slotStep := d.regs[emc2101.RegLUTBase+2*i+1]
		if slotTemp == 0 && slotStep == 0 {
			continue
		}
		if temp >= float64(slotTemp) {
			step = slotStep
		}
	}
	return step
}

func clampWhole(degC float64) int {
	v := int(degC)
	if v < -64 {
		return -64
	}
	if v > 127 {
		return 127
	}
	return v
}
