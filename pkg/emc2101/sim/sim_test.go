package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/emc2101/sim"
)

// readReg and writeReg go through the bus contract, side effects included.
func readReg(t *testing.T, chip *sim.Device, reg uint8) uint8 {
	t.Helper()
	var buf [1]byte
	require.NoError(t, chip.Tx(emc2101.Address, []byte{reg}, buf[:]))
	return buf[0]
}

func writeReg(t *testing.T, chip *sim.Device, reg, val uint8) {
	t.Helper()
	require.NoError(t, chip.Tx(emc2101.Address, []byte{reg, val}, nil))
}

func TestPowerOnState(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	for reg, val := range emc2101.PowerOnDefaults() {
		assert.Equal(t, val, chip.Register(reg), "register 0x%02X", reg)
	}

	assert.Equal(t, uint8(emc2101.ProductEMC2101), chip.Register(emc2101.RegProductID))
	assert.Equal(t, uint8(emc2101.ManufacturerSMSC), chip.Register(emc2101.RegManufacturerID))
	assert.Equal(t, uint8(0x02), chip.Register(emc2101.RegRevision))

	// Ambient conditions already converted: 20 degC die, 21.5 degC diode.
	assert.Equal(t, uint8(0x14), chip.Register(emc2101.RegInternalTemp))
	assert.Equal(t, uint8(0x15), chip.Register(emc2101.RegExternalTempMSB))
	assert.Equal(t, uint8(0x80), chip.Register(emc2101.RegExternalTempLSB))
	assert.Zero(t, chip.Register(emc2101.RegStatus))
}

func TestTransferShapes(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	var one [1]byte

	// Only the chip's fixed address acknowledges.
	assert.Error(t, chip.Tx(0x30, []byte{emc2101.RegConfig}, one[:]))

	// Anything but 1-write/1-read or 2-write/0-read is not a transfer the
	// chip supports; there is no register auto-increment.
	assert.Error(t, chip.Tx(emc2101.Address, []byte{0x00}, make([]byte, 2)))
	assert.Error(t, chip.Tx(emc2101.Address, []byte{0x03, 0x04, 0x05}, nil))
	assert.Error(t, chip.Tx(emc2101.Address, nil, one[:]))
}

func TestReadsWritesCounters(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	require.Zero(t, chip.Reads())
	require.Zero(t, chip.Writes())

	readReg(t, chip, emc2101.RegConfig)
	readReg(t, chip, emc2101.RegConfig)
	writeReg(t, chip, emc2101.RegScratch1, 0xAB)
	writeReg(t, chip, emc2101.RegInternalTemp, 0x00) // ignored but still counted

	assert.Equal(t, 2, chip.Reads())
	assert.Equal(t, 2, chip.Writes())
}

func TestReadOnlyRegistersIgnoreWrites(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	for _, reg := range []uint8{
		emc2101.RegInternalTemp,
		emc2101.RegExternalTempMSB,
		emc2101.RegExternalTempLSB,
		emc2101.RegStatus,
		emc2101.RegTachLSB,
		emc2101.RegTachMSB,
		emc2101.RegProductID,
		emc2101.RegManufacturerID,
		emc2101.RegRevision,
	} {
		before := chip.Register(reg)
		writeReg(t, chip, reg, ^before)
		assert.Equal(t, before, chip.Register(reg), "register 0x%02X", reg)
	}
}

func TestStatusClearOnRead(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	chip.SetExternalTemp(75) // above the 70 degC default high limit

	assert.Equal(t, uint8(emc2101.StatusExternalHigh), readReg(t, chip, emc2101.RegStatus))
	assert.Zero(t, readReg(t, chip, emc2101.RegStatus), "latched bit survived the read")

	// The condition still holds, so the next conversion latches it again.
	chip.SetExternalTemp(76)
	assert.Equal(t, uint8(emc2101.StatusExternalHigh), readReg(t, chip, emc2101.RegStatus))
}

func TestExternalTempPairLatch(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	chip.SetExternalTemp(21.5)

	// Reading the MSB latches the fraction byte; a conversion between the
	// two reads must not tear the pair.
	assert.Equal(t, uint8(0x15), readReg(t, chip, emc2101.RegExternalTempMSB))
	chip.SetExternalTemp(40)
	assert.Equal(t, uint8(0x80), readReg(t, chip, emc2101.RegExternalTempLSB))

	// The next MSB read sees the new conversion.
	assert.Equal(t, uint8(0x28), readReg(t, chip, emc2101.RegExternalTempMSB))
	assert.Equal(t, uint8(0x00), readReg(t, chip, emc2101.RegExternalTempLSB))
}

func TestTachReading(t *testing.T) {
	t.Parallel()

	chip := sim.New()

	// Pin 6 defaults to the alert output; with no tach input the counter
	// reads all ones.
	assert.Equal(t, uint8(0xFF), readReg(t, chip, emc2101.RegTachLSB))
	assert.Equal(t, uint8(0xFF), readReg(t, chip, emc2101.RegTachMSB))

	writeReg(t, chip, emc2101.RegConfig, emc2101.ConfigTachInput)
	chip.SetFanModel(func(step uint8) int { return 100 * int(step) })

	// Stopped fan still reads invalid.
	assert.Equal(t, uint8(0xFF), readReg(t, chip, emc2101.RegTachLSB))

	// 2000 RPM at step 20 is a count of 2700 (0x0A8C). The LSB read
	// latches the MSB so the pair cannot tear.
	writeReg(t, chip, emc2101.RegFanSetting, 20)
	assert.Equal(t, uint8(0x8C), readReg(t, chip, emc2101.RegTachLSB))
	writeReg(t, chip, emc2101.RegFanSetting, 5)
	assert.Equal(t, uint8(0x0A), readReg(t, chip, emc2101.RegTachMSB))
}

func TestCriticalLimitWriteGate(t *testing.T) {
	t.Parallel()

	chip := sim.New()

	// Locked by default.
	writeReg(t, chip, emc2101.RegCriticalLimit, 0x60)
	assert.Equal(t, uint8(0x55), chip.Register(emc2101.RegCriticalLimit))

	writeReg(t, chip, emc2101.RegConfig, emc2101.ConfigCriticalOverride)
	writeReg(t, chip, emc2101.RegCriticalLimit, 0x60)
	assert.Equal(t, uint8(0x60), chip.Register(emc2101.RegCriticalLimit))

	// The override bit is one-time until power cycle: clearing it is
	// silently ignored.
	writeReg(t, chip, emc2101.RegConfig, 0x00)
	assert.Equal(t, uint8(emc2101.ConfigCriticalOverride), chip.Register(emc2101.RegConfig))
	writeReg(t, chip, emc2101.RegCriticalLimit, 0x50)
	assert.Equal(t, uint8(0x50), chip.Register(emc2101.RegCriticalLimit))
}

func TestLookupTableWriteLockout(t *testing.T) {
	t.Parallel()

	chip := sim.New()

	// The program bit is set at power-on, so the slots are writable.
	writeReg(t, chip, emc2101.RegLUTBase, 30)
	writeReg(t, chip, emc2101.RegLUTBase+1, 8)
	writeReg(t, chip, emc2101.RegFanSetting, 5)
	assert.Equal(t, uint8(30), chip.Register(emc2101.RegLUTBase))
	assert.Equal(t, uint8(5), chip.Register(emc2101.RegFanSetting))

	// Clearing the program bit hands control to the table and locks both
	// the slots and the fan setting register.
	writeReg(t, chip, emc2101.RegFanConfig, 0x00)
	writeReg(t, chip, emc2101.RegLUTBase, 99)
	writeReg(t, chip, emc2101.RegFanSetting, 12)
	assert.Equal(t, uint8(30), chip.Register(emc2101.RegLUTBase))
	assert.Equal(t, uint8(5), chip.Register(emc2101.RegFanSetting))

	// With 21.5 degC ambient below the 30 degC slot the table selects
	// step 0, and the fan setting register reads the table's choice.
	assert.Equal(t, uint8(0), readReg(t, chip, emc2101.RegFanSetting))
	chip.SetExternalTemp(45)
	assert.Equal(t, uint8(8), readReg(t, chip, emc2101.RegFanSetting))

	// Setting the bit again unlocks everything.
	writeReg(t, chip, emc2101.RegFanConfig, emc2101.FanCfgProgram)
	writeReg(t, chip, emc2101.RegLUTBase, 35)
	assert.Equal(t, uint8(35), chip.Register(emc2101.RegLUTBase))
}

func TestStandbyAndOneShot(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	writeReg(t, chip, emc2101.RegConfig, emc2101.ConfigStandby)

	// Conversions stop in standby; the measurement registers go stale.
	chip.SetExternalTemp(50)
	assert.Equal(t, uint8(0x15), chip.Register(emc2101.RegExternalTempMSB))

	// A one-shot trigger converts once without leaving standby.
	writeReg(t, chip, emc2101.RegOneShot, 0x00)
	assert.Equal(t, uint8(0x32), chip.Register(emc2101.RegExternalTempMSB))
	assert.Equal(t, uint8(emc2101.ConfigStandby), chip.Register(emc2101.RegConfig))

	// Leaving standby resumes converting immediately.
	chip.SetExternalTemp(60)
	assert.Equal(t, uint8(0x32), chip.Register(emc2101.RegExternalTempMSB))
	writeReg(t, chip, emc2101.RegConfig, 0x00)
	assert.Equal(t, uint8(0x3C), chip.Register(emc2101.RegExternalTempMSB))
}

func TestDiodeFaultReading(t *testing.T) {
	t.Parallel()

	chip := sim.New()

	chip.SetDiodeFault(sim.DiodeOpen)
	assert.Equal(t, uint8(0x7F), readReg(t, chip, emc2101.RegExternalTempMSB))
	assert.Equal(t, uint8(0x00), readReg(t, chip, emc2101.RegExternalTempLSB))
	assert.Equal(t, uint8(emc2101.StatusDiodeFault), readReg(t, chip, emc2101.RegStatus))

	chip.SetDiodeFault(sim.DiodeShort)
	assert.Equal(t, uint8(0x7F), readReg(t, chip, emc2101.RegExternalTempMSB))
	assert.Equal(t, uint8(0xE0), readReg(t, chip, emc2101.RegExternalTempLSB))

	chip.SetDiodeFault(sim.DiodeOK)
	assert.Equal(t, uint8(0x15), readReg(t, chip, emc2101.RegExternalTempMSB))
}

func TestCriticalForcesFullDrive(t *testing.T) {
	t.Parallel()

	chip := sim.New()
	writeReg(t, chip, emc2101.RegConfig, emc2101.ConfigTachInput)
	chip.SetFanModel(func(step uint8) int { return 40 * int(step) })
	writeReg(t, chip, emc2101.RegFanSetting, 5)

	// Manual drive below the critical limit.
	count := uint16(readReg(t, chip, emc2101.RegTachLSB))
	count |= uint16(readReg(t, chip, emc2101.RegTachMSB)) << 8
	assert.Equal(t, uint16(5400000/200), count)

	// Above 85 degC the chip overrides any drive source with full power.
	chip.SetExternalTemp(90)
	count = uint16(readReg(t, chip, emc2101.RegTachLSB))
	count |= uint16(readReg(t, chip, emc2101.RegTachMSB)) << 8
	assert.Equal(t, uint16(5400000/(40*0x3F)), count)
	assert.Equal(t, uint8(emc2101.StatusExternalHigh|emc2101.StatusCritical),
		readReg(t, chip, emc2101.RegStatus))
}
