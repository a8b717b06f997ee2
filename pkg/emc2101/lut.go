package emc2101

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// lutSlots is the number of (temperature, step) pairs the chip stores.
const lutSlots = 8

// lutTempMax caps lookup table thresholds. The register would hold more,
// but the external diode channel is not specified beyond this.
const lutTempMax = 100

// LUTEntry is one slot of the hardware lookup table: at and above TempC
// the chip drives the fan at Step.
type LUTEntry struct {
	TempC uint8
	Step  uint8
}

func validateLUT(entries []LUTEntry, stepMax uint8) error {
	if len(entries) > lutSlots {
		return fmt.Errorf("%d entries exceed the %d hardware slots: %w",
			len(entries), lutSlots, ErrTooManyEntries)
	}
	for i, e := range entries {
		if e.TempC > lutTempMax {
			return fmt.Errorf("entry %d: temperature %d degC outside 0..%d: %w",
				i, e.TempC, lutTempMax, ErrValueRange)
		}
		if e.Step > stepMax {
			return fmt.Errorf("entry %d: step %d outside 0..%d: %w",
				i, e.Step, stepMax, ErrValueRange)
		}
		if i == 0 {
			continue
		}
		if e.TempC <= entries[i-1].TempC {
			return fmt.Errorf("entry %d: temperature %d degC not above %d: %w",
				i, e.TempC, entries[i-1].TempC, ErrNonMonotonic)
		}
		if e.Step < entries[i-1].Step {
			return fmt.Errorf("entry %d: step %d drops below %d: %w",
				i, e.Step, entries[i-1].Step, ErrNonMonotonic)
		}
	}
	return nil
}

// ProgramLookupTable validates and writes a temperature-to-step curve,
// then hands fan control to the chip. The enable bit is written last, so a
// partially written table is never active. Unused slots are zeroed.
//
// Thresholds must be strictly increasing and steps non-decreasing
// (ErrNonMonotonic), at most eight entries (ErrTooManyEntries), within the
// temperature and current step domains (ErrValueRange). The table is
// driven by the external diode, so a faulted diode rejects the call
// (ErrSensorFault). All rejections happen before the first write; a
// previously active table stays untouched.
func (d *Device) ProgramLookupTable(entries []LUTEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("lookup table needs at least one entry: %w", ErrValueRange)
	}
	max, err := d.stepRange()
	if err != nil {
		return err
	}
	if err := validateLUT(entries, max); err != nil {
		return err
	}
	fault, err := d.HasSensorFault()
	if err != nil {
		return err
	}
	if fault {
		return fmt.Errorf("lookup table needs the external diode: %w", ErrSensorFault)
	}

	// Program bit set: the fan setting register drives the fan and the
	// slots become writable.
	if err := d.updateRegister(RegFanConfig, FanCfgProgram, 0); err != nil {
		return err
	}
	for i := 0; i < lutSlots; i++ {
		var e LUTEntry
		if i < len(entries) {
			e = entries[i]
		}
		if err := d.writeRegister(RegLUTBase+uint8(2*i), e.TempC); err != nil {
			return err
		}
		if err := d.writeRegister(RegLUTBase+uint8(2*i)+1, e.Step); err != nil {
			return err
		}
	}
	if err := d.updateRegister(RegFanConfig, 0, FanCfgProgram); err != nil {
		return err
	}
	d.log.Info("lookup table programmed", zap.Int("entries", len(entries)))
	return nil
}

// DisableLookupTable returns fan control to the fan setting register. Slot
// contents are left as-is; the chip ignores them while the table is
// disabled.
func (d *Device) DisableLookupTable() error {
	return d.updateRegister(RegFanConfig, FanCfgProgram, 0)
}

// LookupTableEnabled reports whether the table currently drives the fan.
func (d *Device) LookupTableEnabled() (bool, error) {
	return d.lutActive()
}

// LookupTable reads the programmed curve back from the chip along with
// whether it is driving the fan. Zeroed tail slots are not returned.
func (d *Device) LookupTable() ([]LUTEntry, bool, error) {
	enabled, err := d.lutActive()
	if err != nil {
		return nil, false, err
	}
	entries := make([]LUTEntry, 0, lutSlots)
	for i := 0; i < lutSlots; i++ {
		temp, err := d.readRegister(RegLUTBase + uint8(2*i))
		if err != nil {
			return nil, false, err
		}
		step, err := d.readRegister(RegLUTBase + uint8(2*i) + 1)
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, LUTEntry{TempC: temp, Step: step})
	}
	for len(entries) > 0 && entries[len(entries)-1] == (LUTEntry{}) {
		entries = entries[:len(entries)-1]
	}
	return entries, enabled, nil
}

// SetLUTHysteresis sets how far the temperature must drop below a slot
// threshold before the table steps back down. Whole degrees, 0 to 31.
func (d *Device) SetLUTHysteresis(degC float64) (float64, error) {
	q := math.Round(degC)
	if q < 0 || q > float64(fieldLUTHysteresis.Max()) {
		return 0, fmt.Errorf("lookup table hysteresis %.1f degC: %w", degC, ErrValueRange)
	}
	return q, d.WriteField(fieldLUTHysteresis, uint8(q))
}

// LUTHysteresis reads the step-down band.
func (d *Device) LUTHysteresis() (float64, error) {
	raw, err := d.ReadField(fieldLUTHysteresis)
	return float64(raw), err
}
