package emc2101

import (
	"fmt"
	"sort"
)

// FieldKind selects how a field's raw bits are interpreted.
type FieldKind int

const (
	// FieldRaw is an unsigned integer, right-aligned after masking.
	FieldRaw FieldKind = iota
	// FieldTemp is a whole-degree two's complement temperature.
	FieldTemp
	// FieldFlag is a single bit.
	FieldFlag
)

// Field describes a named bit field within one register: where it lives and
// how its bits decode. The set of fields is closed and defined below;
// FieldByName serves tooling that addresses fields by name.
type Field struct {
	Name  string
	Reg   uint8
	Mask  uint8
	Shift uint8
	Kind  FieldKind
}

// Max returns the largest raw value the field can hold.
func (f Field) Max() uint8 {
	return f.Mask >> f.Shift
}

// Format renders a raw field value for display.
func (f Field) Format(raw uint8) string {
	switch f.Kind {
	case FieldTemp:
		return fmt.Sprintf("%d degC", int8(raw))
	case FieldFlag:
		if raw != 0 {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%d (0x%02X)", raw, raw)
	}
}

func flag(name string, reg, bit uint8) Field {
	return Field{Name: name, Reg: reg, Mask: 1 << bit, Shift: bit, Kind: FieldFlag}
}

var fields = []Field{
	{Name: "internal_temp", Reg: RegInternalTemp, Mask: 0xFF, Kind: FieldTemp},
	{Name: "external_temp_msb", Reg: RegExternalTempMSB, Mask: 0xFF, Kind: FieldTemp},
	{Name: "status", Reg: RegStatus, Mask: 0xFF, Kind: FieldRaw},

	flag("alert_masked", RegConfig, 7),
	flag("standby", RegConfig, 6),
	flag("fan_standby", RegConfig, 5),
	flag("dac_output", RegConfig, 4),
	flag("timeout_disable", RegConfig, 3),
	flag("tach_input", RegConfig, 2),
	flag("critical_override", RegConfig, 1),
	flag("alert_queue", RegConfig, 0),

	{Name: "conversion_rate", Reg: RegConversionRate, Mask: 0x0F, Kind: FieldRaw},
	{Name: "internal_limit", Reg: RegInternalLimit, Mask: 0xFF, Kind: FieldTemp},
	{Name: "external_high_limit", Reg: RegExternalHighMSB, Mask: 0xFF, Kind: FieldTemp},
	{Name: "external_low_limit", Reg: RegExternalLowMSB, Mask: 0xFF, Kind: FieldTemp},
	{Name: "forced_temp", Reg: RegForcedTemp, Mask: 0xFF, Kind: FieldTemp},
	{Name: "scratch_1", Reg: RegScratch1, Mask: 0xFF, Kind: FieldRaw},
	{Name: "scratch_2", Reg: RegScratch2, Mask: 0xFF, Kind: FieldRaw},
	{Name: "alert_mask", Reg: RegAlertMask, Mask: 0xFF, Kind: FieldRaw},
	{Name: "ideality", Reg: RegIdealityFactor, Mask: 0x3F, Kind: FieldRaw},
	{Name: "beta_comp", Reg: RegBetaComp, Mask: 0x0F, Kind: FieldRaw},
	{Name: "critical_limit", Reg: RegCriticalLimit, Mask: 0xFF, Kind: FieldTemp},
	{Name: "critical_hysteresis", Reg: RegCriticalHyst, Mask: 0x1F, Kind: FieldRaw},

	flag("force_temp_enable", RegFanConfig, 6),
	flag("lut_program", RegFanConfig, 5),
	flag("pwm_polarity", RegFanConfig, 4),
	flag("pwm_clock_select", RegFanConfig, 3),
	flag("pwm_clock_override", RegFanConfig, 2),
	{Name: "tach_mode", Reg: RegFanConfig, Mask: FanCfgTachModeMask, Kind: FieldRaw},

	flag("spinup_ignore_tach", RegFanSpinup, 5),
	{Name: "spinup_strength", Reg: RegFanSpinup, Mask: SpinupStrengthMask, Shift: 3, Kind: FieldRaw},
	{Name: "spinup_duration", Reg: RegFanSpinup, Mask: SpinupDurationMask, Kind: FieldRaw},

	{Name: "fan_setting", Reg: RegFanSetting, Mask: 0x3F, Kind: FieldRaw},
	{Name: "pwm_frequency", Reg: RegPWMFrequency, Mask: 0x1F, Kind: FieldRaw},
	{Name: "pwm_divide", Reg: RegPWMDivide, Mask: 0xFF, Kind: FieldRaw},
	{Name: "lut_hysteresis", Reg: RegLUTHysteresis, Mask: 0x1F, Kind: FieldRaw},
	{Name: "averaging", Reg: RegAveraging, Mask: 0x07, Kind: FieldRaw},

	{Name: "product_id", Reg: RegProductID, Mask: 0xFF, Kind: FieldRaw},
	{Name: "manufacturer_id", Reg: RegManufacturerID, Mask: 0xFF, Kind: FieldRaw},
	{Name: "revision", Reg: RegRevision, Mask: 0xFF, Kind: FieldRaw},
}

var fieldIndex = func() map[string]Field {
	idx := make(map[string]Field, len(fields))
	for _, f := range fields {
		idx[f.Name] = f
	}
	return idx
}()

// FieldByName resolves a field descriptor by its name.
func FieldByName(name string) (Field, error) {
	f, ok := fieldIndex[name]
	if !ok {
		return Field{}, fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	return f, nil
}

// Fields returns all defined field descriptors sorted by register address,
// then by descending bit position within the register.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Reg != out[j].Reg {
			return out[i].Reg < out[j].Reg
		}
		return out[i].Shift > out[j].Shift
	})
	return out
}
