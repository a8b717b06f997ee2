package emc2101

import (
	"strings"

	"go.uber.org/zap"
)

// Status is the decoded alert/status register. The hardware clears the
// register on read, so a Status snapshot consumes the pending conditions.
type Status struct {
	Busy         bool // conversion in progress
	InternalHigh bool // internal temperature exceeded its high limit
	ExternalHigh bool // external temperature exceeded its high limit
	ExternalLow  bool // external temperature dropped below its low limit
	DiodeFault   bool // external diode open or shorted
	Critical     bool // external temperature exceeded TCRIT
	TachLow      bool // fan speed dropped below the tach limit

	raw uint8
}

// DecodeStatus expands the raw status register.
func DecodeStatus(raw uint8) Status {
	return Status{
		Busy:         raw&StatusBusy != 0,
		InternalHigh: raw&StatusInternalHigh != 0,
		ExternalHigh: raw&StatusExternalHigh != 0,
		ExternalLow:  raw&StatusExternalLow != 0,
		DiodeFault:   raw&StatusDiodeFault != 0,
		Critical:     raw&StatusCritical != 0,
		TachLow:      raw&StatusTachLow != 0,
		raw:          raw,
	}
}

// Raw returns the register value the snapshot was decoded from.
func (s Status) Raw() uint8 { return s.raw }

// Alerting reports whether any alert-capable condition is set.
func (s Status) Alerting() bool {
	alertBits := uint8(StatusInternalHigh | StatusExternalHigh | StatusExternalLow |
		StatusDiodeFault | StatusCritical | StatusTachLow)
	return s.raw&alertBits != 0
}

func (s Status) String() string {
	if s.raw == 0 {
		return "ok"
	}
	var parts []string
	if s.Busy {
		parts = append(parts, "busy")
	}
	if s.InternalHigh {
		parts = append(parts, "internal-high")
	}
	if s.ExternalHigh {
		parts = append(parts, "external-high")
	}
	if s.ExternalLow {
		parts = append(parts, "external-low")
	}
	if s.DiodeFault {
		parts = append(parts, "diode-fault")
	}
	if s.Critical {
		parts = append(parts, "critical")
	}
	if s.TachLow {
		parts = append(parts, "tach-low")
	}
	return strings.Join(parts, ",")
}

// Status reads and decodes the status register. Reading consumes the
// latched conditions; callers that fan a snapshot out to several consumers
// should do so from a single read.
func (d *Device) Status() (Status, error) {
	raw, err := d.readRegister(RegStatus)
	if err != nil {
		return Status{}, err
	}
	st := DecodeStatus(raw)
	if st.Alerting() {
		d.log.Debug("status alert",
			zap.Uint8("raw", st.Raw()),
			zap.String("conditions", st.String()),
		)
	}
	return st, nil
}
