package emc2101

import (
	"errors"
	"fmt"
)

// The chip has no register auto-increment, so all access is single-byte
// transfers addressed per register.

func (d *Device) readRegister(reg uint8) (uint8, error) {
	var buf [1]byte
	if err := d.bus.Tx(d.addr, []byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("read register 0x%02X: %w", reg, errors.Join(ErrTransport, err))
	}
	return buf[0], nil
}

func (d *Device) writeRegister(reg, value uint8) error {
	if err := d.bus.Tx(d.addr, []byte{reg, value}, nil); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", reg, errors.Join(ErrTransport, err))
	}
	return nil
}

// updateRegister sets and clears bits in one register, preserving all
// others. The write is skipped when the value would not change.
func (d *Device) updateRegister(reg, setMask, clearMask uint8) error {
	old, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	next := (old | setMask) &^ clearMask
	if next == old {
		return nil
	}
	return d.writeRegister(reg, next)
}

// ReadField reads the register backing f and extracts the field bits.
func (d *Device) ReadField(f Field) (uint8, error) {
	raw, err := d.readRegister(f.Reg)
	if err != nil {
		return 0, err
	}
	return (raw & f.Mask) >> f.Shift, nil
}

// WriteField rewrites the bits of f and preserves every other bit in the
// register bit-for-bit. Values wider than the field are rejected before
// anything is read or written.
func (d *Device) WriteField(f Field, value uint8) error {
	if value > f.Max() {
		return fmt.Errorf("field %s: value %d exceeds maximum %d: %w",
			f.Name, value, f.Max(), ErrValueRange)
	}
	bits := value << f.Shift
	return d.updateRegister(f.Reg, bits, f.Mask&^bits)
}
