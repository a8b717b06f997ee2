//go:build linux && !tinygo

package i2cbus

import (
	"fmt"

	"github.com/go-daq/smbus"
)

// fails if SMBus does not implement Bus
var _ Bus = &SMBus{}

// SMBus drives the chip through the kernel /dev/i2c-N interface using
// SMBus byte-data transfers.
type SMBus struct {
	conn *smbus.Conn
}

// Open connects to /dev/i2c-<bus>.
func Open(bus int) (Bus, error) {
	conn, err := smbus.OpenFile(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %d: %w", bus, err)
	}
	return &SMBus{conn: conn}, nil
}

// Tx maps the driver's transfer shapes onto SMBus byte-data commands. The
// EMC2101 only ever needs the two single-byte forms.
func (b *SMBus) Tx(addr uint16, w, r []byte) error {
	switch {
	case len(w) == 1 && len(r) == 1:
		val, err := b.conn.ReadReg(uint8(addr), w[0])
		if err != nil {
			return fmt.Errorf("read register 0x%02X: %w", w[0], err)
		}
		r[0] = val
		return nil
	case len(w) == 2 && len(r) == 0:
		if err := b.conn.WriteReg(uint8(addr), w[0], w[1]); err != nil {
			return fmt.Errorf("write register 0x%02X: %w", w[0], err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported transfer shape: %d write, %d read bytes", len(w), len(r))
	}
}

func (b *SMBus) Close() error {
	return b.conn.Close()
}
