// Package i2cbus connects the EMC2101 driver to a register transport: the
// Linux kernel SMBus interface on real hardware, a simulated chip on
// platforms without one, and mock and recording implementations for tests.
package i2cbus

import (
	"tinygo.org/x/drivers"
)

// Bus is a register transport that must be released after use.
type Bus interface {
	drivers.I2C
	Close() error
}

type nopCloser struct {
	drivers.I2C
}

func (nopCloser) Close() error { return nil }

// NopCloser turns a raw transport into a Bus with a no-op Close. Used for
// backends without a kernel handle, like the simulated chip.
func NopCloser(t drivers.I2C) Bus {
	return nopCloser{t}
}
