package emc2101

import "errors"

var (
	// ErrTransport wraps any bus I/O failure. The driver never retries;
	// the underlying transport error is preserved in the chain.
	ErrTransport = errors.New("bus transport failure")

	// ErrValueRange indicates an input outside the representable domain of
	// a register field or conversion. Nothing is written.
	ErrValueRange = errors.New("value out of range")

	// ErrInvalidMode indicates an operation that conflicts with the active
	// fan control mode, e.g. a manual speed write while the lookup table
	// drives the fan.
	ErrInvalidMode = errors.New("operation conflicts with control mode")

	// ErrConfiguration indicates an operation that conflicts with the
	// device configuration, e.g. spin-up or RPM readings while pin 6 is an
	// alert output.
	ErrConfiguration = errors.New("operation conflicts with device configuration")

	// ErrLimitOrder indicates a temperature limit update that would violate
	// low < high <= critical.
	ErrLimitOrder = errors.New("temperature limit ordering violated")

	// ErrNonMonotonic indicates lookup table or profile entries whose
	// temperatures are not strictly increasing or whose steps decrease.
	ErrNonMonotonic = errors.New("entries not monotonic")

	// ErrTooManyEntries indicates more lookup table entries than the chip
	// has slots.
	ErrTooManyEntries = errors.New("too many lookup table entries")

	// ErrSensorFault indicates the external diode is reported open or
	// shorted. Distinct from a transport failure: the bus works, the
	// sensor does not.
	ErrSensorFault = errors.New("external sensor fault")

	// ErrUnknownField indicates a register map lookup for a name that is
	// not defined.
	ErrUnknownField = errors.New("unknown register field")

	// ErrUnknownDevice indicates the identity probe did not find an
	// EMC2101 at the configured address.
	ErrUnknownDevice = errors.New("device is not an EMC2101")
)
