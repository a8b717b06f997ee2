package i2cbus

import (
	"sync"

	"tinygo.org/x/drivers"
)

// Op is one recorded register access.
type Op struct {
	Addr  uint16
	Reg   uint8
	Value uint8 // value written, or value the read returned
	Write bool
}

// fails if Recorder does not implement drivers.I2C
var _ drivers.I2C = &Recorder{}

// Recorder wraps a transport and keeps an ordered trace of every register
// access that passes through it. Comparing traces from two backends shows
// whether they behaved identically.
type Recorder struct {
	next drivers.I2C

	mu  sync.Mutex
	ops []Op
}

func NewRecorder(next drivers.I2C) *Recorder {
	return &Recorder{next: next}
}

func (rec *Recorder) Tx(addr uint16, w, r []byte) error {
	if err := rec.next.Tx(addr, w, r); err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	switch {
	case len(w) == 1 && len(r) == 1:
		rec.ops = append(rec.ops, Op{Addr: addr, Reg: w[0], Value: r[0]})
	case len(w) == 2 && len(r) == 0:
		rec.ops = append(rec.ops, Op{Addr: addr, Reg: w[0], Value: w[1], Write: true})
	}
	return nil
}

// Trace returns a copy of the accesses recorded so far.
func (rec *Recorder) Trace() []Op {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Op(nil), rec.ops...)
}

// Reset discards the recorded trace.
func (rec *Recorder) Reset() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.ops = nil
}

// Replay programs m with the exact access sequence in trace, so a
// mock-backed device can replay a previously recorded session.
func Replay(m *MockBus, trace []Op) {
	for _, op := range trace {
		if op.Write {
			m.ExpectWrite(op.Addr, op.Reg, op.Value)
		} else {
			m.ExpectRead(op.Addr, op.Reg, op.Value)
		}
	}
}
