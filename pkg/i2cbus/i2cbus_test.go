package i2cbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/northbridge-labs/emcfan/pkg/i2cbus"
)

func TestMockBusExpectations(t *testing.T) {
	t.Parallel()

	m := &i2cbus.MockBus{}
	m.Test(t)
	m.ExpectWrite(0x4C, 0x03, 0x04)
	m.ExpectRead(0x4C, 0x03, 0x04)
	m.On("Close").Return(nil).Once()

	require.NoError(t, m.Tx(0x4C, []byte{0x03, 0x04}, nil))

	var buf [1]byte
	require.NoError(t, m.Tx(0x4C, []byte{0x03}, buf[:]))
	assert.Equal(t, uint8(0x04), buf[0])

	require.NoError(t, m.Close())
	m.AssertExpectations(t)
}

func TestMockBusOrderedReads(t *testing.T) {
	t.Parallel()

	// Repeated reads of the same register are served in the order they
	// were queued; Replay depends on this.
	m := &i2cbus.MockBus{}
	m.Test(t)
	m.ExpectRead(0x4C, 0x02, 0x10)
	m.ExpectRead(0x4C, 0x02, 0x00)

	var buf [1]byte
	require.NoError(t, m.Tx(0x4C, []byte{0x02}, buf[:]))
	assert.Equal(t, uint8(0x10), buf[0])
	require.NoError(t, m.Tx(0x4C, []byte{0x02}, buf[:]))
	assert.Equal(t, uint8(0x00), buf[0])
	m.AssertExpectations(t)
}

func TestRecorderTrace(t *testing.T) {
	t.Parallel()

	m := &i2cbus.MockBus{}
	m.Test(t)
	m.ExpectWrite(0x4C, 0x4C, 0x08)
	m.ExpectRead(0x4C, 0x00, 0x14)

	rec := i2cbus.NewRecorder(m)
	var buf [1]byte
	require.NoError(t, rec.Tx(0x4C, []byte{0x4C, 0x08}, nil))
	require.NoError(t, rec.Tx(0x4C, []byte{0x00}, buf[:]))

	assert.Equal(t, []i2cbus.Op{
		{Addr: 0x4C, Reg: 0x4C, Value: 0x08, Write: true},
		{Addr: 0x4C, Reg: 0x00, Value: 0x14},
	}, rec.Trace())

	rec.Reset()
	assert.Empty(t, rec.Trace())
}

func TestRecorderSkipsFailedTransfers(t *testing.T) {
	t.Parallel()

	m := &i2cbus.MockBus{}
	m.Test(t)
	m.On("Tx", uint16(0x30), []byte{0x00}, mock.Anything).Return(assert.AnError).Once()

	rec := i2cbus.NewRecorder(m)
	var buf [1]byte
	require.Error(t, rec.Tx(0x30, []byte{0x00}, buf[:]))
	assert.Empty(t, rec.Trace())
}

func TestReplay(t *testing.T) {
	t.Parallel()

	trace := []i2cbus.Op{
		{Addr: 0x4C, Reg: 0x03, Value: 0x04, Write: true},
		{Addr: 0x4C, Reg: 0x02, Value: 0x10},
		{Addr: 0x4C, Reg: 0x02, Value: 0x00},
	}

	m := &i2cbus.MockBus{}
	m.Test(t)
	i2cbus.Replay(m, trace)

	rec := i2cbus.NewRecorder(m)
	var buf [1]byte
	require.NoError(t, rec.Tx(0x4C, []byte{0x03, 0x04}, nil))
	require.NoError(t, rec.Tx(0x4C, []byte{0x02}, buf[:]))
	require.NoError(t, rec.Tx(0x4C, []byte{0x02}, buf[:]))

	assert.Equal(t, trace, rec.Trace())
	m.AssertExpectations(t)
}

func TestNopCloser(t *testing.T) {
	t.Parallel()

	m := &i2cbus.MockBus{}
	m.Test(t)
	m.ExpectWrite(0x4C, 0x11, 0xAB)

	bus := i2cbus.NopCloser(m)
	require.NoError(t, bus.Tx(0x4C, []byte{0x11, 0xAB}, nil))
	assert.NoError(t, bus.Close())
	m.AssertExpectations(t)
}
