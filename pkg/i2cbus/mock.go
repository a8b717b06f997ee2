package i2cbus

import (
	"github.com/stretchr/testify/mock"
)

// fails if MockBus does not implement Bus
var _ Bus = &MockBus{}

// MockBus implements a mock for the Bus interface
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Tx(addr uint16, w, r []byte) error {
	args := m.Called(addr, w, r)
	return args.Error(0)
}

func (m *MockBus) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ExpectRead queues one read of register reg returning val.
func (m *MockBus) ExpectRead(addr uint16, reg, val uint8) *mock.Call {
	return m.On("Tx", addr, []byte{reg}, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).([]byte)[0] = val
		}).
		Return(nil).Once()
}

// ExpectWrite queues one write of val to register reg.
func (m *MockBus) ExpectWrite(addr uint16, reg, val uint8) *mock.Call {
	return m.On("Tx", addr, []byte{reg, val}, []byte(nil)).Return(nil).Once()
}
