package util

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockClock implements Clock with the testify mock package.
type MockClock struct {
	mock.Mock
}

var _ Clock = (*MockClock)(nil)

// Now returns the mocked current time.
func (mc *MockClock) Now() time.Time {
	args := mc.Called()
	return args.Get(0).(time.Time)
}

// After returns the mocked timer channel for the given duration.
func (mc *MockClock) After(d time.Duration) <-chan time.Time {
	args := mc.Called(d)
	return args.Get(0).(chan time.Time)
}

// FakeClock is a deterministic Clock whose After fires immediately and
// advances the reported time by the requested duration. It keeps a tally
// of the total time slept, which lets tests assert on wait behavior
// without a mock expectation per call.
type FakeClock struct {
	now   time.Time
	slept time.Duration
}

var _ Clock = (*FakeClock)(nil)

// NewFakeClock starts a deterministic clock at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (fc *FakeClock) Now() time.Time {
	return fc.now
}

func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	fc.now = fc.now.Add(d)
	fc.slept += d
	ch := make(chan time.Time, 1)
	ch <- fc.now
	return ch
}

// Slept reports the total duration passed to After so far.
func (fc *FakeClock) Slept() time.Duration {
	return fc.slept
}
