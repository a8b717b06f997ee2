package fand

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "state",
		Help:      "Daemon state (label values are critical, stall, normal)",
	}, []string{"state"})
)

// fanState latches the abnormal conditions the daemon is reacting to.
// Critical and stall stay set until the matching reset event arrives, so
// a single status read (which clears the chip-side latch) cannot lose
// the condition.
type fanState struct {
	mutex sync.Mutex

	// criticalActive indicates the critical temperature has been exceeded
	criticalActive    bool
	criticalClearChan chan struct{}
	// stallActive indicates the fan is below the tach limit
	stallActive    bool
	stallClearChan chan struct{}
}

func NewFanState() *fanState {
	return &fanState{
		criticalClearChan: make(chan struct{}),
		stallClearChan:    make(chan struct{}),
	}
}

func (s *fanState) RegisterEvent(event Event) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	switch event {
	case CriticalEvent:
		s.criticalActive = true
	case CriticalResetEvent:
		s.criticalActive = false
		close(s.criticalClearChan)
		s.criticalClearChan = make(chan struct{})
	case FanStallEvent:
		s.stallActive = true
	case FanRecoverEvent:
		s.stallActive = false
		close(s.stallClearChan)
		s.stallClearChan = make(chan struct{})
	}

	// Set critical state metric
	if s.criticalActive {
		stateMetric.WithLabelValues("critical").Set(1)
	} else {
		stateMetric.WithLabelValues("critical").Set(0)
	}

	// Set stall state metric
	if s.stallActive {
		stateMetric.WithLabelValues("stall").Set(1)
	} else {
		stateMetric.WithLabelValues("stall").Set(0)
	}

	// Set normal state metric
	if !s.criticalActive && !s.stallActive {
		stateMetric.WithLabelValues("normal").Set(1)
	} else {
		stateMetric.WithLabelValues("normal").Set(0)
	}
}

func (s *fanState) CriticalActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.criticalActive
}

func (s *fanState) WaitForCriticalClear(ctx context.Context) error {
	s.mutex.Lock()
	ch := s.criticalClearChan
	s.mutex.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func (s *fanState) StallActive() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stallActive
}

func (s *fanState) WaitForStallClear(ctx context.Context) error {
	s.mutex.Lock()
	ch := s.stallClearChan
	s.mutex.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
