package fand

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/fancurve"
	"github.com/northbridge-labs/emcfan/pkg/i2cbus"
	"github.com/northbridge-labs/emcfan/pkg/log"
)

var (
	// eventCounter counts the events handled by the daemon
	eventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emcfan",
		Name:      "events_count",
		Help:      "Internal event handler statistics (handled events)",
	}, []string{"type"})

	// droppedEventCounter counts the events dropped by the daemon
	droppedEventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emcfan",
		Name:      "events_dropped_count",
		Help:      "Internal event handler statistics (dropped events)",
	}, []string{"type"})
)

type Event int

const (
	NoopEvent = iota
	AlertEvent
	CriticalEvent
	CriticalResetEvent
	FanStallEvent
	FanRecoverEvent
)

func (e Event) String() string {
	switch e {
	case NoopEvent:
		return "noop"
	case AlertEvent:
		return "alert"
	case CriticalEvent:
		return "critical"
	case CriticalResetEvent:
		return "critical_reset"
	case FanStallEvent:
		return "fan_stall"
	case FanRecoverEvent:
		return "fan_recover"
	default:
		return "unknown"
	}
}

// FanDaemon drives an EMC2101 from a temperature curve and exports its
// readings. It is responsible for handling events and interfacing with
// the hardware.
type FanDaemon interface {
	// Run dispatches the daemon and blocks until the context is canceled
	// or an error occurs
	Run(ctx context.Context) error
	// EmitEvent emits an event to the daemon
	EmitEvent(ctx context.Context, event Event) error
	// SetFanSpeed pins the fan to a fixed speed in percent
	SetFanSpeed(ctx context.Context, percent uint8) error
	// WaitForCriticalClear blocks until the critical state is cleared
	WaitForCriticalClear(ctx context.Context) error
}

type fanDaemonImpl struct {
	cfg   Config
	bus   i2cbus.Bus
	dev   *emc2101.Device
	curve fancurve.Controller
	state *fanState

	eventChan chan Event
}

// New connects to the configured bus and builds the daemon around it.
func New(ctx context.Context, cfg Config) (FanDaemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bus, err := i2cbus.Open(cfg.Bus)
	if err != nil {
		return nil, err
	}
	daemon, err := NewWithBus(ctx, cfg, bus)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return daemon, nil
}

// NewWithBus builds the daemon on an existing transport. Tests hand in a
// simulated chip here.
func NewWithBus(ctx context.Context, cfg Config, bus i2cbus.Bus) (FanDaemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var profile *emc2101.FanProfile
	if cfg.Profile != "" {
		var err error
		if profile, err = emc2101.LoadProfile(cfg.Profile); err != nil {
			return nil, fmt.Errorf("load fan profile: %w", err)
		}
		log.FromContext(ctx).Info("Loaded fan profile",
			zap.String("path", cfg.Profile), zap.String("model", profile.Model))
	}

	pinSix := emc2101.PinAlert
	if cfg.TachInput {
		pinSix = emc2101.PinTacho
	}
	dev := emc2101.New(bus, emc2101.Config{
		PinSix:       pinSix,
		DACOutput:    cfg.DACOutput,
		PWMFrequency: cfg.PWMFrequency,
		TachLimitRPM: cfg.TachLimitRPM,
		Profile:      profile,
	})

	curve, err := fancurve.NewLinearController(cfg.Curve)
	if err != nil {
		return nil, err
	}
	if cfg.FanSpeed != nil {
		curve.Override(cfg.FanSpeed)
	}

	return &fanDaemonImpl{
		cfg:   cfg,
		bus:   bus,
		dev:   dev,
		curve: curve,
		state: NewFanState(),
		eventChan: make(
			chan Event,
			10,
		), // backlog of 10 events. They should process fast but we don't want to lose alerts
	}, nil
}

func (d *fanDaemonImpl) Run(origCtx context.Context) error {
	defer d.cleanup(origCtx)

	g, ctx := errgroup.WithContext(origCtx)
	log.FromContext(ctx).Info("Starting fan daemon")

	if err := d.setup(ctx); err != nil {
		return err
	}

	// Ingest noop event to initialise metrics
	d.state.RegisterEvent(NoopEvent)

	g.Go(func() error {
		log.FromContext(ctx).Info("Starting poll loop",
			zap.Duration("interval", d.cfg.PollInterval))
		return d.runPoller(ctx)
	})

	g.Go(func() error {
		log.FromContext(ctx).Info("Starting event handler")
		return d.runEventHandler(ctx)
	})

	g.Go(func() error {
		return d.watchAlert(ctx)
	})

	return g.Wait()
}

// setup brings the chip from whatever state it was left in into the
// configured one.
func (d *fanDaemonImpl) setup(ctx context.Context) error {
	// A lookup table left running by a previous instance write-protects
	// the registers Init touches; park it first.
	if err := d.dev.DisableLookupTable(); err != nil {
		return fmt.Errorf("disable lookup table: %w", err)
	}
	if err := d.dev.Init(); err != nil {
		return fmt.Errorf("initialize chip: %w", err)
	}

	if d.cfg.ExternalHighLimit > 0 {
		_, err := d.dev.SetTemperatureLimit(
			emc2101.SensorExternal, emc2101.LimitHigh, d.cfg.ExternalHighLimit)
		if err != nil {
			return fmt.Errorf("set external high limit: %w", err)
		}
	}
	if d.cfg.CriticalTemperature > 0 {
		_, err := d.dev.SetTemperatureLimit(
			emc2101.SensorExternal, emc2101.LimitCritical, d.cfg.CriticalTemperature)
		if err != nil {
			return fmt.Errorf("set critical limit: %w", err)
		}
		if _, err := d.dev.SetCriticalHysteresis(d.cfg.CriticalHysteresis); err != nil {
			return fmt.Errorf("set critical hysteresis: %w", err)
		}
	}

	if d.cfg.Mode == ModeLUT {
		max, err := d.dev.MaxStep()
		if err != nil {
			return err
		}
		entries, err := lutEntries(d.cfg.Curve, max)
		if err != nil {
			return err
		}
		if err := d.dev.ProgramLookupTable(entries); err != nil {
			return fmt.Errorf("program lookup table: %w", err)
		}
		log.FromContext(ctx).Info("Hardware lookup table drives the fan",
			zap.Int("entries", len(entries)))
	}
	return nil
}

// cleanup leaves the hardware in a safe state before exiting. In lookup
// table mode the chip keeps driving the fan on its own.
func (d *fanDaemonImpl) cleanup(ctx context.Context) {
	log.FromContext(ctx).Info("Exiting, restoring safe settings")
	if d.cfg.Mode == ModeSoftware {
		if _, err := d.dev.SetFanSpeed(100, emc2101.UnitDutyCycle); err != nil {
			log.FromContext(ctx).Error("Failed to set fan speed to 100%", zap.Error(err))
		}
	}
	if err := d.bus.Close(); err != nil {
		log.FromContext(ctx).Error("Failed to close bus", zap.Error(err))
	}
}

func (d *fanDaemonImpl) runPoller(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		d.poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll reads one full set of measurements, updates the metrics, derives
// events from the status register and, in software mode, applies the
// curve to the fan.
func (d *fanDaemonImpl) poll(ctx context.Context) {
	logger := log.FromContext(ctx)
	start := time.Now()
	defer func() { pollDuration.Observe(time.Since(start).Seconds()) }()

	status, err := d.dev.Status()
	if err != nil {
		pollErrorCounter.Inc()
		logger.Error("Failed to read status", zap.Error(err))
		return
	}

	if internal, err := d.dev.Temperature(emc2101.SensorInternal); err != nil {
		pollErrorCounter.Inc()
		logger.Error("Failed to read internal temperature", zap.Error(err))
	} else {
		internalTemperature.Set(internal)
	}

	external, err := d.dev.Temperature(emc2101.SensorExternal)
	switch {
	case errors.Is(err, emc2101.ErrSensorFault):
		diodeFault.Set(1)
		// Drive the curve to its maximum while blind.
		external = 100
	case err != nil:
		pollErrorCounter.Inc()
		logger.Error("Failed to read external temperature", zap.Error(err))
		external = 100
	default:
		diodeFault.Set(0)
		externalTemperature.Set(external)
	}

	if d.cfg.TachInput {
		if rpm, err := d.dev.FanSpeed(emc2101.UnitRPM); err != nil {
			pollErrorCounter.Inc()
			logger.Error("Failed to read fan speed", zap.Error(err))
		} else {
			fanSpeedRPM.Set(rpm)
		}
	}

	d.dispatchStatus(ctx, status, external)

	if d.cfg.Mode == ModeSoftware {
		speed := d.curve.GetFanSpeed(external)
		fanSpeedTargetPercent.Set(float64(speed))
		if _, err := d.dev.SetFanSpeed(float64(speed), emc2101.UnitDutyCycle); err != nil {
			pollErrorCounter.Inc()
			logger.Error("Failed to set fan speed", zap.Error(err))
		}
	} else if duty, err := d.dev.FanSpeed(emc2101.UnitDutyCycle); err == nil {
		fanSpeedTargetPercent.Set(duty)
	}
}

// dispatchStatus turns latched status bits into events and counters. The
// chip-side latch cleared with the read; the daemon state keeps the
// condition alive until the matching reset fires.
func (d *fanDaemonImpl) dispatchStatus(ctx context.Context, status emc2101.Status, external float64) {
	for cause, set := range map[string]bool{
		"internal_high": status.InternalHigh,
		"external_high": status.ExternalHigh,
		"external_low":  status.ExternalLow,
		"diode_fault":   status.DiodeFault,
		"critical":      status.Critical,
		"tach_low":      status.TachLow,
	} {
		if set {
			alertCounter.WithLabelValues(cause).Inc()
		}
	}

	if status.Critical && !d.state.CriticalActive() {
		d.emit(ctx, CriticalEvent)
	}
	if d.state.CriticalActive() && !status.Critical &&
		external < d.cfg.CriticalTemperature-d.cfg.CriticalHysteresis {
		d.emit(ctx, CriticalResetEvent)
	}

	if status.TachLow && !d.state.StallActive() {
		d.emit(ctx, FanStallEvent)
	}
	if d.state.StallActive() && !status.TachLow {
		d.emit(ctx, FanRecoverEvent)
	}
}

// emit queues an event without blocking the poll loop.
func (d *fanDaemonImpl) emit(ctx context.Context, event Event) {
	select {
	case d.eventChan <- event:
	default:
		log.FromContext(ctx).Warn("Event dropped due to backlog",
			zap.String("event", event.String()))
		droppedEventCounter.WithLabelValues(event.String()).Inc()
	}
}

func (d *fanDaemonImpl) runEventHandler(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-d.eventChan:
			if err := d.handleEvent(ctx, event); err != nil && err != context.Canceled {
				return err
			}
		}
	}
}

func (d *fanDaemonImpl) handleEvent(ctx context.Context, event Event) error {
	log.FromContext(ctx).Info("Handling event", zap.String("event", event.String()))
	eventCounter.WithLabelValues(event.String()).Inc()

	d.state.RegisterEvent(event)

	switch event {
	case CriticalEvent:
		return d.handleCriticalActive(ctx)
	case CriticalResetEvent:
		return d.handleCriticalReset(ctx)
	case FanStallEvent:
		log.FromContext(ctx).Warn("Fan below tach limit")
	case AlertEvent:
		// The poll consumes the status register and reacts to whatever
		// the chip latched.
		d.poll(ctx)
	}
	return nil
}

func (d *fanDaemonImpl) handleCriticalActive(ctx context.Context) error {
	log.FromContext(ctx).Warn("Critical temperature exceeded, setting fan speed to 100%")

	// The chip forces full drive on its own; the override keeps the
	// software curve from fighting it once the latch clears.
	d.curve.Override(&fancurve.OverrideOpts{Percent: 100})

	if d.cfg.Mode == ModeSoftware {
		if _, err := d.dev.SetFanSpeed(100, emc2101.UnitDutyCycle); err != nil {
			return err
		}
	}
	return nil
}

func (d *fanDaemonImpl) handleCriticalReset(ctx context.Context) error {
	log.FromContext(ctx).Info("Critical state cleared, restoring fan curve")
	d.curve.Override(d.cfg.FanSpeed)
	return nil
}

// EmitEvent dispatches an event to the event handler
func (d *fanDaemonImpl) EmitEvent(ctx context.Context, event Event) error {
	select {
	case d.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFanSpeed pins the fan to a fixed speed
func (d *fanDaemonImpl) SetFanSpeed(_ context.Context, percent uint8) error {
	if d.state.CriticalActive() {
		return errors.New("cannot set fan speed while in a critical state")
	}
	d.curve.Override(&fancurve.OverrideOpts{Percent: percent})
	return nil
}

// WaitForCriticalClear blocks until the critical state is cleared
func (d *fanDaemonImpl) WaitForCriticalClear(ctx context.Context) error {
	return d.state.WaitForCriticalClear(ctx)
}
