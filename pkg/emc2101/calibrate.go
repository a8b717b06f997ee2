package emc2101

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/northbridge-labs/emcfan/pkg/util"
)

const (
	defaultWarmup     = 5 * time.Second
	defaultSettlePoll = 500 * time.Millisecond

	// settleWindow readings must agree within settleBand of their average
	// before a step counts as settled; settlePolls caps the wait.
	settleWindow = 3
	settleBand   = 0.01
	settlePolls  = 24

	// plateauFraction prunes a step when the next step gains less than
	// this share of the fan's maximum speed over it.
	plateauFraction = 0.011
)

// CalibrationOptions tunes the calibration sweep. The zero value selects
// the generic 22.5 kHz PWM clock and wall-clock timing.
type CalibrationOptions struct {
	// Model names the fan in the resulting profile.
	Model string
	// PWMFrequency to calibrate at. Zero means 22500 Hz.
	PWMFrequency int
	// Warmup is the pause after each responsiveness probe setting. Zero
	// means 5 s.
	Warmup time.Duration
	// SettlePoll is the pause between tach polls. Zero means 500 ms.
	SettlePoll time.Duration
	// Clock is injected by tests. Nil means the wall clock.
	Clock util.Clock
}

type calPoint struct {
	step uint8
	duty float64
	rpm  int
}

// Calibrate maps every fan setting step to its measured speed and returns
// the resulting profile: sweep all steps, wait for the tach reading to
// settle on each, prune steps that gain no meaningful speed over their
// neighbor. Requires the tach input on pin 6 and manual fan control; the
// previous fan setting and spin-up behavior are restored afterwards.
//
// The sweep takes several minutes on real hardware (two probe warmups plus
// up to 12 seconds per step); ctx cancels it between waits.
func Calibrate(ctx context.Context, d *Device, opts CalibrationOptions) (*FanProfile, error) {
	if opts.Model == "" {
		opts.Model = "calibrated fan"
	}
	if opts.PWMFrequency == 0 {
		opts.PWMFrequency = 22500
	}
	if opts.Warmup == 0 {
		opts.Warmup = defaultWarmup
	}
	if opts.SettlePoll == 0 {
		opts.SettlePoll = defaultSettlePoll
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}

	mode, err := d.PinSixMode()
	if err != nil {
		return nil, err
	}
	if mode != PinTacho {
		return nil, fmt.Errorf("calibration needs the tach input on pin 6: %w", ErrConfiguration)
	}
	active, err := d.lutActive()
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("calibration needs manual fan control: %w", ErrInvalidMode)
	}

	pwm, err := CalcPWMSettings(opts.PWMFrequency)
	if err != nil {
		return nil, err
	}
	if err := d.ApplyPWMSettings(pwm); err != nil {
		return nil, err
	}
	stepMax := pwm.StepMax()
	if stepMax < 3 {
		return nil, fmt.Errorf("%d Hz leaves only %d steps, not enough to calibrate: %w",
			opts.PWMFrequency, stepMax+1, ErrConfiguration)
	}
	d.log.Info("calibrating fan",
		zap.String("model", opts.Model),
		zap.Int("frequency_hz", opts.PWMFrequency),
		zap.Uint8("steps", stepMax+1),
	)

	// The spin-up kick distorts readings near the bottom of the range;
	// park it for the duration of the sweep.
	priorStep, err := d.ReadField(fieldFanSetting)
	if err != nil {
		return nil, err
	}
	priorSpinup, err := d.readRegister(RegFanSpinup)
	if err != nil {
		return nil, err
	}
	if err := d.writeRegister(RegFanSpinup, 0x00); err != nil {
		return nil, err
	}
	restore := func() error {
		if err := d.writeRegister(RegFanSpinup, priorSpinup); err != nil {
			return err
		}
		return d.WriteField(fieldFanSetting, priorStep)
	}

	profile, err := d.calibrateSweep(ctx, stepMax, opts)
	if restoreErr := restore(); restoreErr != nil && err == nil {
		err = fmt.Errorf("restore fan state: %w", restoreErr)
	}
	if err != nil {
		return nil, err
	}
	d.log.Info("calibration finished",
		zap.String("model", profile.Model),
		zap.Int("points", len(profile.Steps)),
	)
	return profile, nil
}

func (d *Device) calibrateSweep(ctx context.Context, stepMax uint8, opts CalibrationOptions) (*FanProfile, error) {
	// Before the slow sweep, verify the fan reacts to the drive signal at
	// all: a mid setting and the second-highest setting must differ by
	// more than 4%.
	probeLow := (stepMax + 1) / 2
	probeHigh := stepMax - 1
	rpmLow, err := d.probeStep(ctx, probeLow, opts)
	if err != nil {
		return nil, err
	}
	rpmHigh, err := d.probeStep(ctx, probeHigh, opts)
	if err != nil {
		return nil, err
	}
	if rpmHigh <= 0 {
		return nil, fmt.Errorf("no usable tach reading at step %d: %w", probeHigh, ErrSensorFault)
	}
	if float64(rpmLow)*100/float64(rpmHigh) >= 96 {
		return nil, fmt.Errorf("fan speed did not react to the drive signal (%d vs %d RPM): %w",
			rpmLow, rpmHigh, ErrConfiguration)
	}

	sweep := make([]calPoint, 0, int(stepMax)+1)
	for step := uint8(0); ; step++ {
		if err := d.WriteField(fieldFanSetting, step); err != nil {
			return nil, err
		}
		rpm, err := d.settleRPM(ctx, opts)
		if err != nil {
			return nil, err
		}
		duty := 100 * float64(step) / float64(stepMax)
		d.log.Debug("calibration point",
			zap.Uint8("step", step),
			zap.Float64("duty_cycle", duty),
			zap.Int("rpm", rpm),
		)
		sweep = append(sweep, calPoint{step: step, duty: duty, rpm: rpm})
		if step == stepMax {
			break
		}
	}

	// Prune plateaus: multiple low steps often produce the same speed, and
	// a step that gains nothing over its neighbor carries no information.
	// The top step is always kept.
	maxRPM := 0
	for _, p := range sweep {
		if p.rpm > maxRPM {
			maxRPM = p.rpm
		}
	}
	minDelta := float64(maxRPM) * plateauFraction
	kept := make([]calPoint, 0, len(sweep))
	for i, p := range sweep {
		if i+1 < len(sweep) && float64(p.rpm)+minDelta > float64(sweep[i+1].rpm) {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("calibration kept no operating points: %w", ErrConfiguration)
	}

	profile := &FanProfile{
		Model:        opts.Model,
		Kind:         ProfilePWM,
		PWMFrequency: opts.PWMFrequency,
		MinDutyCycle: kept[0].duty,
		MaxDutyCycle: kept[len(kept)-1].duty,
	}
	for _, p := range kept {
		profile.Steps = append(profile.Steps, ProfileStep{
			Step:      p.step,
			DutyCycle: p.duty,
			RPM:       p.rpm,
		})
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("calibration produced an unusable profile: %w", err)
	}
	return profile, nil
}

func (d *Device) probeStep(ctx context.Context, step uint8, opts CalibrationOptions) (int, error) {
	if err := d.WriteField(fieldFanSetting, step); err != nil {
		return 0, err
	}
	if err := util.Sleep(ctx, opts.Clock, opts.Warmup); err != nil {
		return 0, err
	}
	count, err := d.tachCount()
	if err != nil {
		return 0, err
	}
	rpm, _ := TachToRPM(count)
	return rpm, nil
}

// settleRPM polls the tach until consecutive readings agree with their
// rolling average, then rounds to the nearest 5 RPM; tach noise never
// fully stops. A reading that refuses to settle within the poll budget is
// taken as-is.
func (d *Device) settleRPM(ctx context.Context, opts CalibrationOptions) (int, error) {
	window := [settleWindow]float64{99999, 99999, 99999}
	last := 0
	for i := 0; i < settlePolls; i++ {
		count, err := d.tachCount()
		if err != nil {
			return 0, err
		}
		rpm, _ := TachToRPM(count)
		last = rpm
		window[i%settleWindow] = float64(rpm)
		avg := (window[0] + window[1] + window[2]) / settleWindow
		if avg == 0 {
			if rpm == 0 {
				return 0, nil
			}
		} else {
			deviation := float64(rpm) / avg
			if deviation >= 1-settleBand && deviation <= 1+settleBand {
				return int(math.Round(avg/5)) * 5, nil
			}
		}
		if err := util.Sleep(ctx, opts.Clock, opts.SettlePoll); err != nil {
			return 0, err
		}
	}
	d.log.Warn("tach reading never settled", zap.Int("rpm", last))
	return int(math.Round(float64(last)/5)) * 5, nil
}
