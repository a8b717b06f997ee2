//go:build linux

package fand

import (
	"context"
	"fmt"

	"github.com/warthog618/gpiod"
	"go.uber.org/zap"

	"github.com/northbridge-labs/emcfan/pkg/log"
)

// watchAlert folds falling edges on the ALERT line into the event stream,
// so latched conditions are handled immediately instead of at the next
// poll. The line is open-drain and active-low, hence the pull-up.
func (d *fanDaemonImpl) watchAlert(ctx context.Context) error {
	if d.cfg.Alert.Line < 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	edges := make(chan struct{}, 1)
	handler := func(evt gpiod.LineEvent) {
		select {
		case edges <- struct{}{}:
		default:
		}
	}

	chip, err := gpiod.NewChip(d.cfg.Alert.Chip)
	if err != nil {
		return fmt.Errorf("open gpio chip %s: %w", d.cfg.Alert.Chip, err)
	}
	defer chip.Close()

	line, err := chip.RequestLine(d.cfg.Alert.Line,
		gpiod.WithEventHandler(handler),
		gpiod.WithFallingEdge,
		gpiod.WithPullUp,
		gpiod.WithDebounce(d.cfg.Alert.Debounce))
	if err != nil {
		return fmt.Errorf("request alert line %d: %w", d.cfg.Alert.Line, err)
	}
	defer line.Close()

	log.FromContext(ctx).Info("Watching alert line",
		zap.String("chip", d.cfg.Alert.Chip), zap.Int("line", d.cfg.Alert.Line))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-edges:
			d.emit(ctx, AlertEvent)
		}
	}
}
