//go:build !linux

package fand

import (
	"context"

	"github.com/northbridge-labs/emcfan/pkg/log"
)

// watchAlert needs the kernel GPIO character device; elsewhere the poll
// loop is the only alert source.
func (d *fanDaemonImpl) watchAlert(ctx context.Context) error {
	if d.cfg.Alert.Line >= 0 {
		log.FromContext(ctx).Warn("Alert line watching is only supported on linux")
	}
	<-ctx.Done()
	return ctx.Err()
}
