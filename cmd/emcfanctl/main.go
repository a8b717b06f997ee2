// emcfanctl talks to an EMC2101 fan controller on an I2C bus directly,
// without a running daemon.
package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/i2cbus"
	"github.com/northbridge-labs/emcfan/pkg/log"
)

type deviceContextKey int

const (
	defaultDeviceContextKey deviceContextKey = 0
	defaultBusContextKey    deviceContextKey = 1
)

var (
	busNumber   int
	busAddr     uint16
	timeout     time.Duration
	verbose     bool
	profilePath string
)

func init() {
	rootCmd.PersistentFlags().IntVar(&busNumber, "bus", 1, "I2C bus number (/dev/i2c-N)")
	rootCmd.PersistentFlags().Uint16Var(&busAddr, "addr", emc2101.Address, "chip address on the bus")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "timeout for the whole command")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "fan calibration profile (YAML) used for RPM conversions")
}

func deviceIntoContext(ctx context.Context, dev *emc2101.Device) context.Context {
	return context.WithValue(ctx, defaultDeviceContextKey, dev)
}

func deviceFromContext(ctx context.Context) *emc2101.Device {
	dev, ok := ctx.Value(defaultDeviceContextKey).(*emc2101.Device)
	if !ok {
		panic("device not found in context")
	}
	return dev
}

func busIntoContext(ctx context.Context, bus i2cbus.Bus) context.Context {
	return context.WithValue(ctx, defaultBusContextKey, bus)
}

func busFromContext(ctx context.Context) i2cbus.Bus {
	bus, ok := ctx.Value(defaultBusContextKey).(i2cbus.Bus)
	if !ok {
		panic("bus not found in context")
	}
	return bus
}

var rootCmd = &cobra.Command{
	Use:   "emcfanctl",
	Short: "emcfanctl reads and configures an EMC2101 fan controller over I2C",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		origCtx := cmd.Context()
		log.Setup("emcfanctl", verbose)

		ctx, cancelCtx := context.WithTimeout(origCtx, timeout)

		// setup signal handler channels
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			// Wait for context cancel or signal
			select {
			case <-ctx.Done():
			case <-sigs:
				// On signal, cancel context
				cancelCtx()
			}
		}()

		bus, err := i2cbus.Open(busNumber)
		if err != nil {
			cancelCtx()
			return err
		}

		var profile *emc2101.FanProfile
		if profilePath != "" {
			if profile, err = emc2101.LoadProfile(profilePath); err != nil {
				_ = bus.Close()
				cancelCtx()
				return err
			}
		}

		dev := emc2101.New(bus, emc2101.Config{
			Address: busAddr,
			Profile: profile,
		})

		cmd.SetContext(busIntoContext(deviceIntoContext(ctx, dev), bus))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		return busFromContext(cmd.Context()).Close()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		stdlog.Fatal(err)
	}
}
