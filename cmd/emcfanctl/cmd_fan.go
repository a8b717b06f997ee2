package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

var fanUnit string

func init() {
	cmdFan.PersistentFlags().StringVar(&fanUnit, "unit", "percent", "speed unit: step, percent or rpm")
	cmdFan.AddCommand(cmdFanGet)
	cmdFan.AddCommand(cmdFanSet)
	rootCmd.AddCommand(cmdFan)
}

func parseUnit(s string) (emc2101.SpeedUnit, error) {
	switch s {
	case "step":
		return emc2101.UnitStep, nil
	case "percent", "duty":
		return emc2101.UnitDutyCycle, nil
	case "rpm":
		return emc2101.UnitRPM, nil
	default:
		return 0, fmt.Errorf("unknown speed unit %q (want step, percent or rpm)", s)
	}
}

var (
	cmdFan = &cobra.Command{
		Use:   "fan",
		Short: "Read and set the fan speed",
	}

	cmdFanGet = &cobra.Command{
		Use:     "get",
		Example: "emcfanctl fan get --unit rpm",
		Short:   "Read the current fan speed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev := deviceFromContext(cmd.Context())
			unit, err := parseUnit(fanUnit)
			if err != nil {
				return err
			}
			speed, err := dev.FanSpeed(unit)
			if err != nil {
				return err
			}
			fmt.Printf("%g %s\n", speed, unit)
			return nil
		},
	}

	cmdFanSet = &cobra.Command{
		Use:     "set <value>",
		Example: "emcfanctl fan set 50 --unit percent",
		Short:   "Set the fan speed; fails while the lookup table drives the fan",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := deviceFromContext(cmd.Context())
			unit, err := parseUnit(fanUnit)
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return err
			}
			effective, err := dev.SetFanSpeed(value, unit)
			if err != nil {
				return err
			}
			fmt.Printf("%g %s\n", effective, unit)
			return nil
		},
	}
)
