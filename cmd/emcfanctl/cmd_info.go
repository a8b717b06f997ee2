package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

func init() {
	rootCmd.AddCommand(cmdInfo)
	rootCmd.AddCommand(cmdStatus)
	rootCmd.AddCommand(cmdTemp)
	rootCmd.AddCommand(cmdReset)
}

var cmdInfo = &cobra.Command{
	Use:   "info",
	Short: "Identify the chip and show its drive configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dev := deviceFromContext(cmd.Context())

		desc, err := dev.Describe()
		if err != nil {
			return err
		}
		fmt.Println(desc)

		mode, err := dev.PinSixMode()
		if err != nil {
			return err
		}
		fmt.Printf("pin 6:         %s\n", mode)

		pwm, err := dev.PWMSettings()
		if err != nil {
			return err
		}
		fmt.Printf("pwm clock:     %d Hz (PWM_F=0x%02X PWM_D=0x%02X)\n",
			pwm.Frequency(), pwm.F, pwm.D)

		max, err := dev.MaxStep()
		if err != nil {
			return err
		}
		fmt.Printf("fan steps:     0..%d\n", max)

		rate, err := dev.ConversionRate()
		if err != nil {
			return err
		}
		fmt.Printf("conversions:   %s\n", rate)

		enabled, err := dev.LookupTableEnabled()
		if err != nil {
			return err
		}
		if enabled {
			fmt.Println("fan control:   hardware lookup table")
		} else {
			fmt.Println("fan control:   fan setting register")
		}
		return nil
	},
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Read the status register (consumes latched alert conditions)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dev := deviceFromContext(cmd.Context())
		status, err := dev.Status()
		if err != nil {
			return err
		}
		fmt.Printf("status: %s (0x%02X)\n", status, status.Raw())
		return nil
	},
}

var cmdTemp = &cobra.Command{
	Use:       "temp [internal|external]",
	Short:     "Read a temperature channel; both when no channel is given",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"internal", "external"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dev := deviceFromContext(cmd.Context())

		sensors := []emc2101.Sensor{emc2101.SensorInternal, emc2101.SensorExternal}
		if len(args) == 1 {
			if args[0] == "internal" {
				sensors = sensors[:1]
			} else {
				sensors = sensors[1:]
			}
		}
		for _, sensor := range sensors {
			temp, err := dev.Temperature(sensor)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %.3f degC\n", sensor, temp)
		}
		return nil
	},
}

var cmdReset = &cobra.Command{
	Use:   "reset",
	Short: "Rewrite every writable register to its power-on default",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return deviceFromContext(cmd.Context()).ResetRegisters()
	},
}
