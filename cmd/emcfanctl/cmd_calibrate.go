package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

var (
	calibrateOutput    string
	calibrateModel     string
	calibrateFrequency int
)

func init() {
	cmdCalibrate.Flags().StringVarP(&calibrateOutput, "output", "o", "", "write the resulting profile to this file")
	cmdCalibrate.Flags().StringVar(&calibrateModel, "model", "", "fan model name recorded in the profile")
	cmdCalibrate.Flags().IntVar(&calibrateFrequency, "frequency", 22500, "PWM frequency in Hz to calibrate at")
	rootCmd.AddCommand(cmdCalibrate)
}

var cmdCalibrate = &cobra.Command{
	Use:   "calibrate",
	Short: "Sweep every fan step and record the measured speeds as a profile",
	Long: `Calibrate maps every fan setting step to the speed the attached fan
actually reaches, producing a profile for accurate RPM control. The sweep
takes several minutes; pin 6 must be the tach input and the lookup table
must be disabled. Extend --timeout accordingly.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dev := deviceFromContext(ctx)

		profile, err := emc2101.Calibrate(ctx, dev, emc2101.CalibrationOptions{
			Model:        calibrateModel,
			PWMFrequency: calibrateFrequency,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d operating points, %.1f%%..%.1f%% duty\n",
			profile.Model, len(profile.Steps), profile.MinDutyCycle, profile.MaxDutyCycle)
		for _, s := range profile.Steps {
			fmt.Printf("  step %2d  %5.1f%%  %d RPM\n", s.Step, s.DutyCycle, s.RPM)
		}

		if calibrateOutput != "" {
			if err := emc2101.SaveProfile(calibrateOutput, profile); err != nil {
				return err
			}
			fmt.Printf("profile written to %s\n", calibrateOutput)
		}
		return nil
	},
}
