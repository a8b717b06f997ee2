package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

func init() {
	cmdLut.AddCommand(cmdLutShow)
	cmdLut.AddCommand(cmdLutSet)
	cmdLut.AddCommand(cmdLutOff)
	rootCmd.AddCommand(cmdLut)
}

// parseLUTEntries turns "30:5,40:8" into lookup table entries. Validation
// beyond syntax is the driver's job.
func parseLUTEntries(s string) ([]emc2101.LUTEntry, error) {
	var entries []emc2101.LUTEntry
	for _, pair := range strings.Split(s, ",") {
		temp, step, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: want <temp>:<step>", pair)
		}
		t, err := strconv.ParseUint(temp, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		st, err := strconv.ParseUint(step, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		entries = append(entries, emc2101.LUTEntry{TempC: uint8(t), Step: uint8(st)})
	}
	return entries, nil
}

var (
	cmdLut = &cobra.Command{
		Use:   "lut",
		Short: "Manage the chip's temperature-to-speed lookup table",
	}

	cmdLutShow = &cobra.Command{
		Use:   "show",
		Short: "Read the programmed lookup table back from the chip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev := deviceFromContext(cmd.Context())
			entries, enabled, err := dev.LookupTable()
			if err != nil {
				return err
			}
			if enabled {
				fmt.Println("lookup table: driving the fan")
			} else {
				fmt.Println("lookup table: disabled")
			}
			for _, e := range entries {
				fmt.Printf("  >= %3d degC -> step %d\n", e.TempC, e.Step)
			}
			hyst, err := dev.LUTHysteresis()
			if err != nil {
				return err
			}
			fmt.Printf("  hysteresis: %g degC\n", hyst)
			return nil
		},
	}

	cmdLutSet = &cobra.Command{
		Use:     "set <temp>:<step>[,<temp>:<step>...]",
		Example: "emcfanctl lut set 30:4,45:8,60:15",
		Short:   "Program the lookup table and hand fan control to the chip",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := deviceFromContext(cmd.Context())
			entries, err := parseLUTEntries(args[0])
			if err != nil {
				return err
			}
			return dev.ProgramLookupTable(entries)
		},
	}

	cmdLutOff = &cobra.Command{
		Use:   "off",
		Short: "Return fan control to the fan setting register",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return deviceFromContext(cmd.Context()).DisableLookupTable()
		},
	}
)
