package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

func init() {
	cmdReg.AddCommand(cmdRegList)
	cmdReg.AddCommand(cmdRegGet)
	cmdReg.AddCommand(cmdRegSet)
	cmdReg.AddCommand(cmdRegDump)
	rootCmd.AddCommand(cmdReg)
}

var (
	cmdReg = &cobra.Command{
		Use:   "reg",
		Short: "Access register fields by name, for debugging and bring-up",
	}

	cmdRegList = &cobra.Command{
		Use:   "list",
		Short: "List every known register field",
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, f := range emc2101.Fields() {
				fmt.Printf("0x%02X  %-22s mask 0x%02X\n", f.Reg, f.Name, f.Mask)
			}
			return nil
		},
	}

	cmdRegGet = &cobra.Command{
		Use:     "get <field>",
		Example: "emcfanctl reg get fan_setting",
		Short:   "Read one register field",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := deviceFromContext(cmd.Context())
			field, err := emc2101.FieldByName(args[0])
			if err != nil {
				return err
			}
			raw, err := dev.ReadField(field)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", field.Name, field.Format(raw))
			return nil
		},
	}

	cmdRegSet = &cobra.Command{
		Use:     "set <field> <value>",
		Example: "emcfanctl reg set fan_setting 8",
		Short:   "Write one register field, preserving the other bits",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev := deviceFromContext(cmd.Context())
			field, err := emc2101.FieldByName(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return err
			}
			return dev.WriteField(field, uint8(value))
		},
	}

	cmdRegDump = &cobra.Command{
		Use:   "dump",
		Short: "Dump every known register (consumes latched status bits)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev := deviceFromContext(cmd.Context())
			snapshot, err := dev.RegisterSnapshot()
			if err != nil {
				return err
			}
			for _, rv := range snapshot {
				fmt.Printf("0x%02X = 0x%02X\n", rv.Reg, rv.Value)
			}
			return nil
		},
	}
)
