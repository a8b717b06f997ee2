//go:build tinygo

// picofan runs an EMC2101 from an RP2040: the chip's own lookup table
// drives the fan and the firmware only reports readings over the serial
// console.
package main

import (
	"machine"
	"time"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
)

// curve is programmed into the chip once; the hardware drives the fan on
// its own afterwards, surviving firmware hangs.
var curve = []emc2101.LUTEntry{
	{TempC: 30, Step: 4},
	{TempC: 40, Step: 6},
	{TempC: 50, Step: 9},
	{TempC: 60, Step: 12},
	{TempC: 70, Step: 15},
}

func main() {
	var emc *emc2101.Device
	var err error

	// Configure status LED
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	machine.LED.Set(false)

	// Setup emc2101
	err = machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 100 * machine.KHz,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	if err != nil {
		println("[!] Failed to initialize I2C0:", err.Error())
		goto errprint
	}

	emc = emc2101.New(machine.I2C0, emc2101.Config{
		PinSix:       emc2101.PinTacho,
		PWMFrequency: 22500,
	})
	err = emc.Init()
	if err != nil {
		println("[!] Failed to initialize emc2101:", err.Error())
		goto errprint
	}
	err = emc.ProgramLookupTable(curve)
	if err != nil {
		println("[!] Failed to program lookup table:", err.Error())
		goto errprint
	}

	println("[+] lookup table active, chip drives the fan")
	machine.LED.Set(true)

	for {
		internal, err := emc.Temperature(emc2101.SensorInternal)
		if err != nil {
			println("[!] internal temp:", err.Error())
		}
		external, err := emc.Temperature(emc2101.SensorExternal)
		if err != nil {
			println("[!] external temp:", err.Error())
		}
		rpm, err := emc.FanSpeed(emc2101.UnitRPM)
		if err != nil {
			println("[!] fan speed:", err.Error())
		}
		println("temp int:", int(internal), "C ext:", int(external), "C fan:", int(rpm), "RPM")
		time.Sleep(5 * time.Second)
	}

errprint:
	ledState := false
	for {
		machine.LED.Set(ledState)
		ledState = !ledState
		time.Sleep(250 * time.Millisecond)
	}
}
