package fand

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/northbridge-labs/emcfan/pkg/fancurve"
)

// Curve evaluation modes.
const (
	// ModeSoftware evaluates the curve in the daemon and writes the fan
	// setting register every poll.
	ModeSoftware = "software"
	// ModeLUT quantizes the curve into the chip's lookup table once and
	// lets the hardware drive the fan, surviving daemon restarts.
	ModeLUT = "lut"
)

// AlertConfig wires the chip's ALERT output to a GPIO line so latched
// conditions interrupt the daemon instead of waiting for the next poll.
type AlertConfig struct {
	// Chip is the GPIO chip the ALERT line is routed to
	Chip string `mapstructure:"chip"`
	// Line is the GPIO offset of the ALERT line; -1 disables the watcher
	Line int `mapstructure:"line"`
	// Debounce suppresses edge bursts while a condition persists
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config is the daemon configuration.
type Config struct {
	// Bus is the /dev/i2c-N bus number the chip is wired to
	Bus int `mapstructure:"bus"`
	// PollInterval is how often the chip is read
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MetricsAddr is the prometheus listen address
	MetricsAddr string `mapstructure:"metrics_addr"`
	// Verbose enables debug logging
	Verbose bool `mapstructure:"verbose"`

	// Profile is the path of a calibration profile; empty uses the
	// built-in generic fan
	Profile string `mapstructure:"profile"`
	// TachInput wires pin 6 as the tach input; false makes it the ALERT
	// output, which sacrifices RPM feedback
	TachInput bool `mapstructure:"tach_input"`
	// DACOutput drives the fan with an analog level instead of PWM
	DACOutput bool `mapstructure:"dac_output"`
	// PWMFrequency is the PWM carrier in Hz, 0 keeps the chip default
	PWMFrequency int `mapstructure:"pwm_frequency"`

	// Mode selects software curve evaluation or the hardware lookup table
	Mode string `mapstructure:"mode"`
	// Curve maps external diode temperatures to fan speeds
	Curve fancurve.Config `mapstructure:"curve"`
	// FanSpeed pins the fan to a fixed speed, ignoring the curve
	FanSpeed *fancurve.OverrideOpts `mapstructure:"fan_speed"`

	// ExternalHighLimit asserts ALERT when the external diode exceeds it
	ExternalHighLimit float64 `mapstructure:"external_high_limit"`
	// CriticalTemperature engages the chip's failsafe full fan drive
	CriticalTemperature float64 `mapstructure:"critical_temperature"`
	// CriticalHysteresis is how far the temperature must drop below the
	// critical limit before the daemon leaves the critical state
	CriticalHysteresis float64 `mapstructure:"critical_hysteresis"`
	// TachLimitRPM flags the fan as stalled below this speed; 0 disables
	TachLimitRPM int `mapstructure:"tach_limit_rpm"`

	Alert AlertConfig `mapstructure:"alert"`
}

// DefaultConfig returns a configuration that runs a generic PWM fan on
// /dev/i2c-1 with a conservative curve.
func DefaultConfig() Config {
	return Config{
		Bus:          1,
		PollInterval: 5 * time.Second,
		MetricsAddr:  ":9666",
		TachInput:    true,
		PWMFrequency: 22500,
		Mode:         ModeSoftware,
		Curve: fancurve.Config{Steps: []fancurve.Step{
			{Temperature: 30, Percent: 25},
			{Temperature: 45, Percent: 50},
			{Temperature: 60, Percent: 100},
		}},
		ExternalHighLimit:   60,
		CriticalTemperature: 75,
		CriticalHysteresis:  5,
		Alert:               AlertConfig{Chip: "gpiochip0", Line: -1, Debounce: time.Second},
	}
}

// Validate checks the configuration for contradictions before any
// hardware is touched.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Mode != ModeSoftware && c.Mode != ModeLUT {
		return fmt.Errorf("mode must be %q or %q", ModeSoftware, ModeLUT)
	}
	if err := c.Curve.Validate(); err != nil {
		return fmt.Errorf("curve: %w", err)
	}
	if c.CriticalHysteresis < 0 {
		return fmt.Errorf("critical hysteresis must not be negative")
	}
	if c.ExternalHighLimit > 0 && c.CriticalTemperature <= c.ExternalHighLimit {
		return fmt.Errorf("critical temperature must be above the external high limit")
	}
	if c.TachLimitRPM > 0 && !c.TachInput {
		return fmt.Errorf("tach limit requires pin 6 in tach mode")
	}
	return nil
}

// Load reads the configuration file at path on top of the defaults.
// Environment variables prefixed EMCFAN_ override both. An empty path
// searches /etc/emcfan and the working directory for emcfand.yaml and
// tolerates its absence.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("emcfand")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/emcfan")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("EMCFAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
