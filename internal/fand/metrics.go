package fand

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	internalTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "internal_temperature_celsius",
		Help:      "Internal diode temperature in degrees Celsius",
	})
	externalTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "external_temperature_celsius",
		Help:      "External diode temperature in degrees Celsius",
	})
	diodeFault = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "external_diode_fault",
		Help:      "External diode fault (1 = open or shorted)",
	})
	fanSpeedRPM = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "fan_speed_rpm",
		Help:      "Measured fan speed in RPM",
	})
	fanSpeedTargetPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "emcfan",
		Name:      "fan_speed_target_percent",
		Help:      "Fan drive duty cycle in percent",
	})
	alertCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emcfan",
		Name:      "alerts_count",
		Help:      "Alert conditions reported by the chip, by cause",
	}, []string{"cause"})
	pollErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emcfan",
		Name:      "poll_errors_count",
		Help:      "Chip polls that failed",
	})
	pollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "emcfan",
		Name:      "poll_duration_seconds",
		Help:      "Time spent reading the chip per poll",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
	})
)
