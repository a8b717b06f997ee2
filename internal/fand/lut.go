package fand

import (
	"fmt"
	"math"

	"github.com/northbridge-labs/emcfan/pkg/emc2101"
	"github.com/northbridge-labs/emcfan/pkg/fancurve"
)

// lutEntries quantizes a fan curve into at most eight whole-degree lookup
// table entries. Curves with more points are thinned evenly, always
// keeping the end points.
func lutEntries(curve fancurve.Config, maxStep uint8) ([]emc2101.LUTEntry, error) {
	steps := curve.Steps
	if len(steps) > 8 {
		thinned := make([]fancurve.Step, 0, 8)
		for i := 0; i < 8; i++ {
			thinned = append(thinned, steps[i*(len(steps)-1)/7])
		}
		steps = thinned
	}

	entries := make([]emc2101.LUTEntry, 0, len(steps))
	for _, s := range steps {
		if s.Temperature < 0 || s.Temperature > 100 {
			return nil, fmt.Errorf("curve temperature %g does not fit the lookup table", s.Temperature)
		}
		temp := uint8(math.Round(s.Temperature))
		step := uint8(math.Round(float64(s.Percent) / 100 * float64(maxStep)))
		if n := len(entries); n > 0 && temp <= entries[n-1].TempC {
			// Whole-degree rounding collapsed two points; keep the first.
			continue
		}
		entries = append(entries, emc2101.LUTEntry{TempC: temp, Step: step})
	}
	return entries, nil
}
