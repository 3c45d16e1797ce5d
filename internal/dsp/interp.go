package dsp

import (
	"github.com/rjboer/GoSyspower/internal/logging"
)

// MaxInterpIterations bounds InterpWithMedFilt.
const MaxInterpIterations = 10

// InterpWithMedFilt fills masked samples by repeated gap-filling median
// filters of width k. It stops when nothing is masked or after
// MaxInterpIterations passes; whatever is still masked then stays masked.
func InterpWithMedFilt(x Series, k int, logger logging.Logger) (Series, error) {
	logger = logging.OrDefault(logger)
	out := x.Clone()
	n := out.Len()
	if n == 0 {
		return out, nil
	}
	for iter := 0; iter < MaxInterpIterations; iter++ {
		before := out.MaskedCount()
		if before == 0 {
			break
		}
		filled, err := MedFilt(out, k, FilterOptions{FillGaps: true})
		if err != nil {
			return Series{}, err
		}
		after := filled.MaskedCount()
		logger.Debug("interpolated gaps",
			logging.F("pass", iter+1),
			logging.F("filled_pct", 100*float64(before-after)/float64(n)),
			logging.F("remaining", after))
		out = filled
		if after == before {
			break
		}
	}
	return out, nil
}
