package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// relZero is the relative spread below which a window counts as constant.
const relZero = 1e-12

// ErrInvalidWindow is returned for filter windows that are not odd and positive.
var ErrInvalidWindow = errors.New("dsp: window size must be a positive odd integer")

// FilterOptions selects the MedFilt mode. With no flag set MedFilt smooths.
// FlagMedian and FlagRMS may be combined; FillGaps takes precedence over both.
type FilterOptions struct {
	Threshold  float64
	FlagMedian bool
	FlagRMS    bool
	FillGaps   bool
}

// windowStats holds the per-index statistics of a centred window.
type windowStats struct {
	median []float64
	std    []float64
	valid  []bool
}

// MedFilt applies a centred k-sample median filter to x.
//
// Smoothing returns the window medians. FlagMedian flags samples further than
// Threshold robust scales from their window median, FlagRMS flags samples
// whose window spread exceeds Threshold robust scales; both return x with
// the extended mask. The robust scale is the median of the non-zero window
// standard deviations; when there is none x is returned unchanged. FillGaps
// replaces masked samples with their window median where one exists.
func MedFilt(x Series, k int, opts FilterOptions) (Series, error) {
	if k < 1 || k%2 == 0 {
		return Series{}, fmt.Errorf("%w: got %d", ErrInvalidWindow, k)
	}
	ws, ok := windows(x, k)
	if !ok {
		return x.Clone(), nil
	}

	switch {
	case opts.FillGaps:
		out := x.Clone()
		for i := range out.Values {
			if out.Mask[i] && ws.valid[i] {
				out.Values[i] = ws.median[i]
				out.Mask[i] = false
			}
		}
		return out, nil
	case opts.FlagMedian || opts.FlagRMS:
		return flagOutliers(x, ws, opts)
	default:
		out := Series{Values: ws.median, Mask: make([]bool, len(ws.median))}
		for i, ok := range ws.valid {
			out.Mask[i] = !ok
		}
		return out, nil
	}
}

func flagOutliers(x Series, ws windowStats, opts FilterOptions) (Series, error) {
	nonzero := make([]float64, 0, len(ws.std))
	for i, s := range ws.std {
		if ws.valid[i] && s != 0 {
			nonzero = append(nonzero, s)
		}
	}
	scale, ok := median(nonzero)
	if !ok {
		return x.Clone(), nil
	}
	limit := opts.Threshold * scale

	out := x.Clone()
	for i := range out.Values {
		if !ws.valid[i] {
			continue
		}
		if ws.std[i] == 0 {
			out.Mask[i] = true
			continue
		}
		if opts.FlagMedian && !out.Mask[i] {
			d := out.Values[i] - ws.median[i]
			if d < 0 {
				d = -d
			}
			if d > limit {
				out.Mask[i] = true
			}
		}
		if opts.FlagRMS && ws.std[i] > limit {
			out.Mask[i] = true
		}
	}
	return out, nil
}

// windows computes median and population std of every k-wide window.
// Out-of-range positions repeat the first/last valid sample. ok is false
// when x has no valid sample at all.
func windows(x Series, k int) (windowStats, bool) {
	n := x.Len()
	first, last := -1, -1
	for i := 0; i < n; i++ {
		if !x.Masked(i) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return windowStats{}, false
	}

	half := k / 2
	ws := windowStats{
		median: make([]float64, n),
		std:    make([]float64, n),
		valid:  make([]bool, n),
	}
	buf := make([]float64, 0, k)
	for i := 0; i < n; i++ {
		buf = buf[:0]
		for j := i - half; j <= i+half; j++ {
			switch {
			case j < 0:
				buf = append(buf, x.Values[first])
			case j >= n:
				buf = append(buf, x.Values[last])
			case !x.Masked(j):
				buf = append(buf, x.Values[j])
			}
		}
		if len(buf) == 0 {
			continue
		}
		ws.std[i] = popStd(buf)
		ws.median[i], _ = median(buf)
		ws.valid[i] = true
	}
	return ws, true
}

// popStd is the population standard deviation with round-off spread of
// identical samples reported as exactly zero.
func popStd(x []float64) float64 {
	mean, variance := stat.PopMeanVariance(x, nil)
	if variance <= 0 || variance <= relZero*relZero*mean*mean {
		return 0
	}
	return math.Sqrt(variance)
}
