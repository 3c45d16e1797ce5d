package dsp

import (
	"math"
	"sort"
)

// Series is a sampled curve with a parallel flag mask. Mask[i] set means
// Values[i] must not be used. Helpers in this package never modify their
// inputs; they return new Series values.
type Series struct {
	Values []float64
	Mask   []bool
}

// NewSeries wraps values with an all-clear mask.
func NewSeries(values []float64) Series {
	return Series{Values: values, Mask: make([]bool, len(values))}
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Values) }

// Clone returns a deep copy.
func (s Series) Clone() Series {
	out := Series{
		Values: append([]float64(nil), s.Values...),
		Mask:   make([]bool, len(s.Values)),
	}
	copy(out.Mask, s.Mask)
	return out
}

// Masked reports whether sample i is flagged. A nil or short mask counts as clear.
func (s Series) Masked(i int) bool {
	return i < len(s.Mask) && s.Mask[i]
}

// MaskedCount returns the number of flagged samples.
func (s Series) MaskedCount() int {
	n := 0
	for i := range s.Values {
		if s.Masked(i) {
			n++
		}
	}
	return n
}

// Valid returns the unflagged values in order.
func (s Series) Valid() []float64 {
	out := make([]float64, 0, len(s.Values))
	for i, v := range s.Values {
		if !s.Masked(i) {
			out = append(out, v)
		}
	}
	return out
}

// WithMask returns a copy of s whose mask is mask OR-ed into the existing one.
func (s Series) WithMask(mask []bool) Series {
	out := s.Clone()
	for i := range out.Mask {
		if i < len(mask) && mask[i] {
			out.Mask[i] = true
		}
	}
	return out
}

// Sub returns s-o elementwise; a sample is masked if either side is.
func (s Series) Sub(o Series) Series {
	out := s.Clone()
	for i := range out.Values {
		if i >= len(o.Values) || o.Masked(i) {
			out.Mask[i] = true
			continue
		}
		out.Values[i] -= o.Values[i]
	}
	return out
}

// Sqrt returns the square root of every sample; non-positive or non-finite
// samples become masked.
func (s Series) Sqrt() Series {
	out := s.Clone()
	for i, v := range out.Values {
		if out.Mask[i] {
			continue
		}
		if !(v > 0) || math.IsInf(v, 0) {
			out.Mask[i] = true
			continue
		}
		out.Values[i] = math.Sqrt(v)
	}
	return out
}

// MaskOutside masks samples outside [lo, hi] (and NaNs). Values are kept as is.
func (s Series) MaskOutside(lo, hi float64) Series {
	out := s.Clone()
	for i, v := range out.Values {
		if math.IsNaN(v) || v < lo || v > hi {
			out.Mask[i] = true
		}
	}
	return out
}

// MaskInvalid masks NaN, infinite and zero samples, which stand for missing data.
func (s Series) MaskInvalid() Series {
	out := s.Clone()
	for i, v := range out.Values {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			out.Mask[i] = true
		}
	}
	return out
}

// Median returns the median of the unflagged samples, and false if there are none.
func (s Series) Median() (float64, bool) {
	return median(s.Valid())
}

// MedianAcross returns, for every index, the median of the members that are
// unflagged at that index. Indices with no valid member are masked. All
// members must share the length of the first one.
func MedianAcross(members []Series) Series {
	if len(members) == 0 {
		return Series{}
	}
	n := members[0].Len()
	out := Series{Values: make([]float64, n), Mask: make([]bool, n)}
	buf := make([]float64, 0, len(members))
	for i := 0; i < n; i++ {
		buf = buf[:0]
		for _, m := range members {
			if i < m.Len() && !m.Masked(i) {
				buf = append(buf, m.Values[i])
			}
		}
		med, ok := median(buf)
		if !ok {
			out.Mask[i] = true
			continue
		}
		out.Values[i] = med
	}
	return out
}

// median averages the two middle values for even counts. It reorders x.
func median(x []float64) (float64, bool) {
	n := len(x)
	if n == 0 {
		return 0, false
	}
	sort.Float64s(x)
	if n%2 == 1 {
		return x[n/2], true
	}
	return 0.5 * (x[n/2-1] + x[n/2]), true
}
