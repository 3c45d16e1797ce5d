package dsp

import (
	"errors"
	"math"
	"testing"
)

func wobble(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 1 + 0.01*math.Sin(1.7*float64(i))
	}
	return x
}

func TestMedFiltConstantIsUnflagged(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = 0.1
	}
	for k := 3; k <= 15; k += 2 {
		for _, opts := range []FilterOptions{
			{},
			{Threshold: 8, FlagMedian: true},
			{Threshold: 8, FlagRMS: true},
			{Threshold: 6, FlagMedian: true, FlagRMS: true},
		} {
			out, err := MedFilt(NewSeries(x), k, opts)
			if err != nil {
				t.Fatalf("k=%d: %v", k, err)
			}
			if out.MaskedCount() != 0 {
				t.Fatalf("k=%d opts=%+v: %d samples flagged", k, opts, out.MaskedCount())
			}
			for i, v := range out.Values {
				if v != 0.1 {
					t.Fatalf("k=%d: value %d = %v", k, i, v)
				}
			}
		}
	}
}

func TestMedFiltRejectsEvenWindow(t *testing.T) {
	for _, k := range []int{0, -3, 4} {
		if _, err := MedFilt(NewSeries(wobble(10)), k, FilterOptions{}); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("k=%d: expected ErrInvalidWindow, got %v", k, err)
		}
	}
}

func TestMedFiltFlagMedianCatchesSpike(t *testing.T) {
	x := wobble(100)
	x[50] = 10
	out, err := MedFilt(NewSeries(x), 9, FilterOptions{Threshold: 8, FlagMedian: true})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Mask[50] {
		t.Fatalf("spike not flagged")
	}
	if out.MaskedCount() != 1 {
		t.Fatalf("expected only the spike flagged, got %d", out.MaskedCount())
	}
	if out.Values[50] != 10 {
		t.Fatalf("flagging must keep values, got %v", out.Values[50])
	}
}

func TestMedFiltFlagRMSFlagsNoisyWindows(t *testing.T) {
	x := wobble(100)
	x[50] = 10
	out, err := MedFilt(NewSeries(x), 5, FilterOptions{Threshold: 8, FlagRMS: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 48; i <= 52; i++ {
		if !out.Mask[i] {
			t.Fatalf("index %d not flagged", i)
		}
	}
	if out.MaskedCount() != 5 {
		t.Fatalf("expected 5 flagged samples, got %d", out.MaskedCount())
	}
}

func TestMedFiltAllMaskedReturnsEarly(t *testing.T) {
	s := NewSeries(wobble(12))
	for i := range s.Mask {
		s.Mask[i] = true
	}
	out, err := MedFilt(s, 5, FilterOptions{Threshold: 8, FlagMedian: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.MaskedCount() != 12 {
		t.Fatalf("expected mask untouched")
	}
}

func TestMedFiltSmoothingEdgesUseFirstValid(t *testing.T) {
	s := NewSeries([]float64{100, 1, 2, 3, 4})
	s.Mask[0] = true
	out, err := MedFilt(s, 3, FilterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// index 0 window: pad(1), masked 100, 1 -> median 1
	if out.Values[0] != 1 || out.Mask[0] {
		t.Fatalf("unexpected edge median %v (masked=%v)", out.Values[0], out.Mask[0])
	}
	if out.Values[4] != 4 {
		t.Fatalf("unexpected trailing median %v", out.Values[4])
	}
}

func TestInterpWithMedFiltNoMaskIsIdentity(t *testing.T) {
	x := wobble(30)
	out, err := InterpWithMedFilt(NewSeries(x), 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range x {
		if out.Values[i] != x[i] || out.Mask[i] {
			t.Fatalf("index %d changed", i)
		}
	}
}

func TestInterpWithMedFiltContinuesRamp(t *testing.T) {
	const slope = 0.005
	x := make([]float64, 100)
	for i := range x {
		x[i] = 1 + slope*float64(i)
	}
	s := NewSeries(append([]float64(nil), x...))
	for i := 48; i < 53; i++ {
		s.Mask[i] = true
		s.Values[i] = 0
	}
	out, err := InterpWithMedFilt(s, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.MaskedCount() != 0 {
		t.Fatalf("gap not fully filled: %d left", out.MaskedCount())
	}
	// The centre is filled on the second pass from both edges, so it lands
	// on the ramp. Copying the nearest valid sample would miss it by 3*slope.
	if d := math.Abs(out.Values[50] - x[50]); d > 1e-12 {
		t.Fatalf("centre: got %v want %v", out.Values[50], x[50])
	}
	for i := 48; i < 53; i++ {
		if d := math.Abs(out.Values[i] - x[i]); d > 2*slope+1e-12 {
			t.Fatalf("index %d: got %v want %v (off by %.4f slopes)", i, out.Values[i], x[i], d/slope)
		}
	}
}

func TestInterpWithMedFiltGivesUpOnEmpty(t *testing.T) {
	s := NewSeries(make([]float64, 8))
	for i := range s.Mask {
		s.Mask[i] = true
	}
	out, err := InterpWithMedFilt(s, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.MaskedCount() != 8 {
		t.Fatalf("expected series to stay masked")
	}
}

func TestSavitzkyGolayRecoversCubic(t *testing.T) {
	n := 50
	y := make([]float64, n)
	for i := range y {
		ti := float64(i)
		y[i] = 2 - 0.5*ti + 0.1*ti*ti - 0.01*ti*ti*ti
	}
	out, err := SavitzkyGolay(y, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != n {
		t.Fatalf("length changed: %d", len(out))
	}
	for i := 3; i < n-3; i++ {
		if math.Abs(out[i]-y[i]) > 1e-6 {
			t.Fatalf("index %d: got %v want %v", i, out[i], y[i])
		}
	}
}

func TestSavitzkyGolayCoefficientsSumToOne(t *testing.T) {
	c, err := SavGolCoefficients(7, 3)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, v := range c {
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("coefficients sum to %v", sum)
	}
	// Classic 7-point cubic weights: (-2, 3, 6, 7, 6, 3, -2)/21.
	if math.Abs(c[3]-7.0/21) > 1e-12 || math.Abs(c[0]+2.0/21) > 1e-12 {
		t.Fatalf("unexpected coefficients %v", c)
	}
}

func TestSavitzkyGolayRejectsBadWindow(t *testing.T) {
	tests := []struct{ window, order int }{{6, 3}, {3, 3}, {-1, 0}}
	for _, tt := range tests {
		if _, err := SavitzkyGolay(wobble(20), tt.window, tt.order); !errors.Is(err, ErrInvalidSmoother) {
			t.Fatalf("window=%d order=%d: expected ErrInvalidSmoother, got %v", tt.window, tt.order, err)
		}
	}
}

func TestSmoothSeriesKeepsMask(t *testing.T) {
	s := NewSeries(wobble(20))
	s.Mask[4] = true
	out, err := SmoothSeries(s, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Mask[4] || out.MaskedCount() != 1 {
		t.Fatalf("mask not preserved")
	}
}
