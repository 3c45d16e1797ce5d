package dsp

import (
	"math"
	"testing"
)

func TestMedianAcross(t *testing.T) {
	a := NewSeries([]float64{1, 2, 3})
	b := NewSeries([]float64{3, 4, 5})
	c := NewSeries([]float64{2, 100, 7})
	c.Mask[1] = true
	d := NewSeries([]float64{0, 0, 0})
	d.Mask = []bool{true, true, true}

	got := MedianAcross([]Series{a, b, c, d})
	want := []float64{2, 3, 5}
	for i := range want {
		if got.Mask[i] || got.Values[i] != want[i] {
			t.Fatalf("index %d: got %v (masked=%v) want %v", i, got.Values[i], got.Mask[i], want[i])
		}
	}

	empty := MedianAcross([]Series{d})
	if empty.MaskedCount() != 3 {
		t.Fatalf("all-masked members must give a masked median")
	}
}

func TestMaskOutsideNeverClamps(t *testing.T) {
	s := NewSeries([]float64{0.5, 0.9, 1.3, math.NaN()})
	out := s.MaskOutside(0.7, 1.2)
	wantMask := []bool{true, false, true, true}
	for i := range wantMask {
		if out.Mask[i] != wantMask[i] {
			t.Fatalf("index %d mask %v", i, out.Mask[i])
		}
	}
	if out.Values[0] != 0.5 || out.Values[2] != 1.3 {
		t.Fatalf("values must not be clamped: %v", out.Values)
	}
	if s.Mask[0] {
		t.Fatalf("input mutated")
	}
}

func TestSqrtMasksNonPositive(t *testing.T) {
	out := NewSeries([]float64{4, -1, 0, 9}).Sqrt()
	if out.Values[0] != 2 || out.Values[3] != 3 {
		t.Fatalf("unexpected roots %v", out.Values)
	}
	if !out.Mask[1] || !out.Mask[2] {
		t.Fatalf("non-positive samples must be masked")
	}
}

func TestSubPropagatesMask(t *testing.T) {
	a := NewSeries([]float64{3, 3, 3})
	b := NewSeries([]float64{1, 2, 3})
	b.Mask[1] = true
	out := a.Sub(b)
	if out.Values[0] != 2 || !out.Mask[1] || out.Values[2] != 0 {
		t.Fatalf("unexpected difference %+v", out)
	}
}
