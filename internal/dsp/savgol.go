package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidSmoother is returned for Savitzky-Golay windows that cannot fit
// the requested polynomial order.
var ErrInvalidSmoother = errors.New("dsp: invalid Savitzky-Golay window/order")

// SavGolCoefficients returns the convolution weights that evaluate a
// least-squares polynomial of the given order at the centre of the window.
func SavGolCoefficients(window, order int) ([]float64, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("%w: window %d must be a positive odd number", ErrInvalidSmoother, window)
	}
	if order < 0 || window < order+2 {
		return nil, fmt.Errorf("%w: window %d too small for order %d", ErrInvalidSmoother, window, order)
	}
	half := window / 2
	cols := order + 1

	// Vandermonde matrix over offsets -half..half.
	a := mat.NewDense(window, cols, nil)
	for r := 0; r < window; r++ {
		k := float64(r - half)
		for c := 0; c < cols; c++ {
			a.Set(r, c, math.Pow(k, float64(c)))
		}
	}

	// pinv(A) = (AᵀA)⁻¹Aᵀ; its first row gives the value at offset zero.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var pinv mat.Dense
	if err := pinv.Solve(&ata, a.T()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSmoother, err)
	}
	return mat.Row(nil, 0, &pinv), nil
}

// SavitzkyGolay smooths y with a Savitzky-Golay filter. The series is
// extended at both ends by point reflection about the end values. Inputs
// shorter than the window are returned unchanged.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	coeffs, err := SavGolCoefficients(window, order)
	if err != nil {
		return nil, err
	}
	n := len(y)
	half := window / 2
	if n < window {
		return append([]float64(nil), y...), nil
	}

	padded := make([]float64, 0, n+2*half)
	for j := half; j >= 1; j-- {
		padded = append(padded, 2*y[0]-y[j])
	}
	padded = append(padded, y...)
	for j := n - 2; j >= n-1-half; j-- {
		padded = append(padded, 2*y[n-1]-y[j])
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j, c := range coeffs {
			sum += c * padded[i+j]
		}
		out[i] = sum
	}
	return out, nil
}

// SmoothSeries applies SavitzkyGolay to a Series. Masked samples are
// replaced by the median of the valid ones before smoothing and remain
// masked in the result.
func SmoothSeries(s Series, window, order int) (Series, error) {
	fill, ok := s.Median()
	if !ok {
		if _, err := SavGolCoefficients(window, order); err != nil {
			return Series{}, err
		}
		return s.Clone(), nil
	}
	work := s.Clone()
	for i := range work.Values {
		if work.Mask[i] {
			work.Values[i] = fill
		}
	}
	smoothed, err := SavitzkyGolay(work.Values, window, order)
	if err != nil {
		return Series{}, err
	}
	work.Values = smoothed
	return work, nil
}
