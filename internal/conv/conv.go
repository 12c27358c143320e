// Package conv provides the linear convolution used to smooth spectra before
// extremum detection.
//
// Small products are computed directly in O(N*M); long kernels or long
// signals go through a single zero-padded FFT product. [Same] trims the full result to the length
// of the signal, centered on the kernel.
package conv

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Errors returned by convolution functions.
var (
	ErrEmptyInput  = errors.New("conv: empty input")
	ErrEmptyKernel = errors.New("conv: empty kernel")
	ErrInvalidSize = errors.New("conv: kernel width must be positive")
)

// Direct convolution is used while the kernel has at most directThreshold
// taps and the product of the lengths stays within directWork.
const (
	directThreshold = 64
	directWork      = 2048
)

// Direct performs time-domain linear convolution of a and b.
// Returns a new slice of length len(a) + len(b) - 1.
func Direct(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	dst := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		for j, k := range b {
			dst[i+j] += x * k
		}
	}
	return dst, nil
}

// FFT performs linear convolution of a and b through one forward/inverse FFT
// pair. The result matches [Direct] up to rounding.
func FFT(a, b []float64) ([]float64, error) {
	if len(a) == 0 {
		return nil, ErrEmptyInput
	}
	if len(b) == 0 {
		return nil, ErrEmptyKernel
	}

	n := len(a) + len(b) - 1
	fftSize := nextPowerOf2(n)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: failed to create FFT plan: %w", err)
	}

	aPadded := make([]complex128, fftSize)
	bPadded := make([]complex128, fftSize)
	for i, v := range a {
		aPadded[i] = complex(v, 0)
	}
	for i, v := range b {
		bPadded[i] = complex(v, 0)
	}

	if err := plan.Forward(aPadded, aPadded); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}
	if err := plan.Forward(bPadded, bPadded); err != nil {
		return nil, fmt.Errorf("conv: forward FFT failed: %w", err)
	}

	for i := range aPadded {
		aPadded[i] *= bPadded[i]
	}

	if err := plan.Inverse(aPadded, aPadded); err != nil {
		return nil, fmt.Errorf("conv: inverse FFT failed: %w", err)
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = real(aPadded[i])
	}
	return out, nil
}

// Convolve selects [Direct] for small products and [FFT] otherwise.
func Convolve(a, b []float64) ([]float64, error) {
	if len(b) > len(a) {
		a, b = b, a
	}
	if useDirect(len(a), len(b)) {
		return Direct(a, b)
	}
	return FFT(a, b)
}

// useDirect reports whether a signal of n samples and a kernel of m taps
// (m <= n) are cheaper to convolve directly.
func useDirect(n, m int) bool {
	return m <= directThreshold && n*m <= directWork
}

// Same convolves signal with kernel and returns the central len(signal)
// samples, so output index i lines up with input index i for an odd,
// symmetric kernel.
func Same(signal, kernel []float64) ([]float64, error) {
	full, err := Convolve(signal, kernel)
	if err != nil {
		return nil, err
	}
	start := (len(kernel) - 1) / 2
	return full[start : start+len(signal)], nil
}

// GaussianKernel returns an odd-length, unit-sum Gaussian kernel with the
// given standard deviation in samples, truncated at +/-3 sigma.
func GaussianKernel(sigma float64) ([]float64, error) {
	if !(sigma > 0) {
		return nil, fmt.Errorf("%w: sigma %v", ErrInvalidSize, sigma)
	}

	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	sum := 0.0
	for i := range kernel {
		x := float64(i-half) / sigma
		kernel[i] = math.Exp(-0.5 * x * x)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel, nil
}

// nextPowerOf2 returns the next power of 2 >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
