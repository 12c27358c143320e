// Package peaks locates local maxima and minima in a spectral window and maps
// reference energies onto the detected features.
//
// Detection is a plain neighbor comparison filtered by height and by
// topographic prominence, optionally run on a Gaussian-smoothed copy of the
// counts. Matching a reference energy to its nearest feature is a heuristic:
// the match is not guaranteed to come from the same emission line, so callers
// should check [Feature.Within] against the expected cluster span before using
// it as a fit seed.
package peaks

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-puassay/internal/conv"
	"github.com/cwbudde/algo-puassay/spectrum"
)

// ErrNoFeatures is returned when a nearest-feature lookup has nothing to
// match against.
var ErrNoFeatures = errors.New("peaks: no features detected")

// Feature is one detected extremum.
type Feature struct {
	Index  int     // sample index in the window
	Energy float64 // keV
	Value  float64 // raw window count at Index
}

// Within reports whether the feature energy lies in [lo, hi].
func (f Feature) Within(lo, hi float64) bool {
	return f.Energy >= lo && f.Energy <= hi
}

// FeatureSet holds the peaks and troughs detected in one window.
type FeatureSet struct {
	Peaks   []Feature
	Troughs []Feature
}

// Options configures [Locate].
type Options struct {
	// SmoothSigma is the Gaussian smoothing width in samples applied before
	// detection. Zero disables smoothing.
	SmoothSigma float64
	// MinHeight rejects peaks at or below this (smoothed) count.
	MinHeight float64
	// MinProminence rejects extrema with a smaller topographic prominence.
	MinProminence float64
}

// DefaultOptions returns options suited to HPGe spectra binned at roughly
// 0.1–0.25 keV.
func DefaultOptions() Options {
	return Options{
		SmoothSigma:   1,
		MinHeight:     0,
		MinProminence: 3,
	}
}

// FindPeaks returns the indices of local maxima of values.
//
// A sample is a maximum when it is strictly greater than its left neighbor
// and the run of equal values starting at it is followed by a smaller value;
// plateaus report their first index. The first and last samples are never
// reported. Peaks must exceed minHeight and have a prominence of at least
// minProminence.
func FindPeaks(values []float64, minHeight, minProminence float64) []int {
	n := len(values)
	var out []int

	for i := 1; i < n-1; i++ {
		v := values[i]
		if !(v > values[i-1]) || v <= minHeight {
			continue
		}

		j := i + 1
		for j < n-1 && values[j] == v {
			j++
		}
		if !(values[j] < v) {
			continue
		}

		if prominence(values, i, j-1) >= minProminence {
			out = append(out, i)
		}
		i = j - 1
	}
	return out
}

// FindTroughs returns the indices of local minima of values. It applies
// [FindPeaks] to the height-reflected signal max(values) - v, so minDepth is
// measured downward from the window maximum.
func FindTroughs(values []float64, minDepth, minProminence float64) []int {
	if len(values) == 0 {
		return nil
	}
	top := values[0]
	for _, v := range values {
		top = math.Max(top, v)
	}

	reflected := make([]float64, len(values))
	for i, v := range values {
		reflected[i] = top - v
	}
	return FindPeaks(reflected, minDepth, minProminence)
}

// prominence returns the height of the plateau [lo, hi] above the higher of
// its two bases. Each base is the minimum reached before the signal climbs
// above the plateau or the window ends.
func prominence(values []float64, lo, hi int) float64 {
	v := values[lo]

	leftMin := v
	for k := lo - 1; k >= 0 && values[k] <= v; k-- {
		leftMin = math.Min(leftMin, values[k])
	}

	rightMin := v
	for k := hi + 1; k < len(values) && values[k] <= v; k++ {
		rightMin = math.Min(rightMin, values[k])
	}

	return v - math.Max(leftMin, rightMin)
}

// Nearest maps each target energy to the detected feature whose energy is
// closest in absolute distance. Ties resolve to the lowest detected index.
// energies and values are parallel lists describing the detected features;
// the returned Feature.Index refers to that list.
func Nearest(targets, energies, values []float64) ([]Feature, error) {
	if len(energies) == 0 {
		return nil, ErrNoFeatures
	}
	if len(values) != len(energies) {
		return nil, fmt.Errorf("peaks: %d energies but %d values", len(energies), len(values))
	}

	out := make([]Feature, len(targets))
	for t, target := range targets {
		best := 0
		bestDist := math.Abs(energies[0] - target)
		for i := 1; i < len(energies); i++ {
			if d := math.Abs(energies[i] - target); d < bestDist {
				best, bestDist = i, d
			}
		}
		out[t] = Feature{Index: best, Energy: energies[best], Value: values[best]}
	}
	return out, nil
}

// NearestPeaks maps targets onto the detected peaks of fs. The returned
// Feature.Index is the window sample index of the matched peak.
func (fs FeatureSet) NearestPeaks(targets []float64) ([]Feature, error) {
	energies := make([]float64, len(fs.Peaks))
	values := make([]float64, len(fs.Peaks))
	for i, p := range fs.Peaks {
		energies[i] = p.Energy
		values[i] = p.Value
	}

	matched, err := Nearest(targets, energies, values)
	if err != nil {
		return nil, err
	}
	for i := range matched {
		matched[i] = fs.Peaks[matched[i].Index]
	}
	return matched, nil
}

// Smooth convolves values with a unit-sum Gaussian of the given width in
// samples. The signal is edge-padded first so that the ends are not pulled
// toward zero.
func Smooth(values []float64, sigma float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	kernel, err := conv.GaussianKernel(sigma)
	if err != nil {
		return nil, err
	}
	half := len(kernel) / 2

	padded := make([]float64, len(values)+2*half)
	for i := range padded {
		k := min(max(i-half, 0), len(values)-1)
		padded[i] = values[k]
	}

	out, err := conv.Same(padded, kernel)
	if err != nil {
		return nil, err
	}
	return out[half : half+len(values)], nil
}

// Locate detects the peaks and troughs of w.
func Locate(w spectrum.Window, opts Options) (FeatureSet, error) {
	values := w.Counts
	if opts.SmoothSigma > 0 {
		smoothed, err := Smooth(w.Counts, opts.SmoothSigma)
		if err != nil {
			return FeatureSet{}, err
		}
		values = smoothed
	}

	var fs FeatureSet
	for _, i := range FindPeaks(values, opts.MinHeight, opts.MinProminence) {
		fs.Peaks = append(fs.Peaks, Feature{Index: i, Energy: w.Energies[i], Value: w.Counts[i]})
	}
	for _, i := range FindTroughs(values, 0, opts.MinProminence) {
		fs.Troughs = append(fs.Troughs, Feature{Index: i, Energy: w.Energies[i], Value: w.Counts[i]})
	}
	return fs, nil
}
