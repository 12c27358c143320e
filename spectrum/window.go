package spectrum

import (
	"fmt"
	"sort"
)

// subBinFactor is the number of synthetic samples emitted per source bin.
const subBinFactor = 4

// Window is a contiguous energy region of a Spectrum, optionally resampled.
//
// Uncertainties holds the per-sample standard deviation used as the fit
// weight denominator; every entry is >= 1.
type Window struct {
	Energies      []float64
	Counts        []float64
	Uncertainties []float64
	SubBinned     bool
}

// Len returns the number of samples in the window.
func (w Window) Len() int { return len(w.Energies) }

// Width returns the energy span between the first and last sample.
func (w Window) Width() float64 {
	if len(w.Energies) < 2 {
		return 0
	}
	return w.Energies[len(w.Energies)-1] - w.Energies[0]
}

// Sum returns the total counts in the window.
func (w Window) Sum() float64 {
	sum := 0.0
	for _, c := range w.Counts {
		sum += c
	}
	return sum
}

// IndexNearest returns the index of the sample whose energy is closest to
// energy. Ties resolve to the lower index. It returns -1 for an empty window.
func (w Window) IndexNearest(energy float64) int {
	n := len(w.Energies)
	if n == 0 {
		return -1
	}

	j := sort.SearchFloat64s(w.Energies, energy)
	if j == 0 {
		return 0
	}
	if j == n {
		return n - 1
	}
	if energy-w.Energies[j-1] <= w.Energies[j]-energy {
		return j - 1
	}
	return j
}

// Slice returns the sub-window with energies in [lo, hi).
func (w Window) Slice(lo, hi float64) Window {
	i0 := sort.SearchFloat64s(w.Energies, lo)
	i1 := sort.SearchFloat64s(w.Energies, hi)
	if i1 < i0 {
		i1 = i0
	}
	return Window{
		Energies:      w.Energies[i0:i1],
		Counts:        w.Counts[i0:i1],
		Uncertainties: w.Uncertainties[i0:i1],
		SubBinned:     w.SubBinned,
	}
}

// Extract returns the samples of s with lo <= energy < hi.
//
// It returns ErrEmptyRegion when no bin falls inside the region; no fit is
// possible in that case.
func Extract(s Spectrum, lo, hi float64) (Window, error) {
	if err := s.Validate(); err != nil {
		return Window{}, err
	}
	if !(hi > lo) {
		return Window{}, fmt.Errorf("%w: [%g, %g)", ErrInvalidBounds, lo, hi)
	}

	i0 := sort.SearchFloat64s(s.Energies, lo)
	i1 := sort.SearchFloat64s(s.Energies, hi)
	if i1 <= i0 {
		return Window{}, fmt.Errorf("%w: [%g, %g) keV", ErrEmptyRegion, lo, hi)
	}

	n := i1 - i0
	w := Window{
		Energies:      make([]float64, n),
		Counts:        make([]float64, n),
		Uncertainties: make([]float64, n),
	}
	copy(w.Energies, s.Energies[i0:i1])
	copy(w.Counts, s.Counts[i0:i1])
	for i, c := range w.Counts {
		w.Uncertainties[i] = Uncertainty(c)
	}
	return w, nil
}

// SubBin resamples w onto a quarter-bin grid by piecewise-linear
// interpolation.
//
// Bin i with a right neighbor emits samples at fractional offsets
// f = 0, 1/4, 1/2, 3/4 of the gap to bin i+1 with count
// (c[i] + f*(c[i+1]-c[i])) / 4. The last bin has no neighbor and is split
// evenly using the preceding gap. The total is conserved up to the
// interpolation error; see the package documentation for why this is not a
// precision gain. Windows with fewer than two samples are returned unchanged.
func SubBin(w Window) Window {
	n := len(w.Energies)
	if n < 2 {
		return w
	}

	m := n * subBinFactor
	out := Window{
		Energies:      make([]float64, 0, m),
		Counts:        make([]float64, 0, m),
		Uncertainties: make([]float64, 0, m),
		SubBinned:     true,
	}

	for i := range n {
		e0, c0 := w.Energies[i], w.Counts[i]

		var gap, c1 float64
		if i+1 < n {
			gap = w.Energies[i+1] - e0
			c1 = w.Counts[i+1]
		} else {
			gap = e0 - w.Energies[i-1]
			c1 = c0
		}

		for k := range subBinFactor {
			f := float64(k) / subBinFactor
			c := (c0 + f*(c1-c0)) / subBinFactor
			out.Energies = append(out.Energies, e0+f*gap)
			out.Counts = append(out.Counts, c)
			out.Uncertainties = append(out.Uncertainties, Uncertainty(c))
		}
	}
	return out
}
