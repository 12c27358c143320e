package spectrum

import (
	"fmt"
	"math"
)

// Spectrum is a measured gamma-ray energy histogram.
//
// Energies are bin centers in keV and must be strictly increasing. Counts are
// the per-bin gamma counts and must be non-negative. LiveTime and RealTime are
// in seconds; either may be zero when unknown.
type Spectrum struct {
	Energies []float64
	Counts   []float64
	LiveTime float64
	RealTime float64
}

// Len returns the number of bins.
func (s Spectrum) Len() int { return len(s.Energies) }

// Validate checks the structural invariants of s.
func (s Spectrum) Validate() error {
	if len(s.Energies) != len(s.Counts) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(s.Energies), len(s.Counts))
	}
	if len(s.Energies) < 2 {
		return ErrTooShort
	}
	for i, c := range s.Counts {
		if c < 0 || math.IsNaN(c) {
			return fmt.Errorf("%w at index %d: %v", ErrNegativeCount, i, c)
		}
		if i > 0 && !(s.Energies[i] > s.Energies[i-1]) {
			return fmt.Errorf("%w at index %d", ErrNotIncreasing, i)
		}
	}
	return nil
}

// LiveFraction returns LiveTime/RealTime, the complement of the dead-time
// fraction. It returns 0 when the real time is unknown.
func (s Spectrum) LiveFraction() float64 {
	if s.RealTime <= 0 {
		return 0
	}
	return s.LiveTime / s.RealTime
}

// CountRate returns the total counts of w per second of live time, or 0 when
// the live time is unknown.
func (s Spectrum) CountRate(w Window) float64 {
	if s.LiveTime <= 0 {
		return 0
	}
	return w.Sum() / s.LiveTime
}

// FromEdges builds a Spectrum from channel-boundary energies, as delivered by
// spectrum file loaders. len(edges) must be len(counts)+1; each bin center is
// the midpoint of its two edges.
func FromEdges(edges, counts []float64, liveTime, realTime float64) (Spectrum, error) {
	if len(edges) != len(counts)+1 {
		return Spectrum{}, fmt.Errorf("%w: got %d edges for %d counts", ErrInvalidEdges, len(edges), len(counts))
	}

	centers := make([]float64, len(counts))
	for i := range centers {
		centers[i] = 0.5 * (edges[i] + edges[i+1])
	}

	s := Spectrum{
		Energies: centers,
		Counts:   append([]float64(nil), counts...),
		LiveTime: liveTime,
		RealTime: realTime,
	}
	if err := s.Validate(); err != nil {
		return Spectrum{}, err
	}
	return s, nil
}

// Uncertainty returns the Poisson uncertainty attached to a sample with the
// given count: sqrt(max(count, 1)). It is never below 1, so zero-count bins
// keep a finite weight in weighted least squares.
func Uncertainty(count float64) float64 {
	return math.Sqrt(math.Max(count, 1))
}
