package testutil

import (
	"math"
	"math/rand"
)

// Line describes one Gaussian emission line of a synthetic spectrum.
type Line struct {
	Amplitude float64
	Center    float64
	Sigma     float64
}

// Grid returns n energies starting at lo with the given step.
func Grid(lo, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Cluster evaluates a sum of Gaussian lines on top of a linear background
// slope*E + intercept at each energy. No noise is added.
func Cluster(energies []float64, lines []Line, slope, intercept float64) []float64 {
	out := make([]float64, len(energies))
	for i, e := range energies {
		v := slope*e + intercept
		for _, l := range lines {
			d := (e - l.Center) / l.Sigma
			v += l.Amplitude * math.Exp(-0.5*d*d)
		}
		out[i] = v
	}
	return out
}

// PoissonCounts draws a Poisson variate for every expected count using a
// fixed seed, so noisy spectra are reproducible across runs.
func PoissonCounts(seed int64, expected []float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, len(expected))
	for i, mu := range expected {
		out[i] = poisson(rng, mu)
	}
	return out
}

func poisson(rng *rand.Rand, mu float64) float64 {
	if mu <= 0 {
		return 0
	}
	if mu > 500 {
		// Normal approximation keeps large bins cheap.
		return math.Max(0, math.Round(mu+math.Sqrt(mu)*rng.NormFloat64()))
	}
	limit := math.Exp(-mu)
	k := 0.0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}

// Edges returns len(centers)+1 channel boundaries around evenly spaced
// bin centers.
func Edges(centers []float64) []float64 {
	if len(centers) < 2 {
		return nil
	}
	step := centers[1] - centers[0]
	out := make([]float64, len(centers)+1)
	for i, c := range centers {
		out[i] = c - step/2
	}
	out[len(centers)] = centers[len(centers)-1] + step/2
	return out
}
