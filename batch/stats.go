package batch

import (
	"math"
	"slices"
)

// ErrorStats summarizes absolute percent errors.
type ErrorStats struct {
	Count  int
	Mean   float64
	StdDev float64
	Median float64
	Max    float64
	// MaxTitle names the sample with the largest error.
	MaxTitle string
}

// errorStats computes ErrorStats in one Welford pass plus a sort of a copy
// for the median. Empty input yields NaN statistics.
func errorStats(errs []float64, titles []string) ErrorStats {
	n := len(errs)
	if n == 0 {
		nan := math.NaN()
		return ErrorStats{Mean: nan, StdDev: nan, Median: nan, Max: nan}
	}

	var mean, m2 float64
	maxVal, maxPos := errs[0], 0
	for i, x := range errs {
		ni := float64(i + 1)
		delta := x - mean
		mean += delta / ni
		m2 += delta * (x - mean)

		if x > maxVal {
			maxVal, maxPos = x, i
		}
	}

	sorted := slices.Clone(errs)
	slices.Sort(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = 0.5 * (sorted[n/2-1] + sorted[n/2])
	}

	st := ErrorStats{
		Count:  n,
		Mean:   mean,
		StdDev: math.Sqrt(m2 / float64(n)),
		Median: median,
		Max:    maxVal,
	}
	if maxPos < len(titles) {
		st.MaxTitle = titles[maxPos]
	}
	return st
}
