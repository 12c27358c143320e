// Package spectrum holds the gamma-ray spectrum data model and the
// region-of-interest extraction used ahead of peak fitting.
//
// A [Spectrum] is a histogram of counts over strictly increasing energy bin
// centers (keV). [Extract] selects the half-open window [lo, hi) and attaches
// Poisson uncertainties to every sample. [SubBin] optionally resamples a
// window onto a quarter-bin grid.
//
// # Sub-binning
//
// Quarter-bin resampling is piecewise-linear interpolation between adjacent
// bins, scaled so the four synthetic samples of a bin sum to roughly the
// original count. It does not resample the physical counting process: the
// synthetic samples are correlated and their Poisson uncertainties are only
// nominal, so a fit on a sub-binned window reports optimistic errors. Use it to
// give the fitter a denser grid, not to gain precision.
//
// # Usage
//
//	s := spectrum.Spectrum{Energies: e, Counts: c, LiveTime: 3600}
//	w, err := spectrum.Extract(s, 630, 660)
//	if errors.Is(err, spectrum.ErrEmptyRegion) {
//		// nothing to fit
//	}
//	dense := spectrum.SubBin(w)
package spectrum
