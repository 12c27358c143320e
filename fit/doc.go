// Package fit deconvolves an overlapping gamma-line cluster into Gaussian
// components on a linear background.
//
// The model is
//
//	f(E) = sum_k A_k exp(-(E-mu_k)^2 / (2 s_k^2)) + slope*E + intercept
//
// and is fitted by weighted Levenberg-Marquardt with weights 1/u^2 taken
// from the window uncertainties. The number of components is the number of
// reference centers supplied; their order is preserved in the result so that
// component i keeps its meaning as a specific emission line.
//
// Seeding follows a fixed recipe: centers at the reference energies (or at
// nearby detected peaks with [SeedDetected]), amplitudes read from the
// window at those centers, a common starting width, and a background line
// through the window end points. [FitSingle] provides a one-component fit on
// a narrow sub-window for spectra too sparse for the full cluster.
//
// The solver enforces amplitudes >= 0 and widths > 0 by projection. Each
// center is held inside its own interval around its reference energy (see
// [Options.CenterBounds]), so components cannot trade places. The solver
// stops after a fixed number of damped trials.
//
// # Usage
//
//	opts := fit.DefaultOptions()
//	opts.Centers = []float64{637.8, 640.1, 642.35, 645.94}
//	opts.InitialSigma = 0.7
//	res, err := fit.Fit(w, opts)
//	switch {
//	case errors.Is(err, fit.ErrUnderdetermined):
//		// widen the window or fall back to fit.FitSingle
//	case errors.Is(err, fit.ErrDiverged):
//		// re-seed with fit.SeedDetected
//	}
package fit
