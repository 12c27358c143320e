package fit

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-puassay/peaks"
	"github.com/cwbudde/algo-puassay/spectrum"
)

// Errors returned by the fitter.
var (
	ErrNoComponents    = errors.New("fit: at least one component required")
	ErrUnderdetermined = errors.New("fit: fewer data points than free parameters")
	ErrDiverged        = errors.New("fit: solver did not converge")
)

const (
	defaultMaxIterations     = 200
	defaultFallbackHalfWidth = 2.0
)

// SeedStrategy selects where component centers start.
type SeedStrategy int

const (
	// SeedTarget starts every component at its reference line energy.
	// Anchoring to physical lines rather than to noisy local maxima is the
	// robust default.
	SeedTarget SeedStrategy = iota
	// SeedDetected moves each center to the nearest detected peak when
	// that peak lies inside the cluster span, and keeps the reference
	// energy otherwise.
	SeedDetected
)

// String implements fmt.Stringer.
func (s SeedStrategy) String() string {
	switch s {
	case SeedTarget:
		return "target"
	case SeedDetected:
		return "detected"
	default:
		return fmt.Sprintf("SeedStrategy(%d)", int(s))
	}
}

// Options configures a fit.
type Options struct {
	// Centers are the reference line energies (keV), one per component, in
	// canonical order.
	Centers []float64
	// Strategy selects how Centers are turned into starting centers.
	Strategy SeedStrategy
	// Detected are the peaks found in the window; used by SeedDetected.
	Detected peaks.FeatureSet
	// ClusterLo and ClusterHi bound the energies a detected peak may have
	// to replace a reference center. Zero values use the window bounds.
	ClusterLo, ClusterHi float64
	// InitialSigma is the starting width (keV) of every component. Zero
	// selects the window width / 4 heuristic.
	InitialSigma float64
	// MaxIterations bounds the number of damped solver trials.
	MaxIterations int
	// FallbackHalfWidth is the half width (keV) of the sub-window used by
	// FitSingle.
	FallbackHalfWidth float64
	// CenterTolerance is how far (keV) a fitted center may move from its
	// reference energy. Zero allows half the distance to the nearest
	// neighboring reference, or FallbackHalfWidth for a lone component.
	CenterTolerance float64
}

// Bounds is the closed energy interval a component center is confined to.
type Bounds struct {
	Lo, Hi float64
}

// Interior reports whether e lies strictly inside b. The solver stops a
// center that tries to leave its interval on the edge, so a center on an
// edge has not found its line.
func (b Bounds) Interior(e float64) bool { return e > b.Lo && e < b.Hi }

// CenterBounds returns the interval each of o.Centers may occupy during a
// fit. Keeping every component near its own reference line keeps component
// i bound to line i.
func (o Options) CenterBounds() []Bounds {
	lone := o.FallbackHalfWidth
	if lone <= 0 {
		lone = defaultFallbackHalfWidth
	}

	out := make([]Bounds, len(o.Centers))
	for i, c := range o.Centers {
		tol := o.CenterTolerance
		if tol <= 0 {
			tol = math.Inf(1)
			if i > 0 {
				tol = math.Min(tol, (c-o.Centers[i-1])/2)
			}
			if i < len(o.Centers)-1 {
				tol = math.Min(tol, (o.Centers[i+1]-c)/2)
			}
			if math.IsInf(tol, 1) {
				tol = lone
			}
		}
		out[i] = Bounds{Lo: c - tol, Hi: c + tol}
	}
	return out
}

// DefaultOptions returns options with the solver bounds filled in and no
// centers.
func DefaultOptions() Options {
	return Options{
		Strategy:          SeedTarget,
		MaxIterations:     defaultMaxIterations,
		FallbackHalfWidth: defaultFallbackHalfWidth,
	}
}

// Result is a fitted cluster model.
type Result struct {
	Model Model
	// Errors holds one standard error per fitted parameter, laid out like
	// Model. Entries are NaN when the parameter is not determined by the
	// data (for example the center of a zero-amplitude component).
	Errors Model
	// Seed is the starting model the solver was run from.
	Seed Model
	// Residuals are counts minus model at each window sample.
	Residuals        []float64
	ChiSquare        float64
	ReducedChiSquare float64
	DOF              int
	Iterations       int
	// CovarianceValid is false when the normal matrix was singular at the
	// solution; Errors are NaN in that case.
	CovarianceValid bool
	// CenterBounds are the intervals the centers were confined to, one per
	// component.
	CenterBounds []Bounds
}

// Seed builds the starting model for w: each component centered per
// opts.Strategy, with amplitude equal to the window count nearest that
// center and width opts.InitialSigma (or window width / 4). The background
// line passes through the first and last window samples.
func Seed(w spectrum.Window, opts Options) Model {
	centers := append([]float64(nil), opts.Centers...)
	if opts.Strategy == SeedDetected && len(opts.Detected.Peaks) > 0 {
		lo, hi := opts.ClusterLo, opts.ClusterHi
		if lo == 0 && hi == 0 && w.Len() > 0 {
			lo, hi = w.Energies[0], w.Energies[w.Len()-1]
		}
		if matched, err := opts.Detected.NearestPeaks(centers); err == nil {
			for i, f := range matched {
				if f.Within(lo, hi) {
					centers[i] = f.Energy
				}
			}
		}
	}

	sigma := opts.InitialSigma
	if sigma <= 0 {
		sigma = w.Width() / 4
	}
	if sigma <= 0 {
		sigma = 1
	}

	m := Model{Peaks: make([]Peak, len(centers))}
	for i, c := range centers {
		amp := 0.0
		if j := w.IndexNearest(c); j >= 0 {
			amp = w.Counts[j]
		}
		m.Peaks[i] = Peak{Amplitude: amp, Center: c, Sigma: sigma}
	}

	if n := w.Len(); n >= 2 && w.Width() > 0 {
		e0, e1 := w.Energies[0], w.Energies[n-1]
		c0, c1 := w.Counts[0], w.Counts[n-1]
		slope := (c1 - c0) / (e1 - e0)
		m.Background = Background{Slope: slope, Intercept: c0 - slope*e0}
	} else if n == 1 {
		m.Background = Background{Intercept: w.Counts[0]}
	}
	return m
}

// Fit seeds a model with [Seed] and refines it with [FitModel].
func Fit(w spectrum.Window, opts Options) (Result, error) {
	if len(opts.Centers) == 0 {
		return Result{}, ErrNoComponents
	}
	return FitModel(w, Seed(w, opts), opts)
}

// FitModel fits len(init.Peaks) Gaussian components plus a linear
// background to w by weighted Levenberg-Marquardt, starting from init.
// Weights are 1/u^2 with u the window uncertainties.
//
// Each center is confined to its interval from [Options.CenterBounds],
// computed from opts.Centers or, when those do not match init, from the
// centers of init. Intervals are clipped to the window.
//
// It returns ErrUnderdetermined when the window has fewer samples than free
// parameters (3 per component + 2) and ErrDiverged when the solver does not
// converge within opts.MaxIterations trials.
func FitModel(w spectrum.Window, init Model, opts Options) (Result, error) {
	k := len(init.Peaks)
	if k == 0 {
		return Result{}, ErrNoComponents
	}
	np := numParams(k)
	if w.Len() < np {
		return Result{}, fmt.Errorf("%w: %d samples for %d parameters", ErrUnderdetermined, w.Len(), np)
	}

	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	p := newProblem(w.Energies, w.Counts, w.Uncertainties, centerBounds(w, init, opts))
	sol := levenbergMarquardt(p, packParams(init, p.x0), maxIter)
	if !sol.converged {
		return Result{}, fmt.Errorf("%w after %d iterations (chi2 %.4g)", ErrDiverged, sol.iterations, sol.chi2)
	}

	res := Result{
		Model:        unpackParams(sol.params, k, p.x0),
		Seed:         init,
		ChiSquare:    sol.chi2,
		DOF:          w.Len() - np,
		Iterations:   sol.iterations,
		CenterBounds: p.bounds,
	}
	if res.DOF > 0 {
		res.ReducedChiSquare = res.ChiSquare / float64(res.DOF)
	}

	res.Residuals = make([]float64, w.Len())
	for i, e := range w.Energies {
		res.Residuals[i] = w.Counts[i] - res.Model.Eval(e)
	}

	cov, ok := covariance(p, sol.params)
	res.CovarianceValid = ok
	res.Errors = standardErrors(cov, k, p.x0, res.ReducedChiSquare)
	return res, nil
}

func centerBounds(w spectrum.Window, init Model, opts Options) []Bounds {
	if len(opts.Centers) != len(init.Peaks) {
		opts.Centers = make([]float64, len(init.Peaks))
		for i, pk := range init.Peaks {
			opts.Centers[i] = pk.Center
		}
	}

	lo, hi := w.Energies[0], w.Energies[w.Len()-1]
	bounds := opts.CenterBounds()
	for i, b := range bounds {
		b.Lo, b.Hi = math.Max(b.Lo, lo), math.Min(b.Hi, hi)
		if b.Lo > b.Hi {
			b = Bounds{Lo: lo, Hi: hi}
		}
		bounds[i] = b
	}
	return bounds
}

// standardErrors converts a solver-layout covariance into per-parameter
// standard errors in Model layout, scaled by the reduced chi-square.
func standardErrors(cov [][]float64, k int, x0, redChi2 float64) Model {
	scale := redChi2
	if scale <= 0 {
		scale = 1
	}
	se := func(j int) float64 {
		return math.Sqrt(cov[j][j] * scale)
	}

	m := Model{Peaks: make([]Peak, k)}
	for i := range m.Peaks {
		m.Peaks[i] = Peak{
			Amplitude: se(paramsPerPeak * i),
			Center:    se(paramsPerPeak*i + 1),
			Sigma:     se(paramsPerPeak*i + 2),
		}
	}

	js, jo := paramsPerPeak*k, paramsPerPeak*k+1
	// intercept = offset - slope*x0
	varIntercept := cov[jo][jo] + x0*x0*cov[js][js] - 2*x0*cov[js][jo]
	m.Background = Background{
		Slope:     se(js),
		Intercept: math.Sqrt(math.Max(varIntercept, 0) * scale),
	}
	if math.IsNaN(varIntercept) {
		m.Background.Intercept = math.NaN()
	}
	return m
}

// FitSingle fits one Gaussian plus a linear background on the sub-window
// center +/- opts.FallbackHalfWidth. It is the reduced-complexity path for
// sparse spectra where the full cluster fit is underdetermined or unstable.
func FitSingle(w spectrum.Window, center float64, opts Options) (Result, error) {
	half := opts.FallbackHalfWidth
	if half <= 0 {
		half = defaultFallbackHalfWidth
	}

	sub := w.Slice(center-half, center+half)
	single := opts
	single.Centers = []float64{center}
	single.Strategy = SeedTarget
	if single.InitialSigma <= 0 {
		single.InitialSigma = sub.Width() / 4
	}

	res, err := Fit(sub, single)
	if err != nil {
		return Result{}, fmt.Errorf("fit: single-peak fallback at %.2f keV: %w", center, err)
	}
	return res, nil
}
