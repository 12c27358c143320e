// Package assay runs the full Pu-240/Pu-239 estimation pipeline on one
// spectrum: region extraction, feature location, cluster fitting, ratio
// conversion and classification.
//
// Each recoverable failure has exactly one fallback:
//
//   - a diverged cluster fit is re-seeded once with the other seeding
//     strategy. A fit in which a ratio line ends with zero amplitude, or
//     with its center stopped on the edge of its interval, counts as
//     diverged;
//   - an underdetermined fit, or a second divergence, falls back to
//     independent single-line fits of the two ratio lines;
//   - a Pu-240 line with no signal above background is not fitted at all.
//     The report carries a zero area, no ratio, and asks for an alternate
//     (isotopic) estimation method.
//
// Everything else is returned as an error for the caller to record.
package assay

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/algo-puassay/classify"
	"github.com/cwbudde/algo-puassay/fit"
	"github.com/cwbudde/algo-puassay/metadata"
	"github.com/cwbudde/algo-puassay/peaks"
	"github.com/cwbudde/algo-puassay/ratio"
	"github.com/cwbudde/algo-puassay/spectrum"
)

// ErrMissingFeature reports that the Pu-240 line is absent from the
// spectrum. It is surfaced through [Report.Err], not as an Analyze error.
var ErrMissingFeature = errors.New("assay: pu-240 line not found above background")

// Status is the terminal state of one analysis.
type Status int

const (
	StatusOK Status = iota
	StatusMissingFeature
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissingFeature:
		return "missing-feature"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Fallback names a recovery step taken during fitting.
type Fallback int

const (
	// FallbackReseed re-ran the cluster fit with the other seed strategy.
	FallbackReseed Fallback = iota
	// FallbackSingle replaced the cluster fit by single-line fits.
	FallbackSingle
)

// String implements fmt.Stringer.
func (f Fallback) String() string {
	switch f {
	case FallbackReseed:
		return "reseed"
	case FallbackSingle:
		return "single-line"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// Report is the result of analysing one spectrum.
type Report struct {
	Metadata metadata.Metadata
	Status   Status

	// Samples is the number of fitted window samples.
	Samples  int
	Features peaks.FeatureSet
	// Pu240NetCounts is the background-subtracted signal near the Pu-240
	// line that the missing-feature check was based on.
	Pu240NetCounts float64

	// Fit is the cluster fit; nil when single-line fits were used.
	Fit          *fit.Result
	Fallbacks    []Fallback
	Pu240, Pu239 ratio.Line
	Pu240Area    float64
	Pu239Area    float64

	// Ratio is in Config.Ratio.Convention; it and Outcome are only set when
	// Status is StatusOK.
	Ratio float64
	// RatioUncertainty is the relative standard error of Ratio.
	RatioUncertainty float64
	Outcome          classify.Outcome

	// NeedsIsotopicFallback asks for an estimation method that does not
	// rely on the Pu-240 gamma line.
	NeedsIsotopicFallback bool

	CountRate    float64 // window counts per live second
	LiveFraction float64
}

// Err returns ErrMissingFeature for a missing-feature report and nil
// otherwise.
func (r Report) Err() error {
	if r.Status == StatusMissingFeature {
		return ErrMissingFeature
	}
	return nil
}

// Analyzer runs the pipeline with a fixed configuration. It holds no state
// between calls and is safe for concurrent use.
type Analyzer struct {
	Config Config
	// Logger receives per-spectrum diagnostics. Nil discards them.
	Logger *slog.Logger
}

// New returns an Analyzer after validating cfg.
func New(cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{Config: cfg, Logger: logger}, nil
}

func (a *Analyzer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

// Analyze estimates the isotopic ratio of s. md supplies the reference
// ratio used for scoring; an unknown reference leaves the percent error
// unset.
func (a *Analyzer) Analyze(s spectrum.Spectrum, md metadata.Metadata) (Report, error) {
	cfg := a.Config
	log := a.logger().With("title", md.Title)
	rep := Report{Metadata: md, LiveFraction: s.LiveFraction()}

	w, err := spectrum.Extract(s, cfg.ROILo, cfg.ROIHi)
	if err != nil {
		return rep, fmt.Errorf("assay: %w", err)
	}
	rep.CountRate = s.CountRate(w)
	if cfg.SubBin {
		w = spectrum.SubBin(w)
	}
	rep.Samples = w.Len()

	fs, err := peaks.Locate(w, cfg.Peaks)
	if err != nil {
		return rep, fmt.Errorf("assay: %w", err)
	}
	rep.Features = fs

	c240, c239 := cfg.Centers[cfg.Pu240Index], cfg.Centers[cfg.Pu239Index]
	rep.Pu240NetCounts = netCounts(w.Slice(c240-cfg.MissingHalfWidth, c240+cfg.MissingHalfWidth))
	if rep.Pu240NetCounts < cfg.MinLineCounts {
		log.Warn("pu-240 line missing", "net_counts", rep.Pu240NetCounts, "min", cfg.MinLineCounts)
		rep.Status = StatusMissingFeature
		rep.NeedsIsotopicFallback = true
		rep.Ratio = math.NaN()
		rep.RatioUncertainty = math.NaN()
		rep.Outcome = classify.Outcome{Reference: md.Reference, PercentError: math.NaN()}
		return rep, nil
	}

	opts := cfg.Fit
	opts.Centers = cfg.Centers
	opts.Detected = fs
	opts.ClusterLo = cfg.Centers[0] - opts.FallbackHalfWidth
	opts.ClusterHi = cfg.Centers[len(cfg.Centers)-1] + opts.FallbackHalfWidth

	res, err := a.fitCluster(w, opts)
	if errors.Is(err, fit.ErrDiverged) && len(fs.Peaks) > 0 {
		opts.Strategy = reseedStrategy(opts.Strategy)
		log.Warn("cluster fit diverged, reseeding", "err", err, "seed", opts.Strategy)
		rep.Fallbacks = append(rep.Fallbacks, FallbackReseed)
		res, err = a.fitCluster(w, opts)
	}

	switch {
	case err == nil:
		log.Debug("cluster fit converged", "iterations", res.Iterations, "reduced_chi2", res.ReducedChiSquare)
		rep.Fit = &res
		rep.Pu240 = lineOf(res, cfg.Pu240Index)
		rep.Pu239 = lineOf(res, cfg.Pu239Index)

	case errors.Is(err, fit.ErrUnderdetermined) || errors.Is(err, fit.ErrDiverged):
		log.Warn("cluster fit failed, fitting lines individually", "err", err)
		rep.Fallbacks = append(rep.Fallbacks, FallbackSingle)
		r240, err := fitLine(w, c240, opts)
		if err != nil {
			return rep, fmt.Errorf("assay: %w", err)
		}
		r239, err := fitLine(w, c239, opts)
		if err != nil {
			return rep, fmt.Errorf("assay: %w", err)
		}
		rep.Pu240 = lineOf(r240, 0)
		rep.Pu239 = lineOf(r239, 0)

	default:
		return rep, fmt.Errorf("assay: %w", err)
	}

	rep.Pu240Area = fit.Peak{Amplitude: rep.Pu240.Amplitude, Sigma: rep.Pu240.Sigma}.Area()
	rep.Pu239Area = fit.Peak{Amplitude: rep.Pu239.Amplitude, Sigma: rep.Pu239.Sigma}.Area()

	r, err := cfg.Ratio.Ratio(rep.Pu240, rep.Pu239)
	if err != nil {
		return rep, fmt.Errorf("assay: %w", err)
	}
	rep.Ratio = r
	rep.RatioUncertainty = cfg.Ratio.RatioUncertainty(rep.Pu240, rep.Pu239)

	// Classification is defined on Pu-240/Pu-239.
	r240 := r
	if cfg.Ratio.Convention == ratio.Pu239OverPu240 {
		r240 = 1 / r
	}
	rep.Outcome = classify.Evaluate(r240, md.Reference, cfg.Threshold)

	log.Info("spectrum analysed",
		"ratio", rep.Ratio,
		"verdict", rep.Outcome.Verdict.WeaponsGrade,
		"fallbacks", len(rep.Fallbacks))
	return rep, nil
}

// fitCluster fits the full cluster and rejects a solution in which either
// ratio line lost its component.
func (a *Analyzer) fitCluster(w spectrum.Window, opts fit.Options) (fit.Result, error) {
	res, err := fit.Fit(w, opts)
	if err != nil {
		return res, err
	}
	if err := checkLines(res, a.Config.Pu240Index, a.Config.Pu239Index); err != nil {
		return fit.Result{}, err
	}
	return res, nil
}

func fitLine(w spectrum.Window, center float64, opts fit.Options) (fit.Result, error) {
	res, err := fit.FitSingle(w, center, opts)
	if err != nil {
		return res, err
	}
	if err := checkLines(res, 0); err != nil {
		return fit.Result{}, fmt.Errorf("fit: single-peak fallback at %.2f keV: %w", center, err)
	}
	return res, nil
}

// checkLines reports ErrDiverged when a component the ratio is read from
// has no amplitude or was stopped on the edge of its center interval. Such
// a fit converged on a different feature than the line it stands for.
func checkLines(res fit.Result, idx ...int) error {
	for _, i := range idx {
		p, b := res.Model.Peaks[i], res.CenterBounds[i]
		if !(p.Amplitude > 0) {
			return fmt.Errorf("%w: component %d has zero amplitude", fit.ErrDiverged, i)
		}
		if !b.Interior(p.Center) {
			return fmt.Errorf("%w: component %d center %.3f keV pinned to [%.3f, %.3f]",
				fit.ErrDiverged, i, p.Center, b.Lo, b.Hi)
		}
	}
	return nil
}

// reseedStrategy returns the strategy used after the configured one
// diverged.
func reseedStrategy(s fit.SeedStrategy) fit.SeedStrategy {
	if s == fit.SeedDetected {
		return fit.SeedTarget
	}
	return fit.SeedDetected
}

func lineOf(res fit.Result, i int) ratio.Line {
	p, e := res.Model.Peaks[i], res.Errors.Peaks[i]
	return ratio.Line{
		Amplitude:    p.Amplitude,
		Sigma:        p.Sigma,
		AmplitudeErr: e.Amplitude,
		SigmaErr:     e.Sigma,
	}
}

// netCounts returns the counts of w above the straight line joining its
// first and last samples.
func netCounts(w spectrum.Window) float64 {
	n := w.Len()
	if n < 3 {
		return w.Sum()
	}

	e0, e1 := w.Energies[0], w.Energies[n-1]
	c0, c1 := w.Counts[0], w.Counts[n-1]
	net := 0.0
	for i, e := range w.Energies {
		base := c0 + (c1-c0)*(e-e0)/(e1-e0)
		net += w.Counts[i] - base
	}
	return net
}
