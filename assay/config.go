package assay

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/algo-puassay/classify"
	"github.com/cwbudde/algo-puassay/fit"
	"github.com/cwbudde/algo-puassay/peaks"
	"github.com/cwbudde/algo-puassay/ratio"
)

// Canonical line energies (keV) of the 640 keV cluster, in component order.
const (
	Line637 = 637.8  // Pu-239
	Line640 = 640.1  // Pu-239
	Line642 = 642.35 // Pu-240
	Line646 = 645.94 // Pu-239
)

// Component indices of the ratio lines within DefaultCenters.
const (
	Pu240Index = 2
	Pu239Index = 3
)

// DefaultCenters returns the canonical component order.
func DefaultCenters() []float64 {
	return []float64{Line637, Line640, Line642, Line646}
}

// Config holds every tunable of one analysis run. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// ROILo and ROIHi bound the extracted region, [ROILo, ROIHi) keV.
	ROILo, ROIHi float64
	// SubBin resamples the region onto a quarter-bin grid before fitting.
	SubBin bool

	// Centers are the reference energies of the fitted components. Their
	// order binds component indices to emission lines.
	Centers    []float64
	Pu240Index int
	Pu239Index int

	Peaks peaks.Options
	Fit   fit.Options
	Ratio ratio.Estimator

	// Threshold is the largest Pu-240/Pu-239 ratio classified as
	// weapons-grade.
	Threshold float64

	// MissingHalfWidth is the half width (keV) of the window around the
	// Pu-240 line that is checked for signal before fitting.
	MissingHalfWidth float64
	// MinLineCounts is the smallest background-subtracted count sum in that
	// window for the line to be treated as present.
	MinLineCounts float64
}

// DefaultConfig returns the configuration for HPGe spectra of plutonium
// oxide around 640 keV.
func DefaultConfig() Config {
	fo := fit.DefaultOptions()
	// Close to HPGe resolution at 640 keV. The window/4 width used when this
	// is zero starts the four overlapping lines far too wide.
	fo.InitialSigma = 0.7

	return Config{
		ROILo:            630,
		ROIHi:            660,
		Centers:          DefaultCenters(),
		Pu240Index:       Pu240Index,
		Pu239Index:       Pu239Index,
		Peaks:            peaks.DefaultOptions(),
		Fit:              fo,
		Ratio:            ratio.Estimator{Mode: ratio.ModeAmplitude, Convention: ratio.Pu240OverPu239},
		Threshold:        classify.DefaultThreshold,
		MissingHalfWidth: 1.0,
		MinLineCounts:    10,
	}
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("assay: invalid config")

// Validate checks that c describes a runnable analysis.
func (c Config) Validate() error {
	switch {
	case !(c.ROIHi > c.ROILo):
		return fmt.Errorf("%w: roi [%g, %g)", ErrInvalidConfig, c.ROILo, c.ROIHi)
	case len(c.Centers) == 0:
		return fmt.Errorf("%w: no centers", ErrInvalidConfig)
	case !slices.IsSorted(c.Centers):
		return fmt.Errorf("%w: centers must be in ascending energy order", ErrInvalidConfig)
	case c.Pu240Index < 0 || c.Pu240Index >= len(c.Centers):
		return fmt.Errorf("%w: pu240 index %d out of range", ErrInvalidConfig, c.Pu240Index)
	case c.Pu239Index < 0 || c.Pu239Index >= len(c.Centers):
		return fmt.Errorf("%w: pu239 index %d out of range", ErrInvalidConfig, c.Pu239Index)
	case c.Pu240Index == c.Pu239Index:
		return fmt.Errorf("%w: pu240 and pu239 share component %d", ErrInvalidConfig, c.Pu240Index)
	case !(c.Threshold > 0):
		return fmt.Errorf("%w: threshold %g", ErrInvalidConfig, c.Threshold)
	case c.MissingHalfWidth < 0 || c.MinLineCounts < 0:
		return fmt.Errorf("%w: negative missing-feature bounds", ErrInvalidConfig)
	case c.Fit.InitialSigma < 0 || c.Fit.CenterTolerance < 0:
		return fmt.Errorf("%w: negative fit width or center tolerance", ErrInvalidConfig)
	}
	for _, e := range c.Centers {
		if e < c.ROILo || e >= c.ROIHi {
			return fmt.Errorf("%w: center %g outside roi", ErrInvalidConfig, e)
		}
	}
	return nil
}
