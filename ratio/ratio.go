// Package ratio converts fitted gamma-line intensities into an isotopic atom
// ratio.
//
// For each isotope the fitted line intensity (peak amplitude, or peak area
// A*sigma*sqrt(2*pi)) is divided by the decay constant and the branching
// intensity of the line:
//
//	N  ∝  intensity / (lambda * branching),   lambda = ln 2 / T_half
//
// The ratio of the two quantities is the atom ratio. Detector efficiency is
// treated as equal across the few keV separating the lines and cancels.
//
// The numerator and denominator are always explicit: see [Convention].
package ratio

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by ratio estimation.
var (
	ErrZeroDenominator = errors.New("ratio: denominator line has zero intensity")
	ErrMissingSigma    = errors.New("ratio: area mode requires positive line widths")
	ErrNegative        = errors.New("ratio: line intensity must be non-negative")
)

// SecondsPerYear is the Julian year used to convert half-lives.
const SecondsPerYear = 365.25 * 86400

// Isotope holds the nuclear data of one gamma line.
type Isotope struct {
	Name          string
	HalfLifeYears float64
	LineKeV       float64
	// Branching is the number of photons of this line emitted per decay.
	Branching float64
}

// DecayConstant returns ln 2 / half-life in 1/s.
func (iso Isotope) DecayConstant() float64 {
	return math.Ln2 / (iso.HalfLifeYears * SecondsPerYear)
}

// Reference nuclear data. A single half-life is used per isotope; published
// Pu-239 values between 24100 and 24119 y and Pu-240 values between 6561
// and 6564 y are in use, and mixing them shifts the ratio by up to 0.1%.
var (
	Pu239 = Isotope{Name: "Pu-239", HalfLifeYears: 24110, LineKeV: 645.94, Branching: 1.489e-7}
	Pu240 = Isotope{Name: "Pu-240", HalfLifeYears: 6561, LineKeV: 642.35, Branching: 1.245e-7}
)

// Mode selects which fitted quantity represents a line's intensity.
type Mode int

const (
	// ModeAmplitude uses the Gaussian peak height. It assumes both lines
	// share the same width.
	ModeAmplitude Mode = iota
	// ModeArea uses the integrated Gaussian area A*sigma*sqrt(2*pi).
	ModeArea
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeAmplitude:
		return "amplitude"
	case ModeArea:
		return "area"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "amplitude" or "area".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "amplitude":
		return ModeAmplitude, nil
	case "area":
		return ModeArea, nil
	default:
		return 0, fmt.Errorf("ratio: unknown mode %q", s)
	}
}

// Convention fixes the numerator and denominator of the reported ratio.
type Convention int

const (
	// Pu240OverPu239 reports N(Pu-240)/N(Pu-239).
	Pu240OverPu239 Convention = iota
	// Pu239OverPu240 reports N(Pu-239)/N(Pu-240).
	Pu239OverPu240
)

// String implements fmt.Stringer.
func (c Convention) String() string {
	switch c {
	case Pu240OverPu239:
		return "240/239"
	case Pu239OverPu240:
		return "239/240"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention parses "240/239" or "239/240".
func ParseConvention(s string) (Convention, error) {
	switch s {
	case "240/239":
		return Pu240OverPu239, nil
	case "239/240":
		return Pu239OverPu240, nil
	default:
		return 0, fmt.Errorf("ratio: unknown convention %q", s)
	}
}

// Line is the fitted description of one gamma line.
type Line struct {
	Amplitude float64
	Sigma     float64 // required in ModeArea
	// AmplitudeErr and SigmaErr are standard errors, used only for
	// uncertainty propagation. Zero or NaN means unknown.
	AmplitudeErr float64
	SigmaErr     float64
}

// Estimator converts fitted lines into an atom ratio.
// The zero value uses amplitudes and reports Pu-240/Pu-239.
type Estimator struct {
	Mode       Mode
	Convention Convention
}

// Intensity returns the line intensity selected by the estimator mode.
func (e Estimator) Intensity(l Line) (float64, error) {
	if l.Amplitude < 0 || math.IsNaN(l.Amplitude) {
		return 0, fmt.Errorf("%w: amplitude %v", ErrNegative, l.Amplitude)
	}
	if e.Mode == ModeAmplitude {
		return l.Amplitude, nil
	}
	if !(l.Sigma > 0) {
		return 0, fmt.Errorf("%w: sigma %v", ErrMissingSigma, l.Sigma)
	}
	return l.Amplitude * l.Sigma * math.Sqrt(2*math.Pi), nil
}

// Abundance returns the quantity proportional to the number of atoms of iso
// that produced l: intensity / (lambda * branching).
func (e Estimator) Abundance(iso Isotope, l Line) (float64, error) {
	in, err := e.Intensity(l)
	if err != nil {
		return 0, err
	}
	return in / (iso.DecayConstant() * iso.Branching), nil
}

// Ratio returns the atom ratio of the two isotopes in the estimator's
// convention. pu240 and pu239 are the fitted 642 keV and 646 keV lines. It
// is a pure function of its inputs.
func (e Estimator) Ratio(pu240, pu239 Line) (float64, error) {
	n240, err := e.Abundance(Pu240, pu240)
	if err != nil {
		return 0, fmt.Errorf("ratio: %s line: %w", Pu240.Name, err)
	}
	n239, err := e.Abundance(Pu239, pu239)
	if err != nil {
		return 0, fmt.Errorf("ratio: %s line: %w", Pu239.Name, err)
	}

	num, den := n240, n239
	if e.Convention == Pu239OverPu240 {
		num, den = n239, n240
	}
	if den == 0 {
		return 0, ErrZeroDenominator
	}
	return num / den, nil
}

// RatioUncertainty returns the first-order relative standard error of
// the ratio propagated from the line errors, treating the two lines as
// uncorrelated. Unknown errors contribute nothing. The result does not
// depend on the convention.
func (e Estimator) RatioUncertainty(pu240, pu239 Line) float64 {
	sum := 0.0
	for _, l := range []Line{pu240, pu239} {
		sum += relSq(l.AmplitudeErr, l.Amplitude)
		if e.Mode == ModeArea {
			sum += relSq(l.SigmaErr, l.Sigma)
		}
	}
	return math.Sqrt(sum)
}

func relSq(err, value float64) float64 {
	if value == 0 || !(err > 0) || math.IsInf(err, 0) {
		return 0
	}
	r := err / value
	return r * r
}

// ActivityFactor returns the constant that converts an intensity ratio
// I(240)/I(239) into the atom ratio N(240)/N(239).
func ActivityFactor() float64 {
	return (Pu239.DecayConstant() * Pu239.Branching) / (Pu240.DecayConstant() * Pu240.Branching)
}
