// Package classify turns an estimated Pu-240/Pu-239 atom ratio into a
// weapons-grade verdict and scores it against a reference ratio.
//
// The ratio is always Pu-240 atoms over Pu-239 atoms. A sample is
// weapons-grade when its ratio is at or below the threshold; the boundary
// value itself counts as weapons-grade.
package classify

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-puassay/metadata"
)

// DefaultThreshold is the largest Pu-240/Pu-239 ratio still classified as
// weapons-grade.
const DefaultThreshold = 0.07

// ErrNoReference is returned by helpers that require a known reference ratio.
var ErrNoReference = errors.New("classify: reference ratio unknown")

// Verdict is the binary classification of one sample.
type Verdict struct {
	WeaponsGrade bool
	Threshold    float64
}

// String implements fmt.Stringer.
func (v Verdict) String() string {
	if v.WeaponsGrade {
		return fmt.Sprintf("weapons-grade (<= %g)", v.Threshold)
	}
	return fmt.Sprintf("not weapons-grade (> %g)", v.Threshold)
}

// Classify reports whether ratio is at or below threshold.
func Classify(ratio, threshold float64) bool {
	return ratio <= threshold
}

// PercentError returns |calc-ref| / ref * 100. It is NaN when ref is zero.
func PercentError(calc, ref float64) float64 {
	if ref == 0 {
		return math.NaN()
	}
	return math.Abs(calc-ref) / ref * 100
}

// Label is the confusion-matrix cell of a classified sample.
type Label int

const (
	// LabelUnknown marks a sample without a reference ratio.
	LabelUnknown Label = iota
	TruePositive
	TrueNegative
	FalsePositive
	FalseNegative
)

// String implements fmt.Stringer.
func (l Label) String() string {
	switch l {
	case TruePositive:
		return "TP"
	case TrueNegative:
		return "TN"
	case FalsePositive:
		return "FP"
	case FalseNegative:
		return "FN"
	default:
		return "unknown"
	}
}

// Outcome is the scored classification of one ratio estimate.
type Outcome struct {
	Ratio     float64
	Reference metadata.Ratio
	Verdict   Verdict
	// PercentError is meaningful only when Reference.Known is true and the
	// reference is non-zero; otherwise it is NaN.
	PercentError float64
	Label        Label
}

// HasError reports whether PercentError holds a usable value.
func (o Outcome) HasError() bool {
	return o.Reference.Known && !math.IsNaN(o.PercentError)
}

// Evaluate classifies calc and, when ref is known, scores it. A positive is
// a weapons-grade verdict; truth is the verdict the reference ratio itself
// would receive at the same threshold.
func Evaluate(calc float64, ref metadata.Ratio, threshold float64) Outcome {
	o := Outcome{
		Ratio:        calc,
		Reference:    ref,
		Verdict:      Verdict{WeaponsGrade: Classify(calc, threshold), Threshold: threshold},
		PercentError: math.NaN(),
	}
	if !ref.Known {
		return o
	}

	o.PercentError = PercentError(calc, ref.Value)
	truth := Classify(ref.Value, threshold)
	switch {
	case o.Verdict.WeaponsGrade && truth:
		o.Label = TruePositive
	case !o.Verdict.WeaponsGrade && !truth:
		o.Label = TrueNegative
	case o.Verdict.WeaponsGrade:
		o.Label = FalsePositive
	default:
		o.Label = FalseNegative
	}
	return o
}

// ReferenceError returns the percent error of calc against ref, or
// ErrNoReference when ref is unknown.
func ReferenceError(calc float64, ref metadata.Ratio) (float64, error) {
	if !ref.Known {
		return 0, ErrNoReference
	}
	return PercentError(calc, ref.Value), nil
}
