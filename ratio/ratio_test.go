package ratio

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-puassay/internal/testutil"
)

func TestDecayConstant(t *testing.T) {
	got := Pu239.DecayConstant()
	testutil.RequireRelative(t, "lambda(Pu-239)", got, 9.110123901132364e-13, 1e-12)

	// Pu-240 decays faster.
	if !(Pu240.DecayConstant() > Pu239.DecayConstant()) {
		t.Fatalf("lambda(Pu-240)=%g not above lambda(Pu-239)=%g", Pu240.DecayConstant(), Pu239.DecayConstant())
	}
}

func TestActivityFactor(t *testing.T) {
	testutil.RequireRelative(t, "factor", ActivityFactor(), 0.3254604148656009, 1e-12)

	var e Estimator
	r, err := e.Ratio(Line{Amplitude: 100}, Line{Amplitude: 1000})
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireRelative(t, "ratio", r, 0.1*ActivityFactor(), 1e-12)
}

func TestRatioMonotonic(t *testing.T) {
	var e Estimator
	pu239 := Line{Amplitude: 1000, Sigma: 0.6}

	prev := -1.0
	for _, a := range []float64{0, 1, 10, 50, 100, 500, 1e4} {
		r, err := e.Ratio(Line{Amplitude: a, Sigma: 0.6}, pu239)
		if err != nil {
			t.Fatalf("amplitude %g: %v", a, err)
		}
		if !(r > prev) {
			t.Fatalf("amplitude %g: ratio %g not above %g", a, r, prev)
		}
		prev = r
	}
}

func TestRatioIdempotent(t *testing.T) {
	for _, e := range []Estimator{
		{Mode: ModeAmplitude},
		{Mode: ModeArea},
		{Mode: ModeArea, Convention: Pu239OverPu240},
	} {
		pu240 := Line{Amplitude: 123.4, Sigma: 0.64}
		pu239 := Line{Amplitude: 987.6, Sigma: 0.66}
		r1, err1 := e.Ratio(pu240, pu239)
		r2, err2 := e.Ratio(pu240, pu239)
		if err1 != nil || err2 != nil {
			t.Fatalf("%v/%v: %v %v", e.Mode, e.Convention, err1, err2)
		}
		if r1 != r2 {
			t.Fatalf("%v/%v: %v != %v", e.Mode, e.Convention, r1, r2)
		}
	}
}

func TestRatioConvention(t *testing.T) {
	pu240 := Line{Amplitude: 80, Sigma: 0.7}
	pu239 := Line{Amplitude: 900, Sigma: 0.65}

	fwd, err := Estimator{Mode: ModeArea}.Ratio(pu240, pu239)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := Estimator{Mode: ModeArea, Convention: Pu239OverPu240}.Ratio(pu240, pu239)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireRelative(t, "fwd*rev", fwd*rev, 1, 1e-12)
}

func TestRatioAreaMode(t *testing.T) {
	pu240 := Line{Amplitude: 100, Sigma: 0.6}
	pu239 := Line{Amplitude: 1000, Sigma: 0.6}

	amp, err := Estimator{Mode: ModeAmplitude}.Ratio(pu240, pu239)
	if err != nil {
		t.Fatal(err)
	}
	area, err := Estimator{Mode: ModeArea}.Ratio(pu240, pu239)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireRelative(t, "equal widths", area, amp, 1e-12)

	pu240.Sigma = 1.2
	area, err = Estimator{Mode: ModeArea}.Ratio(pu240, pu239)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireRelative(t, "double width", area, 2*amp, 1e-12)
}

func TestRatioErrors(t *testing.T) {
	tests := []struct {
		name         string
		e            Estimator
		pu240, pu239 Line
		want         error
	}{
		{"zero denominator", Estimator{}, Line{Amplitude: 5}, Line{}, ErrZeroDenominator},
		{"zero denominator reversed", Estimator{Convention: Pu239OverPu240}, Line{}, Line{Amplitude: 5}, ErrZeroDenominator},
		{"missing sigma", Estimator{Mode: ModeArea}, Line{Amplitude: 5}, Line{Amplitude: 5, Sigma: 1}, ErrMissingSigma},
		{"negative sigma", Estimator{Mode: ModeArea}, Line{Amplitude: 5, Sigma: 1}, Line{Amplitude: 5, Sigma: -1}, ErrMissingSigma},
		{"negative amplitude", Estimator{}, Line{Amplitude: -1}, Line{Amplitude: 5}, ErrNegative},
		{"nan amplitude", Estimator{}, Line{Amplitude: 1}, Line{Amplitude: math.NaN()}, ErrNegative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.e.Ratio(tt.pu240, tt.pu239)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRatioUncertainty(t *testing.T) {
	pu240 := Line{Amplitude: 100, AmplitudeErr: 10, Sigma: 0.5, SigmaErr: 0.05}
	pu239 := Line{Amplitude: 1000, AmplitudeErr: math.NaN(), Sigma: 0.5}

	got := Estimator{}.RatioUncertainty(pu240, pu239)
	testutil.RequireRelative(t, "amplitude mode", got, 0.1, 1e-12)

	got = Estimator{Mode: ModeArea}.RatioUncertainty(pu240, pu239)
	testutil.RequireRelative(t, "area mode", got, math.Sqrt(0.02), 1e-12)

	if got := (Estimator{}).RatioUncertainty(Line{}, Line{}); got != 0 {
		t.Fatalf("zero lines: got %v", got)
	}
}

func TestParse(t *testing.T) {
	if m, err := ParseMode("area"); err != nil || m != ModeArea {
		t.Fatalf("ParseMode(area) = %v, %v", m, err)
	}
	if _, err := ParseMode("height"); err == nil {
		t.Fatal("ParseMode(height): expected error")
	}
	for _, c := range []Convention{Pu240OverPu239, Pu239OverPu240} {
		got, err := ParseConvention(c.String())
		if err != nil || got != c {
			t.Fatalf("ParseConvention(%q) = %v, %v", c.String(), got, err)
		}
	}
	if _, err := ParseConvention("240:239"); err == nil {
		t.Fatal("ParseConvention(240:239): expected error")
	}
}
