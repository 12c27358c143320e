package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-puassay/internal/testutil"
	"github.com/cwbudde/algo-puassay/peaks"
	"github.com/cwbudde/algo-puassay/spectrum"
)

var clusterLines = []testutil.Line{
	{Amplitude: 400, Center: 637.8, Sigma: 0.6},
	{Amplitude: 800, Center: 640.1, Sigma: 0.6},
	{Amplitude: 300, Center: 642.35, Sigma: 0.65},
	{Amplitude: 1500, Center: 645.94, Sigma: 0.65},
}

const (
	clusterSlope     = -0.5
	clusterIntercept = 340.0
)

func clusterWindow(t *testing.T, noiseSeed int64) spectrum.Window {
	t.Helper()
	e := testutil.Grid(634, 0.125, 128)
	c := testutil.Cluster(e, clusterLines, clusterSlope, clusterIntercept)
	if noiseSeed != 0 {
		c = testutil.PoissonCounts(noiseSeed, c)
	}
	w, err := spectrum.Extract(spectrum.Spectrum{Energies: e, Counts: c}, 634, 650)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return w
}

func clusterOptions() Options {
	opts := DefaultOptions()
	for _, l := range clusterLines {
		opts.Centers = append(opts.Centers, l.Center)
	}
	opts.InitialSigma = 0.9
	return opts
}

func TestFitRoundTripFourLines(t *testing.T) {
	w := clusterWindow(t, 0)

	res, err := Fit(w, clusterOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.Model.Peaks) != len(clusterLines) {
		t.Fatalf("got %d components, want %d", len(res.Model.Peaks), len(clusterLines))
	}

	const rel = 1e-3
	for i, want := range clusterLines {
		got := res.Model.Peaks[i]
		testutil.RequireRelative(t, "amplitude", got.Amplitude, want.Amplitude, rel)
		testutil.RequireRelative(t, "center", got.Center, want.Center, rel)
		testutil.RequireRelative(t, "sigma", got.Sigma, want.Sigma, rel)
	}
	testutil.RequireRelative(t, "slope", res.Model.Background.Slope, clusterSlope, rel)
	testutil.RequireRelative(t, "intercept", res.Model.Background.Intercept, clusterIntercept, rel)

	if res.DOF != w.Len()-14 {
		t.Fatalf("DOF = %d, want %d", res.DOF, w.Len()-14)
	}
	if res.ChiSquare > 1e-6 {
		t.Fatalf("chi-square %g on noise-free data", res.ChiSquare)
	}
}

func TestFitNoisyClusterHasFiniteErrors(t *testing.T) {
	w := clusterWindow(t, 11)

	res, err := Fit(w, clusterOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !res.CovarianceValid {
		t.Fatal("covariance not valid")
	}
	if res.ReducedChiSquare < 0.6 || res.ReducedChiSquare > 1.6 {
		t.Fatalf("reduced chi-square %.3f, want about 1", res.ReducedChiSquare)
	}
	for i, p := range res.Errors.Peaks {
		testutil.RequireFinite(t, []float64{p.Amplitude, p.Center, p.Sigma})
		if p.Amplitude <= 0 {
			t.Fatalf("component %d amplitude error %v", i, p.Amplitude)
		}
	}
	// The strong 645.94 keV line must land within a few standard errors.
	got := res.Model.Peaks[3]
	if d := math.Abs(got.Amplitude - 1500); d > 5*res.Errors.Peaks[3].Amplitude {
		t.Fatalf("amplitude %v off by %v (se %v)", got.Amplitude, d, res.Errors.Peaks[3].Amplitude)
	}
	if len(res.Residuals) != w.Len() {
		t.Fatalf("residuals len %d, want %d", len(res.Residuals), w.Len())
	}
}

func TestFitUnderdetermined(t *testing.T) {
	w := clusterWindow(t, 0).Slice(640, 641.25)
	_, err := Fit(w, clusterOptions())
	if !errors.Is(err, ErrUnderdetermined) {
		t.Fatalf("expected ErrUnderdetermined, got %v", err)
	}
}

func TestFitIterationBudget(t *testing.T) {
	opts := clusterOptions()
	opts.MaxIterations = 1
	opts.InitialSigma = 3
	_, err := Fit(clusterWindow(t, 0), opts)
	if !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
}

func TestFitNoComponents(t *testing.T) {
	if _, err := Fit(clusterWindow(t, 0), DefaultOptions()); !errors.Is(err, ErrNoComponents) {
		t.Fatalf("expected ErrNoComponents, got %v", err)
	}
	if _, err := FitModel(clusterWindow(t, 0), Model{}, DefaultOptions()); !errors.Is(err, ErrNoComponents) {
		t.Fatalf("expected ErrNoComponents, got %v", err)
	}
}

func TestSeedHeuristics(t *testing.T) {
	w := spectrum.Window{
		Energies:      []float64{630, 640, 650, 660},
		Counts:        []float64{10, 50, 70, 40},
		Uncertainties: []float64{1, 1, 1, 1},
	}
	m := Seed(w, Options{Centers: []float64{641, 649}})

	if len(m.Peaks) != 2 {
		t.Fatalf("got %d peaks", len(m.Peaks))
	}
	if m.Peaks[0].Amplitude != 50 || m.Peaks[1].Amplitude != 70 {
		t.Fatalf("amplitudes %v, %v; want 50, 70", m.Peaks[0].Amplitude, m.Peaks[1].Amplitude)
	}
	if m.Peaks[0].Center != 641 {
		t.Fatalf("center %v, want target 641", m.Peaks[0].Center)
	}
	if m.Peaks[0].Sigma != 7.5 {
		t.Fatalf("sigma %v, want width/4 = 7.5", m.Peaks[0].Sigma)
	}
	if m.Background.Slope != 1 || m.Background.Eval(630) != 10 || m.Background.Eval(660) != 40 {
		t.Fatalf("background %+v does not pass through the end points", m.Background)
	}
}

func TestSeedDetected(t *testing.T) {
	w := clusterWindow(t, 0)
	fs := peaks.FeatureSet{Peaks: []peaks.Feature{
		{Index: 10, Energy: 642.5, Value: 320},
		{Index: 20, Energy: 649.5, Value: 30},
	}}
	opts := Options{
		Centers:   []float64{642.35, 647.5},
		Strategy:  SeedDetected,
		Detected:  fs,
		ClusterLo: 636,
		ClusterHi: 648,
	}
	m := Seed(w, opts)
	if m.Peaks[0].Center != 642.5 {
		t.Fatalf("center 0 = %v, want detected 642.5", m.Peaks[0].Center)
	}
	// The nearest match for 647.5 lies outside the cluster span.
	if m.Peaks[1].Center != 647.5 {
		t.Fatalf("center 1 = %v, want target 647.5", m.Peaks[1].Center)
	}
	if opts.Centers[0] != 642.35 {
		t.Fatal("Seed modified the caller's centers")
	}
}

func TestFitSingleRecoversIsolatedLine(t *testing.T) {
	e := testutil.Grid(640, 0.125, 64)
	c := testutil.Cluster(e, []testutil.Line{{Amplitude: 250, Center: 642.35, Sigma: 0.6}}, 0, 12)
	w, err := spectrum.Extract(spectrum.Spectrum{Energies: e, Counts: c}, 640, 648)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	res, err := FitSingle(w, 642.35, DefaultOptions())
	if err != nil {
		t.Fatalf("FitSingle: %v", err)
	}
	if len(res.Model.Peaks) != 1 {
		t.Fatalf("got %d components", len(res.Model.Peaks))
	}
	testutil.RequireRelative(t, "amplitude", res.Model.Peaks[0].Amplitude, 250, 1e-3)
	testutil.RequireRelative(t, "sigma", res.Model.Peaks[0].Sigma, 0.6, 1e-3)
	testutil.RequireRelative(t, "background", res.Model.Background.Eval(642), 12, 1e-3)
}

func TestFitSingleEmptySubWindow(t *testing.T) {
	w := clusterWindow(t, 0)
	_, err := FitSingle(w, 700, DefaultOptions())
	if !errors.Is(err, ErrUnderdetermined) {
		t.Fatalf("expected ErrUnderdetermined, got %v", err)
	}
}

func TestPeakShape(t *testing.T) {
	p := Peak{Amplitude: 10, Center: 642, Sigma: 1}
	if math.Abs(p.FWHM()-2.3548200450309493) > 1e-12 {
		t.Fatalf("FWHM = %v", p.FWHM())
	}
	if math.Abs(p.Area()-10*math.Sqrt(2*math.Pi)) > 1e-12 {
		t.Fatalf("Area = %v", p.Area())
	}
	if math.Abs(p.Eval(642+p.FWHM()/2)-5) > 1e-12 {
		t.Fatalf("half maximum = %v, want 5", p.Eval(642+p.FWHM()/2))
	}
}

func TestPackRoundTrip(t *testing.T) {
	m := Model{
		Peaks:      []Peak{{Amplitude: 1, Center: 2, Sigma: 3}},
		Background: Background{Slope: 0.25, Intercept: -4},
	}
	got := unpackParams(packParams(m, 640), 1, 640)
	if got.Peaks[0] != m.Peaks[0] {
		t.Fatalf("peak %+v, want %+v", got.Peaks[0], m.Peaks[0])
	}
	if math.Abs(got.Background.Slope-0.25) > 1e-12 || math.Abs(got.Background.Intercept+4) > 1e-9 {
		t.Fatalf("background %+v", got.Background)
	}
}

func TestCenterBounds(t *testing.T) {
	opts := clusterOptions()
	got := opts.CenterBounds()
	want := []Bounds{
		{Lo: 637.8 - 1.15, Hi: 637.8 + 1.15},
		{Lo: 640.1 - 1.125, Hi: 640.1 + 1.125},
		{Lo: 642.35 - 1.125, Hi: 642.35 + 1.125},
		{Lo: 645.94 - 1.795, Hi: 645.94 + 1.795},
	}
	for i := range want {
		if math.Abs(got[i].Lo-want[i].Lo) > 1e-9 || math.Abs(got[i].Hi-want[i].Hi) > 1e-9 {
			t.Fatalf("bounds %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	opts.CenterTolerance = 0.3
	for i, b := range opts.CenterBounds() {
		if math.Abs(b.Hi-b.Lo-0.6) > 1e-9 {
			t.Fatalf("bounds %d = %+v, want width 0.6", i, b)
		}
	}

	lone := Options{Centers: []float64{642.35}, FallbackHalfWidth: 1.5}
	if b := lone.CenterBounds()[0]; math.Abs(b.Lo-640.85) > 1e-9 || math.Abs(b.Hi-643.85) > 1e-9 {
		t.Fatalf("lone bounds %+v", b)
	}
}

func TestFitHoldsCentersInsideBounds(t *testing.T) {
	w := clusterWindow(t, 0)

	res, err := Fit(w, clusterOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.CenterBounds) != len(clusterLines) {
		t.Fatalf("got %d bounds", len(res.CenterBounds))
	}
	for i, p := range res.Model.Peaks {
		if !res.CenterBounds[i].Interior(p.Center) {
			t.Fatalf("center %d = %v outside %+v", i, p.Center, res.CenterBounds[i])
		}
	}
}

func TestFitStopsDisplacedCenterOnBound(t *testing.T) {
	e := testutil.Grid(638, 0.125, 80)
	c := testutil.Cluster(e, []testutil.Line{{Amplitude: 400, Center: 642.65, Sigma: 0.6}}, 0, 10)
	w, err := spectrum.Extract(spectrum.Spectrum{Energies: e, Counts: c}, 638, 648)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	opts := DefaultOptions()
	opts.Centers = []float64{642.35}
	opts.InitialSigma = 0.6
	opts.CenterTolerance = 0.1

	res, err := Fit(w, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	b := res.CenterBounds[0]
	if got := res.Model.Peaks[0].Center; got != b.Hi {
		t.Fatalf("center %v, want it held at the upper bound %v", got, b.Hi)
	}
	if b.Interior(res.Model.Peaks[0].Center) {
		t.Fatal("a center on its bound must not count as interior")
	}
}
