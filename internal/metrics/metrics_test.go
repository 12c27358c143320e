package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}

	c.ObserveSpectrum(3*time.Millisecond, OutcomeOK)
	c.ObserveSpectrum(time.Millisecond, OutcomeOK)
	c.ObserveSpectrum(-time.Second, "bogus")
	c.ObserveClassification("FP", 12, true)
	c.ObserveFallback("reseed")

	if got := counterValue(t, reg, "puassay_spectra_total", "outcome", OutcomeOK); got != 2 {
		t.Errorf("ok = %v", got)
	}
	if got := counterValue(t, reg, "puassay_spectra_total", "outcome", OutcomeError); got != 1 {
		t.Errorf("error = %v", got)
	}
	if got := counterValue(t, reg, "puassay_classifications_total", "label", "FP"); got != 1 {
		t.Errorf("FP = %v", got)
	}
	if got := counterValue(t, reg, "puassay_fit_fallbacks_total", "kind", "reseed"); got != 1 {
		t.Errorf("reseed = %v", got)
	}

	var nilCollectors *Collectors
	nilCollectors.ObserveSpectrum(time.Second, OutcomeOK)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}
	c.ObserveSpectrum(time.Millisecond, OutcomeMissingFeature)

	path := filepath.Join(t.TempDir(), "puassay.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `puassay_spectra_total{outcome="missing_feature"} 1`) {
		t.Fatalf("textfile:\n%s", data)
	}
}
