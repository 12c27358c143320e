// Package metrics exposes Prometheus collectors for batch analysis runs.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of analysed spectra.
const (
	OutcomeOK             = "ok"
	OutcomeMissingFeature = "missing_feature"
	OutcomeError          = "error"
)

// Collectors holds the collectors of one process. Use New and Register.
type Collectors struct {
	spectraTotal    *prometheus.CounterVec
	labelsTotal     *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	analysisSeconds prometheus.Histogram
	percentError    prometheus.Histogram
}

// New returns unregistered collectors.
func New() *Collectors {
	return &Collectors{
		spectraTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "puassay",
				Name:      "spectra_total",
				Help:      "Spectra analysed, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		labelsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "puassay",
				Name:      "classifications_total",
				Help:      "Classified spectra with a known reference, partitioned by confusion-matrix cell.",
			},
			[]string{"label"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "puassay",
				Name:      "fit_fallbacks_total",
				Help:      "Fit recovery steps taken, partitioned by kind.",
			},
			[]string{"kind"},
		),
		analysisSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "puassay",
				Name:      "analysis_seconds",
				Help:      "Per-spectrum analysis latency in seconds.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		percentError: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "puassay",
				Name:      "ratio_percent_error",
				Help:      "Absolute percent error of the estimated ratio against the reference.",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
	}
}

func (c *Collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.spectraTotal,
		c.labelsTotal,
		c.fallbacksTotal,
		c.analysisSeconds,
		c.percentError,
	}
}

// Register attaches the collectors to reg. Collectors that are already
// registered are skipped.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, collector := range c.all() {
		if err := reg.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSpectrum records one analysis duration and outcome. Unknown
// outcomes are counted as errors.
func (c *Collectors) ObserveSpectrum(duration time.Duration, outcome string) {
	if c == nil {
		return
	}
	switch outcome {
	case OutcomeOK, OutcomeMissingFeature:
	default:
		outcome = OutcomeError
	}
	c.spectraTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	c.analysisSeconds.Observe(duration.Seconds())
}

// ObserveClassification records a confusion-matrix label and, when
// finite, the percent error.
func (c *Collectors) ObserveClassification(label string, percentError float64, hasError bool) {
	if c == nil {
		return
	}
	c.labelsTotal.WithLabelValues(label).Inc()
	if hasError {
		c.percentError.Observe(percentError)
	}
}

// ObserveFallback counts one fit recovery step.
func (c *Collectors) ObserveFallback(kind string) {
	if c == nil {
		return
	}
	c.fallbacksTotal.WithLabelValues(kind).Inc()
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
