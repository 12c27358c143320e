// Package batch runs the assay over a directory tree of spectrum files and
// reduces the per-spectrum reports into run statistics.
//
// Files are analysed concurrently. A failing file or spectrum is logged and
// counted but never stops the run. All reductions are order independent:
// records are sorted by path before aggregation, so a run produces the same
// summary whatever the completion order of its workers.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/classify"
	"github.com/cwbudde/algo-puassay/internal/metrics"
	"github.com/cwbudde/algo-puassay/metadata"
	"github.com/cwbudde/algo-puassay/specio"
)

// Record is the outcome of one measurement, or of a file that could not be
// loaded (Index -1).
type Record struct {
	Path     string
	Index    int
	Title    string
	Report   assay.Report
	Err      error
	Duration time.Duration
}

// Failed reports whether the record ended in an error.
func (r Record) Failed() bool { return r.Err != nil }

// Summary is the aggregate of one run.
type Summary struct {
	RunID        string
	Files        int
	Measurements int
	Failures     int
	// Missing counts spectra whose Pu-240 line was absent.
	Missing int
	// Fallbacks counts spectra that needed at least one fit fallback.
	Fallbacks int

	// Errors covers spectra with a known reference ratio.
	Errors ErrorStats
	// Confusion counts per label, over spectra with a known reference.
	TP, TN, FP, FN int

	Records []Record
}

// Aggregate reduces records into a Summary. The result does not depend on
// the order of records.
func Aggregate(records []Record) Summary {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Index, b.Index))
	})

	var s Summary
	files := map[string]bool{}
	var errs []float64
	var titles []string

	for _, r := range sorted {
		files[r.Path] = true
		if r.Index >= 0 {
			s.Measurements++
		}
		if r.Failed() {
			s.Failures++
			continue
		}
		if len(r.Report.Fallbacks) > 0 {
			s.Fallbacks++
		}
		if r.Report.Status == assay.StatusMissingFeature {
			s.Missing++
			continue
		}

		o := r.Report.Outcome
		switch o.Label {
		case classify.TruePositive:
			s.TP++
		case classify.TrueNegative:
			s.TN++
		case classify.FalsePositive:
			s.FP++
		case classify.FalseNegative:
			s.FN++
		}
		if o.HasError() {
			errs = append(errs, o.PercentError)
			titles = append(titles, r.Title)
		}
	}

	s.Files = len(files)
	s.Errors = errorStats(errs, titles)
	s.Records = sorted
	return s
}

// Runner analyses every matching file under a root directory.
type Runner struct {
	Analyzer *assay.Analyzer
	Loader   specio.Loader
	// Workers bounds the number of files analysed at once; <= 0 means 1.
	Workers int
	// Pattern is matched against base names with filepath.Match. Empty
	// accepts every file the loader matches.
	Pattern string
	// Logger and Metrics are optional.
	Logger  *slog.Logger
	Metrics *metrics.Collectors
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Files returns the files under root that the runner would analyse, in
// lexical order.
func (r *Runner) Files(root string) ([]string, error) {
	if r.Pattern != "" {
		if _, err := filepath.Match(r.Pattern, ""); err != nil {
			return nil, fmt.Errorf("batch: pattern %q: %w", r.Pattern, err)
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !r.Loader.Match(path) {
			return nil
		}
		if r.Pattern != "" {
			if ok, _ := filepath.Match(r.Pattern, d.Name()); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: walk %s: %w", root, err)
	}
	return files, nil
}

// Run analyses every file under root and returns the aggregate. Cancelling
// ctx stops new files from being scheduled; the summary of the files
// already analysed is returned together with ctx.Err().
func (r *Runner) Run(ctx context.Context, root string) (Summary, error) {
	files, err := r.Files(root)
	if err != nil {
		return Summary{}, err
	}

	runID := uuid.NewString()
	log := r.logger().With("run_id", runID)
	log.Info("batch started", "root", root, "files", len(files))

	workers := max(r.Workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu      sync.Mutex
		records []Record
	)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			recs := r.analyzeFile(gctx, log, path)
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s := Aggregate(records)
	s.RunID = runID
	log.Info("batch finished",
		"files", s.Files,
		"measurements", s.Measurements,
		"failures", s.Failures,
		"missing", s.Missing,
		"mean_error_pct", s.Errors.Mean,
		"fp", s.FP,
		"fn", s.FN)
	return s, ctx.Err()
}

func (r *Runner) analyzeFile(ctx context.Context, log *slog.Logger, path string) []Record {
	log = log.With("path", path)

	ms, err := r.Loader.Load(path)
	if err != nil {
		log.Error("load failed", "err", err)
		r.Metrics.ObserveSpectrum(0, metrics.OutcomeError)
		return []Record{{Path: path, Index: -1, Err: err}}
	}

	recs := make([]Record, 0, len(ms))
	for i, m := range ms {
		if ctx.Err() != nil {
			break
		}
		recs = append(recs, r.analyzeMeasurement(log, path, i, m))
	}
	return recs
}

func (r *Runner) analyzeMeasurement(log *slog.Logger, path string, i int, m specio.Measurement) Record {
	rec := Record{Path: path, Index: i, Title: m.Title}
	start := time.Now()

	s, err := m.Spectrum()
	if err != nil {
		rec.Err = err
	} else {
		rec.Report, rec.Err = r.Analyzer.Analyze(s, metadata.Parse(m.Title))
	}
	rec.Duration = time.Since(start)

	outcome := metrics.OutcomeOK
	switch {
	case rec.Err != nil:
		outcome = metrics.OutcomeError
		log.Error("analysis failed", "index", i, "title", m.Title, "err", rec.Err)
	case rec.Report.Status == assay.StatusMissingFeature:
		outcome = metrics.OutcomeMissingFeature
		log.Warn("pu-240 line missing, isotopic fallback required", "index", i, "title", m.Title)
	default:
		o := rec.Report.Outcome
		if o.Reference.Known {
			r.Metrics.ObserveClassification(o.Label.String(), o.PercentError, o.HasError())
		}
	}
	for _, f := range rec.Report.Fallbacks {
		r.Metrics.ObserveFallback(f.String())
	}
	r.Metrics.ObserveSpectrum(rec.Duration, outcome)
	return rec
}
