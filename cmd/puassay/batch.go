package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/cwbudde/algo-puassay/batch"
	"github.com/cwbudde/algo-puassay/internal/metrics"
	"github.com/cwbudde/algo-puassay/specio"
)

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Analyse every spectrum file under a directory and summarise the errors",
		ArgsUsage: "DIR",
		Flags: append(analysisFlags(),
			&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "Files analysed in parallel (0 = one per CPU)"},
			&cli.StringFlag{Name: "metrics-textfile", Usage: "Write Prometheus metrics of the run to this file"},
		),
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("batch: exactly one directory required")
	}
	cfg, logger, a, err := setup(c)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.New()
	if err := collectors.Register(reg); err != nil {
		return err
	}

	r := &batch.Runner{
		Analyzer: a,
		Loader:   specio.JSONLoader{},
		Workers:  cfg.Workers(),
		Pattern:  cfg.Batch.Pattern,
		Logger:   logger,
		Metrics:  collectors,
	}
	s, runErr := r.Run(c.Context, c.Args().First())
	if s.RunID != "" {
		writeSummary(c, s)
	}

	if path := cfg.Metrics.Textfile; path != "" && s.RunID != "" {
		if err := metrics.WriteTextfile(path, reg); err != nil {
			logger.Error("write metrics textfile", "path", path, "err", err)
		}
	}
	return runErr
}

func writeSummary(c *cli.Context, s batch.Summary) {
	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", s.RunID)
	fmt.Fprintf(tw, "files\t%d\n", s.Files)
	fmt.Fprintf(tw, "measurements\t%d\n", s.Measurements)
	fmt.Fprintf(tw, "failures\t%d\n", s.Failures)
	fmt.Fprintf(tw, "missing pu-240\t%d\n", s.Missing)
	fmt.Fprintf(tw, "fit fallbacks\t%d\n", s.Fallbacks)
	fmt.Fprintf(tw, "with reference\t%d\n", s.Errors.Count)
	if s.Errors.Count > 0 {
		fmt.Fprintf(tw, "mean error %%\t%.2f\n", s.Errors.Mean)
		fmt.Fprintf(tw, "median error %%\t%.2f\n", s.Errors.Median)
		fmt.Fprintf(tw, "max error %%\t%.2f (%s)\n", s.Errors.Max, s.Errors.MaxTitle)
	}
	fmt.Fprintf(tw, "TP/TN/FP/FN\t%d/%d/%d/%d\n", s.TP, s.TN, s.FP, s.FN)
	tw.Flush()
}
