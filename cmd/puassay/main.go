// Command puassay estimates Pu-240/Pu-239 ratios from HPGe gamma spectra.
//
// Usage:
//
//	puassay analyze [--format table|json] FILE...
//	puassay batch [--workers N] [--metrics-textfile PATH] DIR
//	puassay constants
//
// Global flags select the YAML configuration and logging; analysis flags
// override individual configuration values.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/internal/config"
	"github.com/cwbudde/algo-puassay/internal/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "puassay",
		Usage:     "Pu-240/Pu-239 ratio estimation from the 640 keV gamma cluster",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{config.EnvConfigPath},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the configuration",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Emit JSON logs",
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			batchCommand(),
			constantsCommand(),
		},
	}
}

// analysisFlags override configuration values for analyze and batch.
func analysisFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: "threshold", Usage: "Weapons-grade threshold on Pu-240/Pu-239"},
		&cli.StringFlag{Name: "mode", Usage: "Line intensity measure (amplitude, area)"},
		&cli.StringFlag{Name: "convention", Usage: "Reported ratio direction (240/239, 239/240)"},
		&cli.BoolFlag{Name: "subbin", Usage: "Resample the region onto a quarter-bin grid"},
	}
}

// setup loads the configuration, applies command-line overrides and builds
// the logger and analyzer.
func setup(c *cli.Context) (*config.Config, *slog.Logger, *assay.Analyzer, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-json") {
		cfg.Logging.JSON = c.Bool("log-json")
	}
	if c.IsSet("threshold") {
		cfg.Classify.Threshold = c.Float64("threshold")
	}
	if c.IsSet("mode") {
		cfg.Ratio.Mode = c.String("mode")
	}
	if c.IsSet("convention") {
		cfg.Ratio.Convention = c.String("convention")
	}
	if c.IsSet("subbin") {
		cfg.ROI.SubBin = c.Bool("subbin")
	}
	if c.IsSet("workers") {
		cfg.Batch.Workers = c.Int("workers")
	}
	if c.IsSet("metrics-textfile") {
		cfg.Metrics.Textfile = c.String("metrics-textfile")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger := logging.NewLogger(c.App.ErrWriter, cfg.Logging.Level, cfg.Logging.JSON)
	ac, err := cfg.AnalyzerConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	a, err := assay.New(ac, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, a, nil
}
