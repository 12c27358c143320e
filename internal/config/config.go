// Package config loads the analysis configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/fit"
	"github.com/cwbudde/algo-puassay/peaks"
	"github.com/cwbudde/algo-puassay/ratio"
)

// EnvConfigPath names the variable consulted when Load gets an empty path.
const EnvConfigPath = "PUASSAY_CONFIG"

// Config is the on-disk configuration.
type Config struct {
	ROI      ROIConfig      `yaml:"roi"`
	Lines    LinesConfig    `yaml:"lines"`
	Peaks    PeaksConfig    `yaml:"peaks"`
	Fit      FitConfig      `yaml:"fit"`
	Ratio    RatioConfig    `yaml:"ratio"`
	Classify ClassifyConfig `yaml:"classify"`
	Missing  MissingConfig  `yaml:"missing"`
	Batch    BatchConfig    `yaml:"batch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ROIConfig bounds the analysed energy region.
type ROIConfig struct {
	Lo     float64 `yaml:"lo"`
	Hi     float64 `yaml:"hi"`
	SubBin bool    `yaml:"subBin"`
}

// LinesConfig fixes the fitted components and which of them feed the ratio.
type LinesConfig struct {
	Centers    []float64 `yaml:"centers"`
	Pu240Index int       `yaml:"pu240Index"`
	Pu239Index int       `yaml:"pu239Index"`
}

// PeaksConfig controls feature detection.
type PeaksConfig struct {
	SmoothSigma   float64 `yaml:"smoothSigma"`
	MinHeight     float64 `yaml:"minHeight"`
	MinProminence float64 `yaml:"minProminence"`
}

// FitConfig controls the cluster fit.
type FitConfig struct {
	Seed              string  `yaml:"seed"`
	InitialSigma      float64 `yaml:"initialSigma"`
	MaxIterations     int     `yaml:"maxIterations"`
	FallbackHalfWidth float64 `yaml:"fallbackHalfWidth"`
	CenterTolerance   float64 `yaml:"centerTolerance"`
}

// RatioConfig selects the intensity measure and the reported direction.
type RatioConfig struct {
	Mode       string `yaml:"mode"`
	Convention string `yaml:"convention"`
}

// ClassifyConfig holds the weapons-grade threshold on Pu-240/Pu-239.
type ClassifyConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// MissingConfig controls the Pu-240 presence check.
type MissingConfig struct {
	HalfWidth float64 `yaml:"halfWidth"`
	MinCounts float64 `yaml:"minCounts"`
}

// BatchConfig controls directory runs.
type BatchConfig struct {
	// Workers is the number of spectra analysed in parallel; zero means
	// one per CPU.
	Workers int `yaml:"workers"`
	// Pattern is a filepath.Match glob applied to base names. Empty
	// accepts every file the loader matches.
	Pattern string `yaml:"pattern"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the Prometheus textfile export of batch runs.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() Config {
	a := assay.DefaultConfig()
	return Config{
		ROI: ROIConfig{Lo: a.ROILo, Hi: a.ROIHi},
		Lines: LinesConfig{
			Centers:    a.Centers,
			Pu240Index: a.Pu240Index,
			Pu239Index: a.Pu239Index,
		},
		Peaks: PeaksConfig{
			SmoothSigma:   a.Peaks.SmoothSigma,
			MinHeight:     a.Peaks.MinHeight,
			MinProminence: a.Peaks.MinProminence,
		},
		Fit: FitConfig{
			Seed:              a.Fit.Strategy.String(),
			InitialSigma:      a.Fit.InitialSigma,
			MaxIterations:     a.Fit.MaxIterations,
			FallbackHalfWidth: a.Fit.FallbackHalfWidth,
			CenterTolerance:   a.Fit.CenterTolerance,
		},
		Ratio:    RatioConfig{Mode: a.Ratio.Mode.String(), Convention: a.Ratio.Convention.String()},
		Classify: ClassifyConfig{Threshold: a.Threshold},
		Missing:  MissingConfig{HalfWidth: a.MissingHalfWidth, MinCounts: a.MinLineCounts},
		Batch:    BatchConfig{Pattern: "*.json"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads the configuration at path on top of the defaults and applies
// PUASSAY_* environment overrides. An empty path falls back to
// $PUASSAY_CONFIG, and to the defaults alone when that is unset too.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envFloat("PUASSAY_ROI_LO"); ok {
		cfg.ROI.Lo = v
	}
	if v, ok := envFloat("PUASSAY_ROI_HI"); ok {
		cfg.ROI.Hi = v
	}
	if v := os.Getenv("PUASSAY_SUBBIN"); v != "" {
		cfg.ROI.SubBin = isTrue(v)
	}
	if v := os.Getenv("PUASSAY_SEED"); v != "" {
		cfg.Fit.Seed = v
	}
	if v, ok := envFloat("PUASSAY_INITIAL_SIGMA"); ok {
		cfg.Fit.InitialSigma = v
	}
	if v, ok := envFloat("PUASSAY_CENTER_TOLERANCE"); ok {
		cfg.Fit.CenterTolerance = v
	}
	if v := os.Getenv("PUASSAY_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fit.MaxIterations = n
		}
	}
	if v := os.Getenv("PUASSAY_RATIO_MODE"); v != "" {
		cfg.Ratio.Mode = v
	}
	if v := os.Getenv("PUASSAY_RATIO_CONVENTION"); v != "" {
		cfg.Ratio.Convention = v
	}
	if v, ok := envFloat("PUASSAY_THRESHOLD"); ok {
		cfg.Classify.Threshold = v
	}
	if v := os.Getenv("PUASSAY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Workers = n
		}
	}
	if v := os.Getenv("PUASSAY_PATTERN"); v != "" {
		cfg.Batch.Pattern = v
	}
	if v := os.Getenv("PUASSAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PUASSAY_LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}
	if v := os.Getenv("PUASSAY_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// Validate checks every field, including that the analysis section
// converts to a valid assay configuration.
func (c Config) Validate() error {
	if c.Batch.Workers < 0 {
		return fmt.Errorf("config: batch workers %d < 0", c.Batch.Workers)
	}
	if _, err := c.AnalyzerConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// AnalyzerConfig converts c into the analysis configuration.
func (c Config) AnalyzerConfig() (assay.Config, error) {
	seed, err := parseSeed(c.Fit.Seed)
	if err != nil {
		return assay.Config{}, err
	}
	mode, err := ratio.ParseMode(c.Ratio.Mode)
	if err != nil {
		return assay.Config{}, err
	}
	conv, err := ratio.ParseConvention(c.Ratio.Convention)
	if err != nil {
		return assay.Config{}, err
	}

	fo := fit.DefaultOptions()
	fo.Strategy = seed
	fo.InitialSigma = c.Fit.InitialSigma
	if c.Fit.MaxIterations > 0 {
		fo.MaxIterations = c.Fit.MaxIterations
	}
	if c.Fit.FallbackHalfWidth > 0 {
		fo.FallbackHalfWidth = c.Fit.FallbackHalfWidth
	}
	fo.CenterTolerance = c.Fit.CenterTolerance

	a := assay.Config{
		ROILo:      c.ROI.Lo,
		ROIHi:      c.ROI.Hi,
		SubBin:     c.ROI.SubBin,
		Centers:    append([]float64(nil), c.Lines.Centers...),
		Pu240Index: c.Lines.Pu240Index,
		Pu239Index: c.Lines.Pu239Index,
		Peaks: peaks.Options{
			SmoothSigma:   c.Peaks.SmoothSigma,
			MinHeight:     c.Peaks.MinHeight,
			MinProminence: c.Peaks.MinProminence,
		},
		Fit:              fo,
		Ratio:            ratio.Estimator{Mode: mode, Convention: conv},
		Threshold:        c.Classify.Threshold,
		MissingHalfWidth: c.Missing.HalfWidth,
		MinLineCounts:    c.Missing.MinCounts,
	}
	if err := a.Validate(); err != nil {
		return assay.Config{}, err
	}
	return a, nil
}

// Workers returns the effective batch parallelism.
func (c Config) Workers() int {
	if c.Batch.Workers > 0 {
		return c.Batch.Workers
	}
	return runtime.NumCPU()
}

func parseSeed(s string) (fit.SeedStrategy, error) {
	switch strings.ToLower(s) {
	case "", "target":
		return fit.SeedTarget, nil
	case "detected":
		return fit.SeedDetected, nil
	default:
		return 0, fmt.Errorf("config: unknown seed strategy %q", s)
	}
}
