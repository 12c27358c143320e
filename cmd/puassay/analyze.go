package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/metadata"
	"github.com/cwbudde/algo-puassay/specio"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Estimate the isotopic ratio of every spectrum in the given files",
		ArgsUsage: "FILE...",
		Flags: append(analysisFlags(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		),
		Action: runAnalyze,
	}
}

// analyzeRow is one output line of the analyze command.
type analyzeRow struct {
	File         string   `json:"file"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Ratio        *float64 `json:"ratio,omitempty"`
	RelErr       *float64 `json:"ratio_rel_err,omitempty"`
	Reference    *float64 `json:"reference,omitempty"`
	PercentError *float64 `json:"percent_error,omitempty"`
	WeaponsGrade *bool    `json:"weapons_grade,omitempty"`
	Fallbacks    []string `json:"fallbacks,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newRow(file, title string, rep assay.Report, err error) analyzeRow {
	row := analyzeRow{File: file, Title: title, Status: rep.Status.String()}
	if err != nil {
		row.Status = "error"
		row.Error = err.Error()
		return row
	}
	if ref, ok := rep.Metadata.Reference.Get(); ok {
		row.Reference = &ref
	}
	for _, f := range rep.Fallbacks {
		row.Fallbacks = append(row.Fallbacks, f.String())
	}
	if rep.Status != assay.StatusOK {
		return row
	}

	row.Ratio = finite(rep.Ratio)
	row.RelErr = finite(rep.RatioUncertainty)
	wg := rep.Outcome.Verdict.WeaponsGrade
	row.WeaponsGrade = &wg
	if rep.Outcome.HasError() {
		row.PercentError = finite(rep.Outcome.PercentError)
	}
	return row
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("analyze: at least one file required")
	}
	format := c.String("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("analyze: unknown format %q", format)
	}

	_, logger, a, err := setup(c)
	if err != nil {
		return err
	}

	loader := specio.JSONLoader{}
	var rows []analyzeRow
	failed := 0
	for _, path := range c.Args().Slice() {
		ms, err := loader.Load(path)
		if err != nil {
			logger.Error("load failed", "path", path, "err", err)
			rows = append(rows, newRow(path, "", assay.Report{}, err))
			failed++
			continue
		}
		for _, m := range ms {
			s, err := m.Spectrum()
			var rep assay.Report
			if err == nil {
				rep, err = a.Analyze(s, metadata.Parse(m.Title))
			}
			if err != nil {
				failed++
			}
			rows = append(rows, newRow(path, m.Title, rep, err))
		}
	}

	if format == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else {
		writeTable(c.App.Writer, rows)
	}

	if failed > 0 {
		return fmt.Errorf("analyze: %d of %d spectra failed", failed, len(rows))
	}
	return nil
}

func writeTable(w io.Writer, rows []analyzeRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tTITLE\tSTATUS\tRATIO\tREF\tERR%\tWGPU\tFALLBACKS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			r.File, r.Title, r.Status,
			optFloat(r.Ratio, "%.5f"), optFloat(r.Reference, "%.5f"), optFloat(r.PercentError, "%.2f"),
			optBool(r.WeaponsGrade), r.Fallbacks)
	}
	tw.Flush()
}

func optFloat(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func optBool(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "yes"
	default:
		return "no"
	}
}
