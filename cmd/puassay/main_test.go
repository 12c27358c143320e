package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-puassay/assay"
	"github.com/cwbudde/algo-puassay/internal/config"
	"github.com/cwbudde/algo-puassay/internal/testutil"
	"github.com/cwbudde/algo-puassay/specio"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"puassay"}, args...))
	return stdout.String(), err
}

func writeSpectrumFile(t *testing.T, path, title string) {
	t.Helper()
	e := testutil.Grid(630.125, 0.25, 120)
	c := testutil.Cluster(e, []testutil.Line{
		{Amplitude: 150, Center: assay.Line637, Sigma: 0.65},
		{Amplitude: 250, Center: assay.Line640, Sigma: 0.65},
		{Amplitude: 100, Center: assay.Line642, Sigma: 0.65},
		{Amplitude: 1000, Center: assay.Line646, Sigma: 0.65},
	}, 0, 5)

	var buf bytes.Buffer
	m := specio.Measurement{Title: title, Edges: testutil.Edges(e), Counts: c, LiveTime: 600, RealTime: 640}
	if err := (specio.JSONLoader{}).Encode(&buf, []specio.Measurement{m}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestConstants(t *testing.T) {
	out, err := run(t, "constants")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Pu-239", "Pu-240", "24110", "6561", "0.325460", "642.35"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	writeSpectrumFile(t, path, "PuO2 R240=0.0325")

	out, err := run(t, "--log-level", "error", "analyze", "--format", "json", path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []analyzeRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(rows) != 1 || rows[0].Status != "ok" || rows[0].Ratio == nil {
		t.Fatalf("rows %+v", rows)
	}
	testutil.RequireRelative(t, "ratio", *rows[0].Ratio, 0.03254604148656009, 0.05)
	if rows[0].WeaponsGrade == nil || !*rows[0].WeaponsGrade || rows[0].PercentError == nil {
		t.Fatalf("row %+v", rows[0])
	}
}

func TestAnalyzeFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	writeSpectrumFile(t, path, "PuO2")

	out, err := run(t, "--log-level", "error", "analyze", "--threshold", "0.01", "--convention", "239/240", path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "FILE") {
		t.Fatalf("table:\n%s", out)
	}
	if !strings.Contains(lines[1], " no ") || !strings.Contains(lines[1], "30.") {
		t.Fatalf("row %q", lines[1])
	}
}

func TestAnalyzeErrors(t *testing.T) {
	if _, err := run(t, "analyze"); err == nil {
		t.Error("no files: expected error")
	}
	if _, err := run(t, "analyze", "--format", "xml", "x.json"); err == nil {
		t.Error("bad format: expected error")
	}
	if _, err := run(t, "--log-level", "error", "analyze", "--mode", "height", "x.json"); err == nil {
		t.Error("bad mode: expected error")
	}
	if _, err := run(t, "--log-level", "error", "analyze", filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("missing file: expected error")
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	writeSpectrumFile(t, filepath.Join(dir, "a.json"), "PuO2 R240=0.0325")
	writeSpectrumFile(t, filepath.Join(dir, "b.json"), "reactor R240=0.24")
	prom := filepath.Join(t.TempDir(), "puassay.prom")

	out, err := run(t, "--log-level", "error", "batch", "-j", "2", "--metrics-textfile", prom, dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"measurements", "TP/TN/FP/FN", "1/0/1/0"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `puassay_spectra_total{outcome="ok"} 2`) {
		t.Fatalf("textfile:\n%s", data)
	}
}
