package specio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-puassay/spectrum"
)

const single = `{
  "title": "PuO2 R240=0.06",
  "edges": [630, 631, 632, 633],
  "counts": [5, 0, 7],
  "live_time": 100,
  "real_time": 125
}`

func TestDecodeShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"object", single, 1},
		{"array", "[" + single + "," + single + "]", 2},
		{"wrapped", `{"measurements": [` + single + `]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := JSONLoader{}.Decode(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatal(err)
			}
			if len(ms) != tt.want {
				t.Fatalf("got %d measurements, want %d", len(ms), tt.want)
			}
			if ms[0].Title != "PuO2 R240=0.06" || ms[0].LiveTime != 100 {
				t.Fatalf("measurement %+v", ms[0])
			}
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, doc := range []string{"", "  ", "[]", `{"title": "x"}`} {
		if _, err := (JSONLoader{}).Decode(strings.NewReader(doc)); !errors.Is(err, ErrNoMeasurements) {
			t.Errorf("%q: got %v, want ErrNoMeasurements", doc, err)
		}
	}
	if _, err := (JSONLoader{}).Decode(strings.NewReader("{")); err == nil {
		t.Error("malformed document: expected error")
	}
}

func TestMeasurementSpectrum(t *testing.T) {
	ms, err := JSONLoader{}.Decode(strings.NewReader(single))
	if err != nil {
		t.Fatal(err)
	}
	s, err := ms[0].Spectrum()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{630.5, 631.5, 632.5}
	for i, e := range s.Energies {
		if e != want[i] {
			t.Fatalf("energy[%d] = %v, want %v", i, e, want[i])
		}
	}
	if s.LiveFraction() != 0.8 {
		t.Fatalf("live fraction %v", s.LiveFraction())
	}

	bad := ms[0]
	bad.Edges = bad.Edges[:3]
	if _, err := bad.Spectrum(); !errors.Is(err, spectrum.ErrInvalidEdges) {
		t.Fatalf("short edges: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.JSON")

	in := []Measurement{
		{Title: "a", Edges: []float64{0, 1, 2}, Counts: []float64{3, 4}, LiveTime: 10, RealTime: 11},
		{Title: "b", Edges: []float64{0, 1, 2}, Counts: []float64{5, 6}},
	}
	var buf bytes.Buffer
	if err := (JSONLoader{}).Encode(&buf, in); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	l := JSONLoader{}
	if !l.Match(path) || l.Match(filepath.Join(dir, "run.spe")) {
		t.Fatal("Match")
	}
	out, err := l.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].Title != "b" || out[0].Counts[1] != 4 {
		t.Fatalf("loaded %+v", out)
	}

	if _, err := l.Load(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}
