// Package specio loads measured spectra from files.
//
// The analysis packages depend only on [Measurement]; any vendor format can
// be supported by implementing [Loader].
package specio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-puassay/spectrum"
)

// ErrNoMeasurements is returned when a file parses but holds no spectra.
var ErrNoMeasurements = errors.New("specio: file contains no measurements")

// Measurement is one acquired spectrum as stored on disk.
type Measurement struct {
	Title string `json:"title"`
	// Edges are channel-boundary energies in keV, len(Counts)+1 long.
	Edges    []float64 `json:"edges"`
	Counts   []float64 `json:"counts"`
	LiveTime float64   `json:"live_time"`
	RealTime float64   `json:"real_time"`
}

// Spectrum converts m into a validated spectrum of bin centers.
func (m Measurement) Spectrum() (spectrum.Spectrum, error) {
	s, err := spectrum.FromEdges(m.Edges, m.Counts, m.LiveTime, m.RealTime)
	if err != nil {
		return spectrum.Spectrum{}, fmt.Errorf("specio: measurement %q: %w", m.Title, err)
	}
	return s, nil
}

// Loader reads the measurements stored in one file.
type Loader interface {
	// Match reports whether the loader handles files at path.
	Match(path string) bool
	// Load returns every measurement in the file, in file order.
	Load(path string) ([]Measurement, error)
}

// JSONLoader reads ".json" files holding either one measurement object,
// an array of them, or an object with a "measurements" array.
type JSONLoader struct{}

// Match implements Loader.
func (JSONLoader) Match(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Load implements Loader.
func (l JSONLoader) Load(path string) ([]Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("specio: %w", err)
	}
	defer f.Close()

	ms, err := l.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("specio: %s: %w", path, err)
	}
	return ms, nil
}

// Decode parses measurements from r.
func (JSONLoader) Decode(r io.Reader) ([]Measurement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNoMeasurements
	}

	var ms []Measurement
	if data[0] == '[' {
		if err := json.Unmarshal(data, &ms); err != nil {
			return nil, err
		}
	} else {
		var doc struct {
			Measurements []Measurement `json:"measurements"`
			Measurement
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		ms = doc.Measurements
		if len(ms) == 0 && len(doc.Counts) > 0 {
			ms = []Measurement{doc.Measurement}
		}
	}

	if len(ms) == 0 {
		return nil, ErrNoMeasurements
	}
	return ms, nil
}

// Encode writes ms as a JSON array.
func (JSONLoader) Encode(w io.Writer, ms []Measurement) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ms)
}
