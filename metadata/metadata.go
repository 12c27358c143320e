// Package metadata parses the free-text measurement title that accompanies
// each spectrum into a typed sample record.
//
// Titles are whitespace-separated key=value tokens, for example
//
//	PuO2 R240=0.0612 m=4.5g shield=Pb:3mm d=25cm age=12.5y
//
// Parsing never fails. Tokens that are missing or unreadable leave the
// corresponding field unknown, and an unknown reference ratio means no
// ground truth is available for the sample.
package metadata

import (
	"strconv"
	"strings"
)

// Quantity is a numeric field that may be absent.
type Quantity struct {
	Value float64
	Known bool
}

// Known returns a known quantity.
func Known(v float64) Quantity { return Quantity{Value: v, Known: true} }

// Get returns the value and whether it is known.
func (q Quantity) Get() (float64, bool) { return q.Value, q.Known }

// Ratio is the reference Pu-240/Pu-239 atom ratio of a sample.
type Ratio = Quantity

// Shield describes the material between source and detector.
type Shield struct {
	Material  string   // empty when unknown or unshielded
	Thickness Quantity // mm
}

// Metadata is the typed content of a measurement title.
type Metadata struct {
	Title     string
	Sample    string // leading free-text label, e.g. "PuO2"
	Reference Ratio
	Mass      Quantity // g
	Shield    Shield
	Distance  Quantity // cm, source to detector face
	Age       Quantity // years since chemical separation
}

// Unknown returns the placeholder record for a title that carries nothing
// usable.
func Unknown(title string) Metadata { return Metadata{Title: title} }

// HasReference reports whether a ground-truth ratio is available.
func (m Metadata) HasReference() bool { return m.Reference.Known }

// ratioKeys are the accepted spellings of the reference ratio key.
var ratioKeys = map[string]bool{
	"r240": true, "ratio": true, "pu240/pu239": true, "240/239": true,
}

// Parse extracts the sample record from title.
//
// Recognized keys (case-insensitive): R240 | ratio | Pu240/Pu239 for the
// reference ratio (a trailing % divides by 100), m | mass with g, mg or kg,
// shield as MATERIAL[:THICKNESS] with mm or cm, d | distance with mm, cm or
// m, and age with y, yr or d. Bare numbers take the default unit of the
// field. Tokens without '=' before the first key=value pair form the sample
// label.
func Parse(title string) Metadata {
	md := Unknown(title)

	var label []string
	seenKey := false
	for _, tok := range strings.Fields(title) {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			if !seenKey {
				label = append(label, tok)
			}
			continue
		}
		seenKey = true
		key = strings.ToLower(key)

		switch {
		case ratioKeys[key]:
			md.Reference = parseRatio(val)
		case key == "m" || key == "mass":
			md.Mass = parseUnit(val, massUnits, "g")
		case key == "shield":
			md.Shield = parseShield(val)
		case key == "d" || key == "distance":
			md.Distance = parseUnit(val, lengthCM, "cm")
		case key == "age":
			md.Age = parseUnit(val, ageUnits, "y")
		}
	}
	md.Sample = strings.Join(label, " ")
	return md
}

var (
	massUnits = map[string]float64{"g": 1, "mg": 1e-3, "kg": 1e3}
	lengthCM  = map[string]float64{"cm": 1, "mm": 0.1, "m": 100}
	lengthMM  = map[string]float64{"mm": 1, "cm": 10}
	ageUnits  = map[string]float64{"y": 1, "yr": 1, "yrs": 1, "d": 1 / 365.25}
)

func parseRatio(s string) Ratio {
	scale := 1.0
	if strings.HasSuffix(s, "%") {
		s = strings.TrimSuffix(s, "%")
		scale = 0.01
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return Ratio{}
	}
	return Known(v * scale)
}

// parseUnit reads a non-negative number with an optional unit suffix and
// converts it to the unit whose factor is 1. An empty suffix means def.
func parseUnit(s string, units map[string]float64, def string) Quantity {
	i := len(s)
	for i > 0 && isUnitByte(s[i-1]) {
		i--
	}
	num, unit := s[:i], strings.ToLower(s[i:])
	if unit == "" {
		unit = def
	}

	factor, ok := units[unit]
	if !ok {
		return Quantity{}
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return Quantity{}
	}
	return Known(v * factor)
}

func isUnitByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func parseShield(s string) Shield {
	material, thickness, hasThickness := strings.Cut(s, ":")
	if strings.EqualFold(material, "none") {
		return Shield{Thickness: Known(0)}
	}
	sh := Shield{Material: material}
	if hasThickness {
		sh.Thickness = parseUnit(thickness, lengthMM, "mm")
	}
	return sh
}
