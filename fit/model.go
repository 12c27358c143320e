package fit

import "math"

// fwhmPerSigma is 2*sqrt(2*ln 2).
var fwhmPerSigma = 2 * math.Sqrt(2*math.Ln2)

// Peak is one Gaussian component: Amplitude * exp(-(E-Center)^2 / (2 Sigma^2)).
type Peak struct {
	Amplitude float64 // counts at the centroid, >= 0
	Center    float64 // keV
	Sigma     float64 // keV, > 0
}

// FWHM returns the full width at half maximum.
func (p Peak) FWHM() float64 { return fwhmPerSigma * p.Sigma }

// Area returns the integrated counts of the component, A*sigma*sqrt(2*pi),
// in counts*keV per unit bin width.
func (p Peak) Area() float64 { return p.Amplitude * p.Sigma * math.Sqrt(2*math.Pi) }

// Eval returns the component value at energy e.
func (p Peak) Eval(e float64) float64 {
	d := (e - p.Center) / p.Sigma
	return p.Amplitude * math.Exp(-0.5*d*d)
}

// Background is the linear continuum Slope*E + Intercept.
type Background struct {
	Slope     float64
	Intercept float64
}

// Eval returns the background value at energy e.
func (b Background) Eval(e float64) float64 { return b.Slope*e + b.Intercept }

// Model is an ordered cluster of Gaussian components over a linear
// background. Component order is significant: downstream consumers address
// components by index, so the order must follow the canonical line list the
// centers were seeded from.
type Model struct {
	Peaks      []Peak
	Background Background
}

// Eval returns the model value at energy e.
func (m Model) Eval(e float64) float64 {
	v := m.Background.Eval(e)
	for _, p := range m.Peaks {
		v += p.Eval(e)
	}
	return v
}

// Synthesize evaluates m at each energy.
func Synthesize(energies []float64, m Model) []float64 {
	out := make([]float64, len(energies))
	for i, e := range energies {
		out[i] = m.Eval(e)
	}
	return out
}

// paramsPerPeak is the number of free parameters of one component.
const paramsPerPeak = 3

// numParams returns the free parameter count of a k-component model.
func numParams(k int) int { return paramsPerPeak*k + 2 }

// packParams flattens m into the solver layout
// [A0, mu0, s0, ..., slope, offset] where the background is expressed as
// slope*(E-x0) + offset. Referencing the background to x0 keeps the two
// background columns of the Jacobian well conditioned at keV-scale energies.
func packParams(m Model, x0 float64) []float64 {
	k := len(m.Peaks)
	p := make([]float64, numParams(k))
	for i, pk := range m.Peaks {
		p[paramsPerPeak*i] = pk.Amplitude
		p[paramsPerPeak*i+1] = pk.Center
		p[paramsPerPeak*i+2] = pk.Sigma
	}
	p[paramsPerPeak*k] = m.Background.Slope
	p[paramsPerPeak*k+1] = m.Background.Eval(x0)
	return p
}

// unpackParams is the inverse of packParams.
func unpackParams(p []float64, k int, x0 float64) Model {
	m := Model{Peaks: make([]Peak, k)}
	for i := range m.Peaks {
		m.Peaks[i] = Peak{
			Amplitude: p[paramsPerPeak*i],
			Center:    p[paramsPerPeak*i+1],
			Sigma:     p[paramsPerPeak*i+2],
		}
	}
	slope := p[paramsPerPeak*k]
	m.Background = Background{Slope: slope, Intercept: p[paramsPerPeak*k+1] - slope*x0}
	return m
}
