package fit

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"
)

const (
	lambdaInit = 1e-3
	lambdaMin  = 1e-15
	lambdaMax  = 1e16
	// ftol is the relative chi-square reduction below which a near
	// Gauss-Newton step counts as converged.
	ftol = 1e-12
	// gtol bounds the cosine between residual and Jacobian columns at a
	// stationary point.
	gtol = 1e-8
	// stallTol accepts a lambda blow-up as convergence when the last
	// accepted step already improved chi-square by less than this fraction.
	stallTol = 1e-6
	// xtol is the relative parameter step treated as converged.
	xtol = 1e-8
	// minSigma keeps component widths strictly positive (keV).
	minSigma = 1e-4
)

// problem is one weighted least-squares instance over a fixed sample grid.
type problem struct {
	x, y, w []float64 // energies, counts, weights 1/u^2
	x0      float64   // background reference energy
	bounds  []Bounds  // per-component center intervals
	k       int       // component count

	// scratch, len(x) each
	model []float64
	resid []float64
	wr    []float64
	// jac holds one column per parameter.
	jac [][]float64
}

func newProblem(x, y, u []float64, bounds []Bounds) *problem {
	n, k := len(x), len(bounds)
	p := &problem{
		x:      x,
		y:      y,
		w:      make([]float64, n),
		x0:     x[0],
		bounds: bounds,
		k:      k,
		model:  make([]float64, n),
		resid:  make([]float64, n),
		wr:     make([]float64, n),
		jac:    make([][]float64, numParams(k)),
	}
	for i, ui := range u {
		p.w[i] = 1 / (ui * ui)
	}
	for j := range p.jac {
		p.jac[j] = make([]float64, n)
	}
	return p
}

// project clamps params onto the feasible set: amplitudes >= 0, widths
// >= minSigma, each center inside its own interval.
func (p *problem) project(params []float64) {
	for i := range p.k {
		a := &params[paramsPerPeak*i]
		mu := &params[paramsPerPeak*i+1]
		s := &params[paramsPerPeak*i+2]
		*a = math.Max(*a, 0)
		*mu = min(max(*mu, p.bounds[i].Lo), p.bounds[i].Hi)
		*s = math.Max(*s, minSigma)
	}
}

// chiSquare evaluates the model at params, fills resid with y - f and
// returns sum(w * resid^2).
func (p *problem) chiSquare(params []float64) float64 {
	kOff := paramsPerPeak * p.k
	slope, offset := params[kOff], params[kOff+1]

	for i, x := range p.x {
		v := slope*(x-p.x0) + offset
		for c := range p.k {
			a, mu, s := params[paramsPerPeak*c], params[paramsPerPeak*c+1], params[paramsPerPeak*c+2]
			d := (x - mu) / s
			v += a * math.Exp(-0.5*d*d)
		}
		p.model[i] = v
		p.resid[i] = p.y[i] - v
	}

	vecmath.MulBlock(p.wr, p.resid, p.w)
	chi2 := 0.0
	for i, r := range p.resid {
		chi2 += p.wr[i] * r
	}
	return chi2
}

// jacobian fills p.jac with the partial derivatives of the model at params.
func (p *problem) jacobian(params []float64) {
	kOff := paramsPerPeak * p.k
	for c := range p.k {
		a, mu, s := params[paramsPerPeak*c], params[paramsPerPeak*c+1], params[paramsPerPeak*c+2]
		ja, jmu, js := p.jac[paramsPerPeak*c], p.jac[paramsPerPeak*c+1], p.jac[paramsPerPeak*c+2]
		for i, x := range p.x {
			dx := x - mu
			g := math.Exp(-0.5 * dx * dx / (s * s))
			ja[i] = g
			jmu[i] = a * g * dx / (s * s)
			js[i] = a * g * dx * dx / (s * s * s)
		}
	}
	for i, x := range p.x {
		p.jac[kOff][i] = x - p.x0
		p.jac[kOff+1][i] = 1
	}
}

// normal builds J^T W J and J^T W r at params. chiSquare must have been
// evaluated at the same params so that p.resid is current.
func (p *problem) normal(params []float64) (*mat.SymDense, []float64) {
	p.jacobian(params)

	np := len(p.jac)
	jtj := mat.NewSymDense(np, nil)
	grad := make([]float64, np)
	tmp := make([]float64, len(p.x))

	for j := range np {
		vecmath.MulBlock(tmp, p.jac[j], p.w)
		grad[j] = dot(tmp, p.resid)
		for k := j; k < np; k++ {
			jtj.SetSym(j, k, dot(tmp, p.jac[k]))
		}
	}
	return jtj, grad
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// solution is the outcome of one Levenberg-Marquardt run.
type solution struct {
	params     []float64
	chi2       float64
	iterations int
	converged  bool
}

// levenbergMarquardt minimizes the weighted chi-square of p starting from
// params. Every damped trial counts against maxIter, so the loop always
// terminates.
func levenbergMarquardt(p *problem, params []float64, maxIter int) solution {
	params = append([]float64(nil), params...)
	p.project(params)

	chi2 := p.chiSquare(params)
	if math.IsNaN(chi2) || math.IsInf(chi2, 0) {
		return solution{params: params, chi2: chi2}
	}

	scale := 0.0
	for i, y := range p.y {
		scale += p.w[i] * y * y
	}
	floor := 1e-20 * (1 + scale)
	if chi2 <= floor {
		return solution{params: params, chi2: chi2, converged: true}
	}

	np := len(params)
	jtj, grad := p.normal(params)
	lambda := lambdaInit
	lastReduction := math.Inf(1)
	trial := make([]float64, np)
	fixed := make([]bool, np)
	damped := mat.NewSymDense(np, nil)
	delta := mat.NewVecDense(np, nil)
	rhs := mat.NewVecDense(np, nil)

	for iter := 1; iter <= maxIter; iter++ {
		p.pinned(params, grad, fixed)
		damped.CopySym(jtj)
		for j := range np {
			rhs.SetVec(j, grad[j])
			if !fixed[j] {
				continue
			}
			rhs.SetVec(j, 0)
			for k := range np {
				damped.SetSym(j, k, 0)
			}
		}
		for j := range np {
			if fixed[j] {
				damped.SetSym(j, j, 1)
				continue
			}
			d := jtj.At(j, j)
			if d <= 0 {
				d = 1
			}
			damped.SetSym(j, j, d*(1+lambda))
		}

		var chol mat.Cholesky
		if !chol.Factorize(damped) {
			lambda *= 10
			if lambda > lambdaMax {
				return solution{params: params, chi2: chi2, iterations: iter}
			}
			continue
		}
		if err := chol.SolveVecTo(delta, rhs); err != nil {
			lambda *= 10
			continue
		}

		for j := range np {
			trial[j] = params[j] + delta.AtVec(j)
		}
		p.project(trial)

		// Measured after projection so a parameter pinned at a bound does
		// not keep the step large.
		stepSmall := true
		for j := range np {
			if math.Abs(trial[j]-params[j]) > xtol*(math.Abs(params[j])+xtol) {
				stepSmall = false
				break
			}
		}
		if stepSmall && lambda <= 1 {
			return solution{params: params, chi2: chi2, iterations: iter, converged: true}
		}

		trialChi2 := p.chiSquare(trial)
		if trialChi2 < chi2 {
			lastReduction = (chi2 - trialChi2) / chi2
			copy(params, trial)
			chi2 = trialChi2
			lambda = math.Max(lambda/10, lambdaMin)

			if chi2 <= floor || (lastReduction < ftol && lambda <= 1e-2) {
				return solution{params: params, chi2: chi2, iterations: iter, converged: true}
			}
			jtj, grad = p.normal(params)
			continue
		}

		// Rejected step: p.resid now belongs to trial, restore it.
		p.chiSquare(params)
		lambda *= 10
		if lambda > lambdaMax {
			ok := lastReduction < stallTol || stationary(jtj, grad, fixed, chi2)
			return solution{params: params, chi2: chi2, iterations: iter, converged: ok}
		}
	}

	return solution{params: params, chi2: chi2, iterations: maxIter}
}

// pinned marks the parameters that sit on a bound with the gradient
// pointing out of the feasible set. They are held fixed for the next step.
func (p *problem) pinned(params, grad []float64, fixed []bool) {
	for i := range p.k {
		ja, jmu, js := paramsPerPeak*i, paramsPerPeak*i+1, paramsPerPeak*i+2
		b := p.bounds[i]
		fixed[ja] = params[ja] <= 0 && grad[ja] < 0
		fixed[jmu] = (params[jmu] <= b.Lo && grad[jmu] < 0) || (params[jmu] >= b.Hi && grad[jmu] > 0)
		fixed[js] = params[js] <= minSigma && grad[js] < 0
	}
	for j := paramsPerPeak * p.k; j < len(fixed); j++ {
		fixed[j] = false
	}
}

// stationary reports whether the gradient is orthogonal to the residual to
// within gtol for every parameter not held on a bound.
func stationary(jtj *mat.SymDense, grad []float64, fixed []bool, chi2 float64) bool {
	if chi2 <= 0 {
		return true
	}
	for j, g := range grad {
		d := jtj.At(j, j)
		if fixed[j] || d <= 0 {
			continue
		}
		if math.Abs(g)/math.Sqrt(d*chi2) > gtol {
			return false
		}
	}
	return true
}

// covariance returns (J^T W J)^-1 at params restricted to parameters with a
// non-zero Jacobian column. Entries of inactive parameters are NaN. The
// boolean is false when the active block is singular.
func covariance(p *problem, params []float64) ([][]float64, bool) {
	p.chiSquare(params)
	jtj, _ := p.normal(params)
	np := len(params)

	active := make([]int, 0, np)
	for j := range np {
		if jtj.At(j, j) > 0 {
			active = append(active, j)
		}
	}

	cov := make([][]float64, np)
	for j := range cov {
		cov[j] = make([]float64, np)
		for k := range cov[j] {
			cov[j][k] = math.NaN()
		}
	}
	if len(active) == 0 {
		return cov, false
	}

	sub := mat.NewSymDense(len(active), nil)
	for a, j := range active {
		for b := a; b < len(active); b++ {
			sub.SetSym(a, b, jtj.At(j, active[b]))
		}
	}

	var chol mat.Cholesky
	if !chol.Factorize(sub) {
		return cov, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return cov, false
	}

	for a, j := range active {
		for b, k := range active {
			cov[j][k] = inv.At(a, b)
		}
	}
	return cov, true
}
