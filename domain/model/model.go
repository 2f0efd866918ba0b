// Package model defines the hierarchical prevalence regression:
//
//	y_i ~ Exponential(rate = exp(-theta_i))
//	theta_i = gamma + sum_k beta_k * x_ik + lambda_i
//	beta_k ~ Normal(alpha_g(k), delta_g(k))   g: 1-4 region, 5-9 vulnerability, 10-14 governance
//	gamma, alpha_j ~ Normal(0, 1000)
//	delta_j, tau ~ HalfCauchy(0, 100)
//	lambda_i ~ Normal(0, tau)
//
// The positive scales delta and tau are sampled on the log scale, with the
// Jacobian folded into the log posterior, so the whole parameter vector is
// unconstrained and suitable for gradient-based sampling.
package model

import (
	"fmt"
	"math"

	"bayesprev/domain/core"
	"bayesprev/domain/dataset"
)

// Prior scales, fixed by the model specification
const (
	locPriorSD      = 1000.0 // gamma, alpha
	scalePriorGamma = 100.0  // HalfCauchy scale for delta, tau
)

// NumGroups is the number of coefficient tiers sharing a hyper-prior
const NumGroups = 3

// Unconstrained parameter vector layout: gamma, then the 3 group
// hyper-means, the 3 log hyper-scales, the 14 coefficients, log tau, and the
// N per-observation random effects.
const (
	idxGamma    = 0
	idxAlpha    = 1
	idxLogDelta = idxAlpha + NumGroups
	idxBeta     = idxLogDelta + NumGroups
	idxLogTau   = idxBeta + dataset.NumCovariates
	idxLambda   = idxLogTau + 1
)

// Group maps a coefficient index (0-based, 0..13) to its tier (0..2).
func Group(k int) int {
	switch {
	case k < dataset.NumRegions:
		return 0
	case k < dataset.NumRegions+dataset.NumVulnerability:
		return 1
	default:
		return 2
	}
}

// Model binds the specification to prepared training data. It is immutable
// after construction and safe to share read-only across chains.
type Model struct {
	X [][]float64 // N x NumCovariates, standardized
	Y []float64   // N, strictly positive
}

// New builds a Model from a prepared training table.
func New(train *dataset.Table) (*Model, error) {
	if !train.HasOutcome() {
		return nil, core.NewSchemaError(dataset.OutcomeColumn.Key.String(), "model requires training outcomes")
	}
	for i, y := range train.Outcome {
		if !(y > 0) {
			return nil, core.NewSchemaError(dataset.OutcomeColumn.Key.String(),
				fmt.Sprintf("row %d outcome %v violates y > 0", i, y))
		}
	}
	return &Model{X: train.Covariates, Y: train.Outcome}, nil
}

// Dim returns the length of the unconstrained parameter vector.
func (m *Model) Dim() int {
	return idxLambda + len(m.Y)
}

// N returns the number of training observations.
func (m *Model) N() int {
	return len(m.Y)
}

// LinearPredictor computes theta for covariate row x under draw p, with the
// supplied random effect.
func LinearPredictor(gamma float64, beta []float64, x []float64, lambda float64) float64 {
	theta := gamma + lambda
	for k, b := range beta {
		theta += b * x[k]
	}
	return theta
}

// LogPosterior evaluates the unnormalized log posterior density at p.
// Returns -Inf for numerically invalid states; the sampler treats those as
// divergent proposals.
func (m *Model) LogPosterior(p []float64) float64 {
	gamma := p[idxGamma]
	lp := 0.0

	// Vague normal priors on the intercept and hyper-means
	lp += -0.5 * sq(gamma/locPriorSD)
	for j := 0; j < NumGroups; j++ {
		lp += -0.5 * sq(p[idxAlpha+j]/locPriorSD)
	}

	// HalfCauchy on the group scales and tau, plus log-scale Jacobian
	for j := 0; j < NumGroups; j++ {
		lp += logHalfCauchyWithJacobian(p[idxLogDelta+j])
	}
	lp += logHalfCauchyWithJacobian(p[idxLogTau])

	// Hierarchical coupling: beta_k ~ Normal(alpha_g, delta_g)
	for k := 0; k < dataset.NumCovariates; k++ {
		g := Group(k)
		u := p[idxLogDelta+g]
		z := (p[idxBeta+k] - p[idxAlpha+g]) * math.Exp(-u)
		lp += -0.5*sq(z) - u
	}

	// Random effects: lambda_i ~ Normal(0, tau)
	v := p[idxLogTau]
	invTau := math.Exp(-v)
	for i := 0; i < len(m.Y); i++ {
		lp += -0.5 * sq(p[idxLambda+i]*invTau)
	}
	lp -= float64(len(m.Y)) * v

	// Exponential likelihood with log link on the mean
	beta := p[idxBeta : idxBeta+dataset.NumCovariates]
	for i, x := range m.X {
		theta := LinearPredictor(gamma, beta, x, p[idxLambda+i])
		lp += -theta - m.Y[i]*math.Exp(-theta)
	}

	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}

// Grad writes the gradient of LogPosterior at p into out, which must have
// length Dim().
func (m *Model) Grad(p, out []float64) {
	for i := range out {
		out[i] = 0
	}
	gamma := p[idxGamma]
	beta := p[idxBeta : idxBeta+dataset.NumCovariates]

	out[idxGamma] = -gamma / sq(locPriorSD)
	for j := 0; j < NumGroups; j++ {
		out[idxAlpha+j] = -p[idxAlpha+j] / sq(locPriorSD)
		out[idxLogDelta+j] = gradLogHalfCauchyWithJacobian(p[idxLogDelta+j])
	}
	out[idxLogTau] = gradLogHalfCauchyWithJacobian(p[idxLogTau])

	for k := 0; k < dataset.NumCovariates; k++ {
		g := Group(k)
		invDelta2 := math.Exp(-2 * p[idxLogDelta+g])
		resid := p[idxBeta+k] - p[idxAlpha+g]
		out[idxBeta+k] += -resid * invDelta2
		out[idxAlpha+g] += resid * invDelta2
		out[idxLogDelta+g] += sq(resid)*invDelta2 - 1
	}

	v := p[idxLogTau]
	invTau2 := math.Exp(-2 * v)
	for i := 0; i < len(m.Y); i++ {
		l := p[idxLambda+i]
		out[idxLambda+i] += -l * invTau2
		out[idxLogTau] += sq(l)*invTau2 - 1
	}

	// Likelihood: d/dtheta = -1 + y*exp(-theta)
	for i, x := range m.X {
		theta := LinearPredictor(gamma, beta, x, p[idxLambda+i])
		s := m.Y[i]*math.Exp(-theta) - 1
		out[idxGamma] += s
		for k := range beta {
			out[idxBeta+k] += s * x[k]
		}
		out[idxLambda+i] += s
	}
}

// Draw is one posterior draw on the natural (constrained) scale.
type Draw struct {
	Gamma  float64
	Alpha  []float64 // NumGroups
	Delta  []float64 // NumGroups, positive
	Beta   []float64 // NumCovariates
	Tau    float64   // positive
	Lambda []float64 // N training random effects
}

// Constrain maps an unconstrained vector to the natural scale.
func (m *Model) Constrain(p []float64) Draw {
	d := Draw{
		Gamma:  p[idxGamma],
		Alpha:  make([]float64, NumGroups),
		Delta:  make([]float64, NumGroups),
		Beta:   make([]float64, dataset.NumCovariates),
		Tau:    math.Exp(p[idxLogTau]),
		Lambda: make([]float64, len(m.Y)),
	}
	for j := 0; j < NumGroups; j++ {
		d.Alpha[j] = p[idxAlpha+j]
		d.Delta[j] = math.Exp(p[idxLogDelta+j])
	}
	copy(d.Beta, p[idxBeta:idxBeta+dataset.NumCovariates])
	copy(d.Lambda, p[idxLambda:])
	return d
}

// ParamNames returns reporting names for the natural-scale parameters, in
// the order Flatten emits them.
func (m *Model) ParamNames() []core.ParamName {
	names := []core.ParamName{"gamma"}
	for j := 1; j <= NumGroups; j++ {
		names = append(names, core.ParamName(fmt.Sprintf("alpha[%d]", j)))
	}
	for j := 1; j <= NumGroups; j++ {
		names = append(names, core.ParamName(fmt.Sprintf("delta[%d]", j)))
	}
	for k := 1; k <= dataset.NumCovariates; k++ {
		names = append(names, core.ParamName(fmt.Sprintf("beta[%d]", k)))
	}
	names = append(names, "tau")
	for i := 1; i <= len(m.Y); i++ {
		names = append(names, core.ParamName(fmt.Sprintf("lambda[%d]", i)))
	}
	return names
}

// Flatten lays a Draw out in ParamNames order.
func (d Draw) Flatten() []float64 {
	out := make([]float64, 0, 1+2*NumGroups+len(d.Beta)+1+len(d.Lambda))
	out = append(out, d.Gamma)
	out = append(out, d.Alpha...)
	out = append(out, d.Delta...)
	out = append(out, d.Beta...)
	out = append(out, d.Tau)
	out = append(out, d.Lambda...)
	return out
}

// logHalfCauchyWithJacobian is the log density of HalfCauchy(0, s) evaluated
// at exp(u), plus the log|d exp(u)/du| = u Jacobian term. Constants dropped.
func logHalfCauchyWithJacobian(u float64) float64 {
	t := math.Exp(u) / scalePriorGamma
	return u - math.Log1p(t*t)
}

func gradLogHalfCauchyWithJacobian(u float64) float64 {
	t2 := math.Exp(2*u) / (scalePriorGamma * scalePriorGamma)
	return 1 - 2*t2/(1+t2)
}

func sq(x float64) float64 { return x * x }
