package sampler

import (
	"math"
	"math/rand"
)

// Target is a differentiable unnormalized log density. Implementations must
// be safe for concurrent read-only use across chains.
type Target interface {
	Dim() int
	LogPosterior(p []float64) float64
	Grad(p, out []float64)
}

// Divergence threshold on the joint log density drop, as in Stan
const deltaMax = 1000.0

// Dual-averaging constants from Hoffman & Gelman (2014)
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// nutsChain holds the per-chain sampler state. Chains never share state.
type nutsChain struct {
	target Target
	rng    *rand.Rand
	dim    int

	// dual averaging
	mu        float64
	logEps    float64
	logEpsBar float64
	hBar      float64

	maxDepth     int
	targetAccept float64
}

func newChain(t Target, cfg Config, rng *rand.Rand) *nutsChain {
	return &nutsChain{
		target:       t,
		rng:          rng,
		dim:          t.Dim(),
		mu:           math.Log(10 * cfg.StepSize),
		logEps:       math.Log(cfg.StepSize),
		logEpsBar:    math.Log(cfg.StepSize),
		maxDepth:     cfg.MaxDepth,
		targetAccept: cfg.TargetAccept,
	}
}

// init draws a dispersed starting point. Location parameters jitter around
// zero; random effects start at zero so early trajectories stay finite.
func (c *nutsChain) init() []float64 {
	p := make([]float64, c.dim)
	for i := range p {
		p[i] = c.rng.NormFloat64() * 0.1
	}
	return p
}

// point is a phase-space state with cached density and gradient
type point struct {
	p, r, grad []float64
	logp       float64
}

func (c *nutsChain) newPoint(p []float64) point {
	pt := point{
		p:    append([]float64(nil), p...),
		r:    make([]float64, c.dim),
		grad: make([]float64, c.dim),
	}
	pt.logp = c.target.LogPosterior(pt.p)
	c.target.Grad(pt.p, pt.grad)
	return pt
}

func (pt point) clone() point {
	return point{
		p:    append([]float64(nil), pt.p...),
		r:    append([]float64(nil), pt.r...),
		grad: append([]float64(nil), pt.grad...),
		logp: pt.logp,
	}
}

// joint is the log of the unnormalized phase-space density
func (pt point) joint() float64 {
	k := 0.0
	for _, ri := range pt.r {
		k += ri * ri
	}
	return pt.logp - 0.5*k
}

// leapfrog advances pt one step of size eps in place
func (c *nutsChain) leapfrog(pt *point, eps float64) {
	for i := range pt.r {
		pt.r[i] += 0.5 * eps * pt.grad[i]
	}
	for i := range pt.p {
		pt.p[i] += eps * pt.r[i]
	}
	pt.logp = c.target.LogPosterior(pt.p)
	c.target.Grad(pt.p, pt.grad)
	for i := range pt.r {
		pt.r[i] += 0.5 * eps * pt.grad[i]
	}
}

// tree is the result of one buildTree recursion
type tree struct {
	minus, plus point
	proposal    point
	n           int  // states under the slice
	ok          bool // no U-turn, no divergence
	diverged    bool
	alpha       float64 // accumulated acceptance statistic
	nAlpha      int
}

// buildTree doubles the trajectory in direction dir (+1/-1), depth levels
func (c *nutsChain) buildTree(from point, logU float64, dir int, depth int, eps, h0 float64) tree {
	if depth == 0 {
		pt := from.clone()
		c.leapfrog(&pt, float64(dir)*eps)
		h := pt.joint()
		t := tree{minus: pt, plus: pt, proposal: pt}
		if math.IsNaN(h) {
			h = math.Inf(-1)
		}
		if logU <= h {
			t.n = 1
		}
		if logU >= h+deltaMax {
			t.diverged = true
		} else {
			t.ok = true
		}
		a := math.Exp(h - h0)
		if a > 1 || math.IsNaN(a) {
			a = 1
		}
		if math.IsInf(h, -1) {
			a = 0
		}
		t.alpha = a
		t.nAlpha = 1
		return t
	}

	first := c.buildTree(from, logU, dir, depth-1, eps, h0)
	if !first.ok {
		return first
	}
	var second tree
	if dir == -1 {
		second = c.buildTree(first.minus, logU, dir, depth-1, eps, h0)
		first.minus = second.minus
	} else {
		second = c.buildTree(first.plus, logU, dir, depth-1, eps, h0)
		first.plus = second.plus
	}
	if second.n > 0 && c.rng.Float64() < float64(second.n)/float64(first.n+second.n) {
		first.proposal = second.proposal
	}
	first.n += second.n
	first.alpha += second.alpha
	first.nAlpha += second.nAlpha
	first.diverged = first.diverged || second.diverged
	first.ok = second.ok && !c.uTurn(first.minus, first.plus)
	return first
}

// uTurn checks the no-U-turn stopping criterion across the trajectory span
func (c *nutsChain) uTurn(minus, plus point) bool {
	fwd, bwd := 0.0, 0.0
	for i := range plus.p {
		d := plus.p[i] - minus.p[i]
		fwd += d * plus.r[i]
		bwd += d * minus.r[i]
	}
	return fwd < 0 || bwd < 0
}

// step runs one NUTS transition from cur, returning the next state, the
// averaged acceptance statistic, and whether the trajectory diverged.
func (c *nutsChain) step(cur point, eps float64) (point, float64, bool) {
	for i := range cur.r {
		cur.r[i] = c.rng.NormFloat64()
	}
	h0 := cur.joint()
	logU := h0 + math.Log(c.rng.Float64())

	minus, plus := cur.clone(), cur.clone()
	next := cur
	n := 1
	diverged := false
	alphaSum, nAlpha := 0.0, 0

	for depth := 0; depth < c.maxDepth; depth++ {
		dir := -1
		if c.rng.Float64() < 0.5 {
			dir = 1
		}
		var t tree
		if dir == -1 {
			t = c.buildTree(minus, logU, dir, depth, eps, h0)
			minus = t.minus
		} else {
			t = c.buildTree(plus, logU, dir, depth, eps, h0)
			plus = t.plus
		}
		alphaSum += t.alpha
		nAlpha += t.nAlpha
		diverged = diverged || t.diverged
		if t.ok && t.n > 0 && c.rng.Float64() < float64(t.n)/float64(n) {
			next = t.proposal
		}
		n += t.n
		if !t.ok || c.uTurn(minus, plus) {
			break
		}
	}

	accept := 0.0
	if nAlpha > 0 {
		accept = alphaSum / float64(nAlpha)
	}
	return next, accept, diverged
}

// adapt updates the dual-averaging step size after warmup iteration m (1-based)
func (c *nutsChain) adapt(m int, accept float64) {
	fm := float64(m)
	eta := 1.0 / (fm + daT0)
	c.hBar = (1-eta)*c.hBar + eta*(c.targetAccept-accept)
	c.logEps = c.mu - math.Sqrt(fm)/daGamma*c.hBar
	w := math.Pow(fm, -daKappa)
	c.logEpsBar = w*c.logEps + (1-w)*c.logEpsBar
}

// epsilon returns the current step size; adapting selects logEps, frozen
// chains use the averaged logEpsBar.
func (c *nutsChain) epsilon(adapting bool) float64 {
	if adapting {
		return math.Exp(c.logEps)
	}
	return math.Exp(c.logEpsBar)
}
