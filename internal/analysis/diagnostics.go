package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"bayesprev/internal/sampler"
)

// SplitRHat computes the split R-hat convergence diagnostic for one
// parameter: each chain is halved, and between-half variance is compared
// against within-half variance. Values near 1 indicate mixing.
func SplitRHat(s *sampler.Samples, param int) float64 {
	var halves [][]float64
	for chain := range s.Chains {
		draws := s.ChainParam(chain, param)
		mid := len(draws) / 2
		if mid < 2 {
			return math.NaN()
		}
		halves = append(halves, draws[:mid], draws[mid:mid*2])
	}

	n := float64(len(halves[0]))
	means := make([]float64, len(halves))
	variances := make([]float64, len(halves))
	for i, h := range halves {
		means[i] = stat.Mean(h, nil)
		variances[i] = stat.Variance(h, nil)
	}
	w := stat.Mean(variances, nil)
	b := n * stat.Variance(means, nil)
	if w == 0 {
		// all draws identical within halves: flat chains, no evidence of mixing
		return math.Inf(1)
	}
	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// ESS estimates the effective sample size of one parameter from pooled
// chains using Geyer's initial positive sequence on the chain-averaged
// autocorrelation.
func ESS(s *sampler.Samples, param int) float64 {
	nChains := s.NumChains()
	perChain := s.DrawsPerChain()
	if nChains == 0 || perChain < 4 {
		return math.NaN()
	}

	// average autocorrelation across chains; lags beyond a few hundred
	// contribute nothing once the initial positive sequence has ended
	maxLag := perChain - 1
	if maxLag > 250 {
		maxLag = 250
	}
	rho := make([]float64, maxLag)
	for chain := 0; chain < nChains; chain++ {
		draws := s.ChainParam(chain, param)
		mean := stat.Mean(draws, nil)
		variance := stat.Variance(draws, nil)
		if variance == 0 {
			return math.NaN()
		}
		for lag := 1; lag < maxLag; lag++ {
			acc := 0.0
			for t := 0; t+lag < len(draws); t++ {
				acc += (draws[t] - mean) * (draws[t+lag] - mean)
			}
			rho[lag] += acc / (float64(len(draws)-lag) * variance)
		}
	}
	for lag := range rho {
		rho[lag] /= float64(nChains)
	}

	// sum paired autocorrelations until the pair sum turns negative
	sum := 0.0
	for lag := 1; lag+1 < len(rho); lag += 2 {
		pair := rho[lag] + rho[lag+1]
		if pair < 0 {
			break
		}
		sum += pair
	}
	ess := float64(nChains*perChain) / (1 + 2*sum)
	if ess > float64(nChains*perChain) {
		ess = float64(nChains * perChain)
	}
	return ess
}
