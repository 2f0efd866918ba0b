package analysis

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"bayesprev/domain/fit"
	"bayesprev/internal/sampler"
)

// Convergence thresholds. Exceeding any marks the fit degraded rather than
// failing it: partially-converged hierarchical posteriors still carry usable
// shrinkage information.
const (
	RHatLimit           = 1.05
	MinESS              = 100.0
	DivergenceRateLimit = 0.05
	hdiMass             = 0.95
)

// Summarize computes per-parameter posterior summaries (mean, sd, 95% HDI,
// split R-hat, ESS) over the pooled post-warmup draws.
func Summarize(s *sampler.Samples) ([]fit.ParamSummary, error) {
	out := make([]fit.ParamSummary, s.NumParams())
	for idx, name := range s.Names {
		draws := s.Param(idx)
		mean, err := stats.Mean(draws)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		sd, err := stats.StandardDeviationSample(draws)
		if err != nil {
			return nil, fmt.Errorf("summarizing %s: %w", name, err)
		}
		lo, hi := HDI(draws, hdiMass)
		out[idx] = fit.ParamSummary{
			Name:    name,
			Mean:    mean,
			StdDev:  sd,
			HDILow:  lo,
			HDIHigh: hi,
			RHat:    fit.Metric(SplitRHat(s, idx)),
			ESS:     fit.Metric(ESS(s, idx)),
		}
	}
	return out, nil
}

// Diagnose evaluates convergence of the sample set against the thresholds
// and reports warnings. Warnings flag the fit degraded; they never abort it.
func Diagnose(s *sampler.Samples, summaries []fit.ParamSummary) fit.Diagnostics {
	d := fit.Diagnostics{Divergences: s.Divergences}
	maxRHat := math.NaN()
	minESS := math.NaN()

	for _, ps := range summaries {
		rhat := float64(ps.RHat)
		ess := float64(ps.ESS)
		if !math.IsNaN(rhat) && !(rhat <= maxRHat) {
			maxRHat = rhat
		}
		if !math.IsNaN(ess) && !(ess >= minESS) {
			minESS = ess
		}
		if rhat > RHatLimit {
			d.Warnings = append(d.Warnings, fit.ConvergenceWarning{
				Check:   "r_hat",
				Param:   ps.Name.String(),
				Value:   fit.Metric(rhat),
				Limit:   RHatLimit,
				Message: fmt.Sprintf("split R-hat %.3f for %s exceeds %.2f; chains may not have mixed", rhat, ps.Name, RHatLimit),
			})
		}
		if ess < MinESS {
			d.Warnings = append(d.Warnings, fit.ConvergenceWarning{
				Check:   "ess",
				Param:   ps.Name.String(),
				Value:   fit.Metric(ess),
				Limit:   MinESS,
				Message: fmt.Sprintf("effective sample size %.0f for %s below %.0f", ess, ps.Name, MinESS),
			})
		}
	}
	d.MaxRHat = fit.Metric(maxRHat)
	d.MinESS = fit.Metric(minESS)

	totalDraws := s.NumChains() * s.DrawsPerChain()
	totalDiv := 0
	for _, n := range s.Divergences {
		totalDiv += n
	}
	if totalDraws > 0 {
		rate := float64(totalDiv) / float64(totalDraws)
		if rate > DivergenceRateLimit {
			d.Warnings = append(d.Warnings, fit.ConvergenceWarning{
				Check:   "divergences",
				Value:   fit.Metric(rate),
				Limit:   DivergenceRateLimit,
				Message: fmt.Sprintf("%d of %d post-warmup transitions diverged (%.1f%%)", totalDiv, totalDraws, 100*rate),
			})
		}
	}
	return d
}
