// Package analysis summarizes pooled posterior samples: highest-density
// intervals, per-parameter summary statistics, and convergence diagnostics.
package analysis

import (
	"math"
	"sort"
)

// HDI returns the highest-density interval at the given mass: the narrowest
// contiguous window containing at least mass of the sorted draws. This is
// not the equal-tailed interval; for skewed posteriors the two differ.
func HDI(samples []float64, mass float64) (float64, float64) {
	n := len(samples)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	if n == 1 {
		return samples[0], samples[0]
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	window := int(math.Ceil(mass * float64(n)))
	if window < 1 {
		window = 1
	}
	if window > n {
		window = n
	}

	bestLo, bestHi := sorted[0], sorted[window-1]
	bestWidth := bestHi - bestLo
	for i := 1; i+window <= n; i++ {
		width := sorted[i+window-1] - sorted[i]
		if width < bestWidth {
			bestWidth = width
			bestLo, bestHi = sorted[i], sorted[i+window-1]
		}
	}
	return bestLo, bestHi
}
