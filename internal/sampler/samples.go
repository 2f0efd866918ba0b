package sampler

import "bayesprev/domain/core"

// Samples is the pooled posterior sample set. Each chain writes its own
// buffer once; after merging the set is read-only. Pooling order is chain
// order, so results are reproducible regardless of scheduling.
type Samples struct {
	Names       []core.ParamName
	Chains      [][][]float64 // chain -> kept draw -> parameter vector
	Divergences []int         // post-warmup divergent transitions per chain
}

// NumChains returns the number of chains
func (s *Samples) NumChains() int {
	return len(s.Chains)
}

// DrawsPerChain returns the kept draw count of the first chain
func (s *Samples) DrawsPerChain() int {
	if len(s.Chains) == 0 {
		return 0
	}
	return len(s.Chains[0])
}

// NumParams returns the parameter vector length
func (s *Samples) NumParams() int {
	return len(s.Names)
}

// Pooled concatenates all chains' draws in chain order
func (s *Samples) Pooled() [][]float64 {
	total := 0
	for _, c := range s.Chains {
		total += len(c)
	}
	out := make([][]float64, 0, total)
	for _, c := range s.Chains {
		out = append(out, c...)
	}
	return out
}

// Param extracts the pooled sample vector for one parameter index
func (s *Samples) Param(idx int) []float64 {
	out := make([]float64, 0, s.NumChains()*s.DrawsPerChain())
	for _, c := range s.Chains {
		for _, draw := range c {
			out = append(out, draw[idx])
		}
	}
	return out
}

// ChainParam extracts one parameter's draws from a single chain
func (s *Samples) ChainParam(chain, idx int) []float64 {
	out := make([]float64, len(s.Chains[chain]))
	for i, draw := range s.Chains[chain] {
		out[i] = draw[idx]
	}
	return out
}

// Transform maps every draw through f, relabeling with names. Used to move
// from the sampler's unconstrained scale to the model's natural scale.
func (s *Samples) Transform(names []core.ParamName, f func([]float64) []float64) *Samples {
	out := &Samples{
		Names:       names,
		Chains:      make([][][]float64, len(s.Chains)),
		Divergences: s.Divergences,
	}
	for ci, c := range s.Chains {
		out.Chains[ci] = make([][]float64, len(c))
		for di, draw := range c {
			out.Chains[ci][di] = f(draw)
		}
	}
	return out
}
