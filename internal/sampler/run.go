package sampler

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bayesprev/domain/core"
	"bayesprev/ports"
)

// Run draws posterior samples from target under cfg. Chains run in parallel
// with independent RNG streams and private buffers, merged by concatenation
// in chain order once all chains finish, so a fixed seed and chain count
// reproduce the pooled set exactly. The context is checked between
// iterations; cancellation discards partial results.
func Run(ctx context.Context, target Target, cfg Config, rngs ports.RNGPort, logger *zap.Logger) (*Samples, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	buffers := make([][][]float64, cfg.Chains)
	divergences := make([]int, cfg.Chains)

	g, gctx := errgroup.WithContext(ctx)
	for chain := 0; chain < cfg.Chains; chain++ {
		g.Go(func() error {
			rng, err := rngs.ChainStream(gctx, chain, cfg.Seed)
			if err != nil {
				return err
			}
			draws, ndiv, err := runChain(gctx, target, cfg, rng, logger.With(zap.Int("chain", chain)))
			if err != nil {
				return err
			}
			buffers[chain] = draws
			divergences[chain] = ndiv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Samples{Chains: buffers, Divergences: divergences}
	if !hasValidDraws(s) {
		return nil, core.ErrSamplerFatal
	}
	return s, nil
}

// runChain is strictly sequential: each draw depends on the previous state.
func runChain(ctx context.Context, target Target, cfg Config, rng *rand.Rand, logger *zap.Logger) ([][]float64, int, error) {
	c := newChain(target, cfg, rng)
	cur := c.newPoint(c.init())
	for retry := 0; retry < 10 && math.IsInf(cur.logp, -1); retry++ {
		cur = c.newPoint(c.init())
	}
	if math.IsInf(cur.logp, -1) {
		return nil, 0, core.ErrSamplerFatal
	}

	kept := make([][]float64, 0, (cfg.Iterations-cfg.Warmup+cfg.Thin-1)/cfg.Thin)
	divergences := 0

	for iter := 0; iter < cfg.Iterations; iter++ {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		adapting := iter < cfg.Warmup
		next, accept, diverged := c.step(cur, c.epsilon(adapting))
		if adapting {
			c.adapt(iter+1, accept)
		} else {
			if diverged {
				divergences++
			}
			post := iter - cfg.Warmup
			if post%cfg.Thin == 0 {
				kept = append(kept, append([]float64(nil), next.p...))
			}
		}
		cur = next

		if (iter+1)%500 == 0 {
			logger.Debug("sampling progress",
				zap.Int("iteration", iter+1),
				zap.Float64("step_size", c.epsilon(adapting)),
				zap.Float64("accept", accept))
		}
	}

	logger.Debug("chain finished",
		zap.Int("kept", len(kept)),
		zap.Int("divergences", divergences),
		zap.Float64("step_size", c.epsilon(false)))
	return kept, divergences, nil
}

func hasValidDraws(s *Samples) bool {
	for _, chain := range s.Chains {
		for _, draw := range chain {
			finite := true
			for _, v := range draw {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					finite = false
					break
				}
			}
			if finite {
				return true
			}
		}
	}
	return false
}
