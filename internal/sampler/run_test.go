package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bayesprev/adapters/rng"
	"bayesprev/domain/core"
)

// gaussTarget is a standard multivariate normal, the simplest target with a
// known posterior for exercising the engine.
type gaussTarget struct {
	dim int
}

func (g gaussTarget) Dim() int { return g.dim }

func (g gaussTarget) LogPosterior(p []float64) float64 {
	s := 0.0
	for _, v := range p {
		s += v * v
	}
	return -0.5 * s
}

func (g gaussTarget) Grad(p, out []float64) {
	for i, v := range p {
		out[i] = -v
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Chains = 2
	cfg.Warmup = 200
	cfg.Iterations = 700
	cfg.TargetAccept = 0.8
	cfg.MaxDepth = 6
	cfg.StepSize = 0.2
	return cfg
}

func TestRun_DrawCountsAndShape(t *testing.T) {
	s, err := Run(context.Background(), gaussTarget{dim: 3}, testConfig(), rng.New(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, s.NumChains())
	assert.Equal(t, 500, s.DrawsPerChain())
	assert.Len(t, s.Pooled(), 1000)
	for _, chain := range s.Chains {
		for _, draw := range chain {
			require.Len(t, draw, 3)
		}
	}
}

func TestRun_RecoversGaussianMoments(t *testing.T) {
	cfg := testConfig()
	cfg.Iterations = 1500
	s, err := Run(context.Background(), gaussTarget{dim: 4}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)

	for idx := 0; idx < 4; idx++ {
		draws := s.Param(idx)
		mean, variance := meanVar(draws)
		assert.InDelta(t, 0, mean, 0.2, "param %d mean", idx)
		assert.InDelta(t, 1, variance, 0.4, "param %d variance", idx)
	}
}

func TestRun_DeterministicForFixedSeed(t *testing.T) {
	cfg := testConfig()
	s1, err := Run(context.Background(), gaussTarget{dim: 3}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)
	s2, err := Run(context.Background(), gaussTarget{dim: 3}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, s1.NumChains(), s2.NumChains())
	assert.Equal(t, s1.Chains, s2.Chains)
	assert.Equal(t, s1.Divergences, s2.Divergences)
}

func TestRun_SeedChangesDraws(t *testing.T) {
	cfg := testConfig()
	s1, err := Run(context.Background(), gaussTarget{dim: 2}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)

	cfg.Seed = 999
	s2, err := Run(context.Background(), gaussTarget{dim: 2}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)

	assert.NotEqual(t, s1.Chains[0][0], s2.Chains[0][0])
}

func TestRun_Thinning(t *testing.T) {
	cfg := testConfig()
	cfg.Thin = 5
	s, err := Run(context.Background(), gaussTarget{dim: 2}, cfg, rng.New(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 100, s.DrawsPerChain())
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	cfg.Iterations = 100000
	_, err := Run(ctx, gaussTarget{dim: 2}, cfg, rng.New(), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chains", func(c *Config) { c.Chains = 0 }},
		{"negative warmup", func(c *Config) { c.Warmup = -1 }},
		{"iterations not above warmup", func(c *Config) { c.Iterations = c.Warmup }},
		{"zero thin", func(c *Config) { c.Thin = 0 }},
		{"target accept at 1", func(c *Config) { c.TargetAccept = 1 }},
		{"zero max depth", func(c *Config) { c.MaxDepth = 0 }},
		{"zero step size", func(c *Config) { c.StepSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, core.ErrBadConfig)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4, cfg.Chains)
	assert.Equal(t, 300, cfg.Warmup)
	assert.Equal(t, 2000, cfg.Iterations)
	assert.Equal(t, 1, cfg.Thin)
	assert.Equal(t, int64(123), cfg.Seed)
	assert.Equal(t, 0.99, cfg.TargetAccept)
	assert.Equal(t, 15, cfg.MaxDepth)
	assert.Equal(t, 0.01, cfg.StepSize)
	assert.NoError(t, cfg.Validate())
}

func TestSamples_Transform(t *testing.T) {
	s := &Samples{
		Names:       []core.ParamName{"u"},
		Chains:      [][][]float64{{{0.0}, {1.0}}},
		Divergences: []int{0},
	}
	out := s.Transform([]core.ParamName{"v"}, func(p []float64) []float64 {
		return []float64{math.Exp(p[0])}
	})
	assert.Equal(t, []core.ParamName{"v"}, out.Names)
	assert.InDelta(t, 1.0, out.Chains[0][0][0], 1e-12)
	assert.InDelta(t, math.E, out.Chains[0][1][0], 1e-12)
}

func meanVar(xs []float64) (float64, float64) {
	m := 0.0
	for _, v := range xs {
		m += v
	}
	m /= float64(len(xs))
	s := 0.0
	for _, v := range xs {
		s += (v - m) * (v - m)
	}
	return m, s / float64(len(xs)-1)
}
