package sampler

import (
	"fmt"

	"bayesprev/domain/core"
)

// Config holds the sampler tuning surface
type Config struct {
	Chains       int     // independent chains, >= 1
	Warmup       int     // discarded adaptation iterations per chain
	Iterations   int     // total iterations per chain, > Warmup
	Thin         int     // keep every k-th post-warmup draw
	Seed         int64   // base seed; chain streams derive from it
	TargetAccept float64 // dual-averaging adaptation target, in (0,1)
	MaxDepth     int     // trajectory doubling cap
	StepSize     float64 // initial integrator step
}

// DefaultConfig returns the standard tuning used for production fits
func DefaultConfig() Config {
	return Config{
		Chains:       4,
		Warmup:       300,
		Iterations:   2000,
		Thin:         1,
		Seed:         123,
		TargetAccept: 0.99,
		MaxDepth:     15,
		StepSize:     0.01,
	}
}

// Validate fails fast on an unusable configuration
func (c Config) Validate() error {
	if c.Chains < 1 {
		return core.NewConfigError("chains", fmt.Sprintf("must be >= 1, got %d", c.Chains))
	}
	if c.Warmup < 0 {
		return core.NewConfigError("warmup", fmt.Sprintf("must be >= 0, got %d", c.Warmup))
	}
	if c.Iterations <= c.Warmup {
		return core.NewConfigError("iterations",
			fmt.Sprintf("must exceed warmup %d, got %d", c.Warmup, c.Iterations))
	}
	if c.Thin < 1 {
		return core.NewConfigError("thin", fmt.Sprintf("must be >= 1, got %d", c.Thin))
	}
	if c.TargetAccept <= 0 || c.TargetAccept >= 1 {
		return core.NewConfigError("target_accept",
			fmt.Sprintf("must be in (0,1), got %v", c.TargetAccept))
	}
	if c.MaxDepth < 1 {
		return core.NewConfigError("max_depth", fmt.Sprintf("must be >= 1, got %d", c.MaxDepth))
	}
	if c.StepSize <= 0 {
		return core.NewConfigError("step_size", fmt.Sprintf("must be > 0, got %v", c.StepSize))
	}
	return nil
}
