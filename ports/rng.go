package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// ChainStream creates a deterministic RNG stream for one sampler chain.
	// Identical (chain, baseSeed) always yields an identical stream so chain
	// ordering, not scheduling, determines the pooled draws.
	ChainStream(ctx context.Context, chain int, baseSeed int64) (*rand.Rand, error)
}
