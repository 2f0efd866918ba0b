package rng

import (
	"context"
	"math/rand"

	"bayesprev/ports"
)

// Adapter implements ports.RNGPort with deterministic derived seeds
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

var _ ports.RNGPort = (*Adapter)(nil)

// SeededStream creates a deterministic random number generator for a named operation
func (a *Adapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if name != "" {
		seed += int64(hashString(name))
	}
	return rand.New(rand.NewSource(seed)), nil
}

// ChainStream creates a deterministic RNG stream for one sampler chain
func (a *Adapter) ChainStream(ctx context.Context, chain int, baseSeed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(baseSeed + int64(chain)*1_000_003)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2 algorithm
	}
	return hash
}
