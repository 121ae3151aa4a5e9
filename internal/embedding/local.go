package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// LocalDimension is the fixed output size of the offline placeholder
const LocalDimension = 384

// LocalProvider is an offline placeholder backend: it derives a unit vector
// deterministically from a hash of the text. Identical texts always map to
// identical vectors, so similarity search and the test suite work without a
// network, but the vectors carry no real semantics.
type LocalProvider struct{}

// NewLocalProvider creates the offline placeholder backend. It never fails
// and needs no credential.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string   { return "local" }
func (p *LocalProvider) Model() string  { return "hash-v1" }
func (p *LocalProvider) Dimension() int { return LocalDimension }

// Embed returns a deterministic, L2-normalized vector seeded from the text
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float64, LocalDimension)
	var norm float64
	for i := range vec {
		vec[i] = rng.NormFloat64()
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1 // can't happen in practice, but keep the unit-norm invariant
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
