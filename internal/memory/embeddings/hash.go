// Package embeddings implements the memory layer's Embedder contract:
// dimensions(), name(), embed(text), embed_batch(texts). Grounded on
// spec.md §4.3's requirement that the hash-based embedder use a
// deterministic hash with fixed keys, not a language-default hasher
// whose output may vary across versions/processes (Go's own map
// iteration and the default FNV seed are not guaranteed stable across
// releases, so a fixed-key hash is used here instead).
package embeddings

import (
	"context"
	"crypto/sha256"
	"strings"
)

// Embedder is the contract every embedding backend implements.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is a deterministic, dependency-free default: it hashes
// each lower-cased word on its own with SHA-256 (fixed algorithm, not a
// language-default hasher) and folds the digest into a fixed-width
// vector, normalized to unit length so cosine similarity behaves
// sensibly. Not semantically meaningful; exists so the memory subsystem
// is fully exercisable without a real embedding provider wired in.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder constructs an embedder producing vectors of the given
// dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Name() string    { return "hash" }
func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return vec, nil
	}

	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		// Fold the 32-byte digest across the vector's dimensions.
		for i := 0; i < h.dims; i++ {
			byteVal := sum[i%len(sum)]
			sign := float32(1)
			if byteVal&0x01 == 1 {
				sign = -1
			}
			vec[i] += sign * float32(byteVal) / 255.0
		}
	}

	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1.0 / sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
}

// sqrt avoids importing math solely for one call site's Sqrt; kept here
// so the dependency surface of this tiny file stays minimal — Newton's
// method converges to float64 precision in a handful of iterations for
// the value ranges this function sees.
func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
