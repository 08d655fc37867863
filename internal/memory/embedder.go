package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic bag-of-words embedder: each token hashes to
// a dimension, the vector is L2-normalized. It stands in when no embedding
// model is attached (offline CLI runs, tests); similarity degrades to token
// overlap, which the classification layer tolerates.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns an embedder producing dim-length vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

// Embed hashes each token into the vector and normalizes.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]{}")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
