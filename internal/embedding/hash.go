package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEngine is a deterministic bag-of-words embedder used when no API key
// is configured and in tests. Tokens are FNV-hashed into a fixed number of
// buckets and the vector is L2-normalized, so identical texts always map to
// identical vectors.
type HashEngine struct {
	dims int
}

// NewHashEngine builds a hash embedder with the given dimensionality.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed maps text to a normalized term-frequency vector.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?()[]{}\"'")
		if len(token) < 2 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dims)]++
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag > 0 {
		norm := float32(math.Sqrt(mag))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}
