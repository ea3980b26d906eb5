package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashingDimension is the vector size of a zero-value HashingEmbedder.
const DefaultHashingDimension = 512

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// HashingEmbedder maps text to a fixed-size bag of words using the hashing
// trick: each lowercased token and adjacent token pair adds ±1 to a bucket
// picked by its FNV-1a hash. Vectors are L2 normalized. It needs no network
// and is deterministic, which makes it suitable for offline indexing and tests.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a HashingEmbedder; dimension <= 0 uses the default.
func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashingDimension
	}
	return &HashingEmbedder{dimension: dimension}
}

// Dimension returns the length of produced vectors.
func (h *HashingEmbedder) Dimension() int {
	return h.dimension
}

// Embed implements storage.Embedder.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEmbedder) vector(text string) []float32 {
	acc := make([]float64, h.dimension)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	for i, tok := range tokens {
		h.add(acc, tok)
		if i > 0 {
			h.add(acc, tokens[i-1]+" "+tok)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, h.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (h *HashingEmbedder) add(acc []float64, feature string) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(h.dimension))
	if sum>>63 == 1 {
		acc[bucket]--
	} else {
		acc[bucket]++
	}
}
