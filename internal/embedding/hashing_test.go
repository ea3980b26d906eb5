package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	h := NewHashingEmbedder(128)
	ctx := context.Background()

	first, err := h.Embed(ctx, []string{"Call me Ishmael.", "call ME ishmael"})
	require.NoError(t, err)
	second, err := h.Embed(ctx, []string{"Call me Ishmael."})
	require.NoError(t, err)

	assert.Len(t, first[0], 128)
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[0], first[1], "case and punctuation are ignored")
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	h := NewHashingEmbedder(0)
	assert.Equal(t, DefaultHashingDimension, h.Dimension())

	vectors, err := h.Embed(context.Background(), []string{"the white whale", "   ...  "})
	require.NoError(t, err)

	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	for _, v := range vectors[1] {
		assert.Zero(t, v)
	}
}

func TestHashingEmbedder_SimilarTextsAreCloser(t *testing.T) {
	h := NewHashingEmbedder(1024)
	vectors, err := h.Embed(context.Background(), []string{
		"the captain hunted the white whale across the sea",
		"the white whale escaped the captain",
		"interest rates rose sharply in the bond market",
	})
	require.NoError(t, err)

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestHashingEmbedder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashingEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
