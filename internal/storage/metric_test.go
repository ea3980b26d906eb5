package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, m)

	m, err = ParseMetric(" Euclidean ")
	require.NoError(t, err)
	assert.Equal(t, MetricEuclidean, m)

	_, err = ParseMetric("manhattan")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestMetricScore_Cosine(t *testing.T) {
	d, rel := MetricCosine.Score([]float32{1, 0}, []float32{2, 0})
	assert.InDelta(t, 0, d, 1e-9)
	assert.True(t, rel.Defined)
	assert.InDelta(t, 1, rel.Score, 1e-9)

	d, rel = MetricCosine.Score([]float32{1, 0}, []float32{0, 1})
	assert.InDelta(t, 1, d, 1e-9)
	assert.InDelta(t, 0.5, rel.Score, 1e-9)

	d, rel = MetricCosine.Score([]float32{1, 0}, []float32{-1, 0})
	assert.InDelta(t, 2, d, 1e-9)
	assert.InDelta(t, 0, rel.Score, 1e-9)
}

func TestMetricScore_Euclidean(t *testing.T) {
	d, rel := MetricEuclidean.Score([]float32{0, 3}, []float32{4, 0})
	assert.InDelta(t, 5, d, 1e-9)
	assert.InDelta(t, 1.0/6.0, rel.Score, 1e-9)

	d, rel = MetricEuclidean.Score([]float32{1, 1}, []float32{1, 1})
	assert.InDelta(t, 0, d, 1e-9)
	assert.InDelta(t, 1, rel.Score, 1e-9)
}

func TestMetricScore_ZeroMagnitude(t *testing.T) {
	_, rel := MetricCosine.Score([]float32{0, 0}, []float32{1, 0})
	assert.False(t, rel.Defined)

	_, rel = MetricCosine.Score([]float32{1, 0}, []float32{0, 0})
	assert.False(t, rel.Defined)

	d, rel := MetricEuclidean.Score([]float32{0, 0}, []float32{3, 4})
	assert.InDelta(t, 5, d, 1e-9)
	assert.False(t, rel.Defined)

	_, rel = MetricEuclidean.Score([]float32{3, 4}, []float32{0, 0})
	assert.True(t, rel.Defined)
}

func TestRelevance_Format(t *testing.T) {
	assert.Equal(t, "N/A", Relevance{}.String())
	assert.Equal(t, "0.8125", Score(0.8125).String())

	data, err := json.Marshal(struct {
		A Relevance `json:"a"`
		B Relevance `json:"b"`
	}{Score(0.5), Relevance{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 0.5, "b": "N/A"}`, string(data))

	assert.True(t, Score(0.5).Meets(0.5))
	assert.False(t, Score(0.4).Meets(0.5))
	assert.False(t, Relevance{}.Meets(0))
}

func TestRank_OrderAndTies(t *testing.T) {
	hits := []ScoredChunk{
		{Chunk: &Chunk{ID: "na", Seq: 1}, Distance: 1},
		{Chunk: &Chunk{ID: "far", Seq: 2}, Distance: 0.9, Relevance: Score(0.55)},
		{Chunk: &Chunk{ID: "tie-late", Seq: 5}, Distance: 0.1, Relevance: Score(0.95)},
		{Chunk: &Chunk{ID: "tie-early", Seq: 3}, Distance: 0.1, Relevance: Score(0.95)},
	}

	ranked := rank(hits, 10)
	var ids []string
	for _, h := range ranked {
		ids = append(ids, h.Chunk.ID)
	}
	assert.Equal(t, []string{"tie-early", "tie-late", "far", "na"}, ids)

	assert.Len(t, rank(ranked, 2), 2)
}

func TestRank_TieAtCutKeepsInsertionOrder(t *testing.T) {
	// Candidates arrive in server order; the latest of three equal hits first.
	candidates := []ScoredChunk{
		{Chunk: &Chunk{ID: "best", Seq: 9}, Distance: 0.05, Relevance: Score(0.97)},
		{Chunk: &Chunk{ID: "third", Seq: 8}, Distance: 0.2, Relevance: Score(0.9)},
		{Chunk: &Chunk{ID: "second", Seq: 4}, Distance: 0.2, Relevance: Score(0.9)},
		{Chunk: &Chunk{ID: "first", Seq: 2}, Distance: 0.2, Relevance: Score(0.9)},
	}
	require.GreaterOrEqual(t, int(searchLimit(2)), len(candidates))

	ranked := rank(candidates, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "best", ranked[0].Chunk.ID)
	assert.Equal(t, "first", ranked[1].Chunk.ID)
}

func TestSearchLimit(t *testing.T) {
	assert.Equal(t, uint64(1+tieCandidates), searchLimit(1))
	assert.Equal(t, uint64(20+tieCandidates), searchLimit(20))
}
