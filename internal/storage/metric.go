package storage

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Metric is the distance function of a collection. It is fixed when the
// collection is created.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric accepts "cosine" or "euclidean" in any case; empty means cosine.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
}

// Score returns the distance between query and v and the relevance derived
// from it. Cosine distance is 1-cos in [0, 2] and relevance is 1-d/2.
// Euclidean relevance is 1-d/(1+d). A zero-magnitude query, or for cosine a
// zero-magnitude stored vector, leaves relevance undefined.
func (m Metric) Score(query, v []float32) (float64, Relevance) {
	var dot, qq, vv, sq float64
	for i := range query {
		q, x := float64(query[i]), float64(v[i])
		dot += q * x
		qq += q * q
		vv += x * x
		sq += (q - x) * (q - x)
	}

	switch m {
	case MetricEuclidean:
		d := math.Sqrt(sq)
		if qq == 0 {
			return d, Relevance{}
		}
		return d, m.relevance(d)
	default:
		if qq == 0 || vv == 0 {
			return 1, Relevance{}
		}
		cos := dot / (math.Sqrt(qq) * math.Sqrt(vv))
		cos = math.Max(-1, math.Min(1, cos))
		d := 1 - cos
		return d, m.relevance(d)
	}
}

func (m Metric) relevance(d float64) Relevance {
	if m == MetricEuclidean {
		return Score(1 - d/(1+d))
	}
	return Score(1 - d/2)
}

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// rank orders hits by ascending distance with undefined relevance last and
// insertion order breaking ties, then keeps the first k.
func rank(hits []ScoredChunk, k int) []ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Relevance.Defined != b.Relevance.Defined {
			return a.Relevance.Defined
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Chunk.Seq < b.Chunk.Seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortBySeq(chunks []*Chunk) {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Seq < chunks[j].Seq })
}
