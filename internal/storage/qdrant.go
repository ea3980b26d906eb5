package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// vectorName is the named vector holding chunk embeddings.
const vectorName = "content"

// tieCandidates is how many points past k a search requests so chunks tied
// at the k-th distance are ordered by rank rather than by Qdrant.
const tieCandidates = 10

func searchLimit(k int) uint64 {
	return uint64(k + tieCandidates)
}

// QdrantConfig locates a Qdrant server and the collection to use.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int // Required to create the collection
	Metric     Metric
}

// QdrantBackend stores a collection in Qdrant. Point ids are UUIDv5 values
// derived from the collection and chunk id so re-inserting a chunk addresses
// the same point.
type QdrantBackend struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     Metric
}

// NewQdrantBackend connects to Qdrant and waits for it to report healthy.
// It fails with ErrQdrantUnreachable when the server does not answer.
func NewQdrantBackend(ctx context.Context, cfg QdrantConfig) (*QdrantBackend, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	b := &QdrantBackend{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     cfg.Metric,
	}

	if err := b.retry(ctx, func() error { return b.Health(ctx) }); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return b, nil
}

// retry runs op with exponential backoff: 500ms initial, 10s max interval,
// 30s overall.
func (b *QdrantBackend) retry(ctx context.Context, op func() error) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(op, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (b *QdrantBackend) Health(ctx context.Context) error {
	result, err := b.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (b *QdrantBackend) distance() qdrant.Distance {
	if b.metric == MetricEuclidean {
		return qdrant.Distance_Euclid
	}
	return qdrant.Distance_Cosine
}

// EnsureCollection creates the collection with the configured dimension and
// metric if it does not exist yet.
func (b *QdrantBackend) EnsureCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	if b.dimension <= 0 {
		return fmt.Errorf("%w: creating collection %s requires a dimension", ErrDimensionMismatch, b.collection)
	}

	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(b.dimension),
				Distance: b.distance(),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = b.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: b.collection,
		FieldName:      "chunk_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field chunk_id: %w", err)
	}
	return nil
}

func (b *QdrantBackend) requireCollection(ctx context.Context) error {
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, b.collection)
	}
	return nil
}

// Dimension returns the configured vector size.
func (b *QdrantBackend) Dimension(ctx context.Context) (int, error) {
	if err := b.requireCollection(ctx); err != nil {
		return 0, err
	}
	return b.dimension, nil
}

func (b *QdrantBackend) pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.collection+"/"+chunkID)).String())
}

func (b *QdrantBackend) get(ctx context.Context, ids []string, payload *qdrant.WithPayloadSelector) ([]*qdrant.RetrievedPoint, error) {
	if err := b.requireCollection(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = b.pointID(id)
	}

	points, err := b.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: b.collection,
		Ids:            pointIDs,
		WithPayload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	return points, nil
}

// Exists returns the subset of ids stored in the collection.
func (b *QdrantBackend) Exists(ctx context.Context, ids []string) (map[string]struct{}, error) {
	points, err := b.get(ctx, ids, qdrant.NewWithPayloadInclude("chunk_id"))
	if err != nil {
		return nil, err
	}
	present := make(map[string]struct{}, len(points))
	for _, p := range points {
		present[p.Payload["chunk_id"].GetStringValue()] = struct{}{}
	}
	return present, nil
}

// Fetch returns stored chunks for ids ordered by insertion. Embeddings are
// not read back from Qdrant.
func (b *QdrantBackend) Fetch(ctx context.Context, ids []string) ([]*Chunk, error) {
	points, err := b.get(ctx, ids, qdrant.NewWithPayload(true))
	if err != nil {
		return nil, err
	}
	chunks := make([]*Chunk, len(points))
	for i, p := range points {
		chunks[i] = chunkFromPayload(p.Payload)
	}
	sortBySeq(chunks)
	return chunks, nil
}

// Insert upserts chunks as points. Ids already stored are filtered out first
// so their insertion order is preserved.
func (b *QdrantBackend) Insert(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if len(c.Embedding) != b.dimension {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), b.dimension)
		}
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := b.Exists(ctx, ids)
	if err != nil {
		return err
	}

	next, err := b.Count(ctx)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := existing[c.ID]; ok {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id: b.pointID(c.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(c.Embedding...),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":    c.ID,
				"page_id":     c.PageID,
				"local_index": c.LocalIndex,
				"start":       c.Start,
				"end":         c.End,
				"text":        c.Text,
				"seq":         next + len(points) + 1,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	err = b.retry(ctx, func() error {
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: b.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search queries the named vector and converts Qdrant scores to distances.
// Cosine scores are similarities (distance 1-score); Euclid scores are
// distances already. A few extra candidates are fetched so ties at the cut
// keep insertion order.
func (b *QdrantBackend) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if err := b.requireCollection(ctx); err != nil {
		return nil, err
	}
	if len(query) != b.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), b.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	using := vectorName
	results, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Limit:          qdrant.PtrOf(searchLimit(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	zeroQuery := magnitude(query) == 0
	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		d := float64(r.Score)
		if b.metric == MetricCosine {
			d = 1 - d
		}
		rel := b.metric.relevance(d)
		if zeroQuery {
			rel = Relevance{}
		}
		hits = append(hits, ScoredChunk{
			Chunk:     chunkFromPayload(r.Payload),
			Distance:  d,
			Relevance: rel,
		})
	}
	return rank(hits, k), nil
}

// Count returns the exact number of points in the collection.
func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	if err := b.requireCollection(ctx); err != nil {
		return 0, err
	}
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// Collections lists every collection on the Qdrant server by name.
func (b *QdrantBackend) Collections(ctx context.Context) ([]string, error) {
	names, err := b.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// DropCollection deletes the collection with all of its points.
func (b *QdrantBackend) DropCollection(ctx context.Context) error {
	if err := b.requireCollection(ctx); err != nil {
		return err
	}
	if err := b.client.DeleteCollection(ctx, b.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (b *QdrantBackend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) *Chunk {
	return &Chunk{
		ID:         payload["chunk_id"].GetStringValue(),
		PageID:     int(payload["page_id"].GetIntegerValue()),
		LocalIndex: int(payload["local_index"].GetIntegerValue()),
		Start:      int(payload["start"].GetIntegerValue()),
		End:        int(payload["end"].GetIntegerValue()),
		Text:       payload["text"].GetStringValue(),
		Seq:        payload["seq"].GetIntegerValue(),
	}
}
