package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mike-a-ellis/bookrag/internal/storage/migrations"
)

// IndexFileName is the database file created inside the persist directory.
const IndexFileName = "index.db"

// maxQueryIDs bounds the number of bind variables in one IN clause.
const maxQueryIDs = 500

// SQLiteBackend stores one collection in a SQLite database under a directory.
// Search is exact: every stored vector is scored.
type SQLiteBackend struct {
	db         *sql.DB
	path       string
	collection string
	metric     Metric
}

// OpenSQLite opens or creates <dir>/index.db for the given collection.
// An unreadable or damaged database file fails with ErrCorruptIndex.
func OpenSQLite(dir, collection string, metric Metric) (*SQLiteBackend, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if metric == "" {
		metric = MetricCosine
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating persist directory: %w", err)
	}
	dbPath := filepath.Join(dir, IndexFileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	b := &SQLiteBackend{
		db:         db,
		path:       dbPath,
		collection: collection,
		metric:     metric,
	}

	if err := b.checkIntegrity(); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return b, nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

func (b *SQLiteBackend) checkIntegrity() error {
	rows, err := b.db.Query("PRAGMA quick_check")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, b.path, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, b.path, err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptIndex, b.path, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrCorruptIndex, b.path, strings.Join(problems, "; "))
	}
	return nil
}

// migrate applies every NNN_name.up.sql file newer than the recorded version.
func (b *SQLiteBackend) migrate(fsys fs.FS) error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := b.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := b.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

type collectionInfo struct {
	metric    Metric
	dimension int
}

// info loads the collection row and checks it was created with b's metric.
func (b *SQLiteBackend) info(ctx context.Context) (*collectionInfo, error) {
	var (
		ci     collectionInfo
		metric string
	)
	err := b.db.QueryRowContext(ctx,
		"SELECT metric, dimension FROM collections WHERE name = ?", b.collection,
	).Scan(&metric, &ci.dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, b.collection)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", b.collection, err)
	}

	ci.metric = Metric(metric)
	if ci.metric != b.metric {
		return nil, fmt.Errorf("%w: collection %s uses %s, opened with %s",
			ErrMetricMismatch, b.collection, ci.metric, b.metric)
	}
	return &ci, nil
}

// EnsureCollection creates the collection on first use. Reopening an
// existing collection with a different metric fails with ErrMetricMismatch.
func (b *SQLiteBackend) EnsureCollection(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, metric) VALUES (?, ?)",
		b.collection, string(b.metric),
	)
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", b.collection, err)
	}
	_, err = b.info(ctx)
	return err
}

// Dimension returns the vector length of the collection, or 0 while it is empty.
func (b *SQLiteBackend) Dimension(ctx context.Context) (int, error) {
	ci, err := b.info(ctx)
	if err != nil {
		return 0, err
	}
	return ci.dimension, nil
}

// Exists returns the subset of ids stored in the collection.
func (b *SQLiteBackend) Exists(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if _, err := b.info(ctx); err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += maxQueryIDs {
		part := ids[start:min(start+maxQueryIDs, len(ids))]
		query, args := b.inQuery("SELECT chunk_id FROM chunks WHERE collection = ? AND chunk_id IN (%s)", part)

		rows, err := b.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("checking chunk ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning chunk id: %w", err)
			}
			present[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("checking chunk ids: %w", err)
		}
	}
	return present, nil
}

// Fetch returns stored chunks for ids ordered by insertion.
func (b *SQLiteBackend) Fetch(ctx context.Context, ids []string) ([]*Chunk, error) {
	ci, err := b.info(ctx)
	if err != nil {
		return nil, err
	}

	var chunks []*Chunk
	for start := 0; start < len(ids); start += maxQueryIDs {
		part := ids[start:min(start+maxQueryIDs, len(ids))]
		query, args := b.inQuery(`
			SELECT seq, chunk_id, page_id, local_index, start_offset, end_offset, text, embedding
			FROM chunks WHERE collection = ? AND chunk_id IN (%s)`, part)

		rows, err := b.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("fetching chunks: %w", err)
		}
		found, err := scanChunks(rows, ci.dimension)
		rows.Close()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, found...)
	}

	sortBySeq(chunks)
	return chunks, nil
}

// Insert writes chunks in one transaction. Ids already stored are left
// untouched. Every embedding must match the collection dimension; the first
// batch written to an empty collection fixes it.
func (b *SQLiteBackend) Insert(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	var metric string
	var dim int
	err = tx.QueryRowContext(ctx,
		"SELECT metric, dimension FROM collections WHERE name = ?", b.collection,
	).Scan(&metric, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, b.collection)
	}
	if err != nil {
		return fmt.Errorf("reading collection %s: %w", b.collection, err)
	}
	if Metric(metric) != b.metric {
		return fmt.Errorf("%w: collection %s uses %s", ErrMetricMismatch, b.collection, metric)
	}

	if dim == 0 {
		dim = len(chunks[0].Embedding)
		if _, err := tx.ExecContext(ctx,
			"UPDATE collections SET dimension = ? WHERE name = ?", dim, b.collection,
		); err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO chunks (collection, chunk_id, page_id, local_index, start_offset, end_offset, text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if len(c.Embedding) != dim || dim == 0 {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, c.ID, len(c.Embedding), dim)
		}
		if _, err := stmt.ExecContext(ctx,
			b.collection, c.ID, c.PageID, c.LocalIndex, c.Start, c.End, c.Text, float32SliceToBytes(c.Embedding),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

// Search scores every stored vector against query and returns the k best.
func (b *SQLiteBackend) Search(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	ci, err := b.info(ctx)
	if err != nil {
		return nil, err
	}
	if ci.dimension == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != ci.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), ci.dimension)
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT seq, chunk_id, page_id, local_index, start_offset, end_offset, text, embedding
		FROM chunks WHERE collection = ? ORDER BY seq`, b.collection)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", b.collection, err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows, ci.dimension)
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		d, rel := b.metric.Score(query, c.Embedding)
		hits[i] = ScoredChunk{Chunk: c, Distance: d, Relevance: rel}
	}
	return rank(hits, k), nil
}

// Count returns the number of chunks in the collection.
func (b *SQLiteBackend) Count(ctx context.Context) (int, error) {
	if _, err := b.info(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", b.collection,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Collections lists the collections stored in the database file by name.
func (b *SQLiteBackend) Collections(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return names, nil
}

// DropCollection deletes the collection and its chunks. Other collections in
// the same file are untouched.
func (b *SQLiteBackend) DropCollection(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning drop: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", b.collection); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", b.collection, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", b.collection)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", b.collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", b.collection, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, b.collection)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing drop: %w", err)
	}
	return nil
}

// Health verifies the database answers queries.
func (b *SQLiteBackend) Health(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) inQuery(format string, ids []string) (string, []any) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, b.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return fmt.Sprintf(format, placeholders), args
}

// scanChunks reads chunk rows and rejects embeddings that do not decode to
// dim float32 values.
func scanChunks(rows *sql.Rows, dim int) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var (
			c    Chunk
			blob []byte
		)
		if err := rows.Scan(&c.Seq, &c.ID, &c.PageID, &c.LocalIndex, &c.Start, &c.End, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if len(blob) != dim*4 {
			return nil, fmt.Errorf("%w: chunk %s embedding is %d bytes, expected %d",
				ErrCorruptIndex, c.ID, len(blob), dim*4)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks: %w", err)
	}
	return chunks, nil
}

// float32SliceToBytes encodes a vector as little-endian float32 values.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
