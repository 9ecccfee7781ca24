package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	_ "modernc.org/sqlite"

	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
)

// Store is the single-file chunk store: one sqlite database (chunks,
// chunks_vec, store_meta) plus a bleve full-text index sidecar and an
// in-memory hnsw vector graph rebuilt from chunks_vec on Open.
//
// "Single file" holds at the level callers interact with the store: one
// Open(path) call, one artifact to back up or delete. The bleve sidecar
// directory (<path>.bleve/) is the one place this isn't literally true on
// disk; see DESIGN.md.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	fts  bleve.Index
	vec  *vectorIndex
	lock *fileLock

	path string
	dim  int

	closed bool
}

// Open opens (creating if necessary) a store at path with embedding
// dimension dim. If the store already exists with a different recorded
// dimension, Open fails.
func Open(path string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "dimension must be positive")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("creating store directory: %w", err))
	}

	lock := newFileLock(dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	if !acquired {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "store is locked by another process")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("opening sqlite database: %w", err))
	}
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("setting pragma: %w", err))
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("initializing schema: %w", err))
	}

	recordedDim, err := loadOrInitMeta(db, dim)
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	if recordedDim != dim {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, apperrors.New(apperrors.KindDimensionMismatch,
			fmt.Sprintf("store was created with dimension %d, cannot open with %d", recordedDim, dim))
	}

	ftsPath := path + ".bleve"
	fts, err := openFTSIndex(ftsPath)
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	vec := newVectorIndex(dim)
	if err := rebuildVectorIndex(db, vec); err != nil {
		_ = fts.Close()
		_ = db.Close()
		_ = lock.Unlock()
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("rebuilding vector index: %w", err))
	}

	return &Store{db: db, fts: fts, vec: vec, lock: lock, path: path, dim: dim}, nil
}

func loadOrInitMeta(db *sql.DB, dim int) (int, error) {
	var recorded, version int
	err := db.QueryRow(`SELECT dimension, schema_version FROM store_meta WHERE id = 1`).Scan(&recorded, &version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec(`INSERT INTO store_meta(id, dimension, schema_version) VALUES (1, ?, ?)`, dim, schemaVersion); err != nil {
			return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("recording store metadata: %w", err))
		}
		return dim, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("reading store metadata: %w", err))
	}
	return recorded, nil
}

func rebuildVectorIndex(db *sql.DB, vec *vectorIndex) error {
	rows, err := db.Query(`SELECT id, embedding FROM chunks_vec`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		embedding, err := decodeEmbedding(blob)
		if err != nil {
			return err
		}
		if err := vec.Add(context.Background(), id, embedding); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the store's sqlite handle, fts index, and file lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.fts.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing store: %v", errs)
	}
	return nil
}

// Insert writes one chunk atomically across the three logical tables.
func (s *Store) Insert(ctx context.Context, source string, chunkIndex int, content string, embedding []float32, metadata map[string]string) (int64, error) {
	ids, err := s.InsertBatch(ctx, []InsertItem{{
		Source:     source,
		ChunkIndex: chunkIndex,
		Content:    content,
		Embedding:  embedding,
		Metadata:   metadata,
	}})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// InsertBatch writes all items in a single transaction: either all succeed
// or none do.
func (s *Store) InsertBatch(ctx context.Context, items []InsertItem) ([]int64, error) {
	if len(items) == 0 {
		return nil, nil
	}

	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			return nil, apperrors.New(apperrors.KindInvalidArgument, "content must not be empty")
		}
		if len(item.Embedding) != s.dim {
			return nil, apperrors.New(apperrors.KindDimensionMismatch,
				fmt.Sprintf("expected dimension %d, got %d", s.dim, len(item.Embedding)))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ids := make([]int64, len(items))
	now := time.Now()

	for i, item := range items {
		metaJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidArgument, err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(source, chunk_index, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			item.Source, item.ChunkIndex, item.Content, string(metaJSON), now.Unix())
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("inserting chunk: %w", err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}

		blob := encodeEmbedding(item.Embedding)
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_vec(id, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("inserting embedding: %w", err))
		}

		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("committing transaction: %w", err))
	}
	committed = true

	// sqlite side is durable; now update the fts and in-memory vector
	// indexes. A failure here is compensated by deleting the just-committed
	// sqlite rows, preserving the "all or nothing per source" invariant as
	// seen from any caller that re-reads the store afterward.
	batch := s.fts.NewBatch()
	for i, item := range items {
		if err := batch.Index(ftsDocKey(ids[i]), ftsDocument{Content: item.Content}); err != nil {
			s.compensateFailedInsert(ctx, ids)
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("indexing fts document: %w", err))
		}
	}
	if err := s.fts.Batch(batch); err != nil {
		s.compensateFailedInsert(ctx, ids)
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("committing fts batch: %w", err))
	}

	for i, item := range items {
		if err := s.vec.Add(ctx, ids[i], item.Embedding); err != nil {
			s.compensateFailedInsert(ctx, ids)
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
	}

	return ids, nil
}

// compensateFailedInsert removes rows that were committed to sqlite but
// whose fts/vector side effects could not complete, so a partial failure
// never leaves the three tables out of lockstep.
func (s *Store) compensateFailedInsert(ctx context.Context, ids []int64) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")
	_, _ = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, inClause), args...)
	_, _ = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks_vec WHERE id IN (%s)`, inClause), args...)
	for _, id := range ids {
		_ = ftsDeleteChunk(s.fts, id)
	}
	s.vec.Delete(ctx, ids)
}

// DeleteSource removes all chunks for an exact source match, or for the
// unique source matching a non-empty suffix. If the suffix matches more
// than one distinct source, it fails with AmbiguousSource and lists
// candidates; no deletion is performed in that case.
func (s *Store) DeleteSource(ctx context.Context, source string) (int, error) {
	if source == "" {
		return 0, apperrors.New(apperrors.KindInvalidArgument, "source must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	resolved, err := s.resolveSource(ctx, source)
	if err != nil {
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE source = ?`, resolved)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, resolved); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM chunks_vec WHERE id IN (%s)`, inClause), args...); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	committed = true

	for _, id := range ids {
		_ = ftsDeleteChunk(s.fts, id)
	}
	s.vec.Delete(ctx, ids)

	return len(ids), nil
}

// resolveSource implements the exact-or-unique-suffix deletion rule.
// Suffix matching is always case-sensitive: source is an opaque key chosen
// by the caller, not a filesystem path the store normalizes itself.
func (s *Store) resolveSource(ctx context.Context, source string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM chunks`)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	defer rows.Close()

	var exact bool
	var matches []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return "", apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		if src == source {
			exact = true
		}
		if strings.HasSuffix(src, source) {
			matches = append(matches, src)
		}
	}
	if err := rows.Err(); err != nil {
		return "", apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	if exact {
		return source, nil
	}
	switch len(matches) {
	case 0:
		return source, nil // no rows match; DeleteSource returns 0 naturally
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", apperrors.New(apperrors.KindAmbiguousSource,
			fmt.Sprintf("suffix %q matches %d sources", source, len(matches))).WithCandidates(matches)
	}
}

// SearchBM25 runs a sanitized lexical query and returns up to limit results
// in descending score order with 1-based ranks.
func (s *Store) SearchBM25(ctx context.Context, sanitizedQuery string, limit int) ([]BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	hits, err := ftsSearch(ctx, s.fts, sanitizedQuery, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	results := make([]BM25Result, 0, len(hits))
	for i, hit := range hits {
		var id int64
		if _, err := fmt.Sscanf(hit.ID, "%d", &id); err != nil {
			continue
		}
		results = append(results, BM25Result{ID: id, Rank: i + 1, Score: hit.Score})
	}
	return results, nil
}

// SearchVector returns up to limit nearest neighbors by cosine distance,
// ranked 1-based ascending (lower distance first).
func (s *Store) SearchVector(ctx context.Context, queryVec []float32, limit int) ([]VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}
	return s.vec.Search(ctx, queryVec, limit)
}

// GetChunks loads full chunk rows for the given ids, in no particular
// order; callers reorder to match their own rank lists.
func (s *Store) GetChunks(ctx context.Context, ids []int64) (map[int64]Chunk, error) {
	if len(ids) == 0 {
		return map[int64]Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, source, chunk_index, content, metadata, created_at FROM chunks WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	defer rows.Close()

	out := make(map[int64]Chunk, len(ids))
	for rows.Next() {
		var c Chunk
		var metaJSON string
		var createdAtUnix int64
		if err := rows.Scan(&c.ID, &c.Source, &c.ChunkIndex, &c.Content, &metaJSON, &createdAtUnix); err != nil {
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		c.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// Stats reports aggregate counts over the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM chunks`).
		Scan(&stats.ChunkCount, &stats.Bytes); err != nil {
		return Stats{}, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) as n FROM chunks GROUP BY source ORDER BY n DESC, source ASC LIMIT 10`)
	if err != nil {
		return Stats{}, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	defer rows.Close()

	sourceSet := map[string]struct{}{}
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return Stats{}, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		stats.TopSources = append(stats.TopSources, sc)
		sourceSet[sc.Source] = struct{}{}
	}

	var sourceCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT source) FROM chunks`).Scan(&sourceCount); err != nil {
		return Stats{}, apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}
	stats.SourceCount = sourceCount

	return stats, nil
}

// Dimensions returns the store's fixed embedding dimension.
func (s *Store) Dimensions() int { return s.dim }

// VectorOrphanStats reports the live vector graph's node and tombstone
// counts, used by the background compactor to decide whether a rebuild is
// worth running.
func (s *Store) VectorOrphanStats() (nodes, orphans int) {
	st := s.vec.stats()
	return st.Nodes, st.Orphans
}

// Compact rebuilds the in-memory vector graph from chunks_vec, dropping
// every tombstoned (deleted) node. Unlike Open's rebuildVectorIndex, which
// runs once at startup, Compact can run repeatedly against a live store: it
// builds the replacement graph from a snapshot query, then swaps it in
// under the vector index's own lock so concurrent searches never see a
// half-built graph.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}
	db := s.db
	s.mu.RUnlock()

	rows, err := db.QueryContext(ctx, `SELECT id, embedding FROM chunks_vec`)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, fmt.Errorf("reading embeddings for compaction: %w", err))
	}
	defer rows.Close()

	live := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		embedding, err := decodeEmbedding(blob)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStoreUnavailable, err)
		}
		normalizeInPlace(embedding)
		live[id] = embedding
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStoreUnavailable, err)
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return apperrors.New(apperrors.KindStoreUnavailable, "store is closed")
	}

	s.vec.rebuild(live)
	return nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt embedding blob: length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
