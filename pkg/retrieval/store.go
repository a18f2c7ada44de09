package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/phoenixlabs/phoenix/internal/observability"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// IndexStore persists one sqlite-vec index file per key under
// {base}/data/index_store/{doc_type}/{owner}/{thread}/{thread}.db.
type IndexStore struct {
	baseDir  string
	embedder EmbeddingProvider
	logger   zerolog.Logger
}

// NewIndexStore creates an index store rooted at baseDir
func NewIndexStore(baseDir string, embedder EmbeddingProvider, logger zerolog.Logger) *IndexStore {
	return &IndexStore{
		baseDir:  baseDir,
		embedder: embedder,
		logger:   logger.With().Str("component", "index_store").Logger(),
	}
}

// IndexDir returns the directory holding the index for a key.
func (s *IndexStore) IndexDir(key Key) string {
	return filepath.Join(s.baseDir, "data", "index_store", string(key.DocType), key.OwnerID, key.ThreadID)
}

func (s *IndexStore) dbPath(key Key) string {
	return filepath.Join(s.IndexDir(key), key.ThreadID+".db")
}

// Exists reports whether a persisted index exists for the key, without
// opening or creating anything.
func (s *IndexStore) Exists(key Key) bool {
	_, err := os.Stat(s.dbPath(key))
	return err == nil
}

// Build persists chunks and their vectors as a new index and returns a
// retriever over it. Vectors must align 1:1 with chunks.
func (s *IndexStore) Build(ctx context.Context, key Key, chunks []Chunk, vectors [][]float32) (*Retriever, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("cannot build index for %s with no chunks", key)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("vector count %d does not match chunk count %d", len(vectors), len(chunks))
	}

	if err := os.MkdirAll(s.IndexDir(key), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := s.open(key)
	if err != nil {
		return nil, err
	}

	if err := s.initSchema(db, len(vectors[0])); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, err
	}
	defer tx.Rollback()

	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s#%d", key.ThreadID, i)

		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chunks (id, text, metadata) VALUES (?, ?, ?)",
			chunkID, chunk.Text, string(metadata),
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to insert chunk: %w", err)
		}

		vecJSON, err := json.Marshal(vectors[i])
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to marshal vector: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO embeddings (chunk_id, embedding) VALUES (?, ?)",
			chunkID, string(vecJSON),
		); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('created_at', ?), ('chunk_count', ?)",
		time.Now().UTC().Format(time.RFC3339), fmt.Sprintf("%d", len(chunks)),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to write index metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to commit index: %w", err)
	}

	observability.SetIndexChunks(len(chunks))
	s.logger.Info().
		Str("key", key.String()).
		Int("chunks", len(chunks)).
		Msg("Index built")

	return &Retriever{db: db, key: key, embedder: s.embedder, logger: s.logger}, nil
}

// Load opens an existing index for the key. Absence is reported as
// ErrNoSource without creating directories or files.
func (s *IndexStore) Load(ctx context.Context, key Key) (*Retriever, error) {
	if !s.Exists(key) {
		return nil, ErrNoSource
	}

	db, err := s.open(key)
	if err != nil {
		return nil, err
	}

	// Reject half-written indexes left by a crash mid-build
	var count string
	err = db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'chunk_count'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index for %s is not readable: %w", key, err)
	}

	s.logger.Debug().Str("key", key.String()).Msg("Index loaded from disk")

	return &Retriever{db: db, key: key, embedder: s.embedder, logger: s.logger}, nil
}

// Remove deletes the index directory for a key. Used to clean up after a
// failed build.
func (s *IndexStore) Remove(key Key) error {
	return os.RemoveAll(s.IndexDir(key))
}

func (s *IndexStore) open(key Key) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", s.dbPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

func (s *IndexStore) initSchema(db *sql.DB, dimension int) error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, dimension)
	if _, err := db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Retriever is a handle over one persisted index.
type Retriever struct {
	db       *sql.DB
	key      Key
	embedder EmbeddingProvider
	logger   zerolog.Logger
}

// Key returns the key this retriever serves.
func (r *Retriever) Key() Key {
	return r.key
}

// Query embeds the query text and returns the k nearest chunks by cosine
// distance, nearest first.
func (r *Retriever) Query(ctx context.Context, query string, k int) ([]Chunk, error) {
	start := time.Now()
	defer func() { observability.RecordRetrievalQuery(time.Since(start)) }()

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	vecJSON, err := json.Marshal(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query vector: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT c.text, c.metadata
		FROM embeddings e
		JOIN chunks c ON c.id = e.chunk_id
		ORDER BY vec_distance_cosine(e.embedding, ?) ASC
		LIMIT ?
	`, string(vecJSON), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var text, metadataJSON string
		if err := rows.Scan(&text, &metadataJSON); err != nil {
			return nil, err
		}

		var metadata map[string]string
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}

		chunks = append(chunks, Chunk{Text: text, Metadata: metadata})
	}

	return chunks, rows.Err()
}

// Close releases the underlying database handle.
func (r *Retriever) Close() error {
	return r.db.Close()
}
