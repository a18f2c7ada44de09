package threads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound means no thread exists with the given ID
var ErrNotFound = errors.New("thread not found")

// Thread is the metadata record for one conversation thread
type Thread struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	FileName string `json:"file_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps thread metadata in a sqlite database at
// {baseDir}/threads.db.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore opens the thread metadata database, creating it if needed
func NewStore(baseDir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, "threads.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open threads database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		file_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_owner ON threads(owner_id, created_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create threads schema: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With().Str("component", "threads").Logger(),
	}

	s.logger.Info().Str("path", dbPath).Msg("Thread store initialized")
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Create creates a thread for an owner. An empty name gets a generated
// placeholder the owner can rename later.
func (s *Store) Create(ctx context.Context, ownerID, name string) (*Thread, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID cannot be empty")
	}

	if name == "" {
		suffix, err := gonanoid.New(8)
		if err != nil {
			return nil, fmt.Errorf("failed to generate thread name: %w", err)
		}
		name = "chat-" + suffix
	}

	now := time.Now().UTC()
	thread := &Thread{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, owner_id, name, file_name, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		thread.ID, thread.OwnerID, thread.Name, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	s.logger.Info().
		Str("thread_id", thread.ID).
		Str("owner_id", ownerID).
		Str("name", name).
		Msg("Thread created")

	return thread, nil
}

// Get fetches one thread by ID
func (s *Store) Get(ctx context.Context, threadID string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, file_name, created_at, updated_at FROM threads WHERE id = ?`,
		threadID,
	)

	var t Thread
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.FileName, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thread: %w", err)
	}
	return &t, nil
}

// Rename changes a thread's display name
func (s *Store) Rename(ctx context.Context, threadID, name string) error {
	if name == "" {
		return fmt.Errorf("thread name cannot be empty")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to rename thread: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug().Str("thread_id", threadID).Str("name", name).Msg("Thread renamed")
	return nil
}

// SetFileName records the name of the document attached to a thread.
// Once set, the attachment name never changes.
func (s *Store) SetFileName(ctx context.Context, threadID, fileName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET file_name = ?, updated_at = ? WHERE id = ? AND file_name = ''`,
		fileName, time.Now().UTC(), threadID,
	)
	if err != nil {
		return fmt.Errorf("failed to set thread file name: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish a missing thread from an already-attached one
		if _, err := s.Get(ctx, threadID); err != nil {
			return err
		}
		s.logger.Debug().Str("thread_id", threadID).Msg("Thread already has an attachment, keeping it")
	}
	return nil
}

// ListByOwner returns an owner's threads, newest first
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, file_name, created_at, updated_at FROM threads WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.FileName, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan thread row: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read thread rows: %w", err)
	}
	return threads, nil
}

// Delete removes a thread's metadata
func (s *Store) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info().Str("thread_id", threadID).Msg("Thread deleted")
	return nil
}
