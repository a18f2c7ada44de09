package checkpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/phoenixlabs/phoenix/internal/observability"
	"github.com/phoenixlabs/phoenix/internal/tracing"
	"github.com/phoenixlabs/phoenix/pkg/chat"
)

// entry is one JSONL line in a checkpoint file. Message lines carry a
// conversation message; the final quota line carries the tool-call count
// consumed by the current user query.
type entry struct {
	Type          string        `json:"type"` // message, quota
	Message       *chat.Message `json:"message,omitempty"`
	ToolCallCount int           `json:"tool_call_count,omitempty"`
}

// Store persists conversation state as one JSONL file per thread. Saves
// rewrite the file through a temp-file rename so a crash never leaves a
// half-written checkpoint behind.
type Store struct {
	dir    string
	logger zerolog.Logger

	locksMu    sync.Mutex
	writeLocks map[string]*sync.Mutex
}

// NewStore creates a checkpoint store rooted at {baseDir}/checkpoints
func NewStore(baseDir string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	dir := filepath.Join(baseDir, "checkpoints")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		logger:     logger.With().Str("component", "checkpoint").Logger(),
		writeLocks: make(map[string]*sync.Mutex),
	}

	s.logger.Info().Str("dir", dir).Msg("Checkpoint store initialized")
	return s, nil
}

// validateThreadID rejects thread IDs that could escape the store directory
func validateThreadID(threadID string) error {
	if threadID == "" {
		return fmt.Errorf("thread ID cannot be empty")
	}
	if strings.Contains(threadID, "..") {
		return fmt.Errorf("thread ID cannot contain '..'")
	}
	if strings.ContainsAny(threadID, "/\\") {
		return fmt.Errorf("thread ID cannot contain path separators")
	}
	if strings.Contains(threadID, "\x00") {
		return fmt.Errorf("thread ID cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(threadID string) string {
	return filepath.Join(s.dir, threadID+".jsonl")
}

// writeLock gets or creates the write lock for a thread
func (s *Store) writeLock(threadID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.writeLocks[threadID]
	if !ok {
		lock = &sync.Mutex{}
		s.writeLocks[threadID] = lock
	}
	return lock
}

// Load reads the checkpoint for a thread. A thread with no checkpoint file
// yields an empty state, not an error. Malformed lines are skipped so one
// corrupted entry does not take the whole conversation down.
func (s *Store) Load(ctx context.Context, threadID string) (chat.State, error) {
	ctx, span := tracing.StartSpan(ctx, "phoenix.checkpoint", "load",
		attribute.String("thread_id", threadID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	defer func() {
		observability.RecordCheckpointLoad(time.Since(start))
	}()

	if err := validateThreadID(threadID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chat.State{}, err
	}

	path := s.path(threadID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return chat.State{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chat.State{}, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var state chat.State
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logger.Warn().
				Str("thread_id", threadID).
				Int("line", lineNum).
				Err(err).
				Msg("Failed to parse checkpoint line, skipping")
			continue
		}

		switch e.Type {
		case "message":
			if e.Message == nil || e.Message.Role == "" {
				logger.Warn().
					Str("thread_id", threadID).
					Int("line", lineNum).
					Msg("Invalid message entry, skipping")
				continue
			}
			state.Messages = append(state.Messages, *e.Message)
		case "quota":
			state.ToolCallCount = e.ToolCallCount
		}
	}

	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return chat.State{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	logger.Debug().
		Str("thread_id", threadID).
		Int("messages", len(state.Messages)).
		Msg("Checkpoint loaded")

	return state, nil
}

// Save writes the full state for a thread atomically
func (s *Store) Save(ctx context.Context, threadID string, state chat.State) error {
	ctx, span := tracing.StartSpan(ctx, "phoenix.checkpoint", "save",
		attribute.String("thread_id", threadID),
		attribute.Int("messages", len(state.Messages)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	start := time.Now()
	defer func() {
		observability.RecordCheckpointSave(time.Since(start))
	}()

	if err := validateThreadID(threadID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	lock := s.writeLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	path := s.path(threadID)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}

	writeEntry := func(e entry) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write checkpoint entry: %w", err)
		}
		return nil
	}

	for i := range state.Messages {
		if err := writeEntry(entry{Type: "message", Message: &state.Messages[i]}); err != nil {
			file.Close()
			os.Remove(tempPath)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	if err := writeEntry(entry{Type: "quota", ToolCallCount: state.ToolCallCount}); err != nil {
		file.Close()
		os.Remove(tempPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	logger.Debug().
		Str("thread_id", threadID).
		Int("messages", len(state.Messages)).
		Msg("Checkpoint saved")

	return nil
}

// Delete removes the checkpoint for a thread. Deleting an absent
// checkpoint is not an error.
func (s *Store) Delete(threadID string) error {
	if err := validateThreadID(threadID); err != nil {
		return err
	}

	lock := s.writeLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(threadID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}

	s.locksMu.Lock()
	delete(s.writeLocks, threadID)
	s.locksMu.Unlock()

	s.logger.Info().Str("thread_id", threadID).Msg("Checkpoint deleted")
	return nil
}

// ListThreads lists all thread IDs with a checkpoint on disk
func (s *Store) ListThreads() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var threads []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		threads = append(threads, strings.TrimSuffix(name, ".jsonl"))
	}
	return threads, nil
}

// LastModified returns when a thread's checkpoint was last written
func (s *Store) LastModified(threadID string) (time.Time, error) {
	if err := validateThreadID(threadID); err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(s.path(threadID))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat checkpoint file: %w", err)
	}
	return info.ModTime(), nil
}
