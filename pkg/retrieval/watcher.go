package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/phoenixlabs/phoenix/internal/tracing"
)

// UploadWatcher feeds PDFs dropped under {base}/uploads/{owner}/{thread}/
// into the ingestion pipeline. Events are debounced per file so a file
// still being written is only ingested once it settles.
type UploadWatcher struct {
	watcher    *fsnotify.Watcher
	pipeline   *Pipeline
	uploadsDir string
	logger     zerolog.Logger
	debounce   time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	stopCh chan struct{}
}

// NewUploadWatcher creates an upload watcher rooted at {baseDir}/uploads
func NewUploadWatcher(pipeline *Pipeline, baseDir string, logger zerolog.Logger) (*UploadWatcher, error) {
	uploadsDir := filepath.Join(baseDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	uw := &UploadWatcher{
		watcher:    watcher,
		pipeline:   pipeline,
		uploadsDir: uploadsDir,
		logger:     logger.With().Str("component", "upload_watcher").Logger(),
		debounce:   500 * time.Millisecond,
		timers:     make(map[string]*time.Timer),
		stopCh:     make(chan struct{}),
	}

	go uw.run()

	return uw, nil
}

// WatchThread starts watching the upload directory for one thread,
// creating it if needed.
func (uw *UploadWatcher) WatchThread(ownerID, threadID string) error {
	dir := filepath.Join(uw.uploadsDir, ownerID, threadID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return uw.watcher.Add(dir)
}

// Stop stops the watcher
func (uw *UploadWatcher) Stop() error {
	close(uw.stopCh)
	return uw.watcher.Close()
}

func (uw *UploadWatcher) run() {
	for {
		select {
		case event, ok := <-uw.watcher.Events:
			if !ok {
				return
			}

			if !strings.HasSuffix(strings.ToLower(event.Name), ".pdf") {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				uw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Upload detected")

				uw.scheduleIngest(event.Name)
			}

		case err, ok := <-uw.watcher.Errors:
			if !ok {
				return
			}
			uw.logger.Error().Err(err).Msg("Upload watcher error")

		case <-uw.stopCh:
			return
		}
	}
}

// scheduleIngest debounces ingestion per file path.
func (uw *UploadWatcher) scheduleIngest(path string) {
	uw.mu.Lock()
	defer uw.mu.Unlock()

	if timer, ok := uw.timers[path]; ok {
		timer.Stop()
	}

	uw.timers[path] = time.AfterFunc(uw.debounce, func() {
		uw.mu.Lock()
		delete(uw.timers, path)
		uw.mu.Unlock()

		uw.handleUpload(path)
	})
}

func (uw *UploadWatcher) handleUpload(path string) {
	rel, err := filepath.Rel(uw.uploadsDir, path)
	if err != nil {
		uw.logger.Error().Err(err).Str("path", path).Msg("Upload outside watched root")
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		uw.logger.Warn().Str("path", rel).Msg("Upload path is not owner/thread/file, skipping")
		return
	}
	ownerID, threadID, fileName := parts[0], parts[1], parts[2]

	raw, err := os.ReadFile(path)
	if err != nil {
		uw.logger.Error().Err(err).Str("path", path).Msg("Failed to read upload")
		return
	}

	ctx := tracing.NewRequestContext(context.Background())
	if err := uw.pipeline.IngestDocument(ctx, raw, fileName, ownerID, threadID); err != nil {
		uw.logger.Error().
			Err(err).
			Str("owner_id", ownerID).
			Str("thread_id", threadID).
			Str("file", fileName).
			Msg("Upload ingestion failed")
		return
	}

	uw.logger.Info().
		Str("owner_id", ownerID).
		Str("thread_id", threadID).
		Str("file", fileName).
		Msg("Upload ingested")
}
