package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/internal/observability"
	"github.com/phoenixlabs/phoenix/internal/tracing"
)

// Pipeline turns raw sources into persisted per-thread indexes:
// extract -> chunk -> embed -> persist. The first successful ingestion for
// a key is final; later attempts are accepted as no-ops.
type Pipeline struct {
	cache    *Cache
	store    *IndexStore
	embedder EmbeddingProvider
	logger   zerolog.Logger

	docChunker   *Chunker
	videoChunker *Chunker

	mu      sync.Mutex
	ingests map[Key]*sync.Mutex
}

// NewPipeline creates an ingestion pipeline
func NewPipeline(cache *Cache, store *IndexStore, embedder EmbeddingProvider, cfg config.RetrievalConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cache:        cache,
		store:        store,
		embedder:     embedder,
		logger:       logger.With().Str("component", "ingestion").Logger(),
		docChunker:   NewChunker(cfg.Document),
		videoChunker: NewChunker(cfg.Video),
		ingests:      make(map[Key]*sync.Mutex),
	}
}

// ingestLock returns the mutex serializing ingestion for one key, so at
// most one build can win a concurrent first-upload race.
func (p *Pipeline) ingestLock(key Key) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.ingests[key]
	if !ok {
		lock = &sync.Mutex{}
		p.ingests[key] = lock
	}
	return lock
}

// IngestDocument extracts text from an uploaded PDF and indexes it for the
// thread. If the thread already has a document index the call is a no-op.
func (p *Pipeline) IngestDocument(ctx context.Context, raw []byte, sourceName, ownerID, threadID string) error {
	key := Key{OwnerID: ownerID, ThreadID: threadID, DocType: DocTypeDocument}

	return p.ingest(ctx, key, p.docChunker, func() ([]Chunk, error) {
		text, err := extractPDFText(raw)
		if err != nil {
			return nil, &IngestionError{Stage: StageExtract, Reason: "failed to read PDF", Err: err}
		}
		if strings.TrimSpace(text) == "" {
			return nil, &IngestionError{Stage: StageExtract, Reason: "document contains no extractable text"}
		}

		metadata := map[string]string{"source": sourceName, "doc_type": string(DocTypeDocument)}
		return p.toChunks(p.docChunker.Split(text), metadata), nil
	})
}

// IngestTranscript indexes a video transcript for the thread. If the thread
// already has a video index the call is a no-op.
func (p *Pipeline) IngestTranscript(ctx context.Context, transcript, sourceURL, ownerID, threadID string) error {
	key := Key{OwnerID: ownerID, ThreadID: threadID, DocType: DocTypeVideo}

	return p.ingest(ctx, key, p.videoChunker, func() ([]Chunk, error) {
		if strings.TrimSpace(transcript) == "" {
			return nil, &IngestionError{Stage: StageExtract, Reason: "transcript is empty"}
		}

		metadata := map[string]string{"source": sourceURL, "doc_type": string(DocTypeVideo)}
		return p.toChunks(p.videoChunker.Split(transcript), metadata), nil
	})
}

func (p *Pipeline) toChunks(texts []string, metadata map[string]string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Text: t, Metadata: metadata}
	}
	return chunks
}

func (p *Pipeline) ingest(ctx context.Context, key Key, chunker *Chunker, extract func() ([]Chunk, error)) error {
	ctx, span := tracing.StartSpan(ctx, "phoenix.retrieval", "ingest",
		attribute.String("key", key.String()),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)
	start := time.Now()

	lock := p.ingestLock(key)
	lock.Lock()
	defer lock.Unlock()

	// First document wins: an occupied key makes this a no-op success
	if _, err := p.cache.Get(ctx, key); err == nil {
		logger.Debug().Str("key", key.String()).Msg("Thread already has a source, skipping ingestion")
		return nil
	} else if !errors.Is(err, ErrNoSource) {
		return fmt.Errorf("failed to check existing source for %s: %w", key, err)
	}

	chunks, err := extract()
	if err != nil {
		observability.RecordIngestion(string(key.DocType), time.Since(start), false)
		return err
	}

	if len(chunks) == 0 {
		observability.RecordIngestion(string(key.DocType), time.Since(start), false)
		return &IngestionError{Stage: StageChunk, Reason: "source produced no chunks"}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		observability.RecordIngestion(string(key.DocType), time.Since(start), false)
		return &IngestionError{Stage: StageEmbed, Reason: "embedding provider failed", Err: err}
	}

	retriever, err := p.store.Build(ctx, key, chunks, vectors)
	if err != nil {
		// A failed build must not leave a partial index on disk
		if rmErr := p.store.Remove(key); rmErr != nil {
			logger.Error().Err(rmErr).Str("key", key.String()).Msg("Failed to clean up partial index")
		}
		observability.RecordIngestion(string(key.DocType), time.Since(start), false)
		return &IngestionError{Stage: StagePersist, Reason: "failed to persist index", Err: err}
	}

	// The cache is not registered here: the next Get for this key loads
	// the persisted index, so every served retriever is backed by disk
	if err := retriever.Close(); err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to close index build handle")
	}

	logger.Info().
		Str("key", key.String()).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Source ingested")
	observability.RecordIngestion(string(key.DocType), time.Since(start), true)

	return nil
}
