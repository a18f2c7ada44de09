package retrieval

import (
	"errors"
	"fmt"
)

// DocType identifies the kind of context source backing an index.
type DocType string

const (
	// DocTypeDocument is an uploaded document (PDF)
	DocTypeDocument DocType = "document"
	// DocTypeVideo is a video transcript
	DocTypeVideo DocType = "video"
)

// Key scopes one retriever: a thread owns at most one index per doc type,
// and in practice at most one source for its whole lifetime.
type Key struct {
	OwnerID  string
	ThreadID string
	DocType  DocType
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.DocType, k.OwnerID, k.ThreadID)
}

// Chunk is one indexed text fragment with its metadata.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrNoSource reports that no context source has ever been ingested for a
// key. Lookups must not create state: callers decide whether to ingest.
var ErrNoSource = errors.New("no context source for this thread")

// Ingestion pipeline stages, used in IngestionError.
const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StagePersist = "persist"
)

// IngestionError is a typed pipeline failure naming the stage that failed.
// A failed ingestion leaves no partial index behind.
type IngestionError struct {
	Stage  string
	Reason string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion failed at %s stage: %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("ingestion failed at %s stage: %s", e.Stage, e.Reason)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
