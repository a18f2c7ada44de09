package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/phoenixlabs/phoenix/pkg/retrieval"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
	"github.com/phoenixlabs/phoenix/pkg/youtube"
)

const documentQueryDescription = `Retrieve relevant context from the PDF document uploaded to the current chat thread.

This tool MUST be used whenever the user's question depends on the contents of the uploaded document, such as references to "my document", "this file" or "the uploaded PDF", or requests to summarize, explain or analyze information that exists only in the document. The uploaded document is the authoritative source for document-dependent questions; if no relevant context is found, state that the answer cannot be determined from the uploaded document.

The first PDF uploaded to a thread is immutable and defines the single document for that thread. To query a different PDF the user must start a new thread.`

const videoQueryDescription = `Retrieve relevant context from the transcript of a YouTube video associated with the current chat thread.

This tool MUST be used when the user's question depends on the contents of a YouTube video, such as references to "this video" or "the YouTube link", or requests to summarize or analyze the video content. The transcript is the authoritative source for video-dependent questions; if no relevant context is found, state that the answer cannot be determined from the video.

The first YouTube URL provided in a thread is immutable and defines the single video for that thread. To query a different video the user must start a new thread.`

func documentQueryTool(opts Options) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "document_query",
		Description: documentQueryDescription,
		Parameters: []toolexec.ToolParameter{
			{Name: "query", Type: "string", Description: "What to look up in the document", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			execCtx, err := toolexec.RequireExecContext(ctx)
			if err != nil {
				return nil, err
			}
			query, _ := params["query"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, fmt.Errorf("query is required")
			}

			key := retrieval.Key{
				OwnerID:  execCtx.OwnerID,
				ThreadID: execCtx.ThreadID,
				DocType:  retrieval.DocTypeDocument,
			}

			retriever, err := opts.Cache.Get(ctx, key)
			if errors.Is(err, retrieval.ErrNoSource) {
				// In-band: the model should ask the user to upload a PDF
				return map[string]interface{}{
					"error": "no document context available, upload a PDF to this thread first",
				}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("failed to open document index: %w", err)
			}

			return queryContext(ctx, retriever, query, opts.TopK)
		},
	}
}

func videoQueryTool(opts Options) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "video_query",
		Description: videoQueryDescription,
		Parameters: []toolexec.ToolParameter{
			{Name: "query", Type: "string", Description: "What to look up in the video transcript", Required: true},
			{Name: "url", Type: "string", Description: "YouTube video URL", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			execCtx, err := toolexec.RequireExecContext(ctx)
			if err != nil {
				return nil, err
			}
			query, _ := params["query"].(string)
			if strings.TrimSpace(query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			videoURL, _ := params["url"].(string)

			key := retrieval.Key{
				OwnerID:  execCtx.OwnerID,
				ThreadID: execCtx.ThreadID,
				DocType:  retrieval.DocTypeVideo,
			}

			retriever, err := opts.Cache.Get(ctx, key)
			if errors.Is(err, retrieval.ErrNoSource) {
				retriever, err = ingestVideo(ctx, opts, key, videoURL)
				if err != nil {
					return nil, err
				}
				if retriever == nil {
					// Caption and URL failures stay in-band
					return map[string]interface{}{
						"error": fmt.Sprintf("cannot fetch a transcript for %s", videoURL),
					}, nil
				}
			} else if err != nil {
				return nil, fmt.Errorf("failed to open video index: %w", err)
			}

			return queryContext(ctx, retriever, query, opts.TopK)
		},
	}
}

// ingestVideo fetches and indexes a transcript for a thread that has no
// video yet. A nil retriever with nil error means the failure is the
// user's to fix (bad URL, no captions).
func ingestVideo(ctx context.Context, opts Options, key retrieval.Key, videoURL string) (*retrieval.Retriever, error) {
	transcript, err := opts.Transcripts.FetchTranscript(ctx, videoURL)
	if err != nil {
		if errors.Is(err, youtube.ErrInvalidVideoURL) || errors.Is(err, youtube.ErrCaptionsUnavailable) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}

	if err := opts.Pipeline.IngestTranscript(ctx, transcript, videoURL, key.OwnerID, key.ThreadID); err != nil {
		return nil, fmt.Errorf("failed to index transcript: %w", err)
	}

	retriever, err := opts.Cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("transcript indexed but not retrievable: %w", err)
	}
	return retriever, nil
}

// queryContext renders top-k chunks as one context block plus per-chunk
// metadata.
func queryContext(ctx context.Context, retriever *retrieval.Retriever, query string, topK int) (interface{}, error) {
	chunks, err := retriever.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval query failed: %w", err)
	}

	texts := make([]string, 0, len(chunks))
	metadata := make([]map[string]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
		metadata = append(metadata, chunk.Metadata)
	}

	return map[string]interface{}{
		"context":  strings.Join(texts, "\n\n"),
		"metadata": metadata,
	}, nil
}
