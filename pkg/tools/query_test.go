package tools

import (
	"context"
	"crypto/sha256"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phoenixlabs/phoenix/internal/config"
	"github.com/phoenixlabs/phoenix/pkg/retrieval"
	"github.com/phoenixlabs/phoenix/pkg/toolexec"
	"github.com/phoenixlabs/phoenix/pkg/youtube"
)

// hashEmbedder maps text deterministically onto the unit sphere
type hashEmbedder struct {
	dim int
}

func (e *hashEmbedder) Dimension() int { return e.dim }

func (e *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, e.dim)
		var norm float64
		for j := 0; j < e.dim; j++ {
			v := float64(sum[j%len(sum)]) + 1
			vec[j] = float32(v)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
		out[i] = vec
	}
	return out, nil
}

type queryFixture struct {
	cache    *retrieval.Cache
	store    *retrieval.IndexStore
	pipeline *retrieval.Pipeline
	executor *toolexec.Executor
	execCtx  *toolexec.ExecutionContext
}

func newQueryFixture(t *testing.T, transcripts *youtube.Client) *queryFixture {
	t.Helper()

	embedder := &hashEmbedder{dim: 8}
	store := retrieval.NewIndexStore(t.TempDir(), embedder, zerolog.Nop())
	cache := retrieval.NewCache(store, 0, zerolog.Nop())
	t.Cleanup(func() { cache.Close() })

	cfg := config.RetrievalConfig{
		TopK:     5,
		Document: config.ChunkProfile{Size: 900, Overlap: 120},
		Video:    config.ChunkProfile{Size: 500, Overlap: 95},
	}
	pipeline := retrieval.NewPipeline(cache, store, embedder, cfg, zerolog.Nop())

	executor := toolexec.New()
	require.NoError(t, RegisterBuiltinTools(executor, Options{
		TopK:        5,
		Cache:       cache,
		Pipeline:    pipeline,
		Transcripts: transcripts,
	}))

	return &queryFixture{
		cache:    cache,
		store:    store,
		pipeline: pipeline,
		executor: executor,
		execCtx:  &toolexec.ExecutionContext{OwnerID: "owner-1", ThreadID: "thread-1"},
	}
}

func (f *queryFixture) indexDocument(t *testing.T, chunks []retrieval.Chunk) {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := (&hashEmbedder{dim: 8}).Embed(context.Background(), texts)
	require.NoError(t, err)

	// Only persist; the cache rehydrates on the first query
	key := retrieval.Key{OwnerID: "owner-1", ThreadID: "thread-1", DocType: retrieval.DocTypeDocument}
	r, err := f.store.Build(context.Background(), key, chunks, vectors)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestDocumentQuery_ReturnsContext(t *testing.T) {
	fixture := newQueryFixture(t, nil)

	meta := map[string]string{"source": "notes.pdf", "doc_type": "document"}
	fixture.indexDocument(t, []retrieval.Chunk{
		{Text: "the krebs cycle runs in the mitochondria", Metadata: meta},
		{Text: "glycolysis happens in the cytoplasm", Metadata: meta},
	})

	result := fixture.executor.Execute(context.Background(), "document_query",
		map[string]interface{}{"query": "the krebs cycle runs in the mitochondria"}, fixture.execCtx)

	require.True(t, result.Success, "error: %s", result.Error)
	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, output["context"], "krebs cycle")

	metadata, ok := output["metadata"].([]map[string]string)
	require.True(t, ok)
	require.NotEmpty(t, metadata)
	assert.Equal(t, "notes.pdf", metadata[0]["source"])
}

func TestDocumentQuery_NoSourceIsInBand(t *testing.T) {
	fixture := newQueryFixture(t, nil)

	result := fixture.executor.Execute(context.Background(), "document_query",
		map[string]interface{}{"query": "anything"}, fixture.execCtx)

	require.True(t, result.Success, "error: %s", result.Error)
	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, output["error"], "no document context available")
}

func captionServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<transcript>
  <text start="0.0" dur="3.0">the water cycle begins with evaporation</text>
  <text start="3.0" dur="3.0">clouds form through condensation</text>
  <text start="6.0" dur="3.0">rain falls as precipitation</text>
</transcript>`))
	}))
}

func TestVideoQuery_IngestsOnFirstUse(t *testing.T) {
	server := captionServer(t)
	defer server.Close()

	fixture := newQueryFixture(t, youtube.NewClientWithEndpoint(server.URL, zerolog.Nop()))

	params := map[string]interface{}{
		"query": "evaporation",
		"url":   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	result := fixture.executor.Execute(context.Background(), "video_query", params, fixture.execCtx)
	require.True(t, result.Success, "error: %s", result.Error)

	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, output["context"], "evaporation")

	// The transcript is now indexed for the thread
	key := retrieval.Key{OwnerID: "owner-1", ThreadID: "thread-1", DocType: retrieval.DocTypeVideo}
	assert.True(t, fixture.store.Exists(key))

	// Second query serves from the cache, no refetch needed
	server.Close()
	result = fixture.executor.Execute(context.Background(), "video_query", params, fixture.execCtx)
	assert.True(t, result.Success, "error: %s", result.Error)
}

func TestVideoQuery_NoCaptionsIsInBand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK) // empty body: no captions
	}))
	defer server.Close()

	fixture := newQueryFixture(t, youtube.NewClientWithEndpoint(server.URL, zerolog.Nop()))

	result := fixture.executor.Execute(context.Background(), "video_query", map[string]interface{}{
		"query": "anything",
		"url":   "https://youtu.be/dQw4w9WgXcQ",
	}, fixture.execCtx)

	require.True(t, result.Success, "error: %s", result.Error)
	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, output["error"], "cannot fetch a transcript")
}

func TestVideoQuery_InvalidURLIsInBand(t *testing.T) {
	fixture := newQueryFixture(t, youtube.NewClient(zerolog.Nop()))

	result := fixture.executor.Execute(context.Background(), "video_query", map[string]interface{}{
		"query": "anything",
		"url":   "https://example.com/nope",
	}, fixture.execCtx)

	require.True(t, result.Success, "error: %s", result.Error)
	output, ok := result.Output.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, output["error"], "cannot fetch a transcript")
}

func TestRegisterBuiltinTools_RegistersFullSet(t *testing.T) {
	fixture := newQueryFixture(t, youtube.NewClient(zerolog.Nop()))

	names := map[string]bool{}
	for _, def := range fixture.executor.List() {
		names[def.Name] = true
	}

	for _, name := range []string{
		"calculator", "get_weather", "get_conversion_rate",
		"web_search", "document_query", "video_query",
	} {
		assert.True(t, names[name], "missing tool %s", name)
	}
}

func TestRegisterBuiltinTools_RequiresExecutor(t *testing.T) {
	assert.Error(t, RegisterBuiltinTools(nil, Options{}))
}
