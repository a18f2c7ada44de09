package retrieval

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps text deterministically onto the unit sphere, so
// identical texts are always nearest to each other.
type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, f.dim)
		var norm float64
		for j := 0; j < f.dim; j++ {
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

// failingEmbedder always errors
type failingEmbedder struct{}

func (f *failingEmbedder) Dimension() int { return 8 }

func (f *failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}

func testKey(docType DocType) Key {
	return Key{OwnerID: "owner-1", ThreadID: "thread-1", DocType: docType}
}

func testChunks() []Chunk {
	meta := map[string]string{"source": "notes.pdf", "doc_type": "document"}
	return []Chunk{
		{Text: "the mitochondria is the powerhouse of the cell", Metadata: meta},
		{Text: "photosynthesis converts light into chemical energy", Metadata: meta},
		{Text: "osmosis moves water across a membrane", Metadata: meta},
	}
}

func newTestStore(t *testing.T) *IndexStore {
	t.Helper()
	return NewIndexStore(t.TempDir(), &fakeEmbedder{dim: 8}, zerolog.Nop())
}

func buildIndex(t *testing.T, store *IndexStore, key Key, chunks []Chunk) *Retriever {
	t.Helper()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := store.embedder.Embed(context.Background(), texts)
	require.NoError(t, err)

	r, err := store.Build(context.Background(), key, chunks, vectors)
	require.NoError(t, err)
	return r
}

func TestStore_BuildQueryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key := testKey(DocTypeDocument)
	chunks := testChunks()

	r := buildIndex(t, store, key, chunks)
	defer r.Close()

	// The exact chunk text must come back as the nearest hit
	hits, err := r.Query(context.Background(), chunks[1].Text, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, chunks[1].Text, hits[0].Text)
	assert.Equal(t, "notes.pdf", hits[0].Metadata["source"])
	assert.LessOrEqual(t, len(hits), 5)
}

func TestStore_LoadPersistedIndex(t *testing.T) {
	store := newTestStore(t)
	key := testKey(DocTypeDocument)
	chunks := testChunks()

	r := buildIndex(t, store, key, chunks)
	require.NoError(t, r.Close())

	loaded, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	defer loaded.Close()

	hits, err := loaded.Query(context.Background(), chunks[0].Text, 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, chunks[0].Text, hits[0].Text)
}

func TestStore_LoadAbsentIsErrNoSource(t *testing.T) {
	store := newTestStore(t)
	key := testKey(DocTypeVideo)

	_, err := store.Load(context.Background(), key)
	assert.ErrorIs(t, err, ErrNoSource)

	// Absence checks leave no directories behind
	_, statErr := os.Stat(store.IndexDir(key))
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_BuildRejectsMismatchedVectors(t *testing.T) {
	store := newTestStore(t)
	key := testKey(DocTypeDocument)

	_, err := store.Build(context.Background(), key, testChunks(), [][]float32{{1, 0}})
	assert.Error(t, err)

	_, err = store.Build(context.Background(), key, nil, nil)
	assert.Error(t, err)
}

func TestStore_KeysAreIsolated(t *testing.T) {
	store := newTestStore(t)

	docKey := testKey(DocTypeDocument)
	videoKey := testKey(DocTypeVideo)
	otherThread := Key{OwnerID: "owner-1", ThreadID: "thread-2", DocType: DocTypeDocument}

	r := buildIndex(t, store, docKey, testChunks())
	defer r.Close()

	assert.True(t, store.Exists(docKey))
	assert.False(t, store.Exists(videoKey))
	assert.False(t, store.Exists(otherThread))

	assert.NotEqual(t, store.IndexDir(docKey), store.IndexDir(videoKey))
	assert.NotEqual(t, store.IndexDir(docKey), store.IndexDir(otherThread))
}

func TestStore_RemoveCleansUp(t *testing.T) {
	store := newTestStore(t)
	key := testKey(DocTypeDocument)

	r := buildIndex(t, store, key, testChunks())
	require.NoError(t, r.Close())
	require.True(t, store.Exists(key))

	require.NoError(t, store.Remove(key))
	assert.False(t, store.Exists(key))
}
