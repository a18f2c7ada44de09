package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVideoID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url with params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"short url", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed url", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVideoID(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVideoID_Invalid(t *testing.T) {
	for _, u := range []string{"", "   ", "https://www.youtube.com/watch?v=short", "not a url at all"} {
		_, err := ParseVideoID(u)
		assert.ErrorIs(t, err, ErrInvalidVideoURL, "url %q", u)
	}
}

func newTestClient(serverURL string) *Client {
	c := NewClient(zerolog.Nop())
	c.baseURL = serverURL
	return c
}

func TestClient_FetchTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dQw4w9WgXcQ", r.URL.Query().Get("v"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))

		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.0" dur="2.5">never gonna give</text>
  <text start="2.5" dur="2.5">you up&#39;s
line break</text>
  <text start="5.0" dur="2.5">   </text>
  <text start="7.5" dur="2.5">never gonna let you down</text>
</transcript>`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	transcript, err := client.FetchTranscript(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "never gonna give you up's line break never gonna let you down", transcript)
}

func TestClient_FetchTranscript_NoCaptions(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"empty track", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<transcript></transcript>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.FetchTranscript(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
			assert.ErrorIs(t, err, ErrCaptionsUnavailable)
		})
	}
}

func TestClient_FetchTranscript_InvalidURL(t *testing.T) {
	client := NewClient(zerolog.Nop())

	_, err := client.FetchTranscript(context.Background(), "https://example.com/nope")
	assert.ErrorIs(t, err, ErrInvalidVideoURL)
}

func TestClient_FetchTranscript_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchTranscript(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCaptionsUnavailable)
}
