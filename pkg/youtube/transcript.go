package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidVideoURL means no video ID could be extracted from the URL
	ErrInvalidVideoURL = errors.New("invalid YouTube video URL")
	// ErrCaptionsUnavailable means the video has no retrievable captions
	ErrCaptionsUnavailable = errors.New("video has no captions available")
)

// videoIDPattern matches the 11-character video ID in watch, share and
// embed URL forms.
var videoIDPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&/]|$)`)

// ParseVideoID extracts the video ID from a YouTube URL
func ParseVideoID(videoURL string) (string, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return "", ErrInvalidVideoURL
	}

	matches := videoIDPattern.FindStringSubmatch(videoURL)
	if matches == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidVideoURL, videoURL)
	}
	return matches[1], nil
}

// Client fetches video transcripts from the timedtext caption endpoint
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a transcript client
func NewClient(logger zerolog.Logger) *Client {
	return NewClientWithEndpoint("https://www.youtube.com/api/timedtext", logger)
}

// NewClientWithEndpoint creates a transcript client against a custom
// caption endpoint.
func NewClientWithEndpoint(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		language: "en",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "youtube").Logger(),
	}
}

// captionTrack is the timedtext XML document shape
type captionTrack struct {
	XMLName xml.Name      `xml:"transcript"`
	Texts   []captionText `xml:"text"`
}

type captionText struct {
	Start string `xml:"start,attr"`
	Body  string `xml:",chardata"`
}

// FetchTranscript downloads the caption track for a video URL and joins the
// caption segments into one transcript string.
func (c *Client) FetchTranscript(ctx context.Context, videoURL string) (string, error) {
	videoID, err := ParseVideoID(videoURL)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s?lang=%s&v=%s", c.baseURL, url.QueryEscape(c.language), url.QueryEscape(videoID))

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: video %s", ErrCaptionsUnavailable, videoID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("caption endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read caption response: %w", err)
	}

	// Videos without captions answer 200 with an empty body
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", fmt.Errorf("%w: video %s", ErrCaptionsUnavailable, videoID)
	}

	var track captionTrack
	if err := xml.Unmarshal(raw, &track); err != nil {
		return "", fmt.Errorf("failed to parse caption track: %w", err)
	}
	if len(track.Texts) == 0 {
		return "", fmt.Errorf("%w: video %s", ErrCaptionsUnavailable, videoID)
	}

	segments := make([]string, 0, len(track.Texts))
	for _, t := range track.Texts {
		// Caption bodies arrive HTML-escaped with hard line breaks
		text := html.UnescapeString(t.Body)
		text = strings.ReplaceAll(text, "\n", " ")
		text = strings.TrimSpace(text)
		if text != "" {
			segments = append(segments, text)
		}
	}

	transcript := strings.Join(segments, " ")

	c.logger.Debug().
		Str("video_id", videoID).
		Int("segments", len(segments)).
		Int("length", len(transcript)).
		Msg("Transcript fetched")

	return transcript, nil
}
