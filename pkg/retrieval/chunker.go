package retrieval

import (
	"strings"

	"github.com/phoenixlabs/phoenix/internal/config"
)

// Default separator priority: paragraph breaks, line breaks, word breaks,
// then raw characters as a last resort.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits text into overlapping chunks below a size limit, preferring
// to break at the coarsest separator that keeps pieces under the limit.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

// NewChunker creates a chunker for one profile.
func NewChunker(profile config.ChunkProfile) *Chunker {
	return &Chunker{
		size:       profile.Size,
		overlap:    profile.Overlap,
		separators: defaultSeparators,
	}
}

// Split splits text into chunks. Empty and whitespace-only input yields no
// chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.splitText(text, c.separators)
}

func (c *Chunker) splitText(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var remaining []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitKeepingText(text, separator)

	var chunks []string
	var pending []string
	for _, s := range splits {
		if len(s) < c.size {
			pending = append(pending, s)
			continue
		}

		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending, separator)...)
			pending = nil
		}

		if len(remaining) == 0 {
			chunks = append(chunks, s)
		} else {
			chunks = append(chunks, c.splitText(s, remaining)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending, separator)...)
	}

	return chunks
}

// merge packs small splits back together up to the size limit, carrying
// the configured overlap from the tail of each chunk into the next.
func (c *Chunker) merge(splits []string, separator string) []string {
	sepLen := len(separator)

	var chunks []string
	var window []string
	total := 0

	flush := func() {
		joined := strings.TrimSpace(strings.Join(window, separator))
		if joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, s := range splits {
		extra := len(s)
		if len(window) > 0 {
			extra += sepLen
		}

		if total+extra > c.size && len(window) > 0 {
			flush()

			// Shrink the window from the front until it fits inside the
			// overlap budget; what remains seeds the next chunk.
			for total > c.overlap || (total+len(s)+sepLen > c.size && total > 0) {
				drop := len(window[0])
				if len(window) > 1 {
					drop += sepLen
				}
				total -= drop
				window = window[1:]
				if len(window) == 0 {
					break
				}
			}
		}

		window = append(window, s)
		total += len(s)
		if len(window) > 1 {
			total += sepLen
		}
	}

	if len(window) > 0 {
		flush()
	}

	return chunks
}

// splitKeepingText splits on a separator; the empty separator splits into
// individual characters.
func splitKeepingText(text, separator string) []string {
	var raw []string
	if separator == "" {
		raw = strings.Split(text, "")
	} else {
		raw = strings.Split(text, separator)
	}

	splits := raw[:0]
	for _, s := range raw {
		if s != "" {
			splits = append(splits, s)
		}
	}
	return splits
}
