package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOpenAIEmbedder_Dimension(t *testing.T) {
	tests := []struct {
		name  string
		model string
		dims  int
		want  int
	}{
		{"small model native", "text-embedding-3-small", 0, 1536},
		{"large model native", "text-embedding-3-large", 0, 3072},
		{"configured override", "text-embedding-3-small", 256, 256},
		{"override beats model default", "text-embedding-3-large", 1024, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewOpenAIEmbedder("test-key", tt.model, tt.dims)
			assert.Equal(t, tt.want, e.Dimension())
		})
	}
}
