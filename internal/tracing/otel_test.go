package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleRatio(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  float64
	}{
		{"unset defaults to full sampling", "", 1},
		{"valid ratio", "0.25", 0.25},
		{"zero disables sampling", "0", 0},
		{"out of range falls back", "1.5", 1},
		{"garbage falls back", "lots", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envSampleRatio, tt.value)
			assert.Equal(t, tt.want, sampleRatio())
		})
	}
}

func TestResourceAttributes(t *testing.T) {
	t.Setenv(envDeployment, "")
	assert.Len(t, resourceAttributes("phoenix"), 1)

	t.Setenv(envDeployment, "staging")
	attrs := resourceAttributes("phoenix")
	assert.Len(t, attrs, 2)
	assert.Equal(t, "staging", attrs[1].Value.AsString())
}
