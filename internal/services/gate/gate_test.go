package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"eventsim/internal/domain/event"
)

func TestConfidenceGate_Filter(t *testing.T) {
	g := NewConfidenceGate([]string{"Reuters"})

	tests := []struct {
		confidence event.Confidence
		source     string
		want       bool
	}{
		{event.ConfidenceLow, "reuters", false},
		{event.ConfidenceLow, "blog", false},
		{event.ConfidenceMedium, "blog", true},
		{event.ConfidenceHigh, "reuters", true},
		{event.Confidence(""), "reuters", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.confidence)+"/"+tt.source, func(t *testing.T) {
			ev := &event.Event{Confidence: tt.confidence, Source: tt.source}
			assert.Equal(t, tt.want, g.Filter(ev))
		})
	}
}

func TestConfidenceGate_FirstClass(t *testing.T) {
	g := NewConfidenceGate([]string{" Reuters ", "", "bloomberg"})

	assert.True(t, g.IsFirstClass("reuters"))
	assert.True(t, g.IsFirstClass("BLOOMBERG"))
	assert.False(t, g.IsFirstClass("blog"))
	assert.Equal(t, "first_class", g.SourceClass("reuters"))
	assert.Equal(t, "other", g.SourceClass("blog"))
}
