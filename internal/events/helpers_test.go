package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid UTF-8 string unchanged",
			input:    "Fed raises rates, ставка 5%",
			expected: "Fed raises rates, ставка 5%",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "invalid UTF-8 bytes removed",
			input:    "Hello\xffWorld",
			expected: "HelloWorld",
		},
		{
			name:     "multiple invalid UTF-8 sequences",
			input:    "Start\xffMiddle\xfeEnd\xfd",
			expected: "StartMiddleEnd",
		},
		{
			name:     "detector entity with invalid byte",
			input:    "BTC\xff/USDT",
			expected: "BTC/USDT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUTF8(tt.input))
		})
	}
}

func TestSanitizeAll_DoesNotAlias(t *testing.T) {
	in := []string{"ok", "bad\xff"}
	out := SanitizeAll(in)

	assert.Equal(t, []string{"ok", "bad"}, out)
	assert.Equal(t, "bad\xff", in[1])
}

func TestNewEnvelope(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	env := NewEnvelope(TypeEventAccepted, now)

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, TypeEventAccepted, env.Type)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.True(t, env.Timestamp.Equal(now))
	assert.Equal(t, "eventsim", env.Source)
	assert.Equal(t, "1.0", env.Version)

	assert.NotEqual(t, env.ID, NewEnvelope(TypeEventAccepted, now).ID)
}
