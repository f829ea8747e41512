package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message types carried in Envelope.Type
const (
	TypeEventAccepted   = "event.accepted"
	TypePositionOpened  = "position.opened"
	TypePositionClosed  = "position.closed"
	TypePositionMetrics = "position.metrics"
)

const (
	envelopeSource  = "eventsim"
	envelopeVersion = "1.0"
)

// Envelope carries the metadata shared by every outbound message
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewEnvelope creates envelope metadata with defaults
func NewEnvelope(msgType string, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: now.UTC(),
		Source:    envelopeSource,
		Version:   envelopeVersion,
	}
}

// SanitizeUTF8 drops invalid UTF-8 sequences. Detector-supplied strings are not trusted to be valid.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// SanitizeAll applies SanitizeUTF8 to a copy of ss
func SanitizeAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = SanitizeUTF8(s)
	}
	return out
}
