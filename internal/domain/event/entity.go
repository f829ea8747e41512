package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a detected anomaly of attention eligible for paper-signal evaluation.
// State is owned by the lifecycle manager; everything else is fixed at validation.
type Event struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Type        Type       `db:"event_type" json:"event_type"`
	Confidence  Confidence `db:"confidence" json:"confidence"`
	Source      string     `db:"source" json:"source"`
	Entities    []string   `db:"-" json:"entities"`
	Symbol      string     `db:"symbol" json:"symbol"`
	Timestamp   time.Time  `db:"detected_at" json:"timestamp"`
	Fingerprint string     `db:"fingerprint" json:"fingerprint"`

	State        State        `db:"state" json:"state"`
	RejectReason RejectReason `db:"reject_reason" json:"reject_reason,omitempty"`
	ReceivedAt   time.Time    `db:"received_at" json:"received_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Clone returns a copy safe to hand out of the lifecycle arena
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Entities = append([]string(nil), e.Entities...)
	return &c
}

// ExpiresAt is the end of the event's lifetime measured from registration
func (e *Event) ExpiresAt(maxLifetime time.Duration) time.Time {
	return e.ReceivedAt.Add(maxLifetime)
}

// Projection is the reduced pipeline output for accepted events
type Projection struct {
	EventType  Type       `json:"event_type"`
	Confidence Confidence `json:"confidence"`
	Symbol     string     `json:"symbol"`
}

// UnknownSymbol is emitted when no symbol could be attached to an event
const UnknownSymbol = "N/A"

// Project builds the reduced output. Missing symbol becomes UnknownSymbol.
func (e *Event) Project() Projection {
	symbol := e.Symbol
	if symbol == "" {
		symbol = UnknownSymbol
	}
	return Projection{
		EventType:  e.Type,
		Confidence: e.Confidence,
		Symbol:     symbol,
	}
}

// Type classifies the detected event
type Type string

const (
	TypePoliticalStatement Type = "POLITICAL_STATEMENT"
	TypeGlobalEvent        Type = "GLOBAL_EVENT"
	TypeMacroShock         Type = "MACRO_SHOCK"
)

// Valid checks if event type is known
func (t Type) Valid() bool {
	switch t {
	case TypePoliticalStatement, TypeGlobalEvent, TypeMacroShock:
		return true
	}
	return false
}

func (t Type) String() string {
	return string(t)
}

// Confidence tier assigned by the upstream detector. Ordered LOW < MEDIUM < HIGH.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Rank returns the ordinal of the tier, 0 for unknown values
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// Valid checks if confidence is a known tier
func (c Confidence) Valid() bool {
	return c.Rank() > 0
}

// AtLeast reports whether c is the same tier as other or above it
func (c Confidence) AtLeast(other Confidence) bool {
	return c.Valid() && c.Rank() >= other.Rank()
}

func (c Confidence) String() string {
	return string(c)
}

// State is a lifecycle state
type State string

const (
	StateDetected        State = "DETECTED"
	StateValidated       State = "VALIDATED"
	StateRejected        State = "REJECTED"
	StateSignalGenerated State = "SIGNAL_GENERATED"
	StateExpired         State = "EXPIRED"
)

// Terminal reports whether no further transition can leave this state
func (s State) Terminal() bool {
	return s == StateRejected || s == StateExpired
}

func (s State) String() string {
	return string(s)
}

// RejectReason records why an event ended in StateRejected
type RejectReason string

const (
	ReasonNone                RejectReason = ""
	ReasonDuplicate           RejectReason = "duplicate"
	ReasonLowConfidence       RejectReason = "low_confidence"
	ReasonConfirmationTimeout RejectReason = "confirmation_timeout"
	ReasonPriceUnavailable    RejectReason = "price_unavailable"
	ReasonDedupUnavailable    RejectReason = "dedup_unavailable"
	ReasonAborted             RejectReason = "aborted"
)

func (r RejectReason) String() string {
	return string(r)
}
