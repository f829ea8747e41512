package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := [][2]State{
		{StateDetected, StateValidated},
		{StateDetected, StateRejected},
		{StateValidated, StateSignalGenerated},
		{StateValidated, StateRejected},
		{StateSignalGenerated, StateExpired},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]State{
		{StateDetected, StateSignalGenerated},
		{StateDetected, StateExpired},
		{StateValidated, StateDetected},
		{StateSignalGenerated, StateValidated},
		{StateSignalGenerated, StateRejected},
		{StateRejected, StateValidated},
		{StateExpired, StateSignalGenerated},
		{StateExpired, StateExpired},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateExpired.Terminal())
	assert.False(t, StateDetected.Terminal())
	assert.False(t, StateValidated.Terminal())
	assert.False(t, StateSignalGenerated.Terminal())
}

func TestConfidence_AtLeast(t *testing.T) {
	assert.True(t, ConfidenceHigh.AtLeast(ConfidenceMedium))
	assert.True(t, ConfidenceMedium.AtLeast(ConfidenceMedium))
	assert.False(t, ConfidenceLow.AtLeast(ConfidenceMedium))
	assert.False(t, Confidence("BOGUS").AtLeast(ConfidenceLow))
}

func TestProject(t *testing.T) {
	e := &Event{Type: TypeGlobalEvent, Confidence: ConfidenceHigh}
	assert.Equal(t, Projection{EventType: TypeGlobalEvent, Confidence: ConfidenceHigh, Symbol: UnknownSymbol}, e.Project())

	e.Symbol = "ETHUSDT"
	assert.Equal(t, "ETHUSDT", e.Project().Symbol)
}

func TestClone_Independent(t *testing.T) {
	e := &Event{Entities: []string{"a"}, ReceivedAt: time.Now()}
	c := e.Clone()
	c.Entities[0] = "b"
	c.State = StateExpired

	assert.Equal(t, "a", e.Entities[0])
	assert.NotEqual(t, c.State, e.State)
}
