package kafka

// Topic definitions
const (
	// Inbound
	TopicEventsDetected = "events.detected"      // raw detection payloads
	TopicConfirmations  = "events.confirmations" // {"event_id": "..."}

	// Outbound
	TopicEventsAccepted   = "events.accepted"
	TopicPositionsOpened  = "positions.opened"
	TopicPositionsClosed  = "positions.closed"
	TopicPositionsMetrics = "positions.metrics"
)
