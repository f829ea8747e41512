package event

// transitions lists every legal lifecycle edge. Anything else is an invariant violation.
var transitions = map[State][]State{
	StateDetected:        {StateValidated, StateRejected},
	StateValidated:       {StateSignalGenerated, StateRejected},
	StateSignalGenerated: {StateExpired},
}

// CanTransition reports whether from -> to is a forward lifecycle edge
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
