package gate

import (
	"strings"

	"eventsim/internal/domain/event"
)

// ConfidenceGate admits MEDIUM and HIGH events. The tier is enforced the same way
// for every source; first-class sources are only labelled.
type ConfidenceGate struct {
	minimum    event.Confidence
	firstClass map[string]struct{}
}

// NewConfidenceGate creates the gate with the given first-class source names
func NewConfidenceGate(firstClassSources []string) *ConfidenceGate {
	fc := make(map[string]struct{}, len(firstClassSources))
	for _, s := range firstClassSources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			fc[s] = struct{}{}
		}
	}
	return &ConfidenceGate{
		minimum:    event.ConfidenceMedium,
		firstClass: fc,
	}
}

// Filter reports whether the event's confidence passes
func (g *ConfidenceGate) Filter(ev *event.Event) bool {
	return ev.Confidence.AtLeast(g.minimum)
}

// IsFirstClass reports whether source is configured as first-class
func (g *ConfidenceGate) IsFirstClass(source string) bool {
	_, ok := g.firstClass[strings.ToLower(strings.TrimSpace(source))]
	return ok
}

// SourceClass is the metrics label for a source
func (g *ConfidenceGate) SourceClass(source string) string {
	if g.IsFirstClass(source) {
		return "first_class"
	}
	return "other"
}
