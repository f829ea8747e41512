package noop

import (
	"context"

	"eventsim/pkg/errors"
)

// Compile-time check
var _ errors.Tracker = (*Tracker)(nil)

// Tracker discards everything. Used when error tracking is disabled.
type Tracker struct{}

func New() *Tracker { return &Tracker{} }

func (*Tracker) CaptureError(context.Context, error, map[string]string) error { return nil }

func (*Tracker) CaptureMessage(context.Context, string, errors.Level, map[string]string) error {
	return nil
}

func (*Tracker) AddBreadcrumb(context.Context, string, string, errors.Level, map[string]interface{}) {}

func (*Tracker) Flush(context.Context) error { return nil }
