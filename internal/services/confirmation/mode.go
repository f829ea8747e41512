package confirmation

import (
	"strings"
	"sync/atomic"

	"eventsim/pkg/errors"
)

// Mode selects whether a human must confirm each admitted event
type Mode string

const (
	ModeAuto   Mode = "AUTO"
	ModeManual Mode = "MANUAL"
)

// ParseMode accepts AUTO or MANUAL in any case
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeAuto, ModeManual:
		return m, nil
	}
	return "", errors.Wrapf(errors.ErrInvalidInput, "unknown confirmation mode %q", s)
}

func (m Mode) String() string {
	return string(m)
}

// ModeSource holds the process-wide mode. Callers read it once per event
// and pass the value down, so a change never affects an event in flight.
type ModeSource struct {
	v atomic.Value
}

// NewModeSource creates a source with the initial mode
func NewModeSource(initial Mode) *ModeSource {
	s := &ModeSource{}
	s.v.Store(initial)
	return s
}

// Get returns the current mode
func (s *ModeSource) Get() Mode {
	return s.v.Load().(Mode)
}

// Set replaces the current mode
func (s *ModeSource) Set(m Mode) {
	s.v.Store(m)
}
