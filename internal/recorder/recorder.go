// Package recorder tracks the time span the user is currently recording.
// Its start time seeds the DateStart of newly created events.
package recorder

import (
	"time"

	"usercal/internal/model"
)

// State is the recorder slice of the application state.
type State struct {
	// DateStart is the recording start in wire layout, empty when idle.
	DateStart string `json:"dateStart,omitempty"`
}

// Start begins a recording at At.
type Start struct {
	At time.Time
}

// Stop ends the current recording.
type Stop struct{}

// Reduce folds a recorder action into s. Any other value leaves s as is.
func Reduce(s State, action any) State {
	switch a := action.(type) {
	case Start:
		return State{DateStart: model.FormatTime(a.At)}
	case Stop:
		return State{}
	default:
		return s
	}
}

// SelectDateStart returns the recording start, or "" when not recording.
func SelectDateStart(s State) string {
	return s.DateStart
}

// Recording reports whether a recording is in progress.
func Recording(s State) bool {
	return s.DateStart != ""
}
