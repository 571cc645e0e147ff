package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// State names a stage of the seal pipeline. A pass advances
// Idle → PresenceChecked → DeltaComputed → Sealed → AnchorSubmitted →
// Committed; Failed is terminal and reachable from any state.
type State string

const (
	StateIdle            State = "Idle"
	StatePresenceChecked State = "PresenceChecked"
	StateDeltaComputed   State = "DeltaComputed"
	StateSealed          State = "Sealed"
	StateAnchorSubmitted State = "AnchorSubmitted"
	StateCommitted       State = "Committed"
	StateFailed          State = "Failed"
)

// PassError reports a failed pass with the state the failure originated in
// and an itemized reason list. The pipeline never fails bare: every
// PassError names its stage and at least one reason.
type PassError struct {
	State   State
	Reasons []string
	Err     error
}

func (e *PassError) Error() string {
	msg := fmt.Sprintf("pass failed in %s: %s", e.State, strings.Join(e.Reasons, "; "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// FailedState returns the originating state of a PassError, or empty when
// err is not one.
func FailedState(err error) State {
	var pe *PassError
	if errors.As(err, &pe) {
		return pe.State
	}
	return ""
}
