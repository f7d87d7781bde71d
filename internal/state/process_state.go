package state

import (
	"database/sql/driver"
	"fmt"

	"github.com/hexpgame/hexcron/custom_errors"
)

// ProcessState is the lifecycle state of a process. QUEUED is the only initial state.
type ProcessState string

const (
	Queued     ProcessState = "QUEUED"
	Running    ProcessState = "RUNNING"
	Cancelling ProcessState = "CANCELLING"
	Cancelled  ProcessState = "CANCELLED"
	Completed  ProcessState = "COMPLETED"
	Failed     ProcessState = "FAILED"
)

var AllProcessStates = []ProcessState{
	Queued,
	Running,
	Cancelling,
	Cancelled,
	Completed,
	Failed,
}

func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal reports whether no transition may leave s.
func (s ProcessState) IsTerminal() bool {
	return s == Cancelled || s == Completed || s == Failed
}

func (s ProcessState) Valid() bool {
	for _, st := range AllProcessStates {
		if st == s {
			return true
		}
	}
	return false
}

// Value stores the state as its upper-case name.
func (s ProcessState) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *ProcessState) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ProcessState", src)
	}
	st := ProcessState(raw)
	if !st.Valid() {
		return fmt.Errorf("unknown process state %q", raw)
	}
	*s = st
	return nil
}

type Transition struct {
	From ProcessState
	To   ProcessState
}

var ValidTransitions = []Transition{
	{From: Queued, To: Running},
	{From: Queued, To: Cancelled},
	{From: Running, To: Cancelling},
	{From: Running, To: Completed},
	{From: Running, To: Failed},
	{From: Cancelling, To: Cancelled},
}

func IsValidTransition(from, to ProcessState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Apply validates the edge from -> to and returns the new state, or an
// *custom_errors.InvalidStateTransitionError when the edge is not allowed.
func Apply(from, to ProcessState) (ProcessState, error) {
	if !IsValidTransition(from, to) {
		return from, custom_errors.NewInvalidStateTransition(from.String(), to.String())
	}
	return to, nil
}
