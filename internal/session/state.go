// Package session drives the repair wizard: the turn state machine, the busy
// flag that serializes model calls, and the preset problem statements.
package session

import "fmt"

// State is the lifecycle position of a session.
type State int

const (
	// StateIdle means no session is running (or the last start failed).
	StateIdle State = iota
	// StateAwaitingFirstStep means the opening model call is in flight.
	StateAwaitingFirstStep
	// StateAwaitingFeedback means the last message is an agent step.
	StateAwaitingFeedback
	// StateAwaitingNextStep means feedback was recorded and a continuation call is in flight.
	StateAwaitingNextStep
	// StatePendingRetry means feedback was recorded but the agent reply failed.
	StatePendingRetry
	// StateComplete means the session ended with a summary.
	StateComplete
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateAwaitingFirstStep: "awaiting_first_step",
	StateAwaitingFeedback:  "awaiting_feedback",
	StateAwaitingNextStep:  "awaiting_next_step",
	StatePendingRetry:      "pending_retry",
	StateComplete:          "complete",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InFlight returns true while a model call is outstanding.
func (s State) InFlight() bool {
	return s == StateAwaitingFirstStep || s == StateAwaitingNextStep
}
