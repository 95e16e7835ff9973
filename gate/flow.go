package gate

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a Flow event does not apply to its
// current state.
var ErrInvalidTransition = errors.New("gate: invalid flow transition")

// State is a step of a PIN-confirmed mutation.
type State string

// Flow states.
const (
	StateIdle        State = "idle"
	StateFormValid   State = "form_valid"
	StateAwaitingPin State = "awaiting_pin"
	StateConfirmed   State = "confirmed"
	StateRejected    State = "rejected"
	StateCommitting  State = "committing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Event drives a Flow between states.
type Event string

// Flow events.
const (
	EventValidated Event = "validated"
	EventPrompt    Event = "prompt"
	EventConfirm   Event = "confirm"
	EventReject    Event = "reject"
	EventCommit    Event = "commit"
	EventSucceed   Event = "succeed"
	EventFail      Event = "fail"
)

var transitions = map[State]map[Event]State{
	StateIdle:        {EventValidated: StateFormValid},
	StateFormValid:   {EventPrompt: StateAwaitingPin},
	StateAwaitingPin: {EventConfirm: StateConfirmed, EventReject: StateRejected},
	StateRejected:    {EventPrompt: StateAwaitingPin},
	StateConfirmed:   {EventCommit: StateCommitting},
	StateCommitting:  {EventSucceed: StateDone, EventFail: StateFailed},
}

// Flow tracks one mutating request from form validation through PIN
// confirmation to commit:
//
//	Idle → FormValid → AwaitingPin → Confirmed → Committing → Done
//	                        ↑   ↓
//	                      Rejected
//
// A request only reaches AwaitingPin after its business rules validated, so a
// PIN is never spent on a request that cannot succeed.
type Flow struct {
	state    State
	attempts int
}

// NewFlow returns a Flow in StateIdle.
func NewFlow() *Flow { return &Flow{state: StateIdle} }

// State returns the current state.
func (f *Flow) State() State { return f.state }

// Attempts returns how many PINs were submitted.
func (f *Flow) Attempts() int { return f.attempts }

// Fire applies e and returns the new state.
func (f *Flow) Fire(e Event) (State, error) {
	next, ok := transitions[f.state][e]
	if !ok {
		return f.state, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, f.state)
	}
	if e == EventConfirm || e == EventReject {
		f.attempts++
	}
	f.state = next
	return next, nil
}

// Terminal reports whether the flow has finished.
func (f *Flow) Terminal() bool {
	return f.state == StateDone || f.state == StateFailed
}
