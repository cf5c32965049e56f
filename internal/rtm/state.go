package rtm

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

var (
	// ErrInvalidState is matched by every StateError.
	ErrInvalidState = errors.New("rtm: invalid state")

	// ErrHandshake wraps the cause of a failed opening handshake.
	ErrHandshake = errors.New("rtm: handshake failed")

	// ErrTransport wraps a transport failure on an established connection.
	ErrTransport = errors.New("rtm: transport failure")
)

// StateError reports an operation that is not valid in the current state.
// It signals a programming error, not a network condition.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("rtm: %s: invalid in state %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
