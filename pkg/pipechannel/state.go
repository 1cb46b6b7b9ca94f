package pipechannel

import (
	"errors"
	"fmt"
)

// State is the connection state of a Channel
type State int32

const (
	// Disconnected is the initial state, and the state after Close
	Disconnected State = iota

	// WaitingForConnection is entered on Open, and again after a lost
	// connection, while the channel connects or waits for a peer
	WaitingForConnection

	// Connected means a peer is attached and lines can be sent and received
	Connected
)

// ErrInvalidTransition is returned when a state change is not in the transition table
var ErrInvalidTransition = errors.New("invalid connection state transition")

var stateNames = [...]string{
	Disconnected:         "Disconnected",
	WaitingForConnection: "WaitingForConnection",
	Connected:            "Connected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// transitions lists, for each state, the states it may move to.
var transitions = map[State][]State{
	Disconnected:         {WaitingForConnection},
	WaitingForConnection: {Disconnected, Connected},
	Connected:            {Disconnected},
}

// CanTransition reports whether a channel may move directly from one state to another
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateMachine tracks the current State and reports every change to notify.
// It is not safe for concurrent use; Channel guards it with its lock.
type stateMachine struct {
	state  State
	notify func(State)
}

func (m *stateMachine) transition(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	if m.notify != nil {
		m.notify(to)
	}
	return nil
}

// reset returns to Disconnected without a notification.
func (m *stateMachine) reset() {
	m.state = Disconnected
}
