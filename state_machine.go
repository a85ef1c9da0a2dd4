package gobayeux

import (
	"context"
	"sync"
	"time"
)

// State is the position of a session in the client state machine
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type State int32

const (
	// Disconnected is both the initial and the terminal state
	Disconnected State = iota
	// Handshaking means a /meta/handshake is outstanding or scheduled
	Handshaking
	// Rehandshaking means the previous session was lost and a new handshake
	// is outstanding or scheduled
	Rehandshaking
	// Connecting means a /meta/connect is outstanding or scheduled
	Connecting
	// Connected means the last /meta/connect (or the handshake) succeeded
	Connected
	// Disconnecting means a /meta/disconnect is being sent
	Disconnecting
)

// StateRepresentation represents the current state of a connection as a
// string
type StateRepresentation string

const (
	disconnectedRepr  StateRepresentation = "DISCONNECTED"
	handshakingRepr   StateRepresentation = "HANDSHAKING"
	rehandshakingRepr StateRepresentation = "REHANDSHAKING"
	connectingRepr    StateRepresentation = "CONNECTING"
	connectedRepr     StateRepresentation = "CONNECTED"
	disconnectingRepr StateRepresentation = "DISCONNECTING"
)

var stateNames = []StateRepresentation{
	disconnectedRepr,
	handshakingRepr,
	rehandshakingRepr,
	connectingRepr,
	connectedRepr,
	disconnectingRepr,
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return string(stateNames[s])
}

// Event represents and event that can change the state of a state machine
type Event string

const (
	handshakeSent       Event = "handshake request sent"
	handshakeSucceeded  Event = "successful handshake response"
	rehandshakeRequired Event = "session lost"
	connectSent         Event = "connect request sent"
	connectSucceeded    Event = "successful connect response"
	disconnectSent      Event = "disconnect request sent"
	disconnectCompleted Event = "disconnect completed"
	sessionTerminated   Event = "session terminated"
)

var transitions = map[State]map[Event]State{
	Disconnected: {
		handshakeSent: Handshaking,
	},
	Handshaking: {
		handshakeSent:      Handshaking,
		handshakeSucceeded: Connected,
		disconnectSent:     Disconnecting,
		sessionTerminated:  Disconnected,
	},
	Rehandshaking: {
		handshakeSent:      Rehandshaking,
		handshakeSucceeded: Connected,
		disconnectSent:     Disconnecting,
		sessionTerminated:  Disconnected,
	},
	Connecting: {
		connectSent:         Connecting,
		connectSucceeded:    Connected,
		rehandshakeRequired: Rehandshaking,
		disconnectSent:      Disconnecting,
		sessionTerminated:   Disconnected,
	},
	Connected: {
		connectSent:         Connecting,
		rehandshakeRequired: Rehandshaking,
		disconnectSent:      Disconnecting,
		sessionTerminated:   Disconnected,
	},
	Disconnecting: {
		disconnectCompleted: Disconnected,
	},
}

func knownEvent(e Event) bool {
	for _, events := range transitions {
		if _, ok := events[e]; ok {
			return true
		}
	}
	return false
}

type stateWaiter struct {
	targets []State
	reached chan struct{}
}

// ConnectionStateMachine handles managing the connection's state. Every
// transition goes through ProcessEvent, and goroutines blocked in WaitFor
// are released when the machine enters one of the states they wait for.
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type ConnectionStateMachine struct {
	mu      sync.Mutex
	current State
	waiters []*stateWaiter
	// observer is called with every transition while mu is held
	observer func(from, to State)
}

// NewConnectionStateMachine creates a new ConnectionStateMachine to manage a
// connection's state
func NewConnectionStateMachine() *ConnectionStateMachine {
	return &ConnectionStateMachine{current: Disconnected}
}

// IsConnected reflects whether the connection is connected to the Bayeux
// server
func (csm *ConnectionStateMachine) IsConnected() bool {
	s := csm.Current()
	return s == Connected || s == Connecting
}

// Current returns the current state
func (csm *ConnectionStateMachine) Current() State {
	csm.mu.Lock()
	defer csm.mu.Unlock()
	return csm.current
}

// CurrentState provides a string representation of the current state of the
// state machine
func (csm *ConnectionStateMachine) CurrentState() StateRepresentation {
	return StateRepresentation(csm.Current().String())
}

// ProcessEvent handles an event
func (csm *ConnectionStateMachine) ProcessEvent(e Event) error {
	csm.mu.Lock()
	defer csm.mu.Unlock()

	next, ok := transitions[csm.current][e]
	if !ok {
		if !knownEvent(e) {
			return UnknownEventTypeError{e}
		}
		if e == handshakeSent {
			return newBadHandshake(csm.current)
		}
		return newBadTransition(csm.current, e)
	}

	from := csm.current
	csm.current = next
	if csm.observer != nil {
		csm.observer(from, next)
	}

	remaining := csm.waiters[:0]
	for _, w := range csm.waiters {
		if containsState(w.targets, next) {
			close(w.reached)
			continue
		}
		remaining = append(remaining, w)
	}
	for i := len(remaining); i < len(csm.waiters); i++ {
		csm.waiters[i] = nil
	}
	csm.waiters = remaining
	return nil
}

// WaitFor blocks until the machine is in, or enters, one of the given
// states, or until the context is done. It reports whether a target state was
// reached.
func (csm *ConnectionStateMachine) WaitFor(ctx context.Context, states ...State) bool {
	csm.mu.Lock()
	if containsState(states, csm.current) {
		csm.mu.Unlock()
		return true
	}
	w := &stateWaiter{targets: states, reached: make(chan struct{})}
	csm.waiters = append(csm.waiters, w)
	csm.mu.Unlock()

	select {
	case <-w.reached:
		return true
	case <-ctx.Done():
		csm.removeWaiter(w)
		// The transition may have raced with the deadline
		select {
		case <-w.reached:
			return true
		default:
			return false
		}
	}
}

// WaitForTimeout is WaitFor bounded by a duration instead of a context
func (csm *ConnectionStateMachine) WaitForTimeout(timeout time.Duration, states ...State) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return csm.WaitFor(ctx, states...)
}

func (csm *ConnectionStateMachine) removeWaiter(target *stateWaiter) {
	csm.mu.Lock()
	defer csm.mu.Unlock()
	for i, w := range csm.waiters {
		if w == target {
			csm.waiters = append(csm.waiters[:i], csm.waiters[i+1:]...)
			return
		}
	}
}

func containsState(states []State, s State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
