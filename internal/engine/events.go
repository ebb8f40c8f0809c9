package engine

import (
	"fmt"
	"sync"
)

// Op names a mutating engine operation.
type Op string

const (
	OpRegisterUnit   Op = "register_unit"
	OpAddDependency  Op = "add_dependency"
	OpResolve        Op = "resolve_dependency"
	OpPlant          Op = "plant"
	OpEcho           Op = "echo"
	OpActivate       Op = "activate"
	OpReveal         Op = "reveal"
	OpAbandon        Op = "abandon"
	OpAssignReveal   Op = "assign_reveal"
	OpSetVisibility  Op = "set_visibility"
	OpRegisterEntity Op = "register_entity"
	OpCommit         Op = "commit"
	OpRestore        Op = "restore"
)

// Event is emitted after a mutation has been applied and the lock released.
type Event struct {
	Op      Op
	Subject string // unit, element, entity or edge the operation touched
	Seq     int    // commit sequence for OpCommit, 0 otherwise
}

func (e Event) String() string {
	if e.Seq > 0 {
		return fmt.Sprintf("%s %s (seq %d)", e.Op, e.Subject, e.Seq)
	}
	return fmt.Sprintf("%s %s", e.Op, e.Subject)
}

// Notifier fans mutation events out through a buffered channel. Emit after
// Close is a no-op.
type Notifier struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewNotifier creates a Notifier with a buffered channel of size 64.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan Event, 64)}
}

// Emit sends an event without blocking. If the channel is full the event is
// dropped; subscribers must treat events as hints and read state from the
// engine.
func (n *Notifier) Emit(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- ev:
	default:
	}
}

// Subscribe returns a read-only channel of events.
func (n *Notifier) Subscribe() <-chan Event {
	return n.ch
}

// Close closes the event channel. Closing twice is safe.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
