package confirm

import (
	"errors"

	"github.com/harun/serverwitch/pkg/action"
)

var (
	// ErrStaleDecision is returned when a decision does not answer the
	// action currently awaiting confirmation.
	ErrStaleDecision = errors.New("decision does not match the awaiting action")
	// ErrDuplicateAction is returned when an id was already submitted.
	ErrDuplicateAction = errors.New("action id already submitted")
	// ErrGateClosed is returned by Submit after DiscardAll.
	ErrGateClosed = errors.New("confirmation gate is closed")
)

// State is the confirmation state of one action.
type State string

const (
	StateUnknown   State = ""
	StateReceived  State = "received"
	StateAwaiting  State = "awaiting_confirmation"
	StateApproved  State = "approved"
	StateDenied    State = "denied"
	StateDiscarded State = "discarded"
)

// Verdict is the human's answer.
type Verdict int

const (
	Approve Verdict = iota + 1
	Deny
)

func (v Verdict) String() string {
	switch v {
	case Approve:
		return "approve"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is a verdict bound to exactly one action id.
type Decision struct {
	ActionID string
	Verdict  Verdict
}

// Presenter is told whenever an action becomes the one awaiting
// confirmation.
type Presenter interface {
	Present(a action.Action)
}

// Gate serializes actions through human confirmation
type Gate struct {
	presenter Presenter
	current   action.Action
	queue     []action.Action
	states    map[string]State
	closed    bool
}

// NewGate creates a new Gate. presenter may be nil.
func NewGate(presenter Presenter) *Gate {
	return &Gate{
		presenter: presenter,
		states:    make(map[string]State),
	}
}

// Submit enqueues a newly received action. If nothing is awaiting it is
// promoted and presented immediately.
func (g *Gate) Submit(a action.Action) error {
	if g.closed {
		return ErrGateClosed
	}
	if _, exists := g.states[a.ID()]; exists {
		return ErrDuplicateAction
	}

	g.states[a.ID()] = StateReceived
	g.queue = append(g.queue, a)
	g.promote()
	return nil
}

// Current returns the action awaiting confirmation, if any.
func (g *Gate) Current() (action.Action, bool) {
	return g.current, g.current != nil
}

// Pending returns how many actions are received or awaiting.
func (g *Gate) Pending() int {
	n := len(g.queue)
	if g.current != nil {
		n++
	}
	return n
}

// Resolve applies d to the awaiting action and promotes the next one. The
// resolved action is returned so the caller can execute or deny it.
func (g *Gate) Resolve(d Decision) (action.Action, Verdict, error) {
	if g.current == nil || g.current.ID() != d.ActionID {
		return nil, 0, ErrStaleDecision
	}
	if d.Verdict != Approve && d.Verdict != Deny {
		return nil, 0, errors.New("invalid verdict")
	}

	a := g.current
	g.current = nil
	if d.Verdict == Approve {
		g.states[a.ID()] = StateApproved
	} else {
		g.states[a.ID()] = StateDenied
	}

	g.promote()
	return a, d.Verdict, nil
}

// DiscardAll drops every received or awaiting action and closes the gate.
// The discarded actions are returned in arrival order.
func (g *Gate) DiscardAll() []action.Action {
	var discarded []action.Action
	if g.current != nil {
		discarded = append(discarded, g.current)
	}
	discarded = append(discarded, g.queue...)

	for _, a := range discarded {
		g.states[a.ID()] = StateDiscarded
	}
	g.current = nil
	g.queue = nil
	g.closed = true
	return discarded
}

// State returns the confirmation state of id.
func (g *Gate) State(id string) State {
	return g.states[id]
}

func (g *Gate) promote() {
	if g.current != nil || len(g.queue) == 0 {
		return
	}

	g.current = g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	g.states[g.current.ID()] = StateAwaiting

	if g.presenter != nil {
		g.presenter.Present(g.current)
	}
}
