package confirm

import (
	"testing"

	"github.com/harun/serverwitch/pkg/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPresenter struct {
	presented []string
}

func (r *recordingPresenter) Present(a action.Action) {
	r.presented = append(r.presented, a.ID())
}

func execAction(id string) action.Action {
	return action.ExecuteCommand{ActionID: id, Command: "echo " + id}
}

func TestGate_PresentsInArrivalOrderOneAtATime(t *testing.T) {
	p := &recordingPresenter{}
	g := NewGate(p)

	require.NoError(t, g.Submit(execAction("1")))
	require.NoError(t, g.Submit(execAction("2")))
	require.NoError(t, g.Submit(execAction("3")))

	cur, ok := g.Current()
	require.True(t, ok)
	assert.Equal(t, "1", cur.ID())
	assert.Equal(t, []string{"1"}, p.presented)
	assert.Equal(t, StateAwaiting, g.State("1"))
	assert.Equal(t, StateReceived, g.State("2"))
	assert.Equal(t, StateReceived, g.State("3"))
	assert.Equal(t, 3, g.Pending())

	a, v, err := g.Resolve(Decision{ActionID: "1", Verdict: Approve})
	require.NoError(t, err)
	assert.Equal(t, "1", a.ID())
	assert.Equal(t, Approve, v)
	assert.Equal(t, StateApproved, g.State("1"))

	cur, ok = g.Current()
	require.True(t, ok)
	assert.Equal(t, "2", cur.ID())

	a, v, err = g.Resolve(Decision{ActionID: "2", Verdict: Deny})
	require.NoError(t, err)
	assert.Equal(t, "2", a.ID())
	assert.Equal(t, Deny, v)
	assert.Equal(t, StateDenied, g.State("2"))

	assert.Equal(t, []string{"1", "2", "3"}, p.presented)
	assert.Equal(t, 1, g.Pending())
}

func TestGate_StaleDecisionRejected(t *testing.T) {
	g := NewGate(nil)

	_, _, err := g.Resolve(Decision{ActionID: "1", Verdict: Approve})
	assert.ErrorIs(t, err, ErrStaleDecision)

	require.NoError(t, g.Submit(execAction("1")))
	require.NoError(t, g.Submit(execAction("2")))

	// a decision for a queued action must not apply
	_, _, err = g.Resolve(Decision{ActionID: "2", Verdict: Approve})
	assert.ErrorIs(t, err, ErrStaleDecision)
	assert.Equal(t, StateAwaiting, g.State("1"))
	assert.Equal(t, StateReceived, g.State("2"))

	_, _, err = g.Resolve(Decision{ActionID: "1", Verdict: Approve})
	require.NoError(t, err)

	// answering the same action twice is stale as well
	_, _, err = g.Resolve(Decision{ActionID: "1", Verdict: Deny})
	assert.ErrorIs(t, err, ErrStaleDecision)
	assert.Equal(t, StateApproved, g.State("1"))
}

func TestGate_InvalidVerdict(t *testing.T) {
	g := NewGate(nil)
	require.NoError(t, g.Submit(execAction("1")))

	_, _, err := g.Resolve(Decision{ActionID: "1"})
	assert.Error(t, err)
	assert.Equal(t, StateAwaiting, g.State("1"))
}

func TestGate_DuplicateSubmit(t *testing.T) {
	g := NewGate(nil)
	require.NoError(t, g.Submit(execAction("1")))
	assert.ErrorIs(t, g.Submit(execAction("1")), ErrDuplicateAction)
	assert.Equal(t, 1, g.Pending())
}

func TestGate_DiscardAll(t *testing.T) {
	g := NewGate(nil)
	require.NoError(t, g.Submit(execAction("1")))
	require.NoError(t, g.Submit(execAction("2")))
	require.NoError(t, g.Submit(execAction("3")))

	_, _, err := g.Resolve(Decision{ActionID: "1", Verdict: Approve})
	require.NoError(t, err)

	discarded := g.DiscardAll()
	require.Len(t, discarded, 2)
	assert.Equal(t, "2", discarded[0].ID())
	assert.Equal(t, "3", discarded[1].ID())

	assert.Equal(t, StateApproved, g.State("1"))
	assert.Equal(t, StateDiscarded, g.State("2"))
	assert.Equal(t, StateDiscarded, g.State("3"))
	assert.Equal(t, 0, g.Pending())

	_, ok := g.Current()
	assert.False(t, ok)

	_, _, err = g.Resolve(Decision{ActionID: "2", Verdict: Approve})
	assert.ErrorIs(t, err, ErrStaleDecision)
	assert.ErrorIs(t, g.Submit(execAction("4")), ErrGateClosed)
	assert.Equal(t, StateUnknown, g.State("4"))
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, "approve", Approve.String())
	assert.Equal(t, "deny", Deny.String())
	assert.Equal(t, "unknown", Verdict(0).String())
}
