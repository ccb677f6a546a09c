// Package confirm puts a human between the relay and the host.
//
// Every inbound action passes through a Gate before it may run:
//
//	Received → AwaitingConfirmation → {Approved, Denied}
//
// and Discarded when the session ends first. Actions are presented strictly
// in arrival order and only one is awaiting at any time. A Decision is bound
// to the id of the action it answers, so a keystroke can never approve a
// different action than the one on screen.
//
// The Monitor owns the input stream and turns keystrokes into Keys. The
// Prompter renders what is awaiting and what happened to it.
//
// Invariants:
//   - At most one action is AwaitingConfirmation.
//   - Resolve only applies a Decision whose ActionID is the awaiting one.
//   - Discarded actions never reach the executor.
//
// The Gate is not safe for concurrent use: it belongs to the supervisor loop.
package confirm
