// Package supervisor owns the control flow of one relay session.
//
// A single loop waits on whichever comes first: an inbound item from the
// channel, a keystroke from the monitor, a finished execution or
// cancellation. Actions go through the confirmation gate one at a time;
// approved actions execute concurrently and their results are sent back
// correlated by id. When the session ends, actions still waiting for a
// decision are discarded without a result, running executions are allowed to
// finish and their results are sent best-effort.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/serverwitch/internal/observability"
	"github.com/harun/serverwitch/internal/tracing"
	"github.com/harun/serverwitch/pkg/action"
	"github.com/harun/serverwitch/pkg/channel"
	"github.com/harun/serverwitch/pkg/confirm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Process exit statuses.
const (
	ExitClean = 0
	ExitFault = 1
)

const defaultMaxConcurrency = 100

// Channel is the session transport
type Channel interface {
	Items() <-chan channel.Item
	Err() error
	Send(ctx context.Context, res action.Result) error
	Close() error
}

// Executor runs approved actions
type Executor interface {
	Execute(ctx context.Context, a action.Action) action.Outcome
}

// Display renders prompts and status lines for the operator
type Display interface {
	confirm.Presenter
	Banner(sessionID string)
	Approved(a action.Action)
	Denied(a action.Action)
	Finished(a action.Action, out action.Outcome)
	Discarded(actions []action.Action)
	Info(msg string)
}

// Options holds supervisor dependencies. Metrics and Audit may be nil.
type Options struct {
	SessionID      string
	MaxConcurrency int
	Display        Display
	Metrics        *observability.Metrics
	Audit          *observability.AuditLogger
	Logger         zerolog.Logger
}

// Termination causes.
const (
	CauseRemoteClose    = "remote_close"
	CauseTransportFault = "transport_fault"
	CauseSendFailure    = "send_failure"
	CauseLocalQuit      = "local_quit"
	CauseCancelled      = "cancelled"
)

type termination struct {
	cause string
	err   error
}

type completion struct {
	action   action.Action
	outcome  action.Outcome
	duration time.Duration
}

// Supervisor drives one session from the first inbound item to exit
type Supervisor struct {
	ch      Channel
	keys    <-chan confirm.Key
	exec    Executor
	gate    *confirm.Gate
	display Display
	metrics *observability.Metrics
	audit   *observability.AuditLogger
	logger  zerolog.Logger

	sessionID   string
	sem         *semaphore.Weighted
	completions chan completion
	inFlight    int

	execCtx   context.Context
	abortExec context.CancelFunc
	ran       bool
}

// New creates a new Supervisor
func New(ch Channel, keys <-chan confirm.Key, exec Executor, opts Options) *Supervisor {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}

	return &Supervisor{
		ch:          ch,
		keys:        keys,
		exec:        exec,
		gate:        confirm.NewGate(opts.Display),
		display:     opts.Display,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		logger:      opts.Logger.With().Str("component", "supervisor").Str("session_id", opts.SessionID).Logger(),
		sessionID:   opts.SessionID,
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		completions: make(chan completion),
	}
}

// Gate exposes the confirmation state for introspection.
func (s *Supervisor) Gate() *confirm.Gate {
	return s.gate
}

// Run serves the session until it ends and returns the process exit status.
// Run may only be called once.
func (s *Supervisor) Run(ctx context.Context) int {
	if s.ran {
		panic("supervisor: Run called twice")
	}
	s.ran = true

	ctx = tracing.WithSessionID(ctx, s.sessionID)
	s.execCtx, s.abortExec = context.WithCancel(context.WithoutCancel(ctx))
	defer s.abortExec()

	s.logger.Info().Msg("Session started")
	s.audit.RecordSessionAudit(ctx, "started", "success", nil)
	if s.display != nil {
		s.display.Banner(s.sessionID)
	}

	term := s.loop(ctx)
	return s.shutdown(ctx, term)
}

func (s *Supervisor) loop(ctx context.Context) termination {
	items := s.ch.Items()
	keys := s.keys

	for {
		select {
		case item, ok := <-items:
			if !ok {
				if err := s.ch.Err(); err != nil {
					return termination{cause: CauseTransportFault, err: err}
				}
				return termination{cause: CauseRemoteClose}
			}
			if err := s.handleItem(ctx, item); err != nil {
				return termination{cause: CauseSendFailure, err: err}
			}

		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if k == confirm.KeyQuit {
				return termination{cause: CauseLocalQuit}
			}
			if err := s.handleKey(ctx, k); err != nil {
				return termination{cause: CauseSendFailure, err: err}
			}

		case c := <-s.completions:
			if err := s.handleCompletion(ctx, c); err != nil {
				return termination{cause: CauseSendFailure, err: err}
			}

		case <-ctx.Done():
			return termination{cause: CauseCancelled}
		}
	}
}

func (s *Supervisor) handleItem(ctx context.Context, item channel.Item) error {
	if item.Err != nil {
		s.metrics.RecordProtocolError()
		s.audit.RecordActionAudit(ctx, item.Err.ActionID, "rejected", "failure", map[string]interface{}{
			"error": item.Err.Error(),
		})
		return nil
	}

	a := item.Action
	logger := s.actionLogger(a)
	logger.Info().Str("kind", string(a.Kind())).Str("summary", a.Summary()).Msg("Action received")

	s.metrics.RecordAction(string(a.Kind()))
	s.audit.RecordActionAudit(ctx, a.ID(), "received", "pending", map[string]interface{}{
		"kind":    string(a.Kind()),
		"summary": a.Summary(),
	})

	if err := s.gate.Submit(a); err != nil {
		logger.Warn().Err(err).Msg("Action not accepted by confirmation gate")
		return nil
	}
	s.metrics.SetPending(s.gate.Pending())
	return nil
}

func (s *Supervisor) handleKey(ctx context.Context, k confirm.Key) error {
	verdict, ok := k.Verdict()
	if !ok {
		return nil
	}

	cur, awaiting := s.gate.Current()
	if !awaiting {
		s.logger.Debug().Str("key", k.String()).Msg("Ignoring key, nothing awaits confirmation")
		return nil
	}

	if s.display != nil {
		if verdict == confirm.Approve {
			s.display.Approved(cur)
		} else {
			s.display.Denied(cur)
		}
	}

	a, verdict, err := s.gate.Resolve(confirm.Decision{ActionID: cur.ID(), Verdict: verdict})
	if err != nil {
		s.logger.Error().Err(err).Str("action_id", cur.ID()).Msg("Failed to resolve decision")
		return nil
	}
	s.metrics.SetPending(s.gate.Pending())
	s.metrics.RecordDecision(verdict.String())

	logger := s.actionLogger(a)
	switch verdict {
	case confirm.Approve:
		logger.Info().Msg("Action approved")
		s.audit.RecordActionAudit(ctx, a.ID(), "approved", "success", nil)
		s.dispatch(a)
		return nil

	default:
		logger.Info().Msg("Action denied")
		s.audit.RecordActionAudit(ctx, a.ID(), "denied", "success", nil)
		return s.send(ctx, action.Denied(a.ID()))
	}
}

// dispatch starts an approved action. The loop never blocks on the
// concurrency bound: the execution goroutine waits for its slot.
func (s *Supervisor) dispatch(a action.Action) {
	s.inFlight++
	s.metrics.ExecutionStarted()

	actx := tracing.WithActionID(s.execCtx, a.ID())
	go func() {
		var out action.Outcome
		started := time.Now()

		if err := s.sem.Acquire(actx, 1); err != nil {
			out = action.Failure(fmt.Sprintf("execution abandoned: %v", err))
		} else {
			started = time.Now()
			out = s.exec.Execute(actx, a)
			s.sem.Release(1)
		}

		s.completions <- completion{action: a, outcome: out, duration: time.Since(started)}
	}()
}

func (s *Supervisor) handleCompletion(ctx context.Context, c completion) error {
	s.inFlight--
	s.metrics.ExecutionFinished(string(c.action.Kind()), c.duration)

	res := action.Completed(c.action.ID(), c.outcome)
	logger := s.actionLogger(c.action)
	event := logger.Info()
	if !c.outcome.Success {
		event = logger.Warn().Str("error", c.outcome.Err)
	}
	if c.outcome.ExitCode != nil {
		event = event.Int("exit_code", *c.outcome.ExitCode)
	}
	event.Dur("duration", c.duration).Msg("Action finished")

	meta := map[string]interface{}{"duration_ms": c.duration.Milliseconds()}
	if c.outcome.ExitCode != nil {
		meta["exit_code"] = *c.outcome.ExitCode
	}
	if c.outcome.Err != "" {
		meta["error"] = c.outcome.Err
	}
	s.audit.RecordActionAudit(ctx, c.action.ID(), "executed", string(res.Status()), meta)

	if s.display != nil {
		s.display.Finished(c.action, c.outcome)
	}
	return s.send(ctx, res)
}

// send writes a result. Only a transport failure is returned.
func (s *Supervisor) send(ctx context.Context, res action.Result) error {
	err := s.ch.Send(context.WithoutCancel(ctx), res)
	s.metrics.RecordResult(string(res.Status()), err == nil)
	if err == nil {
		return nil
	}

	s.logger.Error().Err(err).Str("action_id", res.ActionID).Msg("Failed to send result")
	var cerr *channel.ChannelError
	if errors.As(err, &cerr) {
		return err
	}
	return nil
}

func (s *Supervisor) shutdown(ctx context.Context, term termination) int {
	logger := s.logger.With().Str("cause", term.cause).Logger()
	if term.err != nil {
		logger.Error().Err(term.err).Msg("Session terminated")
	} else {
		logger.Info().Msg("Session terminated")
	}

	discarded := s.gate.DiscardAll()
	for _, a := range discarded {
		s.metrics.RecordDecision("discard")
		s.audit.RecordActionAudit(ctx, a.ID(), "discarded", "failure", nil)
		logger := s.actionLogger(a)
		logger.Info().Msg("Action discarded")
	}
	s.metrics.SetPending(0)
	if s.display != nil && len(discarded) > 0 {
		s.display.Discarded(discarded)
	}

	s.drain(ctx)

	if err := s.ch.Close(); err != nil {
		logger.Debug().Err(err).Msg("Channel close failed")
	}

	status := "success"
	exit := ExitClean
	if term.err != nil {
		status = "failure"
		exit = ExitFault
	}
	meta := map[string]interface{}{"cause": term.cause}
	if term.err != nil {
		meta["error"] = term.err.Error()
	}
	s.audit.RecordSessionAudit(ctx, "ended", status, meta)

	if s.display != nil {
		if term.err != nil {
			s.display.Info("Session ended: " + term.err.Error())
		} else {
			s.display.Info("Session ended.")
		}
	}
	return exit
}

// drain waits for running executions and sends their results best-effort.
// A quit key or cancellation of ctx abandons them.
func (s *Supervisor) drain(ctx context.Context) {
	if s.inFlight == 0 {
		return
	}

	s.logger.Info().Int("in_flight", s.inFlight).Msg("Waiting for running actions")
	if s.display != nil {
		s.display.Info(fmt.Sprintf("Waiting for %d running action(s), press q to abandon.", s.inFlight))
	}

	keys := s.keys
	done := ctx.Done()
	for s.inFlight > 0 {
		select {
		case c := <-s.completions:
			_ = s.handleCompletion(ctx, c)
		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if k == confirm.KeyQuit {
				s.abandon("quit")
			}
		case <-done:
			done = nil
			s.abandon("cancelled")
		}
	}
}

func (s *Supervisor) abandon(reason string) {
	s.logger.Warn().Int("in_flight", s.inFlight).Str("reason", reason).Msg("Abandoning running actions")
	s.abortExec()
}

func (s *Supervisor) actionLogger(a action.Action) zerolog.Logger {
	return s.logger.With().Str("action_id", a.ID()).Logger()
}
