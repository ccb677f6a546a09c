package action

// Status is the wire status of a Result.
type Status string

const (
	StatusOK     Status = "ok"
	StatusError  Status = "error"
	StatusDenied Status = "denied"
)

// Outcome is the structured result of executing an Action on the host.
// Host-side failures are carried in Err, never returned as Go errors.
type Outcome struct {
	Success bool
	Stdout  string
	Stderr  string
	// ExitCode is set for commands whose process ran to termination.
	ExitCode *int
	// Content is set for successful file reads.
	Content []byte
	// Truncated reports that captured output hit the configured size limit.
	Truncated bool
	Err       string
}

// Failure builds an unsuccessful Outcome with the given error text.
func Failure(msg string) Outcome {
	return Outcome{Err: msg}
}

// Result is the only message ever sent back to the relay for an Action.
type Result struct {
	ActionID string
	Denied   bool
	Outcome  Outcome
}

// Denied builds the result for an Action the operator rejected.
func Denied(actionID string) Result {
	return Result{ActionID: actionID, Denied: true}
}

// Completed builds the result for an Action that was executed.
func Completed(actionID string, outcome Outcome) Result {
	return Result{ActionID: actionID, Outcome: outcome}
}

// Status returns the wire status of the result.
func (r Result) Status() Status {
	switch {
	case r.Denied:
		return StatusDenied
	case r.Outcome.Success:
		return StatusOK
	default:
		return StatusError
	}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
