package session

import "fmt"

// Stage names the step of the negotiation that failed.
type Stage string

const (
	StageRequest   Stage = "request"
	StageDecode    Stage = "decode"
	StageUpgrade   Stage = "upgrade"
	StageHandshake Stage = "handshake"
)

// ConnectionError reports a failed negotiation. It is fatal to the process.
type ConnectionError struct {
	Stage      Stage
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("cannot connect to relay (%s %s)", e.Stage, e.URL)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
