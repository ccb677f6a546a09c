package action

import "fmt"

// ProtocolError reports an inbound message that could not be turned into an
// Action. It is recoverable: the message is skipped and decoding continues.
type ProtocolError struct {
	// ActionID is the id found in the message, if any could be read.
	ActionID string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	msg := "malformed message"
	if e.ActionID != "" {
		msg = fmt.Sprintf("malformed message %q", e.ActionID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(id string, err error, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		ActionID: id,
		Reason:   fmt.Sprintf(format, args...),
		Err:      err,
	}
}
