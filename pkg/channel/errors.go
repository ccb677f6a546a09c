package channel

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Send once the inbound sequence has ended.
var ErrClosed = errors.New("channel closed")

// ChannelError reports a transport fault after the session was established.
// It ends the session.
type ChannelError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
