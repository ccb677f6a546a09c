package executor

import (
	"bytes"
	"sync"
)

// capture collects a process stream up to an optional limit. Writes past the
// limit are accepted and dropped so the child never blocks on a full pipe.
type capture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

// Write implements io.Writer
func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(p)
	if c.limit > 0 {
		room := c.limit - c.buf.Len()
		if room <= 0 {
			c.truncated = true
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			c.truncated = true
		}
	}
	c.buf.Write(p)
	return n, nil
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *capture) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
