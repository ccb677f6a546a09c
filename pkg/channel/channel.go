package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/serverwitch/pkg/action"
	"github.com/rs/zerolog"
)

const (
	defaultWriteTimeout = 10 * time.Second
	itemBuffer          = 16
)

// Config holds channel configuration
type Config struct {
	// KeepaliveInterval is the ping period. Zero disables keepalive.
	KeepaliveInterval time.Duration
	// WriteTimeout bounds a single Send when ctx has no deadline.
	WriteTimeout time.Duration
}

// Item is one decoded inbound message: either an Action or the reason it
// could not be decoded.
type Item struct {
	Action action.Action
	Err    *action.ProtocolError
}

// Channel is the persistent message channel of a session
type Channel struct {
	conn   *websocket.Conn
	cfg    Config
	logger zerolog.Logger

	items chan Item
	done  chan struct{}
	stop  chan struct{}

	errMu sync.Mutex
	err   error

	writeMu sync.Mutex

	// seen is only touched by the reader goroutine.
	seen map[string]struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New takes ownership of conn and starts reading from it.
func New(conn *websocket.Conn, cfg Config, logger zerolog.Logger) *Channel {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	c := &Channel{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With().Str("component", "channel").Logger(),
		items:  make(chan Item, itemBuffer),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		seen:   make(map[string]struct{}),
	}

	if cfg.KeepaliveInterval > 0 {
		c.extendDeadline()
		conn.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
	}

	c.wg.Add(1)
	go c.readLoop()

	if cfg.KeepaliveInterval > 0 {
		c.wg.Add(1)
		go c.keepalive()
	}

	return c
}

// Items returns the inbound sequence. It is closed when the channel ends.
func (c *Channel) Items() <-chan Item {
	return c.items
}

// Done is closed once the inbound sequence has ended.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns nil after a clean close by either side and a *ChannelError
// after a transport fault. It is only meaningful once Done is closed.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send writes one result. A failure means the channel is no longer usable.
func (c *Channel) Send(ctx context.Context, res action.Result) error {
	if err := ctx.Err(); err != nil {
		return &ChannelError{Op: "write", Err: err}
	}

	data, err := action.EncodeResult(res)
	if err != nil {
		return fmt.Errorf("failed to encode result %q: %w", res.ActionID, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return &ChannelError{Op: "write", Err: ErrClosed}
	default:
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Error().Err(err).Str("action_id", res.ActionID).Msg("Failed to send result")
		return &ChannelError{Op: "write", Err: err}
	}

	c.logger.Debug().
		Str("action_id", res.ActionID).
		Str("status", string(res.Status())).
		Msg("Result sent")
	return nil
}

// Close sends a normal close frame, releases the connection and waits for
// the background goroutines to exit.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.stop)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer close(c.items)

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		if c.cfg.KeepaliveInterval > 0 {
			c.extendDeadline()
		}

		item := c.decode(msgType, payload)
		if item.Err != nil {
			c.logger.Warn().
				Str("action_id", item.Err.ActionID).
				Str("reason", item.Err.Error()).
				Msg("Skipping malformed message")
		}

		select {
		case c.items <- item:
		case <-c.stop:
			return
		}
	}
}

func (c *Channel) decode(msgType int, payload []byte) Item {
	if msgType != websocket.TextMessage {
		return Item{Err: &action.ProtocolError{Reason: "binary frames are not supported"}}
	}

	a, err := action.Decode(payload)
	if err != nil {
		var perr *action.ProtocolError
		if !errors.As(err, &perr) {
			perr = &action.ProtocolError{Reason: "invalid request", Err: err}
		}
		return Item{Err: perr}
	}

	if _, dup := c.seen[a.ID()]; dup {
		return Item{Err: &action.ProtocolError{ActionID: a.ID(), Reason: "duplicate action id"}}
	}
	c.seen[a.ID()] = struct{}{}

	return Item{Action: a}
}

// finish records why the read side ended.
func (c *Channel) finish(err error) {
	switch {
	case c.closing.Load():
		c.logger.Debug().Msg("Channel closed locally")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info().Msg("Channel closed by relay")
	default:
		c.logger.Error().Err(err).Msg("Channel transport fault")
		c.errMu.Lock()
		c.err = &ChannelError{Op: "read", Err: err}
		c.errMu.Unlock()
	}
}

func (c *Channel) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * c.cfg.KeepaliveInterval))
}

func (c *Channel) keepalive() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			if err != nil {
				c.logger.Warn().Err(err).Msg("Keepalive ping failed")
				return
			}
		}
	}
}
