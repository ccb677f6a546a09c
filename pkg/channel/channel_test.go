package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harun/serverwitch/internal/relaytest"
	"github.com/harun/serverwitch/pkg/action"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func newTestChannel(t *testing.T, cfg Config) (*Channel, *relaytest.Conn) {
	t.Helper()
	relay := relaytest.New(t)
	ws, remote := relay.Dial(t)
	ch := New(ws, cfg, zerolog.Nop())
	t.Cleanup(func() { ch.Close() })
	return ch, remote
}

func nextItem(t *testing.T, ch *Channel) Item {
	t.Helper()
	select {
	case item, ok := <-ch.Items():
		require.True(t, ok, "item sequence ended unexpectedly")
		return item
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an item")
		return Item{}
	}
}

func waitDone(t *testing.T, ch *Channel) {
	t.Helper()
	select {
	case <-ch.Done():
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the channel to end")
	}
}

func TestChannel_DecodesActions(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.SendRaw(t, `{"id":"1","type":"exec","command":"echo hi"}`)
	remote.SendRaw(t, `{"id":"2","type":"read_file","path":"/etc/hostname"}`)
	remote.SendAction(t, action.WriteFile{ActionID: "3", Path: "/tmp/x", Content: []byte{0xff, 0x00}})

	item := nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, action.ExecuteCommand{ActionID: "1", Command: "echo hi"}, item.Action)

	item = nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, action.ReadFile{ActionID: "2", Path: "/etc/hostname"}, item.Action)

	item = nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, action.WriteFile{ActionID: "3", Path: "/tmp/x", Content: []byte{0xff, 0x00}}, item.Action)
}

func TestChannel_MalformedMessagesDoNotEndSequence(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.SendRaw(t, `not json`)
	remote.SendBinary(t, []byte{0x01, 0x02})
	remote.SendRaw(t, `{"id":"9","type":"launch_missiles"}`)
	remote.SendRaw(t, `{"id":"10","type":"exec"}`)
	remote.SendRaw(t, `{"id":"11","type":"exec","command":"true"}`)

	for i := 0; i < 4; i++ {
		item := nextItem(t, ch)
		require.NotNil(t, item.Err, "item %d should be a protocol error", i)
		assert.Nil(t, item.Action)
	}

	item := nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, "11", item.Action.ID())
}

func TestChannel_ProtocolErrorCarriesID(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.SendRaw(t, `{"id":"10","type":"write_file","path":"/tmp/x"}`)

	item := nextItem(t, ch)
	require.NotNil(t, item.Err)
	assert.Equal(t, "10", item.Err.ActionID)
}

func TestChannel_DuplicateIDRejected(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.SendRaw(t, `{"id":"1","type":"exec","command":"echo a"}`)
	remote.SendRaw(t, `{"id":"1","type":"exec","command":"echo b"}`)
	remote.SendRaw(t, `{"id":"2","type":"exec","command":"echo c"}`)

	item := nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, "1", item.Action.ID())

	item = nextItem(t, ch)
	require.NotNil(t, item.Err)
	assert.Equal(t, "1", item.Err.ActionID)
	assert.Contains(t, item.Err.Error(), "duplicate action id")

	item = nextItem(t, ch)
	require.Nil(t, item.Err)
	assert.Equal(t, "2", item.Action.ID())
}

func TestChannel_Send(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	err := ch.Send(context.Background(), action.Completed("1", action.Outcome{
		Success:  true,
		Stdout:   "hi\n",
		ExitCode: action.IntPtr(0),
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","status":"ok","stdout":"hi\n","exit_code":0}`, remote.ReadRaw(t, waitTimeout))

	require.NoError(t, ch.Send(context.Background(), action.Denied("2")))
	assert.JSONEq(t, `{"id":"2","status":"denied"}`, remote.ReadRaw(t, waitTimeout))
}

func TestChannel_SendCancelledContext(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ch.Send(ctx, action.Denied("1"))
	var cerr *ChannelError
	require.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, context.Canceled)
	remote.ExpectSilence(t, 100*time.Millisecond)
}

func TestChannel_RemoteCleanClose(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.SendRaw(t, `{"id":"1","type":"exec","command":"true"}`)
	remote.Close()

	item := nextItem(t, ch)
	assert.Equal(t, "1", item.Action.ID())

	waitDone(t, ch)
	_, ok := <-ch.Items()
	assert.False(t, ok)
	assert.NoError(t, ch.Err())

	err := ch.Send(context.Background(), action.Denied("1"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChannel_TransportFault(t *testing.T) {
	ch, remote := newTestChannel(t, Config{})

	remote.Drop()

	waitDone(t, ch)
	err := ch.Err()
	require.Error(t, err)

	var cerr *ChannelError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "read", cerr.Op)
}

func TestChannel_LocalClose(t *testing.T) {
	ch, remote := newTestChannel(t, Config{KeepaliveInterval: time.Hour})

	require.NoError(t, ch.Close())
	waitDone(t, ch)
	assert.NoError(t, ch.Err())

	select {
	case <-remote.Disconnected():
	case <-time.After(waitTimeout):
		t.Fatal("relay did not observe the close")
	}

	// Close is idempotent
	assert.NoError(t, ch.Close())
}

func TestChannel_Keepalive(t *testing.T) {
	ch, remote := newTestChannel(t, Config{KeepaliveInterval: 20 * time.Millisecond})

	assert.Eventually(t, func() bool { return remote.Pings() >= 3 }, waitTimeout, 10*time.Millisecond)

	// pongs keep the read deadline moving, so the channel is still alive
	select {
	case <-ch.Done():
		t.Fatalf("channel ended while keepalive was answered: %v", ch.Err())
	default:
	}
}

func TestChannelError_Message(t *testing.T) {
	err := &ChannelError{Op: "write", Err: ErrClosed}
	assert.Equal(t, "channel write failed: channel closed", err.Error())
	assert.ErrorIs(t, err, ErrClosed)
}
