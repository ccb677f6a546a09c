// Package relaytest provides an in-process relay for tests: it serves the
// session endpoint, accepts the websocket upgrade and lets a test drive the
// relay side of the protocol.
package relaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/serverwitch/pkg/action"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"
)

// Option configures a Relay
type Option func(*Relay)

// WithSessionID makes the relay hand out id instead of a random one.
func WithSessionID(id string) Option {
	return func(r *Relay) { r.sessionID = id }
}

// WithSessionStatus makes POST /session fail with the given status.
func WithSessionStatus(status int) Option {
	return func(r *Relay) { r.sessionStatus = status }
}

// WithSessionBody replaces the body of a successful POST /session.
func WithSessionBody(body string) Option {
	return func(r *Relay) { r.sessionBody = body }
}

// WithRejectUpgrade makes every websocket upgrade fail with 403.
func WithRejectUpgrade() Option {
	return func(r *Relay) { r.rejectUpgrade = true }
}

// Relay is a fake relay server
type Relay struct {
	URL string

	server        *httptest.Server
	upgrader      websocket.Upgrader
	sessionID     string
	sessionStatus int
	sessionBody   string
	rejectUpgrade bool
	conns         chan *Conn

	mu       sync.Mutex
	requests []*http.Request
	upgrades []*http.Request
	conn     []*Conn
}

// New starts a Relay that is shut down when the test ends.
func New(t testing.TB, opts ...Option) *Relay {
	t.Helper()

	id, err := gonanoid.New()
	require.NoError(t, err)

	r := &Relay{
		sessionID: id,
		conns:     make(chan *Conn, 4),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", r.handleSession)
	mux.HandleFunc("/session/", r.handleUpgrade)

	r.server = httptest.NewServer(mux)
	r.URL = r.server.URL

	t.Cleanup(r.Close)
	return r
}

// SessionID returns the id the relay hands out.
func (r *Relay) SessionID() string {
	return r.sessionID
}

// Close shuts the relay down and drops every connection.
func (r *Relay) Close() {
	r.mu.Lock()
	conns := append([]*Conn(nil), r.conn...)
	r.mu.Unlock()

	for _, c := range conns {
		c.Drop()
	}
	r.server.Close()
}

// SessionRequests returns the POST /session requests received so far.
func (r *Relay) SessionRequests() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.requests...)
}

// Upgrades returns the websocket upgrade requests received so far.
func (r *Relay) Upgrades() []*http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*http.Request(nil), r.upgrades...)
}

// Dial opens a websocket to the relay's session endpoint without going
// through negotiation and returns both ends.
func (r *Relay) Dial(t testing.TB) (*websocket.Conn, *Conn) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(r.URL, "http") + "/session/" + r.sessionID
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })

	return ws, r.Accept(t)
}

// Accept waits for the agent's websocket connection.
func (r *Relay) Accept(t testing.TB) *Conn {
	t.Helper()

	select {
	case c := <-r.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for agent websocket connection")
		return nil
	}
}

func (r *Relay) handleSession(w http.ResponseWriter, req *http.Request) {
	if websocket.IsWebSocketUpgrade(req) {
		// frame strategy: the session id arrives as the first frame
		c := r.upgrade(w, req)
		if c == nil {
			return
		}
		_ = c.ws.WriteJSON(map[string]string{"session_id": r.sessionID})
		c.start()
		r.conns <- c
		return
	}

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.sessionStatus != 0 {
		http.Error(w, "session refused", r.sessionStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.sessionBody != "" {
		_, _ = w.Write([]byte(r.sessionBody))
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"session_id": r.sessionID})
}

func (r *Relay) handleUpgrade(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/session/")
	if id != r.sessionID {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	c := r.upgrade(w, req)
	if c == nil {
		return
	}
	c.start()
	r.conns <- c
}

func (r *Relay) upgrade(w http.ResponseWriter, req *http.Request) *Conn {
	r.mu.Lock()
	r.upgrades = append(r.upgrades, req)
	r.mu.Unlock()

	if r.rejectUpgrade {
		http.Error(w, "upgrade refused", http.StatusForbidden)
		return nil
	}

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil
	}

	c := &Conn{
		ws:       ws,
		messages: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.conn = append(r.conn, c)
	r.mu.Unlock()
	return c
}

// Conn is the relay side of an agent connection
type Conn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	messages chan []byte
	done     chan struct{}
	pings    int
	pingMu   sync.Mutex
}

func (c *Conn) start() {
	c.ws.SetPingHandler(func(data string) error {
		c.pingMu.Lock()
		c.pings++
		c.pingMu.Unlock()
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go func() {
		defer close(c.done)
		for {
			_, msg, err := c.ws.ReadMessage()
			if err != nil {
				return
			}
			c.messages <- msg
		}
	}()
}

// Pings returns how many keepalive pings the agent has sent.
func (c *Conn) Pings() int {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.pings
}

// SendRaw writes a text frame verbatim.
func (c *Conn) SendRaw(t testing.TB, payload string) {
	t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(t, c.ws.WriteMessage(websocket.TextMessage, []byte(payload)))
}

// SendBinary writes a binary frame.
func (c *Conn) SendBinary(t testing.TB, payload []byte) {
	t.Helper()
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	require.NoError(t, c.ws.WriteMessage(websocket.BinaryMessage, payload))
}

// SendAction writes the wire form of a.
func (c *Conn) SendAction(t testing.TB, a action.Action) {
	t.Helper()
	data, err := action.EncodeAction(a)
	require.NoError(t, err)
	c.SendRaw(t, string(data))
}

// ReadRaw waits for the next text frame from the agent.
func (c *Conn) ReadRaw(t testing.TB, timeout time.Duration) string {
	t.Helper()
	select {
	case msg := <-c.messages:
		return string(msg)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a message from the agent")
		return ""
	}
}

// ReadResult waits for the next result from the agent.
func (c *Conn) ReadResult(t testing.TB, timeout time.Duration) action.Result {
	t.Helper()
	res, err := action.DecodeResult([]byte(c.ReadRaw(t, timeout)))
	require.NoError(t, err)
	return res
}

// ExpectSilence fails the test if the agent sends anything within d.
func (c *Conn) ExpectSilence(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case msg := <-c.messages:
		t.Fatalf("expected no message, got %s", msg)
	case <-time.After(d):
	}
}

// Messages drains every message received until the agent disconnects.
func (c *Conn) Messages(t testing.TB, timeout time.Duration) []string {
	t.Helper()
	var out []string
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.messages:
			out = append(out, string(msg))
		case <-c.done:
			for {
				select {
				case msg := <-c.messages:
					out = append(out, string(msg))
				default:
					return out
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for the agent to disconnect")
			return out
		}
	}
}

// Disconnected is closed once the agent side of the connection is gone.
func (c *Conn) Disconnected() <-chan struct{} {
	return c.done
}

// Close performs a clean websocket close from the relay side.
func (c *Conn) Close() {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
}

// Drop closes the TCP connection without a close handshake.
func (c *Conn) Drop() {
	_ = c.ws.UnderlyingConn().Close()
}
