package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/serverwitch/internal/tracing"
	"github.com/rs/zerolog"
)

// Negotiation strategies accepted in Config.Strategy.
const (
	// StrategyHTTP obtains the id with POST /session, then upgrades
	// /session/{id} to a websocket.
	StrategyHTTP = "http"
	// StrategyFrame upgrades /session directly and reads the id from the
	// first text frame.
	StrategyFrame = "frame"
)

// SessionIDHeader carries the session id on the upgrade request.
const SessionIDHeader = "X-Session-Id"

const maxErrorBody = 512

// Config holds negotiator configuration
type Config struct {
	BaseURL          string
	Strategy         string
	HandshakeTimeout time.Duration
	ClientVersion    string
}

// Session is the single live session of the process.
type Session struct {
	ID   string
	Conn *websocket.Conn
}

// Close releases the underlying connection
func (s *Session) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}

// handshake is both the POST /session response and the first frame of the
// frame strategy.
type handshake struct {
	SessionID string `json:"session_id"`
}

type sessionRequest struct {
	Client  string `json:"client"`
	Version string `json:"version,omitempty"`
}

// Negotiator performs the session handshake with the relay
type Negotiator struct {
	cfg        Config
	base       *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     zerolog.Logger
}

// NewNegotiator creates a new Negotiator
func NewNegotiator(cfg Config, logger zerolog.Logger) (*Negotiator, error) {
	base, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyHTTP
	}
	if cfg.Strategy != StrategyHTTP && cfg.Strategy != StrategyFrame {
		return nil, fmt.Errorf("unknown negotiation strategy: %s (must be one of: %s, %s)", cfg.Strategy, StrategyHTTP, StrategyFrame)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}

	return &Negotiator{
		cfg:        cfg,
		base:       base,
		httpClient: &http.Client{},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With().Str("component", "negotiator").Logger(),
	}, nil
}

// Establish negotiates a new session and returns it with a live channel.
func (n *Negotiator) Establish(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.HandshakeTimeout)
	defer cancel()

	ctx = tracing.NewRequestContext(ctx)
	logger := tracing.LoggerFromContext(ctx, n.logger)

	var (
		s   *Session
		err error
	)
	switch n.cfg.Strategy {
	case StrategyFrame:
		s, err = n.establishFrame(ctx)
	default:
		s, err = n.establishHTTP(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Str("strategy", n.cfg.Strategy).Msg("Session negotiation failed")
		return nil, err
	}

	logger.Info().Str("session_id", s.ID).Str("strategy", n.cfg.Strategy).Msg("Session established")
	return s, nil
}

func (n *Negotiator) establishHTTP(ctx context.Context) (*Session, error) {
	sessionURL := endpoint(n.base, false, "session")

	body, err := json.Marshal(sessionRequest{Client: "serverwitch", Version: n.cfg.ClientVersion})
	if err != nil {
		return nil, &ConnectionError{Stage: StageRequest, URL: sessionURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sessionURL, bytes.NewReader(body))
	if err != nil {
		return nil, &ConnectionError{Stage: StageRequest, URL: sessionURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", tracing.GetTraceID(ctx))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{Stage: StageRequest, URL: sessionURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ConnectionError{
			Stage:      StageRequest,
			URL:        sessionURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	var hs handshake
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return nil, &ConnectionError{Stage: StageDecode, URL: sessionURL, Err: fmt.Errorf("failed to parse the session ID: %w", err)}
	}
	if hs.SessionID == "" {
		return nil, &ConnectionError{Stage: StageDecode, URL: sessionURL, Err: fmt.Errorf("failed to obtain a session ID")}
	}

	wsURL := endpoint(n.base, true, "session", hs.SessionID)
	header := http.Header{}
	header.Set(SessionIDHeader, hs.SessionID)
	header.Set("X-Request-Id", tracing.GetTraceID(ctx))

	conn, err := n.dial(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}
	return &Session{ID: hs.SessionID, Conn: conn}, nil
}

func (n *Negotiator) establishFrame(ctx context.Context) (*Session, error) {
	wsURL := endpoint(n.base, true, "session")
	header := http.Header{}
	header.Set("X-Request-Id", tracing.GetTraceID(ctx))

	conn, err := n.dial(ctx, wsURL, header)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, &ConnectionError{Stage: StageHandshake, URL: wsURL, Err: fmt.Errorf("failed to obtain a session ID: %w", err)}
	}
	_ = conn.SetReadDeadline(time.Time{})

	if msgType != websocket.TextMessage {
		conn.Close()
		return nil, &ConnectionError{Stage: StageHandshake, URL: wsURL, Err: fmt.Errorf("failed to obtain a session ID: unexpected frame type %d", msgType)}
	}

	var hs handshake
	if err := json.Unmarshal(payload, &hs); err != nil {
		conn.Close()
		return nil, &ConnectionError{Stage: StageHandshake, URL: wsURL, Err: fmt.Errorf("failed to parse the session ID: %w", err)}
	}
	if hs.SessionID == "" {
		conn.Close()
		return nil, &ConnectionError{Stage: StageHandshake, URL: wsURL, Err: fmt.Errorf("failed to obtain a session ID")}
	}

	return &Session{ID: hs.SessionID, Conn: conn}, nil
}

func (n *Negotiator) dial(ctx context.Context, wsURL string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := n.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		cerr := &ConnectionError{Stage: StageUpgrade, URL: wsURL, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		return nil, cerr
	}
	return conn, nil
}
