package session

import (
	"fmt"
	"net/url"
	"strings"
)

// parseBaseURL accepts http, https, ws and wss relay addresses.
func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("relay URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid relay URL scheme %q (must be http, https, ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid relay URL: missing host")
	}
	return u, nil
}

// endpoint returns base with elems appended to its path, using scheme family
// http (for plain requests) or ws (for upgrades).
func endpoint(base *url.URL, websocket bool, elems ...string) string {
	u := *base
	u.RawQuery = ""
	u.Fragment = ""

	secure := u.Scheme == "https" || u.Scheme == "wss"
	switch {
	case websocket && secure:
		u.Scheme = "wss"
	case websocket:
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}

	return u.JoinPath(elems...).String()
}
