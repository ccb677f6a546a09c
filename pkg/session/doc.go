// Package session negotiates a session with the relay and upgrades it to the
// persistent websocket channel used for the rest of the process lifetime.
//
// Invariants:
// - Establish either returns a Session with a non-empty ID and a live
//   connection, or a *ConnectionError. It never retries.
// - The whole negotiation is bounded by Config.HandshakeTimeout.
//
// Usage:
//
//	n, _ := session.NewNegotiator(session.Config{BaseURL: "https://relay.example"}, logger)
//	s, err := n.Establish(ctx)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	fmt.Println("Session id:", s.ID)
package session
