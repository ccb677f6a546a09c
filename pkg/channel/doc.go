// Package channel carries actions and results over the session websocket.
//
// A Channel decodes every inbound text frame into an action.Action at the
// boundary and exposes them as a lazy sequence (Items). A malformed frame is
// reported as an Item holding an *action.ProtocolError and the sequence goes
// on. The sequence ends when the relay closes the socket (Err returns nil) or
// when the transport fails (Err returns a *ChannelError).
//
// Usage:
//
//	ch := channel.New(sess.Conn, channel.Config{KeepaliveInterval: 20 * time.Second}, logger)
//	defer ch.Close()
//
//	for item := range ch.Items() {
//	    if item.Err != nil {
//	        continue
//	    }
//	    _ = ch.Send(ctx, action.Denied(item.Action.ID()))
//	}
//	if err := ch.Err(); err != nil {
//	    // transport fault
//	}
package channel
