// Package action defines the requests a relay can make of the agent and the
// results the agent sends back, together with their wire encoding.
//
// Invariants:
// - An Action is decoded once, at the channel boundary, into one of the
//   concrete variants ExecuteCommand, ReadFile or WriteFile.
// - Every Result carries the id of the Action it answers.
// - Encoding then decoding a Request or a Result preserves every field,
//   byte for byte. Content and output streams that are not valid UTF-8
//   travel as base64.
//
// Usage:
//
//	a, err := action.Decode([]byte(`{"id":"1","type":"exec","command":"echo hi"}`))
//	if err != nil {
//		var perr *action.ProtocolError
//		_ = errors.As(err, &perr)
//	}
//	payload, _ := action.EncodeResult(action.Denied(a.ID()))
//	_ = payload
package action
