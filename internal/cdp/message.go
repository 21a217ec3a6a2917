// Package cdp drives a remote debugging protocol endpoint over a single
// persistent websocket: JSON command frames correlated with response frames
// by id, unsolicited event frames fanned out to named subscribers, and
// wait/coordination primitives layered on the event stream. Frame payloads
// are passed through verbatim; the package attaches no meaning to any
// particular method or event name.
package cdp

import "encoding/json"

// request is one outgoing command frame. One JSON object per send.
type request struct {
	ID        uint64 `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// frame is the envelope for every incoming message. A frame carrying an id
// is a response to a pending command; a frame carrying a method is an event.
type frame struct {
	ID        uint64          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *wireError      `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// wireError is the structured error object a response frame may carry.
type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Event is a protocol notification delivered to subscribers. SessionID is
// whatever the frame carried; the router never filters events by session.
type Event struct {
	Method    string
	Params    json.RawMessage
	SessionID string
}
