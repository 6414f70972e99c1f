// Package wire defines the message shapes that cross swindon's internal
// boundaries — processor to connection, backend codec to connection, and the
// client JSON frame formats (spec §4.5, §6) — plus a non-blocking delivery
// queue so no producer of these messages ever suspends on a slow consumer.
package wire

import "encoding/json"

// Outbound is one message destined for a single client connection's outbound
// channel (spec §3 Connection/NewConnection "outbound channel"). The
// concrete types below are its only implementations; callers type-switch on
// delivery instead of carrying a format-specific encoder through the
// processor and backend codecs.
type Outbound interface {
	outboundMarker()
}

// Hello is delivered by AuthCodec directly (spec §4.3), not by the
// processor.
type Hello struct {
	SessionID string
	UserInfo  json.RawMessage
}

// Result is delivered by CallCodec on a successful backend reply.
type Result struct {
	Meta    json.RawMessage
	Payload json.RawMessage
}

// Error is pushed by the frontend, either as a CallCodec result (backend,
// decode and PoolOverflow/NoPool/PoolError failures) or for a client frame
// that fails validation — never kills the socket.
type Error struct {
	Meta json.RawMessage
	Kind string
	Body json.RawMessage
}

// Publish carries one topic fanout message (spec §4.1 item 6).
type Publish struct {
	Topic   string
	Payload json.RawMessage
}

// Lattice carries one namespace's changed Values for a session, keyed by
// LatticeKey and then by the suffixed variable name (spec §4.1 item 7,
// spec §4.2 wire form).
type Lattice struct {
	Namespace string
	Values    map[string]map[string]json.RawMessage
}

// StopSocket instructs the frontend to close the connection with a reason
// that maps to a close code (spec §4.5).
type StopSocket struct {
	Reason CloseReason
}

func (Hello) outboundMarker()      {}
func (Result) outboundMarker()     {}
func (Error) outboundMarker()      {}
func (Publish) outboundMarker()    {}
func (Lattice) outboundMarker()    {}
func (StopSocket) outboundMarker() {}

// CloseReason is the reason a connection is being stopped, carried on
// StopSocket and resolved to a wire close code by the frontend (spec §4.5).
type CloseReason interface {
	closeReasonMarker()
}

// PoolStopped is sent to every connection when its session pool is
// stopping (spec §4.1 item 8).
type PoolStopped struct{}

// AuthHTTP wraps the HTTP status the auth backend returned.
type AuthHTTP struct {
	Status int
}

// PeerClose relays a client-initiated Close frame's code and reason.
type PeerClose struct {
	Code   uint16
	Reason string
}

func (PoolStopped) closeReasonMarker() {}
func (AuthHTTP) closeReasonMarker()    {}
func (PeerClose) closeReasonMarker()   {}
