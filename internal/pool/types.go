package pool

import (
	"encoding/json"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/wire"
)

// subState records whether a topic subscription entry belongs to a
// NewConnection or a promoted Connection (spec §3 "Topic subscription
// map").
type subState int

const (
	subPending subState = iota
	subAssociated
)

// bufferedMessage is one Publish a NewConnection saw before it was
// Associated; delivered in order at Associate time (spec §3 "NewConnection").
type bufferedMessage struct {
	topic   string
	payload json.RawMessage
}

// NewConnection is the pre-auth connection record: exists only between
// socket accept and a successful Associate (spec §3).
type NewConnection struct {
	Cid             ids.Cid
	PendingTopics   map[string]struct{}
	PendingLattices map[string]struct{}
	Buffered        []bufferedMessage
	Outbox          *wire.Outbox
}

func newNewConnection(cid ids.Cid, outbox *wire.Outbox) *NewConnection {
	return &NewConnection{
		Cid:             cid,
		PendingTopics:   map[string]struct{}{},
		PendingLattices: map[string]struct{}{},
		Outbox:          outbox,
	}
}

// Connection is the post-auth connection record (spec §3).
type Connection struct {
	Cid       ids.Cid
	SessionID string
	Topics    map[string]struct{}
	Lattices  map[string]struct{}
	Outbox    *wire.Outbox
}

// Session is a logical user identity spanning one or more connections
// (spec §3).
type Session struct {
	ID          string
	Connections map[ids.Cid]struct{}
	Lattices    map[string]map[ids.Cid]struct{} // Namespace -> Cids attached via this session
	Metadata    json.RawMessage
}

func newSession(id string, metadata json.RawMessage) *Session {
	return &Session{
		ID:          id,
		Connections: map[ids.Cid]struct{}{},
		Lattices:    map[string]map[ids.Cid]struct{}{},
		Metadata:    metadata,
	}
}

// MessageType identifies a PoolMessage's kind on the outbound pool channel
// (spec §4.1 item "Pool lifecycle").
type MessageType int

const (
	InactiveSession MessageType = iota
)

// Message is emitted on the pool's outbound channel, consumed by the
// inactivity dispatcher (spec §4.1 "Cleanup pass", §4.8).
type Message struct {
	Type            MessageType
	SessionID       string
	ConnectionCount int
	Metadata        json.RawMessage
}
