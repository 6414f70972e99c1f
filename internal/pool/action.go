package pool

import (
	"encoding/json"
	"time"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/lattice"
	"github.com/swindon-chat/swindon/internal/wire"
)

// Action is one entry in the processor's input queue (spec §4.1 "Action
// taxonomy"). Every producer — the WebSocket frontend, the admin HTTP
// surface, the replication layer — constructs one of the concrete types
// below and calls Processor.Enqueue; none of them ever reach into the
// processor's state directly.
type Action interface {
	actionMarker()
}

// NewConnectionAction registers a pre-auth connection.
type NewConnectionAction struct {
	Cid    ids.Cid
	Outbox *wire.Outbox
}

// AssociateAction promotes a NewConnection to a Connection under sessionID
// (spec §4.1 item 2).
type AssociateAction struct {
	Cid       ids.Cid
	SessionID string
	Metadata  json.RawMessage
}

// UpdateActivityAction defers a session's expiry deadline; it never pulls
// it earlier (spec §4.1 item 3).
type UpdateActivityAction struct {
	Cid         ids.Cid
	NewDeadline time.Time
}

// DisconnectAction removes cid from pending or associated state and tears
// down its subscriptions and lattice attachments (spec §4.1 item 4). Reason
// is set when the frontend is relaying a client-initiated Close frame (spec
// §4.5); it is nil for a programmatic or lost-connection disconnect and is
// only consulted for logging, since teardown itself is reason-independent.
type DisconnectAction struct {
	Cid    ids.Cid
	Reason wire.CloseReason
}

// SubscribeAction / UnsubscribeAction adjust topic subscriptions (spec §4.1
// item 5).
type SubscribeAction struct {
	Cid   ids.Cid
	Topic string
}

type UnsubscribeAction struct {
	Cid   ids.Cid
	Topic string
}

// AttachAction / DetachAction adjust lattice namespace membership (spec
// §4.1 item 5).
type AttachAction struct {
	Cid       ids.Cid
	Namespace string
}

type DetachAction struct {
	Cid       ids.Cid
	Namespace string
}

// PublishAction fans payload out to topic's subscribers (spec §4.1 item 6).
type PublishAction struct {
	Topic   string
	Payload json.RawMessage
}

// LatticeUpdateAction merges delta into namespace and fans out the result
// (spec §4.1 item 7).
type LatticeUpdateAction struct {
	Namespace string
	Delta     lattice.Delta
}

// StopAction stops the processor loop; every connection first receives
// StopSocket(PoolStopped) (spec §4.1 item 8).
type StopAction struct{}

func (NewConnectionAction) actionMarker()   {}
func (AssociateAction) actionMarker()       {}
func (UpdateActivityAction) actionMarker()  {}
func (DisconnectAction) actionMarker()      {}
func (SubscribeAction) actionMarker()       {}
func (UnsubscribeAction) actionMarker()     {}
func (AttachAction) actionMarker()          {}
func (DetachAction) actionMarker()          {}
func (PublishAction) actionMarker()         {}
func (LatticeUpdateAction) actionMarker()   {}
func (StopAction) actionMarker()            {}

// Envelope pairs an Action with the timestamp of the event that produced
// it — the processor never reads the wall clock itself (spec §1, §5); every
// deadline it computes derives from a timestamp carried on the envelope.
type Envelope struct {
	Timestamp time.Time
	Action    Action
}
