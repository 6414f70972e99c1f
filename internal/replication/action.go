// Package replication maintains one WebSocket link per peer swindon node
// and relays the subset of pool Actions that make sense across node
// boundaries (spec §4.7).
package replication

import (
	"encoding/json"
	"fmt"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/lattice"
)

// RemoteAction is the wire projection of a local pool.Action, tagged with
// the ServerId that originated it so receivers can drop actions that loop
// back to their own origin (spec §4.7). The full variant set mirrors
// original_source's replication/action.go `RemoteAction` enum, including
// the user-list variants (AttachUsers/UpdateUsers/DetachUsers/InitialSync)
// that swindon's simpler Cid/SessionID model has no further use for beyond
// decoding them for wire compatibility — see DESIGN.md.
type RemoteAction interface {
	remoteActionMarker()
	originID() ids.ServerId
}

type Subscribe struct {
	ConnID   ids.Cid
	ServerID ids.ServerId
	Topic    string
}

type Unsubscribe struct {
	ConnID   ids.Cid
	ServerID ids.ServerId
	Topic    string
}

type Publish struct {
	ServerID ids.ServerId
	Topic    string
	Payload  json.RawMessage
}

type Attach struct {
	ConnID    ids.Cid
	ServerID  ids.ServerId
	Namespace string
}

type Detach struct {
	ConnID    ids.Cid
	ServerID  ids.ServerId
	Namespace string
}

type LatticeUpdate struct {
	ServerID  ids.ServerId
	Namespace string
	Delta     lattice.Delta
}

// UpdateActivity carries a duration, not a deadline (spec §4.7). It is
// encoded and decoded only: projectAction never produces it, and
// Manager.applyIncoming does not replay it, so a received UpdateActivity
// does not change any local session deadline.
type UpdateActivity struct {
	ServerID  ids.ServerId
	SessionID string
	DurationMS int64
}

type AttachUsers struct {
	ConnID   ids.Cid
	ServerID ids.ServerId
	List     []string
}

type UpdateUsers struct {
	ServerID  ids.ServerId
	SessionID string
	List      []string
}

type DetachUsers struct {
	ConnID   ids.Cid
	ServerID ids.ServerId
}

type InitialSync struct {
	ServerID ids.ServerId
	State    json.RawMessage
}

func (Subscribe) remoteActionMarker()      {}
func (Unsubscribe) remoteActionMarker()    {}
func (Publish) remoteActionMarker()        {}
func (Attach) remoteActionMarker()         {}
func (Detach) remoteActionMarker()         {}
func (LatticeUpdate) remoteActionMarker()  {}
func (UpdateActivity) remoteActionMarker() {}
func (AttachUsers) remoteActionMarker()    {}
func (UpdateUsers) remoteActionMarker()    {}
func (DetachUsers) remoteActionMarker()    {}
func (InitialSync) remoteActionMarker()    {}

func (a Subscribe) originID() ids.ServerId      { return a.ServerID }
func (a Unsubscribe) originID() ids.ServerId    { return a.ServerID }
func (a Publish) originID() ids.ServerId        { return a.ServerID }
func (a Attach) originID() ids.ServerId         { return a.ServerID }
func (a Detach) originID() ids.ServerId         { return a.ServerID }
func (a LatticeUpdate) originID() ids.ServerId  { return a.ServerID }
func (a UpdateActivity) originID() ids.ServerId { return a.ServerID }
func (a AttachUsers) originID() ids.ServerId    { return a.ServerID }
func (a UpdateUsers) originID() ids.ServerId    { return a.ServerID }
func (a DetachUsers) originID() ids.ServerId    { return a.ServerID }
func (a InitialSync) originID() ids.ServerId    { return a.ServerID }

// wireAction is the JSON-on-the-wire shape: a discriminated union keyed by
// "kind", flattened fields for the payload.
type wireAction struct {
	Kind       string          `json:"kind"`
	ConnID     *ids.Cid        `json:"conn_id,omitempty"`
	ServerID   string          `json:"server_id"`
	Topic      string          `json:"topic,omitempty"`
	Namespace  string          `json:"namespace,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Delta      json.RawMessage `json:"delta,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	List       []string        `json:"list,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
}

// EncodeRemoteAction renders a to its wire form.
func EncodeRemoteAction(a RemoteAction) ([]byte, error) {
	w := wireAction{ServerID: a.originID().String()}
	switch v := a.(type) {
	case Subscribe:
		w.Kind, w.ConnID, w.Topic = "subscribe", &v.ConnID, v.Topic
	case Unsubscribe:
		w.Kind, w.ConnID, w.Topic = "unsubscribe", &v.ConnID, v.Topic
	case Publish:
		w.Kind, w.Topic, w.Payload = "publish", v.Topic, v.Payload
	case Attach:
		w.Kind, w.ConnID, w.Namespace = "attach", &v.ConnID, v.Namespace
	case Detach:
		w.Kind, w.ConnID, w.Namespace = "detach", &v.ConnID, v.Namespace
	case LatticeUpdate:
		w.Kind, w.Namespace = "lattice", v.Namespace
		w.Delta = v.Delta.Encode()
	case UpdateActivity:
		w.Kind, w.SessionID, w.DurationMS = "update_activity", v.SessionID, v.DurationMS
	case AttachUsers:
		w.Kind, w.ConnID, w.List = "attach_users", &v.ConnID, v.List
	case UpdateUsers:
		w.Kind, w.SessionID, w.List = "update_users", v.SessionID, v.List
	case DetachUsers:
		w.Kind, w.ConnID = "detach_users", &v.ConnID
	case InitialSync:
		w.Kind, w.State = "initial_sync", v.State
	default:
		return nil, fmt.Errorf("replication: unencodable RemoteAction %T", a)
	}
	return json.Marshal(w)
}

// DecodeRemoteAction parses the wire form produced by EncodeRemoteAction.
func DecodeRemoteAction(data []byte) (RemoteAction, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("replication: decode RemoteAction: %w", err)
	}
	serverID, ok := ids.ParseServerId(w.ServerID)
	if !ok {
		return nil, fmt.Errorf("replication: invalid server_id %q", w.ServerID)
	}
	cid := func() ids.Cid {
		if w.ConnID != nil {
			return *w.ConnID
		}
		return 0
	}()
	switch w.Kind {
	case "subscribe":
		return Subscribe{ConnID: cid, ServerID: serverID, Topic: w.Topic}, nil
	case "unsubscribe":
		return Unsubscribe{ConnID: cid, ServerID: serverID, Topic: w.Topic}, nil
	case "publish":
		return Publish{ServerID: serverID, Topic: w.Topic, Payload: w.Payload}, nil
	case "attach":
		return Attach{ConnID: cid, ServerID: serverID, Namespace: w.Namespace}, nil
	case "detach":
		return Detach{ConnID: cid, ServerID: serverID, Namespace: w.Namespace}, nil
	case "lattice":
		delta, err := lattice.DecodeDelta(w.Delta)
		if err != nil {
			return nil, fmt.Errorf("replication: decode lattice delta: %w", err)
		}
		return LatticeUpdate{ServerID: serverID, Namespace: w.Namespace, Delta: delta}, nil
	case "update_activity":
		return UpdateActivity{ServerID: serverID, SessionID: w.SessionID, DurationMS: w.DurationMS}, nil
	case "attach_users":
		return AttachUsers{ConnID: cid, ServerID: serverID, List: w.List}, nil
	case "update_users":
		return UpdateUsers{ServerID: serverID, SessionID: w.SessionID, List: w.List}, nil
	case "detach_users":
		return DetachUsers{ConnID: cid, ServerID: serverID}, nil
	case "initial_sync":
		return InitialSync{ServerID: serverID, State: w.State}, nil
	default:
		return nil, fmt.Errorf("replication: unknown RemoteAction kind %q", w.Kind)
	}
}
