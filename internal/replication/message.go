package replication

import (
	"encoding/json"
	"fmt"
)

// Message is one pool-scoped RemoteAction crossing a peer link
// (spec §4.7 "Message(pool_name, RemoteAction)").
type Message struct {
	PoolName string
	Action   RemoteAction
}

type wireMessage struct {
	PoolName string          `json:"pool"`
	Action   json.RawMessage `json:"action"`
}

// Encode renders m as the JSON text frame sent over a peer link.
func (m Message) Encode() ([]byte, error) {
	actionJSON, err := EncodeRemoteAction(m.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{PoolName: m.PoolName, Action: actionJSON})
}

// DecodeMessage parses one peer link text frame.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("replication: decode message: %w", err)
	}
	action, err := DecodeRemoteAction(w.Action)
	if err != nil {
		return Message{}, err
	}
	return Message{PoolName: w.PoolName, Action: action}, nil
}
