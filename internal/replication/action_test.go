package replication

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/lattice"
)

func TestRemoteActionRoundTripsPublish(t *testing.T) {
	gen := ids.NewGenerator()
	id := gen.Next(time.Now())
	action := Publish{ServerID: id, Topic: "room.1", Payload: []byte(`{"x":1}`)}

	data, err := EncodeRemoteAction(action)
	require.NoError(t, err)

	decoded, err := DecodeRemoteAction(data)
	require.NoError(t, err)
	got, ok := decoded.(Publish)
	require.True(t, ok)
	assert.Equal(t, action.Topic, got.Topic)
	assert.JSONEq(t, `{"x":1}`, string(got.Payload))
	assert.Equal(t, id, got.ServerID)
}

func TestRemoteActionRoundTripsLatticeUpdate(t *testing.T) {
	gen := ids.NewGenerator()
	id := gen.Next(time.Now())
	delta, err := lattice.DecodeDelta([]byte(`{"shared":{"key":{"count_counter":3}}}`))
	require.NoError(t, err)
	action := LatticeUpdate{ServerID: id, Namespace: "room.1", Delta: delta}

	data, err := EncodeRemoteAction(action)
	require.NoError(t, err)

	decoded, err := DecodeRemoteAction(data)
	require.NoError(t, err)
	got, ok := decoded.(LatticeUpdate)
	require.True(t, ok)
	assert.Equal(t, "room.1", got.Namespace)
	assert.False(t, got.Delta.IsEmpty())
}

func TestMessageRoundTrips(t *testing.T) {
	gen := ids.NewGenerator()
	id := gen.Next(time.Now())
	msg := Message{PoolName: "chat", Action: Subscribe{ConnID: ids.Cid(7), ServerID: id, Topic: "room.1"}}

	data, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "chat", decoded.PoolName)
	got, ok := decoded.Action.(Subscribe)
	require.True(t, ok)
	assert.Equal(t, ids.Cid(7), got.ConnID)
	assert.Equal(t, "room.1", got.Topic)
}

func TestDecodeRemoteActionRejectsUnknownKind(t *testing.T) {
	id := ids.NewGenerator().Next(time.Now())
	_, err := DecodeRemoteAction([]byte(`{"kind":"bogus","server_id":"` + id.String() + `"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown RemoteAction kind")
}
