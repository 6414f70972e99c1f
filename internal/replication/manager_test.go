package replication

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/pool"
	"github.com/swindon-chat/swindon/internal/wire"
)

func newTestPoolManager(t *testing.T) (*pool.Manager, *pool.Processor) {
	t.Helper()
	mgr := pool.NewManager(zerolog.Nop())
	p, err := mgr.CreatePool("chat", pool.Config{
		NewConnectionIdleTimeout: time.Second,
		MinIdle:                 0,
		MaxIdle:                 24 * time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(mgr.StopAll)
	return mgr, p
}

func TestProjectActionOnlyReplicatesKnownTypes(t *testing.T) {
	id := ids.NewGenerator().Next(time.Now())

	_, ok := projectAction(id, pool.NewConnectionAction{})
	assert.False(t, ok)

	remote, ok := projectAction(id, pool.PublishAction{Topic: "room.1", Payload: []byte(`{}`)})
	require.True(t, ok)
	assert.Equal(t, id, remote.originID())
}

func TestApplyIncomingDropsActionsOriginatingLocally(t *testing.T) {
	localID := ids.NewGenerator().Next(time.Now())
	poolMgr, p := newTestPoolManager(t)
	m := NewManager(localID, poolMgr, zerolog.Nop())

	outbox := wire.NewOutbox()
	p.Enqueue(time.Now(), pool.NewConnectionAction{Cid: ids.Cid(1), Outbox: outbox})
	p.Enqueue(time.Now(), pool.AssociateAction{Cid: ids.Cid(1), SessionID: "s1"})
	p.Enqueue(time.Now(), pool.SubscribeAction{Cid: ids.Cid(1), Topic: "room.1"})
	time.Sleep(20 * time.Millisecond)

	// message tagged with our own id must be dropped, not applied
	m.applyIncoming(Message{PoolName: "chat", Action: Publish{ServerID: localID, Topic: "room.1", Payload: []byte(`{}`)}})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, outbox.Drain())
}

func TestLinkTableOutboundWinsOverInbound(t *testing.T) {
	lt := newLinkTable()
	peer := ids.NewGenerator().Next(time.Now())

	out := &link{peerID: peer, dir: outbound}
	evicted, installed := lt.put(out)
	assert.True(t, installed)
	assert.Nil(t, evicted)

	in := &link{peerID: peer, dir: inbound}
	_, installed = lt.put(in)
	assert.False(t, installed, "inbound link must not replace an existing outbound link")

	out2 := &link{peerID: peer, dir: outbound}
	evicted, installed = lt.put(out2)
	assert.True(t, installed)
	assert.Same(t, out, evicted, "a new outbound link replaces the prior one")
}

func TestManagerHandshakeAndRelay(t *testing.T) {
	serverID := ids.NewGenerator().Next(time.Now())
	clientID := ids.NewGenerator().Next(time.Now().Add(time.Millisecond))

	// server side: a pool named "chat" with one subscriber to room.1, whose
	// outbox we inspect for the fanned-out Publish.
	poolsForServer := pool.NewManager(zerolog.Nop())
	t.Cleanup(poolsForServer.StopAll)
	serverPool, err := poolsForServer.CreatePool("chat", pool.Config{NewConnectionIdleTimeout: time.Second, MaxIdle: 24 * time.Hour})
	require.NoError(t, err)

	outbox := wire.NewOutbox()
	serverPool.Enqueue(time.Now(), pool.NewConnectionAction{Cid: ids.Cid(1), Outbox: outbox})
	serverPool.Enqueue(time.Now(), pool.AssociateAction{Cid: ids.Cid(1), SessionID: "s1"})
	serverPool.Enqueue(time.Now(), pool.SubscribeAction{Cid: ids.Cid(1), Topic: "room.1"})
	time.Sleep(20 * time.Millisecond)

	serverMgr := NewManager(serverID, poolsForServer, zerolog.Nop())
	ts := httptest.NewServer(serverMgr.Accept(websocket.Upgrader{}))
	t.Cleanup(ts.Close)
	t.Cleanup(serverMgr.Close)

	clientPoolMgr := pool.NewManager(zerolog.Nop())
	t.Cleanup(clientPoolMgr.StopAll)
	clientMgr := NewManager(clientID, clientPoolMgr, zerolog.Nop())
	t.Cleanup(clientMgr.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, clientMgr.Dial(ctx, wsURL))

	time.Sleep(50 * time.Millisecond)
	clientMgr.Relay("chat", pool.PublishAction{Topic: "room.1", Payload: []byte(`{"hi":1}`)})

	deadline := time.Now().Add(2 * time.Second)
	var msgs []wire.Outbound
	for time.Now().Before(deadline) {
		msgs = outbox.Drain()
		if len(msgs) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.Len(t, msgs, 1)
	publish, ok := msgs[0].(wire.Publish)
	require.True(t, ok)
	assert.JSONEq(t, `{"hi":1}`, string(publish.Payload))
}
