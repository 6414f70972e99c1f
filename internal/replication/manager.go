package replication

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/pool"
)

// NodeIDHeader is exchanged on both the dial and the accept side of every
// peer link (spec §4.7).
const NodeIDHeader = "X-Swindon-Node-Id"

// Manager maintains this node's peer links and relays RemoteActions
// between them and the local pool.Manager (spec §4.7).
type Manager struct {
	localID ids.ServerId
	pools   *pool.Manager
	links   *linkTable
	log     zerolog.Logger
	dialer  websocket.Dialer

	addrPeers sync.Map // addr string -> ids.ServerId, last known peer per dial address
}

// NewManager returns a Manager for this node. localID must be stable for
// the process lifetime; it is what every outgoing RemoteAction is tagged
// with and what loop prevention compares against.
func NewManager(localID ids.ServerId, pools *pool.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		localID: localID,
		pools:   pools,
		links:   newLinkTable(),
		log:     log.With().Str("component", "replication").Logger(),
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Relay projects a local pool.Action into a RemoteAction (when the action
// type is one spec §4.7 replicates) and broadcasts it to every live peer
// link. Relay is only called for locally originated actions; loop
// prevention happens on the receive side, in applyIncoming.
func (m *Manager) Relay(poolName string, action pool.Action) {
	remote, ok := projectAction(m.localID, action)
	if !ok {
		return
	}
	m.links.broadcast(Message{PoolName: poolName, Action: remote}, ids.ServerId{})
}

// projectAction converts a local Action to its RemoteAction wire form.
// Subscribe/Unsubscribe/Attach/Detach/Publish/LatticeUpdate are projected;
// every other Action (NewConnection/Associate/Disconnect/StopAction and
// UpdateActivityAction) is not, and never crosses a peer link.
func projectAction(localID ids.ServerId, a pool.Action) (RemoteAction, bool) {
	switch v := a.(type) {
	case pool.SubscribeAction:
		return Subscribe{ConnID: v.Cid, ServerID: localID, Topic: v.Topic}, true
	case pool.UnsubscribeAction:
		return Unsubscribe{ConnID: v.Cid, ServerID: localID, Topic: v.Topic}, true
	case pool.AttachAction:
		return Attach{ConnID: v.Cid, ServerID: localID, Namespace: v.Namespace}, true
	case pool.DetachAction:
		return Detach{ConnID: v.Cid, ServerID: localID, Namespace: v.Namespace}, true
	case pool.PublishAction:
		return Publish{ServerID: localID, Topic: v.Topic, Payload: v.Payload}, true
	case pool.LatticeUpdateAction:
		return LatticeUpdate{ServerID: localID, Namespace: v.Namespace, Delta: v.Delta}, true
	default:
		return nil, false
	}
}

// applyIncoming handles one Message decoded off a peer link. Actions
// tagged with our own ServerId are dropped (loop prevention, spec §4.7).
// Only Publish and LatticeUpdate are replayed against the local processor:
// they carry no Cid/SessionID, so they apply identically regardless of
// which node's connections are subscribed. Subscribe/Unsubscribe/Attach/
// Detach/UpdateActivity/AttachUsers/UpdateUsers/DetachUsers/InitialSync
// name a Cid or SessionID that is meaningless outside the node that
// minted it, so they are decoded (for wire compatibility with a mixed
// cluster) but intentionally not replayed locally — see DESIGN.md.
func (m *Manager) applyIncoming(msg Message) {
	if msg.Action.originID() == m.localID {
		return
	}
	p, ok := m.pools.Get(msg.PoolName)
	if !ok {
		m.log.Debug().Str("pool", msg.PoolName).Msg("replication: message for unknown local pool dropped")
		return
	}
	now := time.Now()
	switch v := msg.Action.(type) {
	case Publish:
		p.Enqueue(now, pool.PublishAction{Topic: v.Topic, Payload: v.Payload})
	case LatticeUpdate:
		p.Enqueue(now, pool.LatticeUpdateAction{Namespace: v.Namespace, Delta: v.Delta})
	default:
		m.log.Debug().Str("pool", msg.PoolName).Msg("replication: node-local RemoteAction received, not replayed")
	}
}

// Accept upgrades an incoming peer connection, matching spec §4.7's accept
// side: the peer's node id is read from NodeIDHeader on the request, ours
// is sent back on the response before the upgrade completes.
func (m *Manager) Accept(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerID, ok := ids.ParseServerId(r.Header.Get(NodeIDHeader))
		if !ok {
			http.Error(w, "missing or invalid "+NodeIDHeader, http.StatusBadRequest)
			return
		}
		header := http.Header{}
		header.Set(NodeIDHeader, m.localID.String())
		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			m.log.Warn().Err(err).Msg("replication: accept upgrade failed")
			return
		}
		// not r.Context(): net/http cancels it as soon as this handler
		// returns, while the link outlives the handler.
		m.bind(context.Background(), peerID, inbound, conn)
	}
}

var errMissingPeerID = errors.New("replication: peer did not return " + NodeIDHeader)

// Dial opens an outbound peer link against addr (a ws:// or wss:// URL).
// A no-op if addr's last known peer already has a live link, so the
// reconnect loop doesn't churn an already-healthy link every interval.
func (m *Manager) Dial(ctx context.Context, addr string) error {
	if v, ok := m.addrPeers.Load(addr); ok && m.links.has(v.(ids.ServerId)) {
		return nil
	}
	header := http.Header{}
	header.Set(NodeIDHeader, m.localID.String())
	conn, resp, err := m.dialer.Dial(addr, header)
	if err != nil {
		return err
	}
	peerID, ok := ids.ParseServerId(resp.Header.Get(NodeIDHeader))
	if !ok {
		conn.Close()
		return errMissingPeerID
	}
	m.addrPeers.Store(addr, peerID)
	m.bind(ctx, peerID, outbound, conn)
	return nil
}

func (m *Manager) bind(ctx context.Context, peerID ids.ServerId, dir direction, conn *websocket.Conn) {
	l := newLink(peerID, dir, conn, m.log)
	evicted, installed := m.links.put(l)
	if !installed {
		l.close()
		return
	}
	if evicted != nil {
		evicted.close()
	}
	go l.run(ctx, m.applyIncoming, func() { m.links.remove(l) })
}

// Reconnect dials every address in addrs not already linked, retrying at
// interval until ctx is cancelled. Dials run one after another, each
// bounded only by the dialer's 10s handshake timeout; there is no
// separate reconnect-timeout backoff.
func (m *Manager) Reconnect(ctx context.Context, addrs []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, addr := range addrs {
			if err := m.Dial(ctx, addr); err != nil {
				m.log.Debug().Err(err).Str("addr", addr).Msg("replication: dial failed, will retry")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close tears down every live peer link.
func (m *Manager) Close() {
	m.links.closeAll()
}
