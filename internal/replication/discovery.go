package replication

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/ids"
)

// DiscoverySubject is the NATS subject every node announces itself on and
// subscribes to for learning peers. Spec §4.7 says nothing about how the
// peer list is obtained; this is the optional dynamic alternative to a
// static configured list (SPEC_FULL §11), grounded on
// internal/events/subscriber.go's NATS connect/reconnect/option set.
const DiscoverySubject = "swindon.replication.peers"

type announcement struct {
	ServerID string `json:"server_id"`
	Addr     string `json:"addr"`
}

// Discovery periodically announces this node's own dial address on
// DiscoverySubject and maintains a live set of peer addresses learned
// from other nodes' announcements.
type Discovery struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	localID  ids.ServerId
	selfAddr string
	log      zerolog.Logger

	mu    sync.Mutex
	peers map[string]string // server_id -> addr
}

// NewDiscovery connects to NATS at url and announces selfAddr (this
// node's own replication listen address) under localID. Returns a
// disabled Discovery — Peers() always empty, Announce a no-op — if url is
// empty, mirroring internal/events/subscriber.go's graceful-disable
// behavior when NATS isn't configured.
func NewDiscovery(url string, localID ids.ServerId, selfAddr string, log zerolog.Logger) (*Discovery, error) {
	log = log.With().Str("component", "replication-discovery").Logger()
	if url == "" {
		log.Info().Msg("NATS_URL not configured, peer discovery disabled")
		return &Discovery{localID: localID, selfAddr: selfAddr, log: log, peers: map[string]string{}}, nil
	}

	opts := []nats.Option{
		nats.Name("swindon-replication-discovery"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS discovery disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS discovery reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("NATS discovery error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to connect discovery to NATS, disabling")
		return &Discovery{localID: localID, selfAddr: selfAddr, log: log, peers: map[string]string{}}, nil
	}

	d := &Discovery{conn: conn, localID: localID, selfAddr: selfAddr, log: log, peers: map[string]string{}}
	sub, err := conn.Subscribe(DiscoverySubject, d.handleAnnouncement)
	if err != nil {
		conn.Close()
		return nil, err
	}
	d.sub = sub
	return d, nil
}

func (d *Discovery) handleAnnouncement(msg *nats.Msg) {
	var a announcement
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		d.log.Warn().Err(err).Msg("discarding malformed peer announcement")
		return
	}
	if a.ServerID == d.localID.String() {
		return
	}
	d.mu.Lock()
	d.peers[a.ServerID] = a.Addr
	d.mu.Unlock()
}

// Announce publishes this node's own address once. A no-op when
// discovery is disabled.
func (d *Discovery) Announce() {
	if d.conn == nil {
		return
	}
	data, err := json.Marshal(announcement{ServerID: d.localID.String(), Addr: d.selfAddr})
	if err != nil {
		return
	}
	if err := d.conn.Publish(DiscoverySubject, data); err != nil {
		d.log.Warn().Err(err).Msg("failed to publish peer announcement")
	}
}

// AnnounceLoop calls Announce once immediately and then every interval,
// until stop is closed.
func (d *Discovery) AnnounceLoop(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	d.Announce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Announce()
		}
	}
}

// Peers returns the current set of known peer addresses, as announced by
// each peer; cmd/swindon dials them through Manager.Dial.
func (d *Discovery) Peers() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	addrs := make([]string, 0, len(d.peers))
	for _, addr := range d.peers {
		addrs = append(addrs, addr)
	}
	return addrs
}

// IsEnabled reports whether this Discovery has a live NATS connection.
func (d *Discovery) IsEnabled() bool {
	return d.conn != nil
}

// Close unsubscribes and drains the NATS connection, if any.
func (d *Discovery) Close() {
	if d.conn == nil {
		return
	}
	if d.sub != nil {
		d.sub.Unsubscribe()
	}
	d.conn.Drain()
	d.conn.Close()
}
