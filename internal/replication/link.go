package replication

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/wire"
)

// direction records which side dialed a link, used only for the
// outbound-wins tie-break when both ends happen to connect at once
// (spec §4.7, §9 Open Question 2).
type direction int

const (
	inbound direction = iota
	outbound
)

const (
	linkPongWait   = 30 * time.Second
	linkPingPeriod = 15 * time.Second
	linkWriteWait  = 5 * time.Second
)

// link is one live peer connection: a read loop that decodes incoming
// Messages and hands them to the Manager, and a write loop draining a
// non-blocking per-link outbox so a slow peer never stalls a broadcast
// (spec §5 "no producer may block", mirrored from internal/frontend's
// connection loop).
type link struct {
	peerID ids.ServerId
	dir    direction
	conn   *websocket.Conn
	outbox *wire.Queue[Message]
	log    zerolog.Logger
}

func newLink(peerID ids.ServerId, dir direction, conn *websocket.Conn, log zerolog.Logger) *link {
	return &link{
		peerID: peerID,
		dir:    dir,
		conn:   conn,
		outbox: wire.NewQueue[Message](),
		log:    log.With().Str("peer", peerID.String()).Logger(),
	}
}

// send enqueues m for delivery without blocking. Dropped silently if the
// link has already closed (spec §4.7 "Failure semantics").
func (l *link) send(m Message) {
	l.outbox.Push(m)
}

func (l *link) close() {
	_ = l.conn.Close()
}

// run drives the link until ctx is cancelled or the connection breaks;
// onMessage is called for every decoded incoming Message, onDone when the
// link should be evicted from the table.
func (l *link) run(ctx context.Context, onMessage func(Message), onDone func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		l.close() // unblocks readLoop when the caller cancels
	}()
	writeDone := make(chan struct{})
	go func() {
		l.writeLoop(ctx)
		close(writeDone)
	}()
	l.readLoop(onMessage)
	cancel()
	<-writeDone
	l.close()
	onDone()
}

func (l *link) readLoop(onMessage func(Message)) {
	l.conn.SetReadDeadline(time.Now().Add(linkPongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(linkPongWait))
		return nil
	})
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.log.Debug().Err(err).Msg("replication link read error, closing")
			return
		}
		msg, err := DecodeMessage(data)
		if err != nil {
			l.log.Warn().Err(err).Msg("replication: dropping malformed peer message")
			continue
		}
		onMessage(msg)
	}
}

func (l *link) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(linkPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.outbox.Signal():
			for _, m := range l.outbox.Drain() {
				data, err := m.Encode()
				if err != nil {
					l.log.Error().Err(err).Msg("replication: dropping unencodable message")
					continue
				}
				l.conn.SetWriteDeadline(time.Now().Add(linkWriteWait))
				if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(linkWriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
