package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/backend"
	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/pool"
	"github.com/swindon-chat/swindon/internal/svcerr"
	"github.com/swindon-chat/swindon/internal/wire"
)

// Config carries the per-pool timing knobs the frontend needs (spec §4.5,
// §4.1 item 2's clamp, §5 keepalive).
type Config struct {
	MinIdle    time.Duration
	MaxIdle    time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// Server accepts WebSocket connections for one session pool and drives
// each connection's read/write loop (spec §4.5).
type Server struct {
	processor *pool.Processor
	auth      *backend.AuthCodec
	call      *backend.CallCodec
	cids      *ids.CidAllocator
	runtime   *ids.Generator
	config    Config
	log       zerolog.Logger

	upgrader websocket.Upgrader
}

// NewServer returns a Server wired to one pool's processor and backend
// codecs.
func NewServer(processor *pool.Processor, auth *backend.AuthCodec, call *backend.CallCodec, cids *ids.CidAllocator, runtime *ids.Generator, config Config, log zerolog.Logger) *Server {
	return &Server{
		processor: processor,
		auth:      auth,
		call:      call,
		cids:      cids,
		runtime:   runtime,
		config:    config,
		log:       log.With().Str("component", "frontend").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP upgrades the request (verifying Upgrade/Sec-WebSocket-Version
// and computing Sec-WebSocket-Accept via gorilla/websocket, spec §4.5) and
// runs the connection loop until the socket closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	meta := backend.AuthMeta{
		HTTPCookie:        r.Header.Get("Cookie"),
		HTTPAuthorization: r.Header.Get("Authorization"),
		URLQueryString:    r.URL.RawQuery,
	}
	s.serve(conn, meta)
}

type connState struct {
	mu          sync.Mutex
	sessionID   string
	closeReason wire.CloseReason
}

func (c *connState) set(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *connState) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *connState) setCloseReason(reason wire.CloseReason) {
	c.mu.Lock()
	c.closeReason = reason
	c.mu.Unlock()
}

func (c *connState) getCloseReason() wire.CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

// serve runs one connection end to end: register with the processor,
// dispatch auth in the background, and pump frames until the socket
// closes (spec §4.5). The frontend never blocks waiting for auth — it
// starts reading client frames immediately.
func (s *Server) serve(conn *websocket.Conn, authMeta backend.AuthMeta) {
	defer conn.Close()

	cid := s.cids.Next()
	runtimeID := s.runtime.Next(time.Now())
	outbox := wire.NewOutbox()
	state := &connState{}

	s.processor.Enqueue(time.Now(), pool.NewConnectionAction{Cid: cid, Outbox: outbox})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.auth.Dispatch(ctx, cid, runtimeID, outbox, authMeta, s.log)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, conn, outbox, state)
	}()

	s.readLoop(ctx, conn, cid, runtimeID, outbox, state)

	cancel()
	<-writeDone
	s.processor.Enqueue(time.Now(), pool.DisconnectAction{Cid: cid, Reason: state.getCloseReason()})
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, outbox *wire.Outbox, state *connState) {
	ticker := time.NewTicker(s.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-outbox.Signal():
			for _, msg := range outbox.Drain() {
				if hello, ok := msg.(wire.Hello); ok {
					state.set(hello.SessionID)
				}
				if stop, ok := msg.(wire.StopSocket); ok {
					code, text := CloseCodeFor(stop.Reason)
					conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(int(code), text))
					return
				}
				data, err := EncodeOutbound(msg)
				if err != nil {
					s.log.Warn().Err(err).Msg("dropping unencodable outbound message")
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, cid ids.Cid, runtimeID ids.ServerId, outbox *wire.Outbox, state *connState) {
	conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
		return nil
	})

	// Overrides gorilla's default Close handler so the peer's code/reason
	// reach the processor as PeerClose (spec §4.5) instead of being
	// swallowed; ReadMessage still returns the CloseError that ends the
	// loop below (original_source/src/chat/close_reason.rs: "Closed by
	// peer, we just propagate the message here").
	conn.SetCloseHandler(func(code int, text string) error {
		state.setCloseReason(wire.PeerClose{Code: uint16(code), Reason: text})
		deadline := time.Now().Add(s.config.WriteWait)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			// Binary frames are not supported: drop the connection (spec §4.5).
			return
		case websocket.TextMessage:
			s.handleFrame(ctx, cid, runtimeID, data, outbox, state)
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, cid ids.Cid, runtimeID ids.ServerId, data []byte, outbox *wire.Outbox, state *connState) {
	frame, svcErr := wire.DecodeClientFrame(data)
	if svcErr != nil {
		outbox.Push(errorFrame(nil, svcErr))
		return
	}

	if frame.Active != nil {
		clamped := wire.ClampActive(*frame.Active, uint64(s.config.MinIdle.Seconds()), uint64(s.config.MaxIdle.Seconds()))
		deadline := time.Now().Add(time.Duration(clamped) * time.Second)
		s.processor.Enqueue(time.Now(), pool.UpdateActivityAction{Cid: cid, NewDeadline: deadline})
	}

	sessionID := state.get()
	go func() {
		out := s.call.Dispatch(ctx, cid, runtimeID, sessionID, frame.Method, frame.Meta, frame.Args, frame.Kwargs)
		outbox.Push(out)
	}()
}

func errorFrame(meta json.RawMessage, svcErr *svcerr.Error) wire.Outbound {
	body, _ := json.Marshal(svcErr)
	return wire.Error{Meta: meta, Kind: string(svcErr.Kind), Body: body}
}
