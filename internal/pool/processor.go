// Package pool implements the single-threaded session pool processor: the
// owner of every mutable per-pool structure — connections, sessions, topic
// subscriptions, lattice CRDTs (spec §3, §4.1). A Processor is driven
// exclusively by Actions off its input queue; it never blocks on a network
// socket and never reads the wall clock except to compare against
// timestamps carried on the Action envelopes it is handed.
package pool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/lattice"
	"github.com/swindon-chat/swindon/internal/wire"
)

// Config carries the timeouts the processor consults when computing
// deadlines (spec §4.1 item 2, §4.5 "clamp(active, min_idle, max_idle)").
type Config struct {
	NewConnectionIdleTimeout time.Duration
	MinIdle                  time.Duration
	MaxIdle                  time.Duration
}

// Processor is one named session pool's event loop (spec §4.1).
type Processor struct {
	name   string
	config Config
	log    zerolog.Logger

	actions  *wire.Queue[Envelope]
	messages *wire.Queue[Message]

	pending     map[ids.Cid]*NewConnection
	connections map[ids.Cid]*Connection
	sessions    map[string]*Session
	inactive    map[string]*Session
	topicSubs   map[string]map[ids.Cid]subState
	lattices    map[string]*lattice.Store
	activeHeap  *ActiveHeap
}

// New returns a Processor for a named pool, ready to run. log should
// already be scoped to this pool (e.g. .With().Str("pool", name)).
func New(name string, config Config, log zerolog.Logger) *Processor {
	return &Processor{
		name:        name,
		config:      config,
		log:         log,
		actions:     wire.NewQueue[Envelope](),
		messages:    wire.NewQueue[Message](),
		pending:     map[ids.Cid]*NewConnection{},
		connections: map[ids.Cid]*Connection{},
		sessions:    map[string]*Session{},
		inactive:    map[string]*Session{},
		topicSubs:   map[string]map[ids.Cid]subState{},
		lattices:    map[string]*lattice.Store{},
		activeHeap:  NewActiveHeap(),
	}
}

// Name returns the pool's name.
func (p *Processor) Name() string { return p.name }

// Enqueue pushes an Action, timestamped now, onto the processor's input
// queue. Never blocks.
func (p *Processor) Enqueue(now time.Time, action Action) {
	p.actions.Push(Envelope{Timestamp: now, Action: action})
}

// Messages returns the queue of outbound PoolMessages (currently only
// InactiveSession), consumed by the inactivity dispatcher.
func (p *Processor) Messages() *wire.Queue[Message] {
	return p.messages
}

// Run drives the event loop until ctx is cancelled or a StopAction is
// processed. It blocks on recv_until(deadline): waiting for either a new
// Action or the earliest active-session expiry, whichever comes first
// (spec §4.1 "between each batch... blocks on recv_until(deadline)").
func (p *Processor) Run(ctx context.Context) {
	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if deadline, ok := p.activeHeap.PeekDeadline(); ok {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			p.shutdown(time.Now())
			return
		case <-p.actions.Signal():
			stopTimer(timer)
			stopped := false
			for _, env := range p.actions.Drain() {
				if _, ok := env.Action.(StopAction); ok {
					stopped = true
				}
				p.apply(env)
			}
			if stopped {
				return
			}
		case <-timerC:
		}

		p.runCleanup(time.Now())
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (p *Processor) apply(env Envelope) {
	switch a := env.Action.(type) {
	case NewConnectionAction:
		p.applyNewConnection(a)
	case AssociateAction:
		p.applyAssociate(env.Timestamp, a)
	case UpdateActivityAction:
		p.applyUpdateActivity(a)
	case DisconnectAction:
		p.applyDisconnect(a)
	case SubscribeAction:
		p.applySubscribe(a)
	case UnsubscribeAction:
		p.applyUnsubscribe(a)
	case AttachAction:
		p.applyAttach(a)
	case DetachAction:
		p.applyDetach(a)
	case PublishAction:
		p.applyPublish(a)
	case LatticeUpdateAction:
		p.applyLatticeUpdate(a)
	case StopAction:
		p.shutdown(env.Timestamp)
	default:
		p.log.Error().Type("action", a).Msg("unknown action type dropped")
	}
}

func (p *Processor) applyNewConnection(a NewConnectionAction) {
	p.pending[a.Cid] = newNewConnection(a.Cid, a.Outbox)
}

func (p *Processor) applyAssociate(ts time.Time, a AssociateAction) {
	nc, ok := p.pending[a.Cid]
	if !ok {
		p.log.Debug().Uint64("cid", uint64(a.Cid)).Msg("associate for unknown cid dropped")
		return
	}
	delete(p.pending, a.Cid)

	conn := &Connection{
		Cid:       a.Cid,
		SessionID: a.SessionID,
		Topics:    map[string]struct{}{},
		Lattices:  map[string]struct{}{},
		Outbox:    nc.Outbox,
	}

	sess, exists := p.sessions[a.SessionID]
	if !exists {
		if inact, wasInactive := p.inactive[a.SessionID]; wasInactive {
			sess = inact
			delete(p.inactive, a.SessionID)
		} else {
			sess = newSession(a.SessionID, a.Metadata)
		}
		p.sessions[a.SessionID] = sess
	}
	sess.Connections[a.Cid] = struct{}{}
	p.activeHeap.Insert(a.SessionID, ts.Add(p.config.NewConnectionIdleTimeout))

	for _, m := range nc.Buffered {
		conn.Outbox.Push(wire.Publish{Topic: m.topic, Payload: m.payload})
	}

	for topic := range nc.PendingTopics {
		conn.Topics[topic] = struct{}{}
		if subs, ok := p.topicSubs[topic]; ok {
			subs[a.Cid] = subAssociated
		}
	}

	for ns := range nc.PendingLattices {
		conn.Lattices[ns] = struct{}{}
		if sess.Lattices[ns] == nil {
			sess.Lattices[ns] = map[ids.Cid]struct{}{}
		}
		sess.Lattices[ns][a.Cid] = struct{}{}

		if store, ok := p.lattices[ns]; ok && !store.IsEmpty() {
			if snap := store.Snapshot(a.SessionID); len(snap) > 0 {
				conn.Outbox.Push(wire.Lattice{Namespace: ns, Values: wireValues(snap)})
			}
		}
	}

	p.connections[a.Cid] = conn
}

func (p *Processor) applyUpdateActivity(a UpdateActivityAction) {
	conn, ok := p.connections[a.Cid]
	if !ok {
		return
	}
	sess, ok := p.sessions[conn.SessionID]
	if !ok {
		return
	}
	if current, ok := p.activeHeap.Get(sess.ID); ok {
		if a.NewDeadline.After(current) {
			p.activeHeap.Update(sess.ID, a.NewDeadline)
		}
		return
	}
	if _, wasInactive := p.inactive[sess.ID]; wasInactive {
		delete(p.inactive, sess.ID)
		p.activeHeap.Insert(sess.ID, a.NewDeadline)
	}
}

func (p *Processor) applyDisconnect(a DisconnectAction) {
	if peer, ok := a.Reason.(wire.PeerClose); ok {
		p.log.Debug().Uint64("cid", uint64(a.Cid)).Uint16("code", peer.Code).Str("reason", peer.Reason).Msg("connection closed by peer")
	}

	if nc, ok := p.pending[a.Cid]; ok {
		delete(p.pending, a.Cid)
		for topic := range nc.PendingTopics {
			p.removeTopicSub(topic, a.Cid)
		}
		return
	}

	conn, ok := p.connections[a.Cid]
	if !ok {
		return
	}
	delete(p.connections, a.Cid)

	for topic := range conn.Topics {
		p.removeTopicSub(topic, a.Cid)
	}
	for ns := range conn.Lattices {
		p.detachSessionFromNamespace(conn.SessionID, ns, a.Cid)
	}

	sess, ok := p.sessions[conn.SessionID]
	if !ok {
		return
	}
	delete(sess.Connections, a.Cid)
	if len(sess.Connections) == 0 {
		if _, wasInactive := p.inactive[conn.SessionID]; wasInactive {
			delete(p.inactive, conn.SessionID)
			delete(p.sessions, conn.SessionID)
		}
	}
}

func (p *Processor) removeTopicSub(topic string, cid ids.Cid) {
	subs, ok := p.topicSubs[topic]
	if !ok {
		return
	}
	delete(subs, cid)
	if len(subs) == 0 {
		delete(p.topicSubs, topic)
	}
}

func (p *Processor) applySubscribe(a SubscribeAction) {
	var state subState
	if nc, ok := p.pending[a.Cid]; ok {
		nc.PendingTopics[a.Topic] = struct{}{}
		state = subPending
	} else if conn, ok := p.connections[a.Cid]; ok {
		conn.Topics[a.Topic] = struct{}{}
		state = subAssociated
	} else {
		return
	}
	subs, ok := p.topicSubs[a.Topic]
	if !ok {
		subs = map[ids.Cid]subState{}
		p.topicSubs[a.Topic] = subs
	}
	subs[a.Cid] = state
}

func (p *Processor) applyUnsubscribe(a UnsubscribeAction) {
	if nc, ok := p.pending[a.Cid]; ok {
		delete(nc.PendingTopics, a.Topic)
	}
	if conn, ok := p.connections[a.Cid]; ok {
		delete(conn.Topics, a.Topic)
	}
	p.removeTopicSub(a.Topic, a.Cid)
}

func (p *Processor) applyAttach(a AttachAction) {
	if nc, ok := p.pending[a.Cid]; ok {
		nc.PendingLattices[a.Namespace] = struct{}{}
		return
	}
	conn, ok := p.connections[a.Cid]
	if !ok {
		return
	}
	conn.Lattices[a.Namespace] = struct{}{}

	sess, ok := p.sessions[conn.SessionID]
	if !ok {
		return
	}
	if sess.Lattices[a.Namespace] == nil {
		sess.Lattices[a.Namespace] = map[ids.Cid]struct{}{}
	}
	sess.Lattices[a.Namespace][a.Cid] = struct{}{}

	if store, ok := p.lattices[a.Namespace]; ok && !store.IsEmpty() {
		if snap := store.Snapshot(conn.SessionID); len(snap) > 0 {
			conn.Outbox.Push(wire.Lattice{Namespace: a.Namespace, Values: wireValues(snap)})
		}
	}
}

func (p *Processor) applyDetach(a DetachAction) {
	if nc, ok := p.pending[a.Cid]; ok {
		delete(nc.PendingLattices, a.Namespace)
		return
	}
	conn, ok := p.connections[a.Cid]
	if !ok {
		return
	}
	delete(conn.Lattices, a.Namespace)
	p.detachSessionFromNamespace(conn.SessionID, a.Namespace, a.Cid)
}

// detachSessionFromNamespace drops cid from sessionID's namespace
// membership and, once the session has no more cids attached to that
// namespace, removes the session's subscription/private state from the
// namespace's Store (spec §3 "Lattice namespace... destroyed when all
// subscriptions and private state are gone").
func (p *Processor) detachSessionFromNamespace(sessionID, namespace string, cid ids.Cid) {
	sess, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	set, ok := sess.Lattices[namespace]
	if !ok {
		return
	}
	delete(set, cid)
	if len(set) != 0 {
		return
	}
	delete(sess.Lattices, namespace)
	store, ok := p.lattices[namespace]
	if !ok {
		return
	}
	store.RemoveSession(sessionID)
	if store.IsEmpty() {
		delete(p.lattices, namespace)
	}
}

func (p *Processor) applyPublish(a PublishAction) {
	subs, ok := p.topicSubs[a.Topic]
	if !ok {
		return
	}
	for cid, state := range subs {
		switch state {
		case subAssociated:
			if conn, ok := p.connections[cid]; ok {
				conn.Outbox.Push(wire.Publish{Topic: a.Topic, Payload: a.Payload})
			}
		case subPending:
			if nc, ok := p.pending[cid]; ok {
				nc.Buffered = append(nc.Buffered, bufferedMessage{topic: a.Topic, payload: a.Payload})
			}
		}
	}
}

func (p *Processor) latticeStore(namespace string) *lattice.Store {
	store, ok := p.lattices[namespace]
	if !ok {
		store = lattice.NewStore()
		p.lattices[namespace] = store
	}
	return store
}

func (p *Processor) applyLatticeUpdate(a LatticeUpdateAction) {
	store := p.latticeStore(a.Namespace)
	_, fanout := store.Merge(a.Delta)

	for sessionID, values := range fanout {
		sess, ok := p.sessions[sessionID]
		if !ok {
			continue
		}
		for cid := range sess.Lattices[a.Namespace] {
			if conn, ok := p.connections[cid]; ok {
				conn.Outbox.Push(wire.Lattice{Namespace: a.Namespace, Values: wireValues(values)})
			}
		}
	}

	if store.IsEmpty() {
		delete(p.lattices, a.Namespace)
	}
}

// runCleanup pops every active session whose deadline has passed, emitting
// one InactiveSession Message each (spec §4.1 "Cleanup pass").
func (p *Processor) runCleanup(now time.Time) {
	for {
		deadline, ok := p.activeHeap.PeekDeadline()
		if !ok || deadline.After(now) {
			return
		}
		sessionID, _, _ := p.activeHeap.PopMin()
		sess, ok := p.sessions[sessionID]
		if !ok {
			continue
		}
		p.messages.Push(Message{
			Type:            InactiveSession,
			SessionID:       sess.ID,
			ConnectionCount: len(sess.Connections),
			Metadata:        sess.Metadata,
		})
		if len(sess.Connections) > 0 {
			p.inactive[sess.ID] = sess
		} else {
			delete(p.sessions, sess.ID)
		}
	}
}

// shutdown sends StopSocket(PoolStopped) to every connection, pending or
// associated (spec §4.1 item 8).
func (p *Processor) shutdown(_ time.Time) {
	for _, nc := range p.pending {
		nc.Outbox.Push(wire.StopSocket{Reason: wire.PoolStopped{}})
	}
	for _, conn := range p.connections {
		conn.Outbox.Push(wire.StopSocket{Reason: wire.PoolStopped{}})
	}
}

func wireValues(values map[string]lattice.Values) map[string]map[string]json.RawMessage {
	out := map[string]map[string]json.RawMessage{}
	for key, v := range values {
		out[key] = lattice.EncodeValues(v)
	}
	return out
}
