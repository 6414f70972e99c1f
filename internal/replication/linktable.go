package replication

import (
	"sync"

	"github.com/swindon-chat/swindon/internal/ids"
)

// linkTable holds at most one live link per peer ServerId. Put implements
// spec §9 Open Question 2: when an outbound link is established to a peer
// that already has a link in the table, the new outbound link replaces
// (and closes) whatever was there, inbound or outbound; when an inbound
// link arrives for a peer that already has an outbound link, the existing
// outbound link wins and the new inbound connection is closed instead
// (spec §4.7 "the outbound link wins after handshake completes").
type linkTable struct {
	mu    sync.Mutex
	links map[ids.ServerId]*link
}

func newLinkTable() *linkTable {
	return &linkTable{links: map[ids.ServerId]*link{}}
}

// put installs l, returning the link that was evicted (nil if none) and
// whether l itself was installed. When dir is inbound and an outbound link
// already exists for the same peer, l is rejected (installed=false) and
// the caller must close it.
func (t *linkTable) put(l *link) (evicted *link, installed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.links[l.peerID]
	if ok && existing.dir == outbound && l.dir == inbound {
		return nil, false
	}
	t.links[l.peerID] = l
	if ok {
		return existing, true
	}
	return nil, true
}

// remove evicts l only if it is still the table's current link for its
// peer (a stale link losing a race should not evict its replacement).
func (t *linkTable) remove(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.links[l.peerID]; ok && cur == l {
		delete(t.links, l.peerID)
	}
}

func (t *linkTable) has(peerID ids.ServerId) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.links[peerID]
	return ok
}

func (t *linkTable) broadcast(m Message, skip ids.ServerId) {
	t.mu.Lock()
	links := make([]*link, 0, len(t.links))
	for id, l := range t.links {
		if id == skip {
			continue
		}
		links = append(links, l)
	}
	t.mu.Unlock()
	for _, l := range links {
		l.send(m)
	}
}

func (t *linkTable) closeAll() {
	t.mu.Lock()
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.links = map[ids.ServerId]*link{}
	t.mu.Unlock()
	for _, l := range links {
		l.close()
	}
}
