package lattice

// Store holds the live CRDT state for one namespace: shared values, each
// session's private values, and the per-key subscription index used for
// delta fanout (spec §3, §4.1 item 7). A Store has no internal locking — it
// is owned exclusively by one session pool processor goroutine (spec §5).
type Store struct {
	shared        map[string]Values            // Key -> Values
	private       map[string]map[string]Values // SessionId -> Key -> Values
	subscriptions map[string]map[string]struct{}
}

// NewStore returns an empty namespace store.
func NewStore() *Store {
	return &Store{
		shared:        map[string]Values{},
		private:       map[string]map[string]Values{},
		subscriptions: map[string]map[string]struct{}{},
	}
}

// IsEmpty reports whether the namespace carries no state and no
// subscriptions, i.e. it may be destroyed (spec §3 lattice lifecycle).
func (s *Store) IsEmpty() bool {
	return len(s.shared) == 0 && len(s.private) == 0 && len(s.subscriptions) == 0
}

// Merge applies delta to the store, subscribing any session named in
// delta.Private to the keys it wrote (implicit subscription, spec §4.1.7a),
// and returns the minimized delta plus the per-session fanout: for every key
// that actually changed state, the Values each currently-subscribed session
// should receive (their own private Values for that key if present,
// otherwise the shared Values; spec §4.1.7c/d).
func (s *Store) Merge(delta Delta) (minimized Delta, fanout map[string]map[string]Values) {
	minimized = NewDelta()
	changedKeys := map[string]struct{}{}

	for key, incoming := range delta.Shared {
		existing, ok := s.shared[key]
		if !ok {
			existing = NewValues()
		}
		min := existing.merge(incoming)
		s.shared[key] = existing
		if !min.IsEmpty() {
			minimized.Shared[key] = min
			changedKeys[key] = struct{}{}
		}
	}

	for sessionID, byKey := range delta.Private {
		sessionPrivate, ok := s.private[sessionID]
		if !ok {
			sessionPrivate = map[string]Values{}
			s.private[sessionID] = sessionPrivate
		}
		for key, incoming := range byKey {
			// Implicit subscription: writing any private value for a key,
			// even a no-op one, subscribes the session to that key.
			subs, ok := s.subscriptions[key]
			if !ok {
				subs = map[string]struct{}{}
				s.subscriptions[key] = subs
			}
			subs[sessionID] = struct{}{}

			existing, ok := sessionPrivate[key]
			if !ok {
				existing = NewValues()
			}
			min := existing.merge(incoming)
			sessionPrivate[key] = existing
			if !min.IsEmpty() {
				if minimized.Private[sessionID] == nil {
					minimized.Private[sessionID] = map[string]Values{}
				}
				minimized.Private[sessionID][key] = min
				changedKeys[key] = struct{}{}
			}
		}
	}

	fanout = map[string]map[string]Values{}
	for key := range changedKeys {
		for sessionID := range s.subscriptions[key] {
			v := s.valueForFanout(key, sessionID)
			if v.IsEmpty() {
				continue
			}
			if fanout[sessionID] == nil {
				fanout[sessionID] = map[string]Values{}
			}
			fanout[sessionID][key] = v
		}
	}
	return minimized, fanout
}

// valueForFanout selects the Values a session should see for key: its own
// private Values if any, otherwise the shared Values.
func (s *Store) valueForFanout(key, sessionID string) Values {
	if sessionID != "" {
		if byKey, ok := s.private[sessionID]; ok {
			if v, ok := byKey[key]; ok && !v.IsEmpty() {
				return v
			}
		}
	}
	return s.shared[key]
}

// Snapshot returns the merged (shared ∪ private-for-session) Values for
// every key sessionID is currently subscribed to — delivered on Associate
// when reattaching to a namespace that already carries state (spec §4.1
// item 2).
func (s *Store) Snapshot(sessionID string) map[string]Values {
	out := map[string]Values{}
	for key, subs := range s.subscriptions {
		if _, ok := subs[sessionID]; !ok {
			continue
		}
		v := s.valueForFanout(key, sessionID)
		if !v.IsEmpty() {
			out[key] = v
		}
	}
	return out
}

// RemoveSession drops all private state and subscription entries for
// sessionID, e.g. when a session is destroyed (spec §3 "Lattice namespace...
// destroyed when all subscriptions and private state are gone").
func (s *Store) RemoveSession(sessionID string) {
	delete(s.private, sessionID)
	for key, subs := range s.subscriptions {
		delete(subs, sessionID)
		if len(subs) == 0 {
			delete(s.subscriptions, key)
		}
	}
}
