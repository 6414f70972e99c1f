package config

import "sync/atomic"

// Snapshot publishes an immutable *Config for many readers to consult
// without racing the single writer that replaces it (spec §5 "Shared
// resource policy"). There is no hot-reload watcher in this repo — Store
// is only ever called once at startup — but the cell itself is the piece
// the processor and frontend both depend on, so it is built generically
// rather than assuming a single Store call.
type Snapshot struct {
	cell atomic.Pointer[Config]
}

// NewSnapshot returns a Snapshot already holding cfg.
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.Store(cfg)
	return s
}

// Load returns the current Config. The returned value must be treated as
// read-only by the caller; any task needing config reads the snapshot
// once and uses it for the lifetime of that request (spec §5).
func (s *Snapshot) Load() *Config {
	return s.cell.Load()
}

// Store publishes cfg as the new current Config.
func (s *Snapshot) Store(cfg *Config) {
	s.cell.Store(cfg)
}
