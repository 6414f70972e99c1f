package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the set of named session pools a swindon instance runs,
// starting and stopping each Processor's goroutine (spec §4.1 item 8
// "Pool lifecycle").
type Manager struct {
	log zerolog.Logger

	mu     sync.RWMutex
	pools  map[string]*Processor
	cancel map[string]context.CancelFunc
}

// NewManager returns an empty Manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:    log.With().Str("component", "pool-manager").Logger(),
		pools:  map[string]*Processor{},
		cancel: map[string]context.CancelFunc{},
	}
}

// CreatePool starts a new named pool's processor goroutine. Returns an
// error if a pool with that name already exists.
func (m *Manager) CreatePool(name string, config Config) (*Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[name]; exists {
		return nil, fmt.Errorf("pool: %q already exists", name)
	}
	p := New(name, config, m.log.With().Str("pool", name).Logger())
	ctx, cancel := context.WithCancel(context.Background())
	m.pools[name] = p
	m.cancel[name] = cancel
	go p.Run(ctx)
	return p, nil
}

// StopPool stops and removes the named pool, enqueueing a StopAction so
// every live connection receives StopSocket(PoolStopped) before the loop
// exits (spec §4.1 item 8).
func (m *Manager) StopPool(name string) error {
	m.mu.Lock()
	p, ok := m.pools[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("pool: %q not found", name)
	}
	cancel := m.cancel[name]
	delete(m.pools, name)
	delete(m.cancel, name)
	m.mu.Unlock()

	p.Enqueue(time.Now(), StopAction{})
	cancel()
	return nil
}

// Get returns the named pool's Processor, if running.
func (m *Manager) Get(name string) (*Processor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

// StopAll stops every running pool, e.g. on process shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	m.mu.RUnlock()
	for _, name := range names {
		_ = m.StopPool(name)
	}
}
