package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log_level: debug
backends:
  auth:
    addresses: ["127.0.0.1:9001"]
    connections_per_address: 2
    requests_per_second: 50
pools:
  - name: chat
    listen: "0.0.0.0:8080"
    admin_listen: "0.0.0.0:8081"
    new_connection_idle_timeout: 5s
    auth_backend: auth
    auth_path: /authorize_connection
admin:
  requests_per_second: 100
  burst: 20
replication:
  listen: "0.0.0.0:8102"
  peers: ["10.0.0.2:8102", "10.0.0.3:8102"]
  reconnect_interval: 10s
`

func TestLoadDecodesFullTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swindon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Pools, 1)
	assert.Equal(t, "chat", cfg.Pools[0].Name)
	assert.Equal(t, 5*time.Second, cfg.Pools[0].NewConnectionIdleTimeout)
	assert.Equal(t, "auth", cfg.Pools[0].AuthBackend)

	backend, ok := cfg.Backends["auth"]
	require.True(t, ok)
	assert.Equal(t, []string{"127.0.0.1:9001"}, backend.Addresses)

	assert.Equal(t, 100.0, cfg.Admin.RequestsPerSecond)
	assert.Equal(t, []string{"10.0.0.2:8102", "10.0.0.3:8102"}, cfg.Replication.Peers)
	assert.Equal(t, 10*time.Second, cfg.Replication.ReconnectInterval)
}

func TestLoadReturnsErrorOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadReturnsErrorOnMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools: [this is not: valid yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSnapshotLoadReturnsStoredValue(t *testing.T) {
	cfg := &Config{LogLevel: "info"}
	snap := NewSnapshot(cfg)
	assert.Same(t, cfg, snap.Load())

	replacement := &Config{LogLevel: "warn"}
	snap.Store(replacement)
	assert.Same(t, replacement, snap.Load())
}

func TestSnapshotConcurrentReadsDoNotRace(t *testing.T) {
	snap := NewSnapshot(&Config{LogLevel: "info"})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			snap.Store(&Config{LogLevel: "info"})
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_ = snap.Load()
	}
	<-done
}
