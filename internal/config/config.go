// Package config decodes the static YAML configuration file the process
// is started with and publishes it as an immutable snapshot (spec §5
// "Shared resource policy"). There is no hot-reload watcher: Load reads
// the file once. The config tree covers only the pieces the core reads:
// pool names, timeouts, upstream addresses, listen addresses, and
// replication peers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendConfig names one upstream HTTP pool (spec §4.3) and its
// behavior knobs.
type BackendConfig struct {
	Addresses             []string      `yaml:"addresses"`
	ConnectionsPerAddress int           `yaml:"connections_per_address"`
	QueueSize             int           `yaml:"queue_size"`
	KeepAliveTimeout      time.Duration `yaml:"keepalive_timeout"`
	SafePipelineTimeout   time.Duration `yaml:"safe_pipeline_timeout"`
	MaxRequestTimeout     time.Duration `yaml:"max_request_timeout"`
	RequestsPerSecond     float64       `yaml:"requests_per_second"`
	Burst                 int           `yaml:"burst"`
}

// PoolConfig is one named session pool (spec §4.1, §4.5): its processor
// timeouts, the WebSocket listen address, and the auth/call/inactivity
// backends it talks to. One CallCodec serves an entire pool (spec §4.3 —
// method names are dispatched by joining BasePath with the dotted method
// name, not by a separate handler per method).
type PoolConfig struct {
	Name   string `yaml:"name"`
	Listen string `yaml:"listen"`

	// AdminListen is this pool's own admin REST listener (spec §4.6: "a
	// separate listener per session pool"); AdminConfig below only holds
	// the rate-limit settings shared across every pool's admin listener.
	AdminListen string `yaml:"admin_listen"`

	NewConnectionIdleTimeout time.Duration `yaml:"new_connection_idle_timeout"`
	MinIdle                  time.Duration `yaml:"min_idle"`
	MaxIdle                  time.Duration `yaml:"max_idle"`
	PongWait                 time.Duration `yaml:"pong_wait"`
	PingPeriod               time.Duration `yaml:"ping_period"`
	WriteWait                time.Duration `yaml:"write_wait"`

	AuthBackend       string `yaml:"auth_backend"`
	AuthPath          string `yaml:"auth_path"`
	InactivityBackend string `yaml:"inactivity_backend"`
	InactivityPath    string `yaml:"inactivity_path"`

	CallBackend    string `yaml:"call_backend"`
	CallBasePath   string `yaml:"call_base_path"`
	CallAuthFormat string `yaml:"call_auth_format"` // "tangle" or "swindon_json"
}

// AdminConfig holds the rate-limit settings shared by every pool's admin
// listener (spec §4.6: each pool gets its own listener at
// PoolConfig.AdminListen, but they're rate-limited the same way).
type AdminConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ReplicationConfig is the peer replication listener's configuration
// (spec §4.7).
type ReplicationConfig struct {
	Listen            string        `yaml:"listen"`
	Peers             []string      `yaml:"peers"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	DiscoveryNATSURL  string        `yaml:"discovery_nats_url"`
}

// CacheConfig is the optional Redis connection used for cross-replica
// admin rate limiting (SPEC_FULL §11).
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is the full static configuration tree (spec §5). It is decoded
// once at startup and never mutated; updates are published by replacing
// the whole value in a Snapshot.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	Backends    map[string]BackendConfig `yaml:"backends"`
	Pools       []PoolConfig             `yaml:"pools"`
	Admin       AdminConfig              `yaml:"admin"`
	Replication ReplicationConfig        `yaml:"replication"`
	Cache       CacheConfig              `yaml:"cache"`
}

// Load reads and decodes a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
