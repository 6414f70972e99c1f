package inactivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/backend"
	"github.com/swindon-chat/swindon/internal/pool"
)

func TestDispatcherFiresEveryDestinationOnInactiveSession(t *testing.T) {
	var hits1, hits2 atomic.Int32
	upstream1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits1.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream1.Close()
	upstream2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits2.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream2.Close()

	poolCfg := backend.Config{ConnectionsPerAddress: 2, QueueSize: 4, RequestsPerSecond: 1000, Burst: 1000}

	p1 := backend.NewPool(backend.Config{Addresses: []string{upstream1.URL}, ConnectionsPerAddress: poolCfg.ConnectionsPerAddress, QueueSize: poolCfg.QueueSize, RequestsPerSecond: poolCfg.RequestsPerSecond, Burst: poolCfg.Burst}, zerolog.Nop())
	p2 := backend.NewPool(backend.Config{Addresses: []string{upstream2.URL}, ConnectionsPerAddress: poolCfg.ConnectionsPerAddress, QueueSize: poolCfg.QueueSize, RequestsPerSecond: poolCfg.RequestsPerSecond, Burst: poolCfg.Burst}, zerolog.Nop())

	destinations := []*backend.InactivityCodec{
		{Pool: p1, Path: "/inactive"},
		{Pool: p2, Path: "/inactive"},
	}

	processor := pool.New("test", pool.Config{NewConnectionIdleTimeout: time.Second, MaxIdle: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Run(ctx)

	d := NewDispatcher(processor, destinations, zerolog.Nop())
	go d.Run(ctx)

	processor.Messages().Push(pool.Message{Type: pool.InactiveSession, SessionID: "s1", ConnectionCount: 0})

	require.Eventually(t, func() bool {
		return hits1.Load() == 1 && hits2.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcherIgnoresUnknownMessageTypes(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p := backend.NewPool(backend.Config{Addresses: []string{upstream.URL}, ConnectionsPerAddress: 1, QueueSize: 4, RequestsPerSecond: 1000, Burst: 1000}, zerolog.Nop())
	destinations := []*backend.InactivityCodec{{Pool: p, Path: "/inactive"}}

	processor := pool.New("test", pool.Config{NewConnectionIdleTimeout: time.Second, MaxIdle: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Run(ctx)

	d := NewDispatcher(processor, destinations, zerolog.Nop())
	go d.Run(ctx)

	processor.Messages().Push(pool.Message{Type: pool.MessageType(99), SessionID: "s1"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), hits.Load())
}
