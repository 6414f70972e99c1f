package pool

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/wire"
)

func TestManagerCreateAndStopPool(t *testing.T) {
	m := NewManager(zerolog.Nop())
	p, err := m.CreatePool("chat", Config{NewConnectionIdleTimeout: time.Minute})
	require.NoError(t, err)

	got, ok := m.Get("chat")
	require.True(t, ok)
	assert.Same(t, p, got)

	outbox := wire.NewOutbox()
	p.Enqueue(time.Now(), NewConnectionAction{Cid: ids.Cid(1), Outbox: outbox})

	require.NoError(t, m.StopPool("chat"))
	_, ok = m.Get("chat")
	assert.False(t, ok)
}

func TestManagerRejectsDuplicatePoolName(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_, err := m.CreatePool("chat", Config{})
	require.NoError(t, err)
	defer m.StopPool("chat")

	_, err = m.CreatePool("chat", Config{})
	assert.Error(t, err)
}

func TestManagerStopUnknownPoolErrors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	err := m.StopPool("does-not-exist")
	assert.Error(t, err)
}
