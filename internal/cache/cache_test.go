package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheDisabledIsNoOp(t *testing.T) {
	c, err := NewCache(Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	require.NoError(t, c.Close())
}

func TestDisabledCacheIncrementReturnsError(t *testing.T) {
	c, err := NewCache(Config{Enabled: false})
	require.NoError(t, err)

	_, err = c.Increment(context.Background(), "k")
	assert.Error(t, err)
}

func TestDisabledCacheExpireIsNoOp(t *testing.T) {
	c, err := NewCache(Config{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, c.Expire(context.Background(), "k", 0))
}
