package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swindon-chat/swindon/internal/cache"
)

// cacheRateLimiter is a fixed-window per-IP limiter backed by internal/cache's
// Redis client, so the limit holds across every replica of this pool's admin
// listener rather than just the local process. A disabled or unreachable
// cache fails open (internal/cache.Cache's own "graceful fallback" policy:
// Increment only errors when the client is absent or Redis is down, and admin
// traffic shouldn't be rejected because the rate-limit backend is).
type cacheRateLimiter struct {
	cache  *cache.Cache
	limit  int64
	window time.Duration
}

func newCacheRateLimiter(c *cache.Cache, limit int, window time.Duration) *cacheRateLimiter {
	return &cacheRateLimiter{cache: c, limit: int64(limit), window: window}
}

func (r *cacheRateLimiter) allow(c *gin.Context) bool {
	if !r.cache.IsEnabled() {
		return true
	}
	key := "admin:ratelimit:" + c.ClientIP()
	ctx := c.Request.Context()
	count, err := r.cache.Increment(ctx, key)
	if err != nil {
		return true
	}
	if count == 1 {
		r.cache.Expire(ctx, key, r.window)
	}
	return count <= r.limit
}

func (r *cacheRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c) {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
