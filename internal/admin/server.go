// Package admin implements the per-pool HTTP admin surface (spec §4.6):
// publish, lattice update, and per-connection subscribe/attach management.
package admin

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/cache"
	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/lattice"
	"github.com/swindon-chat/swindon/internal/middleware"
	"github.com/swindon-chat/swindon/internal/pool"
)

// Server is the admin HTTP surface for one session pool. All routes return
// 204 on success, 404 on unknown route or unparseable cid, 400 on a
// malformed body (spec §4.6).
type Server struct {
	engine *gin.Engine
}

// rateLimiter is whatever admin's request-rate middleware is built from:
// either a Redis-backed cacheRateLimiter (shared across every replica of
// this pool) or the teacher's in-memory per-process middleware.RateLimiter.
type rateLimiter interface {
	Middleware() gin.HandlerFunc
}

// NewServer builds the admin router for processor, rate-limited per client
// IP (SPEC_FULL §11). When c is enabled the limit is enforced in Redis
// (grounded on internal/cache/cache.go's Increment/Expire) as a fixed
// one-minute window of requestsPerSecond*60 requests, so every pool
// replica shares one counter; burst is not used on that path. Otherwise it
// falls back to the teacher's in-process token bucket at
// requestsPerSecond/burst (internal/middleware/ratelimit.go), which needs
// no cross-replica state.
// relay, when non-nil, is called with every Action this surface enqueues
// that spec §4.7 replicates to peer nodes (Publish/Subscribe/Unsubscribe/
// Attach/Detach/LatticeUpdate). admin stays decoupled from
// internal/replication's types; cmd/swindon/main.go supplies a closure over its
// replication.Manager and this pool's name.
// The middleware chain is request ID, panic recovery, security headers,
// structured request logging, a 30s request timeout, a body size cap, then
// the rate limiter described above.
func NewServer(processor *pool.Processor, relay func(pool.Action), c *cache.Cache, requestsPerSecond float64, burst int, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(gin.Recovery())
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.TimeoutWithDuration(30 * time.Second))
	engine.Use(middleware.JSONSizeLimiter())

	var limiter rateLimiter
	if c != nil && c.IsEnabled() {
		limiter = newCacheRateLimiter(c, int(requestsPerSecond*60), time.Minute)
	} else {
		limiter = middleware.NewRateLimiter(requestsPerSecond, burst)
	}
	engine.Use(limiter.Middleware())

	if relay == nil {
		relay = func(pool.Action) {}
	}
	h := &handlers{processor: processor, relay: relay, log: log.With().Str("component", "admin").Logger()}

	v1 := engine.Group("/v1")
	v1.POST("/publish/:topic", h.publish)
	v1.POST("/lattice/:namespace", h.latticeUpdate)
	v1.PUT("/connection/:cid/subscriptions/:topic", h.subscribe)
	v1.DELETE("/connection/:cid/subscriptions/:topic", h.unsubscribe)
	v1.PUT("/connection/:cid/lattices/:namespace", h.attach)
	v1.DELETE("/connection/:cid/lattices/:namespace", h.detach)
	engine.NoRoute(func(c *gin.Context) { c.Status(http.StatusNotFound) })

	return &Server{engine: engine}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

type handlers struct {
	processor *pool.Processor
	relay     func(pool.Action)
	log       zerolog.Logger
}

func parseCid(c *gin.Context) (ids.Cid, bool) {
	return ids.ParseCid(c.Param("cid"))
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (h *handlers) publish(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	action := pool.PublishAction{Topic: c.Param("topic"), Payload: body}
	h.processor.Enqueue(time.Now(), action)
	h.relay(action)
	c.Status(http.StatusNoContent)
}

func (h *handlers) latticeUpdate(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	delta, err := lattice.DecodeDelta(body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	action := pool.LatticeUpdateAction{Namespace: c.Param("namespace"), Delta: delta}
	h.processor.Enqueue(time.Now(), action)
	h.relay(action)
	c.Status(http.StatusNoContent)
}

func (h *handlers) subscribe(c *gin.Context) {
	cid, ok := parseCid(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	action := pool.SubscribeAction{Cid: cid, Topic: c.Param("topic")}
	h.processor.Enqueue(time.Now(), action)
	h.relay(action)
	c.Status(http.StatusNoContent)
}

func (h *handlers) unsubscribe(c *gin.Context) {
	cid, ok := parseCid(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	action := pool.UnsubscribeAction{Cid: cid, Topic: c.Param("topic")}
	h.processor.Enqueue(time.Now(), action)
	h.relay(action)
	c.Status(http.StatusNoContent)
}

// attach treats the PUT body as a Delta representing the namespace's
// initial bulk subscribe state: it is applied as a LatticeUpdate before the
// connection Attaches, so the new subscriber's own first snapshot already
// reflects it (spec §4.6).
func (h *handlers) attach(c *gin.Context) {
	cid, ok := parseCid(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}
	delta, err := lattice.DecodeDelta(body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	namespace := c.Param("namespace")
	now := time.Now()
	if !delta.IsEmpty() {
		latticeAction := pool.LatticeUpdateAction{Namespace: namespace, Delta: delta}
		h.processor.Enqueue(now, latticeAction)
		h.relay(latticeAction)
	}
	attachAction := pool.AttachAction{Cid: cid, Namespace: namespace}
	h.processor.Enqueue(now, attachAction)
	h.relay(attachAction)
	c.Status(http.StatusNoContent)
}

func (h *handlers) detach(c *gin.Context) {
	cid, ok := parseCid(c)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	action := pool.DetachAction{Cid: cid, Namespace: c.Param("namespace")}
	h.processor.Enqueue(time.Now(), action)
	h.relay(action)
	c.Status(http.StatusNoContent)
}
