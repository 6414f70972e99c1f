// Package backend implements the outbound HTTP side of swindon: buffered
// JSON POST codecs (AuthCodec, CallCodec, InactivityCodec) dispatched
// against a pooled, backpressured upstream HTTP client (spec §4.3, §4.4).
package backend

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/swindon-chat/swindon/internal/svcerr"
)

// Config describes one logical upstream (spec §4.4).
type Config struct {
	Addresses             []string
	ConnectionsPerAddress int
	QueueSize             int // queue_size_for_503
	KeepAliveTimeout       time.Duration
	SafePipelineTimeout    time.Duration
	MaxRequestTimeout      time.Duration
	RequestsPerSecond      float64 // pacing, per resolved address
	Burst                  int
}

type addressSlot struct {
	addr     string
	inflight chan struct{}
	limiter  *rate.Limiter
}

// Pool is one upstream's connection pool: N connections per resolved
// address, a bounded admission queue, and per-address pacing (spec §4.4,
// SPEC_FULL §11 pacing via golang.org/x/time/rate).
type Pool struct {
	cfg    Config
	client *http.Client
	queue  chan struct{}
	addrs  []*addressSlot
	next   atomic.Uint64
	log    zerolog.Logger
}

// NewPool builds a Pool. An empty Addresses list is legal: every Do call
// then fails fast with NoPool (spec §4.4).
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.ConnectionsPerAddress,
		IdleConnTimeout:     cfg.KeepAliveTimeout,
		DisableCompression:  true,
	}
	addrs := make([]*addressSlot, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		addrs = append(addrs, &addressSlot{
			addr:     addr,
			inflight: make(chan struct{}, maxInt(cfg.ConnectionsPerAddress, 1)),
			limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), maxInt(cfg.Burst, 1)),
		})
	}
	return &Pool{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		queue:  make(chan struct{}, maxInt(cfg.QueueSize, 1)),
		addrs:  addrs,
		log:    log.With().Str("component", "backend-pool").Logger(),
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Do dispatches req against the next resolved address, enforcing the
// bounded queue, per-address inflight limit, pacing, and
// max_request_timeout (spec §4.4). Connection failures on one address
// never propagate to in-flight codecs on another (each address has its own
// inflight slot set and limiter).
func (p *Pool) Do(ctx context.Context, req *http.Request) (*http.Response, *svcerr.Error) {
	if len(p.addrs) == 0 {
		return nil, svcerr.NoPool()
	}

	select {
	case p.queue <- struct{}{}:
	default:
		return nil, svcerr.PoolOverflow()
	}
	defer func() { <-p.queue }()

	idx := p.next.Add(1) % uint64(len(p.addrs))
	slot := p.addrs[idx]

	reqCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.MaxRequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxRequestTimeout)
		defer cancel()
	}

	if err := slot.limiter.Wait(reqCtx); err != nil {
		return nil, svcerr.PoolError("pacing wait: " + err.Error())
	}

	select {
	case slot.inflight <- struct{}{}:
	case <-reqCtx.Done():
		return nil, svcerr.PoolError("timed out waiting for a connection slot")
	}
	defer func() { <-slot.inflight }()

	req = req.WithContext(reqCtx)
	req.URL.Scheme, req.URL.Host = splitScheme(slot.addr)
	req.Host = req.URL.Host
	req.ContentLength = contentLength(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, svcerr.PoolError(err.Error())
	}
	return resp, nil
}

func contentLength(req *http.Request) int64 {
	if req.Body == nil {
		return 0
	}
	if req.ContentLength > 0 {
		return req.ContentLength
	}
	return -1
}

// splitScheme is a tiny helper: addresses are given as "host:port" or
// "scheme://host:port"; backend calls never use chunked encoding, so the
// caller is responsible for setting Content-Length (spec §4.3 "always set
// Content-Length").
func splitScheme(addr string) (scheme, host string) {
	const httpsPrefix = "https://"
	const httpPrefix = "http://"
	switch {
	case len(addr) >= len(httpsPrefix) && addr[:len(httpsPrefix)] == httpsPrefix:
		return "https", addr[len(httpsPrefix):]
	case len(addr) >= len(httpPrefix) && addr[:len(httpPrefix)] == httpPrefix:
		return "http", addr[len(httpPrefix):]
	default:
		return "http", addr
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
