package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/swindon-chat/swindon/internal/admin"
	"github.com/swindon-chat/swindon/internal/backend"
	"github.com/swindon-chat/swindon/internal/cache"
	"github.com/swindon-chat/swindon/internal/config"
	"github.com/swindon-chat/swindon/internal/frontend"
	"github.com/swindon-chat/swindon/internal/ids"
	"github.com/swindon-chat/swindon/internal/inactivity"
	"github.com/swindon-chat/swindon/internal/logger"
	"github.com/swindon-chat/swindon/internal/pool"
	"github.com/swindon-chat/swindon/internal/replication"
	"github.com/swindon-chat/swindon/internal/router"
)

func main() {
	configPath := flag.String("config", "swindon.yaml", "path to the YAML configuration file")
	flag.Parse()

	loaded, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "swindon: %v\n", err)
		os.Exit(1)
	}
	// snapshot is the single writer's cell (spec §5 "Shared resource
	// policy"): every component below reads it once at startup via
	// snapshot.Load() rather than closing over the raw *Config, so a
	// future reloader only has to add a second Store call.
	snapshot := config.NewSnapshot(loaded)
	cfg := snapshot.Load()

	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	redisCache, err := cache.NewCache(cache.Config{
		Enabled:  cfg.Cache.Enabled,
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize Redis cache, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolMgr := pool.NewManager(logger.Pool("manager"))
	defer poolMgr.StopAll()

	runtimeGen := ids.NewGenerator()
	localID := runtimeGen.Next(time.Now())

	replMgr := replication.NewManager(localID, poolMgr, logger.Replication())
	defer replMgr.Close()

	relay := func(poolName string) func(pool.Action) {
		return func(a pool.Action) { replMgr.Relay(poolName, a) }
	}

	var servers []*http.Server

	for _, pc := range cfg.Pools {
		processor, err := poolMgr.CreatePool(pc.Name, pool.Config{
			NewConnectionIdleTimeout: pc.NewConnectionIdleTimeout,
			MinIdle:                  pc.MinIdle,
			MaxIdle:                  pc.MaxIdle,
		})
		if err != nil {
			log.Fatal().Err(err).Str("pool", pc.Name).Msg("failed to create pool")
		}

		authBackend := backend.NewPool(resolveBackend(cfg, pc.AuthBackend), logger.Backend())
		inactivityBackend := backend.NewPool(resolveBackend(cfg, pc.InactivityBackend), logger.Backend())
		callBackend := backend.NewPool(resolveBackend(cfg, pc.CallBackend), logger.Backend())

		authCodec := &backend.AuthCodec{Pool: authBackend, Processor: processor, Path: pc.AuthPath}
		callCodec := &backend.CallCodec{
			Pool:       callBackend,
			BasePath:   pc.CallBasePath,
			AuthFormat: parseAuthFormat(pc.CallAuthFormat),
		}
		inactivityCodec := &backend.InactivityCodec{Pool: inactivityBackend, Path: pc.InactivityPath}

		frontendSrv := frontend.NewServer(processor, authCodec, callCodec, &ids.CidAllocator{}, runtimeGen, frontend.Config{
			MinIdle:    pc.MinIdle,
			MaxIdle:    pc.MaxIdle,
			PongWait:   pc.PongWait,
			PingPeriod: pc.PingPeriod,
			WriteWait:  pc.WriteWait,
		}, logger.Frontend())

		chatTable := router.New(logger.Router())
		chatTable.Add(router.Route{Path: "/", Handler: frontendSrv})
		servers = append(servers, listenAndServe(pc.Listen, chatTable, log))

		adminSrv := admin.NewServer(processor, relay(pc.Name), redisCache, cfg.Admin.RequestsPerSecond, cfg.Admin.Burst, logger.Admin())
		adminTable := router.New(logger.Router())
		adminTable.Add(router.Route{Path: "/", Handler: adminSrv})
		servers = append(servers, listenAndServe(pc.AdminListen, adminTable, log))

		dispatcher := inactivity.NewDispatcher(processor, []*backend.InactivityCodec{inactivityCodec}, logger.Inactivity())
		go dispatcher.Run(ctx)
	}

	replTable := router.New(logger.Router())
	replTable.Add(router.Route{Path: "/", Handler: replMgr.Accept(websocket.Upgrader{})})
	servers = append(servers, listenAndServe(cfg.Replication.Listen, replTable, log))

	reconnectInterval := cfg.Replication.ReconnectInterval
	if reconnectInterval <= 0 {
		reconnectInterval = 10 * time.Second
	}
	go replMgr.Reconnect(ctx, cfg.Replication.Peers, reconnectInterval)

	if cfg.Replication.DiscoveryNATSURL != "" {
		discovery, err := replication.NewDiscovery(cfg.Replication.DiscoveryNATSURL, localID, cfg.Replication.Listen, logger.Replication())
		if err != nil {
			log.Warn().Err(err).Msg("failed to start replication peer discovery")
		} else {
			defer discovery.Close()
			go discovery.AnnounceLoop(ctx.Done(), 30*time.Second)
			go discoveredPeerDialer(ctx, replMgr, discovery, reconnectInterval)
		}
	}

	log.Info().Msg("swindon started")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Str("addr", srv.Addr).Msg("server forced to shutdown")
		}
	}
}

func resolveBackend(cfg *config.Config, name string) backend.Config {
	bc, ok := cfg.Backends[name]
	if !ok {
		return backend.Config{}
	}
	return backend.Config{
		Addresses:             bc.Addresses,
		ConnectionsPerAddress: bc.ConnectionsPerAddress,
		QueueSize:             bc.QueueSize,
		KeepAliveTimeout:      bc.KeepAliveTimeout,
		SafePipelineTimeout:   bc.SafePipelineTimeout,
		MaxRequestTimeout:     bc.MaxRequestTimeout,
		RequestsPerSecond:     bc.RequestsPerSecond,
		Burst:                 bc.Burst,
	}
}

func parseAuthFormat(s string) backend.AuthFormat {
	if s == "swindon_json" {
		return backend.AuthFormatSwindonJSON
	}
	return backend.AuthFormatTangle
}

func listenAndServe(addr string, handler http.Handler, log *zerolog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", addr).Msg("listener failed")
		}
	}()
	return srv
}

// discoveredPeerDialer dials every peer address Discovery has learned on a
// fixed interval, alongside the static Reconnect loop over the configured
// peer list (SPEC_FULL §11: discovery is additive, not a replacement).
func discoveredPeerDialer(ctx context.Context, mgr *replication.Manager, d *replication.Discovery, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range d.Peers() {
				if err := mgr.Dial(ctx, addr); err != nil {
					logger.Replication().Debug().Err(err).Str("addr", addr).Msg("discovered peer dial failed")
				}
			}
		}
	}
}
