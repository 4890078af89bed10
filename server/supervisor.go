package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cppservergit/apiserver2/config"
	"github.com/cppservergit/apiserver2/internal/catalog"
	"github.com/cppservergit/apiserver2/internal/cors"
	"github.com/cppservergit/apiserver2/internal/metrics"
	"github.com/cppservergit/apiserver2/internal/reactor"
	"github.com/cppservergit/apiserver2/internal/security"
)

// Supervisor owns the process-wide collaborators shared by every shard
// (catalog, CORS allow-list, security gate, metrics) and the set of
// reactor shards themselves, the direct equivalent of server's fields and
// server::start()/server::~server().
type Supervisor struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	gate    *security.Gate
	cors    *cors.AllowList
	log     *slog.Logger

	running *atomic.Bool
	shards  []*reactor.Shard
}

// New builds a Supervisor from cfg and a caller-supplied registration
// function that adds application endpoints to the catalog before it is
// frozen. The four built-in endpoints (§4.K) are always registered first.
func New(cfg *config.Config, log *slog.Logger, register func(*catalog.Catalog)) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	podName, err := os.Hostname()
	if err != nil {
		podName = "unknown"
	}

	m := metrics.New(podName, cfg.PoolSize, cfg.TZ)
	jwtSvc := security.NewService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTTimeoutSeconds)*time.Second,
		time.Duration(cfg.JWTMFATimeoutSeconds)*time.Second,
	)
	gate := security.NewGate(jwtSvc, cfg.MFAURI, cfg.APIKey, log)
	allowList := cors.New(cfg.CORSOrigins)

	cat := catalog.New()
	registerBuiltins(cat, m)
	if register != nil {
		register(cat)
	}
	cat.Start()

	return &Supervisor{
		cfg:     cfg,
		catalog: cat,
		metrics: m,
		gate:    gate,
		cors:    allowList,
		log:     log,
		running: &atomic.Bool{},
	}, nil
}

// Run builds one shard per IO_THREADS, starts each shard's event loop on
// its own goroutine, and blocks until SIGINT, SIGTERM or SIGQUIT arrives
// (no SIGPIPE handling is needed in Go: writes to a closed socket surface
// as a plain error, never a process signal). It then clears the shared
// running flag and waits for every shard to finish draining before
// returning, mirroring server::start()'s signalfd wait and shutdown.
func (s *Supervisor) Run() error {
	workersPerShard := max(1, s.cfg.PoolSize/s.cfg.IOThreads)
	s.log.Info("starting",
		"version", version,
		"port", s.cfg.Port,
		"io_threads", s.cfg.IOThreads,
		"pool_size", s.cfg.PoolSize,
		"workers_per_shard", workersPerShard,
	)

	s.running.Store(true)

	for i := 0; i < s.cfg.IOThreads; i++ {
		shard, err := reactor.NewShard(i, reactor.Config{
			Port:           s.cfg.Port,
			MaxRequestSize: int(s.cfg.MaxRequestSize),
			IdleTimeout:    config.ReadTimeout,
			NumWorkers:     workersPerShard,
			QueueCapacity:  s.cfg.QueueCapacity,
			Catalog:        s.catalog,
			CORS:           s.cors,
			Gate:           s.gate,
			Metrics:        s.metrics,
			Log:            s.log,
			Running:        s.running,
		})
		if err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
		s.shards = append(s.shards, shard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	var wg sync.WaitGroup
	for _, shard := range s.shards {
		wg.Add(1)
		go func(sh *reactor.Shard) {
			defer wg.Done()
			sh.Run(ctx)
		}(shard)
	}

	<-ctx.Done()
	stop()
	s.log.Info("shutdown signal received, draining in-flight work")
	s.running.Store(false)

	wg.Wait()
	s.log.Info("shutdown complete")
	return nil
}
