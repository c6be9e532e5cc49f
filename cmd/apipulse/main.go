package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/stockdesk/apipulse/internal/cache"
	"github.com/stockdesk/apipulse/internal/config"
	"github.com/stockdesk/apipulse/internal/database"
	"github.com/stockdesk/apipulse/internal/logger"
	"github.com/stockdesk/apipulse/internal/repository"
	"github.com/stockdesk/apipulse/internal/server"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.Observability)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nrApp, err := logger.NewRelic(cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("new relic disabled")
	}

	deps := server.Deps{Log: log, NewRelic: nrApp}

	var pool *pgxpool.Pool
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory stores, data is lost on restart")
		deps.Logs = repository.NewMemoryLogStore()
		deps.Records = repository.NewMemoryRecordStore()
	default:
		if err := database.RunMigrations(ctx, cfg.Database.DSN(), log); err != nil {
			log.Fatal().Err(err).Msg("migrations")
		}
		pool, err = database.NewPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("database pool")
		}
		defer pool.Close()
		deps.Logs = repository.NewLogRepository(pool)
		deps.Records = repository.NewStatusRepository(pool)
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, monitoring snapshots disabled")
		} else {
			defer client.Close()
			deps.Snapshots = cache.NewSnapshotCache(client, time.Duration(cfg.Redis.SnapshotTTL)*time.Second)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps.Registry = reg

	srv := server.New(cfg, deps)

	if pool != nil {
		prober := server.PoolProber{Pool: pool, SlowThreshold: cfg.Observability.SlowQueryThreshold()}
		go server.RunDatabaseProbe(ctx, prober, srv.Updater, time.Duration(cfg.Status.ProbeInterval)*time.Second, log)
	}

	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server exited")
		if nrApp != nil {
			nrApp.Shutdown(5 * time.Second)
		}
		os.Exit(1)
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}
}
