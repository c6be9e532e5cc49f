package server

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/status"
)

// DatabaseProbeKey is the database status record the probe reports on.
const DatabaseProbeKey = "postgres"

// Prober samples the health of one database.
type Prober interface {
	Probe(ctx context.Context) status.DatabaseProbe
}

// PoolProber probes a pgx pool with a ping and reports its connection counts.
type PoolProber struct {
	Pool          *pgxpool.Pool
	SlowThreshold time.Duration
}

func (p PoolProber) Probe(ctx context.Context) status.DatabaseProbe {
	stat := p.Pool.Stat()
	probe := status.DatabaseProbe{
		Pool: model.ConnectionPool{
			Active: int64(stat.AcquiredConns()),
			Idle:   int64(stat.IdleConns()),
			Total:  int64(stat.TotalConns()),
		},
		SlowThreshold: p.SlowThreshold,
	}
	start := time.Now()
	if err := p.Pool.Ping(ctx); err != nil {
		probe.Err = err
		return probe
	}
	probe.Latency = time.Since(start)
	if err := p.Pool.QueryRow(ctx, "SHOW server_version").Scan(&probe.Version); err != nil {
		probe.Version = ""
	}
	return probe
}

// RunDatabaseProbe records a probe every interval until ctx is done.
func RunDatabaseProbe(ctx context.Context, prober Prober, updater *status.Updater, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		return
	}
	probeOnce(ctx, prober, updater, interval, log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeOnce(ctx, prober, updater, interval, log)
		}
	}
}

func probeOnce(ctx context.Context, prober Prober, updater *status.Updater, timeout time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := prober.Probe(ctx)
	if p.Err != nil {
		log.Warn().Err(p.Err).Str("database", DatabaseProbeKey).Msg("database probe failed")
	}
	if err := updater.RecordDatabaseProbe(ctx, DatabaseProbeKey, p); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("record database probe failed")
	}
}
