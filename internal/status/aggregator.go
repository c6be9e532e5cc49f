package status

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
)

const (
	topEndpoints       = 10
	recentErrorEntries = 10
	highThreatLevel    = 7
)

// Aggregator builds read-only views over logs and status records. Read failures
// are logged and degrade to empty data instead of errors.
type Aggregator struct {
	logs    LogStore
	records RecordStore
	log     zerolog.Logger
	started time.Time
	now     func() time.Time
}

func NewAggregator(logs LogStore, records RecordStore, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		logs:    logs,
		records: records,
		log:     log,
		started: time.Now(),
		now:     time.Now,
	}
}

func listOrEmpty[T model.Record](ctx context.Context, a *Aggregator, d model.Domain) []T {
	out, err := ListAs[T](ctx, a.records, d)
	if err != nil {
		a.log.Error().Err(err).Str("domain", string(d)).Msg("failed to list status records")
		return []T{}
	}
	return out
}

// Overview reads all six extended domains concurrently.
func (a *Aggregator) Overview(ctx context.Context) model.SystemOverview {
	var (
		ov model.SystemOverview
		wg sync.WaitGroup
	)
	wg.Add(6)
	go func() {
		defer wg.Done()
		ov.Database = listOrEmpty[*model.DatabaseStatus](ctx, a, model.DomainDatabase)
	}()
	go func() {
		defer wg.Done()
		ov.Auth = listOrEmpty[*model.AuthStatus](ctx, a, model.DomainAuth)
	}()
	go func() {
		defer wg.Done()
		ov.ExternalServices = listOrEmpty[*model.ExternalServiceStatus](ctx, a, model.DomainExternalService)
	}()
	go func() {
		defer wg.Done()
		ov.Cache = listOrEmpty[*model.CacheStatus](ctx, a, model.DomainCache)
	}()
	go func() {
		defer wg.Done()
		ov.Security = listOrEmpty[*model.SecurityStatus](ctx, a, model.DomainSecurity)
	}()
	go func() {
		defer wg.Done()
		ov.BusinessLogic = listOrEmpty[*model.BusinessLogicStatus](ctx, a, model.DomainBusinessLogic)
	}()
	wg.Wait()
	return ov
}

// Records lists one domain, best effort.
func (a *Aggregator) Records(ctx context.Context, d model.Domain) []model.Record {
	recs, err := a.records.List(ctx, d)
	if err != nil {
		a.log.Error().Err(err).Str("domain", string(d)).Msg("failed to list status records")
		return []model.Record{}
	}
	return recs
}

// Stats returns log statistics, zeroed when the log store is unavailable.
func (a *Aggregator) Stats(ctx context.Context) model.LogStats {
	stats, err := a.logs.Stats(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to compute log stats")
		return model.LogStats{}
	}
	return stats
}

// Endpoints lists API status records, busiest first.
func (a *Aggregator) Endpoints(ctx context.Context) []*model.ApiStatus {
	return listOrEmpty[*model.ApiStatus](ctx, a, model.DomainAPI)
}

// HealthScore is 100 minus the overall error rate, floored at 0.
func HealthScore(stats model.LogStats) float64 {
	if stats.Total == 0 {
		return 100
	}
	return math.Max(0, 100-stats.ErrorRate)
}

// HealthBucket names a health score.
func HealthBucket(score float64) string {
	switch {
	case score > 95:
		return "excellent"
	case score > 85:
		return "good"
	case score > 70:
		return "fair"
	default:
		return "poor"
	}
}

func (a *Aggregator) health(stats model.LogStats) model.Health {
	score := HealthScore(stats)
	return model.Health{
		Score:  score,
		Status: HealthBucket(score),
		Uptime: a.Uptime().Seconds(),
	}
}

// Health derives the health score from current log statistics.
func (a *Aggregator) Health(ctx context.Context) model.Health {
	return a.health(a.Stats(ctx))
}

func (a *Aggregator) Uptime() time.Duration { return a.now().Sub(a.started) }

// Monitoring assembles the dashboard view: health, stats, busiest endpoints and
// the latest errors.
func (a *Aggregator) Monitoring(ctx context.Context) model.Monitoring {
	stats := a.Stats(ctx)
	endpoints := a.Endpoints(ctx)
	if len(endpoints) > topEndpoints {
		endpoints = endpoints[:topEndpoints]
	}
	errs, err := a.logs.ListErrors(ctx, recentErrorEntries)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to list recent errors")
		errs = []model.LogEntry{}
	}
	return model.Monitoring{
		Health:       a.health(stats),
		Statistics:   stats,
		Endpoints:    endpoints,
		RecentErrors: errs,
		Timestamp:    a.now().UTC(),
	}
}

func (a *Aggregator) SecurityRollup(ctx context.Context) model.SecurityRollup {
	return securityRollup(listOrEmpty[*model.SecurityStatus](ctx, a, model.DomainSecurity))
}

func securityRollup(records []*model.SecurityStatus) model.SecurityRollup {
	out := model.SecurityRollup{Statuses: make([]model.SecurityRecordSummary, 0, len(records))}
	for _, s := range records {
		out.TotalThreats += s.SuspiciousActivity
		out.BlockedRequests += s.BlockedRequests
		if s.ThreatLevel > highThreatLevel {
			out.HighThreatLevels++
		}
		if s.DDoSDetected {
			out.DDoSDetected = true
		}
		out.Statuses = append(out.Statuses, model.SecurityRecordSummary{
			Endpoint:           s.Key,
			ThreatLevel:        s.ThreatLevel,
			CurrentThreatLevel: s.CurrentThreatLevel,
			BlockedRequests:    s.BlockedRequests,
			LastIncident:       s.LastSecurityIncident,
		})
	}
	return out
}

// PerformanceRollup averages per-record figures. windowHours is echoed back
// only: records keep running totals, not time buckets.
func (a *Aggregator) PerformanceRollup(ctx context.Context, windowHours int) model.PerformanceRollup {
	ov := a.Overview(ctx)
	return performanceRollup(ov, windowHours)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func performanceRollup(ov model.SystemOverview, windowHours int) model.PerformanceRollup {
	out := model.PerformanceRollup{WindowHours: windowHours, Scope: "all-time"}

	var queryTime float64
	for _, d := range ov.Database {
		queryTime += d.AverageQueryTime
		out.Database.SlowQueries += d.SlowQueryCount
	}
	out.Database.AverageQueryTime = mean(queryTime, len(ov.Database))

	var hitRatio float64
	for _, c := range ov.Cache {
		hitRatio += c.HitRatio
		out.Cache.TotalHits += c.HitCount
		out.Cache.TotalMisses += c.MissCount
	}
	out.Cache.AverageHitRatio = mean(hitRatio, len(ov.Cache))

	var txTime, successRate float64
	for _, b := range ov.BusinessLogic {
		out.Business.TotalRevenue += b.RevenueGenerated
		txTime += b.AverageTransactionTime
		successRate += b.SuccessRate()
	}
	out.Business.AverageTransactionTime = mean(txTime, len(ov.BusinessLogic))
	out.Business.SuccessRate = mean(successRate, len(ov.BusinessLogic))
	return out
}

func (a *Aggregator) DatabaseHealth(ctx context.Context) model.DatabaseHealth {
	records := listOrEmpty[*model.DatabaseStatus](ctx, a, model.DomainDatabase)
	out := model.DatabaseHealth{Total: len(records), Statuses: make([]model.DatabaseHealthEntry, 0, len(records))}
	for _, d := range records {
		if d.ConnectionStatus == "connected" {
			out.Healthy++
		}
		out.Statuses = append(out.Statuses, model.DatabaseHealthEntry{
			Endpoint:     d.Key,
			Status:       d.ConnectionStatus,
			LastAccessed: d.LastAccessedAt,
		})
	}
	return out
}

func (a *Aggregator) ServicesHealth(ctx context.Context) model.ServicesHealth {
	records := listOrEmpty[*model.ExternalServiceStatus](ctx, a, model.DomainExternalService)
	out := model.ServicesHealth{Total: len(records), Services: make([]model.ServiceHealthEntry, 0, len(records))}
	for _, s := range records {
		switch s.ServiceHealth {
		case "healthy":
			out.Healthy++
		case "degraded":
			out.Degraded++
		case "down":
			out.Down++
		}
		out.Services = append(out.Services, model.ServiceHealthEntry{
			ServiceName:  s.ServiceName,
			Health:       s.ServiceHealth,
			LastPing:     s.LastPingTime,
			ResponseTime: s.LastPingResponseTime,
		})
	}
	return out
}
