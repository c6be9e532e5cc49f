package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/repository"
)

type brokenRecordStore struct {
	*repository.MemoryRecordStore
	domain model.Domain
}

func (s brokenRecordStore) List(ctx context.Context, d model.Domain) ([]model.Record, error) {
	if d == s.domain {
		return nil, errors.New("connection reset")
	}
	return s.MemoryRecordStore.List(ctx, d)
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		stats  model.LogStats
		score  float64
		bucket string
	}{
		{model.LogStats{}, 100, "excellent"},
		{model.NewLogStats(100, 2, 0, 98), 98, "excellent"},
		{model.NewLogStats(100, 5, 0, 95), 95, "good"},
		{model.NewLogStats(100, 20, 0, 80), 80, "fair"},
		{model.NewLogStats(100, 30, 0, 70), 70, "poor"},
		{model.NewLogStats(3, 3, 0, 0), 0, "poor"},
	}
	for _, tt := range tests {
		score := HealthScore(tt.stats)
		if score != tt.score || HealthBucket(score) != tt.bucket {
			t.Errorf("stats %+v: score %v (%s), want %v (%s)", tt.stats, score, HealthBucket(score), tt.score, tt.bucket)
		}
	}
}

func TestAggregatorEmpty(t *testing.T) {
	a := NewAggregator(repository.NewMemoryLogStore(), repository.NewMemoryRecordStore(), zerolog.Nop())
	ctx := context.Background()

	if h := a.Health(ctx); h.Score != 100 || h.Status != "excellent" {
		t.Errorf("health = %+v", h)
	}
	ov := a.Overview(ctx)
	if ov.Database == nil || ov.Cache == nil || ov.BusinessLogic == nil || len(ov.Security) != 0 {
		t.Errorf("overview = %+v", ov)
	}
	perf := a.PerformanceRollup(ctx, 24)
	if perf.WindowHours != 24 || perf.Scope != "all-time" || perf.Cache.AverageHitRatio != 0 || perf.Business.SuccessRate != 0 {
		t.Errorf("performance = %+v", perf)
	}
	mon := a.Monitoring(ctx)
	if mon.Endpoints == nil || mon.RecentErrors == nil || mon.Statistics.Total != 0 {
		t.Errorf("monitoring = %+v", mon)
	}
}

func TestAggregatorRollups(t *testing.T) {
	logs := repository.NewMemoryLogStore()
	records := repository.NewMemoryRecordStore()
	u := NewUpdater(records, zerolog.Nop())
	a := NewAggregator(logs, records, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		for j := 0; j <= i; j++ {
			_ = u.RecordRequest(ctx, model.Observation{Method: "GET", URL: fmt.Sprintf("/r%d", i), StatusCode: 200})
		}
	}
	for i := 0; i < 15; i++ {
		code := 200
		if i%5 == 0 {
			code = 503
		}
		_ = logs.Insert(ctx, model.NewLogEntry(model.Observation{Method: "GET", URL: "/r1", StatusCode: code}, time.Now()))
	}

	_ = u.RecordSecurityEvent(ctx, "POST:/login", SecurityBlocked, nil)
	_ = u.RecordSecurityEvent(ctx, "POST:/login", SecuritySuspicious, nil)
	_ = u.RecordSecurityEvent(ctx, "POST:/transfer", SecurityDDoS, nil)
	_, _ = u.Update(ctx, model.DomainSecurity, "POST:/transfer", map[string]any{"threatLevel": 9})

	_ = u.RecordCacheOperation(ctx, "quotes", CacheHit)
	_ = u.RecordCacheOperation(ctx, "quotes", CacheMiss)
	_ = u.RecordCacheOperation(ctx, "sessions", CacheHit)

	_ = u.RecordBusinessTransaction(ctx, "checkout", BusinessTransaction{Success: true, TransactionTime: 100, Revenue: 50})
	_ = u.RecordBusinessTransaction(ctx, "refund", BusinessTransaction{Success: false, TransactionTime: 300})

	_ = u.PingExternalService(ctx, "payments", 80, true)
	_ = u.PingExternalService(ctx, "fx-rates", 900, false)

	mon := a.Monitoring(ctx)
	if len(mon.Endpoints) != 10 {
		t.Fatalf("top endpoints = %d, want 10", len(mon.Endpoints))
	}
	if mon.Endpoints[0].Key != "GET:/r11" || mon.Endpoints[0].TotalRequests != 12 {
		t.Errorf("busiest endpoint = %+v", mon.Endpoints[0].StatusBase)
	}
	if len(mon.RecentErrors) != 3 || mon.Statistics.ErrorRate != 20 || mon.Health.Status != "fair" {
		t.Errorf("errors=%d stats=%+v health=%+v", len(mon.RecentErrors), mon.Statistics, mon.Health)
	}

	sec := a.SecurityRollup(ctx)
	if sec.TotalThreats != 1 || sec.BlockedRequests != 1 || sec.HighThreatLevels != 1 || !sec.DDoSDetected {
		t.Errorf("security = %+v", sec)
	}
	if len(sec.Statuses) != 2 || sec.Statuses[1].CurrentThreatLevel != "critical" {
		t.Errorf("security statuses = %+v", sec.Statuses)
	}

	perf := a.PerformanceRollup(ctx, 6)
	if math.Abs(perf.Cache.AverageHitRatio-0.75) > 1e-9 || perf.Cache.TotalHits != 2 || perf.Cache.TotalMisses != 1 {
		t.Errorf("cache perf = %+v", perf.Cache)
	}
	if perf.Business.TotalRevenue != 50 || perf.Business.AverageTransactionTime != 200 || perf.Business.SuccessRate != 0.5 {
		t.Errorf("business perf = %+v", perf.Business)
	}

	svc := a.ServicesHealth(ctx)
	if svc.Total != 2 || svc.Healthy != 1 || svc.Degraded != 1 {
		t.Errorf("services = %+v", svc)
	}
}

func TestOverviewDegradesFailedDomain(t *testing.T) {
	records := brokenRecordStore{repository.NewMemoryRecordStore(), model.DomainCache}
	u := NewUpdater(records, zerolog.Nop())
	ctx := context.Background()
	_ = u.RecordCacheOperation(ctx, "quotes", CacheHit)
	_ = u.RecordLoginAttempt(ctx, "POST:/login", true, "")

	a := NewAggregator(repository.NewMemoryLogStore(), records, zerolog.Nop())
	ov := a.Overview(ctx)
	if ov.Cache == nil || len(ov.Cache) != 0 {
		t.Errorf("cache = %v, want empty list", ov.Cache)
	}
	if len(ov.Auth) != 1 {
		t.Errorf("auth = %v, want one record", ov.Auth)
	}
}
