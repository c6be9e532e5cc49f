package status

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockdesk/apipulse/internal/model"
	"github.com/stockdesk/apipulse/internal/repository"
)

func newTestUpdater() (*Updater, *repository.MemoryRecordStore) {
	store := repository.NewMemoryRecordStore()
	return NewUpdater(store, zerolog.Nop()), store
}

func getAs[T model.Record](t *testing.T, store RecordStore, d model.Domain, key string) T {
	t.Helper()
	rec, err := store.Get(context.Background(), d, key)
	if err != nil {
		t.Fatalf("Get(%s, %s): %v", d, key, err)
	}
	if rec == nil {
		t.Fatalf("no %s record for %q", d, key)
	}
	typed, ok := rec.(T)
	if !ok {
		t.Fatalf("record has type %T", rec)
	}
	return typed
}

func TestRecordRequestConcurrent(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()

	const n = 1000
	var (
		wg  sync.WaitGroup
		sum float64
	)
	for i := 0; i < n; i++ {
		sum += float64(i % 100)
	}
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			o := model.Observation{Method: "get", URL: fmt.Sprintf("/users/%d", i), StatusCode: 200, ResponseTime: float64(i % 100)}
			if err := u.RecordRequest(ctx, o); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	api := getAs[*model.ApiStatus](t, store, model.DomainAPI, "GET:/users/:id")
	if api.TotalRequests != n || api.SuccessfulRequests != n || api.FailedRequests != 0 {
		t.Errorf("counters = %d/%d/%d, want %d/%d/0", api.TotalRequests, api.SuccessfulRequests, api.FailedRequests, n, n)
	}
	if want := sum / n; math.Abs(api.AverageResponseTime-want) > 1e-6 {
		t.Errorf("average = %v, want %v", api.AverageResponseTime, want)
	}
	if api.Method != "get" || !api.IsHealthy {
		t.Errorf("method=%q healthy=%v", api.Method, api.IsHealthy)
	}
}

func TestRecordRequestErrorIsSticky(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()

	calls := []model.Observation{
		{Method: "POST", URL: "/orders", StatusCode: 201, ResponseTime: 10},
		{Method: "POST", URL: "/orders", StatusCode: 500, ResponseTime: 30},
		{Method: "POST", URL: "/orders?retry=1", StatusCode: 200, ResponseTime: 20},
	}
	for _, o := range calls {
		if err := u.RecordRequest(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	api := getAs[*model.ApiStatus](t, store, model.DomainAPI, "POST:/orders")
	if api.TotalRequests != 3 || api.FailedRequests != 1 || api.SuccessfulRequests != 2 {
		t.Errorf("counters = %+v", api.StatusBase)
	}
	if api.IsHealthy {
		t.Error("isHealthy should stay false after an error")
	}
	if api.LastErrorMessage != "HTTP 500" || api.LastErrorAt == nil {
		t.Errorf("last error = %q at %v", api.LastErrorMessage, api.LastErrorAt)
	}
	if api.AverageResponseTime != 20 {
		t.Errorf("average = %v, want 20", api.AverageResponseTime)
	}

	rec, err := u.MarkHealthy(ctx, model.DomainAPI, "POST:/orders")
	if err != nil {
		t.Fatalf("MarkHealthy: %v", err)
	}
	if !rec.Base().IsHealthy || rec.Base().TotalRequests != 3 {
		t.Errorf("after MarkHealthy: %+v", rec.Base())
	}
}

func TestMarkHealthyMissing(t *testing.T) {
	u, _ := newTestUpdater()
	_, err := u.MarkHealthy(context.Background(), model.DomainCache, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordCacheOperation(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if err := u.RecordCacheOperation(ctx, "sessions", CacheHit); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		if err := u.RecordCacheOperation(ctx, "sessions", CacheMiss); err != nil {
			t.Fatal(err)
		}
	}
	if err := u.RecordCacheOperation(ctx, "sessions", CacheEviction); err != nil {
		t.Fatal(err)
	}

	c := getAs[*model.CacheStatus](t, store, model.DomainCache, "sessions")
	if c.HitCount != 7 || c.MissCount != 3 || c.EvictionCount != 1 {
		t.Errorf("counts = %d/%d/%d", c.HitCount, c.MissCount, c.EvictionCount)
	}
	if math.Abs(c.HitRatio-0.7) > 1e-9 {
		t.Errorf("hitRatio = %v, want 0.7", c.HitRatio)
	}

	err := u.RecordCacheOperation(ctx, "sessions", CacheOperation("flush"))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown op err = %v, want ErrValidation", err)
	}
}

func TestRecordSecurityEvent(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	for _, ev := range []SecurityEvent{SecurityBlocked, SecurityBlocked, SecuritySuspicious, SecurityRateLimit, SecurityDDoS} {
		if err := u.RecordSecurityEvent(ctx, "POST:/login", ev, map[string]any{"ip": "10.0.0.1"}); err != nil {
			t.Fatalf("%s: %v", ev, err)
		}
	}

	s := getAs[*model.SecurityStatus](t, store, model.DomainSecurity, "POST:/login")
	if s.BlockedRequests != 2 || s.SuspiciousActivity != 1 || s.RateLimitViolations != 1 {
		t.Errorf("counters = %d/%d/%d", s.BlockedRequests, s.SuspiciousActivity, s.RateLimitViolations)
	}
	if !s.DDoSDetected || s.LastDDoSDetection == nil || s.LastSecurityIncident == nil {
		t.Errorf("ddos=%v last=%v incident=%v", s.DDoSDetected, s.LastDDoSDetection, s.LastSecurityIncident)
	}
	if s.CurrentThreatLevel != "low" {
		t.Errorf("currentThreatLevel = %q, want low", s.CurrentThreatLevel)
	}

	if err := u.RecordSecurityEvent(ctx, "POST:/login", SecurityEvent("port_scan"), nil); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown event err = %v, want ErrValidation", err)
	}
}

func TestLoginAndTokenRejections(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	_ = u.RecordLoginAttempt(ctx, "POST:/login", true, "")
	_ = u.RecordLoginAttempt(ctx, "POST:/login", false, "bad password")
	_ = u.RecordTokenRejected(ctx, "POST:/login", true)
	_ = u.RecordTokenRejected(ctx, "POST:/login", false)

	a := getAs[*model.AuthStatus](t, store, model.DomainAuth, "POST:/login")
	if a.LoginAttempts != 2 || a.SuccessfulLogins != 1 || a.FailedLogins != 1 {
		t.Errorf("logins = %d/%d/%d", a.LoginAttempts, a.SuccessfulLogins, a.FailedLogins)
	}
	if a.LastFailedLoginReason != "bad password" || a.LastSuccessfulLogin == nil {
		t.Errorf("reason=%q lastSuccess=%v", a.LastFailedLoginReason, a.LastSuccessfulLogin)
	}
	if a.ExpiredTokens != 1 || a.BlockedAttempts != 1 {
		t.Errorf("expired=%d blocked=%d", a.ExpiredTokens, a.BlockedAttempts)
	}
}

func TestPingExternalService(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	_ = u.PingExternalService(ctx, "payments", 100, true)
	_ = u.PingExternalService(ctx, "payments", 300, false)

	s := getAs[*model.ExternalServiceStatus](t, store, model.DomainExternalService, "payments")
	if s.TotalRequests != 2 || s.FailedRequests != 1 || s.AverageResponseTime != 200 {
		t.Errorf("base = %+v", s.StatusBase)
	}
	if s.ServiceHealth != "degraded" || s.LastPingResponseTime != 300 || s.IsHealthy {
		t.Errorf("health=%q last=%v healthy=%v", s.ServiceHealth, s.LastPingResponseTime, s.IsHealthy)
	}
	if err := u.PingExternalService(ctx, "payments", -1, true); !errors.Is(err, ErrValidation) {
		t.Errorf("negative time err = %v", err)
	}
}

func TestRecordBusinessTransaction(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	txs := []BusinessTransaction{
		{Success: true, TransactionTime: 100, Revenue: 25.5},
		{Success: true, TransactionTime: 200, Revenue: 10},
		{Success: false, TransactionTime: 600, FailureReason: "card declined"},
	}
	for _, tx := range txs {
		if err := u.RecordBusinessTransaction(ctx, "checkout", tx); err != nil {
			t.Fatal(err)
		}
	}

	b := getAs[*model.BusinessLogicStatus](t, store, model.DomainBusinessLogic, "checkout")
	if b.TransactionCount != 3 || b.SuccessfulTransactions != 2 || b.FailedTransactions != 1 {
		t.Errorf("counts = %d/%d/%d", b.TransactionCount, b.SuccessfulTransactions, b.FailedTransactions)
	}
	if b.AverageTransactionTime != 300 {
		t.Errorf("average = %v, want 300", b.AverageTransactionTime)
	}
	if b.RevenueGenerated != 35.5 || b.LastFailedReason != "card declined" {
		t.Errorf("revenue=%v reason=%q", b.RevenueGenerated, b.LastFailedReason)
	}
}

func TestRecordDatabaseProbe(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	pool := model.ConnectionPool{Active: 2, Idle: 3, Total: 5}
	_ = u.RecordDatabaseProbe(ctx, "postgres", DatabaseProbe{Pool: pool, Latency: 4 * time.Millisecond, SlowThreshold: 100 * time.Millisecond, Version: "16.2"})
	_ = u.RecordDatabaseProbe(ctx, "postgres", DatabaseProbe{Pool: pool, Latency: 196 * time.Millisecond, SlowThreshold: 100 * time.Millisecond})

	d := getAs[*model.DatabaseStatus](t, store, model.DomainDatabase, "postgres")
	if d.QueryCount != 2 || d.SlowQueryCount != 1 || d.AverageQueryTime != 100 {
		t.Errorf("queries=%d slow=%d avg=%v", d.QueryCount, d.SlowQueryCount, d.AverageQueryTime)
	}
	if d.ConnectionPool != pool || d.ConnectionCount != 5 || d.DatabaseVersion != "16.2" {
		t.Errorf("pool=%+v count=%d version=%q", d.ConnectionPool, d.ConnectionCount, d.DatabaseVersion)
	}

	_ = u.RecordDatabaseProbe(ctx, "postgres", DatabaseProbe{Err: errors.New("connection refused")})
	d = getAs[*model.DatabaseStatus](t, store, model.DomainDatabase, "postgres")
	if d.ConnectionStatus != "error" || d.LastConnectionError != "connection refused" || d.IsHealthy {
		t.Errorf("status=%q err=%q healthy=%v", d.ConnectionStatus, d.LastConnectionError, d.IsHealthy)
	}
	if d.QueryCount != 2 {
		t.Errorf("failed probe counted as query: %d", d.QueryCount)
	}
}

func TestUpdate(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()

	rec, err := u.Update(ctx, model.DomainCache, "sessions", map[string]any{
		"status":      model.StatusMaintenance,
		"cacheType":   "memcached",
		"memoryUsage": 2048,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	c, ok := rec.(*model.CacheStatus)
	if !ok || c.Status != model.StatusMaintenance || c.CacheType != "memcached" || c.MemoryUsage != 2048 {
		t.Fatalf("record = %+v", rec)
	}
	_ = getAs[*model.CacheStatus](t, store, model.DomainCache, "sessions")

	if err := u.PingExternalService(ctx, "payments", 40, true); err != nil {
		t.Fatal(err)
	}

	bad := []struct {
		domain model.Domain
		key    string
		patch  map[string]any
	}{
		{model.DomainCache, "sessions", map[string]any{"nonexistent": 1}},
		{model.DomainCache, "sessions", map[string]any{"hitCount": "many"}},
		{model.DomainCache, "sessions", map[string]any{"key": "other"}},
		{model.DomainCache, "sessions", map[string]any{"status": "exploded"}},
		{model.DomainCache, "sessions", map[string]any{"hitCount": -5, "missCount": 1}},
		{model.DomainCache, "sessions", map[string]any{"cacheConfig": map[string]any{"ttl": -1}}},
		{model.DomainExternalService, "payments", map[string]any{"failedRequests": 7}},
		{model.DomainExternalService, "payments", map[string]any{"totalRequests": 0}},
		{model.DomainSecurity, "POST:/transfer", map[string]any{"threatLevel": 42}},
		{model.DomainSecurity, "POST:/transfer", map[string]any{"threatLevel": -1}},
		{model.DomainBusinessLogic, "checkout", map[string]any{"transactionCount": -3}},
		{model.DomainDatabase, "postgres", map[string]any{"queryCount": 10}},
	}
	for _, tt := range bad {
		if _, err := u.Update(ctx, tt.domain, tt.key, tt.patch); !errors.Is(err, ErrValidation) {
			t.Errorf("Update(%s %s, %v) err = %v, want ErrValidation", tt.domain, tt.key, tt.patch, err)
		}
	}

	svc := getAs[*model.ExternalServiceStatus](t, store, model.DomainExternalService, "payments")
	if svc.TotalRequests != 1 || svc.SuccessfulRequests != 1 || svc.FailedRequests != 0 {
		t.Errorf("counters changed by rejected patches: %+v", svc.StatusBase)
	}
	if _, err := u.Update(ctx, model.DomainSecurity, "POST:/transfer", map[string]any{"threatLevel": 10}); err != nil {
		t.Errorf("threatLevel 10 rejected: %v", err)
	}
}

func TestUpdateKeepsExistingFields(t *testing.T) {
	u, store := newTestUpdater()
	ctx := context.Background()
	if err := u.RecordCacheOperation(ctx, "quotes", CacheHit); err != nil {
		t.Fatal(err)
	}
	if _, err := u.Update(ctx, model.DomainCache, "quotes", map[string]any{"cacheType": "redis"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	c := getAs[*model.CacheStatus](t, store, model.DomainCache, "quotes")
	if c.HitCount != 1 || c.CacheType != "redis" {
		t.Errorf("cache = hits %d type %q", c.HitCount, c.CacheType)
	}
}
