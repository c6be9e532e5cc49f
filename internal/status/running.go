package status

import (
	"fmt"
	"time"

	"github.com/stockdesk/apipulse/internal/model"
)

// CacheOperation is one observed cache lookup outcome.
type CacheOperation string

const (
	CacheHit      CacheOperation = "hit"
	CacheMiss     CacheOperation = "miss"
	CacheEviction CacheOperation = "eviction"
)

// SecurityEvent is a security-relevant event reported by other components.
type SecurityEvent string

const (
	SecurityBlocked    SecurityEvent = "blocked"
	SecuritySuspicious SecurityEvent = "suspicious"
	SecurityRateLimit  SecurityEvent = "rate_limit"
	SecurityDDoS       SecurityEvent = "ddos"
)

// BusinessTransaction is one completed business-function call.
type BusinessTransaction struct {
	Success         bool    `json:"success"`
	TransactionTime float64 `json:"transactionTime" validate:"gte=0"` // milliseconds
	Revenue         float64 `json:"revenue,omitempty"`
	FailureReason   string  `json:"failureReason,omitempty"`
}

// DatabaseProbe is a sample of connection-pool state and round-trip latency.
type DatabaseProbe struct {
	Pool          model.ConnectionPool
	Latency       time.Duration
	SlowThreshold time.Duration
	Version       string
	Err           error
}

func outcome(m *model.Mutation, success bool, okField, failField string) {
	if success {
		m.Inc[okField] = 1
	} else {
		m.Inc[failField] = 1
	}
}

func newMutation(now time.Time) model.Mutation {
	return model.Mutation{
		Set: map[string]any{
			model.FieldLastAccessedAt: now,
			model.FieldUpdatedAt:      now,
		},
		Inc: map[string]float64{},
	}
}

func markError(m *model.Mutation, now time.Time, message string) {
	m.Set[model.FieldLastErrorAt] = now
	m.Set[model.FieldLastErrorMessage] = message
	m.Set[model.FieldIsHealthy] = false
}

// requestMutation folds one logged API call into its endpoint record.
func requestMutation(o model.Observation, now time.Time) model.Mutation {
	m := newMutation(now)
	m.Set["method"] = o.Method
	m.Inc[model.FieldTotalRequests] = 1
	outcome(&m, !o.Failed(), model.FieldSuccessfulRequests, model.FieldFailedRequests)
	if o.Failed() {
		msg := o.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", o.StatusCode)
		}
		markError(&m, now, msg)
	}
	m.Mean = []model.MeanUpdate{{
		Field:  model.FieldAverageResponseTime,
		Weight: model.FieldTotalRequests,
		Sample: o.ResponseTime,
	}}
	return m
}

func loginMutation(success bool, reason string, now time.Time) model.Mutation {
	m := newMutation(now)
	m.Inc["loginAttempts"] = 1
	outcome(&m, success, "successfulLogins", "failedLogins")
	if success {
		m.Set["lastSuccessfulLogin"] = now
	} else {
		m.Set["lastFailedLogin"] = now
		m.Set["lastFailedLoginReason"] = reason
	}
	return m
}

func tokenRejectedMutation(expired bool, now time.Time) model.Mutation {
	m := newMutation(now)
	if expired {
		m.Inc["expiredTokens"] = 1
	} else {
		m.Inc["blockedAttempts"] = 1
	}
	return m
}

func pingMutation(service string, responseTime float64, success bool, now time.Time) model.Mutation {
	m := newMutation(now)
	m.Inc[model.FieldTotalRequests] = 1
	outcome(&m, success, model.FieldSuccessfulRequests, model.FieldFailedRequests)
	m.Set["serviceName"] = service
	m.Set["lastPingTime"] = now
	m.Set["lastPingResponseTime"] = responseTime
	if success {
		m.Set["serviceHealth"] = "healthy"
	} else {
		m.Set["serviceHealth"] = "degraded"
		markError(&m, now, fmt.Sprintf("ping to %s failed", service))
	}
	m.Mean = []model.MeanUpdate{{
		Field:  model.FieldAverageResponseTime,
		Weight: model.FieldTotalRequests,
		Sample: responseTime,
	}}
	return m
}

func cacheMutation(op CacheOperation, now time.Time) (model.Mutation, error) {
	m := newMutation(now)
	switch op {
	case CacheHit:
		m.Inc["hitCount"] = 1
	case CacheMiss:
		m.Inc["missCount"] = 1
	case CacheEviction:
		m.Inc["evictionCount"] = 1
	default:
		return m, fmt.Errorf("%w: unknown cache operation %q", ErrValidation, op)
	}
	return m, nil
}

func securityMutation(ev SecurityEvent, now time.Time) (model.Mutation, error) {
	m := newMutation(now)
	switch ev {
	case SecurityBlocked:
		m.Inc["blockedRequests"] = 1
		m.Set["lastSecurityIncident"] = now
	case SecuritySuspicious:
		m.Inc["suspiciousActivity"] = 1
		m.Set["lastSecurityIncident"] = now
	case SecurityRateLimit:
		m.Inc["rateLimitViolations"] = 1
	case SecurityDDoS:
		m.Set["ddosDetected"] = true
		m.Set["lastDdosDetection"] = now
	default:
		return m, fmt.Errorf("%w: unknown security event %q", ErrValidation, ev)
	}
	return m, nil
}

func transactionMutation(tx BusinessTransaction, now time.Time) model.Mutation {
	m := newMutation(now)
	m.Inc["transactionCount"] = 1
	outcome(&m, tx.Success, "successfulTransactions", "failedTransactions")
	if tx.Revenue > 0 {
		m.Inc["revenueGenerated"] = tx.Revenue
	}
	m.Set["lastTransaction"] = now
	if tx.Success {
		m.Set["lastSuccessfulTransaction"] = now
	} else {
		m.Set["lastFailedTransaction"] = now
		m.Set["lastFailedReason"] = tx.FailureReason
	}
	m.Mean = []model.MeanUpdate{{
		Field:  "averageTransactionTime",
		Weight: "transactionCount",
		Sample: tx.TransactionTime,
	}}
	return m
}

func probeMutation(p DatabaseProbe, now time.Time) model.Mutation {
	m := newMutation(now)
	m.Set["lastProbeAt"] = now
	m.Set["connectionPool"] = map[string]any{
		"active": p.Pool.Active,
		"idle":   p.Pool.Idle,
		"total":  p.Pool.Total,
	}
	m.Set["connectionCount"] = p.Pool.Total
	if p.Version != "" {
		m.Set["databaseVersion"] = p.Version
	}
	if p.Err != nil {
		m.Set["connectionStatus"] = "error"
		m.Set["lastConnectionError"] = p.Err.Error()
		markError(&m, now, p.Err.Error())
		return m
	}
	ms := float64(p.Latency) / float64(time.Millisecond)
	m.Set["connectionStatus"] = "connected"
	m.Inc["queryCount"] = 1
	if p.SlowThreshold > 0 && p.Latency > p.SlowThreshold {
		m.Inc["slowQueryCount"] = 1
		m.Set["lastSlowQuery"] = fmt.Sprintf("ping took %s", p.Latency)
	}
	m.Mean = []model.MeanUpdate{{
		Field:  "averageQueryTime",
		Weight: "queryCount",
		Sample: ms,
	}}
	return m
}
