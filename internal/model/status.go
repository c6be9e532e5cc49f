package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Domain tags which subsystem a status record belongs to.
type Domain string

const (
	DomainAPI             Domain = "api"
	DomainDatabase        Domain = "database"
	DomainAuth            Domain = "auth"
	DomainExternalService Domain = "external_service"
	DomainCache           Domain = "cache"
	DomainSecurity        Domain = "security"
	DomainBusinessLogic   Domain = "business_logic"
)

// ExtendedDomains are the domains composed into a SystemOverview.
var ExtendedDomains = []Domain{
	DomainDatabase,
	DomainAuth,
	DomainExternalService,
	DomainCache,
	DomainSecurity,
	DomainBusinessLogic,
}

// ParseDomain accepts the canonical name and the path aliases used by the HTTP API.
func ParseDomain(s string) (Domain, bool) {
	switch s {
	case "api", "endpoint":
		return DomainAPI, true
	case "database":
		return DomainDatabase, true
	case "auth":
		return DomainAuth, true
	case "external_service", "external-service":
		return DomainExternalService, true
	case "cache":
		return DomainCache, true
	case "security":
		return DomainSecurity, true
	case "business_logic", "business-logic", "business":
		return DomainBusinessLogic, true
	}
	return "", false
}

// Lifecycle values for StatusBase.Status.
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusMaintenance = "maintenance"
	StatusDeprecated  = "deprecated"
)

// Document field names shared by every domain.
const (
	FieldDomain              = "domain"
	FieldKey                 = "key"
	FieldStatus              = "status"
	FieldTotalRequests       = "totalRequests"
	FieldSuccessfulRequests  = "successfulRequests"
	FieldFailedRequests      = "failedRequests"
	FieldAverageResponseTime = "averageResponseTime"
	FieldLastAccessedAt      = "lastAccessedAt"
	FieldLastErrorAt         = "lastErrorAt"
	FieldLastErrorMessage    = "lastErrorMessage"
	FieldIsHealthy           = "isHealthy"
	FieldCreatedAt           = "createdAt"
	FieldUpdatedAt           = "updatedAt"
)

// StatusBase holds the counters and health fields every status record carries.
type StatusBase struct {
	Domain              Domain         `json:"domain"`
	Key                 string         `json:"key"`
	Status              string         `json:"status"`
	TotalRequests       int64          `json:"totalRequests"`
	SuccessfulRequests  int64          `json:"successfulRequests"`
	FailedRequests      int64          `json:"failedRequests"`
	AverageResponseTime float64        `json:"averageResponseTime"`
	LastAccessedAt      *time.Time     `json:"lastAccessedAt,omitempty"`
	LastErrorAt         *time.Time     `json:"lastErrorAt,omitempty"`
	LastErrorMessage    string         `json:"lastErrorMessage,omitempty"`
	IsHealthy           bool           `json:"isHealthy"`
	Description         string         `json:"description,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Base returns the shared part of a record.
func (b *StatusBase) Base() *StatusBase { return b }

// Record is one status record of any domain. The concrete type is one of
// *ApiStatus, *DatabaseStatus, *AuthStatus, *ExternalServiceStatus,
// *CacheStatus, *SecurityStatus or *BusinessLogicStatus.
type Record interface {
	Base() *StatusBase
}

type ApiStatus struct {
	StatusBase
	Method string `json:"method"`
}

type ConnectionPool struct {
	Active int64 `json:"active"`
	Idle   int64 `json:"idle"`
	Total  int64 `json:"total"`
}

type DatabaseStatus struct {
	StatusBase
	ConnectionCount     int64          `json:"connectionCount"`
	QueryCount          int64          `json:"queryCount"`
	SlowQueryCount      int64          `json:"slowQueryCount"`
	AverageQueryTime    float64        `json:"averageQueryTime"`
	LastSlowQuery       string         `json:"lastSlowQuery,omitempty"`
	ConnectionPool      ConnectionPool `json:"connectionPool"`
	ConnectionStatus    string         `json:"connectionStatus"`
	DatabaseVersion     string         `json:"databaseVersion,omitempty"`
	LastConnectionError string         `json:"lastConnectionError,omitempty"`
	LastProbeAt         *time.Time     `json:"lastProbeAt,omitempty"`
}

type AuthStatus struct {
	StatusBase
	LoginAttempts         int64      `json:"loginAttempts"`
	SuccessfulLogins      int64      `json:"successfulLogins"`
	FailedLogins          int64      `json:"failedLogins"`
	ActiveTokens          int64      `json:"activeTokens"`
	ExpiredTokens         int64      `json:"expiredTokens"`
	RevokedTokens         int64      `json:"revokedTokens"`
	LastSuccessfulLogin   *time.Time `json:"lastSuccessfulLogin,omitempty"`
	LastFailedLogin       *time.Time `json:"lastFailedLogin,omitempty"`
	LastFailedLoginReason string     `json:"lastFailedLoginReason,omitempty"`
	SuspiciousIPs         []string   `json:"suspiciousIPs"`
	BlockedAttempts       int64      `json:"blockedAttempts"`
	AuthMethod            string     `json:"authMethod"`
	TokenExpiration       int64      `json:"tokenExpiration,omitempty"` // seconds
	RequiresTwoFactor     bool       `json:"requiresTwoFactor"`
}

type ServiceMetrics struct {
	Uptime       float64 `json:"uptime"`
	ResponseTime float64 `json:"responseTime"`
	ErrorRate    float64 `json:"errorRate"`
}

type ExternalServiceStatus struct {
	StatusBase
	ServiceName          string          `json:"serviceName"`
	ServiceURL           string          `json:"serviceUrl,omitempty"`
	ServiceVersion       string          `json:"serviceVersion"`
	TimeoutCount         int64           `json:"timeoutCount"`
	RetryCount           int64           `json:"retryCount"`
	TimeoutThreshold     int64           `json:"timeoutThreshold"` // milliseconds
	LastPingTime         *time.Time      `json:"lastPingTime,omitempty"`
	LastPingResponseTime float64         `json:"lastPingResponseTime"`
	ServiceHealth        string          `json:"serviceHealth"`
	HealthCheckURL       string          `json:"healthCheckUrl,omitempty"`
	LastHealthCheck      *time.Time      `json:"lastHealthCheck,omitempty"`
	ServiceMetrics       *ServiceMetrics `json:"serviceMetrics,omitempty"`
	Dependencies         []string        `json:"dependencies"`
	IsCircuitBreakerOpen bool            `json:"isCircuitBreakerOpen"`
}

type CacheConfig struct {
	TTL            int64  `json:"ttl"`
	MaxKeys        int64  `json:"maxKeys"`
	EvictionPolicy string `json:"evictionPolicy"`
}

type CacheStatus struct {
	StatusBase
	CacheType        string       `json:"cacheType"`
	HitCount         int64        `json:"hitCount"`
	MissCount        int64        `json:"missCount"`
	EvictionCount    int64        `json:"evictionCount"`
	TotalKeys        int64        `json:"totalKeys"`
	ExpiredKeys      int64        `json:"expiredKeys"`
	MemoryUsage      int64        `json:"memoryUsage"` // bytes
	MaxMemory        int64        `json:"maxMemory"`   // bytes
	HitRatio         float64      `json:"hitRatio"`
	AverageKeySize   float64      `json:"averageKeySize"`
	AverageValueSize float64      `json:"averageValueSize"`
	LastCacheFlush   *time.Time   `json:"lastCacheFlush,omitempty"`
	CacheConfig      *CacheConfig `json:"cacheConfig,omitempty"`
	ConnectionStatus string       `json:"connectionStatus"`
	CacheVersion     string       `json:"cacheVersion,omitempty"`
}

type SecurityRules struct {
	MaxRequestsPerMinute int64    `json:"maxRequestsPerMinute"`
	MaxRequestsPerHour   int64    `json:"maxRequestsPerHour"`
	BannedUserAgents     []string `json:"bannedUserAgents"`
	AllowedOrigins       []string `json:"allowedOrigins"`
}

type SecurityStatus struct {
	StatusBase
	ThreatLevel          int64          `json:"threatLevel"` // 0-10
	BlockedRequests      int64          `json:"blockedRequests"`
	SuspiciousActivity   int64          `json:"suspiciousActivity"`
	RateLimitViolations  int64          `json:"rateLimitViolations"`
	BlockedIPs           []string       `json:"blockedIPs"`
	SuspiciousPatterns   []string       `json:"suspiciousPatterns"`
	LastSecurityIncident *time.Time     `json:"lastSecurityIncident,omitempty"`
	LastSecurityScan     *time.Time     `json:"lastSecurityScan,omitempty"`
	FirewallStatus       string         `json:"firewallStatus"`
	RateLimitStatus      string         `json:"rateLimitStatus"`
	SecurityRules        *SecurityRules `json:"securityRules,omitempty"`
	DDoSDetected         bool           `json:"ddosDetected"`
	LastDDoSDetection    *time.Time     `json:"lastDdosDetection,omitempty"`
	CurrentThreatLevel   string         `json:"currentThreatLevel"`
}

type BusinessMetrics struct {
	ConversionRate       float64 `json:"conversionRate"`
	AbandonmentRate      float64 `json:"abandonmentRate"`
	AverageOrderValue    float64 `json:"averageOrderValue"`
	CustomerSatisfaction float64 `json:"customerSatisfaction"`
}

type BusinessLogicStatus struct {
	StatusBase
	BusinessFunction          string           `json:"businessFunction"`
	TransactionCount          int64            `json:"transactionCount"`
	SuccessfulTransactions    int64            `json:"successfulTransactions"`
	FailedTransactions        int64            `json:"failedTransactions"`
	PendingTransactions       int64            `json:"pendingTransactions"`
	AverageTransactionTime    float64          `json:"averageTransactionTime"`
	RevenueGenerated          float64          `json:"revenueGenerated"`
	LastTransaction           *time.Time       `json:"lastTransaction,omitempty"`
	LastSuccessfulTransaction *time.Time       `json:"lastSuccessfulTransaction,omitempty"`
	LastFailedTransaction     *time.Time       `json:"lastFailedTransaction,omitempty"`
	LastFailedReason          string           `json:"lastFailedReason,omitempty"`
	BusinessMetrics           *BusinessMetrics `json:"businessMetrics,omitempty"`
	CriticalErrors            []string         `json:"criticalErrors"`
	MaintenanceMode           bool             `json:"maintenanceMode"`
	ScheduledMaintenance      *time.Time       `json:"scheduledMaintenance,omitempty"`
	OperationalStatus         string           `json:"operationalStatus"`
}

// SuccessRate is successful/(successful+failed) transactions, 0 with no transactions.
func (b *BusinessLogicStatus) SuccessRate() float64 {
	total := b.SuccessfulTransactions + b.FailedTransactions
	if total == 0 {
		return 0
	}
	return float64(b.SuccessfulTransactions) / float64(total)
}

// Ratio computes hit/(hit+miss), 0 when the cache has seen no lookups.
func (c *CacheStatus) Ratio() float64 {
	lookups := c.HitCount + c.MissCount
	if lookups == 0 {
		return 0
	}
	return float64(c.HitCount) / float64(lookups)
}

// ThreatBucket maps a 0-10 threat level onto low/medium/high/critical.
func ThreatBucket(level int64) string {
	switch {
	case level >= 9:
		return "critical"
	case level >= 7:
		return "high"
	case level >= 4:
		return "medium"
	default:
		return "low"
	}
}

// NewRecord returns an empty record of the domain's concrete type.
func NewRecord(d Domain) (Record, error) {
	switch d {
	case DomainAPI:
		return &ApiStatus{}, nil
	case DomainDatabase:
		return &DatabaseStatus{}, nil
	case DomainAuth:
		return &AuthStatus{}, nil
	case DomainExternalService:
		return &ExternalServiceStatus{}, nil
	case DomainCache:
		return &CacheStatus{}, nil
	case DomainSecurity:
		return &SecurityStatus{}, nil
	case DomainBusinessLogic:
		return &BusinessLogicStatus{}, nil
	}
	return nil, fmt.Errorf("unknown status domain %q", d)
}

// DecodeRecord decodes a stored document and refreshes its derived fields.
func DecodeRecord(d Domain, doc []byte) (Record, error) {
	rec, err := NewRecord(d)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", d, err)
	}
	switch r := rec.(type) {
	case *CacheStatus:
		r.HitRatio = r.Ratio()
	case *SecurityStatus:
		r.CurrentThreatLevel = ThreatBucket(r.ThreatLevel)
	}
	return rec, nil
}

// Defaults returns the document a record starts from on its first upsert.
func Defaults(d Domain, key string, now time.Time) Document {
	doc := Document{
		FieldDomain:              string(d),
		FieldKey:                 key,
		FieldStatus:              StatusActive,
		FieldTotalRequests:       float64(0),
		FieldSuccessfulRequests:  float64(0),
		FieldFailedRequests:      float64(0),
		FieldAverageResponseTime: float64(0),
		FieldIsHealthy:           true,
		FieldCreatedAt:           now,
		FieldUpdatedAt:           now,
	}
	switch d {
	case DomainDatabase:
		doc["connectionStatus"] = "connected"
		doc["connectionPool"] = map[string]any{"active": 0, "idle": 0, "total": 0}
	case DomainAuth:
		doc["authMethod"] = "enabled"
		doc["suspiciousIPs"] = []any{}
	case DomainExternalService:
		doc["serviceName"] = key
		doc["serviceVersion"] = "unknown"
		doc["serviceHealth"] = "unknown"
		doc["timeoutThreshold"] = float64(5000)
		doc["dependencies"] = []any{}
	case DomainCache:
		doc["cacheType"] = "redis"
		doc["connectionStatus"] = "connected"
	case DomainSecurity:
		doc["firewallStatus"] = "enabled"
		doc["rateLimitStatus"] = "enabled"
		doc["blockedIPs"] = []any{}
		doc["suspiciousPatterns"] = []any{}
	case DomainBusinessLogic:
		doc["businessFunction"] = key
		doc["operationalStatus"] = "operational"
		doc["criticalErrors"] = []any{}
	}
	return doc
}
