package model

import "time"

// SystemOverview is a point-in-time composition of every extended status domain.
// Each list reflects its own domain's latest writes; domains are not read atomically
// together.
type SystemOverview struct {
	Database         []*DatabaseStatus        `json:"database"`
	Auth             []*AuthStatus            `json:"auth"`
	ExternalServices []*ExternalServiceStatus `json:"externalServices"`
	Cache            []*CacheStatus           `json:"cache"`
	Security         []*SecurityStatus        `json:"security"`
	BusinessLogic    []*BusinessLogicStatus   `json:"businessLogic"`
}

// Health is the log-derived score of the whole API.
type Health struct {
	Score  float64 `json:"score"`
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"` // seconds
}

// Monitoring is the dashboard payload of /api-status/monitoring.
type Monitoring struct {
	Health       Health       `json:"health"`
	Statistics   LogStats     `json:"statistics"`
	Endpoints    []*ApiStatus `json:"endpoints"`
	RecentErrors []LogEntry   `json:"recentErrors"`
	Timestamp    time.Time    `json:"timestamp"`
}

type SecurityRecordSummary struct {
	Endpoint           string     `json:"endpoint"`
	ThreatLevel        int64      `json:"threatLevel"`
	CurrentThreatLevel string     `json:"currentThreatLevel"`
	BlockedRequests    int64      `json:"blockedRequests"`
	LastIncident       *time.Time `json:"lastIncident,omitempty"`
}

// SecurityRollup sums security counters across all security records.
type SecurityRollup struct {
	TotalThreats     int64                   `json:"totalThreats"`
	BlockedRequests  int64                   `json:"blockedRequests"`
	HighThreatLevels int                     `json:"highThreatLevels"`
	DDoSDetected     bool                    `json:"ddosDetected"`
	Statuses         []SecurityRecordSummary `json:"statuses"`
}

type DatabasePerformance struct {
	AverageQueryTime float64 `json:"averageQueryTime"`
	SlowQueries      int64   `json:"slowQueries"`
}

type CachePerformance struct {
	AverageHitRatio float64 `json:"averageHitRatio"`
	TotalHits       int64   `json:"totalHits"`
	TotalMisses     int64   `json:"totalMisses"`
}

type BusinessPerformance struct {
	TotalRevenue           float64 `json:"totalRevenue"`
	AverageTransactionTime float64 `json:"averageTransactionTime"`
	SuccessRate            float64 `json:"successRate"`
}

// PerformanceRollup averages per-record figures across domains. WindowHours is
// reported back; the figures cover all recorded history.
type PerformanceRollup struct {
	WindowHours int                 `json:"windowHours"`
	Scope       string              `json:"scope"`
	Database    DatabasePerformance `json:"database"`
	Cache       CachePerformance    `json:"cache"`
	Business    BusinessPerformance `json:"business"`
}

type DatabaseHealthEntry struct {
	Endpoint     string     `json:"endpoint"`
	Status       string     `json:"status"`
	LastAccessed *time.Time `json:"lastAccessed,omitempty"`
}

type DatabaseHealth struct {
	Healthy  int                   `json:"healthy"`
	Total    int                   `json:"total"`
	Statuses []DatabaseHealthEntry `json:"statuses"`
}

type ServiceHealthEntry struct {
	ServiceName  string     `json:"serviceName"`
	Health       string     `json:"health"`
	LastPing     *time.Time `json:"lastPing,omitempty"`
	ResponseTime float64    `json:"responseTime"`
}

type ServicesHealth struct {
	Healthy  int                  `json:"healthy"`
	Degraded int                  `json:"degraded"`
	Down     int                  `json:"down"`
	Total    int                  `json:"total"`
	Services []ServiceHealthEntry `json:"services"`
}
