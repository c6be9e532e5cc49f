package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type ObservabilityConfig struct {
	ServiceName string         `koanf:"service_name"`
	Environment string         `koanf:"environment"`
	Logging     LoggingConfig  `koanf:"logging"`
	NewRelic    NewRelicConfig `koanf:"new_relic"`
}

type LoggingConfig struct {
	Level              string `koanf:"level"`
	Format             string `koanf:"format"`
	SlowQueryThreshold int    `koanf:"slow_query_threshold"` // milliseconds
}

type NewRelicConfig struct {
	LicenseKey                string `koanf:"license_key"`
	AppLogForwardingEnabled   bool   `koanf:"app_log_forwarding_enabled"`
	DistributedTracingEnabled bool   `koanf:"distributed_tracing_enabled"`
	DebugLogging              bool   `koanf:"debug_logging"`
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: "apipulse",
		Environment: "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			SlowQueryThreshold: 100,
		},
		NewRelic: NewRelicConfig{
			AppLogForwardingEnabled:   true,
			DistributedTracingEnabled: true,
		},
	}
}

func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging level %q: %w", c.Logging.Level, err)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format %q (want console or json)", c.Logging.Format)
	}
	if c.Logging.SlowQueryThreshold < 0 {
		return fmt.Errorf("slow_query_threshold must not be negative")
	}
	return nil
}

func (c *ObservabilityConfig) SlowQueryThreshold() time.Duration {
	return time.Duration(c.Logging.SlowQueryThreshold) * time.Millisecond
}

// NewRelicEnabled reports whether an agent should be started.
func (c *ObservabilityConfig) NewRelicEnabled() bool { return c.NewRelic.LicenseKey != "" }
