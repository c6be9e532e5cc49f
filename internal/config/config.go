package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const envPrefix = "APIPULSE_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
	Status        StatusConfig         `koanf:"status" validate:"required"`
	Auth          AuthConfig           `koanf:"auth"`
	RateLimit     RateLimitConfig      `koanf:"rate_limit"`
	Redis         RedisConfig          `koanf:"redis"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required,oneof=development staging production test"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string `koanf:"driver" validate:"required,oneof=postgres memory"`
	Host            string `koanf:"host" validate:"required_if=Driver postgres"`
	Port            int    `koanf:"port" validate:"required_if=Driver postgres"`
	User            string `koanf:"user" validate:"required_if=Driver postgres"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required_if=Driver postgres"`
	SSLMode         string `koanf:"ssl_mode"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime"`  // seconds
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time"` // seconds
}

// DSN renders the connection URL understood by pgx.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}
	return u.String()
}

type StatusConfig struct {
	UpdateTimeout        int      `koanf:"update_timeout" validate:"gte=1"` // milliseconds
	Workers              int      `koanf:"workers" validate:"gte=1"`
	QueueSize            int      `koanf:"queue_size" validate:"gte=1"`
	CaptureBodies        bool     `koanf:"capture_bodies"`
	CaptureResponses     bool     `koanf:"capture_responses"`
	MaxBodyBytes         int      `koanf:"max_body_bytes" validate:"gte=0"`
	SkipPaths            []string `koanf:"skip_paths"`
	SlowRequestThreshold int      `koanf:"slow_request_threshold" validate:"gte=0"` // milliseconds
	ProbeInterval        int      `koanf:"probe_interval" validate:"gte=0"`         // seconds, 0 disables
}

func (s StatusConfig) UpdateTimeoutDuration() time.Duration {
	return time.Duration(s.UpdateTimeout) * time.Millisecond
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gte=0"`
}

type RedisConfig struct {
	Addr        string `koanf:"addr"`
	Password    string `koanf:"password"`
	DB          int    `koanf:"db"`
	SnapshotTTL int    `koanf:"snapshot_ttl" validate:"gte=0"` // seconds
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":                                         "development",
		"server.port":                                         "8080",
		"server.read_timeout":                                 30,
		"server.write_timeout":                                30,
		"server.idle_timeout":                                 60,
		"database.driver":                                     "postgres",
		"database.host":                                       "localhost",
		"database.port":                                       5432,
		"database.ssl_mode":                                   "disable",
		"database.max_open_conns":                             10,
		"database.max_idle_conns":                             2,
		"database.conn_max_lifetime":                          3600,
		"database.conn_max_idle_time":                         300,
		"observability.service_name":                          "apipulse",
		"observability.logging.level":                         "info",
		"observability.logging.format":                        "console",
		"observability.logging.slow_query_threshold":          100,
		"observability.new_relic.app_log_forwarding_enabled":  true,
		"observability.new_relic.distributed_tracing_enabled": true,
		"status.update_timeout":                               5000,
		"status.workers":                                      4,
		"status.queue_size":                                   1024,
		"status.capture_bodies":                               true,
		"status.max_body_bytes":                               64 << 10,
		"status.skip_paths":                                   []string{"/metrics", "/api-status/health"},
		"status.slow_request_threshold":                       1000,
		"status.probe_interval":                               30,
		"redis.snapshot_ttl":                                  5,
	}
}

// envKey maps APIPULSE_SERVER__PORT to server.port.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Load reads configuration from defaults, an optional .env file and APIPULSE_
// environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	for key, v := range defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	// comma separated lists arrive as one string
	for _, key := range []string{"server.cors_allowed_origins", "status.skip_paths"} {
		if s, ok := k.Get(key).(string); ok {
			if err := k.Set(key, splitList(s)); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// in config struct we set Observability as pointer type to check whether it is nil or not
	if cfg.Observability == nil {
		cfg.Observability = DefaultObservabilityConfig()
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "apipulse"
	}
	cfg.Observability.Environment = cfg.Primary.Env
	if err := cfg.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	return cfg, nil
}

// LoadConfig is Load for process startup: any error is fatal.
func LoadConfig() *Config {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg, err := Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}
	return cfg
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsProduction() bool { return c.Primary.Env == "production" }
