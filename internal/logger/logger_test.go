package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stockdesk/apipulse/internal/config"
)

func TestNewJSONOutput(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	log := NewWithWriter(cfg, &buf)
	log.Info().Msg("dropped")
	log.Warn().Str("endpoint", "GET:/users/:id").Msg("slow request")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("want exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "slow request" || line["service"] != "apipulse" || line["endpoint"] != "GET:/users/:id" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestNewRelicDisabledWithoutLicense(t *testing.T) {
	app, err := NewRelic(config.DefaultObservabilityConfig())
	if err != nil || app != nil {
		t.Fatalf("NewRelic = %v, %v; want nil, nil", app, err)
	}
}
