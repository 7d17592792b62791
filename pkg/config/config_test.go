package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
providers:
  aws:
    enabled: true
    api_endpoint: https://ce.us-east-1.amazonaws.com
    api_key: test-key
  azure:
    enabled: false
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Collection.Cadence != 6*time.Hour {
		t.Errorf("Collection.Cadence = %s, want 6h", cfg.Collection.Cadence)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("Retry.MaxAttempts = %d, want 4", cfg.Retry.MaxAttempts)
	}
	if cfg.Quality.ExclusionThreshold != 0.5 {
		t.Errorf("Quality.ExclusionThreshold = %v, want 0.5", cfg.Quality.ExclusionThreshold)
	}
	if cfg.Kafka.Topic != "costpull.events" {
		t.Errorf("Kafka.Topic = %q, want costpull.events", cfg.Kafka.Topic)
	}
	if cfg.ClickHouse.Database != "costpull" {
		t.Errorf("ClickHouse.Database = %q, want costpull", cfg.ClickHouse.Database)
	}
}

func TestLoad_FillsProviderDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	aws := cfg.Providers["aws"]
	if aws.CacheTTL != 15*time.Minute {
		t.Errorf("aws.CacheTTL = %s, want 15m", aws.CacheTTL)
	}
	if aws.RateCapacity != 5 {
		t.Errorf("aws.RateCapacity = %v, want 5", aws.RateCapacity)
	}
	if aws.RateRefillPerSec != 1 {
		t.Errorf("aws.RateRefillPerSec = %v, want 1", aws.RateRefillPerSec)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no providers", `environment: test`},
		{"enabled provider missing key", `
providers:
  aws:
    enabled: true
    api_endpoint: https://example.com
`},
		{"kafka enabled without brokers", minimalConfig + `
kafka:
  enabled: true
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() error = nil, want validation failure")
			}
		})
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("AWS_API_KEY", "from-env")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Providers["aws"].APIKey != "from-env" {
		t.Errorf("aws.APIKey = %q, want from-env", cfg.Providers["aws"].APIKey)
	}
	if cfg.ClickHouse.Host != "ch.internal" {
		t.Errorf("ClickHouse.Host = %q, want ch.internal", cfg.ClickHouse.Host)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want two brokers", cfg.Kafka.Brokers)
	}
}

func TestProviderNames_EnabledOnlySorted(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{
		"gcp":   {Enabled: true},
		"aws":   {Enabled: true},
		"azure": {Enabled: false},
	}}
	names := cfg.ProviderNames()
	if len(names) != 2 || names[0] != "aws" || names[1] != "gcp" {
		t.Errorf("ProviderNames() = %v, want [aws gcp]", names)
	}
}
