package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// ProviderConfig is one cloud billing source.
type ProviderConfig struct {
	Enabled          bool          `yaml:"enabled"`
	APIEndpoint      string        `yaml:"api_endpoint"`
	APIKey           string        `yaml:"api_key"`
	AccountID        string        `yaml:"account_id"`
	CacheTTL         time.Duration `yaml:"cache_ttl" default:"15m"`
	ExpectedBaseline float64       `yaml:"expected_baseline" default:"0"`
	RateCapacity     float64       `yaml:"rate_capacity" default:"5"`
	RateRefillPerSec float64       `yaml:"rate_refill_per_sec" default:"1"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Collection struct {
		Cadence     time.Duration `yaml:"cadence" default:"6h"`
		TaskTimeout time.Duration `yaml:"task_timeout" default:"5m"`
		Window      time.Duration `yaml:"window" default:"72h"`
	} `yaml:"collection"`
	Retry struct {
		MaxAttempts    int           `yaml:"max_attempts" default:"4"`
		BackoffBase    time.Duration `yaml:"backoff_base" default:"2s"`
		JitterFraction float64       `yaml:"jitter_fraction" default:"0.2"`
	} `yaml:"retry"`
	Quality struct {
		ExclusionThreshold float64 `yaml:"exclusion_threshold" default:"0.5"`
		RollingRuns        int     `yaml:"rolling_runs" default:"3"`
	} `yaml:"quality"`
	Forecast struct {
		RetrainInterval time.Duration `yaml:"retrain_interval" default:"24h"`
		DriftFactor     float64       `yaml:"drift_factor" default:"1.5"`
		QueueWorkers    int           `yaml:"queue_workers" default:"2"`
	} `yaml:"forecast"`
	Anomaly struct {
		SigmaThreshold   float64 `yaml:"sigma_threshold" default:"2.5"`
		HighSigma        float64 `yaml:"high_sigma" default:"3"`
		MultivariateMinN int     `yaml:"multivariate_min_n" default:"50"`
	} `yaml:"anomaly"`
	Retention struct {
		Horizon       time.Duration `yaml:"horizon" default:"9552h"` // ~13 months
		SweepInterval time.Duration `yaml:"sweep_interval" default:"24h"`
	} `yaml:"retention"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Kafka     struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"costpull.events"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"costpull"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults.Set does not reach into map values, so fill each provider
	// entry after unmarshalling.
	for name, pc := range c.Providers {
		if pc.CacheTTL == 0 {
			pc.CacheTTL = 15 * time.Minute
		}
		if pc.RateCapacity == 0 {
			pc.RateCapacity = 5
		}
		if pc.RateRefillPerSec == 0 {
			pc.RateRefillPerSec = 1
		}
		c.Providers[name] = pc
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	for name, pc := range c.Providers {
		env := strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(env); v != "" {
			pc.APIKey = v
			c.Providers[name] = pc
		}
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, pc := range c.Providers {
		if !pc.Enabled {
			continue
		}
		if pc.APIEndpoint == "" {
			return fmt.Errorf("providers.%s.api_endpoint is required", name)
		}
		if pc.APIKey == "" {
			return fmt.Errorf("providers.%s.api_key is required", name)
		}
	}
	if c.Collection.Cadence <= 0 {
		return fmt.Errorf("collection.cadence must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// ProviderNames returns the enabled provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name, pc := range c.Providers {
		if pc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
