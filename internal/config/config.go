// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Validation failures wrap ErrInvalidConfig; loader failures wrap ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Supported record stores.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite3"
	StoreMySQL  = "mysql"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the text or json log handler.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the historical record store: memory, sqlite3 or mysql.
	Store string `koanf:"store"`

	// DatabaseDSN is the driver DSN for the SQL stores.
	DatabaseDSN string `koanf:"database_dsn"`

	// SeedCSV optionally bulk-loads historical records at startup.
	SeedCSV string `koanf:"seed_csv"`

	// RubricFile overrides the embedded rubric table with a YAML file.
	RubricFile string `koanf:"rubric_file"`

	// ModelSeed seeds classifier weight initialization.
	ModelSeed int64 `koanf:"model_seed"`

	// Epochs is the number of training passes per forecast.
	Epochs int `koanf:"epochs"`

	// RequestTimeoutMS bounds each HTTP request; 0 disables the bound.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// MetricsNamespace and MetricsSubsystem prefix every Prometheus metric.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsBucketsMS overrides the latency histogram buckets, in milliseconds.
	MetricsBucketsMS []float64 `koanf:"metrics_buckets_ms"`

	// MetricsLabels are constant labels attached to every metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		Store:            StoreMemory,
		ModelSeed:        42,
		Epochs:           20,
		RequestTimeoutMS: 30_000,
		MetricsNamespace: "admitcast",
		MetricsSubsystem: "forecast",
	}
}

// RequestTimeout returns RequestTimeoutMS as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// Validate checks field values and cross-field constraints.
func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains([]string{StoreMemory, StoreSQLite, StoreMySQL}, c.Store):
		return fmt.Errorf("%w: store must be one of memory, sqlite3, mysql, got %q", ErrInvalidConfig, c.Store)
	case c.Store != StoreMemory && strings.TrimSpace(c.DatabaseDSN) == "":
		return fmt.Errorf("%w: database_dsn is required for store %s", ErrInvalidConfig, c.Store)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidConfig, c.Epochs)
	case c.RequestTimeoutMS < 0:
		return fmt.Errorf("%w: request_timeout_ms must not be negative", ErrInvalidConfig)
	case c.MetricsNamespace != "" && !metricName.MatchString(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace %q is not a valid metric name", ErrInvalidConfig, c.MetricsNamespace)
	case c.MetricsSubsystem != "" && !metricName.MatchString(c.MetricsSubsystem):
		return fmt.Errorf("%w: metrics_subsystem %q is not a valid metric name", ErrInvalidConfig, c.MetricsSubsystem)
	}
	for i := 1; i < len(c.MetricsBucketsMS); i++ {
		if c.MetricsBucketsMS[i] <= c.MetricsBucketsMS[i-1] {
			return fmt.Errorf("%w: metrics_buckets_ms must be strictly increasing", ErrInvalidConfig)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
