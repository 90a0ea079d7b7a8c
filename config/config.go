// Package config builds database handles and sqlengine providers from a YAML file and
// SPECQUERY_* environment variables.
//
// Environment variables win over the file, the file wins over Default:
//
//	SPECQUERY_DSN, SPECQUERY_REPLICA_DSN, SPECQUERY_ADAPTER, SPECQUERY_DIALECT, SPECQUERY_LOG_LEVEL,
//	SPECQUERY_POOL_MAX_CONNS, SPECQUERY_POOL_MIN_CONNS, SPECQUERY_POOL_MAX_CONN_LIFETIME,
//	SPECQUERY_POOL_MAX_CONN_IDLE_TIME, SPECQUERY_POOL_HEALTH_CHECK_PERIOD, SPECQUERY_POOL_CONNECT_TIMEOUT,
//	SPECQUERY_TELEMETRY_SERVICE_NAME, SPECQUERY_TELEMETRY_TRACE_ENDPOINT,
//	SPECQUERY_TELEMETRY_METRIC_ENDPOINT, SPECQUERY_TELEMETRY_METRIC_INTERVAL
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/specquery-go/specquery/sqlengine"
)

const envPrefix = "SPECQUERY_"

// Adapter names.
const (
	AdapterPGX    = "pgx"
	AdapterSQL    = "sql"
	AdapterSQLX   = "sqlx"
	AdapterSQLite = "sqlite"
)

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoadingConfigFailed is returned when the file or the environment cannot be read.
	ErrLoadingConfigFailed = errors.New("loading config failed")

	// ErrOpeningDatabaseFailed is returned when a database handle cannot be created or reached.
	ErrOpeningDatabaseFailed = errors.New("opening database failed")
)

var validAdapters = []string{AdapterPGX, AdapterSQL, AdapterSQLX, AdapterSQLite}

// Config describes one database the engine queries.
type Config struct {
	DSN        string `yaml:"dsn" env:"DSN"`
	ReplicaDSN string `yaml:"replica_dsn" env:"REPLICA_DSN"`
	Adapter    string `yaml:"adapter" env:"ADAPTER"`

	// Dialect overrides the dialect the adapter implies.
	Dialect   string    `yaml:"dialect" env:"DIALECT"`
	LogLevel  string    `yaml:"log_level" env:"LOG_LEVEL"`
	Pool      Pool      `yaml:"pool" envPrefix:"POOL_"`
	Telemetry Telemetry `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// Pool holds the connection pool settings.
type Pool struct {
	MaxConns          int32         `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns          int32         `yaml:"min_conns" env:"MIN_CONNS"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" env:"HEALTH_CHECK_PERIOD"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// Telemetry holds the OpenTelemetry export settings. Without endpoints nothing is exported.
type Telemetry struct {
	ServiceName    string        `yaml:"service_name" env:"SERVICE_NAME"`
	TraceEndpoint  string        `yaml:"trace_endpoint" env:"TRACE_ENDPOINT"`
	MetricEndpoint string        `yaml:"metric_endpoint" env:"METRIC_ENDPOINT"`
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// Default returns the settings used when neither file nor environment say otherwise.
func Default() *Config {
	return &Config{
		Adapter:  AdapterPGX,
		LogLevel: "info",
		Pool: Pool{
			MaxConns:          50,
			MinConns:          2,
			MaxConnLifetime:   time.Hour,
			MaxConnIdleTime:   5 * time.Minute,
			HealthCheckPeriod: time.Minute,
			ConnectTimeout:    5 * time.Second,
		},
		Telemetry: Telemetry{
			ServiceName:    "specquery",
			MetricInterval: 5 * time.Second,
		},
	}
}

// Load reads the YAML file at path on top of Default and overlays the environment.
// An empty path or a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)

		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, errors.Join(ErrLoadingConfigFailed, err)
		default:
			if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
				return nil, errors.Join(ErrLoadingConfigFailed, fmt.Errorf("parsing %s: %w", path, unmarshalErr))
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, errors.Join(ErrLoadingConfigFailed, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can open a database.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn is not configured (set %sDSN)", ErrInvalidConfig, envPrefix)
	}

	if !slices.Contains(validAdapters, c.Adapter) {
		return fmt.Errorf("%w: adapter %q (valid: %v)", ErrInvalidConfig, c.Adapter, validAdapters)
	}

	if c.Dialect != "" && c.Dialect != sqlengine.DialectPostgres && c.Dialect != sqlengine.DialectSQLite {
		return fmt.Errorf("%w: dialect %q", ErrInvalidConfig, c.Dialect)
	}

	if c.ReplicaDSN != "" && c.Adapter != AdapterPGX {
		return fmt.Errorf("%w: replica_dsn is only supported by the %s adapter", ErrInvalidConfig, AdapterPGX)
	}

	if c.Pool.MaxConns <= 0 {
		return fmt.Errorf("%w: pool.max_conns must be positive", ErrInvalidConfig)
	}

	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("%w: pool.min_conns must be between 0 and pool.max_conns", ErrInvalidConfig)
	}

	if c.Telemetry.MetricEndpoint != "" && c.Telemetry.MetricInterval <= 0 {
		return fmt.Errorf("%w: telemetry.metric_interval must be positive", ErrInvalidConfig)
	}

	return nil
}
