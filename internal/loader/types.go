// Package loader - Configuration Types
//
// LOCATION: internal/loader/types.go
//
// Defines the YAML configuration structure for gemrated.
//
//	listen:    HTTP listen address
//	logging:   level and format
//	server:    HTTP timeouts
//	datasets:  kinds to serve (default: all)
//	refresh:   refresh cycle length, fetch timeout, eager refresh
//	source:    where ticks come from (sql, redis, archive, static)
//	archive:   Parquet copy of every advanced batch
//	snapshot:  aggregator state saved on shutdown
//	stream:    websocket push
//	summary:   quantile sketch accuracy
package loader

import (
	"strconv"
	"time"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/constants"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for gemrated.
type Config struct {
	// Listen is the HTTP listen address.
	// Format: "host:port" or ":port"
	// Default: "0.0.0.0:8080"
	Listen string `yaml:"listen"`

	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`

	// Datasets lists the kinds to serve, e.g. [gem_to_gold, gold_to_gem].
	// Empty serves all kinds.
	Datasets []string `yaml:"datasets"`

	Refresh RefreshConfig `yaml:"refresh"`
	Source  SourceConfig  `yaml:"source"`

	Archive  ArchiveConfig  `yaml:"archive"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Stream   StreamConfig   `yaml:"stream"`
	Summary  SummaryConfig  `yaml:"summary"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON switches from text to JSON output.
	JSON bool `yaml:"json"`
}

// ServerConfig configures HTTP timeouts.
type ServerConfig struct {
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// RefreshConfig configures the refresh cycle.
type RefreshConfig struct {
	// Interval is the length of one refresh cycle.
	// Default: 1m
	Interval Duration `yaml:"interval"`

	// FetchTimeout bounds one fetch from the source.
	// Default: 10s
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// Eager fetches at the start of each cycle instead of on first read.
	Eager bool `yaml:"eager"`
}

// =============================================================================
// Source Configuration
// =============================================================================

// SourceConfig selects where ticks come from.
type SourceConfig struct {
	// Type is one of sql, redis, archive, static.
	Type string `yaml:"type"`

	SQL     SQLSourceConfig     `yaml:"sql"`
	Redis   RedisSourceConfig   `yaml:"redis"`
	Archive ArchiveSourceConfig `yaml:"archive"`
	Static  StaticSourceConfig  `yaml:"static"`
}

// SQLSourceConfig configures the SQL tick tables.
type SQLSourceConfig struct {
	// Driver is "postgres" or "duckdb".
	Driver string `yaml:"driver"`

	// DSN is the driver connection string. Supports ${ENV} expansion.
	DSN string `yaml:"dsn"`

	// Tables maps kind to table name.
	// Default: <kind>_rate
	Tables map[string]string `yaml:"tables"`

	TimeColumn string `yaml:"time_column"`
	RateColumn string `yaml:"rate_column"`

	MaxOpenConns    int      `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// RedisSourceConfig configures the Redis sorted sets.
type RedisSourceConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ArchiveSourceConfig replays a Parquet archive.
type ArchiveSourceConfig struct {
	Dir string `yaml:"dir"`
}

// StaticSourceConfig serves ticks listed in the config file.
type StaticSourceConfig struct {
	// Ticks maps kind to [timestamp, rate] pairs.
	Ticks map[string][][]int64 `yaml:"ticks"`
}

// =============================================================================
// Persistence Configuration
// =============================================================================

// ArchiveConfig configures the Parquet archive of advanced batches.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`

	// Compression is one of none, snappy, gzip, lz4, zstd.
	Compression string `yaml:"compression"`
}

// SnapshotConfig configures aggregator snapshots.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// =============================================================================
// Delivery Configuration
// =============================================================================

// StreamConfig configures the websocket push.
type StreamConfig struct {
	Enabled   bool     `yaml:"enabled"`
	WriteWait Duration `yaml:"write_wait"`
	PongWait  Duration `yaml:"pong_wait"`

	// ConnectLimit is the number of connects per IP per minute.
	ConnectLimit int `yaml:"connect_limit"`
}

// SummaryConfig configures window summaries.
type SummaryConfig struct {
	// SketchAccuracy is the relative accuracy of quantiles. Zero disables
	// quantiles.
	SketchAccuracy float64 `yaml:"sketch_accuracy"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen: config.DefaultListenAddress,

		Logging: LoggingConfig{
			Level: "info",
		},

		Server: ServerConfig{
			ReadTimeout:     Duration(config.DefaultReadTimeout),
			WriteTimeout:    Duration(config.DefaultWriteTimeout),
			ShutdownTimeout: Duration(config.DefaultShutdownTimeout),
		},

		Refresh: RefreshConfig{
			Interval:     Duration(config.DefaultRefreshInterval),
			FetchTimeout: Duration(config.DefaultFetchTimeout),
		},

		Source: SourceConfig{
			Type: constants.SourceSQL,
			SQL: SQLSourceConfig{
				Driver:          config.DefaultSQLDriver,
				DSN:             config.DefaultSQLDSN,
				TimeColumn:      config.DefaultTimeColumn,
				RateColumn:      config.DefaultRateColumn,
				MaxOpenConns:    config.DefaultSQLMaxOpenConns,
				ConnMaxLifetime: Duration(30 * time.Minute),
			},
			Redis: RedisSourceConfig{
				Addr:      config.DefaultRedisAddress,
				KeyPrefix: config.DefaultRedisKeyPrefix,
			},
			Archive: ArchiveSourceConfig{
				Dir: config.DefaultArchiveDir,
			},
		},

		Archive: ArchiveConfig{
			Dir:         config.DefaultArchiveDir,
			Compression: config.DefaultArchiveCompression,
		},

		Snapshot: SnapshotConfig{
			Dir: config.DefaultSnapshotDir,
		},

		Stream: StreamConfig{
			Enabled:      true,
			WriteWait:    Duration(config.DefaultStreamWriteWait),
			PongWait:     Duration(config.DefaultStreamPongWait),
			ConnectLimit: config.DefaultStreamConnectLimit,
		},

		Summary: SummaryConfig{
			SketchAccuracy: config.DefaultSketchAccuracy,
		},
	}
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		// Plain integers decode as strings too.
		secs, aerr := strconv.Atoi(s)
		if aerr != nil {
			return err
		}
		dur = time.Duration(secs) * time.Second
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
