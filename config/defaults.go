// Package config provides configuration defaults and utilities
// for the gemrate application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default HTTP listen address.
	// Override via config: listen
	DefaultListenAddress = "0.0.0.0:8080"

	// DefaultReadTimeout bounds reading a full HTTP request.
	// Override via config: server.read_timeout
	DefaultReadTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds writing an HTTP response. Chart payloads for
	// several months of hourly data are a few hundred KiB.
	// Override via config: server.write_timeout
	DefaultWriteTimeout = 30 * time.Second

	// DefaultShutdownTimeout is how long in-flight requests may run after
	// a shutdown signal.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 15 * time.Second
)

// =============================================================================
// Refresh Cycle Defaults
// =============================================================================

const (
	// DefaultRefreshInterval is the length of one refresh cycle. Within a
	// cycle every dataset fetches new ticks at most once.
	// Override via config: refresh.interval
	DefaultRefreshInterval = time.Minute

	// DefaultFetchTimeout bounds a single FetchTicksSince call.
	// Override via config: refresh.fetch_timeout
	DefaultFetchTimeout = 10 * time.Second
)

// =============================================================================
// Source Defaults
// =============================================================================

const (
	// DefaultSQLDriver is the database/sql driver used for tick tables.
	// Override via config: source.sql.driver
	DefaultSQLDriver = "postgres"

	// DefaultSQLDSN is the tick database used when none is configured.
	// Override via config: source.sql.dsn
	DefaultSQLDSN = "postgres://localhost:5432/gw2spidy?sslmode=disable"

	// DefaultSQLMaxOpenConns caps the tick database pool.
	// Override via config: source.sql.max_open_conns
	DefaultSQLMaxOpenConns = 4

	// DefaultTimeColumn and DefaultRateColumn name the tick table columns.
	// Override via config: source.sql.time_column, source.sql.rate_column
	DefaultTimeColumn = "rate_datetime"
	DefaultRateColumn = "rate"

	// DefaultRedisAddress is the Redis server holding tick sorted sets.
	// Override via config: source.redis.addr
	DefaultRedisAddress = "localhost:6379"

	// DefaultRedisKeyPrefix prefixes the per-kind sorted set keys.
	// Override via config: source.redis.key_prefix
	DefaultRedisKeyPrefix = "gemrate:ticks"
)

// =============================================================================
// Persistence Defaults
// =============================================================================

const (
	// DefaultArchiveDir is where fetched tick batches are archived as Parquet.
	// Override via config: archive.dir
	DefaultArchiveDir = "data/archive"

	// DefaultArchiveCompression is the Parquet codec for archived batches.
	// Override via config: archive.compression
	DefaultArchiveCompression = "zstd"

	// DefaultSnapshotDir is where durable aggregator state is saved on shutdown.
	// Override via config: snapshot.dir
	DefaultSnapshotDir = "data/snapshots"
)

// =============================================================================
// Streaming Defaults
// =============================================================================

const (
	// DefaultStreamWriteWait is the time allowed to write a message to a peer.
	// Override via config: stream.write_wait
	DefaultStreamWriteWait = 10 * time.Second

	// DefaultStreamPongWait is the time allowed to read the next pong.
	// Override via config: stream.pong_wait
	DefaultStreamPongWait = 60 * time.Second

	// DefaultStreamPingPeriod must be shorter than DefaultStreamPongWait.
	DefaultStreamPingPeriod = (DefaultStreamPongWait * 9) / 10

	// DefaultStreamConnectLimit is the number of websocket connects per
	// client IP per minute.
	// Override via config: stream.connect_limit
	DefaultStreamConnectLimit = 30
)

// =============================================================================
// Summary Defaults
// =============================================================================

const (
	// DefaultSketchAccuracy is the relative accuracy of quantile sketches.
	// Override via config: summary.relative_accuracy
	DefaultSketchAccuracy = 0.01
)

// =============================================================================
// Client Defaults
// =============================================================================

const (
	// DefaultServerURL is where gemratectl looks for gemrated.
	DefaultServerURL = "http://localhost:8080"

	// DefaultRequestTimeout bounds one client request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the websocket handshake of a watch.
	DefaultHandshakeTimeout = 10 * time.Second
)
