// Package source provides the tick sources datasets fetch from.
//
// A Source returns, for one dataset kind, every tick strictly newer than a
// cursor in ascending timestamp order. Sources never filter by recency:
// a dataset that was offline for a week gets the whole week on its next
// fetch.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/constants"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/types"
	"github.com/xtxerr/gemrate/internal/validation"
)

var log = logging.Component("source")

// Source fetches ticks newer than a cursor.
type Source interface {
	// FetchTicksSince returns ticks of kind with a timestamp strictly
	// greater than cursor (all ticks when cursor is nil), ascending.
	FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error)

	// Name identifies the source in logs and health output.
	Name() string

	Close() error
}

// Pinger is implemented by sources backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Configuration
// =============================================================================

// Config selects and configures the tick source.
type Config struct {
	Type    string
	SQL     SQLConfig
	Redis   RedisConfig
	Archive ArchiveConfig
	Static  StaticConfig
}

// SQLConfig configures SQLSource.
type SQLConfig struct {
	// Driver is "postgres" or "duckdb".
	Driver string
	DSN    string

	// Tables maps a kind name to its tick table. Kinds without an entry
	// use "<kind>_rate".
	Tables map[string]string

	TimeColumn string
	RateColumn string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures RedisSource.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ArchiveConfig configures ArchiveSource.
type ArchiveConfig struct {
	Dir string
}

// StaticConfig seeds a Static source. Each tick is a [timestamp, rate]
// pair keyed by kind name.
type StaticConfig struct {
	Ticks map[string][][]int64
}

// DefaultConfig returns the default source configuration.
func DefaultConfig() Config {
	return Config{
		Type: constants.SourceSQL,
		SQL: SQLConfig{
			Driver:          config.DefaultSQLDriver,
			DSN:             config.DefaultSQLDSN,
			TimeColumn:      config.DefaultTimeColumn,
			RateColumn:      config.DefaultRateColumn,
			MaxOpenConns:    config.DefaultSQLMaxOpenConns,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:      config.DefaultRedisAddress,
			KeyPrefix: config.DefaultRedisKeyPrefix,
		},
		Archive: ArchiveConfig{
			Dir: config.DefaultArchiveDir,
		},
	}
}

// Validate validates the configuration of the selected source type.
func (c *Config) Validate() error {
	var errs []error

	switch c.Type {
	case constants.SourceSQL:
		errs = append(errs, c.SQL.Validate())
	case constants.SourceRedis:
		errs = append(errs, c.Redis.Validate())
	case constants.SourceArchive:
		if c.Archive.Dir == "" {
			errs = append(errs, errors.NewMissingField("source.archive.dir"))
		}
	case constants.SourceStatic:
		errs = append(errs, c.Static.Validate())
	default:
		errs = append(errs, errors.NewInvalidValue("source.type", c.Type,
			"must be one of "+strings.Join(constants.ValidSourceTypes, ", ")))
	}

	return errors.Join(errs...)
}

// Validate validates the SQL source configuration.
func (c *SQLConfig) Validate() error {
	var errs []error

	known := false
	for _, d := range constants.ValidSQLDrivers {
		if c.Driver == d {
			known = true
		}
	}
	if !known {
		errs = append(errs, errors.NewInvalidValue("source.sql.driver", c.Driver,
			"must be one of "+strings.Join(constants.ValidSQLDrivers, ", ")))
	}
	if c.DSN == "" && c.Driver != constants.DriverDuckDB {
		errs = append(errs, errors.NewMissingField("source.sql.dsn"))
	}

	for kind, table := range c.Tables {
		if _, err := types.ParseKind(kind); err != nil {
			errs = append(errs, errors.NewInvalidValue("source.sql.tables", kind, "unknown kind"))
		}
		if err := validation.ValidateIdentifier(table); err != nil {
			errs = append(errs, errors.NewInvalidValue("source.sql.tables."+kind, table, err.Error()))
		}
	}
	if err := validation.ValidateIdentifier(c.TimeColumn); err != nil {
		errs = append(errs, errors.NewInvalidValue("source.sql.time_column", c.TimeColumn, err.Error()))
	}
	if err := validation.ValidateIdentifier(c.RateColumn); err != nil {
		errs = append(errs, errors.NewInvalidValue("source.sql.rate_column", c.RateColumn, err.Error()))
	}
	if c.MaxOpenConns < 0 {
		errs = append(errs, errors.NewValidation("source.sql.max_open_conns", "must be >= 0"))
	}

	return errors.Join(errs...)
}

// Table returns the configured table of kind.
func (c *SQLConfig) Table(kind types.Kind) string {
	for name, table := range c.Tables {
		if k, err := types.ParseKind(name); err == nil && k == kind {
			return table
		}
	}
	return kind.DefaultTable()
}

// Validate validates the Redis source configuration.
func (c *RedisConfig) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.NewMissingField("source.redis.addr"))
	}
	if err := validation.ValidateKeyPrefix(c.KeyPrefix); err != nil {
		errs = append(errs, errors.NewInvalidValue("source.redis.key_prefix", c.KeyPrefix, err.Error()))
	}
	if c.DB < 0 {
		errs = append(errs, errors.NewValidation("source.redis.db", "must be >= 0"))
	}
	return errors.Join(errs...)
}

// Validate validates the static seed ticks.
func (c *StaticConfig) Validate() error {
	var errs []error
	for name, pairs := range c.Ticks {
		if _, err := types.ParseKind(name); err != nil {
			errs = append(errs, errors.NewInvalidValue("source.static.ticks", name, "unknown kind"))
			continue
		}
		for i, p := range pairs {
			if len(p) != 2 {
				errs = append(errs, errors.NewValidation(
					fmt.Sprintf("source.static.ticks.%s[%d]", name, i), "must be a [timestamp, rate] pair"))
			}
		}
	}
	return errors.Join(errs...)
}

// New opens the source selected by cfg.Type.
func New(ctx context.Context, cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		src Source
		err error
	)
	switch cfg.Type {
	case constants.SourceSQL:
		src, err = NewSQL(ctx, cfg.SQL)
	case constants.SourceRedis:
		src, err = NewRedis(ctx, cfg.Redis)
	case constants.SourceStatic:
		src, err = NewStaticFromConfig(cfg.Static)
	default:
		src = NewArchive(cfg.Archive.Dir)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// =============================================================================
// Helpers
// =============================================================================

// classify maps a backend failure to ErrTimeout or ErrSourceUnavailable.
func classify(err error, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", name, errors.ErrTimeout, err)
	}
	return errors.Unavailable(err, name)
}

// parseRate parses a rate as stored by the backend. Decimal values are
// truncated toward zero; anything that is not a number is malformed.
func parseRate(ts int64, raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != f || f > 9.2e18 || f < -9.2e18 {
		return 0, errors.NewBadRate(ts, raw)
	}
	return int64(f), nil
}

// afterCursor drops ticks at or before cursor.
func afterCursor(ticks []types.Tick, cursor *int64) []types.Tick {
	if cursor == nil {
		return ticks
	}
	out := ticks[:0:0]
	for _, t := range ticks {
		if t.Timestamp > *cursor {
			out = append(out, t)
		}
	}
	return out
}
