package source

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/types"
)

// SQLSource reads ticks from one table per kind. The time column is
// converted to epoch seconds by the database so both drivers compare the
// cursor the same way.
type SQLSource struct {
	db     *sql.DB
	driver string

	// all and since hold the prepared query text per kind.
	all   map[types.Kind]string
	since map[types.Kind]string

	queries atomic.Int64
	rows    atomic.Int64
}

// SQLStats holds SQL source statistics.
type SQLStats struct {
	Driver  string `json:"driver"`
	Queries int64  `json:"queries"`
	Rows    int64  `json:"rows"`
	Open    int    `json:"open_connections"`
}

// NewSQL opens the database described by cfg and verifies it is reachable.
func NewSQL(ctx context.Context, cfg SQLConfig) (*SQLSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, classify(err, "sql")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify(err, "sql")
	}

	s, err := NewSQLFromDB(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Info("sql source connected", "driver", cfg.Driver)
	return s, nil
}

// NewSQLFromDB wraps an open database. The source takes ownership of db.
func NewSQLFromDB(db *sql.DB, cfg SQLConfig) (*SQLSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &SQLSource{
		db:     db,
		driver: cfg.Driver,
		all:    make(map[types.Kind]string),
		since:  make(map[types.Kind]string),
	}

	epoch := fmt.Sprintf("CAST(EXTRACT(EPOCH FROM %s) AS BIGINT)", cfg.TimeColumn)
	for _, kind := range types.AllKinds() {
		base := fmt.Sprintf("SELECT %s, CAST(%s AS VARCHAR) FROM %s",
			epoch, cfg.RateColumn, cfg.Table(kind))
		order := fmt.Sprintf(" ORDER BY %s ASC", cfg.TimeColumn)

		s.all[kind] = base + order
		s.since[kind] = base + " WHERE " + epoch + " > $1" + order
	}

	return s, nil
}

// Name returns "sql/<driver>".
func (s *SQLSource) Name() string {
	return "sql/" + s.driver
}

// FetchTicksSince implements Source.
func (s *SQLSource) FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error) {
	query, ok := s.all[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w: %s", s.Name(), errors.ErrUnknownKind, kind)
	}
	var args []any
	if cursor != nil {
		query = s.since[kind]
		args = append(args, *cursor)
	}

	s.queries.Add(1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, s.Name())
	}
	defer rows.Close()

	var ticks []types.Tick
	for rows.Next() {
		var (
			ts   int64
			rate sql.NullString
		)
		if err := rows.Scan(&ts, &rate); err != nil {
			return nil, classify(err, s.Name())
		}
		if !rate.Valid {
			return nil, errors.NewBadRate(ts, "NULL")
		}
		v, err := parseRate(ts, rate.String)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, types.Tick{Timestamp: ts, Rate: v})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, s.Name())
	}

	s.rows.Add(int64(len(ticks)))
	log.Debug("fetched ticks", "kind", kind, "count", len(ticks))
	return ticks, nil
}

// Ping verifies the database is reachable.
func (s *SQLSource) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx), s.Name())
}

// Stats returns query statistics.
func (s *SQLSource) Stats() SQLStats {
	return SQLStats{
		Driver:  s.driver,
		Queries: s.queries.Load(),
		Rows:    s.rows.Load(),
		Open:    s.db.Stats().OpenConnections,
	}
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
