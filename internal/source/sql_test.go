package source

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/types"
)

// newDuckDB returns an SQL source over an in-memory DuckDB holding the
// given gem_to_gold rows. Rates are stored as text so bad rows can be
// represented.
func newDuckDB(t *testing.T, rows map[int64]any) *SQLSource {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, table := range []string{"gem_to_gold_rate", "gold_to_gem_rate"} {
		if _, err := db.ExecContext(ctx,
			"CREATE TABLE "+table+" (rate_datetime TIMESTAMP, rate VARCHAR)"); err != nil {
			t.Fatalf("create %s: %v", table, err)
		}
	}
	for ts, rate := range rows {
		stamp := time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
		if _, err := db.ExecContext(ctx,
			"INSERT INTO gem_to_gold_rate VALUES (CAST($1 AS TIMESTAMP), $2)", stamp, rate); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	cfg := DefaultConfig().SQL
	cfg.Driver = "duckdb"

	s, err := NewSQLFromDB(db, cfg)
	if err != nil {
		t.Fatalf("NewSQLFromDB: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLSource_FetchAll(t *testing.T) {
	s := newDuckDB(t, map[int64]any{
		1700003600: "2510",
		1700000000: "2500",
		1700007200: "2490.0",
	})

	ticks, err := s.FetchTicksSince(context.Background(), types.KindGemToGold, nil)
	if err != nil {
		t.Fatalf("FetchTicksSince: %v", err)
	}

	want := []types.Tick{
		{Timestamp: 1700000000, Rate: 2500},
		{Timestamp: 1700003600, Rate: 2510},
		{Timestamp: 1700007200, Rate: 2490},
	}
	if len(ticks) != len(want) {
		t.Fatalf("got %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("tick %d = %+v, want %+v", i, ticks[i], want[i])
		}
	}

	other, err := s.FetchTicksSince(context.Background(), types.KindGoldToGem, nil)
	if err != nil || len(other) != 0 {
		t.Errorf("gold_to_gem should be empty: %v, %v", other, err)
	}

	if st := s.Stats(); st.Queries != 2 || st.Rows != 3 || st.Driver != "duckdb" {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestSQLSource_FetchSinceCursor(t *testing.T) {
	s := newDuckDB(t, map[int64]any{
		1700000000: "1",
		1700000060: "2",
		1700000120: "3",
	})

	cursor := int64(1700000060)
	ticks, err := s.FetchTicksSince(context.Background(), types.KindGemToGold, &cursor)
	if err != nil {
		t.Fatalf("FetchTicksSince: %v", err)
	}
	if len(ticks) != 1 || ticks[0].Timestamp != 1700000120 || ticks[0].Rate != 3 {
		t.Errorf("expected only the tick after the cursor, got %v", ticks)
	}

	cursor = 1700000120
	ticks, err = s.FetchTicksSince(context.Background(), types.KindGemToGold, &cursor)
	if err != nil || len(ticks) != 0 {
		t.Errorf("expected nothing after the last tick, got %v, %v", ticks, err)
	}
}

func TestSQLSource_MalformedRate(t *testing.T) {
	for name, rate := range map[string]any{"text": "n/a", "null": nil} {
		t.Run(name, func(t *testing.T) {
			s := newDuckDB(t, map[int64]any{
				1700000000: "2500",
				1700000060: rate,
			})

			_, err := s.FetchTicksSince(context.Background(), types.KindGemToGold, nil)
			if !errors.IsMalformed(err) {
				t.Fatalf("expected malformed input, got %v", err)
			}

			var me *errors.MalformedInputError
			if !errors.As(err, &me) || me.Timestamp != 1700000060 {
				t.Errorf("unexpected error detail: %+v", me)
			}
		})
	}
}

func TestSQLSource_ClosedDatabase(t *testing.T) {
	s := newDuckDB(t, nil)
	s.Close()

	_, err := s.FetchTicksSince(context.Background(), types.KindGemToGold, nil)
	if !errors.Is(err, errors.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", err)
	}
	if !errors.IsRetriable(err) {
		t.Error("closed database should be retriable")
	}
}

func TestNewSQLFromDB_RejectsBadIdentifiers(t *testing.T) {
	cfg := DefaultConfig().SQL
	cfg.Driver = "duckdb"
	cfg.RateColumn = "rate; DROP TABLE x"

	if _, err := NewSQLFromDB(nil, cfg); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}
