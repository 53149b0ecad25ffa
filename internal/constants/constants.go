// Package constants provides centralized domain-specific constants
// for the entire gemrate application.
package constants

// =============================================================================
// Dataset State - refresh cycle state of a dataset
// =============================================================================

const (
	// DatasetStateStale means the next read fetches new ticks first.
	DatasetStateStale = "stale"

	// DatasetStateFresh means the dataset already advanced in this cycle.
	DatasetStateFresh = "fresh"
)

// ValidDatasetStates contains all valid dataset state values
var ValidDatasetStates = []string{DatasetStateStale, DatasetStateFresh}

// =============================================================================
// Source Types
// =============================================================================

const (
	// SourceSQL reads ticks from one table per kind via database/sql.
	SourceSQL = "sql"

	// SourceRedis reads ticks from one sorted set per kind.
	SourceRedis = "redis"

	// SourceArchive replays ticks from the Parquet archive.
	SourceArchive = "archive"

	// SourceStatic serves ticks held in memory.
	SourceStatic = "static"
)

// ValidSourceTypes contains all valid source type values
var ValidSourceTypes = []string{SourceSQL, SourceRedis, SourceArchive, SourceStatic}

// IsValidSourceType checks if a source type is valid
func IsValidSourceType(s string) bool {
	for _, v := range ValidSourceTypes {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// SQL Drivers
// =============================================================================

const (
	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"
)

// ValidSQLDrivers contains all supported database/sql driver names
var ValidSQLDrivers = []string{DriverPostgres, DriverDuckDB}

// =============================================================================
// Chart Labels
// =============================================================================

const (
	// LabelRaw is the label of the raw rate line in chart payloads.
	LabelRaw = "Exchange Rate"

	// LabelDaily is the label of the trailing 24 hour average line.
	LabelDaily = "24h Moving Average"

	// LabelWeekly is the label of the trailing 7 day average line.
	LabelWeekly = "7d Moving Average"
)
