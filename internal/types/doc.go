// Package types defines the core data types used throughout gemrate.
//
// Key types:
//   - Tick: one observed exchange rate at an epoch second
//   - Point: one chart point, serialized as [timestamp_ms, value]
//   - Kind: exchange direction (gem_to_gold, gold_to_gem)
//   - SeriesName: raw, daily or weekly series
package types
