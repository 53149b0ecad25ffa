// Package series implements the incremental moving-average engine behind
// every gemrate chart.
//
// An Aggregator consumes time-ordered exchange-rate ticks and maintains
// three aligned series keyed by epoch second:
//
//   - raw: every tick rate
//   - daily: mean of all ticks in the trailing 24 hours, taken at each tick
//   - weekly: mean of all ticks in the trailing 7 days, taken at each tick
//
// Ticks older than 24 hours are collapsed to one point per hour. The point
// is keyed by the hour boundary the ticks round up to, and its value in
// each series is the mean of the collapsed values. Per tick, work is
// proportional to the ticks leaving the windows plus the hour buckets
// crossed since the previous tick, so memory stays bounded by one point per
// hour of history plus one week of raw ticks.
//
// Aggregator is not safe for concurrent use; dataset.Dataset serializes
// access to it.
package series
