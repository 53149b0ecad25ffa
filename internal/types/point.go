package types

import (
	"encoding/json"
	"fmt"
)

// Point is one chart point. It serializes to the two element JSON array
// [timestamp_ms, value] that charting front ends consume directly.
type Point struct {
	TimestampMs int64
	Value       float64
}

// NewPoint builds a point from an epoch-second timestamp.
func NewPoint(ts int64, value float64) Point {
	return Point{TimestampMs: ts * 1000, Value: value}
}

// Timestamp returns the point timestamp in epoch seconds.
func (p Point) Timestamp() int64 {
	return p.TimestampMs / 1000
}

// MarshalJSON encodes the point as [timestamp_ms, value].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.TimestampMs, p.Value})
}

// UnmarshalJSON decodes a [timestamp_ms, value] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode point: expected 2 elements, got %d", len(pair))
	}

	ts, err := pair[0].Int64()
	if err != nil {
		f, ferr := pair[0].Float64()
		if ferr != nil {
			return fmt.Errorf("decode point timestamp: %w", err)
		}
		ts = int64(f)
	}
	v, err := pair[1].Float64()
	if err != nil {
		return fmt.Errorf("decode point value: %w", err)
	}

	p.TimestampMs = ts
	p.Value = v
	return nil
}
