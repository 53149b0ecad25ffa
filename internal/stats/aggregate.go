// Package stats computes rate summaries over the trailing windows of a
// dataset: running count, sum, min and max plus DDSketch quantiles.
package stats

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/gemrate/internal/types"
)

// DefaultAccuracy is the relative accuracy of quantile estimates.
const DefaultAccuracy = 0.01

// Summary is the result of an Aggregate.
type Summary struct {
	Count   int64   `json:"count"`
	Sum     float64 `json:"sum"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	FirstTs int64   `json:"first_ts"`
	LastTs  int64   `json:"last_ts"`

	P50 *float64 `json:"p50,omitempty"`
	P90 *float64 `json:"p90,omitempty"`
	P95 *float64 `json:"p95,omitempty"`
	P99 *float64 `json:"p99,omitempty"`
}

// HasPercentiles reports whether quantiles were computed.
func (s Summary) HasPercentiles() bool {
	return s.P50 != nil
}

func (s *Summary) setPercentiles(p50, p90, p95, p99 float64) {
	s.P50, s.P90, s.P95, s.P99 = &p50, &p90, &p95, &p99
}

// Aggregate maintains running statistics over a stream of rates.
type Aggregate struct {
	mu sync.Mutex

	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// nil if percentiles are disabled
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates an Aggregate. accuracy <= 0 disables percentiles.
func New(accuracy float64) *Aggregate {
	agg := &Aggregate{
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
		accuracy: accuracy,
	}
	agg.sketch = newSketch(accuracy)
	return agg
}

func newSketch(accuracy float64) *ddsketch.DDSketch {
	if accuracy <= 0 {
		return nil
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil
	}
	return sketch
}

// Add adds a value observed at timestamp (epoch seconds).
func (a *Aggregate) Add(value float64, timestamp int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.count == 1 || timestamp < a.firstTs {
		a.firstTs = timestamp
	}
	if timestamp > a.lastTs {
		a.lastTs = timestamp
	}

	if a.sketch != nil {
		// DDSketch only rejects NaN and infinities.
		_ = a.sketch.Add(value)
	}
}

// AddTicks adds every tick rate.
func (a *Aggregate) AddTicks(ticks []types.Tick) {
	for _, t := range ticks {
		a.Add(float64(t.Rate), t.Timestamp)
	}
}

// Count returns the number of values added.
func (a *Aggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Result returns the summary of all values added so far.
func (a *Aggregate) Result() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := Summary{
		Count:   a.count,
		Sum:     a.sum,
		FirstTs: a.firstTs,
		LastTs:  a.lastTs,
	}

	if a.count > 0 {
		result.Avg = a.sum / float64(a.count)
		result.Min = a.min
		result.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		result.setPercentiles(p50, p90, p95, p99)
	}

	return result
}

// Reset clears the aggregate.
func (a *Aggregate) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count = 0
	a.sum = 0
	a.min = math.MaxFloat64
	a.max = -math.MaxFloat64
	a.firstTs = 0
	a.lastTs = 0

	// DDSketch has no Clear method.
	if a.sketch != nil {
		a.sketch = newSketch(a.accuracy)
	}
}

// Merge combines another aggregate into this one.
func (a *Aggregate) Merge(other *Aggregate) {
	if other == nil || a == other {
		return
	}

	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	if other.count == 0 {
		return
	}

	if a.count == 0 || other.firstTs < a.firstTs {
		a.firstTs = other.firstTs
	}
	if other.lastTs > a.lastTs {
		a.lastTs = other.lastTs
	}

	a.count += other.count
	a.sum += other.sum

	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}

	if a.sketch != nil && other.sketch != nil {
		_ = a.sketch.MergeWith(other.sketch)
	}
}

// Summarize builds a summary over ticks in one call.
func Summarize(ticks []types.Tick, accuracy float64) Summary {
	agg := New(accuracy)
	agg.AddTicks(ticks)
	return agg.Result()
}
