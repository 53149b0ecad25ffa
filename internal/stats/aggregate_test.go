package stats

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/xtxerr/gemrate/internal/types"
)

func TestAggregate_Basic(t *testing.T) {
	agg := New(0)

	agg.Add(10.0, 100)
	agg.Add(20.0, 101)
	agg.Add(30.0, 102)

	if agg.Count() != 3 {
		t.Errorf("expected count=3, got %d", agg.Count())
	}

	result := agg.Result()

	if result.Sum != 60.0 {
		t.Errorf("expected sum=60, got %f", result.Sum)
	}
	if result.Min != 10.0 || result.Max != 30.0 {
		t.Errorf("expected min=10 max=30, got %f %f", result.Min, result.Max)
	}
	if math.Abs(result.Avg-20.0) > 0.001 {
		t.Errorf("expected avg=20, got %f", result.Avg)
	}
	if result.FirstTs != 100 || result.LastTs != 102 {
		t.Errorf("unexpected range %d..%d", result.FirstTs, result.LastTs)
	}
	if result.HasPercentiles() {
		t.Error("should not have percentiles")
	}
}

func TestAggregate_WithPercentiles(t *testing.T) {
	agg := New(DefaultAccuracy)

	for i := 1; i <= 100; i++ {
		agg.Add(float64(i), int64(i))
	}

	result := agg.Result()
	if !result.HasPercentiles() {
		t.Fatal("should have percentiles")
	}

	if math.Abs(*result.P50-50.0) > 2.0 {
		t.Errorf("expected P50 near 50, got %f", *result.P50)
	}
	if math.Abs(*result.P95-95.0) > 2.0 {
		t.Errorf("expected P95 near 95, got %f", *result.P95)
	}
	if math.Abs(*result.P99-99.0) > 2.0 {
		t.Errorf("expected P99 near 99, got %f", *result.P99)
	}
}

func TestAggregate_Empty(t *testing.T) {
	result := New(DefaultAccuracy).Result()

	if result.Count != 0 || result.Min != 0 || result.Max != 0 {
		t.Errorf("empty aggregate should report zeros: %+v", result)
	}
	if result.HasPercentiles() {
		t.Error("empty aggregate should not have percentiles")
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := m["p50"]; ok {
		t.Error("p50 should be omitted")
	}
}

func TestAggregate_Reset(t *testing.T) {
	agg := New(DefaultAccuracy)
	agg.Add(10.0, 1)
	agg.Add(20.0, 2)

	agg.Reset()

	if agg.Count() != 0 {
		t.Error("aggregate should be empty after reset")
	}

	agg.Add(5, 3)
	result := agg.Result()
	if result.Min != 5 || result.Max != 5 || result.FirstTs != 3 {
		t.Errorf("unexpected result after reset: %+v", result)
	}
	if !result.HasPercentiles() || math.Abs(*result.P50-5) > 0.1 {
		t.Errorf("sketch not reset: %+v", result)
	}
}

func TestAggregate_Merge(t *testing.T) {
	agg1 := New(DefaultAccuracy)
	agg1.Add(10.0, 5)
	agg1.Add(20.0, 6)

	agg2 := New(DefaultAccuracy)
	agg2.Add(30.0, 1)
	agg2.Add(40.0, 9)

	agg1.Merge(agg2)
	agg1.Merge(nil)
	agg1.Merge(agg1)

	result := agg1.Result()
	if result.Count != 4 {
		t.Errorf("expected count=4, got %d", result.Count)
	}
	if result.Sum != 100.0 {
		t.Errorf("expected sum=100, got %f", result.Sum)
	}
	if result.Min != 10.0 || result.Max != 40.0 {
		t.Errorf("expected min=10 max=40, got %f %f", result.Min, result.Max)
	}
	if result.FirstTs != 1 || result.LastTs != 9 {
		t.Errorf("unexpected range %d..%d", result.FirstTs, result.LastTs)
	}
}

func TestSummarize(t *testing.T) {
	ticks := []types.Tick{{Timestamp: 10, Rate: 100}, {Timestamp: 20, Rate: 300}}
	s := Summarize(ticks, DefaultAccuracy)

	if s.Count != 2 || s.Avg != 200 || s.FirstTs != 10 || s.LastTs != 20 {
		t.Errorf("unexpected summary: %+v", s)
	}
}
