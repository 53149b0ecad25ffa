package series

import (
	"math"
	"reflect"
	"testing"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/types"
)

// base is an hour-aligned epoch second.
const base int64 = 472222 * 3600

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func pointMap(points []types.Point) map[int64]float64 {
	m := make(map[int64]float64, len(points))
	for _, p := range points {
		m[p.Timestamp()] = p.Value
	}
	return m
}

func mustAdvance(t *testing.T, a *Aggregator, ticks ...types.Tick) Result {
	t.Helper()
	res, err := a.Advance(ticks)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return res
}

// irregularTicks produces ticks with gaps from seconds to several hours,
// bursts within one hour and a two day outage, across about three weeks.
func irregularTicks() []types.Tick {
	gaps := []int64{1, 59, 600, 1799, 3600, 7, 3601, 5400, 13, 900, 21600, 2}
	var ticks []types.Tick
	ts := base + 17
	for i := 0; i < 600; i++ {
		ticks = append(ticks, types.Tick{Timestamp: ts, Rate: int64(1000 + (i*37)%500)})
		ts += gaps[i%len(gaps)]
		if i == 300 {
			ts += 2 * types.OneDay
		}
	}
	return ticks
}

func TestAdvance_AverageScenario(t *testing.T) {
	for _, step := range []int64{60, types.OneHour} {
		a := New()
		t0 := base + 123

		mustAdvance(t, a,
			types.Tick{Timestamp: t0, Rate: 100},
			types.Tick{Timestamp: t0 + step, Rate: 200},
			types.Tick{Timestamp: t0 + 2*step, Rate: 300},
		)

		daily := pointMap(a.DailyAverageSeries())
		weekly := pointMap(a.WeeklyAverageSeries())

		want := map[int64]float64{t0: 100, t0 + step: 150, t0 + 2*step: 200}
		for ts, v := range want {
			if !approx(daily[ts], v) {
				t.Errorf("step %d: daily[%d] = %f, want %f", step, ts, daily[ts], v)
			}
			if !approx(weekly[ts], v) {
				t.Errorf("step %d: weekly[%d] = %f, want %f", step, ts, weekly[ts], v)
			}
		}

		raw := a.RawSeries()
		if len(raw) != 3 || raw[0].TimestampMs != t0*1000 || raw[2].Value != 300 {
			t.Errorf("step %d: unexpected raw series: %v", step, raw)
		}
	}
}

func TestAdvance_HourlyTicksCollapse(t *testing.T) {
	a := New()
	t0 := base + 1800

	var ticks []types.Tick
	for i := int64(0); i < 30; i++ {
		ticks = append(ticks, types.Tick{Timestamp: t0 + i*types.OneHour, Rate: 100 + i})
	}
	res := mustAdvance(t, a, ticks...)

	if res.Processed != 30 {
		t.Errorf("Processed = %d, want 30", res.Processed)
	}
	if res.Collapsed != 5 {
		t.Errorf("Collapsed = %d, want 5", res.Collapsed)
	}

	raw := pointMap(a.RawSeries())
	daily := pointMap(a.DailyAverageSeries())
	if len(raw) != 30 {
		t.Fatalf("raw has %d points, want 30", len(raw))
	}

	last := ticks[29].Timestamp
	for i, tk := range ticks {
		if last-tk.Timestamp <= types.OneDay {
			// Last 24 hours stay at full resolution.
			if v, ok := raw[tk.Timestamp]; !ok || v != float64(tk.Rate) {
				t.Errorf("tick %d: raw[%d] = %v, %v; want full resolution", i, tk.Timestamp, v, ok)
			}
			continue
		}

		hour := types.CeilToHour(tk.Timestamp)
		if _, ok := raw[tk.Timestamp]; ok {
			t.Errorf("tick %d: fine-grained key %d should be collapsed", i, tk.Timestamp)
		}
		if raw[hour] != float64(tk.Rate) {
			t.Errorf("tick %d: raw[%d] = %f, want %d", i, hour, raw[hour], tk.Rate)
		}
		// One tick per bucket, so the collapsed daily value is the daily
		// average taken at that tick: mean(100..100+i).
		if want := 100 + float64(i)/2; !approx(daily[hour], want) {
			t.Errorf("tick %d: daily[%d] = %f, want %f", i, hour, daily[hour], want)
		}
	}
}

func TestAdvance_CollapseAveragesBucket(t *testing.T) {
	a := New()

	mustAdvance(t, a,
		types.Tick{Timestamp: base + 600, Rate: 100},
		types.Tick{Timestamp: base + 1200, Rate: 200},
		types.Tick{Timestamp: base + 1800, Rate: 300},
	)

	late := base + types.OneHour + types.OneDay + 1
	res := mustAdvance(t, a, types.Tick{Timestamp: late, Rate: 50})
	if res.Collapsed != 1 {
		t.Fatalf("Collapsed = %d, want 1", res.Collapsed)
	}

	hour := base + types.OneHour
	wantRaw := []types.Point{types.NewPoint(hour, 200), types.NewPoint(late, 50)}
	if got := a.RawSeries(); !reflect.DeepEqual(got, wantRaw) {
		t.Errorf("raw = %v, want %v", got, wantRaw)
	}

	// Daily at the bucketed ticks was 100, 150, 200.
	wantDaily := []types.Point{types.NewPoint(hour, 150), types.NewPoint(late, 50)}
	if got := a.DailyAverageSeries(); !reflect.DeepEqual(got, wantDaily) {
		t.Errorf("daily = %v, want %v", got, wantDaily)
	}

	// The week window still holds all four ticks.
	weekly := pointMap(a.WeeklyAverageSeries())
	if !approx(weekly[late], 162.5) {
		t.Errorf("weekly[late] = %f, want 162.5", weekly[late])
	}
	if !approx(weekly[hour], 150) {
		t.Errorf("weekly[hour] = %f, want 150", weekly[hour])
	}
}

func TestAdvance_SeriesStayAligned(t *testing.T) {
	a := New()
	mustAdvance(t, a, irregularTicks()...)

	raw := pointMap(a.RawSeries())
	daily := pointMap(a.DailyAverageSeries())
	weekly := pointMap(a.WeeklyAverageSeries())

	if len(raw) != len(daily) || len(raw) != len(weekly) {
		t.Fatalf("series lengths differ: raw=%d daily=%d weekly=%d", len(raw), len(daily), len(weekly))
	}
	for ts := range raw {
		if _, ok := daily[ts]; !ok {
			t.Errorf("daily missing key %d", ts)
		}
		if _, ok := weekly[ts]; !ok {
			t.Errorf("weekly missing key %d", ts)
		}
	}
}

func TestAdvance_WindowsMatchBruteForce(t *testing.T) {
	a := New()
	ticks := irregularTicks()

	for i, tk := range ticks {
		mustAdvance(t, a, tk)

		var wantDay, wantWeek []types.Tick
		var daySum, weekSum int64
		for _, old := range ticks[:i+1] {
			if tk.Timestamp-old.Timestamp <= types.OneDay {
				wantDay = append(wantDay, old)
				daySum += old.Rate
			}
			if tk.Timestamp-old.Timestamp <= types.OneWeek {
				wantWeek = append(wantWeek, old)
				weekSum += old.Rate
			}
		}

		if got := a.DayWindow(); !reflect.DeepEqual(got, wantDay) {
			t.Fatalf("tick %d: day window has %d ticks, want %d", i, len(got), len(wantDay))
		}
		if got := a.WeekWindow(); !reflect.DeepEqual(got, wantWeek) {
			t.Fatalf("tick %d: week window has %d ticks, want %d", i, len(got), len(wantWeek))
		}

		// The newest tick is never collapsed, so its averages are visible.
		daily := pointMap(a.DailyAverageSeries())
		weekly := pointMap(a.WeeklyAverageSeries())
		if want := float64(daySum) / float64(len(wantDay)); !approx(daily[tk.Timestamp], want) {
			t.Fatalf("tick %d: daily = %f, want %f", i, daily[tk.Timestamp], want)
		}
		if want := float64(weekSum) / float64(len(wantWeek)); !approx(weekly[tk.Timestamp], want) {
			t.Fatalf("tick %d: weekly = %f, want %f", i, weekly[tk.Timestamp], want)
		}
	}
}

func TestAdvance_MonotonicCollapse(t *testing.T) {
	a := New()
	ticks := irregularTicks()
	mustAdvance(t, a, ticks...)

	last := ticks[len(ticks)-1].Timestamp
	horizon := types.CeilToHour(last - types.OneDay)

	perBucket := make(map[int64]int)
	for _, p := range a.RawSeries() {
		ts := p.Timestamp()
		if ts >= horizon-types.OneHour {
			continue
		}
		if ts%types.OneHour != 0 {
			t.Errorf("key %d older than 24h is not an hour boundary", ts)
		}
		perBucket[types.CeilToHour(ts)]++
	}
	for h, n := range perBucket {
		if n > 1 {
			t.Errorf("bucket %d has %d points", h, n)
		}
	}
	if len(perBucket) == 0 {
		t.Fatal("expected collapsed history")
	}
}

func TestAccessors_SortedAndIdempotent(t *testing.T) {
	a := New()
	mustAdvance(t, a, irregularTicks()...)

	for _, name := range types.AllSeries() {
		first := a.Series(name)
		second := a.Series(name)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: repeated reads differ", name)
		}
		for i := 1; i < len(first); i++ {
			if first[i].TimestampMs <= first[i-1].TimestampMs {
				t.Fatalf("%s: not strictly ascending at %d", name, i)
			}
		}
	}
}

func TestAdvance_RejectsOutOfOrderBatch(t *testing.T) {
	a := New()
	mustAdvance(t, a, types.Tick{Timestamp: base + 100, Rate: 1})
	before := a.State()

	res, err := a.Advance([]types.Tick{
		{Timestamp: base + 200, Rate: 2},
		{Timestamp: base + 150, Rate: 3},
	})
	if !errors.Is(err, errors.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	var mi *errors.MalformedInputError
	if !errors.As(err, &mi) || mi.Index != 1 || mi.Previous != base+200 {
		t.Errorf("unexpected error detail: %v", err)
	}
	if res.Processed != 0 {
		t.Errorf("Processed = %d, want 0", res.Processed)
	}
	if !reflect.DeepEqual(a.State(), before) {
		t.Error("rejected batch modified state")
	}

	if _, err := a.Advance([]types.Tick{{Timestamp: base + 50, Rate: 1}}); !errors.Is(err, errors.ErrMalformedInput) {
		t.Errorf("tick before cursor: expected ErrMalformedInput, got %v", err)
	}
}

func TestAdvance_DuplicatesAndEmpty(t *testing.T) {
	a := New()

	res := mustAdvance(t, a)
	if res.Processed != 0 || res.Cursor != nil {
		t.Errorf("empty batch on empty aggregator: %+v", res)
	}

	mustAdvance(t, a, types.Tick{Timestamp: base, Rate: 10})
	res = mustAdvance(t, a,
		types.Tick{Timestamp: base, Rate: 999},
		types.Tick{Timestamp: base + 5, Rate: 20},
		types.Tick{Timestamp: base + 5, Rate: 999},
	)
	if res.Processed != 1 || res.Duplicates != 2 {
		t.Errorf("Processed=%d Duplicates=%d, want 1 and 2", res.Processed, res.Duplicates)
	}
	if *res.Cursor != base+5 {
		t.Errorf("cursor = %d", *res.Cursor)
	}

	raw := pointMap(a.RawSeries())
	if raw[base] != 10 || raw[base+5] != 20 {
		t.Errorf("duplicates overwrote values: %v", raw)
	}
}

func TestAdvance_FirstTickNegativeRange(t *testing.T) {
	// Timestamps close to the epoch make the collapse walk start below zero.
	a := New()
	mustAdvance(t, a,
		types.Tick{Timestamp: 10, Rate: 1},
		types.Tick{Timestamp: 20, Rate: 3},
		types.Tick{Timestamp: types.OneDay + 3601, Rate: 5},
	)

	raw := pointMap(a.RawSeries())
	if raw[types.OneHour] != 2 {
		t.Errorf("raw[3600] = %f, want 2", raw[types.OneHour])
	}
	if len(raw) != 2 {
		t.Errorf("raw = %v", raw)
	}
}

func TestStateRestoreContinues(t *testing.T) {
	ticks := irregularTicks()
	split := len(ticks) / 2

	whole := New()
	mustAdvance(t, whole, ticks...)

	first := New()
	mustAdvance(t, first, ticks[:split]...)

	resumed, err := Restore(first.State())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if *resumed.Cursor() != ticks[split-1].Timestamp {
		t.Fatalf("restored cursor = %d", *resumed.Cursor())
	}
	mustAdvance(t, resumed, ticks[split:]...)

	for _, name := range types.AllSeries() {
		if !reflect.DeepEqual(whole.Series(name), resumed.Series(name)) {
			t.Errorf("%s differs after restore", name)
		}
	}
}

func TestRestoreRejectsCorruptState(t *testing.T) {
	cursor := base
	tests := []struct {
		name string
		st   State
	}{
		{"window out of order", State{Cursor: &cursor, DayWindow: []types.Tick{{Timestamp: base, Rate: 1}, {Timestamp: base - 1, Rate: 1}}}},
		{"window without cursor", State{WeekWindow: []types.Tick{{Timestamp: base, Rate: 1}}}},
		{"window after cursor", State{Cursor: &cursor, DayWindow: []types.Tick{{Timestamp: base + 1, Rate: 1}}}},
		{"series without cursor", State{Raw: []Entry{{base, 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Restore(tt.st); !errors.Is(err, errors.ErrCorruptSnapshot) {
				t.Errorf("expected ErrCorruptSnapshot, got %v", err)
			}
		})
	}
}

func TestTrailingWindowCompaction(t *testing.T) {
	w := newTrailingWindow(10)
	for ts := int64(0); ts < 100; ts++ {
		w.push(types.Tick{Timestamp: ts, Rate: ts})
		w.evictOlderThan(ts)
	}

	if w.len() != 11 {
		t.Errorf("len = %d, want 11", w.len())
	}
	if m, _ := w.mean(); !approx(m, 94) {
		t.Errorf("mean = %f, want 94", m)
	}
	if cap(w.ticks) > 64 {
		t.Errorf("backing array not compacted: cap=%d", cap(w.ticks))
	}

	empty := newTrailingWindow(10)
	if _, ok := empty.mean(); ok {
		t.Error("empty window should have no mean")
	}
}
