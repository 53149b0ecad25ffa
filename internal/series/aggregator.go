package series

import (
	"github.com/xtxerr/gemrate/internal/types"
)

// Entry is one series value keyed by epoch second.
type Entry struct {
	Timestamp int64
	Value     float64
}

// Result summarizes one Advance call.
type Result struct {
	// Processed is the number of ticks folded into the series.
	Processed int
	// Duplicates is the number of ticks skipped because their timestamp
	// equals the previously processed one.
	Duplicates int
	// Collapsed is the number of hour buckets reduced to a single point.
	Collapsed int
	// Cursor is the last processed timestamp, nil if nothing was ever
	// processed.
	Cursor *int64
}

// Aggregator maintains the raw, 24 hour and 7 day series of one dataset.
type Aggregator struct {
	raw    keyedSeries
	daily  keyedSeries
	weekly keyedSeries
	hours  hourIndex

	day  *trailingWindow
	week *trailingWindow

	cursor    int64
	hasCursor bool

	scratch collapseScratch
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		raw:    make(keyedSeries),
		daily:  make(keyedSeries),
		weekly: make(keyedSeries),
		hours:  make(hourIndex),
		day:    newTrailingWindow(types.OneDay),
		week:   newTrailingWindow(types.OneWeek),
	}
}

// Cursor returns the timestamp of the last processed tick, nil before the
// first one.
func (a *Aggregator) Cursor() *int64 {
	if !a.hasCursor {
		return nil
	}
	c := a.cursor
	return &c
}

// Advance folds ticks into the series. Ticks must be ordered by timestamp;
// a batch containing a decreasing timestamp is rejected as a whole with a
// *errors.MalformedInputError and leaves the Aggregator untouched. Ticks
// whose timestamp equals the previous one are skipped.
func (a *Aggregator) Advance(ticks []types.Tick) (Result, error) {
	var res Result

	if err := types.ValidateBatch(ticks, a.Cursor()); err != nil {
		res.Cursor = a.Cursor()
		return res, err
	}

	for _, t := range ticks {
		if a.hasCursor && t.Timestamp == a.cursor {
			res.Duplicates++
			continue
		}
		res.Collapsed += a.processTick(t)
		res.Processed++
	}

	res.Cursor = a.Cursor()
	return res, nil
}

func (a *Aggregator) processTick(t types.Tick) int {
	ts := t.Timestamp

	a.hours.add(types.CeilToHour(ts), ts)
	a.raw[ts] = float64(t.Rate)
	a.day.push(t)
	a.week.push(t)

	collapsed := 0
	if a.hasCursor {
		a.day.evictOlderThan(ts)
		a.week.evictOlderThan(ts)

		// Buckets that fell out of the last 24 hours since the previous
		// tick. Consecutive ranges are disjoint, so each bucket is walked
		// once over the life of the Aggregator.
		from := types.CeilToHour(a.cursor - types.OneDay)
		to := types.CeilToHour(ts - types.OneDay)
		for h := from; h < to; h += types.OneHour {
			if a.collapse(h) {
				collapsed++
			}
		}
	}

	if avg, ok := a.day.mean(); ok {
		a.daily[ts] = avg
	}
	if avg, ok := a.week.mean(); ok {
		a.weekly[ts] = avg
	}

	a.cursor = ts
	a.hasCursor = true
	return collapsed
}

// collapse replaces the fine-grained points of bucket hour with one point
// at hour in all three series.
func (a *Aggregator) collapse(hour int64) bool {
	if a.hours.collapsed(hour) {
		return false
	}

	s := &a.scratch
	s.reset()
	for _, ts := range a.hours[hour] {
		if v, ok := a.raw[ts]; ok {
			s.raw = append(s.raw, v)
		}
		if v, ok := a.daily[ts]; ok {
			s.daily = append(s.daily, v)
		}
		if v, ok := a.weekly[ts]; ok {
			s.weekly = append(s.weekly, v)
		}
	}

	for _, ts := range a.hours[hour] {
		delete(a.raw, ts)
		delete(a.daily, ts)
		delete(a.weekly, ts)
	}

	if v, ok := mean(s.raw); ok {
		a.raw[hour] = v
	}
	if v, ok := mean(s.daily); ok {
		a.daily[hour] = v
	}
	if v, ok := mean(s.weekly); ok {
		a.weekly[hour] = v
	}

	a.hours[hour] = []int64{hour}
	return true
}

// RawSeries returns every retained rate, sorted by timestamp.
func (a *Aggregator) RawSeries() []types.Point {
	return toPoints(a.raw)
}

// DailyAverageSeries returns the trailing 24 hour averages, sorted by
// timestamp.
func (a *Aggregator) DailyAverageSeries() []types.Point {
	return toPoints(a.daily)
}

// WeeklyAverageSeries returns the trailing 7 day averages, sorted by
// timestamp.
func (a *Aggregator) WeeklyAverageSeries() []types.Point {
	return toPoints(a.weekly)
}

// Series returns the series selected by name.
func (a *Aggregator) Series(name types.SeriesName) []types.Point {
	switch name {
	case types.SeriesDaily:
		return a.DailyAverageSeries()
	case types.SeriesWeekly:
		return a.WeeklyAverageSeries()
	default:
		return a.RawSeries()
	}
}

// DayWindow returns the ticks of the last 24 hours in arrival order.
func (a *Aggregator) DayWindow() []types.Tick {
	return a.day.snapshot()
}

// WeekWindow returns the ticks of the last 7 days in arrival order.
func (a *Aggregator) WeekWindow() []types.Tick {
	return a.week.snapshot()
}

// Len returns the number of points in the raw series.
func (a *Aggregator) Len() int {
	return len(a.raw)
}

func toPoints(s keyedSeries) []types.Point {
	entries := s.entries()
	out := make([]types.Point, len(entries))
	for i, e := range entries {
		out[i] = types.NewPoint(e.Timestamp, e.Value)
	}
	return out
}
