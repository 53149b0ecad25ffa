// Package dataset binds a series aggregator to a tick source and manages
// its refresh cycle.
//
// A Dataset is Stale or Fresh. The first read in a refresh cycle fetches
// every tick newer than the aggregator cursor, advances and marks the
// dataset Fresh; later reads in the same cycle are served from memory.
// Invalidate starts a new cycle.
package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/constants"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/series"
	"github.com/xtxerr/gemrate/internal/source"
	"github.com/xtxerr/gemrate/internal/stats"
	"github.com/xtxerr/gemrate/internal/types"
)

var log = logging.Component("dataset")

// Archiver receives every batch that advanced a dataset.
type Archiver interface {
	Write(kind types.Kind, ticks []types.Tick) error
}

// Options configures a Dataset.
type Options struct {
	// FetchTimeout bounds one FetchTicksSince call. Zero disables it.
	FetchTimeout time.Duration

	// Archiver is optional.
	Archiver Archiver

	// SketchAccuracy is the relative accuracy of summary quantiles. Zero
	// or less disables quantiles.
	SketchAccuracy float64
}

// DefaultOptions returns the default dataset options.
func DefaultOptions() Options {
	return Options{
		FetchTimeout:   config.DefaultFetchTimeout,
		SketchAccuracy: config.DefaultSketchAccuracy,
	}
}

// Line is one labelled series of a chart.
type Line struct {
	Label string        `json:"label"`
	Data  []types.Point `json:"data"`
}

// Chart is the raw, 24 hour and 7 day series of a dataset, in that order.
type Chart []Line

// Summary describes the trailing windows of a dataset.
type Summary struct {
	Kind   string        `json:"kind"`
	Cursor *int64        `json:"cursor"`
	Day    stats.Summary `json:"day"`
	Week   stats.Summary `json:"week"`
}

// Health is the refresh status of a dataset.
type Health struct {
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Cursor    *int64    `json:"cursor"`
	Points    int       `json:"points"`
	Fetches   int64     `json:"fetches"`
	Ticks     int64     `json:"ticks"`
	LastFetch time.Time `json:"last_fetch,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Dataset is one aggregator fed by one source. All methods are safe for
// concurrent use; a single mutex covers fetch, advance and read.
type Dataset struct {
	mu sync.Mutex

	kind types.Kind
	src  source.Source
	opts Options

	agg   *series.Aggregator
	state string

	fetches   int64
	ticks     int64
	lastFetch time.Time
	lastErr   error
}

// New creates a Stale dataset of kind reading from src.
func New(kind types.Kind, src source.Source, opts Options) *Dataset {
	return &Dataset{
		kind:  kind,
		src:   src,
		opts:  opts,
		agg:   series.New(),
		state: constants.DatasetStateStale,
	}
}

// Kind returns the dataset kind.
func (d *Dataset) Kind() types.Kind {
	return d.kind
}

// Invalidate starts a new refresh cycle: the next read fetches again.
func (d *Dataset) Invalidate() {
	d.mu.Lock()
	d.state = constants.DatasetStateStale
	d.mu.Unlock()
}

// Refresh fetches and advances regardless of the refresh state.
func (d *Dataset) Refresh(ctx context.Context) (series.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetchLocked(ctx)
}

// ensureFresh fetches once per refresh cycle. Callers hold d.mu.
func (d *Dataset) ensureFresh(ctx context.Context) error {
	if d.state == constants.DatasetStateFresh {
		return nil
	}
	_, err := d.fetchLocked(ctx)
	return err
}

func (d *Dataset) fetchLocked(ctx context.Context) (series.Result, error) {
	if d.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.FetchTimeout)
		defer cancel()
	}

	cursor := d.agg.Cursor()
	d.fetches++
	d.lastFetch = time.Now()

	ticks, err := d.src.FetchTicksSince(ctx, d.kind, cursor)
	if err != nil {
		d.lastErr = err
		log.Warn("fetch failed", "kind", d.kind, "source", d.src.Name(), "error", err)
		return series.Result{Cursor: cursor}, fmt.Errorf("fetch %s: %w", d.kind, err)
	}

	res, err := d.agg.Advance(ticks)
	if err != nil {
		d.lastErr = err
		log.Error("rejected batch", "kind", d.kind, "ticks", len(ticks), "error", err)
		return res, fmt.Errorf("advance %s: %w", d.kind, err)
	}

	d.state = constants.DatasetStateFresh
	d.lastErr = nil
	d.ticks += int64(res.Processed)

	if res.Processed > 0 {
		log.Debug("advanced",
			"kind", d.kind,
			"processed", res.Processed,
			"collapsed", res.Collapsed,
			"cursor", *res.Cursor)
		d.archive(ticks)
	}

	return res, nil
}

// archive hands the batch to the archiver. A failed archive write does not
// fail the read that triggered it.
func (d *Dataset) archive(ticks []types.Tick) {
	if d.opts.Archiver == nil {
		return
	}
	if err := d.opts.Archiver.Write(d.kind, ticks); err != nil {
		log.Warn("archive batch failed", "kind", d.kind, "ticks", len(ticks), "error", err)
	}
}

// read runs fn against a fresh aggregator.
func (d *Dataset) read(ctx context.Context, fn func(a *series.Aggregator)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureFresh(ctx); err != nil {
		return err
	}
	fn(d.agg)
	return nil
}

// Raw returns the raw series.
func (d *Dataset) Raw(ctx context.Context) ([]types.Point, error) {
	return d.Series(ctx, types.SeriesRaw)
}

// Daily returns the trailing 24 hour average series.
func (d *Dataset) Daily(ctx context.Context) ([]types.Point, error) {
	return d.Series(ctx, types.SeriesDaily)
}

// Weekly returns the trailing 7 day average series.
func (d *Dataset) Weekly(ctx context.Context) ([]types.Point, error) {
	return d.Series(ctx, types.SeriesWeekly)
}

// Series returns the named series.
func (d *Dataset) Series(ctx context.Context, name types.SeriesName) ([]types.Point, error) {
	var pts []types.Point
	err := d.read(ctx, func(a *series.Aggregator) {
		pts = a.Series(name)
	})
	return pts, err
}

// Chart returns all three series. They are read under one lock so the
// lines always share a cursor.
func (d *Dataset) Chart(ctx context.Context) (Chart, error) {
	var chart Chart
	err := d.read(ctx, func(a *series.Aggregator) {
		chart = Chart{
			{Label: constants.LabelRaw, Data: a.RawSeries()},
			{Label: constants.LabelDaily, Data: a.DailyAverageSeries()},
			{Label: constants.LabelWeekly, Data: a.WeeklyAverageSeries()},
		}
	})
	return chart, err
}

// Summary returns statistics over the trailing windows.
func (d *Dataset) Summary(ctx context.Context) (Summary, error) {
	var (
		cursor    *int64
		day, week []types.Tick
	)
	err := d.read(ctx, func(a *series.Aggregator) {
		cursor = a.Cursor()
		day = a.DayWindow()
		week = a.WeekWindow()
	})
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Kind:   d.kind.String(),
		Cursor: cursor,
		Day:    stats.Summarize(day, d.opts.SketchAccuracy),
		Week:   stats.Summarize(week, d.opts.SketchAccuracy),
	}, nil
}

// Health returns the refresh status without fetching.
func (d *Dataset) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := Health{
		Kind:      d.kind.String(),
		State:     d.state,
		Cursor:    d.agg.Cursor(),
		Points:    d.agg.Len(),
		Fetches:   d.fetches,
		Ticks:     d.ticks,
		LastFetch: d.lastFetch,
	}
	if d.lastErr != nil {
		h.LastError = d.lastErr.Error()
	}
	return h
}

// State returns a copy of the durable aggregator state.
func (d *Dataset) State() series.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.agg.State()
}

// Restore replaces the aggregator with one rebuilt from st. The dataset
// becomes Stale so the next read catches up from the restored cursor.
func (d *Dataset) Restore(st series.State) error {
	agg, err := series.Restore(st)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.agg = agg
	d.state = constants.DatasetStateStale
	return nil
}
