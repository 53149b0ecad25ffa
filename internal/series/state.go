package series

import (
	"fmt"
	"slices"

	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/types"
)

// State is the durable part of an Aggregator: everything needed to resume
// advancing after a restart. Scratch buffers are not part of it.
type State struct {
	Cursor *int64

	Raw    []Entry
	Daily  []Entry
	Weekly []Entry

	// Hours maps an hour boundary to the timestamps bucketed under it.
	Hours map[int64][]int64

	DayWindow  []types.Tick
	WeekWindow []types.Tick
}

// State exports a deep copy of the durable state.
func (a *Aggregator) State() State {
	return State{
		Cursor:     a.Cursor(),
		Raw:        a.raw.entries(),
		Daily:      a.daily.entries(),
		Weekly:     a.weekly.entries(),
		Hours:      a.hours.clone(),
		DayWindow:  a.day.snapshot(),
		WeekWindow: a.week.snapshot(),
	}
}

// Restore builds an Aggregator from previously exported state.
func Restore(st State) (*Aggregator, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}

	a := New()
	for _, e := range st.Raw {
		a.raw[e.Timestamp] = e.Value
	}
	for _, e := range st.Daily {
		a.daily[e.Timestamp] = e.Value
	}
	for _, e := range st.Weekly {
		a.weekly[e.Timestamp] = e.Value
	}
	for h, members := range st.Hours {
		a.hours[h] = slices.Clone(members)
	}
	a.day.reset(st.DayWindow)
	a.week.reset(st.WeekWindow)

	if st.Cursor != nil {
		a.cursor = *st.Cursor
		a.hasCursor = true
	}

	return a, nil
}

// Validate checks the structural consistency of the state.
func (st State) Validate() error {
	for name, w := range map[string][]types.Tick{"day window": st.DayWindow, "week window": st.WeekWindow} {
		for i := 1; i < len(w); i++ {
			if w[i].Timestamp < w[i-1].Timestamp {
				return fmt.Errorf("%s out of order at %d: %w", name, i, errors.ErrCorruptSnapshot)
			}
		}
		if len(w) > 0 && st.Cursor == nil {
			return fmt.Errorf("%s without cursor: %w", name, errors.ErrCorruptSnapshot)
		}
		if len(w) > 0 && w[len(w)-1].Timestamp > *st.Cursor {
			return fmt.Errorf("%s ends after cursor: %w", name, errors.ErrCorruptSnapshot)
		}
	}

	if len(st.Raw) > 0 && st.Cursor == nil {
		return fmt.Errorf("series without cursor: %w", errors.ErrCorruptSnapshot)
	}
	return nil
}
