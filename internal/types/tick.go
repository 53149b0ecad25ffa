package types

import (
	"time"

	"github.com/xtxerr/gemrate/internal/errors"
)

// Window lengths in seconds.
const (
	OneHour int64 = 3600
	OneDay  int64 = 86400
	OneWeek int64 = 604800
)

// Tick is one observed exchange rate. Timestamp is in epoch seconds.
type Tick struct {
	Timestamp int64
	Rate      int64
}

// Time returns the tick timestamp as a time.Time.
func (t Tick) Time() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// ceilDiv returns ceil(a/b) for b > 0. Go integer division truncates
// toward zero, which is already the ceiling for negative a.
func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && a > 0 {
		q++
	}
	return q
}

// CeilToHour rounds ts up to the next hour boundary. A timestamp already on
// a boundary maps to itself.
func CeilToHour(ts int64) int64 {
	return ceilDiv(ts, OneHour) * OneHour
}

// CeilToDay rounds ts up to the next day boundary (UTC).
func CeilToDay(ts int64) int64 {
	return ceilDiv(ts, OneDay) * OneDay
}

// CeilToWeek rounds ts up to the next multiple of one week since the epoch.
func CeilToWeek(ts int64) int64 {
	return ceilDiv(ts, OneWeek) * OneWeek
}

// ValidateBatch checks that timestamps never decrease, starting from cursor
// when one is set. Equal timestamps are allowed; the engine skips them.
func ValidateBatch(ticks []Tick, cursor *int64) error {
	var prev int64
	havePrev := cursor != nil
	if havePrev {
		prev = *cursor
	}

	for i, t := range ticks {
		if havePrev && t.Timestamp < prev {
			return errors.NewOutOfOrder(i, t.Timestamp, prev)
		}
		prev = t.Timestamp
		havePrev = true
	}
	return nil
}
