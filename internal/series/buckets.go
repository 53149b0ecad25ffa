package series

import (
	"maps"
	"slices"
)

// hourIndex maps an hour boundary to the timestamps of the ticks that round
// up to it. After a bucket is collapsed its entry holds only the boundary.
type hourIndex map[int64][]int64

func (idx hourIndex) add(hour, ts int64) {
	idx[hour] = append(idx[hour], ts)
}

// collapsed reports whether bucket hour needs no further collapsing.
func (idx hourIndex) collapsed(hour int64) bool {
	members := idx[hour]
	return len(members) == 0 || (len(members) == 1 && members[0] == hour)
}

func (idx hourIndex) clone() map[int64][]int64 {
	out := make(map[int64][]int64, len(idx))
	for h, members := range idx {
		out[h] = slices.Clone(members)
	}
	return out
}

func (idx hourIndex) hours() []int64 {
	return slices.Sorted(maps.Keys(idx))
}

// keyedSeries maps epoch seconds to a value.
type keyedSeries map[int64]float64

// entries returns the series sorted by timestamp.
func (s keyedSeries) entries() []Entry {
	keys := slices.Sorted(maps.Keys(s))
	out := make([]Entry, len(keys))
	for i, ts := range keys {
		out[i] = Entry{Timestamp: ts, Value: s[ts]}
	}
	return out
}

// collapseScratch holds the per-bucket value buffers reused across
// collapses. It carries no state between ticks and is never persisted.
type collapseScratch struct {
	raw    []float64
	daily  []float64
	weekly []float64
}

func (s *collapseScratch) reset() {
	s.raw = s.raw[:0]
	s.daily = s.daily[:0]
	s.weekly = s.weekly[:0]
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
