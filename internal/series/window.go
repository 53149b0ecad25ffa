package series

import "github.com/xtxerr/gemrate/internal/types"

// trailingWindow holds the ticks of a trailing time window in arrival
// order together with their running rate sum, so the window mean is O(1).
type trailingWindow struct {
	span  int64
	ticks []types.Tick
	head  int
	sum   int64
}

func newTrailingWindow(span int64) *trailingWindow {
	return &trailingWindow{span: span}
}

func (w *trailingWindow) push(t types.Tick) {
	w.ticks = append(w.ticks, t)
	w.sum += t.Rate
}

// evictOlderThan drops every tick more than span seconds before latest.
func (w *trailingWindow) evictOlderThan(latest int64) int {
	cutoff := latest - w.span
	n := 0
	for w.head < len(w.ticks) && w.ticks[w.head].Timestamp < cutoff {
		w.sum -= w.ticks[w.head].Rate
		w.head++
		n++
	}

	// Compact once the dead prefix dominates the backing array.
	if w.head > 0 && w.head >= len(w.ticks)/2 {
		live := copy(w.ticks, w.ticks[w.head:])
		clear(w.ticks[live:])
		w.ticks = w.ticks[:live]
		w.head = 0
	}
	return n
}

func (w *trailingWindow) len() int {
	return len(w.ticks) - w.head
}

// mean returns the average rate, false for an empty window.
func (w *trailingWindow) mean() (float64, bool) {
	n := w.len()
	if n == 0 {
		return 0, false
	}
	return float64(w.sum) / float64(n), true
}

func (w *trailingWindow) snapshot() []types.Tick {
	out := make([]types.Tick, w.len())
	copy(out, w.ticks[w.head:])
	return out
}

func (w *trailingWindow) reset(ticks []types.Tick) {
	w.ticks = append(w.ticks[:0:0], ticks...)
	w.head = 0
	w.sum = 0
	for _, t := range w.ticks {
		w.sum += t.Rate
	}
}
