package source

import (
	"context"
	"slices"
	"sync"

	"github.com/xtxerr/gemrate/internal/types"
)

// Static serves ticks held in memory. It backs the "static" source type
// and stands in for a database in tests.
type Static struct {
	mu      sync.Mutex
	ticks   map[types.Kind][]types.Tick
	err     error
	fetches map[types.Kind]int
}

// NewStatic returns an empty static source.
func NewStatic() *Static {
	return &Static{
		ticks:   make(map[types.Kind][]types.Tick),
		fetches: make(map[types.Kind]int),
	}
}

// NewStaticFromConfig returns a static source seeded from cfg.
func NewStaticFromConfig(cfg StaticConfig) (*Static, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := NewStatic()
	for name, pairs := range cfg.Ticks {
		kind, _ := types.ParseKind(name)
		for _, p := range pairs {
			s.Append(kind, types.Tick{Timestamp: p[0], Rate: p[1]})
		}
	}
	return s, nil
}

// Name returns "static".
func (s *Static) Name() string {
	return "static"
}

// Append adds ticks for kind. Ticks may be appended in any order; fetches
// always return them sorted.
func (s *Static) Append(kind types.Kind, ticks ...types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.ticks[kind], ticks...)
	slices.SortStableFunc(all, func(a, b types.Tick) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	s.ticks[kind] = all
}

// SetError makes every following fetch fail with err until it is reset
// with nil.
func (s *Static) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Fetches returns how many times kind was fetched.
func (s *Static) Fetches(kind types.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[kind]
}

// FetchTicksSince implements Source.
func (s *Static) FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[kind]++
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(err, s.Name())
	}

	return afterCursor(slices.Clone(s.ticks[kind]), cursor), nil
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}
