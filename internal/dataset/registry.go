package dataset

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/gemrate/config"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/snapshot"
	"github.com/xtxerr/gemrate/internal/source"
	"github.com/xtxerr/gemrate/internal/types"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Kinds lists the datasets to serve. Empty means all kinds.
	Kinds []types.Kind

	// RefreshInterval is the length of a refresh cycle.
	RefreshInterval time.Duration

	// EagerRefresh fetches at the start of each cycle instead of on the
	// first read.
	EagerRefresh bool

	Dataset Options

	// Snapshots is optional. When set, state is loaded on Start and
	// saved on Stop.
	Snapshots *snapshot.Store
}

// DefaultRegistryConfig returns the default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		RefreshInterval: config.DefaultRefreshInterval,
		Dataset:         DefaultOptions(),
	}
}

// Event is sent to subscribers at the end of each refresh cycle.
type Event struct {
	Cycle int64
	At    time.Time
	// Failed lists the kinds whose eager refresh failed.
	Failed []types.Kind
}

// Registry holds one Dataset per configured kind and drives their refresh
// cycle.
type Registry struct {
	cfg      RegistryConfig
	kinds    []types.Kind
	datasets map[types.Kind]*Dataset

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	running atomic.Bool
	cycles  atomic.Int64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates a registry whose datasets all read from src.
func NewRegistry(src source.Source, cfg RegistryConfig) (*Registry, error) {
	if src == nil {
		return nil, errors.NewMissingField("source")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, errors.NewValidation("refresh.interval", "must be positive")
	}

	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = types.AllKinds()
	}

	r := &Registry{
		cfg:      cfg,
		datasets: make(map[types.Kind]*Dataset, len(kinds)),
		subs:     make(map[int]chan Event),
	}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("dataset %d: %w", k, errors.ErrUnknownKind)
		}
		if _, dup := r.datasets[k]; dup {
			continue
		}
		r.kinds = append(r.kinds, k)
		r.datasets[k] = New(k, src, cfg.Dataset)
	}

	return r, nil
}

// Get returns the dataset of kind.
func (r *Registry) Get(kind types.Kind) (*Dataset, error) {
	d, ok := r.datasets[kind]
	if !ok {
		return nil, fmt.Errorf("dataset %s not configured: %w", kind, errors.ErrUnknownKind)
	}
	return d, nil
}

// Lookup parses name and returns its dataset.
func (r *Registry) Lookup(name string) (*Dataset, error) {
	kind, err := types.ParseKind(name)
	if err != nil {
		return nil, err
	}
	return r.Get(kind)
}

// Kinds returns the configured kinds in configuration order.
func (r *Registry) Kinds() []types.Kind {
	return append([]types.Kind(nil), r.kinds...)
}

// Health returns the status of every dataset.
func (r *Registry) Health() []Health {
	out := make([]Health, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, r.datasets[k].Health())
	}
	return out
}

// InvalidateAll starts a new refresh cycle for every dataset.
func (r *Registry) InvalidateAll() {
	for _, k := range r.kinds {
		r.datasets[k].Invalidate()
	}
}

// RefreshAll refreshes every dataset in parallel. Datasets share no state,
// so one failing does not stop the others; all failures are returned
// joined.
func (r *Registry) RefreshAll(ctx context.Context) error {
	errs := make([]error, len(r.kinds))

	var g errgroup.Group
	for i, k := range r.kinds {
		d := r.datasets[k]
		g.Go(func() error {
			_, errs[i] = d.Refresh(ctx)
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

// Subscribe registers for refresh cycle events. Slow subscribers miss
// events rather than block the cycle. The returned func unsubscribes.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if _, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(ch)
		}
	}
}

func (r *Registry) notify(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Replace the unread event with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Cycle runs one refresh cycle: invalidate, optionally refresh, notify.
func (r *Registry) Cycle(ctx context.Context) Event {
	r.InvalidateAll()

	ev := Event{Cycle: r.cycles.Add(1), At: time.Now()}

	if r.cfg.EagerRefresh {
		if err := r.RefreshAll(ctx); err != nil {
			for _, k := range r.kinds {
				if r.datasets[k].Health().LastError != "" {
					ev.Failed = append(ev.Failed, k)
				}
			}
			log.Warn("eager refresh failed", "cycle", ev.Cycle, "failed", len(ev.Failed), "error", err)
		}
	}

	r.notify(ev)
	return ev
}

// Cycles returns the number of completed refresh cycles.
func (r *Registry) Cycles() int64 {
	return r.cycles.Load()
}

// Start loads snapshots and starts the refresh cycle ticker.
func (r *Registry) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.ErrRunning
	}

	if err := r.LoadSnapshots(); err != nil {
		r.running.Store(false)
		return err
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop(ctx)

	log.Info("registry started",
		"kinds", len(r.kinds),
		"interval", r.cfg.RefreshInterval,
		"eager", r.cfg.EagerRefresh)
	return nil
}

func (r *Registry) loop(ctx context.Context) {
	defer r.wg.Done()

	if r.cfg.EagerRefresh {
		r.Cycle(ctx)
	}

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cycle(ctx)
		}
	}
}

// Stop stops the ticker and saves snapshots. It returns ErrNotRunning if
// the registry was not started.
func (r *Registry) Stop() error {
	if !r.running.CompareAndSwap(true, false) {
		return errors.ErrNotRunning
	}

	r.cancel()
	r.wg.Wait()

	r.subMu.Lock()
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.subMu.Unlock()

	return r.SaveSnapshots()
}

// Running reports whether the ticker is running.
func (r *Registry) Running() bool {
	return r.running.Load()
}

// LoadSnapshots restores every dataset that has a snapshot. A corrupt
// snapshot is logged and skipped; the dataset then rebuilds from the
// source.
func (r *Registry) LoadSnapshots() error {
	if r.cfg.Snapshots == nil {
		return nil
	}

	for _, k := range r.kinds {
		snap, ok, err := r.cfg.Snapshots.Load(k)
		if err != nil {
			if errors.Is(err, errors.ErrCorruptSnapshot) {
				log.Warn("ignoring corrupt snapshot", "kind", k, "error", err)
				continue
			}
			return err
		}
		if !ok {
			continue
		}
		if err := r.datasets[k].Restore(snap.State); err != nil {
			log.Warn("ignoring invalid snapshot", "kind", k, "error", err)
			continue
		}
		log.Info("restored snapshot", "kind", k, "points", len(snap.State.Raw), "saved_at", snap.SavedAt)
	}
	return nil
}

// SaveSnapshots writes the state of every dataset.
func (r *Registry) SaveSnapshots() error {
	if r.cfg.Snapshots == nil {
		return nil
	}

	var errs []error
	for _, k := range r.kinds {
		if err := r.cfg.Snapshots.Save(k, r.datasets[k].State()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
