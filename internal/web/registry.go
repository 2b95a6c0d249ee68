package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	lru "github.com/hashicorp/golang-lru/v2"
)

// StoreFactory builds an uninitialized store for one device key.
type StoreFactory func(deviceKey string) (*portalAuth.Store, error)

type registryEntry struct {
	store *portalAuth.Store
	ready chan struct{}
}

// Registry keeps one initialized [portalAuth.Store] per device key, evicting the
// least recently used stores beyond its capacity. Evicted stores are closed and
// their final metrics folded into the registry totals once Close returns.
type Registry struct {
	factory StoreFactory
	logger  *slog.Logger

	// mu guards every cache mutation, so the eviction callback always runs with mu
	// held.
	mu             sync.Mutex
	cache          *lru.Cache[string, *registryEntry]
	retired        portalAuth.MetricsSnapshot
	retiredDropped uint64
	draining       map[*registryEntry]struct{}
	closing        sync.WaitGroup
	closed         bool

	closeStore func(*portalAuth.Store)
}

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("web: store registry closed")

// NewRegistry describes the newregistry operation and its observable behavior.
func NewRegistry(size int, factory StoreFactory, logger *slog.Logger) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("web: nil store factory")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{
		factory: factory,
		logger:  logger,
		retired: portalAuth.MetricsSnapshot{
			Counters:   map[portalAuth.MetricID]uint64{},
			Histograms: map[portalAuth.MetricID][]uint64{},
		},
		draining:   map[*registryEntry]struct{}{},
		closeStore: (*portalAuth.Store).Close,
	}
	cache, err := lru.NewWithEvict[string, *registryEntry](size, r.evictedLocked)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

// Get returns the device's store, creating and initializing it on first use. The
// returned channel closes once the initial session check has finished.
func (r *Registry) Get(deviceKey string) (*portalAuth.Store, <-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, nil, ErrRegistryClosed
	}
	if e, ok := r.cache.Get(deviceKey); ok {
		return e.store, e.ready, nil
	}

	store, err := r.factory(deviceKey)
	if err != nil {
		return nil, nil, err
	}
	e := &registryEntry{store: store, ready: make(chan struct{})}
	r.cache.Add(deviceKey, e)

	go func() {
		defer close(e.ready)
		if err := store.Initialize(context.Background()); err != nil && !errors.Is(err, portalAuth.ErrStoreClosed) {
			r.logger.Warn("store initialize failed", slog.Any("error", err))
		}
	}()
	return store, e.ready, nil
}

// Snapshot returns the device's session, waiting up to wait for a new store's
// initial session check. A store still checking reports IsLoading.
func (r *Registry) Snapshot(ctx context.Context, deviceKey string, wait time.Duration) (portalAuth.Session, error) {
	store, ready, err := r.Get(deviceKey)
	if err != nil {
		return portalAuth.Session{}, err
	}
	if !waitReady(ctx, ready, wait) {
		s := store.Snapshot()
		s.IsLoading = true
		return s, nil
	}
	return store.Snapshot(), nil
}

func waitReady(ctx context.Context, ready <-chan struct{}, wait time.Duration) bool {
	select {
	case <-ready:
		return true
	default:
	}
	if wait <= 0 {
		return false
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ready:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// MetricsSnapshot sums the metrics of live and evicted stores.
func (r *Registry) MetricsSnapshot() portalAuth.MetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := portalAuth.MetricsSnapshot{
		Counters:   make(map[portalAuth.MetricID]uint64, len(r.retired.Counters)),
		Histograms: make(map[portalAuth.MetricID][]uint64, len(r.retired.Histograms)),
	}
	mergeMetrics(&out, r.retired)
	for _, e := range r.cache.Values() {
		mergeMetrics(&out, e.store.MetricsSnapshot())
	}
	for e := range r.draining {
		mergeMetrics(&out, e.store.MetricsSnapshot())
	}
	return out
}

// ActivityDropped sums dropped activity records across live and evicted stores.
func (r *Registry) ActivityDropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := r.retiredDropped
	for _, e := range r.cache.Values() {
		total += e.store.ActivityDropped()
	}
	for e := range r.draining {
		total += e.store.ActivityDropped()
	}
	return total
}

// Close closes every store and waits for evicted stores still shutting down.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cache.Purge()
	r.mu.Unlock()

	r.closing.Wait()
}

// evictedLocked runs from cache mutations, all of which hold r.mu. The store stays
// in draining, still counted, until its Close returns and its totals are retired.
func (r *Registry) evictedLocked(deviceKey string, e *registryEntry) {
	r.draining[e] = struct{}{}
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		r.closeStore(e.store)

		r.mu.Lock()
		delete(r.draining, e)
		mergeMetrics(&r.retired, e.store.MetricsSnapshot())
		r.retiredDropped += e.store.ActivityDropped()
		r.mu.Unlock()
	}()
	r.logger.Debug("device store evicted", slog.String("device", shortKey(deviceKey)))
}

func mergeMetrics(dst *portalAuth.MetricsSnapshot, src portalAuth.MetricsSnapshot) {
	for id, v := range src.Counters {
		dst.Counters[id] += v
	}
	for id, buckets := range src.Histograms {
		cur := dst.Histograms[id]
		if len(cur) < len(buckets) {
			grown := make([]uint64, len(buckets))
			copy(grown, cur)
			cur = grown
		}
		for i, v := range buckets {
			cur[i] += v
		}
		dst.Histograms[id] = cur
	}
}

func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8]
	}
	return k
}
