package portalAuth

import (
	"context"
	"log/slog"
	"sync"

	internalaudit "github.com/MrEthical07/portalAuth/internal/audit"
)

const (
	opInitialize    = "initialize"
	opLogin         = "login"
	opSignup        = "signup"
	opLogout        = "logout"
	opUpdateProfile = "update_profile"
	opSessionEvent  = "session_event"
)

// Store defines a public type used by portalAuth APIs.
//
// Store is the single source of truth for the signed-in user. It is the only
// component that calls the provider's mutating operations. Construct it with
// [New]...[Builder.Build], call [Store.Initialize] once and [Store.Close] at teardown.
type Store struct {
	config    Config
	provider  IdentityProvider
	logger    *slog.Logger
	navigator Navigator
	activity  *internalaudit.Dispatcher
	metrics   *Metrics
	validator *inputValidator

	mu          sync.Mutex
	state       Session
	busy        string
	issued      uint64
	applied     uint64
	initialized bool
	closed      bool

	cancelEvents context.CancelFunc
	eventsDone   chan struct{}

	// deliverMu orders observer delivery; listenersMu guards the listener table so a
	// listener may cancel itself while being called.
	deliverMu    sync.Mutex
	delivered    uint64
	listenersMu  sync.Mutex
	listeners    map[uint64]func(Session)
	nextListener uint64
}

func newStore(cfg Config, provider IdentityProvider, logger *slog.Logger) *Store {
	return &Store{
		config:    cfg,
		provider:  provider,
		logger:    logger,
		validator: newInputValidator(),
		listeners: make(map[uint64]func(Session)),
	}
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot returns a copy of the current state; mutating it never affects the store.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe describes the subscribe operation and its observable behavior.
//
// fn is called with every published snapshot in version order, from the goroutine
// that caused the change. fn must not call Login, Signup, Logout, UpdateProfile or
// Initialize synchronously. The returned cancel func is idempotent and may be called
// from inside fn.
func (s *Store) Subscribe(fn func(Session)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// LandingPath returns the dashboard route configured for role, or the login route
// for an unknown role.
func (s *Store) LandingPath(role Role) string {
	if path, ok := s.config.Routes.Dashboards[role]; ok {
		return path
	}
	return s.config.Routes.LoginPath
}

// Config returns a copy of the store configuration.
func (s *Store) Config() Config {
	return cloneConfig(s.config)
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// ActivityDropped returns activity records discarded under backpressure.
func (s *Store) ActivityDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.activity.Dropped()
}

// Close describes the close operation and its observable behavior.
//
// Close cancels the session-event subscription, waits for the event goroutine,
// drains queued activity and drops every observer. Later operations return
// [ErrStoreClosed]. Close is idempotent.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancelEvents
	done := s.eventsDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.activity.Close()

	s.listenersMu.Lock()
	s.listeners = make(map[uint64]func(Session))
	s.listenersMu.Unlock()
}

/*
====================================
STATE TRANSITIONS
====================================
*/

// All helpers below suffixed Locked require s.mu.

func (s *Store) snapshotLocked() Session {
	snap := s.state
	if s.state.User != nil {
		u := *s.state.User
		snap.User = &u
	}
	return snap
}

// commitLocked bumps the version and returns the snapshot to publish once s.mu is
// released.
func (s *Store) commitLocked() Session {
	s.state.Version++
	return s.snapshotLocked()
}

// issueLocked hands out a generation for a profile fetch about to start.
func (s *Store) issueLocked() uint64 {
	s.issued++
	return s.issued
}

func (s *Store) issue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

// setUserLocked applies the result of fetch gen. Results older than the last applied
// write are discarded and reported as false.
func (s *Store) setUserLocked(gen uint64, p *UserProfile) bool {
	if gen <= s.applied {
		return false
	}
	s.applied = gen
	if p == nil {
		s.state.User = nil
		return true
	}
	u := *p
	s.state.User = &u
	return true
}

// clearLocked removes the user and invalidates every fetch still in flight.
func (s *Store) clearLocked() {
	s.setUserLocked(s.issueLocked(), nil)
}

// begin marks op as the outstanding serialized operation and publishes the loading
// state.
func (s *Store) begin(op string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if running := s.busy; running != "" {
		s.mu.Unlock()
		s.metrics.Inc(MetricOperationRejected)
		s.logger.Debug("operation rejected", slog.String("op", op), slog.String("running", running))
		return ErrOperationInProgress
	}
	s.busy = op
	s.state.IsLoading = true
	s.state.LastError = ""
	snap := s.commitLocked()
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

// finish ends the outstanding operation. apply runs under s.mu before the final
// snapshot is taken, so the new user and IsLoading=false are published together.
func (s *Store) finish(apply func()) {
	s.mu.Lock()
	if apply != nil {
		apply()
	}
	s.busy = ""
	s.state.IsLoading = false
	snap := s.commitLocked()
	s.mu.Unlock()

	s.publish(snap)
}

// update applies a change outside the serialized operations and publishes it.
func (s *Store) update(apply func()) {
	s.mu.Lock()
	apply()
	snap := s.commitLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Store) publish(snap Session) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version

	s.listenersMu.Lock()
	fns := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) navigate(ctx context.Context, role Role) {
	if s.navigator == nil || !s.config.Session.NavigateOnSuccess {
		return
	}
	s.navigator.Navigate(ctx, s.LandingPath(role))
}
