package portalAuth

import (
	"context"
	"log/slog"
)

func (s *Store) consumeEvents(ctx context.Context, events <-chan SessionEvent, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.logger.Debug("session event stream closed")
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Store) handleEvent(ctx context.Context, ev SessionEvent) {
	s.logger.Debug("session event", slog.String("kind", ev.Kind.String()))

	switch ev.Kind {
	case EventSignedOut:
		hadUser := false
		s.update(func() {
			hadUser = s.state.User != nil
			s.clearLocked()
		})
		if hadUser {
			s.metrics.Inc(MetricRemoteSignOut)
			s.logger.Info("session ended elsewhere")
		}

	case EventSignedIn, EventUserUpdated, EventTokenRefreshed:
		if ev.Identity == nil {
			return
		}
		if ev.Kind != EventUserUpdated && s.hasUser(ev.Identity.UserID) {
			return
		}
		s.refreshProfile(ctx, *ev.Identity)

	default:
		s.logger.Debug("ignoring unknown session event", slog.Int("kind", int(ev.Kind)))
	}
}

func (s *Store) hasUser(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User != nil && s.state.User.ID == userID
}

// refreshProfile loads the profile for identity and applies it unless a newer write
// won the race.
func (s *Store) refreshProfile(ctx context.Context, identity Identity) {
	gen := s.issue()
	profile, err := s.fetchProfile(ctx, identity.UserID)
	if err != nil {
		ae := s.profileUnavailable(ctx, opSessionEvent, identity, err)
		s.update(func() {
			if s.setUserLocked(gen, nil) {
				s.state.LastError = ae.Message()
			}
		})
		return
	}

	applied := false
	s.update(func() {
		applied = s.setUserLocked(gen, &profile)
	})
	if !applied {
		s.metrics.Inc(MetricStaleProfileDiscarded)
		s.logger.Debug("discarded stale profile fetch", slog.String("user_id", identity.UserID))
	}
}
