package portalAuth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Initialize describes the initialize operation and its observable behavior.
//
// Initialize subscribes to provider session events for the lifetime of the store and
// performs one eager session check with IsLoading set. Provider failures are logged
// and leave the store signed out; only [ErrStoreClosed] and [ErrAlreadyInitialized]
// are returned.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.initialized = true
	eventsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelEvents = cancel
	s.mu.Unlock()

	events, err := s.provider.SessionEvents(eventsCtx)
	if err != nil {
		s.logger.Warn("session events unavailable; other tabs will not be observed", slog.Any("error", err))
	} else {
		done := make(chan struct{})
		s.mu.Lock()
		closed := s.closed
		if !closed {
			s.eventsDone = done
		}
		s.mu.Unlock()
		if closed {
			cancel()
			return ErrStoreClosed
		}
		go s.consumeEvents(eventsCtx, events, done)
	}

	if err := s.begin(opInitialize); err != nil {
		if errors.Is(err, ErrOperationInProgress) {
			// A login or signup already owns the session state.
			return nil
		}
		return err
	}

	identity, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("session check failed; treating as signed out", slog.Any("error", err))
		s.finish(nil)
		return nil
	}
	if identity == nil {
		s.finish(nil)
		return nil
	}

	gen := s.issue()
	profile, err := s.fetchProfile(ctx, identity.UserID)
	if err != nil {
		ae := s.profileUnavailable(ctx, opInitialize, *identity, err)
		s.finish(func() {
			s.setUserLocked(gen, nil)
			s.state.LastError = ae.Message()
		})
		return nil
	}

	restored := false
	s.finish(func() {
		restored = s.setUserLocked(gen, &profile)
	})
	if restored {
		s.metrics.Inc(MetricSessionRestored)
		s.logger.Info("session restored", slog.String("user_id", profile.ID), slog.String("role", profile.Role.String()))
	} else {
		s.metrics.Inc(MetricStaleProfileDiscarded)
	}
	return nil
}

// Login describes the login operation and its observable behavior.
//
// Login authenticates with the provider, loads the profile row and publishes the
// signed-in user. The landing route comes from the stored role; expectedRole (may be
// empty) only annotates activity and logs. On failure LastError carries a readable
// message and the returned error is an [*AuthError]. IsLoading is false on every exit.
func (s *Store) Login(ctx context.Context, email, password string, expectedRole Role) (UserProfile, error) {
	email = normalizeEmail(email)
	if err := s.begin(opLogin); err != nil {
		return UserProfile{}, err
	}

	if err := s.validator.login(email, password, expectedRole); err != nil {
		return UserProfile{}, s.fail(ctx, opLogin, err, MetricLoginFailure)
	}

	started := time.Now()
	identity, err := s.provider.SignInWithPassword(ctx, email, password)
	s.metrics.Observe(MetricSignInLatency, time.Since(started))
	if err != nil {
		ae := s.fail(ctx, opLogin, err, MetricLoginFailure)
		if ae.Reason == ReasonRateLimited {
			s.metrics.Inc(MetricLoginRateLimited)
		}
		return UserProfile{}, ae
	}

	profile, err := s.establish(ctx, opLogin, identity)
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
		return UserProfile{}, err
	}

	details := map[string]string{"role": profile.Role.String()}
	if expectedRole != "" && expectedRole != profile.Role {
		details["selected_role"] = expectedRole.String()
		s.metrics.Inc(MetricLoginRoleMismatch)
		s.logger.Debug("login role differs from selection",
			slog.String("user_id", profile.ID),
			slog.String("stored", profile.Role.String()),
			slog.String("selected", expectedRole.String()),
		)
	}
	s.emitActivity(ctx, ActivityLogin, profile.ID, nil, details)
	s.metrics.Inc(MetricLoginSuccess)
	s.logger.Info("signed in", slog.String("user_id", profile.ID), slog.String("role", profile.Role.String()))

	s.navigate(ctx, profile.Role)
	return profile, nil
}

// Signup describes the signup operation and its observable behavior.
//
// Signup creates the identity and its profile row with role, then signs the new user
// in exactly like [Store.Login]. Duplicate emails fail with ReasonDuplicateAccount.
func (s *Store) Signup(ctx context.Context, email, password, displayName string, role Role) (UserProfile, error) {
	email = normalizeEmail(email)
	displayName = collapseSpaces(displayName)
	if err := s.begin(opSignup); err != nil {
		return UserProfile{}, err
	}

	if err := s.validator.signup(email, password, displayName, role); err != nil {
		return UserProfile{}, s.fail(ctx, opSignup, err, MetricSignupFailure)
	}

	identity, err := s.provider.SignUp(ctx, email, password, SignUpAttributes{
		DisplayName: displayName,
		Role:        role,
	})
	if err != nil {
		ae := s.fail(ctx, opSignup, err, MetricSignupFailure)
		if ae.Reason == ReasonDuplicateAccount {
			s.metrics.Inc(MetricSignupDuplicate)
		}
		return UserProfile{}, ae
	}

	profile, err := s.establish(ctx, opSignup, identity)
	if err != nil {
		s.metrics.Inc(MetricSignupFailure)
		return UserProfile{}, err
	}

	s.emitActivity(ctx, ActivitySignup, profile.ID, nil, map[string]string{"role": profile.Role.String()})
	s.metrics.Inc(MetricSignupSuccess)
	s.logger.Info("account created", slog.String("user_id", profile.ID), slog.String("role", profile.Role.String()))

	s.navigate(ctx, profile.Role)
	return profile, nil
}

// Logout describes the logout operation and its observable behavior.
//
// With nobody signed in Logout is a no-op returning nil. Otherwise it records a
// logout activity, asks the provider to end the session and clears the local user
// regardless of the provider's answer; provider failures are logged and counted.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.busy != "" {
		s.mu.Unlock()
		s.metrics.Inc(MetricOperationRejected)
		return ErrOperationInProgress
	}
	if s.state.User == nil {
		s.mu.Unlock()
		return nil
	}
	userID := s.state.User.ID
	s.busy = opLogout
	s.state.IsLoading = true
	s.state.LastError = ""
	snap := s.commitLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.emitActivity(ctx, ActivityLogout, userID, nil, nil)

	if err := s.provider.SignOut(ctx); err != nil {
		s.metrics.Inc(MetricLogoutProviderFailure)
		s.logger.Warn("provider sign-out failed; cleared local session anyway",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	s.finish(s.clearLocked)
	s.metrics.Inc(MetricLogout)
	s.logger.Info("signed out", slog.String("user_id", userID))
	return nil
}

// establish loads the profile for a freshly authenticated identity and ends the
// running operation with the result.
func (s *Store) establish(ctx context.Context, op string, identity Identity) (UserProfile, error) {
	gen := s.issue()
	profile, err := s.fetchProfile(ctx, identity.UserID)
	if err != nil {
		ae := s.profileUnavailable(ctx, op, identity, err)
		s.finish(func() {
			s.setUserLocked(gen, nil)
			s.state.LastError = ae.Message()
		})
		s.emitActivity(ctx, op, identity.UserID, ae, nil)
		return UserProfile{}, ae
	}

	applied := false
	s.finish(func() {
		applied = s.setUserLocked(gen, &profile)
		if !applied && (s.state.User == nil || s.state.User.ID != profile.ID) {
			s.state.LastError = (&AuthError{Reason: ReasonProviderUnavailable}).Message()
		}
	})
	if applied {
		return profile, nil
	}

	// A newer event already wrote the session. Same user means the result stands.
	current := s.Snapshot()
	if current.User != nil && current.User.ID == profile.ID {
		return *current.User, nil
	}
	s.metrics.Inc(MetricStaleProfileDiscarded)
	return UserProfile{}, &AuthError{Op: op, Reason: ReasonProviderUnavailable, Err: errSessionSuperseded}
}

// fail ends the running operation with err surfaced through LastError.
func (s *Store) fail(ctx context.Context, op string, err error, metric MetricID) *AuthError {
	ae := classify(op, err)
	s.finish(func() {
		s.state.LastError = ae.Message()
	})
	s.metrics.Inc(metric)
	s.emitActivity(ctx, op, "", ae, nil)

	attrs := []any{slog.String("op", op), slog.String("reason", ae.Reason.String())}
	if ae.Reason == ReasonProviderUnavailable {
		s.logger.Warn("operation failed", append(attrs, slog.Any("error", err))...)
	} else {
		s.logger.Debug("operation failed", attrs...)
	}
	return ae
}
