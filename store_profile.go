package portalAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// errUnknownRole marks a profile row whose role has no dashboard.
var errUnknownRole = errors.New("unknown role")

// UpdateProfile describes the updateprofile operation and its observable behavior.
//
// UpdateProfile requires a signed-in user. The provider is written first; the local
// snapshot is merged only after the provider confirms and only while the same user is
// still signed in. An empty update returns the current profile without a provider
// call. Failures set LastError and return an [*AuthError].
func (s *Store) UpdateProfile(ctx context.Context, update ProfileUpdate) (UserProfile, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return UserProfile{}, ErrStoreClosed
	}
	if s.state.User == nil {
		ae := &AuthError{Op: opUpdateProfile, Reason: ReasonNotAuthenticated}
		s.state.LastError = ae.Message()
		snap := s.commitLocked()
		s.mu.Unlock()
		s.publish(snap)
		s.metrics.Inc(MetricProfileUpdateFailure)
		return UserProfile{}, ae
	}
	current := *s.state.User
	s.mu.Unlock()

	if err := s.validator.profileUpdate(update); err != nil {
		return UserProfile{}, s.updateFailed(ctx, current.ID, err)
	}
	if update.IsEmpty() {
		return current, nil
	}

	if err := s.provider.UpdateProfile(ctx, current.ID, update); err != nil {
		return UserProfile{}, s.updateFailed(ctx, current.ID, err)
	}

	merged := update.ApplyTo(current)
	stillSignedIn := false
	s.update(func() {
		if s.state.User == nil || s.state.User.ID != current.ID {
			return
		}
		stillSignedIn = true
		next := update.ApplyTo(*s.state.User)
		s.state.User = &next
		s.state.LastError = ""
		merged = next
	})
	if !stillSignedIn {
		s.logger.Debug("profile saved after sign-out; local session left untouched", slog.String("user_id", current.ID))
	}

	s.emitActivity(ctx, ActivityProfileUpdate, current.ID, nil, nil)
	s.metrics.Inc(MetricProfileUpdateSuccess)
	return merged, nil
}

func (s *Store) updateFailed(ctx context.Context, userID string, err error) *AuthError {
	ae := classify(opUpdateProfile, err)
	s.update(func() {
		s.state.LastError = ae.Message()
	})
	s.metrics.Inc(MetricProfileUpdateFailure)
	s.emitActivity(ctx, ActivityProfileUpdate, userID, ae, nil)
	if ae.Reason == ReasonProviderUnavailable {
		s.logger.Warn("profile update failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	return ae
}

// fetchProfile loads the profile row for userID. A row whose role is not one of
// [Roles] is reported as [ErrProfileFetchFailed].
func (s *Store) fetchProfile(ctx context.Context, userID string) (UserProfile, error) {
	profile, err := s.provider.FetchProfile(ctx, userID)
	if err != nil {
		return UserProfile{}, err
	}
	if !profile.Role.Valid() {
		return UserProfile{}, fmt.Errorf("%w: %w %q", ErrProfileFetchFailed, errUnknownRole, profile.Role)
	}
	return profile, nil
}

// profileUnavailable handles an identity whose profile row could not be read. A
// missing row or one with an unknown role optionally ends the provider session so
// every tab agrees.
func (s *Store) profileUnavailable(ctx context.Context, op string, identity Identity, err error) *AuthError {
	s.metrics.Inc(MetricProfileFetchFailure)
	s.logger.Error("profile unavailable for authenticated identity",
		slog.String("op", op),
		slog.String("user_id", identity.UserID),
		slog.Any("error", err),
	)

	unusable := errors.Is(err, ErrProfileNotFound) || errors.Is(err, errUnknownRole)
	if unusable && s.config.Session.SignOutOnMissingProfile {
		if serr := s.provider.SignOut(ctx); serr != nil {
			s.logger.Warn("sign-out after missing profile failed", slog.String("user_id", identity.UserID), slog.Any("error", serr))
		}
	}
	return &AuthError{Op: op, Reason: ReasonProfileFetchFailed, Err: err}
}
