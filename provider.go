package portalAuth

import "context"

// IdentityProvider defines the backend-as-a-service operations the [Store] relies on.
//
// Implementations report failures with the package sentinels where one applies
// ([ErrInvalidCredentials], [ErrDuplicateAccount], [ErrProfileNotFound],
// [ErrRateLimited]). Any other error is treated as a provider outage.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string, attrs SignUpAttributes) (Identity, error)
	SignOut(ctx context.Context) error
	// GetSession returns (nil, nil) when there is no active session.
	GetSession(ctx context.Context) (*Identity, error)
	// SessionEvents streams auth state changes until ctx is done, then closes the channel.
	SessionEvents(ctx context.Context) (<-chan SessionEvent, error)
	FetchProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
	LogActivity(ctx context.Context, activity Activity) error
}

// Navigator moves the presentation layer to a route after a successful login or signup.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a plain function to [Navigator].
type NavigatorFunc func(ctx context.Context, path string)

// Navigate calls f(ctx, path).
func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}
