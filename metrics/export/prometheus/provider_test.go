package prometheus

import (
	"context"

	portalAuth "github.com/MrEthical07/portalAuth"
)

// nopProvider has no accounts and no session.
type nopProvider struct{}

func (nopProvider) SignInWithPassword(context.Context, string, string) (portalAuth.Identity, error) {
	return portalAuth.Identity{}, portalAuth.ErrInvalidCredentials
}

func (nopProvider) SignUp(context.Context, string, string, portalAuth.SignUpAttributes) (portalAuth.Identity, error) {
	return portalAuth.Identity{}, portalAuth.ErrProviderUnavailable
}

func (nopProvider) SignOut(context.Context) error { return nil }

func (nopProvider) GetSession(context.Context) (*portalAuth.Identity, error) { return nil, nil }

func (nopProvider) SessionEvents(ctx context.Context) (<-chan portalAuth.SessionEvent, error) {
	ch := make(chan portalAuth.SessionEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (nopProvider) FetchProfile(context.Context, string) (portalAuth.UserProfile, error) {
	return portalAuth.UserProfile{}, portalAuth.ErrProfileNotFound
}

func (nopProvider) UpdateProfile(context.Context, string, portalAuth.ProfileUpdate) error {
	return portalAuth.ErrProfileNotFound
}

func (nopProvider) LogActivity(context.Context, portalAuth.Activity) error { return nil }
