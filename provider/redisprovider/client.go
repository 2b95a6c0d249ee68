package redisprovider

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client implements portalAuth.IdentityProvider for one device key.
type Client struct {
	backend *Backend
	device  string
}

var _ portalAuth.IdentityProvider = (*Client)(nil)

// DeviceKey returns the key this client acts for.
func (c *Client) DeviceKey() string {
	return c.device
}

// SignInWithPassword verifies the credentials and makes the account the device's
// session, replacing any previous one.
func (c *Client) SignInWithPassword(ctx context.Context, email, pass string) (portalAuth.Identity, error) {
	id, err := c.backend.authenticate(ctx, normalizeEmail(email), pass)
	if err != nil {
		return portalAuth.Identity{}, err
	}
	if err := c.establish(ctx, id); err != nil {
		return portalAuth.Identity{}, err
	}
	return id, nil
}

// SignUp creates the account and profile row, then signs the device in as it.
func (c *Client) SignUp(ctx context.Context, email, pass string, attrs portalAuth.SignUpAttributes) (portalAuth.Identity, error) {
	if err := c.backend.limiter.AllowSignup(ctx, portalAuth.ClientIPFromContext(ctx)); err != nil {
		return portalAuth.Identity{}, mapRateErr(err)
	}
	id, err := c.backend.CreateAccount(ctx, email, pass, attrs)
	if err != nil {
		return portalAuth.Identity{}, err
	}
	if err := c.establish(ctx, id); err != nil {
		return portalAuth.Identity{}, err
	}
	return id, nil
}

// SignOut ends the device's session and notifies every subscriber of the device.
// Signing out a device without a session is a no-op.
func (c *Client) SignOut(ctx context.Context) error {
	b := c.backend
	token, err := b.rdb.Get(ctx, b.deviceKey(c.device)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := c.endSession(ctx, token); err != nil {
		return err
	}
	return c.publish(ctx, portalAuth.SessionEvent{Kind: portalAuth.EventSignedOut})
}

// GetSession returns the device's identity, or (nil, nil) when it has no live
// session. Dangling pointers (bad token, expired record) are cleaned up on the way.
func (c *Client) GetSession(ctx context.Context) (*portalAuth.Identity, error) {
	b := c.backend
	token, err := b.rdb.Get(ctx, b.deviceKey(c.device)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	claims, err := b.tokens.Parse(token)
	if err != nil {
		c.dropPointer(ctx, token)
		return nil, nil
	}
	rec, err := b.sessions.Get(ctx, claims.SID, b.config.SessionTTL)
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
		c.dropPointer(ctx, token)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if rec.UserID != claims.UID || rec.DeviceKey != c.device {
		c.dropPointer(ctx, token)
		return nil, nil
	}
	return &portalAuth.Identity{UserID: rec.UserID, Email: rec.Email}, nil
}

// SessionEvents subscribes to the device's event channel. The subscription is live
// when SessionEvents returns; the channel closes once ctx is done.
func (c *Client) SessionEvents(ctx context.Context) (<-chan portalAuth.SessionEvent, error) {
	b := c.backend
	sub := b.rdb.Subscribe(ctx, b.eventsKey(c.device))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	out := make(chan portalAuth.SessionEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeEvent([]byte(msg.Payload))
				if err != nil {
					b.logger.Warn("malformed session event dropped", slog.String("device", c.device), slog.Any("error", err))
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FetchProfile describes the fetchprofile operation and its observable behavior.
func (c *Client) FetchProfile(ctx context.Context, userID string) (portalAuth.UserProfile, error) {
	return c.backend.profiles.FetchProfile(ctx, userID)
}

// UpdateProfile stores the update and tells every device signed in as userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, update portalAuth.ProfileUpdate) error {
	b := c.backend
	if err := b.profiles.UpdateProfile(ctx, userID, update); err != nil {
		return err
	}

	devices, err := b.rdb.SMembers(ctx, b.devicesKey(userID)).Result()
	if err != nil {
		b.logger.Warn("profile update not broadcast", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	ev := portalAuth.SessionEvent{Kind: portalAuth.EventUserUpdated, Identity: &portalAuth.Identity{UserID: userID}}
	for _, device := range devices {
		if err := b.Client(device).publish(ctx, ev); err != nil {
			b.logger.Warn("profile update not broadcast", slog.String("device", device), slog.Any("error", err))
		}
	}
	return nil
}

// LogActivity appends a to the activity stream.
func (c *Client) LogActivity(ctx context.Context, a portalAuth.Activity) error {
	b := c.backend
	return appendActivity(ctx, b.rdb, b.activityKey(), b.config.ActivityMaxLen, a)
}

// establish records a fresh sign-in for id on this device and announces it.
func (c *Client) establish(ctx context.Context, id portalAuth.Identity) error {
	b := c.backend

	if previous, err := b.rdb.Get(ctx, b.deviceKey(c.device)).Result(); err == nil {
		if err := c.endSession(ctx, previous); err != nil {
			return err
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := b.now()
	rec := &session.Record{
		SessionID:     uuid.NewString(),
		UserID:        id.UserID,
		Email:         id.Email,
		DeviceKey:     c.device,
		IPHash:        hashOptional(portalAuth.ClientIPFromContext(ctx)),
		UserAgentHash: hashOptional(portalAuth.UserAgentFromContext(ctx)),
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(b.config.SessionTTL).Unix(),
	}
	if err := b.sessions.Save(ctx, rec, b.config.SessionTTL); err != nil {
		return err
	}

	token, _, err := b.tokens.Issue(rec.SessionID, rec.UserID, c.device)
	if err != nil {
		return err
	}
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.deviceKey(c.device), token, b.tokens.TTL())
		pipe.SAdd(ctx, b.devicesKey(id.UserID), c.device)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return c.publish(ctx, portalAuth.SessionEvent{Kind: portalAuth.EventSignedIn, Identity: &id})
}

// endSession deletes the record behind token and the device pointer.
func (c *Client) endSession(ctx context.Context, token string) error {
	b := c.backend
	if claims, err := b.tokens.Parse(token); err == nil {
		if err := b.sessions.Delete(ctx, claims.SID); err != nil {
			return err
		}
		if err := b.rdb.SRem(ctx, b.devicesKey(claims.UID), c.device).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if err := c.dropPointerErr(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

const dropPointerScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var dropPointerLua = redis.NewScript(dropPointerScript)

// dropPointerErr deletes the device pointer only if it still holds token, so a
// concurrent sign-in on the same device is never undone.
func (c *Client) dropPointerErr(ctx context.Context, token string) error {
	b := c.backend
	return dropPointerLua.Run(ctx, b.rdb, []string{b.deviceKey(c.device)}, token).Err()
}

func (c *Client) dropPointer(ctx context.Context, token string) {
	if err := c.dropPointerErr(ctx, token); err != nil {
		c.backend.logger.Warn("stale device pointer not removed", slog.String("device", c.device), slog.Any("error", err))
	}
}

func (c *Client) publish(ctx context.Context, ev portalAuth.SessionEvent) error {
	b := c.backend
	if ev.At.IsZero() {
		ev.At = b.now().UTC()
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.eventsKey(c.device), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func hashOptional(v string) [32]byte {
	if v == "" {
		return [32]byte{}
	}
	return sha256.Sum256([]byte(v))
}
