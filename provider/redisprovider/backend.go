package redisprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/internal/rate"
	"github.com/MrEthical07/portalAuth/jwt"
	"github.com/MrEthical07/portalAuth/password"
	"github.com/MrEthical07/portalAuth/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is an exported constant or variable used by the identity provider.
var ErrRedisUnavailable = errors.New("redisprovider: redis unavailable")

// Backend defines a public type used by portalAuth APIs.
//
// Backend is safe for concurrent use and is shared by every [Client].
type Backend struct {
	config   Config
	rdb      redis.UniversalClient
	sessions *session.Store
	hasher   *password.Hasher
	tokens   *jwt.Manager
	limiter  *rate.Limiter
	profiles ProfileStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewBackend validates cfg and wires the backend onto rdb.
func NewBackend(rdb redis.UniversalClient, cfg Config) (*Backend, error) {
	if rdb == nil {
		return nil, errors.New("redisprovider: nil redis client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Token.TTL == 0 {
		cfg.Token.TTL = cfg.SessionTTL
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(cfg.Token)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	profiles := cfg.Profiles
	if profiles == nil {
		profiles = NewRedisProfileStore(rdb, cfg.KeyPrefix)
	}

	return &Backend{
		config:   cfg,
		rdb:      rdb,
		sessions: session.NewStore(rdb, cfg.KeyPrefix+":sess", cfg.SlidingSessions),
		hasher:   hasher,
		tokens:   tokens,
		limiter:  rate.New(rdb, cfg.Rate),
		profiles: profiles,
		logger:   logger.With("component", "portalauth.redisprovider"),
		now:      time.Now,
	}, nil
}

// Client returns the provider for one device key. Clients are cheap; any number may
// share a key.
func (b *Backend) Client(deviceKey string) *Client {
	return &Client{backend: b, device: deviceKey}
}

// Ping checks Redis reachability.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CreateAccount registers email with a hashed password and creates its profile row
// with attrs. It does not sign anybody in.
func (b *Backend) CreateAccount(ctx context.Context, email, pass string, attrs portalAuth.SignUpAttributes) (portalAuth.Identity, error) {
	email = normalizeEmail(email)
	if email == "" || !attrs.Role.Valid() || strings.TrimSpace(attrs.DisplayName) == "" {
		return portalAuth.Identity{}, fmt.Errorf("%w: email, display name and role are required", portalAuth.ErrInvalidInput)
	}

	hash, err := b.hasher.Hash(pass)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return portalAuth.Identity{}, fmt.Errorf("%w: %v", portalAuth.ErrInvalidInput, err)
		}
		return portalAuth.Identity{}, err
	}

	id := uuid.NewString()
	claimed, err := b.rdb.SetNX(ctx, b.emailKey(email), id, 0).Result()
	if err != nil {
		return portalAuth.Identity{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !claimed {
		return portalAuth.Identity{}, portalAuth.ErrDuplicateAccount
	}

	now := b.now().UTC()
	if err := b.rdb.HSet(ctx, b.accountKey(id),
		"email", email,
		"hash", hash,
		"created_at", now.Format(time.RFC3339Nano),
	).Err(); err != nil {
		b.rollbackAccount(ctx, email, id)
		return portalAuth.Identity{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if err := b.profiles.CreateProfile(ctx, portalAuth.UserProfile{
		ID:          id,
		Email:       email,
		DisplayName: strings.TrimSpace(attrs.DisplayName),
		Role:        attrs.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		b.rollbackAccount(ctx, email, id)
		return portalAuth.Identity{}, err
	}

	b.logger.Info("account created", slog.String("user_id", id), slog.String("role", attrs.Role.String()))
	return portalAuth.Identity{UserID: id, Email: email}, nil
}

// RecentActivity returns up to n activity records, newest first.
func (b *Backend) RecentActivity(ctx context.Context, n int64) ([]portalAuth.Activity, error) {
	return readActivity(ctx, b.rdb, b.activityKey(), n)
}

// SessionCount returns the number of live sign-ins across all devices.
func (b *Backend) SessionCount(ctx context.Context) (int, error) {
	return b.sessions.Count(ctx)
}

// authenticate checks email and password and returns the account's identity.
func (b *Backend) authenticate(ctx context.Context, email, pass string) (portalAuth.Identity, error) {
	if err := b.limiter.CheckLogin(ctx, email); err != nil {
		return portalAuth.Identity{}, mapRateErr(err)
	}

	id, err := b.rdb.Get(ctx, b.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		b.hasher.VerifyDummy(pass)
		return portalAuth.Identity{}, b.loginFailed(ctx, email)
	}
	if err != nil {
		return portalAuth.Identity{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	hash, err := b.rdb.HGet(ctx, b.accountKey(id), "hash").Result()
	if errors.Is(err, redis.Nil) {
		b.hasher.VerifyDummy(pass)
		return portalAuth.Identity{}, b.loginFailed(ctx, email)
	}
	if err != nil {
		return portalAuth.Identity{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ok, err := b.hasher.Verify(pass, hash)
	if err != nil {
		b.logger.Error("stored password hash unreadable", slog.String("user_id", id), slog.Any("error", err))
		return portalAuth.Identity{}, err
	}
	if !ok {
		return portalAuth.Identity{}, b.loginFailed(ctx, email)
	}

	if err := b.limiter.ResetLogin(ctx, email); err != nil {
		b.logger.Warn("login counter reset failed", slog.Any("error", err))
	}
	b.maybeRehash(ctx, id, pass, hash)
	return portalAuth.Identity{UserID: id, Email: email}, nil
}

func (b *Backend) loginFailed(ctx context.Context, email string) error {
	if err := b.limiter.RecordLoginFailure(ctx, email); err != nil {
		b.logger.Warn("login failure not counted", slog.Any("error", err))
	}
	return portalAuth.ErrInvalidCredentials
}

func (b *Backend) maybeRehash(ctx context.Context, id, pass, hash string) {
	need, err := b.hasher.NeedsRehash(hash)
	if err != nil || !need {
		return
	}
	upgraded, err := b.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := b.rdb.HSet(ctx, b.accountKey(id), "hash", upgraded).Err(); err != nil {
		b.logger.Warn("password rehash not stored", slog.String("user_id", id), slog.Any("error", err))
	}
}

func (b *Backend) rollbackAccount(ctx context.Context, email, id string) {
	ctx = context.WithoutCancel(ctx)
	if err := b.rdb.Del(ctx, b.emailKey(email), b.accountKey(id)).Err(); err != nil {
		b.logger.Error("account rollback failed", slog.String("user_id", id), slog.Any("error", err))
	}
}

func mapRateErr(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return portalAuth.ErrRateLimited
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) emailKey(email string) string { return b.config.KeyPrefix + ":acct:email:" + email }
func (b *Backend) accountKey(id string) string  { return b.config.KeyPrefix + ":acct:" + id }
func (b *Backend) devicesKey(id string) string  { return b.config.KeyPrefix + ":acct:" + id + ":devices" }
func (b *Backend) deviceKey(key string) string  { return b.config.KeyPrefix + ":device:" + key }
func (b *Backend) eventsKey(key string) string  { return b.config.KeyPrefix + ":events:" + key }
func (b *Backend) activityKey() string          { return b.config.KeyPrefix + ":activity" }
