package redisprovider

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/portalAuth/internal/rate"
	"github.com/MrEthical07/portalAuth/jwt"
	"github.com/MrEthical07/portalAuth/password"
)

// Config defines a public type used by portalAuth APIs.
type Config struct {
	// KeyPrefix namespaces every key the backend writes.
	KeyPrefix string
	// SessionTTL is the absolute lifetime of a sign-in.
	SessionTTL time.Duration
	// SlidingSessions extends a session's TTL whenever it is read, up to SessionTTL.
	SlidingSessions bool
	// ActivityMaxLen caps the activity stream (approximate trimming).
	ActivityMaxLen int64

	Password password.Config
	Token    jwt.Config
	Rate     rate.Config

	// Profiles stores profile rows; nil uses a RedisProfileStore on the same client.
	Profiles ProfileStore
	// Logger receives warnings about best-effort steps; nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a config with production defaults. The token signing key
// is left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:       "pp",
		SessionTTL:      7 * 24 * time.Hour,
		SlidingSessions: false,
		ActivityMaxLen:  10000,
		Password:        password.DefaultConfig(),
		Token: jwt.Config{
			SigningMethod: jwt.MethodHS256,
			Issuer:        "portald",
		},
		Rate: rate.DefaultConfig(),
	}
}

// Validate describes the validate operation and its observable behavior.
func (c Config) Validate() error {
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return errors.New("redisprovider: KeyPrefix must not be empty")
	}
	if c.SessionTTL <= 0 {
		return errors.New("redisprovider: SessionTTL must be > 0")
	}
	if c.ActivityMaxLen < 0 {
		return errors.New("redisprovider: ActivityMaxLen must be >= 0")
	}
	if c.Token.TTL > c.SessionTTL {
		return errors.New("redisprovider: Token.TTL must not exceed SessionTTL")
	}
	return c.Password.Validate()
}
