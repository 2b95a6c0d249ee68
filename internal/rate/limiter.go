package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning. A zero Max disables that limiter.
type Config struct {
	MaxLoginFailures int
	LoginWindow      time.Duration
	MaxSignups       int
	SignupWindow     time.Duration
}

// DefaultConfig allows 5 failed sign-ins per email per 15 minutes and 10 new
// accounts per address per hour.
func DefaultConfig() Config {
	return Config{
		MaxLoginFailures: 5,
		LoginWindow:      15 * time.Minute,
		MaxSignups:       10,
		SignupWindow:     time.Hour,
	}
}

// Limiter enforces the configured windows using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin returns [ErrRateLimited] once email has used up its failure budget.
// It does not count the attempt.
func (l *Limiter) CheckLogin(ctx context.Context, email string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxLoginFailures) {
		return ErrRateLimited
	}
	return nil
}

// RecordLoginFailure counts a failed sign-in for email.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email string) error {
	if l.config.MaxLoginFailures <= 0 {
		return nil
	}
	_, err := l.incrementWithTTL(ctx, loginKey(email), l.config.LoginWindow)
	return err
}

// ResetLogin clears the failure counter after a successful sign-in.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginFailures returns the failures counted in the current window. Unknown
// emails report zero, never revealing whether an account exists.
func (l *Limiter) LoginFailures(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// AllowSignup counts an account creation from addr and returns [ErrRateLimited]
// when the window is exhausted. An empty addr is not limited.
func (l *Limiter) AllowSignup(ctx context.Context, addr string) error {
	if l.config.MaxSignups <= 0 || addr == "" {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, signupKey(addr), l.config.SignupWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignups) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 && ttl > 0 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

func loginKey(email string) string {
	return "pp:rl:login:" + strings.ToLower(strings.TrimSpace(email))
}

func signupKey(addr string) string {
	return "pp:rl:signup:" + addr
}
