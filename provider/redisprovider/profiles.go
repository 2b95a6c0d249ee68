package redisprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/redis/go-redis/v9"
)

// ProfileStore holds the application profile rows keyed by identity id.
//
// FetchProfile and UpdateProfile return [portalAuth.ErrProfileNotFound] for unknown
// ids. UpdateProfile never changes the role.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p portalAuth.UserProfile) error
	FetchProfile(ctx context.Context, userID string) (portalAuth.UserProfile, error)
	UpdateProfile(ctx context.Context, userID string, update portalAuth.ProfileUpdate) error
}

// RedisProfileStore keeps each profile in a hash at <prefix>:profile:<id>.
type RedisProfileStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisProfileStore describes the newredisprofilestore operation and its observable behavior.
func NewRedisProfileStore(rdb redis.UniversalClient, prefix string) *RedisProfileStore {
	if prefix == "" {
		prefix = "pp"
	}
	return &RedisProfileStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisProfileStore) key(id string) string {
	return s.prefix + ":profile:" + id
}

// CreateProfile writes p. An existing row for p.ID is an error.
func (s *RedisProfileStore) CreateProfile(ctx context.Context, p portalAuth.UserProfile) error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile id is required", portalAuth.ErrInvalidInput)
	}
	links, err := json.Marshal(p.SocialLinks)
	if err != nil {
		return err
	}

	created, err := s.rdb.HSetNX(ctx, s.key(p.ID), "role", p.Role.String()).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !created {
		return fmt.Errorf("redisprovider: profile %s already exists", p.ID)
	}

	if err := s.rdb.HSet(ctx, s.key(p.ID),
		"email", p.Email,
		"display_name", p.DisplayName,
		"department", p.Department,
		"phone", p.Phone,
		"bio", p.Bio,
		"profile_image_url", p.ProfileImageURL,
		"social_links", links,
		"created_at", p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at", p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// FetchProfile describes the fetchprofile operation and its observable behavior.
func (s *RedisProfileStore) FetchProfile(ctx context.Context, userID string) (portalAuth.UserProfile, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return portalAuth.UserProfile{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return portalAuth.UserProfile{}, portalAuth.ErrProfileNotFound
	}
	return profileFromHash(userID, fields)
}

// UpdateProfile applies the non-nil fields of update inside a WATCH transaction so a
// concurrently deleted row is not resurrected.
func (s *RedisProfileStore) UpdateProfile(ctx context.Context, userID string, update portalAuth.ProfileUpdate) error {
	values := []any{"updated_at", s.now().UTC().Format(time.RFC3339Nano)}
	if update.DisplayName != nil {
		values = append(values, "display_name", *update.DisplayName)
	}
	if update.Department != nil {
		values = append(values, "department", *update.Department)
	}
	if update.Phone != nil {
		values = append(values, "phone", *update.Phone)
	}
	if update.Bio != nil {
		values = append(values, "bio", *update.Bio)
	}
	if update.ProfileImageURL != nil {
		values = append(values, "profile_image_url", *update.ProfileImageURL)
	}
	if update.SocialLinks != nil {
		links, err := json.Marshal(update.SocialLinks)
		if err != nil {
			return err
		}
		values = append(values, "social_links", links)
	}

	key := s.key(userID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return portalAuth.ErrProfileNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, portalAuth.ErrProfileNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

func profileFromHash(id string, f map[string]string) (portalAuth.UserProfile, error) {
	p := portalAuth.UserProfile{
		ID:              id,
		Email:           f["email"],
		DisplayName:     f["display_name"],
		Role:            portalAuth.Role(f["role"]),
		Department:      f["department"],
		Phone:           f["phone"],
		Bio:             f["bio"],
		ProfileImageURL: f["profile_image_url"],
	}
	if raw := f["social_links"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.SocialLinks); err != nil {
			return portalAuth.UserProfile{}, fmt.Errorf("%w: profile %s: social links: %v", portalAuth.ErrProfileFetchFailed, id, err)
		}
	}
	var err error
	if p.CreatedAt, err = parseTime(f["created_at"]); err != nil {
		return portalAuth.UserProfile{}, fmt.Errorf("%w: profile %s: created_at: %v", portalAuth.ErrProfileFetchFailed, id, err)
	}
	if p.UpdatedAt, err = parseTime(f["updated_at"]); err != nil {
		return portalAuth.UserProfile{}, fmt.Errorf("%w: profile %s: updated_at: %v", portalAuth.ErrProfileFetchFailed, id, err)
	}
	return p, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
