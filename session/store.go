package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is an exported constant or variable used by the session store.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable is an exported constant or variable used by the session store.
var ErrRedisUnavailable = errors.New("redis unavailable")

const minSlidingTTL = time.Second

const deleteRecordScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
  local count = tonumber(redis.call("GET", KEYS[3]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[3])
  elseif count == 1 then
    redis.call("DEL", KEYS[3])
  end
end
return existed
`

var deleteRecordLua = redis.NewScript(deleteRecordScript)

// Store is a Redis-backed record store with per-user indexes and an optional
// sliding expiry capped at the record's absolute ExpiresAt.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	sliding bool
	now     func() time.Time
}

// NewStore creates a session [Store]. prefix sets the Redis key namespace.
func NewStore(rdb redis.UniversalClient, prefix string, sliding bool) *Store {
	if prefix == "" {
		prefix = "pp:sess"
	}
	return &Store{
		redis:   rdb,
		prefix:  prefix,
		sliding: sliding,
		now:     time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) countKey() string {
	return s.prefix + ":count"
}

// Save persists r with the given TTL and indexes it under its user.
//
//	Performance: 1 MULTI/EXEC (SET + SADD + INCR).
func (s *Store) Save(ctx context.Context, r *Record, ttl time.Duration) error {
	if r == nil || r.SessionID == "" {
		return errors.New("session: record requires a session id")
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(r.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(r.UserID), r.SessionID)
		pipe.Incr(ctx, s.countKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the live record for sessionID. Missing and expired records yield
// [ErrNotFound]; expired ones are removed on the way out. When the store slides,
// the TTL is extended by ttl but never past ExpiresAt.
//
//	Performance: 1 GET, plus 1 PEXPIRE when sliding.
func (s *Store) Get(ctx context.Context, sessionID string, ttl time.Duration) (*Record, error) {
	key := s.key(sessionID)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r.SessionID = sessionID

	remaining := time.Unix(r.ExpiresAt, 0).Sub(s.now())
	if remaining <= 0 {
		if err := s.deleteRecordAndIndex(ctx, r.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	if err := s.maybeMigrate(ctx, key, r); err != nil {
		return nil, err
	}

	if s.sliding && ttl > 0 {
		next := ttl
		if next > remaining {
			next = remaining
		}
		if next < minSlidingTTL {
			next = minSlidingTTL
		}
		if err := s.redis.PExpire(ctx, key, next).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return r, nil
}

// Delete removes a record and its index entry. Deleting a missing record is not
// an error and never drives the counter below zero.
//
//	Performance: 1 GET + 1 EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		// Unreadable blobs cannot be indexed; drop the key alone.
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil
	}
	return s.deleteRecordAndIndex(ctx, r.UserID, sessionID)
}

// DeleteAllForUser removes every record indexed under userID and returns how many
// still existed.
//
// This is not atomic: a record saved between the SMEMBERS read and the delete
// survives and expires on its own.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	removed := 0
	for _, id := range ids {
		existed, err := deleteRecordLua.Run(ctx, s.redis,
			[]string{s.key(id), s.userKey(userID), s.countKey()}, id).Int64()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		removed += int(existed)
	}
	if err := s.redis.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return removed, nil
}

// CountForUser returns the number of record IDs indexed under userID.
func (s *Store) CountForUser(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Count returns the tracked store-wide record counter.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.redis.Get(ctx, s.countKey()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) maybeMigrate(ctx context.Context, key string, r *Record) error {
	if r.SchemaVersion == CurrentSchemaVersion {
		return nil
	}

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		return nil
	}

	r.SchemaVersion = CurrentSchemaVersion
	encoded, err := Encode(r)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, encoded, pttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) deleteRecordAndIndex(ctx context.Context, userID, sessionID string) error {
	keys := []string{s.key(sessionID), s.userKey(userID), s.countKey()}
	if err := deleteRecordLua.Run(ctx, s.redis, keys, sessionID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
