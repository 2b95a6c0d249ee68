package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "pp:sess", true)
	return store, rdb, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord() *Record {
	now := time.Now()
	return &Record{
		SessionID:     "sid-1",
		UserID:        "u-1",
		Email:         "s1@campus.edu",
		DeviceKey:     "dev-1",
		UserAgentHash: [32]byte{3},
		CreatedAt:     now.Unix(),
		ExpiresAt:     now.Add(time.Hour).Unix(),
	}
}

func TestSaveGetRoundTripThroughRedis(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	rec := testRecord()

	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, rec.SessionID, time.Hour)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != rec.SessionID || got.UserID != rec.UserID || got.DeviceKey != rec.DeviceKey {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.UserAgentHash != rec.UserAgentHash {
		t.Fatal("user agent hash not preserved")
	}
	if n, _ := store.CountForUser(ctx, rec.UserID); n != 1 {
		t.Fatalf("expected 1 indexed session, got %d", n)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()

	if _, err := store.Get(context.Background(), "nope", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPastAbsoluteExpiryDeletes(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	rec := testRecord()
	rec.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Get(ctx, rec.SessionID, time.Hour); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired record, got %v", err)
	}
	if n, _ := rdb.Exists(ctx, store.key(rec.SessionID)).Result(); n != 0 {
		t.Fatal("expired record should be removed")
	}
	if n, _ := store.Count(ctx); n != 0 {
		t.Fatalf("expected counter 0, got %d", n)
	}
}

func TestSlidingTTLNeverPassesAbsoluteExpiry(t *testing.T) {
	store, _, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	rec := testRecord()
	rec.ExpiresAt = time.Now().Add(30 * time.Second).Unix()
	if err := store.Save(ctx, rec, 10*time.Second); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Get(ctx, rec.SessionID, time.Hour); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ttl := mr.TTL(store.key(rec.SessionID)); ttl > 31*time.Second || ttl < 10*time.Second {
		t.Fatalf("expected ttl capped near 30s, got %v", ttl)
	}
}

func TestDeleteIdempotentCounterAndIndex(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()
	rec := testRecord()

	if err := store.Save(ctx, rec, time.Hour); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Delete(ctx, rec.SessionID); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}

	if n, err := store.Count(ctx); err != nil || n != 0 {
		t.Fatalf("expected counter 0, got %d (%v)", n, err)
	}
	members, err := rdb.SMembers(ctx, store.userKey(rec.UserID)).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestDeleteCorruptBlobDropsKey(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := rdb.Set(ctx, store.key("bad"), []byte{9, 9}, time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Delete(ctx, "bad"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := rdb.Exists(ctx, store.key("bad")).Result(); n != 0 {
		t.Fatal("corrupt key should be removed")
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := testRecord()
		rec.SessionID = fmt.Sprintf("sid-%d", i)
		if err := store.Save(ctx, rec, time.Hour); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	other := testRecord()
	other.SessionID = "sid-other"
	other.UserID = "u-2"
	if err := store.Save(ctx, other, time.Hour); err != nil {
		t.Fatalf("save other: %v", err)
	}

	removed, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if n, _ := store.CountForUser(ctx, "u-1"); n != 0 {
		t.Fatalf("expected no sessions for u-1, got %d", n)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected counter 1, got %d", n)
	}
	if _, err := store.Get(ctx, other.SessionID, time.Hour); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
}

func TestCounterNeverNegativeUnderConcurrentDeletes(t *testing.T) {
	store, _, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	const sessionsN = 12
	for i := 0; i < sessionsN; i++ {
		rec := testRecord()
		rec.SessionID = fmt.Sprintf("sid-%d", i)
		if err := store.Save(ctx, rec, time.Hour); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < sessionsN; i++ {
				_ = store.Delete(ctx, fmt.Sprintf("sid-%d", (i+w)%sessionsN))
			}
			if w == 0 {
				_, _ = store.DeleteAllForUser(ctx, "u-1")
			}
		}(w)
	}
	wg.Wait()

	if n, err := store.Count(ctx); err != nil || n != 0 {
		t.Fatalf("expected counter 0, got %d (%v)", n, err)
	}
}

func TestRedisDownWrapsErrRedisUnavailable(t *testing.T) {
	store, _, mr, done := newSessionStoreTest(t)
	defer done()
	mr.Close()

	if err := store.Save(context.Background(), testRecord(), time.Hour); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from ping, got %v", err)
	}
}

func TestDecodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	if _, err := Decode([]byte{99}); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestGetMigratesV1RecordToCurrent(t *testing.T) {
	store, rdb, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	legacy := testRecord()
	key := store.key(legacy.SessionID)
	if err := rdb.Set(ctx, key, encodeV1Record(t, legacy), time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := store.Get(ctx, legacy.SessionID, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("expected schema %d, got %d", CurrentSchemaVersion, got.SchemaVersion)
	}
	raw, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if raw[0] != CurrentSchemaVersion {
		t.Fatalf("expected stored schema byte %d, got %d", CurrentSchemaVersion, raw[0])
	}
}

func encodeV1Record(tb testing.TB, r *Record) []byte {
	tb.Helper()

	var buf bytes.Buffer
	buf.WriteByte(1)
	for _, s := range []string{r.UserID, r.Email, r.DeviceKey} {
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		tb.Fatalf("write createdAt: %v", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		tb.Fatalf("write expiresAt: %v", err)
	}
	return buf.Bytes()
}
