package pgprofile

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("PORTAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PORTAL_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("db unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestProfileLifecycle(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	id := uuid.NewString()
	at := time.Now().UTC().Truncate(time.Millisecond)
	profile := portalAuth.UserProfile{
		ID:          id,
		Email:       id + "@campus.edu",
		DisplayName: "Sam",
		Role:        portalAuth.RoleStudent,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM portal_profiles WHERE id = $1`, id)
	})

	if err := store.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateProfile(ctx, profile); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}

	dept := "Physics"
	links := portalAuth.SocialLinks{Website: "https://sam.example"}
	if err := store.UpdateProfile(ctx, id, portalAuth.ProfileUpdate{Department: &dept, SocialLinks: &links}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.FetchProfile(ctx, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Department != dept || got.DisplayName != "Sam" || got.Role != portalAuth.RoleStudent || got.SocialLinks != links {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestUnknownProfile(t *testing.T) {
	pool := openTestPool(t)
	store := New(pool)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := store.FetchProfile(ctx, "missing-"+uuid.NewString()); !errors.Is(err, portalAuth.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound on fetch, got %v", err)
	}
	bio := "x"
	if err := store.UpdateProfile(ctx, "missing-"+uuid.NewString(), portalAuth.ProfileUpdate{Bio: &bio}); !errors.Is(err, portalAuth.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound on update, got %v", err)
	}
}
