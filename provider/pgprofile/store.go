package pgprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProfileExists is returned by CreateProfile when the id is already taken.
var ErrProfileExists = errors.New("pgprofile: profile already exists")

const schema = `
CREATE TABLE IF NOT EXISTS portal_profiles (
  id                 TEXT PRIMARY KEY,
  email              TEXT NOT NULL UNIQUE,
  display_name       TEXT NOT NULL,
  role               TEXT NOT NULL CHECK (role IN ('student', 'teacher', 'committee')),
  department         TEXT NOT NULL DEFAULT '',
  phone              TEXT NOT NULL DEFAULT '',
  bio                TEXT NOT NULL DEFAULT '',
  profile_image_url  TEXT NOT NULL DEFAULT '',
  social_links       JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at         TIMESTAMPTZ NOT NULL,
  updated_at         TIMESTAMPTZ NOT NULL
)`

// Store is a pgxpool-backed profile table.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New describes the new operation and its observable behavior.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Migrate creates the portal_profiles table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgprofile: migrate: %w", err)
	}
	return nil
}

// CreateProfile describes the createprofile operation and its observable behavior.
func (s *Store) CreateProfile(ctx context.Context, p portalAuth.UserProfile) error {
	links, err := json.Marshal(p.SocialLinks)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
    INSERT INTO portal_profiles (id, email, display_name, role, department, phone, bio, profile_image_url, social_links, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)
  `, p.ID, p.Email, p.DisplayName, p.Role.String(), p.Department, p.Phone, p.Bio, p.ProfileImageURL, string(links), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrProfileExists, p.ID)
		}
		return err
	}
	return nil
}

// FetchProfile returns [portalAuth.ErrProfileNotFound] for unknown ids.
func (s *Store) FetchProfile(ctx context.Context, userID string) (portalAuth.UserProfile, error) {
	var (
		p     portalAuth.UserProfile
		role  string
		links []byte
	)
	row := s.pool.QueryRow(ctx, `
    SELECT id, email, display_name, role, department, phone, bio, profile_image_url, social_links, created_at, updated_at
    FROM portal_profiles
    WHERE id = $1
  `, userID)
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.DisplayName,
		&role,
		&p.Department,
		&p.Phone,
		&p.Bio,
		&p.ProfileImageURL,
		&links,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return portalAuth.UserProfile{}, portalAuth.ErrProfileNotFound
	}
	if err != nil {
		return portalAuth.UserProfile{}, err
	}
	p.Role = portalAuth.Role(role)
	if len(links) > 0 {
		if err := json.Unmarshal(links, &p.SocialLinks); err != nil {
			return portalAuth.UserProfile{}, fmt.Errorf("%w: social links: %v", portalAuth.ErrProfileFetchFailed, err)
		}
	}
	return p, nil
}

// UpdateProfile writes the non-nil fields of update. The role column is not part
// of the statement.
func (s *Store) UpdateProfile(ctx context.Context, userID string, update portalAuth.ProfileUpdate) error {
	var links *string
	if update.SocialLinks != nil {
		raw, err := json.Marshal(update.SocialLinks)
		if err != nil {
			return err
		}
		v := string(raw)
		links = &v
	}

	tag, err := s.pool.Exec(ctx, `
    UPDATE portal_profiles SET
      display_name      = COALESCE($2, display_name),
      department        = COALESCE($3, department),
      phone             = COALESCE($4, phone),
      bio               = COALESCE($5, bio),
      profile_image_url = COALESCE($6, profile_image_url),
      social_links      = COALESCE($7::jsonb, social_links),
      updated_at        = $8
    WHERE id = $1
  `, userID, update.DisplayName, update.Department, update.Phone, update.Bio, update.ProfileImageURL, links, s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return portalAuth.ErrProfileNotFound
	}
	return nil
}
