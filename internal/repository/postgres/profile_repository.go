package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"yamo-chat/internal/domain"
)

// ProfileRepository implements domain.ProfileRepository for PostgreSQL.
// Profiles are written by the auth provider; this service only reads them.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new PostgreSQL profile repository
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	defer observe("get_by_id", "profiles")()

	query := `
		SELECT id, display_name, email, created_at
		FROM profiles
		WHERE id = $1
	`
	profile := &domain.Profile{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&profile.ID,
		&profile.DisplayName,
		&profile.Email,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
