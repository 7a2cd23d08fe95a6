package domain

import (
	"context"
	"time"
)

// Profile is the public identity of a user, maintained by the external auth
// provider and read-only to this service.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is the authenticated caller, supplied by the gateway's identity
// middleware or by the embedding application.
type Identity struct {
	UserID      string
	DisplayName string
}

// ProfileRepository defines the interface for profile lookups
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*Profile, error)
}
