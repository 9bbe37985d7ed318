package models

import (
	"time"

	"github.com/google/uuid"
)

// Session binds a bearer token to an agent's public key until ExpiresAt.
// Sessions are never mutated after creation.
type Session struct {
	ID        uuid.UUID      `json:"id"`
	TokenHash string         `json:"-"` // SHA-256 of the bearer token
	PublicKey string         `json:"publicKey"`
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
