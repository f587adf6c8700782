package model

import (
	"time"

	"github.com/projectloop/mailgrouper/pkg/domain/types"
)

// UserID is an opaque per-user identifier (provider account id, not an email
// address — the mailbox address itself is a credential detail, not an ID).
type UserID string

// Credentials is the encrypted upstream OAuth credential set for a User.
// Access/refresh token bytes are encrypted at rest by the caller (see
// pkg/utils/secure) — this struct holds ciphertext plus the metadata needed
// to decide when a refresh is due.
type Credentials struct {
	AccessTokenEnc  []byte
	RefreshTokenEnc []byte
	ExpiresAt       time.Time
}

// ExpiringSoon reports whether the access token has less than margin life
// remaining (spec §4.2: refresh when ≤60s remain).
func (c Credentials) ExpiringSoon(margin time.Duration, now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Sub(now) <= margin
}

// User owns every downstream record (projects, mappings, corrections,
// patterns, subscriptions, queue items).
type User struct {
	ID          UserID
	Email       string
	Role        types.UserRole
	Active      bool
	Credentials Credentials
	AuthExpired bool // set when a second 401 surfaces AuthExpired (spec §4.2)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
