package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. EmailConfirmed starts false for self-served
// signups and flips once the registration key is consumed.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Superuser      bool       `bun:"is_superuser" json:"is_superuser,omitempty"`
	Active         bool       `bun:"is_active" json:"is_active,omitempty"`
	EmailConfirmed bool       `bun:"is_email_confirmed" json:"is_email_confirmed,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	JoinedAt       *time.Time `bun:"joined_at,nullzero,default:current_timestamp" json:"joined_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AuthKeyKind discriminates what an auth key authorizes
type AuthKeyKind = string

const (
	// KeyRegistration confirms a freshly created account
	KeyRegistration AuthKeyKind = "registration"
	// KeyPasswordReset authorizes a one-time password change
	KeyPasswordReset AuthKeyKind = "password_reset"
)

const (
	// RegistrationKeyTTL is how long a confirmation link stays valid
	RegistrationKeyTTL = 7 * 24 * time.Hour
	// PasswordResetKeyTTL is how long a reset link stays valid
	PasswordResetKeyTTL = 24 * time.Hour
)

// AuthKey is a single-use token tied to a user. Once ConsumedAt is set the
// key must never authenticate again; consumption happens in SQL so concurrent
// requests cannot both win.
type AuthKey struct {
	bun.BaseModel `bun:"table:auth_keys,alias:akey"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID  `bun:"user_id,notnull" json:"user_id,omitempty"`
	User          *User       `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Kind          AuthKeyKind `bun:"kind,notnull" json:"kind,omitempty"`
	ExpiresAt     *time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time  `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NewAuthKey builds an unconsumed key for a user with the TTL of its kind
func NewAuthKey(userID uuid.UUID, kind AuthKeyKind) *AuthKey {
	ttl := PasswordResetKeyTTL
	if kind == KeyRegistration {
		ttl = RegistrationKeyTTL
	}

	expires := time.Now().Add(ttl)
	return &AuthKey{
		ID:        uuid.New(),
		UserID:    &userID,
		Kind:      kind,
		ExpiresAt: &expires,
	}
}

// Consumed reports whether the key has already been used
func (k *AuthKey) Consumed() bool {
	return k != nil && k.ConsumedAt != nil
}

// Expired reports whether the key is outside its validity window
func (k *AuthKey) Expired() bool {
	if k == nil || k.ExpiresAt == nil {
		return true
	}
	return time.Now().After(*k.ExpiresAt)
}
