package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is one community member. Exactly one of PasswordHash or
// ExternalAuthID backs the record, consistent with AuthMethod.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username       string     `bun:"username,unique,nullzero" json:"username,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	AuthMethod     AuthMethod `bun:"auth_method,notnull" json:"auth_method,omitempty"`
	ExternalAuthID string     `bun:"external_auth_id,nullzero" json:"-"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	DateOfBirth    *time.Time `bun:"date_of_birth,nullzero" json:"date_of_birth,omitempty"`
	Address        string     `bun:"address" json:"address,omitempty"`
	NextOfKin      string     `bun:"next_of_kin" json:"next_of_kin,omitempty"`
	SpouseName     string     `bun:"spouse_name" json:"spouse_name,omitempty"`
	ChildrenNames  []string   `bun:"children_names,type:jsonb" json:"children_names,omitempty"`
	PhotoURL       string     `bun:"photo_url" json:"photo_url,omitempty"`
	IsActive       bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// DisplayName is the name we put in session claims.
func (u *User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// HasLocalCredentials reports whether the record can satisfy a
// username/password login.
func (u *User) HasLocalCredentials() bool {
	return u.AuthMethod == AuthMethodLocal && u.PasswordHash != ""
}

// Invitation is a single-use, time-bounded admission ticket. Once
// IsUsed flips true the token is dead regardless of expiration; used
// rows are kept as an audit trail.
type Invitation struct {
	bun.BaseModel   `bun:"table:invitations,alias:inv"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token           string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpirationDate  time.Time  `bun:"expiration_date,notnull" json:"expiration_date"`
	IsUsed          bool       `bun:"is_used,notnull" json:"is_used"`
	UsedByUserID    *uuid.UUID `bun:"used_by_user_id,nullzero,type:uuid" json:"used_by_user_id,omitempty"`
	UsedAt          *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedByUserID uuid.UUID  `bun:"created_by_user_id,notnull,type:uuid" json:"created_by_user_id,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Valid is the read-only probe. Consumption re-checks both conditions
// inside the store so a stale probe can never admit two accounts.
func (i *Invitation) Valid(now time.Time) bool {
	return !i.IsUsed && i.ExpirationDate.After(now)
}

// RefreshToken stores the sha256 digest of an issued refresh artifact.
// The artifact itself never touches the database.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Usable reports whether the stored grant can still be exchanged.
func (r *RefreshToken) Usable(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}
