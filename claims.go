package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is what the authorization layer trusts verbatim once
// signature, issuer, audience, and expiry validate.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID        string     `json:"uid,omitempty"`
	UserEmail  string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	UserRole   UserRole   `json:"role,omitempty"`
	AuthMethod AuthMethod `json:"auth_method,omitempty"`
}

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Email returns the email claim
func (c *SessionClaims) Email() string {
	return c.UserEmail
}

// Role returns the role claim
func (c *SessionClaims) Role() UserRole {
	return c.UserRole
}

// Method returns the auth method claim
func (c *SessionClaims) Method() AuthMethod {
	return c.AuthMethod
}

// HasRole checks if the claims carry a specific role
func (c *SessionClaims) HasRole(role string) bool {
	return string(c.UserRole) == role
}

// IsAtLeast checks if the role claim is at least the minimum required role
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return c.UserRole.IsAtLeast(UserRole(minRole))
}

// IsAdmin reports whether the claims carry the admin role.
func (c *SessionClaims) IsAdmin() bool {
	return c.UserRole == RoleAdmin
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
