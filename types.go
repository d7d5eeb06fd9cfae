package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	DisplayName() string
	Role() UserRole
	Method() AuthMethod
}

// Session is the product of successful authentication: a signed
// claims-bearing access token plus an opaque refresh artifact.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// SessionIssuer terminates every successful authentication flow.
type SessionIssuer interface {
	IssueSession(ctx context.Context, user *User) (*Session, error)
}

// TokenService signs and validates access tokens and produces
// refresh artifacts. The signing key never leaves the issuer.
type TokenService interface {
	Generate(identity Identity) (string, time.Time, error)
	Validate(tokenString string) (*SessionClaims, error)
	GenerateRefreshToken() (string, error)
}

// Config holds identity core options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetTokenExpiration() int
	GetRefreshExpiration() int
	GetInvitationValidityDays() int
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
}

type authIdentity struct {
	id       string
	email    string
	username string
	name     string
	role     UserRole
	method   AuthMethod
}

func (a authIdentity) ID() string          { return a.id }
func (a authIdentity) Email() string       { return a.email }
func (a authIdentity) Username() string    { return a.username }
func (a authIdentity) DisplayName() string { return a.name }
func (a authIdentity) Role() UserRole      { return a.role }
func (a authIdentity) Method() AuthMethod  { return a.method }

// IdentityFromUser adapts a stored user record to the Identity the
// token service signs for.
func IdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return authIdentity{
		id:       user.ID.String(),
		email:    user.Email,
		username: user.Username,
		name:     user.DisplayName(),
		role:     user.Role,
		method:   user.AuthMethod,
	}
}

// ParseIdentityID parses an Identity.ID back into a uuid.
func ParseIdentityID(identity Identity) (uuid.UUID, error) {
	if identity == nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	return uuid.Parse(identity.ID())
}

// NewDefaultLogger returns the stdout fallback logger.
func NewDefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
