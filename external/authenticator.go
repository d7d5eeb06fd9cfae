package external

import (
	"context"
	"fmt"

	"github.com/chamaledger/identity"
)

// AuthResult is the outcome of an external sign-in.
type AuthResult struct {
	Session  *identity.Session `json:"session"`
	Profile  *Profile          `json:"profile"`
	Outcome  ResolutionOutcome `json:"outcome"`
	NewUser  bool              `json:"new_user"`
	Provider string            `json:"provider"`
}

// Authenticator signs users in with provider-issued credentials. It
// verifies the credential with the provider, resolves the profile to
// an account through the Linker, and issues a session.
type Authenticator struct {
	registry *Registry
	linker   *Linker
	sessions identity.SessionIssuer
	logger   identity.Logger
}

// NewAuthenticator creates an external authenticator.
func NewAuthenticator(registry *Registry, linker *Linker, sessions identity.SessionIssuer) *Authenticator {
	return &Authenticator{
		registry: registry,
		linker:   linker,
		sessions: sessions,
	}
}

// WithLogger sets the logger.
func (a *Authenticator) WithLogger(logger identity.Logger) *Authenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Authenticate verifies accessToken with the named provider and signs
// the resolved account in. invitationToken is only consulted when the
// profile does not map to an existing account and one has to be
// created.
func (a *Authenticator) Authenticate(ctx context.Context, provider identity.AuthMethod, accessToken, invitationToken string) (*AuthResult, error) {
	verifier, ok := a.registry.Lookup(provider)
	if !ok {
		return nil, ErrProviderNotFound.Clone()
	}

	profile, err := verifier.Verify(ctx, accessToken)
	if err != nil {
		a.warn("credential verification failed for %s: %v", provider, err)
		return nil, err
	}

	resolution, err := a.linker.Resolve(ctx, profile, invitationToken)
	if err != nil {
		return nil, err
	}
	if resolution == nil || resolution.User == nil {
		return nil, identity.ErrIdentityNotFound.Clone()
	}

	if !resolution.User.IsActive {
		return nil, identity.ErrAccountDeactivated.Clone()
	}

	session, err := a.sessions.IssueSession(ctx, resolution.User)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return &AuthResult{
		Session:  session,
		Profile:  profile,
		Outcome:  resolution.Outcome,
		NewUser:  resolution.Created(),
		Provider: string(provider),
	}, nil
}

func (a *Authenticator) warn(format string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(format, args...)
	}
}
