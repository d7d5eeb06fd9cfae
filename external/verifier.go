// Package external resolves externally-verified provider identities to
// internal accounts: matching, linking, or creating, under the same
// invitation gate as local registration.
package external

import (
	"context"

	"github.com/chamaledger/identity"
)

// Profile is the provider-asserted identity after verification. The
// linker trusts these fields as ground truth; the Verifier is the
// component that earned that trust.
type Profile struct {
	Provider   identity.AuthMethod `json:"provider"`
	ExternalID string              `json:"external_id"`
	Email      string              `json:"email"`
	FirstName  string              `json:"first_name"`
	LastName   string              `json:"last_name"`
}

// Verifier checks a provider-issued credential with the provider
// itself and returns the asserted profile. Implementations live in
// external/providers; nothing else in this package talks to the
// network.
type Verifier interface {
	Name() identity.AuthMethod
	Verify(ctx context.Context, accessToken string) (*Profile, error)
}

// Registry holds the configured verifiers keyed by provider.
type Registry struct {
	verifiers map[identity.AuthMethod]Verifier
}

// NewRegistry creates a registry from the given verifiers.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{
		verifiers: make(map[identity.AuthMethod]Verifier, len(verifiers)),
	}
	for _, v := range verifiers {
		if v != nil {
			r.verifiers[v.Name()] = v
		}
	}
	return r
}

// Register adds or replaces a verifier.
func (r *Registry) Register(v Verifier) {
	if v != nil {
		r.verifiers[v.Name()] = v
	}
}

// Lookup returns the verifier for a provider.
func (r *Registry) Lookup(provider identity.AuthMethod) (Verifier, bool) {
	v, ok := r.verifiers[provider]
	return v, ok
}

// Providers lists the configured provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, string(name))
	}
	return names
}
