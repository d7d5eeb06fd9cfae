package external

import (
	"context"
	"fmt"

	"github.com/chamaledger/identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ResolutionOutcome names how a verified profile was resolved.
type ResolutionOutcome string

const (
	// OutcomeMatchedProvider means an account already carried this
	// provider identity.
	OutcomeMatchedProvider ResolutionOutcome = "matched_provider"
	// OutcomeLinkedEmail means an existing account with the same email
	// was linked to the provider identity.
	OutcomeLinkedEmail ResolutionOutcome = "linked_email"
	// OutcomeCreated means a new account was provisioned.
	OutcomeCreated ResolutionOutcome = "created"
)

// Resolution is the result of resolving a verified profile.
type Resolution struct {
	User    *identity.User
	Outcome ResolutionOutcome
}

// Created reports whether the resolution provisioned a new account.
func (r *Resolution) Created() bool {
	return r != nil && r.Outcome == OutcomeCreated
}

type linkState int

const (
	stateMatchProvider linkState = iota
	stateMatchEmail
	stateCreate
	stateDone
)

// Linker resolves verified provider profiles to accounts. Resolution
// walks a fixed sequence of states: match by provider identity, link
// by email, then create, and stops at the first state that produces a
// user. Creation is gated on invitations the same way local signup is.
type Linker struct {
	repo              identity.RepositoryManager
	invitations       *identity.InvitationService
	requireInvitation bool
}

// NewLinker creates a Linker with invitation-gated account creation.
func NewLinker(repo identity.RepositoryManager, invitations *identity.InvitationService) *Linker {
	return &Linker{
		repo:              repo,
		invitations:       invitations,
		requireInvitation: true,
	}
}

// WithRequiredInvitation toggles the invitation gate for new accounts.
func (l *Linker) WithRequiredInvitation(required bool) *Linker {
	l.requireInvitation = required
	return l
}

// Resolve maps a verified profile to an account, creating or linking
// one as needed. invitationToken is only consulted when a new account
// has to be provisioned.
func (l *Linker) Resolve(ctx context.Context, profile *Profile, invitationToken string) (*Resolution, error) {
	if profile == nil || profile.ExternalID == "" {
		return nil, ErrProfileIncomplete.Clone()
	}
	if !profile.Provider.IsExternal() {
		return nil, ErrProviderNotFound.Clone()
	}

	state := stateMatchProvider
	for state != stateDone {
		switch state {
		case stateMatchProvider:
			resolution, next, err := l.matchProvider(ctx, profile)
			if err != nil {
				return nil, err
			}
			if resolution != nil {
				return resolution, nil
			}
			state = next
		case stateMatchEmail:
			resolution, next, err := l.matchEmail(ctx, profile)
			if err != nil {
				return nil, err
			}
			if resolution != nil {
				return resolution, nil
			}
			state = next
		case stateCreate:
			return l.create(ctx, profile, invitationToken)
		}
	}

	return nil, ErrVerificationFailed.Clone()
}

func (l *Linker) matchProvider(ctx context.Context, profile *Profile) (*Resolution, linkState, error) {
	user, err := l.repo.Users().GetByExternalID(ctx, profile.Provider, profile.ExternalID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, stateMatchEmail, nil
		}
		return nil, stateDone, fmt.Errorf("failed to look up provider identity: %w", err)
	}
	return &Resolution{User: user, Outcome: OutcomeMatchedProvider}, stateDone, nil
}

func (l *Linker) matchEmail(ctx context.Context, profile *Profile) (*Resolution, linkState, error) {
	if profile.Email == "" {
		return nil, stateCreate, nil
	}

	user, err := l.repo.Users().GetByEmail(ctx, profile.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, stateCreate, nil
		}
		return nil, stateDone, fmt.Errorf("failed to look up account by email: %w", err)
	}

	linked, err := l.repo.Users().LinkExternalIdentity(ctx, user.ID, profile.Provider, profile.ExternalID)
	if err != nil {
		return nil, stateDone, fmt.Errorf("failed to link provider identity: %w", err)
	}

	return &Resolution{User: linked, Outcome: OutcomeLinkedEmail}, stateDone, nil
}

func (l *Linker) create(ctx context.Context, profile *Profile, invitationToken string) (*Resolution, error) {
	if l.requireInvitation {
		if invitationToken == "" {
			return nil, identity.ErrInvitationInvalid.Clone()
		}
		ok, err := l.invitations.IsValid(ctx, invitationToken)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, identity.ErrInvitationInvalid.Clone()
		}
	}

	record := &identity.User{
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		Email:          profile.Email,
		Role:           identity.RoleMember,
		AuthMethod:     profile.Provider,
		ExternalAuthID: profile.ExternalID,
		IsActive:       true,
	}

	var created *identity.User
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = l.repo.Users().CreateTx(ctx, tx, record)
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		if invitationToken != "" {
			consumed, err := l.invitations.ConsumeTx(ctx, tx, invitationToken, created.ID)
			if err != nil {
				return err
			}
			if !consumed {
				return identity.ErrInvitationInvalid.Clone()
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Resolution{User: created, Outcome: OutcomeCreated}, nil
}
