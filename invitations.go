package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultInvitationValidityDays is the admission window when the
// creator does not pick one.
const DefaultInvitationValidityDays = 7

// invitationTokenEntropy is the raw byte length of an invitation token
// before URL-safe encoding.
const invitationTokenEntropy = 32

// InvitationService owns the invitation lifecycle: creation,
// validation probes, atomic consumption, and cleanup.
type InvitationService struct {
	repo   RepositoryManager
	logger Logger
}

// NewInvitationService creates a new InvitationService
func NewInvitationService(repo RepositoryManager) *InvitationService {
	return &InvitationService{
		repo:   repo,
		logger: defLogger{},
	}
}

func (s *InvitationService) WithLogger(logger Logger) *InvitationService {
	s.logger = logger
	return s
}

// Create mints a fresh single-use token for an administrator.
// validityDays <= 0 falls back to the 7 day default.
func (s *InvitationService) Create(ctx context.Context, creatorID uuid.UUID, validityDays int) (*Invitation, error) {
	if validityDays <= 0 {
		validityDays = DefaultInvitationValidityDays
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate invitation token")
	}

	record := &Invitation{
		Token:           token,
		ExpirationDate:  time.Now().AddDate(0, 0, validityDays),
		IsUsed:          false,
		CreatedByUserID: creatorID,
	}

	created, err := s.repo.Invitations().Create(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist invitation")
	}

	s.logger.Info("invitation created", "creator_id", creatorID.String(), "expires", created.ExpirationDate)

	return created, nil
}

// IsValid is the read-only UI probe: is this link still good. It is
// never a consumption guarantee; Consume re-checks under the store's
// write guard.
func (s *InvitationService) IsValid(ctx context.Context, token string) (bool, error) {
	invitation, err := s.repo.Invitations().GetByToken(ctx, token)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to look up invitation")
	}

	return invitation.Valid(time.Now()), nil
}

// Consume atomically burns a token for a new identity. False means
// not found, already used, or expired; only store faults are errors.
func (s *InvitationService) Consume(ctx context.Context, token string, consumerID uuid.UUID) (bool, error) {
	return s.repo.Invitations().Consume(ctx, token, consumerID)
}

// ConsumeTx is Consume inside a caller-owned transaction, so a token
// burn can commit together with the identity it admits.
func (s *InvitationService) ConsumeTx(ctx context.Context, tx bun.IDB, token string, consumerID uuid.UUID) (bool, error) {
	return s.repo.Invitations().ConsumeTx(ctx, tx, token, consumerID)
}

// GetByID returns a single invitation for the admin surface.
func (s *InvitationService) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	invitation, err := s.repo.Invitations().GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound.Clone()
		}
		return nil, err
	}
	return invitation, nil
}

// ListValid returns unconsumed, unexpired invitations, newest first.
func (s *InvitationService) ListValid(ctx context.Context) ([]*Invitation, error) {
	return s.repo.Invitations().ListValid(ctx)
}

// Delete removes a single invitation by id.
func (s *InvitationService) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.repo.Invitations().DeleteByID(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("invitation deleted", "id", id.String())
	}
	return deleted, nil
}

// CleanupExpired removes expired never-consumed invitations. Safe to
// run on any schedule; the scheduler lives outside this core.
func (s *InvitationService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.Invitations().DeleteExpired(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to clean up invitations")
	}

	if removed > 0 {
		s.logger.Info("cleaned up expired invitations", "count", removed)
	}

	return removed, nil
}

// InvitationURL renders the registration link for a token.
func InvitationURL(baseURL, token string) string {
	if baseURL == "" {
		return "/register?token=" + token
	}
	return fmt.Sprintf("%s/register?token=%s", strings.TrimRight(baseURL, "/"), token)
}

func generateInvitationToken() (string, error) {
	buf := make([]byte, invitationTokenEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
