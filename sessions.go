package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultRefreshExpirationDays bounds how long a refresh grant can be
// exchanged before the subject must log in again.
const DefaultRefreshExpirationDays = 7

// SessionService assembles full sessions: a signed access token plus a
// persisted, rotated refresh grant. Refresh artifacts are stored only
// as sha256 digests; the cleartext exists once, in the response.
type SessionService struct {
	repo        RepositoryManager
	tokens      TokenService
	refreshDays int
	logger      Logger
}

var _ SessionIssuer = (*SessionService)(nil)

// NewSessionService creates a new SessionService. refreshDays <= 0
// falls back to the 7 day default.
func NewSessionService(repo RepositoryManager, tokens TokenService, refreshDays int) *SessionService {
	if refreshDays <= 0 {
		refreshDays = DefaultRefreshExpirationDays
	}
	return &SessionService{
		repo:        repo,
		tokens:      tokens,
		refreshDays: refreshDays,
		logger:      defLogger{},
	}
}

func (s *SessionService) WithLogger(logger Logger) *SessionService {
	s.logger = logger
	return s
}

// IssueSession signs an access token for the user and persists a fresh
// refresh grant alongside it.
func (s *SessionService) IssueSession(ctx context.Context, user *User) (*Session, error) {
	if user == nil {
		return nil, ErrIdentityNotFound.Clone()
	}

	accessToken, expiresAt, err := s.tokens.Generate(IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	record := &RefreshToken{
		TokenHash: hashRefreshToken(refreshToken),
		UserID:    user.ID,
		ExpiresAt: time.Now().AddDate(0, 0, s.refreshDays),
	}

	if _, err := s.repo.RefreshTokens().Create(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist refresh grant")
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// Exchange trades a refresh artifact for a new session, revoking the
// presented grant in the same transaction (rotation). Unknown,
// expired, and revoked grants all fold into ErrInvalidCredentials.
func (s *SessionService) Exchange(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidCredentials.Clone()
	}

	var user *User

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		grant, err := s.repo.RefreshTokens().GetByHashTx(ctx, tx, hashRefreshToken(refreshToken))
		if err != nil {
			if errors.IsNotFound(err) {
				return ErrInvalidCredentials.Clone()
			}
			return errors.Wrap(err, errors.CategoryInternal, "failed to look up refresh grant")
		}

		if !grant.Usable(time.Now()) {
			return ErrInvalidCredentials.Clone()
		}

		if user, err = s.repo.Users().GetByIDTx(ctx, tx, grant.UserID); err != nil {
			if errors.IsNotFound(err) {
				return ErrInvalidCredentials.Clone()
			}
			return errors.Wrap(err, errors.CategoryInternal, "failed to load refresh subject")
		}

		if !user.IsActive {
			return ErrAccountDeactivated.Clone()
		}

		return s.repo.RefreshTokens().RevokeTx(ctx, tx, grant.ID)
	})
	if err != nil {
		return nil, err
	}

	return s.IssueSession(ctx, user)
}

// RevokeAll invalidates every outstanding refresh grant for a subject.
func (s *SessionService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	revoked, err := s.repo.RefreshTokens().RevokeAllForUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh grants")
	}

	if revoked > 0 {
		s.logger.Info("revoked refresh grants", "user_id", userID.String(), "count", revoked)
	}

	return nil
}

// CleanupExpired drops refresh rows past their expiry.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.RefreshTokens().DeleteExpired(ctx)
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
