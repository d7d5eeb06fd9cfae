package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Authenticator orchestrates local login, registration, and password
// change against the credential store, the hasher, the invitation
// ledger, and the session issuer.
type Authenticator struct {
	repo              RepositoryManager
	invitations       *InvitationService
	sessions          SessionIssuer
	requireInvitation bool
	logger            Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, invitations *InvitationService, sessions SessionIssuer) *Authenticator {
	return &Authenticator{
		repo:        repo,
		invitations: invitations,
		sessions:    sessions,
		logger:      defLogger{},
	}
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = logger
	return s
}

// WithRequiredInvitation makes registration refuse identities that
// present no invitation token at all.
func (s *Authenticator) WithRequiredInvitation(required bool) *Authenticator {
	s.requireInvitation = required
	return s
}

// Login authenticates local credentials. An unknown identifier, a
// provider-only account, and a wrong password all yield the same
// ErrInvalidCredentials so callers cannot tell which part failed.
func (s *Authenticator) Login(ctx context.Context, usernameOrEmail, password string) (*Session, error) {
	user, err := s.resolveIdentifier(ctx, usernameOrEmail)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Debug("login identifier not found")
			return nil, ErrInvalidCredentials.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve identity")
	}

	if user.PasswordHash == "" {
		// provider-backed account attempting a password login
		return nil, ErrInvalidCredentials.Clone()
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to verify password")
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated.Clone()
	}

	return s.sessions.IssueSession(ctx, user)
}

// RegisterMessage carries everything needed to admit a new local
// identity.
type RegisterMessage struct {
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	Username        string     `json:"username"`
	Password        string     `json:"password"`
	Phone           string     `json:"phone_number"`
	PhoneRegion     string     `json:"phone_region"`
	DateOfBirth     *time.Time `json:"date_of_birth"`
	InvitationToken string     `json:"invitation_token"`
	UseHashid       bool       `json:"-"`
}

func (e RegisterMessage) Type() string { return "identity.register" }

// Register admits a new local identity. Identity creation and
// invitation consumption run in one transaction so they commit
// together or not at all; the earlier IsValid call is only a cheap
// pre-check for friendlier failures.
func (s *Authenticator) Register(ctx context.Context, msg RegisterMessage) (*Session, error) {
	if msg.InvitationToken == "" && s.requireInvitation {
		return nil, ErrInvitationInvalid.Clone()
	}

	if msg.InvitationToken != "" {
		valid, err := s.invitations.IsValid(ctx, msg.InvitationToken)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, ErrInvitationInvalid.Clone()
		}
	}

	if err := s.ensureEmailFree(ctx, msg.Email); err != nil {
		return nil, err
	}

	if msg.Username != "" {
		if err := s.ensureUsernameFree(ctx, msg.Username); err != nil {
			return nil, err
		}
	}

	phone, err := NormalizePhone(msg.Phone, msg.PhoneRegion)
	if err != nil {
		return nil, err
	}

	// hashing is CPU-bound; do it before we hold a transaction
	hash, err := HashPassword(msg.Password)
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, errors.Wrap(richErr, errors.CategoryValidation, "invalid password provided")
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	user := &User{
		FirstName:    msg.FirstName,
		LastName:     msg.LastName,
		Email:        msg.Email,
		Username:     msg.Username,
		Phone:        phone,
		DateOfBirth:  msg.DateOfBirth,
		PasswordHash: hash,
		AuthMethod:   AuthMethodLocal,
		Role:         RoleMember,
		IsActive:     true,
	}

	if msg.UseHashid {
		if id, err := hashid.NewUUID(msg.Email); err == nil {
			user.ID = id
		}
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := s.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return errors.Wrap(err, errors.CategoryConflict, "could not create user")
		}
		user = created

		if msg.InvitationToken != "" {
			consumed, err := s.invitations.ConsumeTx(ctx, tx, msg.InvitationToken, created.ID)
			if err != nil {
				return errors.Wrap(err, errors.CategoryInternal, "failed to consume invitation")
			}
			if !consumed {
				// lost the race between pre-check and commit; roll
				// back the identity with the transaction
				return ErrInvitationInvalid.Clone()
			}
		}

		return nil
	})
	if err != nil {
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "registration transaction failed")
	}

	s.logger.Info("user registered", "email", user.Email)

	return s.sessions.IssueSession(ctx, user)
}

// ChangePassword replaces the password hash after verifying the
// current one against fresh store state.
func (s *Authenticator) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) (bool, error) {
	user, err := s.repo.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, ErrIdentityNotFound.Clone()
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to load identity")
	}

	if !user.HasLocalCredentials() {
		return false, ErrUnsupportedAuthMethod.Clone()
	}

	if err := ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedHashAndPassword) {
			return false, ErrInvalidCredentials.Clone()
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to verify password")
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	if err := s.repo.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to update password")
	}

	return true, nil
}

// SetUserRole changes another member's role. Acting on yourself is
// refused.
func (s *Authenticator) SetUserRole(ctx context.Context, actorID, userID uuid.UUID, role UserRole) (*User, error) {
	if actorID == userID {
		return nil, ErrSelfAdministration.Clone()
	}

	user, err := s.repo.Users().UpdateRole(ctx, userID, role)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound.Clone()
		}
		var richErr *errors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update role")
	}

	s.logger.Info("user role updated", "user_id", userID.String(), "role", string(role))

	return user, nil
}

// SetUserActive flips the active flag. Deactivation also revokes the
// account's outstanding refresh grants so it cannot come back through
// a token exchange; access tokens run out on their own.
func (s *Authenticator) SetUserActive(ctx context.Context, actorID, userID uuid.UUID, active bool) (*User, error) {
	if actorID == userID {
		return nil, ErrSelfAdministration.Clone()
	}

	if _, err := s.repo.Users().GetByID(ctx, userID); err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load identity")
	}

	user, err := s.repo.Users().SetActive(ctx, userID, active)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update active flag")
	}

	if !active {
		if _, err := s.repo.RefreshTokens().RevokeAllForUser(ctx, userID); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh grants")
		}
	}

	s.logger.Info("user active flag updated", "user_id", userID.String(), "active", active)

	return user, nil
}

// resolveIdentifier tries email first, then username. The caller folds
// not-found into the credential error.
func (s *Authenticator) resolveIdentifier(ctx context.Context, identifier string) (*User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	return s.repo.Users().GetByUsername(ctx, identifier)
}

func (s *Authenticator) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.Users().GetByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken.Clone()
	}
	if !errors.IsNotFound(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check email")
	}
	return nil
}

func (s *Authenticator) ensureUsernameFree(ctx context.Context, username string) error {
	_, err := s.repo.Users().GetByUsername(ctx, username)
	if err == nil {
		return ErrUsernameTaken.Clone()
	}
	if !errors.IsNotFound(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check username")
	}
	return nil
}
