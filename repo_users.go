package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store: one row per community member, looked
// up by email, username, or provider identity.
type Users interface {
	repository.Repository[*User]

	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByExternalID(ctx context.Context, method AuthMethod, externalID string) (*User, error)
	GetByExternalIDTx(ctx context.Context, tx bun.IDB, method AuthMethod, externalID string) (*User, error)

	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	LinkExternalIdentity(ctx context.Context, id uuid.UUID, method AuthMethod, externalID string) (*User, error)
	LinkExternalIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, method AuthMethod, externalID string) (*User, error)

	// Role and active flag are mutable only through these, never by the
	// record's own owner. Enforcement sits at the HTTP layer guard.
	UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.selectOne(ctx, tx, "?TableAlias.id = ?", id)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

// GetByEmailTx resolves an email case-insensitively; email uniqueness
// is enforced on the lowercased value.
func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.selectOne(ctx, tx, "LOWER(?TableAlias.email) = LOWER(?)", email)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.selectOne(ctx, tx, "LOWER(?TableAlias.username) = LOWER(?)", username)
}

func (a *users) GetByExternalID(ctx context.Context, method AuthMethod, externalID string) (*User, error) {
	return a.GetByExternalIDTx(ctx, a.db, method, externalID)
}

func (a *users) GetByExternalIDTx(ctx context.Context, tx bun.IDB, method AuthMethod, externalID string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.auth_method = ?", method).
		Where("?TableAlias.external_auth_id = ?", externalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"auth_method": string(method),
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) selectOne(ctx context.Context, tx bun.IDB, where string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordHashTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *users) LinkExternalIdentity(ctx context.Context, id uuid.UUID, method AuthMethod, externalID string) (*User, error) {
	return a.LinkExternalIdentityTx(ctx, a.db, id, method, externalID)
}

// LinkExternalIdentityTx flips an account to provider-backed auth. The
// password hash is retained for local fallback; the provider/subject
// pair becomes authoritative for that login path.
func (a *users) LinkExternalIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, method AuthMethod, externalID string) (*User, error) {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("auth_method = ?", method).
		Set("external_auth_id = ?", externalID).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.GetByIDTx(ctx, tx, id)
}

func (a *users) UpdateRole(ctx context.Context, id uuid.UUID, role UserRole) (*User, error) {
	if !role.IsValid() {
		return nil, errors.New("invalid role", errors.CategoryBadInput).
			WithMetadata(map[string]any{"role": string(role)})
	}

	record := &User{
		ID:   id,
		Role: role,
	}

	return a.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
}

func (a *users) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return a.GetByID(ctx, id)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleMember
	}

	if record.AuthMethod == "" {
		record.AuthMethod = AuthMethodLocal
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
