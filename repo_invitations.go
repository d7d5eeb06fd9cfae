package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Invitations owns the invitation token lifecycle. Consume is the one
// operation in the whole core where a lost race would mint two
// accounts from one ticket, so it is a single guarded UPDATE.
type Invitations interface {
	repository.Repository[*Invitation]

	GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error)
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error)

	Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error)

	Consume(ctx context.Context, token string, consumerID uuid.UUID) (bool, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, consumerID uuid.UUID) (bool, error)

	ListValid(ctx context.Context) ([]*Invitation, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type invitations struct {
	repository.Repository[*Invitation]
	db *bun.DB
}

var (
	_ Invitations                        = (*invitations)(nil)
	_ repository.Repository[*Invitation] = (*invitations)(nil)
)

func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(i *Invitation) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Invitation, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &invitations{
		Repository: repo,
		db:         db,
	}
}

func (a *invitations) GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	record := &Invitation{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record, nil
}

func (a *invitations) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	return a.GetByTokenTx(ctx, a.db, token)
}

func (a *invitations) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error) {
	record := &Invitation{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
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

func (a *invitations) Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *invitations) CreateTx(ctx context.Context, tx bun.IDB, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *invitations) Consume(ctx context.Context, token string, consumerID uuid.UUID) (bool, error) {
	return a.ConsumeTx(ctx, a.db, token, consumerID)
}

// ConsumeTx flips is_used exactly once. Validity is re-checked inside
// the UPDATE guard, not at an earlier probe, so N concurrent calls on
// the same token yield exactly one affected row. "Already used" is a
// normal false result, never an error.
func (a *invitations) ConsumeTx(ctx context.Context, tx bun.IDB, token string, consumerID uuid.UUID) (bool, error) {
	now := time.Now()

	res, err := tx.NewUpdate().
		Model((*Invitation)(nil)).
		Set("is_used = ?", true).
		Set("used_by_user_id = ?", consumerID).
		Set("used_at = ?", now).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.is_used = ?", false).
		Where("?TableAlias.expiration_date > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (a *invitations) ListValid(ctx context.Context) ([]*Invitation, error) {
	var records []*Invitation
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.is_used = ?", false).
		Where("?TableAlias.expiration_date > ?", time.Now()).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *invitations) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := a.db.NewDelete().
		Model((*Invitation)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// DeleteExpired removes invitations that expired without ever being
// consumed. Consumed rows stay put as an audit trail. Idempotent.
func (a *invitations) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := a.db.NewDelete().
		Model((*Invitation)(nil)).
		Where("?TableAlias.is_used = ?", false).
		Where("?TableAlias.expiration_date <= ?", time.Now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
