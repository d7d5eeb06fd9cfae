package external_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/chamaledger/identity"
	"github.com/chamaledger/identity/external"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockVerifier implements external.Verifier
type MockVerifier struct {
	mock.Mock
	provider identity.AuthMethod
}

func NewMockVerifier(provider identity.AuthMethod) *MockVerifier {
	return &MockVerifier{provider: provider}
}

func (m *MockVerifier) Name() identity.AuthMethod {
	return m.provider
}

func (m *MockVerifier) Verify(ctx context.Context, accessToken string) (*external.Profile, error) {
	args := m.Called(ctx, accessToken)
	var profile *external.Profile
	if p, ok := args.Get(0).(*external.Profile); ok {
		profile = p
	}
	return profile, args.Error(1)
}

// MockSessionIssuer implements identity.SessionIssuer
type MockSessionIssuer struct {
	mock.Mock
}

func (m *MockSessionIssuer) IssueSession(ctx context.Context, user *identity.User) (*identity.Session, error) {
	args := m.Called(ctx, user)
	var session *identity.Session
	if s, ok := args.Get(0).(*identity.Session); ok {
		session = s
	}
	return session, args.Error(1)
}

// memRepo is a small in-memory identity.RepositoryManager covering the
// lookups and writes the linking flow performs.
type memRepo struct {
	users       *memUsers
	invitations *memInvitations
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:       &memUsers{records: map[uuid.UUID]*identity.User{}},
		invitations: &memInvitations{records: map[uuid.UUID]*identity.Invitation{}},
	}
}

func (m *memRepo) Validate() error { return nil }
func (m *memRepo) MustValidate()   {}

func (m *memRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	m.users.begin()
	var tx bun.Tx
	if err := f(ctx, tx); err != nil {
		m.users.rollback()
		return err
	}
	m.users.commit()
	return nil
}

func (m *memRepo) Users() identity.Users                 { return m.users }
func (m *memRepo) Invitations() identity.Invitations     { return m.invitations }
func (m *memRepo) RefreshTokens() identity.RefreshTokens { return nil }

type memUsers struct {
	repository.Repository[*identity.User]
	mu       sync.Mutex
	records  map[uuid.UUID]*identity.User
	snapshot map[uuid.UUID]*identity.User
}

func (m *memUsers) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = map[uuid.UUID]*identity.User{}
	for id, u := range m.records {
		cp := *u
		m.snapshot[id] = &cp
	}
}

func (m *memUsers) rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot != nil {
		m.records = m.snapshot
		m.snapshot = nil
	}
}

func (m *memUsers) commit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
}

func (m *memUsers) add(u *identity.User) *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.records[u.ID] = u
	return u
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.records[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.User, error) {
	return m.GetByID(ctx, id)
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*identity.User, error) {
	return m.GetByEmail(ctx, email)
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.Username != "" && u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*identity.User, error) {
	return m.GetByUsername(ctx, username)
}

func (m *memUsers) GetByExternalID(ctx context.Context, method identity.AuthMethod, externalID string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.AuthMethod == method && u.ExternalAuthID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memUsers) GetByExternalIDTx(ctx context.Context, tx bun.IDB, method identity.AuthMethod, externalID string) (*identity.User, error) {
	return m.GetByExternalID(ctx, method, externalID)
}

func (m *memUsers) Create(ctx context.Context, record *identity.User, criteria ...repository.InsertCriteria) (*identity.User, error) {
	cp := *record
	created := m.add(&cp)
	out := *created
	return &out, nil
}

func (m *memUsers) CreateTx(ctx context.Context, tx bun.IDB, record *identity.User, criteria ...repository.InsertCriteria) (*identity.User, error) {
	return m.Create(ctx, record, criteria...)
}

func (m *memUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return repository.NewRecordNotFound()
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return m.UpdatePasswordHash(ctx, id, passwordHash)
}

func (m *memUsers) LinkExternalIdentity(ctx context.Context, id uuid.UUID, method identity.AuthMethod, externalID string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.AuthMethod = method
	u.ExternalAuthID = externalID
	cp := *u
	return &cp, nil
}

func (m *memUsers) LinkExternalIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID, method identity.AuthMethod, externalID string) (*identity.User, error) {
	return m.LinkExternalIdentity(ctx, id, method, externalID)
}

func (m *memUsers) UpdateRole(ctx context.Context, id uuid.UUID, role identity.UserRole) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (m *memUsers) SetActive(ctx context.Context, id uuid.UUID, active bool) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.IsActive = active
	cp := *u
	return &cp, nil
}

type memInvitations struct {
	repository.Repository[*identity.Invitation]
	mu      sync.Mutex
	records map[uuid.UUID]*identity.Invitation
}

func (m *memInvitations) add(i *identity.Invitation) *identity.Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	m.records[i.ID] = i
	return i
}

func (m *memInvitations) GetByID(ctx context.Context, id uuid.UUID) (*identity.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.records[id]; ok {
		cp := *i
		return &cp, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memInvitations) GetByToken(ctx context.Context, token string) (*identity.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.records {
		if i.Token == token {
			cp := *i
			return &cp, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (m *memInvitations) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*identity.Invitation, error) {
	return m.GetByToken(ctx, token)
}

func (m *memInvitations) Create(ctx context.Context, record *identity.Invitation, criteria ...repository.InsertCriteria) (*identity.Invitation, error) {
	cp := *record
	created := m.add(&cp)
	out := *created
	return &out, nil
}

func (m *memInvitations) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Invitation, criteria ...repository.InsertCriteria) (*identity.Invitation, error) {
	return m.Create(ctx, record, criteria...)
}

func (m *memInvitations) Consume(ctx context.Context, token string, consumerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.records {
		if i.Token != token {
			continue
		}
		if i.IsUsed || !i.ExpirationDate.After(time.Now()) {
			return false, nil
		}
		now := time.Now()
		i.IsUsed = true
		i.UsedByUserID = &consumerID
		i.UsedAt = &now
		return true, nil
	}
	return false, nil
}

func (m *memInvitations) ConsumeTx(ctx context.Context, tx bun.IDB, token string, consumerID uuid.UUID) (bool, error) {
	return m.Consume(ctx, token, consumerID)
}

func (m *memInvitations) ListValid(ctx context.Context) ([]*identity.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []*identity.Invitation{}
	for _, i := range m.records {
		if i.Valid(now) {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInvitations) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *memInvitations) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var removed int64
	for id, i := range m.records {
		if !i.IsUsed && !i.ExpirationDate.After(now) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}
