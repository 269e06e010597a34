package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	accounts "github.com/tessellate-io/go-accounts"
	"github.com/uptrace/bun"
)

// stubUsers is an in-memory Users implementation. Unimplemented repository
// methods panic through the embedded nil interface, which is fine: tests only
// exercise the methods below.
type stubUsers struct {
	accounts.Users

	mu    sync.Mutex
	users map[uuid.UUID]*accounts.User

	attempted  []uuid.UUID
	succeeded  []uuid.UUID
	registered []*accounts.User
	passwords  map[uuid.UUID]string
	confirmed  []uuid.UUID
}

func newStubUsers(seed ...*accounts.User) *stubUsers {
	s := &stubUsers{
		users:     map[uuid.UUID]*accounts.User{},
		passwords: map[uuid.UUID]string{},
	}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUsers) find(identifier string) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.ID.String() == identifier || u.Email == identifier || u.Username == identifier {
			return u, nil
		}
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{"identifier": identifier})
}

func (s *stubUsers) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	return s.find(identifier)
}

func (s *stubUsers) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*accounts.User, error) {
	return s.find(identifier)
}

func (s *stubUsers) RegisterTx(ctx context.Context, tx bun.IDB, user *accounts.User) (*accounts.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	s.users[user.ID] = user
	s.registered = append(s.registered, user)
	return user, nil
}

func (s *stubUsers) GetOrRegisterTx(ctx context.Context, tx bun.IDB, record *accounts.User) (*accounts.User, error) {
	if user, err := s.find(record.Email); err == nil {
		return user, nil
	}
	return s.RegisterTx(ctx, tx, record)
}

func (s *stubUsers) TrackAttemptedLogin(ctx context.Context, user *accounts.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempted = append(s.attempted, user.ID)
	return nil
}

func (s *stubUsers) TrackSuccessfulLogin(ctx context.Context, user *accounts.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded = append(s.succeeded, user.ID)
	return nil
}

func (s *stubUsers) SetPasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	user.PasswordHash = passwordHash
	s.passwords[id] = passwordHash
	return nil
}

func (s *stubUsers) ConfirmEmailTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.NewRecordNotFound()
	}

	user.EmailConfirmed = true
	s.confirmed = append(s.confirmed, id)
	return nil
}

// stubAuthKeys mirrors the single-use key semantics of the real repository
type stubAuthKeys struct {
	accounts.AuthKeys

	mu   sync.Mutex
	keys map[uuid.UUID]*accounts.AuthKey

	created []*accounts.AuthKey
}

func newStubAuthKeys(seed ...*accounts.AuthKey) *stubAuthKeys {
	s := &stubAuthKeys{keys: map[uuid.UUID]*accounts.AuthKey{}}
	for _, k := range seed {
		s.keys[k.ID] = k
	}
	return s
}

func (s *stubAuthKeys) CreateTx(ctx context.Context, tx bun.IDB, key *accounts.AuthKey, criteria ...repository.InsertCriteria) (*accounts.AuthKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key.ID] = key
	s.created = append(s.created, key)
	return key, nil
}

func (s *stubAuthKeys) getValid(id uuid.UUID, kind accounts.AuthKeyKind) (*accounts.AuthKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok || !strings.EqualFold(key.Kind, kind) {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String(), "kind": kind})
	}

	if key.Consumed() {
		return nil, accounts.ErrAuthKeyConsumed
	}

	if key.Expired() {
		return nil, accounts.ErrAuthKeyExpired
	}

	return key, nil
}

func (s *stubAuthKeys) GetValid(ctx context.Context, id uuid.UUID, kind accounts.AuthKeyKind) (*accounts.AuthKey, error) {
	return s.getValid(id, kind)
}

func (s *stubAuthKeys) GetValidTx(ctx context.Context, tx bun.IDB, id uuid.UUID, kind accounts.AuthKeyKind) (*accounts.AuthKey, error) {
	return s.getValid(id, kind)
}

func (s *stubAuthKeys) consume(id uuid.UUID) (*accounts.AuthKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok || key.Consumed() {
		return nil, accounts.ErrAuthKeyConsumed
	}

	now := time.Now()
	key.ConsumedAt = &now
	return key, nil
}

func (s *stubAuthKeys) Consume(ctx context.Context, id uuid.UUID) (*accounts.AuthKey, error) {
	return s.consume(id)
}

func (s *stubAuthKeys) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*accounts.AuthKey, error) {
	return s.consume(id)
}

// stubRepo wires the stub repositories behind the RepositoryManager contract.
// RunInTx passes a zero transaction handle; the stubs never touch it.
type stubRepo struct {
	users    *stubUsers
	authKeys *stubAuthKeys
}

func newStubRepo(users *stubUsers, authKeys *stubAuthKeys) *stubRepo {
	if users == nil {
		users = newStubUsers()
	}
	if authKeys == nil {
		authKeys = newStubAuthKeys()
	}
	return &stubRepo{users: users, authKeys: authKeys}
}

func (s *stubRepo) Validate() error { return nil }

func (s *stubRepo) MustValidate() {}

func (s *stubRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (s *stubRepo) Users() accounts.Users { return s.users }

func (s *stubRepo) AuthKeys() accounts.AuthKeys { return s.authKeys }

// recordingMailer captures the keys handed to it
type recordingMailer struct {
	mu            sync.Mutex
	registrations []*accounts.AuthKey
	resets        []*accounts.AuthKey
}

func (m *recordingMailer) SendRegistrationKey(ctx context.Context, user *accounts.User, key *accounts.AuthKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, key)
	return nil
}

func (m *recordingMailer) SendPasswordResetKey(ctx context.Context, user *accounts.User, key *accounts.AuthKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, key)
	return nil
}

func testSettings() accounts.Settings {
	return accounts.Settings{
		SecretKey:       "test-signing-key",
		AppName:         "accounts-test",
		SessionDuration: 24,
		LoginRedirect:   "/home",
	}
}
