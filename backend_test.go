package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/tessellate-io/go-accounts"
)

func newTestUser(t *testing.T, password string) *accounts.User {
	t.Helper()

	hash, err := accounts.HashPassword(password)
	require.NoError(t, err)

	return &accounts.User{
		ID:           uuid.New(),
		Username:     "peperone",
		Email:        "peperone@example.com",
		PasswordHash: hash,
		Active:       true,
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	user := newTestUser(t, "password12345")
	users := newStubUsers(user)
	backend := accounts.NewBackend(newStubRepo(users, nil), testSettings())

	got, err := backend.Authenticate(context.Background(), "peperone", "password12345")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, []uuid.UUID{user.ID}, users.succeeded)
	assert.Empty(t, users.attempted)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	backend := accounts.NewBackend(newStubRepo(nil, nil), testSettings())

	_, err := backend.Authenticate(context.Background(), "nobody", "password12345")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	user := newTestUser(t, "password12345")
	users := newStubUsers(user)
	backend := accounts.NewBackend(newStubRepo(users, nil), testSettings())

	_, err := backend.Authenticate(context.Background(), "peperone", "not-the-password")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	assert.Equal(t, []uuid.UUID{user.ID}, users.attempted, "failed logins should be tracked")
}

func TestAuthenticateInactiveUser(t *testing.T) {
	user := newTestUser(t, "password12345")
	user.Active = false
	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), nil), testSettings())

	_, err := backend.Authenticate(context.Background(), "peperone", "password12345")
	assert.ErrorIs(t, err, accounts.ErrUserInactive)
}

func TestAuthenticateThrottlesAfterMaxAttempts(t *testing.T) {
	user := newTestUser(t, "password12345")
	now := time.Now()
	user.LoginAttempts = accounts.MaxLoginAttempts + 1
	user.LoginAttemptAt = &now

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), nil), testSettings())

	// even the right password is refused while throttled
	_, err := backend.Authenticate(context.Background(), "peperone", "password12345")
	assert.ErrorIs(t, err, accounts.ErrTooManyLoginAttempts)
}

func TestAuthenticateResetsAttemptsAfterCoolDown(t *testing.T) {
	user := newTestUser(t, "password12345")
	staleAttempt := time.Now().Add(-48 * time.Hour)
	user.LoginAttempts = accounts.MaxLoginAttempts + 3
	user.LoginAttemptAt = &staleAttempt

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), nil), testSettings())

	got, err := backend.Authenticate(context.Background(), "peperone", "password12345")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestCreateUser(t *testing.T) {
	users := newStubUsers()
	authKeys := newStubAuthKeys()
	mailer := &recordingMailer{}

	backend := accounts.NewBackend(newStubRepo(users, authKeys), testSettings()).
		WithMailer(mailer)

	user, err := backend.CreateUser(context.Background(), accounts.CreateUserInput{
		Email:     "goliat@example.com",
		Password:  "password12345",
		FirstName: "Goliat",
	})
	require.NoError(t, err)

	assert.Equal(t, "goliat", user.Username, "username defaults to the email local part")
	assert.True(t, user.Active)
	assert.False(t, user.EmailConfirmed, "self served signups start unconfirmed")
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NoError(t, accounts.ComparePasswordAndHash("password12345", user.PasswordHash))

	require.Len(t, authKeys.created, 1)
	key := authKeys.created[0]
	assert.Equal(t, accounts.KeyRegistration, key.Kind)
	assert.Equal(t, user.ID, *key.UserID)

	require.Len(t, mailer.registrations, 1)
	assert.Equal(t, key.ID, mailer.registrations[0].ID)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	existing := newTestUser(t, "password12345")
	backend := accounts.NewBackend(newStubRepo(newStubUsers(existing), nil), testSettings())

	_, err := backend.CreateUser(context.Background(), accounts.CreateUserInput{
		Email:    existing.Email,
		Password: "password12345",
	})
	require.Error(t, err)
	assert.True(t, accounts.IsAuthenticationError(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfirmRegistration(t *testing.T) {
	user := newTestUser(t, "password12345")
	user.EmailConfirmed = false

	users := newStubUsers(user)
	key := accounts.NewAuthKey(user.ID, accounts.KeyRegistration)
	authKeys := newStubAuthKeys(key)

	backend := accounts.NewBackend(newStubRepo(users, authKeys), testSettings())

	got, err := backend.ConfirmRegistration(context.Background(), key.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, got.EmailConfirmed)
	assert.True(t, key.Consumed())

	// the same link must not confirm twice
	_, err = backend.ConfirmRegistration(context.Background(), key.ID.String())
	assert.ErrorIs(t, err, accounts.ErrAuthKeyConsumed)
}

func TestConfirmRegistrationBadKey(t *testing.T) {
	backend := accounts.NewBackend(newStubRepo(nil, nil), testSettings())

	_, err := backend.ConfirmRegistration(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.True(t, accounts.IsAuthenticationError(err))

	_, err = backend.ConfirmRegistration(context.Background(), uuid.New().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown or invalid key")
}

func TestConfirmRegistrationExpiredKey(t *testing.T) {
	user := newTestUser(t, "password12345")
	key := accounts.NewAuthKey(user.ID, accounts.KeyRegistration)
	expired := time.Now().Add(-time.Hour)
	key.ExpiresAt = &expired

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), newStubAuthKeys(key)), testSettings())

	_, err := backend.ConfirmRegistration(context.Background(), key.ID.String())
	assert.ErrorIs(t, err, accounts.ErrAuthKeyExpired)
}

func TestPasswordRecovery(t *testing.T) {
	user := newTestUser(t, "password12345")
	authKeys := newStubAuthKeys()
	mailer := &recordingMailer{}

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), authKeys), testSettings()).
		WithMailer(mailer)

	err := backend.PasswordRecovery(context.Background(), user.Email)
	require.NoError(t, err)

	require.Len(t, authKeys.created, 1)
	assert.Equal(t, accounts.KeyPasswordReset, authKeys.created[0].Kind)
	require.Len(t, mailer.resets, 1)
}

func TestPasswordRecoveryUnknownEmail(t *testing.T) {
	backend := accounts.NewBackend(newStubRepo(nil, nil), testSettings())

	err := backend.PasswordRecovery(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.True(t, accounts.IsAuthenticationError(err))
}

func TestPasswordResetRoundTrip(t *testing.T) {
	user := newTestUser(t, "old-password-123")
	key := accounts.NewAuthKey(user.ID, accounts.KeyPasswordReset)

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), newStubAuthKeys(key)), testSettings())

	got, err := backend.GetUserByAuthKey(context.Background(), key.ID.String())
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, backend.SetPassword(context.Background(), got, "new-password-123"))
	require.NoError(t, backend.AuthKeyUsed(context.Background(), key.ID.String()))

	assert.NoError(t, accounts.ComparePasswordAndHash("new-password-123", user.PasswordHash))
	assert.Error(t, accounts.ComparePasswordAndHash("old-password-123", user.PasswordHash))

	// key is single use
	_, err = backend.GetUserByAuthKey(context.Background(), key.ID.String())
	assert.ErrorIs(t, err, accounts.ErrAuthKeyConsumed)
	assert.ErrorIs(t, backend.AuthKeyUsed(context.Background(), key.ID.String()), accounts.ErrAuthKeyConsumed)
}

func TestGetUserByAuthKeyWrongKind(t *testing.T) {
	user := newTestUser(t, "password12345")
	key := accounts.NewAuthKey(user.ID, accounts.KeyRegistration)

	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), newStubAuthKeys(key)), testSettings())

	// registration keys must not authorize password resets
	_, err := backend.GetUserByAuthKey(context.Background(), key.ID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown or invalid key")
}

func TestGetOrRegisterOAuthUserCreatesConfirmedAccount(t *testing.T) {
	users := newStubUsers()
	backend := accounts.NewBackend(newStubRepo(users, nil), testSettings())

	user, err := backend.GetOrRegisterOAuthUser(context.Background(), accounts.CreateUserInput{
		Email:     "octocat@example.com",
		FirstName: "Octo",
		LastName:  "Cat",
	})
	require.NoError(t, err)

	assert.Equal(t, "octocat", user.Username)
	assert.True(t, user.Active)
	assert.True(t, user.EmailConfirmed, "provider vouched for the email")
	assert.NotEmpty(t, user.PasswordHash)

	// a second login with the same email resolves the same account
	again, err := backend.GetOrRegisterOAuthUser(context.Background(), accounts.CreateUserInput{
		Email: "octocat@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Len(t, users.registered, 1)
}

func TestUserFromSession(t *testing.T) {
	user := newTestUser(t, "password12345")
	backend := accounts.NewBackend(newStubRepo(newStubUsers(user), nil), testSettings())

	session := &accounts.Session{UserID: user.ID.String(), Username: user.Username}

	got, err := backend.UserFromSession(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = backend.UserFromSession(context.Background(), nil)
	assert.ErrorIs(t, err, accounts.ErrUnableToFindSession)

	user.Active = false
	_, err = backend.UserFromSession(context.Background(), session)
	assert.ErrorIs(t, err, accounts.ErrUserInactive)
}
