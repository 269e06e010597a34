package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximum number of attempts a user gets in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

const backendOpTimeout = time.Second * 10

// Backend implements the authentication business rules over the persistent
// store. It owns no HTTP state except through Sessions, which binds and
// clears the session cookie on Login/Logout.
type Backend struct {
	repo     RepositoryManager
	sessions *Sessions
	mailer   Mailer
	logger   Logger
}

func NewBackend(repo RepositoryManager, cfg Config) *Backend {
	logger := defLogger{}
	return &Backend{
		repo:     repo,
		sessions: NewSessions(cfg),
		mailer:   logMailer{logger: logger},
		logger:   logger,
	}
}

func (b *Backend) WithLogger(logger Logger) *Backend {
	if logger != nil {
		b.logger = logger
		b.sessions = b.sessions.WithLogger(logger)
	}
	return b
}

func (b *Backend) WithMailer(mailer Mailer) *Backend {
	if mailer != nil {
		b.mailer = mailer
	}
	return b
}

// Sessions exposes the session manager used for login/logout
func (b *Backend) Sessions() *Sessions {
	return b.sessions
}

// Authenticate verifies credentials against the store. Every mismatch path
// fails with a message safe for user display and never reveals which part of
// the credential was wrong.
func (b *Backend) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	user, err := b.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during authentication")
	}

	if !user.Active {
		return nil, ErrUserInactive
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := b.repo.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}
		return nil, ErrInvalidCredentials
	}

	if err := b.repo.Users().TrackSuccessfulLogin(ctx, user); err != nil {
		b.logger.Error("failed to track successful login", "error", err)
	}

	return user, nil
}

// Login binds the user identity to the current session
func (b *Backend) Login(c router.Context, user *User) error {
	token, err := b.sessions.Issue(user)
	if err != nil {
		b.logger.Error("login session issue error", "error", err)
		return err
	}

	b.sessions.Write(c, token)
	return nil
}

// Logout clears the session identity
func (b *Backend) Logout(c router.Context) {
	b.sessions.Clear(c)
}

// UserFromSession resolves the session subject against the store
func (b *Backend) UserFromSession(ctx context.Context, session *Session) (*User, error) {
	if !session.IsAuthenticated() {
		return nil, ErrUnableToFindSession
	}

	user, err := b.repo.Users().GetByIdentifier(ctx, session.GetUserID())
	if err != nil {
		return nil, err
	}

	if !user.Active {
		return nil, ErrUserInactive
	}

	return user, nil
}

// CreateUserInput carries the cleaned signup fields
type CreateUserInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone_number"`
}

// CreateUser persists a new, unconfirmed user and issues its registration
// key. Duplicate usernames or emails fail with a user-facing message.
func (b *Backend) CreateUser(ctx context.Context, input CreateUserInput) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during user creation")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, backendOpTimeout)
	defer cancel()

	user := &User{}

	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := b.ensureUnique(ctx, tx, input.Username, input.Email); err != nil {
			return err
		}

		hash, err := HashPassword(input.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
		}

		user.PasswordHash = hash
		user.Email = input.Email
		user.Phone = input.Phone
		user.FirstName = input.FirstName
		user.LastName = input.LastName
		user.Username = usernameOrLocalPart(input.Username, input.Email)
		user.Active = true
		user.EmailConfirmed = false
		if id, err := hashid.NewUUID(input.Email); err == nil {
			user.ID = id
		}

		if user, err = b.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		key := NewAuthKey(user.ID, KeyRegistration)
		if _, err := b.repo.AuthKeys().CreateTx(ctx, tx, key); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create registration key")
		}

		if err := b.mailer.SendRegistrationKey(ctx, user, key); err != nil {
			b.logger.Error("registration mail dispatch failed", "error", err)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user creation transaction failed")
	}

	return user, nil
}

// ConfirmRegistration resolves a registration key to its user, marks the
// account confirmed, and consumes the key.
func (b *Backend) ConfirmRegistration(ctx context.Context, key string) (*User, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return nil, NewAuthenticationError("the confirmation link is not valid")
	}

	ctx, cancel := context.WithTimeout(ctx, backendOpTimeout)
	defer cancel()

	user := &User{}

	err = b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := b.repo.AuthKeys().GetValidTx(ctx, tx, id, KeyRegistration)
		if err != nil {
			return err
		}

		if _, err := b.repo.AuthKeys().ConsumeTx(ctx, tx, record.ID); err != nil {
			return err
		}

		if err := b.repo.Users().ConfirmEmailTx(ctx, tx, *record.UserID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not confirm user email")
		}

		if user, err = b.repo.Users().GetByIdentifierTx(ctx, tx, record.UserID.String()); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return nil, confirmationError(err)
	}

	return user, nil
}

// PasswordRecovery issues a reset key for the account registered under the
// email and dispatches it out-of-band.
func (b *Backend) PasswordRecovery(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, backendOpTimeout)
	defer cancel()

	return b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := b.repo.Users().GetByIdentifierTx(ctx, tx, email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return NewAuthenticationError("no account registered for this email address")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password recovery")
		}

		key := NewAuthKey(user.ID, KeyPasswordReset)
		if _, err := b.repo.AuthKeys().CreateTx(ctx, tx, key); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create password reset key")
		}

		if err := b.mailer.SendPasswordResetKey(ctx, user, key); err != nil {
			b.logger.Error("password reset mail dispatch failed", "error", err)
		}

		return nil
	})
}

// GetUserByAuthKey resolves a still-valid reset key to its user. Consumed or
// expired keys fail with an AuthenticationError.
func (b *Backend) GetUserByAuthKey(ctx context.Context, key string) (*User, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return nil, NewAuthenticationError("the link is not valid")
	}

	record, err := b.repo.AuthKeys().GetValid(ctx, id, KeyPasswordReset)
	if err != nil {
		return nil, confirmationError(err)
	}

	if record.UserID == nil {
		return nil, NewAuthenticationError("the link is not valid")
	}

	return b.repo.Users().GetByIdentifier(ctx, record.UserID.String())
}

// SetPassword hashes and persists a new password for the user
func (b *Backend) SetPassword(ctx context.Context, user *User, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	return b.repo.Users().SetPasswordHash(ctx, user.ID, hash)
}

// AuthKeyUsed marks a key consumed. A second call fails without side effects.
func (b *Backend) AuthKeyUsed(ctx context.Context, key string) error {
	id, err := uuid.Parse(key)
	if err != nil {
		return NewAuthenticationError("the link is not valid")
	}

	_, err = b.repo.AuthKeys().Consume(ctx, id)
	return err
}

// GetOrRegisterOAuthUser resolves the local account for an external identity,
// creating one on first login. Accounts created this way are confirmed (the
// provider vouched for the email) and carry an unguessable password hash.
func (b *Backend) GetOrRegisterOAuthUser(ctx context.Context, input CreateUserInput) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, backendOpTimeout)
	defer cancel()

	user := &User{}

	err := b.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &User{
			Email:          input.Email,
			Username:       usernameOrLocalPart(input.Username, input.Email),
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			PasswordHash:   RandomPasswordHash(),
			Active:         true,
			EmailConfirmed: true,
		}

		if id, err := hashid.NewUUID(input.Email); err == nil {
			record.ID = id
		}

		resolved, err := b.repo.Users().GetOrRegisterTx(ctx, tx, record)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not resolve external identity")
		}

		user = resolved
		return nil
	})

	if err != nil {
		return nil, err
	}

	return user, nil
}

func (b *Backend) ensureUnique(ctx context.Context, tx bun.IDB, username, email string) error {
	for _, identifier := range []string{username, email} {
		if identifier == "" {
			continue
		}

		_, err := b.repo.Users().GetByIdentifierTx(ctx, tx, identifier)
		if err == nil {
			return NewAuthenticationError("an account with this username or email already exists")
		}

		if !repository.IsRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check user uniqueness")
		}
	}

	return nil
}

// confirmationError keeps key resolution failures user-presentable
func confirmationError(err error) error {
	if goerrors.IsNotFound(err) {
		return NewNotFoundError("unknown or invalid key")
	}
	return err
}

func usernameOrLocalPart(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
