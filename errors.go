package accounts

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

// ErrInvalidCredentials is returned for any credential mismatch. The message
// is safe for user display and deliberately does not say which part failed.
var ErrInvalidCredentials = errors.New("invalid username or password", errors.CategoryAuth).
	WithCode(http.StatusOK).
	WithTextCode("INVALID_CREDENTIALS")

// ErrTooManyLoginAttempts signals the login attempt cooldown kicked in
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryAuth).
	WithTextCode("TOO_MANY_ATTEMPTS")

// ErrUserInactive is returned when a deactivated account authenticates
var ErrUserInactive = errors.New("this account has been deactivated", errors.CategoryAuth).
	WithTextCode("USER_INACTIVE")

// ErrNotAuthenticated maps to a permission-denied (403) outcome
var ErrNotAuthenticated = errors.New("authentication required", errors.CategoryAuthz).
	WithCode(http.StatusForbidden).
	WithTextCode("NOT_AUTHENTICATED")

// ErrAlreadyAuthenticated maps to a method-conflict (405) outcome: an
// authenticated user hitting login, signup, or password recovery.
var ErrAlreadyAuthenticated = errors.New("method not allowed for authenticated users", errors.CategoryConflict).
	WithCode(http.StatusMethodNotAllowed).
	WithTextCode("ALREADY_AUTHENTICATED")

// ErrAuthKeyConsumed is returned when a single-use key is presented twice
var ErrAuthKeyConsumed = errors.New("this key has already been used", errors.CategoryAuth).
	WithTextCode("AUTH_KEY_CONSUMED")

// ErrAuthKeyExpired is returned for keys outside their validity window
var ErrAuthKeyExpired = errors.New("this key has expired", errors.CategoryAuth).
	WithTextCode("AUTH_KEY_EXPIRED")

// ErrMismatchedHashAndPassword is the bcrypt comparison failure
var ErrMismatchedHashAndPassword = errors.New("hashed password mismatch", errors.CategoryAuth).
	WithTextCode("PASSWORD_MISMATCH")

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("value must not be an empty string", errors.CategoryValidation)

// ErrUnableToFindSession is the error when a request carries no session cookie
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession signals a session cookie that failed validation
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// NewAuthenticationError creates a business-rule failure whose message is
// meant to be attached to a form and shown to the user.
func NewAuthenticationError(message string) *errors.Error {
	return errors.New(message, errors.CategoryAuth).
		WithCode(http.StatusOK).
		WithTextCode("AUTHENTICATION_ERROR")
}

// NewNotFoundError maps unknown resources and keys to a 404-equivalent
func NewNotFoundError(message string) *errors.Error {
	return errors.New(message, errors.CategoryNotFound).
		WithCode(errors.CodeNotFound)
}

// IsAuthenticationError reports whether err is a recoverable business-rule
// failure that should surface as a form message rather than an HTTP error.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuth
}

// ErrorStatus resolves the HTTP status an error maps to. Authentication
// errors keep a 200 status: they travel in the form JSON, not the status line.
func ErrorStatus(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusOK
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusMethodNotAllowed
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
