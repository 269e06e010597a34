package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// MintClaims is the payload of an API token: the user it belongs to and the
// application the token was minted for.
type MintClaims struct {
	jwt.RegisteredClaims
	Username    string `json:"username"`
	Application string `json:"application"`
}

// TokenMinter issues API bearer tokens for authenticated users. Tokens carry
// no expiry unless the minter is configured with one; callers own that policy.
type TokenMinter struct {
	signingKey  []byte
	application string
	ttl         time.Duration
	logger      Logger
}

type TokenMinterOption func(*TokenMinter)

// WithTokenTTL sets an expiry on minted tokens. Zero means no expiry.
func WithTokenTTL(ttl time.Duration) TokenMinterOption {
	return func(tm *TokenMinter) {
		tm.ttl = ttl
	}
}

func WithTokenLogger(logger Logger) TokenMinterOption {
	return func(tm *TokenMinter) {
		if logger != nil {
			tm.logger = logger
		}
	}
}

func NewTokenMinter(signingKey []byte, application string, opts ...TokenMinterOption) *TokenMinter {
	tm := &TokenMinter{
		signingKey:  signingKey,
		application: application,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		opt(tm)
	}

	return tm
}

// Mint signs a token for the user
func (tm *TokenMinter) Mint(user *User) (string, error) {
	if user == nil {
		return "", errors.New("user must not be nil", errors.CategoryInternal)
	}

	now := time.Now()
	claims := &MintClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID.String(),
			Issuer:   tm.application,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Username:    user.Username,
		Application: tm.application,
	}

	if tm.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(tm.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(tm.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Validate parses and verifies a minted token
func (tm *TokenMinter) Validate(raw string) (*MintClaims, error) {
	claims := &MintClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			tm.logger.Error("token validate unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.signingKey, nil
	})

	if err != nil || !token.Valid {
		return nil, errors.Wrap(err, errors.CategoryAuth, "invalid token").
			WithCode(errors.CodeUnauthorized)
	}

	return claims, nil
}
