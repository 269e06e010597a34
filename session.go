package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Session is the decoded per-client authentication state carried in the
// session cookie. A nil Session means an anonymous request.
type Session struct {
	UserID    string     `json:"user_id,omitempty"`
	Username  string     `json:"username,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Session) GetUserID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}

func (s *Session) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.GetUserID())
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != ""
}

func (s Session) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf("user=%s username=%s iat=%s", s.UserID, s.Username, issuedAt)
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// Sessions signs, verifies, and transports the session cookie
type Sessions struct {
	cfg    Config
	logger Logger
}

func NewSessions(cfg Config) *Sessions {
	return &Sessions{
		cfg:    cfg,
		logger: defLogger{},
	}
}

func (s *Sessions) WithLogger(logger Logger) *Sessions {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Issue mints the session token for a user
func (s *Sessions) Issue(user *User) (string, error) {
	if user == nil {
		return "", ErrUnableToDecodeSession
	}

	now := time.Now()
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.cfg.GetAppName(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionCookieDuration(s.cfg))),
		},
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.GetSecretKey()))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Decode validates a session token and returns the session state
func (s *Sessions) Decode(raw string) (*Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("session decode unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.GetSecretKey()), nil
	})

	if err != nil || !token.Valid {
		return nil, ErrUnableToDecodeSession
	}

	session := &Session{
		UserID:   claims.RegisteredClaims.Subject,
		Username: claims.Username,
	}

	if claims.IssuedAt != nil {
		session.IssuedAt = &claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = &claims.ExpiresAt.Time
	}

	return session, nil
}

// Write binds the session token to the response cookie
func (s *Sessions) Write(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     s.cfg.GetSessionCookieName(),
		Value:    token,
		Expires:  time.Now().Add(SessionCookieDuration(s.cfg)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// Clear expires the session cookie
func (s *Sessions) Clear(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     s.cfg.GetSessionCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// FromRequest resolves the session carried by the request cookie
func (s *Sessions) FromRequest(c router.Context) (*Session, error) {
	raw := c.Cookies(s.cfg.GetSessionCookieName())
	if raw == "" {
		return nil, ErrUnableToFindSession
	}
	return s.Decode(raw)
}
