package accounts

import (
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ProviderConfig describes one entry of the LOGIN_PROVIDERS configuration:
// an OAuth provider name, its font-awesome icon hint, and client credentials.
type ProviderConfig struct {
	Name         string `json:"name"`
	FA           string `json:"fa,omitempty"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Config holds the read-only application settings the package consumes
type Config interface {
	GetSecretKey() string
	GetAppName() string
	GetLoginProviders() []ProviderConfig
	GetAdminURL() string
	GetAdminPermissions() []string
	GetSessionCookieName() string
	GetSessionDuration() int
	GetSigningMethod() string
	GetLoginRedirect() string
}

// Settings is the plain-struct Config implementation
type Settings struct {
	SecretKey         string           `json:"secret_key"`
	AppName           string           `json:"app_name"`
	LoginProviders    []ProviderConfig `json:"login_providers"`
	AdminURL          string           `json:"admin_url"`
	AdminPermissions  []string         `json:"admin_permissions"`
	SessionCookieName string           `json:"session_cookie_name"`
	SessionDuration   int              `json:"session_duration"`
	SigningMethod     string           `json:"signing_method"`
	LoginRedirect     string           `json:"login_redirect"`
}

func (s Settings) GetSecretKey() string { return s.SecretKey }

func (s Settings) GetAppName() string { return s.AppName }

func (s Settings) GetLoginProviders() []ProviderConfig { return s.LoginProviders }

func (s Settings) GetAdminURL() string { return s.AdminURL }

func (s Settings) GetAdminPermissions() []string { return s.AdminPermissions }

// GetSessionCookieName returns the cookie carrying the session token
func (s Settings) GetSessionCookieName() string {
	if s.SessionCookieName == "" {
		return "session"
	}
	return s.SessionCookieName
}

// GetSessionDuration returns the session lifetime in hours
func (s Settings) GetSessionDuration() int {
	if s.SessionDuration <= 0 {
		return 24
	}
	return s.SessionDuration
}

func (s Settings) GetSigningMethod() string {
	if s.SigningMethod == "" {
		return "HS256"
	}
	return s.SigningMethod
}

// GetLoginRedirect returns the post-login landing path
func (s Settings) GetLoginRedirect() string {
	if s.LoginRedirect == "" {
		return "/"
	}
	return s.LoginRedirect
}

// SessionCookieDuration converts the configured duration into a time.Duration
func SessionCookieDuration(cfg Config) time.Duration {
	return time.Duration(cfg.GetSessionDuration()) * time.Hour
}

// DefaultLogger returns the fallback stdout logger used when no Logger is
// configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
