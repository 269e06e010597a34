package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	accounts "github.com/tessellate-io/go-accounts"
)

// Flow orchestrates the authorization code round trip and resolves the
// external profile to a local account.
type Flow struct {
	providers map[string]Provider
	states    StateManager
	backend   *accounts.Backend
	logger    accounts.Logger
	config    FlowConfig
}

// FlowConfig configures the flow
type FlowConfig struct {
	// DefaultRedirectURL is used when the state carries no redirect; empty
	// means redirect to the user's profile page (/<username>).
	DefaultRedirectURL string

	StateEncryptionKey []byte
	StateHMACKey       []byte
	StateTTL           time.Duration

	// RequireEmailVerified refuses profiles whose email the provider has not
	// verified.
	RequireEmailVerified bool
}

// FlowOption configures the flow
type FlowOption func(*Flow)

// WithProvider registers a provider under its lowercase name
func WithProvider(provider Provider) FlowOption {
	return func(f *Flow) {
		if provider == nil {
			return
		}
		f.providers[strings.ToLower(provider.Name())] = provider
	}
}

// WithStateManager sets a custom state manager
func WithStateManager(sm StateManager) FlowOption {
	return func(f *Flow) {
		f.states = sm
	}
}

// WithLogger sets the flow logger
func WithLogger(logger accounts.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFlow creates a flow over the accounts backend
func NewFlow(backend *accounts.Backend, config FlowConfig, opts ...FlowOption) *Flow {
	cfg := config
	if cfg.StateTTL == 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	f := &Flow{
		providers: make(map[string]Provider),
		backend:   backend,
		config:    cfg,
		logger:    accounts.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.states == nil {
		f.states = NewEncryptedStateManager(
			cfg.StateEncryptionKey,
			cfg.StateHMACKey,
			cfg.StateTTL,
		)
	}

	return f
}

// Provider resolves a registered provider by name, case-insensitive
func (f *Flow) Provider(name string) (Provider, bool) {
	p, ok := f.providers[strings.ToLower(name)]
	return p, ok
}

// AuthRedirect contains the authorization URL for redirecting users
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// BeginAuth starts the flow for a provider: a signed state with PKCE
// material, and the provider authorization URL to redirect to.
func (f *Flow) BeginAuth(ctx context.Context, providerName string) (*AuthRedirect, error) {
	provider, ok := f.Provider(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	codeChallenge := computeCodeChallenge(codeVerifier)

	state := &State{
		Nonce:        generateNonce(),
		Provider:     strings.ToLower(providerName),
		CodeVerifier: codeVerifier,
		RedirectURL:  f.config.DefaultRedirectURL,
		IssuedAt:     time.Now().Unix(),
		ExpiresAt:    time.Now().Add(f.config.StateTTL).Unix(),
	}

	stateToken, err := f.states.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL := provider.AuthCodeURL(stateToken, WithPKCE(codeChallenge, "S256"))

	return &AuthRedirect{
		URL:      authURL,
		State:    stateToken,
		Provider: strings.ToLower(providerName),
	}, nil
}

// AuthResult contains the outcome of a completed flow
type AuthResult struct {
	User        *accounts.User
	Provider    string
	Profile     *Profile
	RedirectURL string
}

// CompleteAuth finishes the flow after the provider callback: verifies the
// state, exchanges the code, fetches the profile, and resolves the local
// account.
func (f *Flow) CompleteAuth(ctx context.Context, providerName, code, stateToken string) (*AuthResult, error) {
	state, err := f.states.Decode(stateToken)
	if err != nil {
		if errors.Is(err, ErrStateExpired) {
			return nil, ErrStateExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	if state.Provider != strings.ToLower(providerName) {
		return nil, fmt.Errorf("%w: provider mismatch", ErrInvalidState)
	}

	provider, ok := f.Provider(providerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerName)
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		f.logger.Error("oauth exchange failed", "provider", providerName, "error", err)
		return nil, wrapProviderError(ErrTokenExchangeFailed, providerName, "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		f.logger.Error("oauth user info failed", "provider", providerName, "error", err)
		return nil, wrapProviderError(ErrUserInfoFailed, providerName, "user_info", err)
	}

	if f.config.RequireEmailVerified && !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	firstName, lastName := splitName(profile)

	user, err := f.backend.GetOrRegisterOAuthUser(ctx, accounts.CreateUserInput{
		Email:     profile.Email,
		Username:  profile.Username,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		return nil, err
	}

	redirect := state.RedirectURL
	if redirect == "" {
		redirect = "/" + user.Username
	}

	return &AuthResult{
		User:        user,
		Provider:    strings.ToLower(providerName),
		Profile:     profile,
		RedirectURL: redirect,
	}, nil
}

func splitName(profile *Profile) (string, string) {
	if profile.FirstName != "" || profile.LastName != "" {
		return profile.FirstName, profile.LastName
	}

	parts := strings.Fields(profile.Name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func wrapProviderError(base error, provider, operation string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		return fmt.Errorf("%w: %s", base, perr.Error())
	}
	return fmt.Errorf("%w: %s %s: %v", base, provider, operation, err)
}
