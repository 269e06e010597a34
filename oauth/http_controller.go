package oauth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	accounts "github.com/tessellate-io/go-accounts"
)

// RouteRegistrar captures the router methods used by the controller
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController mounts the provider login round trip
type HTTPController struct {
	flow    *Flow
	backend *accounts.Backend
	config  HTTPConfig
}

// HTTPConfig configures the HTTP controller
type HTTPConfig struct {
	// PathPrefix for routes (default: "/oauth")
	PathPrefix string

	// ErrorRedirect is the redirect for auth errors
	ErrorRedirect string

	// ErrorHandler handles errors (optional)
	ErrorHandler func(ctx router.Context, err error) error
}

// NewHTTPController creates the controller over a flow and the backend used
// to bind the resulting session.
func NewHTTPController(flow *Flow, backend *accounts.Backend, cfg HTTPConfig) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/oauth"
	}
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = "/login?error=oauth_failed"
	}

	return &HTTPController{
		flow:    flow,
		backend: backend,
		config:  cfg,
	}
}

// RegisterRoutes mounts the flow routes on the group
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/:provider/redirect", c.Callback)
	group.Get("/:provider", c.BeginAuth)
}

// BeginAuth redirects the client to the provider authorization URL. An
// unknown provider name is a 404.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	providerName := ctx.Param("provider")

	redirect, err := c.flow.BeginAuth(ctx.Context(), providerName)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return ctx.Status(router.StatusNotFound).SendString("unknown provider")
		}
		return c.handleError(ctx, err)
	}

	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback completes the flow: verifies state, resolves the account, logs
// the user in, and redirects to their landing page.
func (c *HTTPController) Callback(ctx router.Context) error {
	providerName := ctx.Param("provider")
	code := ctx.Query("code")
	state := ctx.Query("state")

	if errCode := ctx.Query("error"); errCode != "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		if errDesc := ctx.Query("error_description"); errDesc != "" {
			redirectURL = appendQueryParam(redirectURL, "desc", errDesc)
		}
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	if code == "" || state == "" {
		redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
	}

	result, err := c.flow.CompleteAuth(ctx.Context(), providerName, code, state)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return ctx.Status(router.StatusNotFound).SendString("unknown provider")
		}
		return c.handleError(ctx, err)
	}

	if err := c.backend.Login(ctx, result.User); err != nil {
		return c.handleError(ctx, err)
	}

	return ctx.Redirect(result.RedirectURL, http.StatusTemporaryRedirect)
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}

	code := "oauth_failed"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		code = strings.ToLower(richErr.TextCode)
	}

	redirectURL := appendQueryParam(c.config.ErrorRedirect, "error", code)
	return ctx.Redirect(redirectURL, http.StatusTemporaryRedirect)
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
