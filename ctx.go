package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

// RequestContextKey is the router locals key holding the RequestContext
const RequestContextKey = "request_context"

var requestCtxKey = &contextKey{"request_context"}

type contextKey struct {
	name string
}

// RequestContext is the explicit per-request state handlers receive: the
// current user (nil when anonymous), the session it was resolved from, and
// the backend handle. It replaces any ambient per-request cache.
//
// Invariant: User is non-nil only when Session is a valid authenticated
// session; LoadRequestContext enforces this.
type RequestContext struct {
	User    *User
	Session *Session
	Backend *Backend
	Config  Config
}

// IsAuthenticated reports whether the request carries a logged-in user
func (rc *RequestContext) IsAuthenticated() bool {
	return rc != nil && rc.User != nil && rc.Session.IsAuthenticated()
}

// WithRequestContext sets the RequestContext in the given context
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey, rc)
}

// RequestFromContext finds the RequestContext from a standard context
func RequestFromContext(ctx context.Context) (*RequestContext, bool) {
	raw, ok := ctx.Value(requestCtxKey).(*RequestContext)
	return raw, ok
}

// RequestFrom resolves the RequestContext stored by LoadRequestContext. It
// always returns a usable value; an anonymous context when nothing was set.
func RequestFrom(c router.Context, backend *Backend, cfg Config) *RequestContext {
	if raw := c.Locals(RequestContextKey); raw != nil {
		if rc, ok := raw.(*RequestContext); ok {
			return rc
		}
	}

	return &RequestContext{Backend: backend, Config: cfg}
}

// LoadRequestContext is the middleware that populates the RequestContext
// from the session cookie. Requests without a valid session proceed as
// anonymous; a session whose user no longer resolves is treated the same.
func LoadRequestContext(backend *Backend, cfg Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			rc := &RequestContext{Backend: backend, Config: cfg}

			if session, err := backend.Sessions().FromRequest(c); err == nil {
				if user, err := backend.UserFromSession(c.Context(), session); err == nil {
					rc.User = user
					rc.Session = session
				}
			}

			c.Locals(RequestContextKey, rc)
			c.SetContext(WithRequestContext(c.Context(), rc))

			return hf(c)
		}
	}
}

// RequirePermission is an explicit precondition check handlers run before
// doing privileged work. It fails closed: no user, no permission.
func RequirePermission(rc *RequestContext, permission string) error {
	if !rc.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	if rc.User.Superuser {
		return nil
	}

	for _, p := range rc.Config.GetAdminPermissions() {
		if p == permission {
			return nil
		}
	}

	return ErrNotAuthenticated
}
