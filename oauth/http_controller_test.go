package oauth

import (
	"context"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCallbackContext(provider string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.ParamsM["provider"] = provider
	ctx.On("Context").Return(context.Background())
	return ctx
}

func captureRedirect(ctx *router.MockContext) *string {
	var captured string
	ctx.On("Redirect", mock.Anything, []int{http.StatusTemporaryRedirect}).Run(func(args mock.Arguments) {
		captured = args.String(0)
	}).Return(nil)
	return &captured
}

func TestHTTPBeginAuthRedirectsToProvider(t *testing.T) {
	provider := newStubProvider("github")
	flow, _ := newTestFlow(FlowConfig{}, provider)
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	ctx := newCallbackContext("github")
	redirect := captureRedirect(ctx)

	require.NoError(t, controller.BeginAuth(ctx))
	assert.Contains(t, *redirect, "https://provider.test/authorize")
	assert.Contains(t, *redirect, "state=")
}

func TestHTTPBeginAuthUnknownProvider(t *testing.T) {
	flow, _ := newTestFlow(FlowConfig{}, newStubProvider("github"))
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	ctx := newCallbackContext("gitlab")
	ctx.On("Status", router.StatusNotFound).Return(ctx)
	ctx.On("SendString", "unknown provider").Return(nil)

	require.NoError(t, controller.BeginAuth(ctx))
	ctx.AssertExpectations(t)
}

func TestHTTPCallbackLogsUserIn(t *testing.T) {
	provider := newStubProvider("github")
	flow, _ := newTestFlow(FlowConfig{}, provider)
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	begin, err := flow.BeginAuth(context.Background(), "github")
	require.NoError(t, err)

	ctx := newCallbackContext("github")
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = begin.State

	var session *router.Cookie
	ctx.On("Cookie", mock.Anything).Run(func(args mock.Arguments) {
		session = args.Get(0).(*router.Cookie)
	}).Return()

	redirect := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	assert.Equal(t, "/octocat", *redirect)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Value)
	assert.True(t, session.HTTPOnly)
}

func TestHTTPCallbackProviderDeniedError(t *testing.T) {
	flow, _ := newTestFlow(FlowConfig{}, newStubProvider("github"))
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	ctx := newCallbackContext("github")
	ctx.QueriesM["error"] = "access_denied"
	ctx.QueriesM["error_description"] = "user said no"

	redirect := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, *redirect, "oauth_error=access_denied")
	assert.Contains(t, *redirect, "desc=")
}

func TestHTTPCallbackMissingParams(t *testing.T) {
	flow, _ := newTestFlow(FlowConfig{}, newStubProvider("github"))
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	ctx := newCallbackContext("github")
	redirect := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, *redirect, "error=missing_params")
}

func TestHTTPCallbackInvalidState(t *testing.T) {
	flow, _ := newTestFlow(FlowConfig{}, newStubProvider("github"))
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{})

	ctx := newCallbackContext("github")
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = "tampered"

	redirect := captureRedirect(ctx)

	require.NoError(t, controller.Callback(ctx))
	assert.Contains(t, *redirect, "error="+TextCodeInvalidState)
}

func TestHTTPCallbackCustomErrorHandler(t *testing.T) {
	flow, _ := newTestFlow(FlowConfig{}, newStubProvider("github"))

	var captured error
	controller := NewHTTPController(flow, flow.backend, HTTPConfig{
		ErrorHandler: func(ctx router.Context, err error) error {
			captured = err
			return nil
		},
	})

	ctx := newCallbackContext("github")
	ctx.QueriesM["code"] = "auth-code"
	ctx.QueriesM["state"] = "tampered"

	require.NoError(t, controller.Callback(ctx))
	require.ErrorIs(t, captured, ErrInvalidState)
}

func TestAppendQueryParam(t *testing.T) {
	assert.Equal(t, "", appendQueryParam("", "k", "v"))
	assert.Equal(t, "/login?error=x", appendQueryParam("/login", "error", "x"))
	assert.Equal(t, "/login?a=1&error=x", appendQueryParam("/login?a=1", "error", "x"))
}
