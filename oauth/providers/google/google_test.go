package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessellate-io/go-accounts/oauth"
)

func newTestProvider(server *httptest.Server) *Provider {
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://app.test/oauth/google/redirect",
		TokenURL:     server.URL + "/token",
		UserInfoURL:  server.URL + "/userinfo",
		HTTPClient:   server.Client(),
	})
}

func TestAuthCodeURL(t *testing.T) {
	provider := New(Config{
		ClientID:    "client-id",
		CallbackURL: "https://app.test/oauth/google/redirect",
	})

	raw := provider.AuthCodeURL("state-token", oauth.WithPKCE("challenge-value", "S256"))

	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "openid email profile", query.Get("scope"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "state-token", query.Get("state"))
	assert.Equal(t, "challenge-value", query.Get("code_challenge"))
}

func TestExchange(t *testing.T) {
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token":"ya29.token",
			"token_type":"Bearer",
			"expires_in":3600,
			"refresh_token":"refresh-token",
			"scope":"openid email profile",
			"id_token":"id-token-jwt"
		}`))
	}))
	defer server.Close()

	provider := newTestProvider(server)

	token, err := provider.Exchange(context.Background(), "auth-code", oauth.WithCodeVerifier("verifier-value"))
	require.NoError(t, err)

	assert.Equal(t, "ya29.token", token.AccessToken)
	assert.Equal(t, "refresh-token", token.RefreshToken)
	assert.Equal(t, []string{"openid", "email", "profile"}, token.Scopes)
	assert.Equal(t, "id-token-jwt", token.Raw["id_token"])
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, 5*time.Second)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "verifier-value", form.Get("code_verifier"))
}

func TestExchangeErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Code was already redeemed."}`))
	}))
	defer server.Close()

	provider := newTestProvider(server)

	_, err := provider.Exchange(context.Background(), "redeemed-code")
	require.Error(t, err)

	var perr *oauth.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "google", perr.Provider)
	assert.Equal(t, "invalid_grant", perr.Code)
	assert.Contains(t, perr.Error(), "Code was already redeemed.")
}

func TestUserInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"sub":"110248495921238986420",
			"email":"octocat@example.com",
			"email_verified":true,
			"name":"Octo Cat",
			"given_name":"Octo",
			"family_name":"Cat",
			"picture":"https://lh3.test/photo.jpg"
		}`))
	}))
	defer server.Close()

	provider := newTestProvider(server)

	profile, err := provider.UserInfo(context.Background(), &oauth.Token{AccessToken: "ya29.token"})
	require.NoError(t, err)

	assert.Equal(t, "110248495921238986420", profile.ProviderUserID)
	assert.Equal(t, "google", profile.Provider)
	assert.Equal(t, "octocat@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "Octo", profile.FirstName)
	assert.Equal(t, "Cat", profile.LastName)
	assert.Equal(t, "https://lh3.test/photo.jpg", profile.AvatarURL)
}

func TestUserInfoAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`))
	}))
	defer server.Close()

	provider := newTestProvider(server)

	_, err := provider.UserInfo(context.Background(), &oauth.Token{AccessToken: "expired"})
	require.Error(t, err)

	var perr *oauth.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "UNAUTHENTICATED", perr.Code)
	assert.Contains(t, perr.Error(), "invalid authentication credentials")
}
