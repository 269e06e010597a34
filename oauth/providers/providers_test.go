package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/tessellate-io/go-accounts"
	"github.com/tessellate-io/go-accounts/oauth"
)

func TestFromConfig(t *testing.T) {
	cfg := accounts.Settings{
		LoginProviders: []accounts.ProviderConfig{
			{Name: "GitHub", ClientID: "gh-id", ClientSecret: "gh-secret"},
			{Name: "google", ClientID: "gg-id", ClientSecret: "gg-secret"},
			{Name: "myspace", ClientID: "ms-id"},
		},
	}

	opts := FromConfig(cfg, "https://app.test/oauth/", nil)
	require.Len(t, opts, 2, "unknown providers are skipped")

	flow := oauth.NewFlow(nil, oauth.FlowConfig{
		StateEncryptionKey: []byte("0123456789abcdef0123456789abcdef"),
		StateHMACKey:       []byte("fedcba9876543210fedcba9876543210"),
	}, opts...)

	github, ok := flow.Provider("github")
	require.True(t, ok)
	assert.Contains(t, github.AuthCodeURL("state"), "redirect_uri=https%3A%2F%2Fapp.test%2Foauth%2Fgithub%2Fredirect")

	_, ok = flow.Provider("google")
	assert.True(t, ok)

	_, ok = flow.Provider("myspace")
	assert.False(t, ok)
}

func TestBuildCallbackTrimsTrailingSlash(t *testing.T) {
	cfg := accounts.Settings{
		LoginProviders: []accounts.ProviderConfig{
			{Name: "github", ClientID: "gh-id"},
		},
	}

	opts := FromConfig(cfg, "https://app.test/oauth", nil)
	require.Len(t, opts, 1)
}
