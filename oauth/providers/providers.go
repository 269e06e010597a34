// Package providers builds oauth flow options from application settings.
package providers

import (
	"fmt"
	"net/http"
	"strings"

	accounts "github.com/tessellate-io/go-accounts"
	"github.com/tessellate-io/go-accounts/oauth"
	"github.com/tessellate-io/go-accounts/oauth/providers/github"
	"github.com/tessellate-io/go-accounts/oauth/providers/google"
)

// FromConfig maps the LOGIN_PROVIDERS settings to flow options. Unknown
// provider names are skipped with a warning; the callback URL for each
// provider is <callbackBase>/<name>/redirect.
func FromConfig(cfg accounts.Config, callbackBase string, logger accounts.Logger) []oauth.FlowOption {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}

	opts := make([]oauth.FlowOption, 0, len(cfg.GetLoginProviders()))

	for _, pc := range cfg.GetLoginProviders() {
		name := strings.ToLower(pc.Name)
		callback := fmt.Sprintf("%s/%s/redirect", strings.TrimRight(callbackBase, "/"), name)

		provider := build(name, pc, callback)
		if provider == nil {
			logger.Warn("skipping unknown login provider", "name", pc.Name)
			continue
		}

		opts = append(opts, oauth.WithProvider(provider))
	}

	return opts
}

func build(name string, pc accounts.ProviderConfig, callback string) oauth.Provider {
	switch name {
	case "github":
		return github.New(github.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			CallbackURL:  callback,
			HTTPClient:   http.DefaultClient,
		})
	case "google":
		return google.New(google.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			CallbackURL:  callback,
			HTTPClient:   http.DefaultClient,
		})
	default:
		return nil
	}
}
