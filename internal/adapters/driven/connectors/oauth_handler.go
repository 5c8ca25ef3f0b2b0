package connectors

import (
	"context"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// OAuthHandler provides OAuth operations for a specific provider.
// Each provider (Twitter, LinkedIn) has its own implementation carrying its
// client configuration, so callers never branch on the provider.
type OAuthHandler interface {
	// Provider returns the platform this handler serves.
	Provider() domain.ProviderType

	// UsesPKCE reports whether BuildAuthURL expects a code challenge and
	// ExchangeCode expects the matching verifier.
	UsesPKCE() bool

	// Validate fails with a configuration error when client credentials or
	// the redirect URI are missing.
	Validate() error

	// RedirectURI returns the callback URL registered with the provider.
	RedirectURI() string

	// BuildAuthURL constructs the OAuth authorization URL.
	// Parameters:
	//   - state: CSRF protection token
	//   - codeChallenge: PKCE code challenge (ignored when UsesPKCE is false)
	// The result is deterministic for the same inputs and configuration.
	BuildAuthURL(state, codeChallenge string) string

	// ExchangeCode exchanges an authorization code for tokens.
	// Parameters:
	//   - ctx: Context for cancellation
	//   - code: Authorization code from callback
	//   - codeVerifier: PKCE code verifier (plain text, empty without PKCE)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*driven.OAuthToken, error)

	// RefreshToken refreshes an expired access token.
	RefreshToken(ctx context.Context, refreshToken string) (*driven.OAuthToken, error)

	// GetUserInfo fetches the identity behind an access token.
	GetUserInfo(ctx context.Context, accessToken string) (*driven.OAuthUserInfo, error)
}

// OAuthDefaults contains a provider's default OAuth configuration.
type OAuthDefaults struct {
	// AuthURL is the OAuth authorization endpoint.
	AuthURL string

	// TokenURL is the OAuth token exchange endpoint.
	TokenURL string

	// Scopes are the OAuth scopes to request.
	Scopes []string

	// UserInfoURL is the endpoint to fetch user information.
	UserInfoURL string

	// SupportsPKCE indicates if the provider supports PKCE.
	SupportsPKCE bool
}

// ApplyDefaults returns a copy of cfg with empty endpoints and scopes filled in.
func ApplyDefaults(cfg domain.ProviderConfig, defaults OAuthDefaults) domain.ProviderConfig {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaults.UserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), defaults.Scopes...)
	}
	return cfg
}

// ValidateConfig returns a configuration error listing the missing settings.
func ValidateConfig(cfg *domain.ProviderConfig) error {
	if missing := cfg.MissingFields(); len(missing) > 0 {
		var provider domain.ProviderType
		if cfg != nil {
			provider = cfg.Provider
		}
		return domain.NewConfigurationError(provider, missing...)
	}
	return nil
}
