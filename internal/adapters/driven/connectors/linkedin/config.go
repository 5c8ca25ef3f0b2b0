package linkedin

import "github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"

// LinkedIn OAuth 2.0, OpenID Connect and REST endpoints.
const (
	DefaultAuthURL     = "https://www.linkedin.com/oauth/v2/authorization"
	DefaultTokenURL    = "https://www.linkedin.com/oauth/v2/accessToken"
	DefaultUserInfoURL = "https://api.linkedin.com/v2/userinfo"
	DefaultAPIBaseURL  = "https://api.linkedin.com"
)

// MaxPostLength is the commentary limit for a member share.
const MaxPostLength = 3000

// DefaultScopes are the OpenID Connect scopes for identity.
var DefaultScopes = []string{"openid", "profile", "email"}

// Defaults returns LinkedIn's default OAuth configuration.
func Defaults() connectors.OAuthDefaults {
	return connectors.OAuthDefaults{
		AuthURL:      DefaultAuthURL,
		TokenURL:     DefaultTokenURL,
		Scopes:       append([]string(nil), DefaultScopes...),
		UserInfoURL:  DefaultUserInfoURL,
		SupportsPKCE: false,
	}
}
