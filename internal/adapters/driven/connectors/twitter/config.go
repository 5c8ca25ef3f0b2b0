package twitter

import "github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"

// Twitter OAuth 2.0 and API v2 endpoints.
const (
	DefaultAuthURL     = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL    = "https://api.twitter.com/2/oauth2/token"
	DefaultUserInfoURL = "https://api.twitter.com/2/users/me"
	DefaultAPIBaseURL  = "https://api.twitter.com"
)

// MaxTweetLength is the character limit for a standard tweet.
const MaxTweetLength = 280

// DefaultScopes reads identity, posts, and keeps a refresh token.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Defaults returns Twitter's default OAuth configuration.
func Defaults() connectors.OAuthDefaults {
	return connectors.OAuthDefaults{
		AuthURL:      DefaultAuthURL,
		TokenURL:     DefaultTokenURL,
		Scopes:       append([]string(nil), DefaultScopes...),
		UserInfoURL:  DefaultUserInfoURL,
		SupportsPKCE: true,
	}
}
