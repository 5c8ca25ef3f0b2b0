package domain

import (
	"fmt"
	"strings"
)

// ProviderType identifies a social platform the application can publish to
type ProviderType string

const (
	ProviderTypeTwitter  ProviderType = "twitter"
	ProviderTypeLinkedIn ProviderType = "linkedin"
)

// SupportedProviders returns every provider with an OAuth adapter
func SupportedProviders() []ProviderType {
	return []ProviderType{
		ProviderTypeTwitter,
		ProviderTypeLinkedIn,
	}
}

// IsValid reports whether the provider is one of the supported platforms
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderTypeTwitter, ProviderTypeLinkedIn:
		return true
	default:
		return false
	}
}

// DisplayName returns a human-readable name for the provider
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderTypeTwitter:
		return "Twitter"
	case ProviderTypeLinkedIn:
		return "LinkedIn"
	default:
		return string(p)
	}
}

// MaxPostLength returns the platform's character limit for a single post
func (p ProviderType) MaxPostLength() int {
	switch p {
	case ProviderTypeTwitter:
		return 280
	case ProviderTypeLinkedIn:
		return 3000
	default:
		return 0
	}
}

// ParseProviderType converts a path segment or config value into a ProviderType.
// Matching is case-insensitive; "x" is accepted as an alias for twitter.
func ParseProviderType(s string) (ProviderType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "x" {
		v = string(ProviderTypeTwitter)
	}
	p := ProviderType(v)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
	return p, nil
}

// ProviderConfig holds the static OAuth client configuration for one provider.
// It is loaded once at startup and never mutated afterwards.
type ProviderConfig struct {
	Provider     ProviderType `json:"provider"`
	ClientID     string       `json:"client_id"`
	ClientSecret string       `json:"-"` // never serialize
	AuthURL      string       `json:"auth_url"`
	TokenURL     string       `json:"token_url"`
	UserInfoURL  string       `json:"user_info_url"`
	Scopes       []string     `json:"scopes"`
	RedirectURI  string       `json:"redirect_uri"`
}

// IsConfigured checks that client credentials are present
func (c *ProviderConfig) IsConfigured() bool {
	return c != nil && c.ClientID != "" && c.ClientSecret != ""
}

// MissingFields lists the required settings that are empty
func (c *ProviderConfig) MissingFields() []string {
	if c == nil {
		return []string{"client_id", "client_secret", "redirect_uri"}
	}
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	return missing
}
