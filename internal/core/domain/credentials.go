package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultFlowTTL bounds how long a pending authorization may wait for its callback.
	DefaultFlowTTL = 10 * time.Minute

	// DefaultCredentialRetention is how long a linked credential is kept before sweeping.
	DefaultCredentialRetention = 3 * time.Hour

	// DefaultTokenLifetime is assumed when a provider omits expires_in.
	DefaultTokenLifetime = time.Hour

	// refreshWindow is how close to expiry a credential is considered stale.
	refreshWindow = 5 * time.Minute
)

// PendingFlow is one in-flight authorization attempt, keyed by its state token.
type PendingFlow struct {
	State        string       `json:"state"`
	Provider     ProviderType `json:"provider"`
	CodeVerifier string       `json:"-"` // PKCE verifier, empty when the provider does not use PKCE
	RedirectURI  string       `json:"redirect_uri"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// IsExpired reports whether the flow's retention window has elapsed at now
func (f *PendingFlow) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

// CredentialKey uniquely identifies a PlatformCredential
type CredentialKey struct {
	Provider       ProviderType
	ExternalUserID string
}

func (k CredentialKey) String() string {
	return string(k.Provider) + ":" + k.ExternalUserID
}

// PlatformCredential links the application's user to a platform account.
type PlatformCredential struct {
	Provider       ProviderType `json:"provider"`
	ExternalUserID string       `json:"external_user_id"`
	DisplayName    string       `json:"display_name"`
	Username       string       `json:"username,omitempty"`
	Email          string       `json:"email,omitempty"` // LinkedIn only

	AccessToken  string   `json:"-"` // Never serialize
	RefreshToken string   `json:"-"` // Never serialize
	TokenType    string   `json:"token_type,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	RetainUntil time.Time `json:"retain_until"`
}

// Key returns the (provider, external user id) identity of the credential
func (c *PlatformCredential) Key() CredentialKey {
	return CredentialKey{Provider: c.Provider, ExternalUserID: c.ExternalUserID}
}

// Validate checks the credential invariants
func (c *PlatformCredential) Validate() error {
	if !c.Provider.IsValid() {
		return fmt.Errorf("%w: provider %q", ErrInvalidInput, c.Provider)
	}
	if c.ExternalUserID == "" {
		return fmt.Errorf("%w: external user id is required", ErrInvalidInput)
	}
	if !c.ExpiresAt.After(c.IssuedAt) {
		return fmt.Errorf("%w: expires_at must be after issued_at", ErrInvalidInput)
	}
	return nil
}

// IsExpired checks if the access token has expired
func (c *PlatformCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsConnected reports whether the credential carries a usable access token
func (c *PlatformCredential) IsConnected(now time.Time) bool {
	return c.AccessToken != "" && !c.IsExpired(now)
}

// NeedsRefresh checks if tokens should be refreshed (within 5 min of expiry)
func (c *PlatformCredential) NeedsRefresh(now time.Time) bool {
	return now.Add(refreshWindow).After(c.ExpiresAt)
}

// IsRetentionElapsed reports whether the sweeper may discard the credential
func (c *PlatformCredential) IsRetentionElapsed(now time.Time) bool {
	return !c.RetainUntil.IsZero() && !now.Before(c.RetainUntil)
}

// CredentialSummary provides a safe view without token values
type CredentialSummary struct {
	Provider        ProviderType `json:"provider"`
	ExternalUserID  string       `json:"external_user_id"`
	DisplayName     string       `json:"display_name"`
	Username        string       `json:"username,omitempty"`
	Email           string       `json:"email,omitempty"`
	Connected       bool         `json:"connected"`
	HasRefreshToken bool         `json:"has_refresh_token"`
	Scopes          []string     `json:"scopes,omitempty"`
	IssuedAt        time.Time    `json:"issued_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// ToSummary converts a PlatformCredential to a CredentialSummary
func (c *PlatformCredential) ToSummary(now time.Time) *CredentialSummary {
	return &CredentialSummary{
		Provider:        c.Provider,
		ExternalUserID:  c.ExternalUserID,
		DisplayName:     c.DisplayName,
		Username:        c.Username,
		Email:           c.Email,
		Connected:       c.IsConnected(now),
		HasRefreshToken: c.RefreshToken != "",
		Scopes:          c.Scopes,
		IssuedAt:        c.IssuedAt,
		ExpiresAt:       c.ExpiresAt,
	}
}

// Clone returns a deep copy so stores never hand out their own instances
func (c *PlatformCredential) Clone() *PlatformCredential {
	if c == nil {
		return nil
	}
	out := *c
	if c.Scopes != nil {
		out.Scopes = append([]string(nil), c.Scopes...)
	}
	return &out
}
