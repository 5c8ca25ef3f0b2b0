package driving

import (
	"context"
	"net/url"
	"strings"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

// OAuthService drives the authorization-code flow for every supported provider.
// It is the only component that touches both the credential store and the
// provider adapters.
type OAuthService interface {
	// Initiate starts a flow and returns the provider authorization URL.
	// The state token embedded in the URL is stored for single-use validation.
	Initiate(ctx context.Context, provider domain.ProviderType) (*InitiateResponse, error)

	// CompleteCallback validates and consumes the state, exchanges the code,
	// fetches the account identity and upserts the resulting credential.
	CompleteCallback(ctx context.Context, provider domain.ProviderType, req CallbackRequest) (*domain.PlatformCredential, error)

	// GetCredential returns the stored credential for an account.
	GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error)

	// ListCredentials returns all stored credentials for a provider.
	ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error)

	// Disconnect removes the credential for an account.
	Disconnect(ctx context.Context, provider domain.ProviderType, externalUserID string) error

	// RefreshCredential exchanges the stored refresh token for new tokens.
	RefreshCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error)
}

// InitiateResponse contains the authorization URL and state.
// @Description Response containing the OAuth authorization URL
type InitiateResponse struct {
	// AuthorizationURL is the URL to redirect the user to for authorization.
	AuthorizationURL string `json:"url" example:"https://twitter.com/i/oauth2/authorize?client_id=..."`

	// State is the CSRF token that will be returned in the callback.
	// This is provided for reference - the frontend should not need to track it.
	State string `json:"state" example:"q3J5b1Yk..."`

	// ExpiresAt is when the authorization state expires (RFC 3339).
	ExpiresAt string `json:"expires_at" example:"2024-01-15T10:10:00Z"`
}

// CallbackRequest represents the OAuth callback from the provider.
// @Description OAuth callback parameters from provider redirect
type CallbackRequest struct {
	// Code is the authorization code from the provider.
	Code string `json:"code" example:"abc123"`

	// State is the CSRF token returned by the provider.
	State string `json:"state" example:"q3J5b1Yk..."`

	// Error is set if the provider returned an error.
	Error string `json:"error,omitempty" example:"access_denied"`

	// ErrorDescription provides details about the error.
	ErrorDescription string `json:"error_description,omitempty" example:"The user denied access"`
}

// ParseCallbackRequest builds a CallbackRequest from redirect query values.
// Only the first value of each known parameter is used; unknown parameters are ignored.
func ParseCallbackRequest(q url.Values) CallbackRequest {
	return CallbackRequest{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            strings.TrimSpace(q.Get("state")),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
	}
}

// HasError reports whether the provider signalled a failure
func (r CallbackRequest) HasError() bool {
	return r.Error != ""
}

// MissingFields lists the required parameters that are absent
func (r CallbackRequest) MissingFields() []string {
	var missing []string
	if r.Code == "" {
		missing = append(missing, "code")
	}
	if r.State == "" {
		missing = append(missing, "state")
	}
	return missing
}
