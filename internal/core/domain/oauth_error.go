package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OAuthErrorKind classifies failures of the authorization-code flow.
// Callers branch on the kind: only invalid_state signals a possible attack.
type OAuthErrorKind string

const (
	OAuthErrorConfiguration       OAuthErrorKind = "configuration"
	OAuthErrorInvalidState        OAuthErrorKind = "invalid_state"
	OAuthErrorAuthorizationDenied OAuthErrorKind = "authorization_denied"
	OAuthErrorMalformedCallback   OAuthErrorKind = "malformed_callback"
	OAuthErrorUpstream            OAuthErrorKind = "upstream"
	OAuthErrorNetwork             OAuthErrorKind = "network"
)

// OperationPublish marks errors from posting content rather than from sign-in.
const OperationPublish = "publish"

// maxLoggedBody caps the provider payload kept for diagnostics.
const maxLoggedBody = 2048

// OAuthError describes a failed step of an OAuth flow.
// Description, Body and Err are server-side detail; use PublicMessage for browsers.
type OAuthError struct {
	Kind        OAuthErrorKind
	Provider    ProviderType
	Operation   string // e.g. "token_exchange", "user_info", "refresh"
	Code        string // provider error code or internal reason
	Description string
	Status      int
	Body        string
	RetryAfter  time.Duration
	Err         error
}

// Sentinels for errors.Is; matching is by Kind only.
var (
	ErrConfiguration         = &OAuthError{Kind: OAuthErrorConfiguration}
	ErrInvalidOrExpiredState = &OAuthError{Kind: OAuthErrorInvalidState}
	ErrAuthorizationDenied   = &OAuthError{Kind: OAuthErrorAuthorizationDenied}
	ErrMalformedCallback     = &OAuthError{Kind: OAuthErrorMalformedCallback}
	ErrUpstreamAuth          = &OAuthError{Kind: OAuthErrorUpstream}
	ErrNetwork               = &OAuthError{Kind: OAuthErrorNetwork}
)

func (e *OAuthError) Error() string {
	if e == nil {
		return "oauth error"
	}

	scope := "oauth"
	if e.Provider != "" {
		scope = string(e.Provider) + " oauth"
	}
	if e.Operation != "" {
		scope += " " + e.Operation
	}

	var b strings.Builder
	b.WriteString(scope)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(" - ")
		b.WriteString(e.Description)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OAuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *OAuthError of the same kind.
func (e *OAuthError) Is(target error) bool {
	t, ok := target.(*OAuthError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// IsRateLimited reports whether the provider throttled the request
func (e *OAuthError) IsRateLimited() bool {
	return e != nil && e.Status == http.StatusTooManyRequests
}

// IsSecurityRelevant reports whether the failure may indicate CSRF or replay
func (e *OAuthError) IsSecurityRelevant() bool {
	return e != nil && e.Kind == OAuthErrorInvalidState
}

// PublicMessage returns a sanitized message safe to show to the end user.
func (e *OAuthError) PublicMessage() string {
	if e == nil {
		return "Authorization failed."
	}
	name := e.Provider.DisplayName()
	if name == "" {
		name = "the provider"
	}

	switch e.Kind {
	case OAuthErrorConfiguration:
		return fmt.Sprintf("%s sign-in is not configured on this server.", name)
	case OAuthErrorInvalidState:
		return "This sign-in link is invalid or has expired. Please try connecting again."
	case OAuthErrorAuthorizationDenied:
		if e.Description != "" {
			return fmt.Sprintf("%s authorization was denied: %s", name, e.Description)
		}
		return fmt.Sprintf("%s authorization was denied.", name)
	case OAuthErrorMalformedCallback:
		return "The sign-in response was incomplete. Please try connecting again."
	case OAuthErrorUpstream:
		if e.IsRateLimited() {
			if e.RetryAfter > 0 {
				return fmt.Sprintf("%s is rate limiting requests, try again in %d seconds.", name, int(e.RetryAfter.Round(time.Second)/time.Second))
			}
			return fmt.Sprintf("%s is rate limiting requests, try again later.", name)
		}
		if e.Operation == OperationPublish {
			if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
				return fmt.Sprintf("%s rejected the post. Reconnect the account and grant posting permission.", name)
			}
			return fmt.Sprintf("%s rejected the post.", name)
		}
		return fmt.Sprintf("%s rejected the sign-in. Please try connecting again.", name)
	case OAuthErrorNetwork:
		if e.Operation == OperationPublish {
			return fmt.Sprintf("Could not reach %s to publish the post. Please try again.", name)
		}
		return fmt.Sprintf("Could not reach %s. Please try connecting again.", name)
	default:
		return "Authorization failed."
	}
}

// LogAttrs returns slog key/value pairs carrying the full diagnostic detail.
func (e *OAuthError) LogAttrs() []any {
	if e == nil {
		return nil
	}
	attrs := []any{"kind", string(e.Kind)}
	if e.Provider != "" {
		attrs = append(attrs, "provider", string(e.Provider))
	}
	if e.Operation != "" {
		attrs = append(attrs, "operation", e.Operation)
	}
	if e.Code != "" {
		attrs = append(attrs, "code", e.Code)
	}
	if e.Description != "" {
		attrs = append(attrs, "description", e.Description)
	}
	if e.Status != 0 {
		attrs = append(attrs, "status", e.Status)
	}
	if e.Body != "" {
		attrs = append(attrs, "body", e.Body)
	}
	if e.RetryAfter > 0 {
		attrs = append(attrs, "retry_after", e.RetryAfter)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
	}
	if e.IsSecurityRelevant() {
		attrs = append(attrs, "security", true)
	}
	return attrs
}

// AsOAuthError extracts an *OAuthError from an error chain
func AsOAuthError(err error) (*OAuthError, bool) {
	var oe *OAuthError
	if errors.As(err, &oe) && oe != nil {
		return oe, true
	}
	return nil, false
}

// NewConfigurationError reports missing or invalid provider settings
func NewConfigurationError(provider ProviderType, missing ...string) *OAuthError {
	desc := "provider is not configured"
	if len(missing) > 0 {
		desc = "missing " + strings.Join(missing, ", ")
	}
	return &OAuthError{
		Kind:        OAuthErrorConfiguration,
		Provider:    provider,
		Description: desc,
	}
}

// NewInvalidStateError rejects a state token that this process cannot honour.
// reason is for logs only; the public message never says whether a token existed.
func NewInvalidStateError(provider ProviderType, reason string) *OAuthError {
	return &OAuthError{
		Kind:     OAuthErrorInvalidState,
		Provider: provider,
		Code:     reason,
	}
}

// NewAuthorizationDeniedError surfaces the provider's refusal
func NewAuthorizationDeniedError(provider ProviderType, code, description string) *OAuthError {
	return &OAuthError{
		Kind:        OAuthErrorAuthorizationDenied,
		Provider:    provider,
		Code:        code,
		Description: description,
	}
}

// NewMalformedCallbackError rejects callbacks missing required parameters
func NewMalformedCallbackError(provider ProviderType, missing ...string) *OAuthError {
	return &OAuthError{
		Kind:        OAuthErrorMalformedCallback,
		Provider:    provider,
		Description: "missing " + strings.Join(missing, ", "),
	}
}

// NewUpstreamAuthError wraps a non-success response from a provider endpoint
func NewUpstreamAuthError(provider ProviderType, operation string, status int, body []byte, retryAfter time.Duration) *OAuthError {
	raw := string(body)
	if len(raw) > maxLoggedBody {
		raw = raw[:maxLoggedBody]
	}
	return &OAuthError{
		Kind:       OAuthErrorUpstream,
		Provider:   provider,
		Operation:  operation,
		Status:     status,
		Body:       raw,
		RetryAfter: retryAfter,
	}
}

// NewNetworkError wraps a transport-level failure reaching the provider
func NewNetworkError(provider ProviderType, operation string, err error) *OAuthError {
	return &OAuthError{
		Kind:      OAuthErrorNetwork,
		Provider:  provider,
		Operation: operation,
		Err:       err,
	}
}
