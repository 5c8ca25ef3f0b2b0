package linkedin

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Ensure OAuthHandler implements the interface.
var _ connectors.OAuthHandler = (*OAuthHandler)(nil)

// OAuthHandler handles OAuth 2.0 for LinkedIn.
// LinkedIn does not use PKCE for web apps and expects the client secret in the form body.
type OAuthHandler struct {
	cfg    domain.ProviderConfig
	pkce   bool
	client *connectors.Client
}

// NewOAuthHandler creates a LinkedIn OAuth handler. Empty endpoints and scopes
// in cfg fall back to Defaults.
func NewOAuthHandler(cfg domain.ProviderConfig, timeout time.Duration) *OAuthHandler {
	return NewOAuthHandlerWithClient(cfg, connectors.NewClient(domain.ProviderTypeLinkedIn, timeout))
}

// NewOAuthHandlerWithClient creates a handler around an existing client.
func NewOAuthHandlerWithClient(cfg domain.ProviderConfig, client *connectors.Client) *OAuthHandler {
	defaults := Defaults()
	cfg = connectors.ApplyDefaults(cfg, defaults)
	cfg.Provider = domain.ProviderTypeLinkedIn
	return &OAuthHandler{cfg: cfg, pkce: defaults.SupportsPKCE, client: client}
}

// Provider returns linkedin.
func (h *OAuthHandler) Provider() domain.ProviderType {
	return domain.ProviderTypeLinkedIn
}

// RedirectURI returns the configured callback URL.
func (h *OAuthHandler) RedirectURI() string {
	return h.cfg.RedirectURI
}

// UsesPKCE reports Defaults().SupportsPKCE.
func (h *OAuthHandler) UsesPKCE() bool {
	return h.pkce
}

// Validate checks client credentials and redirect URI.
func (h *OAuthHandler) Validate() error {
	return connectors.ValidateConfig(&h.cfg)
}

// BuildAuthURL constructs the LinkedIn authorization URL. codeChallenge is ignored.
func (h *OAuthHandler) BuildAuthURL(state, _ string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {h.cfg.ClientID},
		"redirect_uri":  {h.cfg.RedirectURI},
		"scope":         {strings.Join(h.cfg.Scopes, " ")},
		"state":         {state},
	}
	return h.cfg.AuthURL + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens. codeVerifier is ignored.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, code, _ string) (*driven.OAuthToken, error) {
	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {h.cfg.RedirectURI},
		"client_id":     {h.cfg.ClientID},
		"client_secret": {h.cfg.ClientSecret},
	}
	return h.client.RequestToken(ctx, connectors.OpTokenExchange, h.cfg.TokenURL, params)
}

// RefreshToken refreshes an expired access token.
// Only apps enrolled in LinkedIn's refresh token program receive refresh tokens.
func (h *OAuthHandler) RefreshToken(ctx context.Context, refreshToken string) (*driven.OAuthToken, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {h.cfg.ClientID},
		"client_secret": {h.cfg.ClientSecret},
	}
	return h.client.RequestToken(ctx, connectors.OpRefresh, h.cfg.TokenURL, params)
}

// GetUserInfo fetches the OpenID Connect claims for the member.
func (h *OAuthHandler) GetUserInfo(ctx context.Context, accessToken string) (*driven.OAuthUserInfo, error) {
	var claims struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}

	if err := h.client.GetJSON(ctx, connectors.OpUserInfo, h.cfg.UserInfoURL, &claims, connectors.WithBearer(accessToken)); err != nil {
		return nil, err
	}
	if claims.Sub == "" {
		oe := domain.NewUpstreamAuthError(domain.ProviderTypeLinkedIn, connectors.OpUserInfo, http.StatusOK, nil, 0)
		oe.Code = "missing_sub"
		return nil, oe
	}

	return &driven.OAuthUserInfo{
		ID:       claims.Sub,
		Name:     claims.Name,
		Email:    claims.Email,
		ImageURL: claims.Picture,
	}, nil
}
