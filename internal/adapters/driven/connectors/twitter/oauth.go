package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/pkce"
)

// Ensure OAuthHandler implements the interface.
var _ connectors.OAuthHandler = (*OAuthHandler)(nil)

// OAuthHandler handles OAuth 2.0 with PKCE for Twitter.
// The token endpoint authenticates the client with HTTP Basic.
type OAuthHandler struct {
	cfg    domain.ProviderConfig
	pkce   bool
	client *connectors.Client
}

// NewOAuthHandler creates a Twitter OAuth handler. Empty endpoints and scopes
// in cfg fall back to Defaults.
func NewOAuthHandler(cfg domain.ProviderConfig, timeout time.Duration) *OAuthHandler {
	return NewOAuthHandlerWithClient(cfg, connectors.NewClient(domain.ProviderTypeTwitter, timeout))
}

// NewOAuthHandlerWithClient creates a handler around an existing client.
func NewOAuthHandlerWithClient(cfg domain.ProviderConfig, client *connectors.Client) *OAuthHandler {
	defaults := Defaults()
	cfg = connectors.ApplyDefaults(cfg, defaults)
	cfg.Provider = domain.ProviderTypeTwitter
	return &OAuthHandler{cfg: cfg, pkce: defaults.SupportsPKCE, client: client}
}

// Provider returns twitter.
func (h *OAuthHandler) Provider() domain.ProviderType {
	return domain.ProviderTypeTwitter
}

// RedirectURI returns the configured callback URL.
func (h *OAuthHandler) RedirectURI() string {
	return h.cfg.RedirectURI
}

// UsesPKCE reports Defaults().SupportsPKCE; Twitter requires PKCE for OAuth 2.0.
func (h *OAuthHandler) UsesPKCE() bool {
	return h.pkce
}

// Validate checks client credentials and redirect URI.
func (h *OAuthHandler) Validate() error {
	return connectors.ValidateConfig(&h.cfg)
}

// BuildAuthURL constructs the Twitter OAuth authorization URL.
func (h *OAuthHandler) BuildAuthURL(state, codeChallenge string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {h.cfg.ClientID},
		"redirect_uri":  {h.cfg.RedirectURI},
		"scope":         {strings.Join(h.cfg.Scopes, " ")},
		"state":         {state},
	}
	if h.pkce {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", pkce.MethodS256)
	}
	return h.cfg.AuthURL + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens.
func (h *OAuthHandler) ExchangeCode(ctx context.Context, code, codeVerifier string) (*driven.OAuthToken, error) {
	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {h.cfg.RedirectURI},
		"client_id":     {h.cfg.ClientID},
		"code_verifier": {codeVerifier},
	}
	return h.client.RequestToken(ctx, connectors.OpTokenExchange, h.cfg.TokenURL, params,
		connectors.WithBasicAuth(h.cfg.ClientID, h.cfg.ClientSecret))
}

// RefreshToken refreshes an expired access token.
// Twitter rotates refresh tokens, so the response usually carries a new one.
func (h *OAuthHandler) RefreshToken(ctx context.Context, refreshToken string) (*driven.OAuthToken, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {h.cfg.ClientID},
	}
	return h.client.RequestToken(ctx, connectors.OpRefresh, h.cfg.TokenURL, params,
		connectors.WithBasicAuth(h.cfg.ClientID, h.cfg.ClientSecret))
}

// GetUserInfo fetches the authenticated user's information.
func (h *OAuthHandler) GetUserInfo(ctx context.Context, accessToken string) (*driven.OAuthUserInfo, error) {
	var resp struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}

	endpoint, err := url.Parse(h.cfg.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("parse user info url: %w", err)
	}
	q := endpoint.Query()
	q.Set("user.fields", "profile_image_url")
	endpoint.RawQuery = q.Encode()

	if err := h.client.GetJSON(ctx, connectors.OpUserInfo, endpoint.String(), &resp, connectors.WithBearer(accessToken)); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		oe := domain.NewUpstreamAuthError(domain.ProviderTypeTwitter, connectors.OpUserInfo, http.StatusOK, nil, 0)
		oe.Code = "missing_user_id"
		return nil, oe
	}

	return &driven.OAuthUserInfo{
		ID:       resp.Data.ID,
		Name:     resp.Data.Name,
		Username: resp.Data.Username,
		ImageURL: resp.Data.ProfileImageURL,
	}, nil
}
