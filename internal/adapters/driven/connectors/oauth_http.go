package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// DefaultTimeout bounds every call to a provider endpoint.
const DefaultTimeout = 10 * time.Second

// maxResponseBody caps how much of a provider response is read.
const maxResponseBody = 1 << 20

// Operation names carried by errors and logs.
const (
	OpTokenExchange = "token_exchange"
	OpRefresh       = "refresh"
	OpUserInfo      = "user_info"
	OpPublish       = domain.OperationPublish
)

// Client performs the HTTP calls shared by provider adapters and classifies
// failures into domain OAuth errors: transport failures become network errors
// and non-2xx responses become upstream errors with status, body and Retry-After.
type Client struct {
	provider   domain.ProviderType
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for one provider. A zero timeout uses DefaultTimeout.
func NewClient(provider domain.ProviderType, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		provider:   provider,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// NewClientWithHTTP creates a client around an existing http.Client (used in tests).
func NewClientWithHTTP(provider domain.ProviderType, httpClient *http.Client) *Client {
	return &Client{
		provider:   provider,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// RequestOption customises an outgoing request.
type RequestOption func(*http.Request)

// WithBasicAuth sets HTTP Basic client authentication.
func WithBasicAuth(username, password string) RequestOption {
	return func(r *http.Request) {
		r.SetBasicAuth(username, password)
	}
}

// WithBearer sets a bearer access token.
func WithBearer(token string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

// WithHeader sets an arbitrary header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// tokenResponse is the RFC 6749 token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// RequestToken posts a form to a token endpoint and decodes the token response.
func (c *Client) RequestToken(ctx context.Context, op, endpoint string, form url.Values, opts ...RequestOption) (*driven.OAuthToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	var tokenResp tokenResponse
	status, body, _, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, c.invalidResponse(op, status, body, fmt.Errorf("decode response: %w", err))
	}

	if tokenResp.Error != "" {
		oe := domain.NewUpstreamAuthError(c.provider, op, status, body, 0)
		oe.Code = tokenResp.Error
		oe.Description = tokenResp.ErrorDesc
		return nil, oe
	}
	if tokenResp.AccessToken == "" {
		return nil, c.invalidResponse(op, status, body, fmt.Errorf("response has no access_token"))
	}

	return &driven.OAuthToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, op, endpoint string, out any, opts ...RequestOption) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	status, body, _, err := c.do(req, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.invalidResponse(op, status, body, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// PostJSON issues a POST with a JSON body, decodes a non-empty JSON response
// into out (when out is non-nil) and returns the response headers.
func (c *Client) PostJSON(ctx context.Context, op, endpoint string, in, out any, opts ...RequestOption) (http.Header, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	status, body, header, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, c.invalidResponse(op, status, body, fmt.Errorf("decode response: %w", err))
		}
	}
	return header, nil
}

func (c *Client) do(req *http.Request, op string) (int, []byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, domain.NewNetworkError(c.provider, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, nil, domain.NewNetworkError(c.provider, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return resp.StatusCode, nil, nil, domain.NewUpstreamAuthError(c.provider, op, resp.StatusCode, body, retryAfter)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func (c *Client) invalidResponse(op string, status int, body []byte, err error) error {
	oe := domain.NewUpstreamAuthError(c.provider, op, status, body, 0)
	oe.Code = "invalid_response"
	oe.Err = err
	return oe
}

// ParseRetryAfter interprets a Retry-After header given either as delay
// seconds or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}
