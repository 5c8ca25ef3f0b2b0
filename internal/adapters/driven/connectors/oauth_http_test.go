package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

func TestClient_RequestToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "abc", r.PostForm.Get("code"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","refresh_token":"ref1","expires_in":7200,"token_type":"bearer","scope":"a b"}`))
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeTwitter, 0)
	tok, err := c.RequestToken(context.Background(), OpTokenExchange, server.URL,
		url.Values{"code": {"abc"}}, WithBasicAuth("id", "secret"))

	require.NoError(t, err)
	assert.Equal(t, "tok1", tok.AccessToken)
	assert.Equal(t, "ref1", tok.RefreshToken)
	assert.Equal(t, 7200, tok.ExpiresIn)
	assert.Equal(t, "a b", tok.Scope)
}

func TestClient_RequestToken_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeLinkedIn, 0)
	_, err := c.RequestToken(context.Background(), OpTokenExchange, server.URL, url.Values{})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
	oe, ok := domain.AsOAuthError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, oe.Status)
	assert.Contains(t, oe.Body, "invalid_grant")
	assert.Equal(t, domain.ProviderTypeLinkedIn, oe.Provider)
	assert.Equal(t, OpTokenExchange, oe.Operation)
}

func TestClient_RequestToken_ErrorFieldWithOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"nope"}`))
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeTwitter, 0)
	_, err := c.RequestToken(context.Background(), OpTokenExchange, server.URL, url.Values{})

	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
	oe, _ := domain.AsOAuthError(err)
	require.NotNil(t, oe)
	assert.Equal(t, "bad_verification_code", oe.Code)
}

func TestClient_RequestToken_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeTwitter, 0)
	_, err := c.RequestToken(context.Background(), OpTokenExchange, server.URL, url.Values{})

	assert.ErrorIs(t, err, domain.ErrUpstreamAuth)
}

func TestClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeTwitter, 0)
	var out map[string]any
	err := c.GetJSON(context.Background(), OpUserInfo, server.URL, &out, WithBearer("tok"))

	oe, ok := domain.AsOAuthError(err)
	require.True(t, ok)
	assert.True(t, oe.IsRateLimited())
	assert.Equal(t, 30*time.Second, oe.RetryAfter)
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	c := NewClient(domain.ProviderTypeLinkedIn, time.Second)
	var out map[string]any
	err := c.GetJSON(context.Background(), OpUserInfo, endpoint, &out)

	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrUpstreamAuth)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(domain.ProviderTypeTwitter, 50*time.Millisecond)
	var out map[string]any
	err := c.GetJSON(context.Background(), OpUserInfo, server.URL, &out)

	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestClient_GetJSON_SetsBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sub":"abc"}`))
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeLinkedIn, 0)
	var out struct {
		Sub string `json:"sub"`
	}
	require.NoError(t, c.GetJSON(context.Background(), OpUserInfo, server.URL, &out, WithBearer("tok")))
	assert.Equal(t, "abc", out.Sub)
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		w.Header().Set("X-RestLi-Id", "urn:li:share:1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := NewClient(domain.ProviderTypeLinkedIn, 0)
	var out map[string]any
	header, err := c.PostJSON(context.Background(), OpPublish, server.URL, map[string]string{"a": "b"}, &out,
		WithHeader("X-Restli-Protocol-Version", "2.0.0"))

	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", header.Get("X-RestLi-Id"))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"zero seconds", "0", 0},
		{"negative", "-5", 0},
		{"http date", now.Add(45 * time.Second).Format(http.TimeFormat), 45 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRetryAfter(tt.value, now))
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	defaults := OAuthDefaults{
		AuthURL:     "https://example.com/auth",
		TokenURL:    "https://example.com/token",
		UserInfoURL: "https://example.com/me",
		Scopes:      []string{"a", "b"},
	}

	cfg := ApplyDefaults(domain.ProviderConfig{TokenURL: "http://stub/token"}, defaults)
	assert.Equal(t, "https://example.com/auth", cfg.AuthURL)
	assert.Equal(t, "http://stub/token", cfg.TokenURL)
	assert.Equal(t, []string{"a", "b"}, cfg.Scopes)

	cfg.Scopes[0] = "changed"
	assert.Equal(t, "a", defaults.Scopes[0])
}

func TestValidateConfig(t *testing.T) {
	err := ValidateConfig(&domain.ProviderConfig{Provider: domain.ProviderTypeTwitter, ClientID: "id"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "client_secret")

	assert.NoError(t, ValidateConfig(&domain.ProviderConfig{
		Provider: domain.ProviderTypeTwitter, ClientID: "id", ClientSecret: "s", RedirectURI: "http://x/cb",
	}))
}
