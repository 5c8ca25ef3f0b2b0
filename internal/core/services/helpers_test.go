package services

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// fakeClock is a manually advanced clock shared by the service and the store
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubOAuthHandler is a provider adapter with canned responses
type stubOAuthHandler struct {
	provider    domain.ProviderType
	pkce        bool
	validateErr error

	mu           sync.Mutex
	token        *driven.OAuthToken
	exchangeErr  error
	user         *driven.OAuthUserInfo
	userErr      error
	refreshed    *driven.OAuthToken
	refreshErr   error
	lastVerifier string

	// refreshGate, when set, blocks RefreshToken until closed.
	refreshGate    chan struct{}
	refreshStarted chan struct{}

	exchanges atomic.Int32
	refreshes atomic.Int32
}

func newStubHandler(provider domain.ProviderType, pkce bool) *stubOAuthHandler {
	return &stubOAuthHandler{
		provider: provider,
		pkce:     pkce,
		token:    &driven.OAuthToken{AccessToken: "tok1", RefreshToken: "ref1", ExpiresIn: 7200, TokenType: "bearer", Scope: "tweet.read users.read"},
		user:     &driven.OAuthUserInfo{ID: "42", Name: "Ada"},
	}
}

func (h *stubOAuthHandler) Provider() domain.ProviderType { return h.provider }

func (h *stubOAuthHandler) UsesPKCE() bool { return h.pkce }

func (h *stubOAuthHandler) Validate() error { return h.validateErr }

func (h *stubOAuthHandler) RedirectURI() string {
	return "http://localhost:8080/auth/" + string(h.provider) + "/callback"
}

func (h *stubOAuthHandler) BuildAuthURL(state, codeChallenge string) string {
	params := url.Values{"client_id": {"client-" + string(h.provider)}, "state": {state}}
	if h.pkce {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "S256")
	}
	return "https://auth.example.com/" + string(h.provider) + "?" + params.Encode()
}

func (h *stubOAuthHandler) ExchangeCode(ctx context.Context, code, codeVerifier string) (*driven.OAuthToken, error) {
	h.exchanges.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastVerifier = codeVerifier
	if h.exchangeErr != nil {
		return nil, h.exchangeErr
	}
	t := *h.token
	return &t, nil
}

func (h *stubOAuthHandler) RefreshToken(ctx context.Context, refreshToken string) (*driven.OAuthToken, error) {
	h.refreshes.Add(1)
	if h.refreshStarted != nil {
		select {
		case h.refreshStarted <- struct{}{}:
		default:
		}
	}
	if h.refreshGate != nil {
		select {
		case <-h.refreshGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refreshErr != nil {
		return nil, h.refreshErr
	}
	t := *h.refreshed
	return &t, nil
}

func (h *stubOAuthHandler) GetUserInfo(ctx context.Context, accessToken string) (*driven.OAuthUserInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userErr != nil {
		return nil, h.userErr
	}
	u := *h.user
	return &u, nil
}

func (h *stubOAuthHandler) setToken(t *driven.OAuthToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = t
}

func (h *stubOAuthHandler) verifier() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastVerifier
}
