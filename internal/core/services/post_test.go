package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driving"
)

type stubGenerator struct {
	text     string
	err      error
	lastOpts driven.GenerateOptions
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	g.lastOpts = opts
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *stubGenerator) Model() string { return "stub-model" }

type stubPublisher struct {
	provider domain.ProviderType
	err      error

	mu        sync.Mutex
	published []string
	tokens    []string
}

func (p *stubPublisher) Provider() domain.ProviderType { return p.provider }

func (p *stubPublisher) Publish(ctx context.Context, cred *domain.PlatformCredential, text string) (*driven.PublishResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, text)
	p.tokens = append(p.tokens, cred.AccessToken)
	return &driven.PublishResult{PostID: "1001", URL: "https://twitter.com/i/web/status/1001"}, nil
}

type postFixture struct {
	svc       driving.PostService
	store     *memory.CredentialStore
	clock     *fakeClock
	handler   *stubOAuthHandler
	publisher *stubPublisher
	generator *stubGenerator
}

func newPostFixture(t *testing.T, withGenerator bool) *postFixture {
	t.Helper()

	clock := newFakeClock()
	store := memory.NewCredentialStoreWithClock(clock.Now)
	handler := newStubHandler(domain.ProviderTypeTwitter, true)
	publisher := &stubPublisher{provider: domain.ProviderTypeTwitter}

	registry := connectors.NewRegistry()
	registry.RegisterOAuthHandler(handler)
	registry.RegisterPublisher(publisher)

	oauth := NewOAuthService(OAuthServiceConfig{
		Store:    store,
		Registry: registry,
		Logger:   discardLogger(),
		Now:      clock.Now,
	})

	f := &postFixture{store: store, clock: clock, handler: handler, publisher: publisher}
	cfg := PostServiceConfig{
		OAuth:    oauth,
		Registry: registry,
		Logger:   discardLogger(),
		Now:      clock.Now,
	}
	if withGenerator {
		f.generator = &stubGenerator{text: "Spring release is live!"}
		cfg.Generator = f.generator
	}
	f.svc = NewPostService(cfg)
	return f
}

func (f *postFixture) link(t *testing.T, lifetime time.Duration, refreshToken string) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.store.PutCredential(context.Background(), &domain.PlatformCredential{
		Provider:       domain.ProviderTypeTwitter,
		ExternalUserID: "42",
		DisplayName:    "Ada",
		AccessToken:    "tok1",
		RefreshToken:   refreshToken,
		IssuedAt:       now,
		ExpiresAt:      now.Add(lifetime),
		RetainUntil:    now.Add(domain.DefaultCredentialRetention),
	}))
}

func TestPostService_DraftFromPrompt(t *testing.T) {
	f := newPostFixture(t, true)

	resp, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider: domain.ProviderTypeTwitter,
		Prompt:   "Announce our spring release",
	})
	require.NoError(t, err)

	assert.Equal(t, "Spring release is live!", resp.Text)
	assert.True(t, resp.Generated)
	assert.False(t, resp.Published)
	assert.Equal(t, 280, f.generator.lastOpts.MaxChars)
	assert.Equal(t, domain.ProviderTypeTwitter, f.generator.lastOpts.Provider)
	assert.Empty(t, f.publisher.published)
}

func TestPostService_PublishVerbatimText(t *testing.T) {
	f := newPostFixture(t, false)
	f.link(t, time.Hour, "")

	resp, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider:       domain.ProviderTypeTwitter,
		ExternalUserID: "42",
		Text:           "  hello world  ",
		Publish:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", resp.Text)
	assert.False(t, resp.Generated)
	assert.True(t, resp.Published)
	assert.Equal(t, "1001", resp.PostID)
	assert.Equal(t, []string{"hello world"}, f.publisher.published)
}

func TestPostService_GeneratorUnavailable(t *testing.T) {
	f := newPostFixture(t, false)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider: domain.ProviderTypeTwitter,
		Prompt:   "anything",
	})
	assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)
}

func TestPostService_GeneratorFailure(t *testing.T) {
	f := newPostFixture(t, true)
	f.generator.err = errors.New("OpenAI API returned status 500")

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider: domain.ProviderTypeTwitter,
		Prompt:   "anything",
	})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestPostService_RequiresTextOrPrompt(t *testing.T) {
	f := newPostFixture(t, true)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{Provider: domain.ProviderTypeTwitter})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPostService_PublishRequiresUserID(t *testing.T) {
	f := newPostFixture(t, false)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider: domain.ProviderTypeTwitter,
		Text:     "hi",
		Publish:  true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPostService_PublishNotLinked(t *testing.T) {
	f := newPostFixture(t, false)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider:       domain.ProviderTypeTwitter,
		ExternalUserID: "42",
		Text:           "hi",
		Publish:        true,
	})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestPostService_PublishExpiredWithoutRefreshToken(t *testing.T) {
	f := newPostFixture(t, false)
	f.link(t, time.Hour, "")
	f.clock.Advance(2 * time.Hour)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider:       domain.ProviderTypeTwitter,
		ExternalUserID: "42",
		Text:           "hi",
		Publish:        true,
	})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Empty(t, f.publisher.published)
}

func TestPostService_PublishRefreshesStaleCredential(t *testing.T) {
	f := newPostFixture(t, false)
	f.link(t, time.Hour, "ref1")
	f.clock.Advance(58 * time.Minute)
	f.handler.refreshed = &driven.OAuthToken{AccessToken: "tok2", ExpiresIn: 7200}

	resp, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider:       domain.ProviderTypeTwitter,
		ExternalUserID: "42",
		Text:           "hi",
		Publish:        true,
	})
	require.NoError(t, err)

	assert.True(t, resp.Published)
	assert.Equal(t, []string{"tok2"}, f.publisher.tokens)
	assert.Equal(t, int32(1), f.handler.refreshes.Load())
}

func TestPostService_PublisherUnavailable(t *testing.T) {
	f := newPostFixture(t, false)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{
		Provider:       domain.ProviderTypeLinkedIn,
		ExternalUserID: "abc",
		Text:           "hi",
		Publish:        true,
	})
	assert.ErrorIs(t, err, domain.ErrPublisherUnavailable)
}

func TestPostService_UnsupportedProvider(t *testing.T) {
	f := newPostFixture(t, false)

	_, err := f.svc.Create(context.Background(), driving.CreatePostRequest{Provider: "myspace", Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)
}
