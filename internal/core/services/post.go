package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driving"
)

// Ensure postService implements PostService
var _ driving.PostService = (*postService)(nil)

// PostServiceConfig holds configuration for the post service.
type PostServiceConfig struct {
	// OAuth loads and refreshes linked credentials.
	OAuth driving.OAuthService

	// Registry provides publishers per provider.
	Registry *connectors.Registry

	// Generator drafts text from prompts. Optional.
	Generator driven.ContentGenerator

	Logger *slog.Logger
	Now    func() time.Time
}

// postService drafts and publishes posts.
type postService struct {
	oauth     driving.OAuthService
	registry  *connectors.Registry
	generator driven.ContentGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPostService creates a new post service.
func NewPostService(cfg PostServiceConfig) driving.PostService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &postService{
		oauth:     cfg.OAuth,
		registry:  cfg.Registry,
		generator: cfg.Generator,
		logger:    logger,
		now:       now,
	}
}

// Create drafts text and, when requested, publishes it on the linked account.
func (s *postService) Create(ctx context.Context, req driving.CreatePostRequest) (*driving.CreatePostResponse, error) {
	if !req.Provider.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, req.Provider)
	}
	if req.Publish && strings.TrimSpace(req.ExternalUserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required to publish", domain.ErrInvalidInput)
	}

	text, generated, err := s.draft(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &driving.CreatePostResponse{
		Provider:  req.Provider,
		Text:      text,
		Generated: generated,
	}
	if !req.Publish {
		return resp, nil
	}

	publisher, err := s.registry.Publisher(req.Provider)
	if err != nil {
		return nil, err
	}

	cred, err := s.connectedCredential(ctx, req.Provider, req.ExternalUserID)
	if err != nil {
		return nil, err
	}

	result, err := publisher.Publish(ctx, cred, text)
	if err != nil {
		s.logger.Error("failed to publish post",
			"provider", req.Provider,
			"external_user_id", req.ExternalUserID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("post published",
		"provider", req.Provider,
		"external_user_id", req.ExternalUserID,
		"post_id", result.PostID,
		"generated", generated,
	)

	resp.Published = true
	resp.PostID = result.PostID
	resp.URL = result.URL
	return resp, nil
}

func (s *postService) draft(ctx context.Context, req driving.CreatePostRequest) (string, bool, error) {
	if text := strings.TrimSpace(req.Text); text != "" {
		return text, false, nil
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", false, fmt.Errorf("%w: either text or prompt is required", domain.ErrInvalidInput)
	}
	if s.generator == nil {
		return "", false, domain.ErrGeneratorUnavailable
	}

	text, err := s.generator.Generate(ctx, prompt, driven.GenerateOptions{
		Provider: req.Provider,
		MaxChars: req.Provider.MaxPostLength(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return "", false, err
		}
		return "", false, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	s.logger.Debug("post drafted", "provider", req.Provider, "model", s.generator.Model())
	return text, true, nil
}

// connectedCredential returns a credential with a live access token,
// refreshing it first when it is expired or about to expire.
func (s *postService) connectedCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	cred, err := s.oauth.GetCredential(ctx, provider, externalUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, domain.CredentialKey{Provider: provider, ExternalUserID: externalUserID})
		}
		return nil, err
	}

	now := s.now()
	if cred.NeedsRefresh(now) && cred.RefreshToken != "" {
		refreshed, err := s.oauth.RefreshCredential(ctx, provider, externalUserID)
		if err != nil {
			s.logger.Warn("credential refresh before publish failed",
				"provider", provider,
				"external_user_id", externalUserID,
				"error", err,
			)
		} else {
			cred = refreshed
		}
	}

	if !cred.IsConnected(now) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotConnected, cred.Key())
	}
	return cred, nil
}
