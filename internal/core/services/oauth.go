package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/sercha-publish/internal/adapters/driven/connectors"
	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-publish/internal/pkce"
)

// Ensure oauthService implements OAuthService
var _ driving.OAuthService = (*oauthService)(nil)

// refreshTimeout bounds a shared refresh: the provider call plus the store round trips.
const refreshTimeout = 2 * connectors.DefaultTimeout

// OAuthServiceConfig holds configuration for the OAuth service.
type OAuthServiceConfig struct {
	// Store holds pending flows and linked credentials.
	Store driven.CredentialStore

	// Registry provides OAuth handlers per provider.
	Registry *connectors.Registry

	Logger *slog.Logger

	// FlowTTL bounds how long a pending flow waits for its callback (default: 10m).
	FlowTTL time.Duration

	// CredentialRetention is how long a linked credential is kept (default: 3h).
	CredentialRetention time.Duration

	// Now and GenerateToken are overridable for tests.
	Now           func() time.Time
	GenerateToken func() (string, error)
}

// oauthService implements the OAuthService interface.
type oauthService struct {
	store     driven.CredentialStore
	registry  *connectors.Registry
	logger    *slog.Logger
	flowTTL   time.Duration
	retention time.Duration
	now       func() time.Time
	newToken  func() (string, error)

	refreshes singleflight.Group
}

// NewOAuthService creates a new OAuth service.
func NewOAuthService(cfg OAuthServiceConfig) driving.OAuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	flowTTL := cfg.FlowTTL
	if flowTTL <= 0 {
		flowTTL = domain.DefaultFlowTTL
	}

	retention := cfg.CredentialRetention
	if retention <= 0 {
		retention = domain.DefaultCredentialRetention
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	newToken := cfg.GenerateToken
	if newToken == nil {
		newToken = pkce.GenerateToken
	}

	return &oauthService{
		store:     cfg.Store,
		registry:  cfg.Registry,
		logger:    logger,
		flowTTL:   flowTTL,
		retention: retention,
		now:       now,
		newToken:  newToken,
	}
}

// Initiate starts an authorization flow and returns the provider URL.
func (s *oauthService) Initiate(ctx context.Context, provider domain.ProviderType) (*driving.InitiateResponse, error) {
	handler, err := s.registry.OAuthHandler(provider)
	if err != nil {
		return nil, err
	}

	if err := handler.Validate(); err != nil {
		s.logOAuthError(ctx, "oauth provider not configured", err)
		return nil, err
	}

	state, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	var verifier, challenge string
	if handler.UsesPKCE() {
		verifier, err = pkce.GenerateVerifier()
		if err != nil {
			return nil, fmt.Errorf("generate code verifier: %w", err)
		}
		challenge = pkce.DeriveChallenge(verifier)
	}

	now := s.now()
	flow := &domain.PendingFlow{
		State:        state,
		Provider:     provider,
		CodeVerifier: verifier,
		RedirectURI:  handler.RedirectURI(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.flowTTL),
	}
	if err := s.store.PutPendingFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("save pending flow: %w", err)
	}

	s.logger.Debug("oauth flow initiated", "provider", provider, "expires_at", flow.ExpiresAt)

	return &driving.InitiateResponse{
		AuthorizationURL: handler.BuildAuthURL(state, challenge),
		State:            state,
		ExpiresAt:        flow.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// CompleteCallback validates and consumes the state, exchanges the code and
// stores the linked credential. The state is consumed before any provider call,
// so a failed exchange requires a new flow.
func (s *oauthService) CompleteCallback(ctx context.Context, provider domain.ProviderType, req driving.CallbackRequest) (*domain.PlatformCredential, error) {
	if req.HasError() {
		if req.State != "" {
			s.discardFlow(ctx, req.State)
		}
		err := domain.NewAuthorizationDeniedError(provider, req.Error, req.ErrorDescription)
		s.logOAuthError(ctx, "oauth authorization denied", err)
		return nil, err
	}

	if missing := req.MissingFields(); len(missing) > 0 {
		if req.State != "" {
			s.discardFlow(ctx, req.State)
		}
		err := domain.NewMalformedCallbackError(provider, missing...)
		s.logOAuthError(ctx, "oauth callback malformed", err)
		return nil, err
	}

	flow, err := s.store.TakePendingFlow(ctx, req.State)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			stateErr := domain.NewInvalidStateError(provider, "unknown_or_expired_state")
			s.logOAuthError(ctx, "oauth callback rejected", stateErr)
			return nil, stateErr
		}
		return nil, fmt.Errorf("take pending flow: %w", err)
	}

	if flow.Provider != provider {
		stateErr := domain.NewInvalidStateError(provider, "provider_mismatch")
		s.logOAuthError(ctx, "oauth callback rejected", stateErr, "flow_provider", flow.Provider)
		return nil, stateErr
	}

	handler, err := s.registry.OAuthHandler(provider)
	if err != nil {
		return nil, err
	}

	token, err := handler.ExchangeCode(ctx, req.Code, flow.CodeVerifier)
	if err != nil {
		s.logOAuthError(ctx, "oauth code exchange failed", err)
		return nil, err
	}

	userInfo, err := handler.GetUserInfo(ctx, token.AccessToken)
	if err != nil {
		s.logOAuthError(ctx, "oauth user info failed", err)
		return nil, err
	}

	now := s.now()
	cred := &domain.PlatformCredential{
		Provider:       provider,
		ExternalUserID: userInfo.ID,
		DisplayName:    userInfo.Name,
		Username:       userInfo.Username,
		Email:          userInfo.Email,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenType:      token.TokenType,
		Scopes:         splitScopes(token.Scope),
		IssuedAt:       now,
		ExpiresAt:      now.Add(tokenLifetime(token.ExpiresIn)),
		RetainUntil:    now.Add(s.retention),
	}
	if err := cred.Validate(); err != nil {
		return nil, fmt.Errorf("build credential: %w", err)
	}

	if err := s.store.PutCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("platform account linked",
		"provider", provider,
		"external_user_id", cred.ExternalUserID,
		"expires_at", cred.ExpiresAt,
		"has_refresh_token", cred.RefreshToken != "",
	)

	return cred, nil
}

// GetCredential returns the stored credential for an account.
func (s *oauthService) GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	if err := validateAccount(provider, externalUserID); err != nil {
		return nil, err
	}
	return s.store.GetCredential(ctx, provider, externalUserID)
}

// ListCredentials returns all stored credentials for a provider.
func (s *oauthService) ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error) {
	if !provider.IsValid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider)
	}
	return s.store.ListCredentials(ctx, provider)
}

// Disconnect removes the credential for an account.
func (s *oauthService) Disconnect(ctx context.Context, provider domain.ProviderType, externalUserID string) error {
	if err := validateAccount(provider, externalUserID); err != nil {
		return err
	}
	if err := s.store.DeleteCredential(ctx, provider, externalUserID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.logger.Info("platform account disconnected", "provider", provider, "external_user_id", externalUserID)
	return nil
}

// RefreshCredential exchanges the stored refresh token for new tokens.
// Concurrent refreshes of the same account share one provider call.
func (s *oauthService) RefreshCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	if err := validateAccount(provider, externalUserID); err != nil {
		return nil, err
	}

	// The shared call outlives any single caller; each caller waits on its own ctx.
	key := domain.CredentialKey{Provider: provider, ExternalUserID: externalUserID}
	ch := s.refreshes.DoChan(key.String(), func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx, provider, externalUserID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.PlatformCredential).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *oauthService) refresh(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	cred, err := s.store.GetCredential(ctx, provider, externalUserID)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}

	handler, err := s.registry.OAuthHandler(provider)
	if err != nil {
		return nil, err
	}

	token, err := handler.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		s.logOAuthError(ctx, "oauth token refresh failed", err, "external_user_id", externalUserID)
		return nil, err
	}

	now := s.now()
	updated := cred.Clone()
	updated.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		updated.RefreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		updated.TokenType = token.TokenType
	}
	if scopes := splitScopes(token.Scope); len(scopes) > 0 {
		updated.Scopes = scopes
	}
	updated.IssuedAt = now
	updated.ExpiresAt = now.Add(tokenLifetime(token.ExpiresIn))
	updated.RetainUntil = now.Add(s.retention)

	if err := s.store.PutCredential(ctx, updated); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	s.logger.Info("platform credential refreshed",
		"provider", provider,
		"external_user_id", externalUserID,
		"rotated", token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken,
	)
	return updated, nil
}

// discardFlow consumes a state that arrived with a failed callback.
func (s *oauthService) discardFlow(ctx context.Context, state string) {
	if _, err := s.store.TakePendingFlow(ctx, state); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("failed to discard pending flow", "error", err)
	}
}

// logOAuthError logs the full diagnostic detail of a flow failure.
// Rejected states are logged at warn since they may indicate CSRF or replay.
func (s *oauthService) logOAuthError(ctx context.Context, msg string, err error, extra ...any) {
	oe, ok := domain.AsOAuthError(err)
	if !ok {
		s.logger.ErrorContext(ctx, msg, append(extra, "error", err)...)
		return
	}

	level := slog.LevelInfo
	switch oe.Kind {
	case domain.OAuthErrorInvalidState, domain.OAuthErrorConfiguration:
		level = slog.LevelWarn
	case domain.OAuthErrorUpstream, domain.OAuthErrorNetwork:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, msg, append(oe.LogAttrs(), extra...)...)
}

func validateAccount(provider domain.ProviderType, externalUserID string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, provider)
	}
	if strings.TrimSpace(externalUserID) == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	return nil
}

// tokenLifetime converts expires_in, falling back to the default when absent.
func tokenLifetime(expiresIn int) time.Duration {
	if expiresIn <= 0 {
		return domain.DefaultTokenLifetime
	}
	return time.Duration(expiresIn) * time.Second
}

// splitScopes splits a space- or comma-separated scope string.
func splitScopes(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
