package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error   string `json:"error" example:"Twitter sign-in is not configured on this server."`
	Details string `json:"details,omitempty" example:"missing client_secret"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 64 << 10

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns ready once the credential store answers a ping
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "credential store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// OAuth flow endpoints

// handleInitiate godoc
// @Summary      Start OAuth flow
// @Description  Returns the provider authorization URL for a new flow
// @Tags         OAuth
// @Produce      json
// @Param        provider  path      string  true  "Provider (twitter, linkedin)"
// @Success      200       {object}  driving.InitiateResponse
// @Failure      404       {object}  ErrorResponse  "Unsupported provider"
// @Failure      500       {object}  ErrorResponse  "Provider not configured"
// @Router       /auth/{provider} [get]
func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	resp, err := s.oauthService.Initiate(r.Context(), provider)
	if err != nil {
		if oe, ok := domain.AsOAuthError(err); ok && oe.Kind == domain.OAuthErrorConfiguration {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: oe.PublicMessage(), Details: oe.Description})
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCallback godoc
// @Summary      OAuth callback
// @Description  Completes the flow and redirects to the frontend credentials route.
// @Description  With format=json or Accept: application/json it returns JSON instead (popup flows).
// @Tags         OAuth
// @Param        provider           path   string  true   "Provider (twitter, linkedin)"
// @Param        code               query  string  false  "Authorization code"
// @Param        state              query  string  false  "State token"
// @Param        error              query  string  false  "Provider error code"
// @Param        error_description  query  string  false  "Provider error description"
// @Success      302
// @Success      200  {object}  domain.CredentialSummary
// @Failure      400  {object}  ErrorResponse
// @Router       /auth/{provider}/callback [get]
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	asJSON := wantsJSON(r)

	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	req := driving.ParseCallbackRequest(r.URL.Query())
	cred, err := s.oauthService.CompleteCallback(r.Context(), provider, req)
	if err != nil {
		if asJSON {
			s.writeServiceError(w, r, err)
			return
		}
		params := url.Values{
			"provider": {string(provider)},
			"error":    {publicMessage(err)},
		}
		http.Redirect(w, r, s.credentialsURL(params), http.StatusFound)
		return
	}

	if asJSON {
		writeJSON(w, http.StatusOK, cred.ToSummary(s.now()))
		return
	}

	http.Redirect(w, r, s.credentialsURL(credentialParams(cred)), http.StatusFound)
}

// credentialParams builds the redirect query for a linked credential.
// Token parameters are prefixed with the provider name.
func credentialParams(cred *domain.PlatformCredential) url.Values {
	p := string(cred.Provider)
	params := url.Values{
		"provider":          {p},
		p + "_access_token": {cred.AccessToken},
		"expires_at":        {cred.ExpiresAt.UTC().Format(time.RFC3339)},
		"name":              {cred.DisplayName},
		"user_id":           {cred.ExternalUserID},
	}
	if cred.RefreshToken != "" {
		params.Set(p+"_refresh_token", cred.RefreshToken)
	}
	if cred.Username != "" {
		params.Set("username", cred.Username)
	}
	if cred.Email != "" {
		params.Set("email", cred.Email)
	}
	return params
}

func (s *Server) credentialsURL(params url.Values) string {
	return s.frontendURL + s.credentialsPath + "?" + params.Encode()
}

// wantsJSON reports whether the caller asked for the popup JSON variant
func wantsJSON(r *http.Request) bool {
	if r.URL.Query().Get("format") == "json" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// Connection endpoints

// handleListConnections godoc
// @Summary      List linked accounts
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider (twitter, linkedin)"
// @Success      200       {array}   domain.CredentialSummary
// @Router       /api/v1/connections/{provider} [get]
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	creds, err := s.oauthService.ListCredentials(r.Context(), provider)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	now := s.now()
	summaries := make([]*domain.CredentialSummary, 0, len(creds))
	for _, cred := range creds {
		summaries = append(summaries, cred.ToSummary(now))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleGetConnection godoc
// @Summary      Get a linked account
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider (twitter, linkedin)"
// @Param        id        path      string  true  "External user id"
// @Success      200       {object}  domain.CredentialSummary
// @Failure      404       {object}  ErrorResponse
// @Router       /api/v1/connections/{provider}/{id} [get]
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	cred, err := s.oauthService.GetCredential(r.Context(), provider, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cred.ToSummary(s.now()))
}

// handleDeleteConnection godoc
// @Summary      Disconnect a linked account
// @Tags         Connections
// @Security     BearerAuth
// @Param        provider  path  string  true  "Provider (twitter, linkedin)"
// @Param        id        path  string  true  "External user id"
// @Success      204
// @Router       /api/v1/connections/{provider}/{id} [delete]
func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	if err := s.oauthService.Disconnect(r.Context(), provider, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.audit(r, "connection deleted", "provider", provider, "external_user_id", r.PathValue("id"))

	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshConnection godoc
// @Summary      Refresh a linked account's tokens
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider (twitter, linkedin)"
// @Param        id        path      string  true  "External user id"
// @Success      200       {object}  domain.CredentialSummary
// @Failure      409       {object}  ErrorResponse  "No refresh token"
// @Router       /api/v1/connections/{provider}/{id}/refresh [post]
func (s *Server) handleRefreshConnection(w http.ResponseWriter, r *http.Request) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unsupported provider")
		return
	}

	cred, err := s.oauthService.RefreshCredential(r.Context(), provider, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.audit(r, "connection refreshed", "provider", provider, "external_user_id", cred.ExternalUserID)

	writeJSON(w, http.StatusOK, cred.ToSummary(s.now()))
}

// Post endpoints

// handleCreatePost godoc
// @Summary      Draft and optionally publish a post
// @Tags         Posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      driving.CreatePostRequest  true  "Post request"
// @Success      200      {object}  driving.CreatePostResponse  "Draft only"
// @Success      201      {object}  driving.CreatePostResponse  "Published"
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "Account not connected"
// @Router       /api/v1/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req driving.CreatePostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	provider, err := domain.ParseProviderType(string(req.Provider))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported provider")
		return
	}
	req.Provider = provider

	resp, err := s.postService.Create(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.audit(r, "post created",
		"provider", provider,
		"external_user_id", req.ExternalUserID,
		"published", resp.Published,
		"post_id", resp.PostID,
	)

	status := http.StatusOK
	if resp.Published {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// Helper functions

// audit logs a state-changing API call with the caller from the bearer token.
// subject is empty when the management API runs without authentication.
func (s *Server) audit(r *http.Request, msg string, args ...any) {
	var subject string
	if authCtx := GetAuthContext(r.Context()); authCtx != nil {
		subject = authCtx.Subject
	}
	args = append(args, "subject", subject, "request_id", GetRequestID(r.Context()))
	s.logger.Info(msg, args...)
}

// writeServiceError maps service errors to status codes and sanitized messages.
// Full detail is logged; only public messages reach the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if oe, ok := domain.AsOAuthError(err); ok {
		status := oauthStatus(oe)
		if oe.IsRateLimited() && oe.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(oe.RetryAfter.Round(time.Second)/time.Second)))
		}
		writeError(w, status, oe.PublicMessage())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnsupportedProvider):
		writeError(w, http.StatusNotFound, "unsupported provider")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusConflict, "account is not connected")
	case errors.Is(err, domain.ErrNoRefreshToken):
		writeError(w, http.StatusConflict, "account has no refresh token")
	case errors.Is(err, domain.ErrGeneratorUnavailable):
		writeError(w, http.StatusServiceUnavailable, "content generation is not configured")
	case errors.Is(err, domain.ErrPublisherUnavailable):
		writeError(w, http.StatusNotImplemented, "publishing is not available for this provider")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusBadGateway, "upstream service unavailable")
	default:
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func oauthStatus(oe *domain.OAuthError) int {
	switch oe.Kind {
	case domain.OAuthErrorConfiguration:
		return http.StatusInternalServerError
	case domain.OAuthErrorInvalidState, domain.OAuthErrorMalformedCallback:
		return http.StatusBadRequest
	case domain.OAuthErrorAuthorizationDenied:
		return http.StatusForbidden
	case domain.OAuthErrorUpstream:
		if oe.IsRateLimited() {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case domain.OAuthErrorNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the browser-safe text for an error
func publicMessage(err error) string {
	if oe, ok := domain.AsOAuthError(err); ok {
		return oe.PublicMessage()
	}
	return "Authorization failed. Please try connecting again."
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
