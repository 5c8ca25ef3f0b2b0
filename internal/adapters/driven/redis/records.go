package redis

import (
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// flowRecord is the stored form of a pending flow; the verifier is sealed.
type flowRecord struct {
	State        string              `json:"state"`
	Provider     domain.ProviderType `json:"provider"`
	CodeVerifier []byte              `json:"code_verifier,omitempty"`
	RedirectURI  string              `json:"redirect_uri"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// credentialRecord is the stored form of a credential; tokens are sealed.
type credentialRecord struct {
	Provider       domain.ProviderType `json:"provider"`
	ExternalUserID string              `json:"external_user_id"`
	DisplayName    string              `json:"display_name"`
	Username       string              `json:"username,omitempty"`
	Email          string              `json:"email,omitempty"`
	AccessToken    []byte              `json:"access_token"`
	RefreshToken   []byte              `json:"refresh_token,omitempty"`
	TokenType      string              `json:"token_type,omitempty"`
	Scopes         []string            `json:"scopes,omitempty"`
	IssuedAt       time.Time           `json:"issued_at"`
	ExpiresAt      time.Time           `json:"expires_at"`
	RetainUntil    time.Time           `json:"retain_until"`
}

func sealFlow(c driven.SecretCipher, f *domain.PendingFlow) (*flowRecord, error) {
	verifier, err := c.Seal(f.CodeVerifier, "flow:"+f.State)
	if err != nil {
		return nil, err
	}
	return &flowRecord{
		State:        f.State,
		Provider:     f.Provider,
		CodeVerifier: verifier,
		RedirectURI:  f.RedirectURI,
		CreatedAt:    f.CreatedAt,
		ExpiresAt:    f.ExpiresAt,
	}, nil
}

func (r *flowRecord) open(c driven.SecretCipher) (*domain.PendingFlow, error) {
	verifier, err := c.Open(r.CodeVerifier, "flow:"+r.State)
	if err != nil {
		return nil, err
	}
	return &domain.PendingFlow{
		State:        r.State,
		Provider:     r.Provider,
		CodeVerifier: verifier,
		RedirectURI:  r.RedirectURI,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
	}, nil
}

func sealCredential(c driven.SecretCipher, cred *domain.PlatformCredential) (*credentialRecord, error) {
	ad := cred.Key().String()
	access, err := c.Seal(cred.AccessToken, ad+":access")
	if err != nil {
		return nil, err
	}
	refresh, err := c.Seal(cred.RefreshToken, ad+":refresh")
	if err != nil {
		return nil, err
	}
	return &credentialRecord{
		Provider:       cred.Provider,
		ExternalUserID: cred.ExternalUserID,
		DisplayName:    cred.DisplayName,
		Username:       cred.Username,
		Email:          cred.Email,
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenType:      cred.TokenType,
		Scopes:         cred.Scopes,
		IssuedAt:       cred.IssuedAt,
		ExpiresAt:      cred.ExpiresAt,
		RetainUntil:    cred.RetainUntil,
	}, nil
}

func (r *credentialRecord) open(c driven.SecretCipher) (*domain.PlatformCredential, error) {
	cred := &domain.PlatformCredential{
		Provider:       r.Provider,
		ExternalUserID: r.ExternalUserID,
		DisplayName:    r.DisplayName,
		Username:       r.Username,
		Email:          r.Email,
		TokenType:      r.TokenType,
		Scopes:         r.Scopes,
		IssuedAt:       r.IssuedAt,
		ExpiresAt:      r.ExpiresAt,
		RetainUntil:    r.RetainUntil,
	}
	ad := cred.Key().String()

	var err error
	if cred.AccessToken, err = c.Open(r.AccessToken, ad+":access"); err != nil {
		return nil, err
	}
	if cred.RefreshToken, err = c.Open(r.RefreshToken, ad+":refresh"); err != nil {
		return nil, err
	}
	return cred, nil
}
