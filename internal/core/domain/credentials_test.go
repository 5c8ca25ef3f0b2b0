package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPendingFlowIsExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{"expired flow", now.Add(-time.Minute), true},
		{"live flow", now.Add(time.Minute), false},
		{"exact boundary", now, true},
		{"no expiry set", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &PendingFlow{ExpiresAt: tt.expiresAt}
			if flow.IsExpired(now) != tt.expected {
				t.Errorf("expected IsExpired() = %v", tt.expected)
			}
		})
	}
}

func TestPlatformCredentialValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		cred    PlatformCredential
		wantErr bool
	}{
		{
			name: "valid",
			cred: PlatformCredential{Provider: ProviderTypeTwitter, ExternalUserID: "42", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		},
		{
			name:    "expiry equals issue time",
			cred:    PlatformCredential{Provider: ProviderTypeTwitter, ExternalUserID: "42", IssuedAt: now, ExpiresAt: now},
			wantErr: true,
		},
		{
			name:    "missing user id",
			cred:    PlatformCredential{Provider: ProviderTypeLinkedIn, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cred:    PlatformCredential{Provider: "myspace", ExternalUserID: "1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlatformCredentialIsConnected(t *testing.T) {
	now := time.Now()

	cred := &PlatformCredential{AccessToken: "tok", ExpiresAt: now.Add(time.Hour)}
	if !cred.IsConnected(now) {
		t.Error("expected credential with live token to be connected")
	}

	cred.AccessToken = ""
	if cred.IsConnected(now) {
		t.Error("expected credential without access token to be disconnected")
	}

	cred.AccessToken = "tok"
	cred.ExpiresAt = now.Add(-time.Second)
	if cred.IsConnected(now) {
		t.Error("expected expired credential to be disconnected")
	}
}

func TestPlatformCredentialNeedsRefresh(t *testing.T) {
	now := time.Now()

	cred := &PlatformCredential{ExpiresAt: now.Add(time.Hour)}
	if cred.NeedsRefresh(now) {
		t.Error("token valid for an hour should not need refresh")
	}

	cred.ExpiresAt = now.Add(2 * time.Minute)
	if !cred.NeedsRefresh(now) {
		t.Error("token expiring in 2 minutes should need refresh")
	}
}

func TestPlatformCredentialRetention(t *testing.T) {
	now := time.Now()

	cred := &PlatformCredential{RetainUntil: now.Add(time.Minute)}
	if cred.IsRetentionElapsed(now) {
		t.Error("retention should not have elapsed")
	}
	if !cred.IsRetentionElapsed(now.Add(time.Minute)) {
		t.Error("retention should have elapsed at the boundary")
	}
}

func TestPlatformCredentialSecretsNotSerialized(t *testing.T) {
	cred := &PlatformCredential{
		Provider:       ProviderTypeTwitter,
		ExternalUserID: "42",
		AccessToken:    "secret-access",
		RefreshToken:   "secret-refresh",
	}

	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "secret-") {
		t.Errorf("serialized credential leaked a token: %s", data)
	}
}

func TestPlatformCredentialToSummary(t *testing.T) {
	now := time.Now()
	cred := &PlatformCredential{
		Provider:       ProviderTypeLinkedIn,
		ExternalUserID: "abc",
		DisplayName:    "Ada Lovelace",
		Email:          "ada@example.com",
		AccessToken:    "tok",
		RefreshToken:   "ref",
		IssuedAt:       now,
		ExpiresAt:      now.Add(time.Hour),
	}

	summary := cred.ToSummary(now)
	if !summary.Connected {
		t.Error("expected summary to be connected")
	}
	if !summary.HasRefreshToken {
		t.Error("expected summary to report refresh token")
	}
	if summary.Email != "ada@example.com" {
		t.Errorf("expected email ada@example.com, got %s", summary.Email)
	}
}

func TestPlatformCredentialClone(t *testing.T) {
	cred := &PlatformCredential{Scopes: []string{"a", "b"}}
	clone := cred.Clone()
	clone.Scopes[0] = "changed"

	if cred.Scopes[0] != "a" {
		t.Error("Clone() shared the scopes slice")
	}

	var nilCred *PlatformCredential
	if nilCred.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestCredentialKeyString(t *testing.T) {
	key := CredentialKey{Provider: ProviderTypeTwitter, ExternalUserID: "42"}
	if key.String() != "twitter:42" {
		t.Errorf("expected twitter:42, got %s", key.String())
	}
}
