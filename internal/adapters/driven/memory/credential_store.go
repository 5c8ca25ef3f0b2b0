// Package memory provides the in-process credential store. It is the default
// backend: state lives for the lifetime of the process only.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore keeps pending flows and credentials in maps guarded by one
// mutex. Every critical section is a single map operation and values cross
// the boundary as copies.
type CredentialStore struct {
	mu          sync.Mutex
	flows       map[string]domain.PendingFlow
	credentials map[domain.CredentialKey]*domain.PlatformCredential
	now         func() time.Time
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return NewCredentialStoreWithClock(time.Now)
}

// NewCredentialStoreWithClock creates an empty store with an injected clock.
func NewCredentialStoreWithClock(now func() time.Time) *CredentialStore {
	return &CredentialStore{
		flows:       make(map[string]domain.PendingFlow),
		credentials: make(map[domain.CredentialKey]*domain.PlatformCredential),
		now:         now,
	}
}

// PutPendingFlow stores a flow keyed by its state token.
func (s *CredentialStore) PutPendingFlow(ctx context.Context, flow *domain.PendingFlow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("%w: pending flow requires a state", domain.ErrInvalidInput)
	}
	if !flow.Provider.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, flow.Provider)
	}

	f := *flow
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.now()
	}
	if f.ExpiresAt.IsZero() {
		f.ExpiresAt = f.CreatedAt.Add(domain.DefaultFlowTTL)
	}

	s.mu.Lock()
	s.flows[f.State] = f
	s.mu.Unlock()
	return nil
}

// TakePendingFlow removes and returns the flow for state.
func (s *CredentialStore) TakePendingFlow(ctx context.Context, state string) (*domain.PendingFlow, error) {
	s.mu.Lock()
	f, ok := s.flows[state]
	if ok {
		delete(s.flows, state)
	}
	s.mu.Unlock()

	if !ok || f.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

// PutCredential upserts a credential.
func (s *CredentialStore) PutCredential(ctx context.Context, cred *domain.PlatformCredential) error {
	if cred == nil {
		return fmt.Errorf("%w: credential is nil", domain.ErrInvalidInput)
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	c := cred.Clone()
	if c.RetainUntil.IsZero() {
		c.RetainUntil = c.IssuedAt.Add(domain.DefaultCredentialRetention)
	}

	s.mu.Lock()
	s.credentials[c.Key()] = c
	s.mu.Unlock()
	return nil
}

// GetCredential returns a copy of the stored credential.
// A credential past its retention window is reported as not found.
func (s *CredentialStore) GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	key := domain.CredentialKey{Provider: provider, ExternalUserID: externalUserID}

	s.mu.Lock()
	c, ok := s.credentials[key]
	var out *domain.PlatformCredential
	if ok {
		out = c.Clone()
	}
	s.mu.Unlock()

	if !ok || out.IsRetentionElapsed(s.now()) {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

// ListCredentials returns the provider's retained credentials ordered by user id.
func (s *CredentialStore) ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error) {
	now := s.now()

	s.mu.Lock()
	out := make([]*domain.PlatformCredential, 0)
	for key, c := range s.credentials {
		if key.Provider == provider && !c.IsRetentionElapsed(now) {
			out = append(out, c.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExternalUserID < out[j].ExternalUserID })
	return out, nil
}

// DeleteCredential removes a credential if present.
func (s *CredentialStore) DeleteCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) error {
	s.mu.Lock()
	delete(s.credentials, domain.CredentialKey{Provider: provider, ExternalUserID: externalUserID})
	s.mu.Unlock()
	return nil
}

// SweepExpiredFlows removes expired pending flows.
func (s *CredentialStore) SweepExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for state, f := range s.flows {
		if f.IsExpired(now) {
			delete(s.flows, state)
			removed++
		}
	}
	return removed, nil
}

// SweepExpiredCredentials removes credentials past their retention window.
func (s *CredentialStore) SweepExpiredCredentials(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, c := range s.credentials {
		if c.IsRetentionElapsed(now) {
			delete(s.credentials, key)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of pending flows and credentials currently held.
func (s *CredentialStore) Len() (flows, credentials int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows), len(s.credentials)
}
