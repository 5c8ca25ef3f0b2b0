package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
)

// CredentialStore owns pending authorization flows and linked platform credentials.
// Implementations must be safe for concurrent use; every method is a short,
// local critical section and never waits on a provider.
type CredentialStore interface {
	// PutPendingFlow stores a new pending flow keyed by its state token.
	// CreatedAt and ExpiresAt are filled with store defaults when zero.
	PutPendingFlow(ctx context.Context, flow *domain.PendingFlow) error

	// TakePendingFlow atomically retrieves and deletes the flow for state.
	// Of any number of concurrent callers for the same state, exactly one
	// receives the flow; the rest get domain.ErrNotFound. An expired flow is
	// deleted and reported as domain.ErrNotFound.
	TakePendingFlow(ctx context.Context, state string) (*domain.PendingFlow, error)

	// PutCredential upserts a credential by (provider, external user id).
	// Concurrent writers for the same key are last-writer-wins.
	PutCredential(ctx context.Context, cred *domain.PlatformCredential) error

	// GetCredential returns domain.ErrNotFound when no credential is stored.
	GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error)

	// ListCredentials returns all stored credentials for a provider.
	ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error)

	// DeleteCredential removes a credential (disconnect). Deleting a missing
	// credential is not an error.
	DeleteCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) error

	// SweepExpiredFlows removes flows whose ExpiresAt is at or before now.
	SweepExpiredFlows(ctx context.Context, now time.Time) (int, error)

	// SweepExpiredCredentials removes credentials whose RetainUntil is at or before now.
	SweepExpiredCredentials(ctx context.Context, now time.Time) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
