package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "sercha:publish:"

// CredentialStore implements driven.CredentialStore using Redis.
// Pending flows expire through Redis TTL and are taken with GETDEL, which is
// atomic on the server. Credentials expire at RetainUntil and are indexed per
// provider in a set.
type CredentialStore struct {
	client *redis.Client
	cipher driven.SecretCipher
	prefix string
	now    func() time.Time
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *CredentialStore) { s.prefix = prefix }
}

// WithClock injects the time source used for TTLs and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialStore) { s.now = now }
}

// NewCredentialStore creates a Redis-backed store. Token secrets and PKCE
// verifiers are sealed with cipher before they are written.
func NewCredentialStore(client *redis.Client, cipher driven.SecretCipher, opts ...Option) *CredentialStore {
	s := &CredentialStore{
		client: client,
		cipher: cipher,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *CredentialStore) flowKey(state string) string {
	return s.prefix + "flow:" + state
}

func (s *CredentialStore) credentialKey(provider domain.ProviderType, externalUserID string) string {
	return s.prefix + "cred:" + string(provider) + ":" + externalUserID
}

func (s *CredentialStore) indexKey(provider domain.ProviderType) string {
	return s.prefix + "creds:" + string(provider)
}

// PutPendingFlow stores a flow with a TTL ending at its ExpiresAt.
func (s *CredentialStore) PutPendingFlow(ctx context.Context, flow *domain.PendingFlow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("%w: pending flow requires a state", domain.ErrInvalidInput)
	}
	if !flow.Provider.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, flow.Provider)
	}

	f := *flow
	now := s.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.ExpiresAt.IsZero() {
		f.ExpiresAt = f.CreatedAt.Add(domain.DefaultFlowTTL)
	}

	ttl := f.ExpiresAt.Sub(now)
	if ttl <= 0 {
		// Already expired; a take would report it missing anyway
		return nil
	}

	record, err := sealFlow(s.cipher, &f)
	if err != nil {
		return fmt.Errorf("seal pending flow: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal pending flow: %w", err)
	}

	if err := s.client.Set(ctx, s.flowKey(f.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save pending flow: %w", err)
	}
	return nil
}

// TakePendingFlow atomically retrieves and deletes the flow with GETDEL.
func (s *CredentialStore) TakePendingFlow(ctx context.Context, state string) (*domain.PendingFlow, error) {
	data, err := s.client.GetDel(ctx, s.flowKey(state)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending flow: %w", err)
	}

	var record flowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending flow: %w", err)
	}
	flow, err := record.open(s.cipher)
	if err != nil {
		return nil, fmt.Errorf("open pending flow: %w", err)
	}
	if flow.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}
	return flow, nil
}

// PutCredential upserts a credential with a TTL ending at RetainUntil.
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
	ttl := c.RetainUntil.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	record, err := sealCredential(s.cipher, c)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.credentialKey(c.Provider, c.ExternalUserID), data, ttl)
	pipe.SAdd(ctx, s.indexKey(c.Provider), c.ExternalUserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// GetCredential retrieves a credential by key.
func (s *CredentialStore) GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	data, err := s.client.Get(ctx, s.credentialKey(provider, externalUserID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return s.decodeCredential(data)
}

func (s *CredentialStore) decodeCredential(data []byte) (*domain.PlatformCredential, error) {
	var record credentialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	cred, err := record.open(s.cipher)
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}
	return cred, nil
}

// ListCredentials returns the provider's credentials ordered by user id.
// Index entries whose credential has expired are pruned on the way.
func (s *CredentialStore) ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	out := make([]*domain.PlatformCredential, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.credentialKey(provider, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		cred, err := s.decodeCredential([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, cred)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(provider), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune credential index: %w", err)
		}
	}
	return out, nil
}

// DeleteCredential removes a credential and its index entry.
func (s *CredentialStore) DeleteCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.credentialKey(provider, externalUserID))
	pipe.SRem(ctx, s.indexKey(provider), externalUserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// SweepExpiredFlows deletes flows whose ExpiresAt has passed but whose key
// is still present, e.g. when the server clock lags the application clock.
func (s *CredentialStore) SweepExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"flow:*", 100).Iterator()
	for iter.Next(ctx) {
		ok, err := s.deleteIfExpired(ctx, iter.Val(), "", "", func(data []byte) (bool, error) {
			var record flowRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return false, fmt.Errorf("failed to unmarshal pending flow: %w", err)
			}
			return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt), nil
		})
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan pending flows: %w", err)
	}
	return removed, nil
}

// SweepExpiredCredentials drops index entries whose credential key has
// expired through TTL, and deletes credentials past RetainUntil that are
// still present.
func (s *CredentialStore) SweepExpiredCredentials(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, provider := range domain.SupportedProviders() {
		index := s.indexKey(provider)
		ids, err := s.client.SMembers(ctx, index).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to list credential index: %w", err)
		}

		for _, id := range ids {
			ok, err := s.deleteIfExpired(ctx, s.credentialKey(provider, id), index, id, func(data []byte) (bool, error) {
				if data == nil {
					return true, nil
				}
				var record credentialRecord
				if err := json.Unmarshal(data, &record); err != nil {
					return false, fmt.Errorf("failed to unmarshal credential: %w", err)
				}
				return !record.RetainUntil.IsZero() && !now.Before(record.RetainUntil), nil
			})
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}
	}
	return removed, nil
}

// deleteIfExpired deletes key, and removes member from index when index is
// set, if expired reports true for its current value. Without an index a
// missing key is skipped; with one, expired sees nil so the stale member can
// be dropped. The check and delete run under WATCH, so a concurrent
// take or rewrite of the key makes the sweep skip it.
func (s *CredentialStore) deleteIfExpired(ctx context.Context, key, index, member string, expired func([]byte) (bool, error)) (bool, error) {
	var deleted bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			if index == "" {
				return nil
			}
			data = nil
		} else if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}

		ok, err := expired(data)
		if err != nil || !ok {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if index != "" {
				pipe.SRem(ctx, index, member)
			}
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Ping checks Redis connectivity.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
