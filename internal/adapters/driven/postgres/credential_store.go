package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-publish/internal/core/domain"
	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implements driven.CredentialStore using PostgreSQL.
// Token secrets and PKCE verifiers are sealed before they reach the database.
type CredentialStore struct {
	db     *sql.DB
	cipher driven.SecretCipher
	now    func() time.Time
}

// NewCredentialStore creates a PostgreSQL-backed credential store.
func NewCredentialStore(db *sql.DB, cipher driven.SecretCipher) *CredentialStore {
	return &CredentialStore{
		db:     db,
		cipher: cipher,
		now:    time.Now,
	}
}

// PutPendingFlow stores a new pending flow.
func (s *CredentialStore) PutPendingFlow(ctx context.Context, flow *domain.PendingFlow) error {
	if flow == nil || flow.State == "" {
		return fmt.Errorf("%w: pending flow requires a state", domain.ErrInvalidInput)
	}
	if !flow.Provider.IsValid() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, flow.Provider)
	}

	createdAt := flow.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	expiresAt := flow.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = createdAt.Add(domain.DefaultFlowTTL)
	}

	verifier, err := s.cipher.Seal(flow.CodeVerifier, "flow:"+flow.State)
	if err != nil {
		return fmt.Errorf("seal code verifier: %w", err)
	}

	query := `
		INSERT INTO oauth_pending_flows (state, provider, code_verifier, redirect_uri, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (state) DO UPDATE SET
			provider = EXCLUDED.provider,
			code_verifier = EXCLUDED.code_verifier,
			redirect_uri = EXCLUDED.redirect_uri,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = s.db.ExecContext(ctx, query,
		flow.State,
		string(flow.Provider),
		verifier,
		flow.RedirectURI,
		createdAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save pending flow: %w", err)
	}
	return nil
}

// TakePendingFlow atomically retrieves and deletes the flow.
// Uses DELETE ... RETURNING for atomic single-use semantics; an expired row
// is deleted as well and reported as not found.
func (s *CredentialStore) TakePendingFlow(ctx context.Context, state string) (*domain.PendingFlow, error) {
	query := `
		DELETE FROM oauth_pending_flows
		WHERE state = $1
		RETURNING state, provider, code_verifier, redirect_uri, created_at, expires_at
	`

	var (
		flow     domain.PendingFlow
		provider string
		verifier []byte
	)
	err := s.db.QueryRowContext(ctx, query, state).Scan(
		&flow.State,
		&provider,
		&verifier,
		&flow.RedirectURI,
		&flow.CreatedAt,
		&flow.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take pending flow: %w", err)
	}

	if flow.IsExpired(s.now()) {
		return nil, domain.ErrNotFound
	}

	flow.Provider = domain.ProviderType(provider)
	if flow.CodeVerifier, err = s.cipher.Open(verifier, "flow:"+flow.State); err != nil {
		return nil, fmt.Errorf("open code verifier: %w", err)
	}
	return &flow, nil
}

// PutCredential upserts a credential; re-authentication overwrites the row.
func (s *CredentialStore) PutCredential(ctx context.Context, cred *domain.PlatformCredential) error {
	if cred == nil {
		return fmt.Errorf("%w: credential is nil", domain.ErrInvalidInput)
	}
	if err := cred.Validate(); err != nil {
		return err
	}

	retainUntil := cred.RetainUntil
	if retainUntil.IsZero() {
		retainUntil = cred.IssuedAt.Add(domain.DefaultCredentialRetention)
	}

	ad := cred.Key().String()
	access, err := s.cipher.Seal(cred.AccessToken, ad+":access")
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.cipher.Seal(cred.RefreshToken, ad+":refresh")
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	query := `
		INSERT INTO platform_credentials (
			provider, external_user_id, display_name, username, email,
			access_token, refresh_token, token_type, scopes,
			issued_at, expires_at, retain_until, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (provider, external_user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			username = EXCLUDED.username,
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scopes = EXCLUDED.scopes,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			retain_until = EXCLUDED.retain_until,
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		string(cred.Provider),
		cred.ExternalUserID,
		cred.DisplayName,
		cred.Username,
		cred.Email,
		access,
		refresh,
		cred.TokenType,
		pq.Array(scopes),
		cred.IssuedAt,
		cred.ExpiresAt,
		retainUntil,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

const credentialColumns = `
	provider, external_user_id, display_name, username, email,
	access_token, refresh_token, token_type, scopes,
	issued_at, expires_at, retain_until
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *CredentialStore) scanCredential(row rowScanner) (*domain.PlatformCredential, error) {
	var (
		cred            domain.PlatformCredential
		provider        string
		access, refresh []byte
		scopes          pq.StringArray
	)
	if err := row.Scan(
		&provider,
		&cred.ExternalUserID,
		&cred.DisplayName,
		&cred.Username,
		&cred.Email,
		&access,
		&refresh,
		&cred.TokenType,
		&scopes,
		&cred.IssuedAt,
		&cred.ExpiresAt,
		&cred.RetainUntil,
	); err != nil {
		return nil, err
	}

	cred.Provider = domain.ProviderType(provider)
	cred.Scopes = []string(scopes)

	ad := cred.Key().String()
	var err error
	if cred.AccessToken, err = s.cipher.Open(access, ad+":access"); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if cred.RefreshToken, err = s.cipher.Open(refresh, ad+":refresh"); err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	return &cred, nil
}

// GetCredential retrieves a retained credential.
func (s *CredentialStore) GetCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) (*domain.PlatformCredential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM platform_credentials
		WHERE provider = $1 AND external_user_id = $2 AND retain_until > $3
	`

	cred, err := s.scanCredential(s.db.QueryRowContext(ctx, query, string(provider), externalUserID, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

// ListCredentials returns the provider's retained credentials ordered by user id.
func (s *CredentialStore) ListCredentials(ctx context.Context, provider domain.ProviderType) ([]*domain.PlatformCredential, error) {
	query := `SELECT ` + credentialColumns + `
		FROM platform_credentials
		WHERE provider = $1 AND retain_until > $2
		ORDER BY external_user_id
	`

	rows, err := s.db.QueryContext(ctx, query, string(provider), s.now())
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.PlatformCredential, 0)
	for rows.Next() {
		cred, err := s.scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// DeleteCredential removes a credential; missing rows are not an error.
func (s *CredentialStore) DeleteCredential(ctx context.Context, provider domain.ProviderType, externalUserID string) error {
	query := `DELETE FROM platform_credentials WHERE provider = $1 AND external_user_id = $2`

	if _, err := s.db.ExecContext(ctx, query, string(provider), externalUserID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// SweepExpiredFlows removes expired pending flows.
func (s *CredentialStore) SweepExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, `DELETE FROM oauth_pending_flows WHERE expires_at <= $1`, now)
}

// SweepExpiredCredentials removes credentials past their retention window.
func (s *CredentialStore) SweepExpiredCredentials(ctx context.Context, now time.Time) (int, error) {
	return s.sweep(ctx, `DELETE FROM platform_credentials WHERE retain_until <= $1`, now)
}

func (s *CredentialStore) sweep(ctx context.Context, query string, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return int(n), nil
}

// Ping checks database connectivity.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
