package driven

import "github.com/custodia-labs/sercha-publish/internal/core/domain"

// TokenVerifier handles API bearer token operations.
type TokenVerifier interface {
	GenerateToken(claims *domain.TokenClaims) (string, error)
	ParseToken(token string) (*domain.TokenClaims, error)
}
