package domain

import "time"

// TokenClaims represents the API bearer JWT payload.
// The subject is the application's user on whose behalf connections are managed.
type TokenClaims struct {
	Subject   string `json:"sub"`
	Name      string `json:"name,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// IsExpired checks if the claims have expired
func (c *TokenClaims) IsExpired(now time.Time) bool {
	return c.ExpiresAt != 0 && now.Unix() >= c.ExpiresAt
}

// AuthContext contains the authenticated caller for request context
type AuthContext struct {
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
}
