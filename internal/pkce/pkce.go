// Package pkce generates OAuth state tokens and RFC 7636 verifier/challenge pairs.
// All functions are pure apart from reading crypto/rand.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the only challenge method this package produces.
const MethodS256 = "S256"

// tokenBytes yields 256 bits of entropy and a 43-character encoding,
// which also satisfies the RFC 7636 verifier length range of 43..128.
const tokenBytes = 32

// GenerateToken returns a cryptographically random, URL-safe, unpadded token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateVerifier returns a fresh PKCE code verifier.
// It is generated independently of the state token.
func GenerateVerifier() (string, error) {
	return GenerateToken()
}

// DeriveChallenge computes the S256 code challenge for a verifier.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
