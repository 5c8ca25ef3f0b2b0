// Package secrets encrypts OAuth token secrets for the networked store backends.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/custodia-labs/sercha-publish/internal/core/ports/driven"
)

const (
	// blobVersion prefixes every blob so the format can change later.
	blobVersion = 0x01

	// nonceSize is the AES-GCM nonce size (12 bytes is standard)
	nonceSize = 12

	// KeySize is the required key size for AES-256
	KeySize = 32

	// minSecretLength is the shortest passphrase DeriveKey accepts.
	minSecretLength = 16

	hkdfInfo = "sercha-publish token encryption v1"
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrSecretTooShort is returned when the passphrase is too weak to derive a key.
	ErrSecretTooShort = errors.New("encryption secret must be at least 16 characters")

	// ErrInvalidBlobSize is returned when the encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported secret blob version")

	// ErrDecryptionFailed is returned when decryption fails (wrong key, wrong
	// associated data or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt secret blob")
)

// Ensure Encryptor implements the interface.
var _ driven.SecretCipher = (*Encryptor)(nil)

// Encryptor handles AES-256-GCM encryption of token secrets.
// The blob format is: version(1) || nonce(12) || ciphertext(N)
type Encryptor struct {
	gcm cipher.AEAD
}

// DeriveKey stretches a configured passphrase into a 32-byte key with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// NewEncryptor creates an encryptor with the given 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// NewEncryptorFromSecret derives a key from secret and creates an encryptor.
func NewEncryptorFromSecret(secret string) (*Encryptor, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// Seal encrypts plaintext bound to the associated data.
// An empty plaintext yields a nil blob so optional secrets stay absent.
func (e *Encryptor) Seal(plaintext, associated string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), []byte(associated))

	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = blobVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

// Open decrypts a blob produced by Seal with the same associated data.
// A nil or empty blob opens to the empty string.
func (e *Encryptor) Open(blob []byte, associated string) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	if len(blob) < 1+nonceSize+e.gcm.Overhead() {
		return "", ErrInvalidBlobSize
	}
	if blob[0] != blobVersion {
		return "", fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	plaintext, err := e.gcm.Open(nil, nonce, blob[1+nonceSize:], []byte(associated))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
