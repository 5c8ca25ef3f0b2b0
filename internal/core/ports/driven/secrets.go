package driven

// SecretCipher encrypts token secrets at rest.
// The associated data binds a blob to the record it belongs to; opening a
// blob with different associated data fails.
type SecretCipher interface {
	Seal(plaintext, associated string) ([]byte, error)
	Open(blob []byte, associated string) (string, error)
}
