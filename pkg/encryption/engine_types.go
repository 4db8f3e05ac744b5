package encryption

import "errors"

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the standard GCM nonce length.
	NonceSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// SaltSize is the PBKDF2 salt length.
	SaltSize = 32
	// PBKDF2Iterations follows the OWASP recommended minimum.
	PBKDF2Iterations = 600000
)

var (
	ErrInvalidKey           = errors.New("invalid encryption key")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrAuthenticationFailed = errors.New("authentication failed: data may be tampered")
)
