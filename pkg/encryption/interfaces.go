package encryption

// Encrypter seals a plaintext. The ciphertext carries its own nonce
// and authentication tag.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Decrypter opens a sealed ciphertext. Returns ErrAuthenticationFailed
// when the data has been tampered with.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// EncryptDecrypter combines both directions for callers that seal and
// open archive blobs.
type EncryptDecrypter interface {
	Encrypter
	Decrypter
}

var (
	_ Encrypter        = (*Engine)(nil)
	_ Decrypter        = (*Engine)(nil)
	_ EncryptDecrypter = (*Engine)(nil)
)
