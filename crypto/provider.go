package crypto

import "context"

// KeyProvider defines the interface for key management services that source
// the store's master key. Implementations can use environment variables,
// AWS KMS, HashiCorp Vault, etc.
type KeyProvider interface {
	// GetKey retrieves the encryption key for the given keyID.
	GetKey(ctx context.Context, keyID string) ([]byte, error)

	// EncryptKey encrypts a key for external storage.
	EncryptKey(ctx context.Context, key []byte, keyID string) ([]byte, error)

	// DecryptKey decrypts a previously encrypted key.
	DecryptKey(ctx context.Context, encryptedKey []byte) ([]byte, error)

	// KeyID returns the unique identifier for this provider.
	KeyID() string
}
