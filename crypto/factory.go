package crypto

import (
	"context"
	"errors"
	"os"
)

// ProviderType defines the type of key provider to use.
type ProviderType string

const (
	// ProviderTypeLocal uses environment variable for key storage.
	ProviderTypeLocal ProviderType = "local"
	// ProviderTypeAWSKMS uses AWS Key Management Service.
	ProviderTypeAWSKMS ProviderType = "aws-kms"
	// ProviderTypeVault uses HashiCorp Vault.
	ProviderTypeVault ProviderType = "vault"
)

// ErrUnknownProviderType is returned for provider types the factory does
// not recognize.
var ErrUnknownProviderType = errors.New("unknown key provider type")

// NewProvider creates a KeyProvider based on the specified type.
// The provider type is determined by the KEY_PROVIDER environment variable
// or can be passed directly. It defaults to the local provider.
func NewProvider(ctx context.Context, providerType ProviderType) (KeyProvider, error) {
	if providerType == "" {
		providerType = ProviderType(os.Getenv("KEY_PROVIDER"))
	}

	if providerType == "" {
		providerType = ProviderTypeLocal
	}

	switch providerType {
	case ProviderTypeLocal:
		return NewLocalProvider()
	case ProviderTypeAWSKMS:
		return NewAWSKMSProviderFromEnv(ctx)
	case ProviderTypeVault:
		return NewVaultProvider()
	default:
		return nil, ErrUnknownProviderType
	}
}

// NewProviderFromEnv creates a KeyProvider using the KEY_PROVIDER
// environment variable.
func NewProviderFromEnv(ctx context.Context) (KeyProvider, error) {
	return NewProvider(ctx, "")
}
