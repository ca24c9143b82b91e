package crypto

import (
	"context"
	"errors"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// AWSKMSProvider provides key management using AWS Key Management Service.
// This is the recommended provider for production deployments: keys are HSM
// backed, access is controlled via IAM and usage is audited via CloudTrail.
type AWSKMSProvider struct {
	client *kms.Client
	keyID  string
}

// NewAWSKMSProvider creates a new AWSKMSProvider.
// The keyID can be a key ID, key ARN, alias, or alias ARN.
func NewAWSKMSProvider(ctx context.Context, keyID string) (*AWSKMSProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	client := kms.NewFromConfig(cfg)

	// Verify the key exists and is accessible before handing it out.
	_, err = client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: &keyID,
	})
	if err != nil {
		return nil, err
	}

	return &AWSKMSProvider{
		client: client,
		keyID:  keyID,
	}, nil
}

// NewAWSKMSProviderFromEnv creates a new AWSKMSProvider using the
// AWS_KMS_KEY_ID environment variable.
func NewAWSKMSProviderFromEnv(ctx context.Context) (*AWSKMSProvider, error) {
	keyID := os.Getenv("AWS_KMS_KEY_ID")
	if keyID == "" {
		return nil, errors.New("AWS_KMS_KEY_ID environment variable is not set")
	}
	return NewAWSKMSProvider(ctx, keyID)
}

// GetKey generates and returns a data key for encryption.
// This uses KMS GenerateDataKey to get a plaintext key for local encryption;
// the caller should store the ciphertext form from EncryptKey alongside the
// data if it needs to recover the key later.
func (p *AWSKMSProvider) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	output, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   &p.keyID,
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, err
	}

	return output.Plaintext, nil
}

// EncryptKey encrypts a data key under the KMS master key.
func (p *AWSKMSProvider) EncryptKey(ctx context.Context, key []byte, keyID string) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     &p.keyID,
		Plaintext: key,
	})
	if err != nil {
		return nil, err
	}
	return output.CiphertextBlob, nil
}

// DecryptKey decrypts a data key using KMS Decrypt.
func (p *AWSKMSProvider) DecryptKey(ctx context.Context, encryptedKey []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          &p.keyID,
		CiphertextBlob: encryptedKey,
	})
	if err != nil {
		return nil, err
	}
	return output.Plaintext, nil
}

// KeyID returns the KMS key identifier.
func (p *AWSKMSProvider) KeyID() string {
	return "kms://" + p.keyID
}
