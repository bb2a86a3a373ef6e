package client

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/types"
)

// kmsAPI is the subset of the KMS client the signer calls.
type kmsAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner signs with an asymmetric AWS KMS key. KMS has no Ed25519 keys,
// so KMS-backed callers are always P-256 principals.
type KMSSigner struct {
	client    kmsAPI
	keyID     string
	publicKey *ecdsa.PublicKey
}

type KMSSignerOptions struct {
	Region          string // required
	KeyID           string // key ID or ARN, required
	EndpointURL     string // LocalStack or other custom endpoint
	AccessKeyID     string // default credential chain when empty
	SecretAccessKey string
}

func NewKMSSigner(keyType types.KeyType, opts KMSSignerOptions) (Signer, error) {
	if keyType != types.KeyTypeP256 {
		return nil, fmt.Errorf("AWS KMS only supports P256 keys, not %s", keyType)
	}
	if opts.KeyID == "" {
		return nil, fmt.Errorf("KeyID is required for KMS signer")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("Region is required for KMS signer")
	}

	ctx := context.Background()
	configOptions := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		configOptions = append(configOptions, config.WithCredentialsProvider(credProvider))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*kms.Options)
	if opts.EndpointURL != "" {
		clientOptions = append(clientOptions, func(o *kms.Options) {
			o.BaseEndpoint = &opts.EndpointURL
		})
	}

	return newKMSSigner(ctx, kms.NewFromConfig(cfg, clientOptions...), opts.KeyID)
}

func newKMSSigner(ctx context.Context, client kmsAPI, keyID string) (*KMSSigner, error) {
	signer := &KMSSigner{client: client, keyID: keyID}
	if err := signer.loadPublicKey(ctx); err != nil {
		return nil, fmt.Errorf("failed to load public key from KMS: %w", err)
	}
	return signer, nil
}

func (k *KMSSigner) loadPublicKey(ctx context.Context) error {
	resp, err := k.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: &k.keyID})
	if err != nil {
		return fmt.Errorf("failed to get public key from AWS KMS: %w", err)
	}

	publicKey, err := encryption.ParseP256PublicKey(resp.PublicKey)
	if err != nil {
		return fmt.Errorf("KMS public key is not a valid P256 key: %w", err)
	}
	k.publicKey = publicKey
	return nil
}

func (k *KMSSigner) Sign(data []byte) ([]byte, error) {
	resp, err := k.client.Sign(context.Background(), &kms.SignInput{
		KeyId:            &k.keyID,
		Message:          data,
		MessageType:      kmstypes.MessageTypeRaw,
		SigningAlgorithm: kmstypes.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign with AWS KMS: %w", err)
	}
	return resp.Signature, nil
}

func (k *KMSSigner) Algorithm() types.KeyType {
	return types.KeyTypeP256
}

func (k *KMSSigner) PublicKey() (string, error) {
	if k.publicKey == nil {
		return "", fmt.Errorf("public key not loaded")
	}
	pubKeyBytes, err := encryption.MarshalP256PublicKey(k.publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal P256 public key: %w", err)
	}
	return hex.EncodeToString(pubKeyBytes), nil
}
