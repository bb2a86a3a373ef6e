package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockKMSClient is a mock implementation of the AWS KMS client
type MockKMSClient struct {
	mock.Mock
}

func (m *MockKMSClient) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kms.GetPublicKeyOutput), args.Error(1)
}

func (m *MockKMSClient) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*kms.SignOutput), args.Error(1)
}

func mockKMSKey(t *testing.T) (*ecdsa.PrivateKey, *MockKMSClient) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	mockClient := &MockKMSClient{}
	mockClient.On("GetPublicKey", mock.Anything, mock.MatchedBy(func(input *kms.GetPublicKeyInput) bool {
		return *input.KeyId == "test-key-id"
	})).Return(&kms.GetPublicKeyOutput{PublicKey: publicKeyBytes}, nil)
	return privateKey, mockClient
}

func TestNewKMSSigner_ValidationErrors(t *testing.T) {
	t.Run("unsupported key type", func(t *testing.T) {
		_, err := NewKMSSigner(types.KeyTypeEd25519, KMSSignerOptions{Region: "us-east-1", KeyID: "test-key"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AWS KMS only supports P256 keys")
	})

	t.Run("missing key ID", func(t *testing.T) {
		_, err := NewKMSSigner(types.KeyTypeP256, KMSSignerOptions{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KeyID is required")
	})

	t.Run("missing region", func(t *testing.T) {
		_, err := NewKMSSigner(types.KeyTypeP256, KMSSignerOptions{KeyID: "test-key"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Region is required")
	})
}

func TestKMSSigner_LoadsPublicKey(t *testing.T) {
	privateKey, mockClient := mockKMSKey(t)

	signer, err := newKMSSigner(context.Background(), mockClient, "test-key-id")
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeP256, signer.Algorithm())

	pubKeyHex, err := signer.PublicKey()
	require.NoError(t, err)
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	require.NoError(t, err)

	parsed, err := encryption.ParseP256PublicKey(pubKeyBytes)
	require.NoError(t, err)
	assert.True(t, privateKey.PublicKey.Equal(parsed))
	mockClient.AssertExpectations(t)
}

func TestKMSSigner_GetPublicKeyFails(t *testing.T) {
	mockClient := &MockKMSClient{}
	mockClient.On("GetPublicKey", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := newKMSSigner(context.Background(), mockClient, "test-key-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestKMSSigner_SignProducesVerifiableSignature(t *testing.T) {
	privateKey, mockClient := mockKMSKey(t)
	data := []byte("store request")

	// KMS signs sha256(message) for ECDSA_SHA_256 with MessageType RAW
	kmsSignature, err := encryption.SignWithP256(privateKey, data)
	require.NoError(t, err)
	mockClient.On("Sign", mock.Anything, mock.MatchedBy(func(input *kms.SignInput) bool {
		return *input.KeyId == "test-key-id" && string(input.Message) == string(data)
	})).Return(&kms.SignOutput{Signature: kmsSignature}, nil)

	signer, err := newKMSSigner(context.Background(), mockClient, "test-key-id")
	require.NoError(t, err)

	sig, err := signer.Sign(data)
	require.NoError(t, err)
	assert.NoError(t, encryption.VerifyP256Signature(&privateKey.PublicKey, data, sig))

	principal, err := PrincipalOf(signer)
	require.NoError(t, err)
	keyType, _, err := principal.KeyMaterial()
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeP256, keyType)
}

func TestKMSSigner_PublicKey_NotLoaded(t *testing.T) {
	signer := &KMSSigner{}

	pubKeyHex, err := signer.PublicKey()
	require.Error(t, err)
	assert.Empty(t, pubKeyHex)
	assert.Contains(t, err.Error(), "public key not loaded")
}
