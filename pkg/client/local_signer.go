package client

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/security"
	"github.com/fystack/guardkv/pkg/types"
)

const DefaultKeyFile = "caller.key"

// LocalSigner signs with a private key read from disk.
type LocalSigner struct {
	keyType    types.KeyType
	ed25519Key ed25519.PrivateKey
	p256Key    *ecdsa.PrivateKey
}

type LocalSignerOptions struct {
	KeyPath   string // defaults to ./caller.key
	Encrypted bool   // implied by a .age extension
	Password  string // required if encrypted
}

func NewLocalSigner(keyType types.KeyType, opts LocalSignerOptions) (Signer, error) {
	if opts.KeyPath == "" {
		opts.KeyPath = filepath.Join(".", DefaultKeyFile)
	}
	if isEncryptedKeyPath(opts.KeyPath) {
		opts.Encrypted = true
	}

	keyData, err := readKeyFile(opts.KeyPath, opts.Encrypted, opts.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer security.ZeroBytes(keyData)

	return newLocalSignerFromKey(keyType, keyData)
}

func newLocalSignerFromKey(keyType types.KeyType, keyData []byte) (*LocalSigner, error) {
	signer := &LocalSigner{keyType: keyType}

	switch keyType {
	case types.KeyTypeEd25519:
		seed, err := hex.DecodeString(strings.TrimSpace(string(keyData)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode Ed25519 private key hex: %w", err)
		}
		defer security.ZeroBytes(seed)
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid Ed25519 seed length: expected %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		signer.ed25519Key = ed25519.NewKeyFromSeed(seed)
	case types.KeyTypeP256:
		privKey, err := encryption.ParseP256PrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to load P256 key: %w", err)
		}
		signer.p256Key = privKey
	default:
		return nil, fmt.Errorf("unsupported key type: %s", keyType)
	}
	return signer, nil
}

func (s *LocalSigner) Sign(data []byte) ([]byte, error) {
	switch s.keyType {
	case types.KeyTypeEd25519:
		return ed25519.Sign(s.ed25519Key, data), nil
	case types.KeyTypeP256:
		return encryption.SignWithP256(s.p256Key, data)
	default:
		return nil, fmt.Errorf("unsupported key type: %s", s.keyType)
	}
}

func (s *LocalSigner) Algorithm() types.KeyType {
	return s.keyType
}

func (s *LocalSigner) PublicKey() (string, error) {
	switch s.keyType {
	case types.KeyTypeEd25519:
		return hex.EncodeToString(s.ed25519Key.Public().(ed25519.PublicKey)), nil
	case types.KeyTypeP256:
		pubKeyBytes, err := encryption.MarshalP256PublicKey(&s.p256Key.PublicKey)
		if err != nil {
			return "", fmt.Errorf("failed to marshal P256 public key: %w", err)
		}
		return hex.EncodeToString(pubKeyBytes), nil
	default:
		return "", fmt.Errorf("unsupported key type: %s", s.keyType)
	}
}
