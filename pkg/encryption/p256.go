package encryption

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ParseP256PrivateKey accepts PKCS#8 or SEC1 DER, raw or hex encoded.
func ParseP256PrivateKey(keyData []byte) (*ecdsa.PrivateKey, error) {
	if key, err := parseP256PrivateDER(keyData); err == nil {
		return key, nil
	}

	keyStr := strings.TrimPrefix(strings.TrimSpace(string(keyData)), "0x")
	keyBytes, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex string: %w", err)
	}
	return parseP256PrivateDER(keyBytes)
}

func parseP256PrivateDER(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if ecdsaKey, ok := key.(*ecdsa.PrivateKey); ok && ecdsaKey.Curve == elliptic.P256() {
			return ecdsaKey, nil
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil && key.Curve == elliptic.P256() {
		return key, nil
	}
	return nil, errors.New("failed to parse P256 private key from DER or hex format")
}

// SignWithP256 produces an ASN.1 ECDSA signature over sha256(data).
func SignWithP256(privateKey *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	if privateKey == nil || privateKey.Curve == nil {
		return nil, errors.New("invalid private key")
	}

	hash := sha256.Sum256(data)
	signature, err := ecdsa.SignASN1(rand.Reader, privateKey, hash[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}
	return signature, nil
}

// GenerateP256Keys returns a SEC1 private key and a PKIX public key, both hex encoded.
func GenerateP256Keys() (KeyData, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return KeyData{}, err
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return KeyData{}, err
	}
	publicKeyBytes, err := MarshalP256PublicKey(&privateKey.PublicKey)
	if err != nil {
		return KeyData{}, err
	}

	return KeyData{
		PublicKeyHex:  hex.EncodeToString(publicKeyBytes),
		PrivateKeyHex: hex.EncodeToString(privateKeyBytes),
	}, nil
}

func VerifyP256Signature(publicKey *ecdsa.PublicKey, data []byte, signature []byte) error {
	if err := ValidateP256PublicKey(publicKey); err != nil {
		return err
	}
	if len(signature) == 0 {
		return errors.New("signature is empty")
	}

	hash := sha256.Sum256(data)
	if !ecdsa.VerifyASN1(publicKey, hash[:], signature) {
		return errors.New("invalid signature")
	}
	return nil
}

// ParseP256PublicKey parses a PKIX DER encoded P-256 public key.
func ParseP256PublicKey(keyBytes []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse P-256 public key: %w", err)
	}
	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an ECDSA key")
	}
	if err := ValidateP256PublicKey(ecdsaKey); err != nil {
		return nil, err
	}
	return ecdsaKey, nil
}

func ValidateP256PublicKey(publicKey *ecdsa.PublicKey) error {
	if publicKey == nil {
		return errors.New("public key is nil")
	}
	if publicKey.Curve == nil {
		return errors.New("public key curve is nil")
	}
	if publicKey.Curve != elliptic.P256() {
		return fmt.Errorf("public key is not P-256 curve (got: %s)", publicKey.Curve.Params().Name)
	}
	return nil
}

// MarshalP256PublicKey marshals a P256 public key to PKIX DER.
func MarshalP256PublicKey(publicKey *ecdsa.PublicKey) ([]byte, error) {
	if err := ValidateP256PublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("invalid P256 public key: %w", err)
	}
	return x509.MarshalPKIXPublicKey(publicKey)
}
