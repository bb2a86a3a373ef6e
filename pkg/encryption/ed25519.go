package encryption

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// KeyData is a freshly generated caller keypair, hex encoded for key files.
type KeyData struct {
	PublicKeyHex  string
	PrivateKeyHex string
}

// GenerateEd25519Keys returns a keypair whose private half is the 32-byte seed.
func GenerateEd25519Keys() (KeyData, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyData{}, err
	}
	return KeyData{
		PublicKeyHex:  hex.EncodeToString(pub),
		PrivateKeyHex: hex.EncodeToString(priv.Seed()),
	}, nil
}

// ValidateEd25519PublicKey checks the key length.
func ValidateEd25519PublicKey(keyBytes []byte) error {
	if len(keyBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid Ed25519 public key length: expected %d bytes, got %d",
			ed25519.PublicKeySize, len(keyBytes))
	}
	return nil
}

func VerifyEd25519Signature(publicKey, data, signature []byte) error {
	if err := ValidateEd25519PublicKey(publicKey); err != nil {
		return err
	}
	if len(signature) == 0 {
		return errors.New("signature is empty")
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), data, signature) {
		return errors.New("invalid signature")
	}
	return nil
}
