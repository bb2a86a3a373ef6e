package client

import (
	"encoding/hex"
	"fmt"

	"github.com/fystack/guardkv/pkg/types"
)

// Signer signs mutating requests on behalf of one caller.
type Signer interface {
	// Sign signs the given data and returns the signature
	Sign(data []byte) ([]byte, error)
	// Algorithm returns the key algorithm used by this signer
	Algorithm() types.KeyType
	// PublicKey returns the public key in hex format
	PublicKey() (string, error)
}

// PrincipalOf returns the principal a node will see for requests signed by signer.
func PrincipalOf(signer Signer) (types.Principal, error) {
	pubHex, err := signer.PublicKey()
	if err != nil {
		return "", err
	}
	pub, err := hex.DecodeString(pubHex)
	if err != nil {
		return "", fmt.Errorf("invalid public key hex: %w", err)
	}
	return types.PrincipalFromPublicKey(signer.Algorithm(), pub), nil
}
