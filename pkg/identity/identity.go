package identity

import (
	"errors"
	"fmt"

	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/types"
)

var ErrInvalidSignature = errors.New("invalid signature from caller")

// Verifier proves that a mutating request was signed by the principal it
// names. The core trusts the principal it receives from here.
type Verifier interface {
	Verify(msg types.SignedMessage) error
}

type signatureVerifier struct{}

func NewVerifier() Verifier {
	return signatureVerifier{}
}

func (signatureVerifier) Verify(msg types.SignedMessage) error {
	caller := msg.CallerID()
	if err := caller.Validate(); err != nil {
		return err
	}

	keyType, publicKey, err := caller.KeyMaterial()
	if err != nil {
		return fmt.Errorf("cannot verify caller %s: %w", caller, err)
	}

	raw, err := msg.Raw()
	if err != nil {
		return fmt.Errorf("failed to get raw message data: %w", err)
	}

	switch keyType {
	case types.KeyTypeEd25519:
		err = encryption.VerifyEd25519Signature(publicKey, raw, msg.Sig())
	case types.KeyTypeP256:
		err = verifyP256(publicKey, raw, msg.Sig())
	default:
		err = fmt.Errorf("unsupported key type: %s", keyType)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func verifyP256(publicKey, raw, sig []byte) error {
	key, err := encryption.ParseP256PublicKey(publicKey)
	if err != nil {
		return err
	}
	return encryption.VerifyP256Signature(key, raw, sig)
}
