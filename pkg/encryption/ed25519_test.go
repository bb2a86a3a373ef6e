package encryption

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEd25519Keys(t *testing.T) {
	keyData, err := GenerateEd25519Keys()
	require.NoError(t, err)

	seed, err := hex.DecodeString(keyData.PrivateKeyHex)
	require.NoError(t, err)
	require.Len(t, seed, ed25519.SeedSize)

	pub, err := hex.DecodeString(keyData.PublicKeyHex)
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey), ed25519.PublicKey(pub))
}

func TestVerifyEd25519Signature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	msg := []byte("store x")
	sig := ed25519.Sign(priv, msg)

	assert.NoError(t, VerifyEd25519Signature(pub, msg, sig))
	assert.Error(t, VerifyEd25519Signature(pub, []byte("store y"), sig))
	assert.Error(t, VerifyEd25519Signature(pub, msg, nil))
	assert.Error(t, VerifyEd25519Signature(pub[:10], msg, sig))
}
