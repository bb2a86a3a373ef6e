package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
)

// EncryptAESGCM seals plain under key. additionalData is authenticated but
// not encrypted; the same bytes must be passed to DecryptAESGCM.
func EncryptAESGCM(plain, key, additionalData []byte) (ciphertext, nonce []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plain, additionalData), nonce, nil
}

func DecryptAESGCM(ciphertext, key, nonce, additionalData []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, additionalData)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
