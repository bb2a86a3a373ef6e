package client

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// EncryptKeyFile encrypts key material with a passphrase (age scrypt recipient).
func EncryptKeyFile(plain []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to create scrypt recipient: %w", err)
	}

	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("failed to write encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize encryption: %w", err)
	}
	return out.Bytes(), nil
}

// readKeyFile reads a key file, handling both encrypted and unencrypted files
func readKeyFile(keyPath string, encrypted bool, password string) ([]byte, error) {
	if _, err := os.Stat(keyPath); err != nil {
		return nil, fmt.Errorf("key file not found: %s", keyPath)
	}

	if !encrypted {
		return os.ReadFile(keyPath)
	}
	if password == "" {
		return nil, fmt.Errorf("encrypted key found but no password provided")
	}

	encryptedBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encrypted key file: %w", err)
	}
	return decryptPrivateKey(encryptedBytes, password)
}

// decryptPrivateKey decrypts an encrypted private key using age
func decryptPrivateKey(encryptedData []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity from password: %w", err)
	}

	decrypter, err := age.Decrypt(bytes.NewReader(encryptedData), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create decrypter: %w", err)
	}

	decryptedData, err := io.ReadAll(decrypter)
	if err != nil {
		return nil, fmt.Errorf("failed to read decrypted data: %w", err)
	}
	return decryptedData, nil
}

func isEncryptedKeyPath(path string) bool {
	return strings.HasSuffix(path, ".age")
}
