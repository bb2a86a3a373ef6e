package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fystack/guardkv/pkg/client"
	"github.com/fystack/guardkv/pkg/common/pathutil"
	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

// CallerIdentity is the public metadata written next to a caller key.
type CallerIdentity struct {
	Name        string `json:"name"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	Principal   string `json:"principal"`
	CreatedAt   string `json:"created_at"`
	CreatedBy   string `json:"created_by"`
	MachineOS   string `json:"machine_os"`
	MachineName string `json:"machine_name"`
}

// passphraseSource is swapped in tests.
var passphraseSource = requestPassword

func generateIdentity(ctx context.Context, c *cli.Command) error {
	name := c.String("name")
	outputDir := c.String("output-dir")
	encrypt := c.Bool("encrypt")
	overwrite := c.Bool("overwrite")
	algorithm := types.KeyType(c.String("algorithm"))

	supported := []types.KeyType{types.KeyTypeEd25519, types.KeyTypeP256}
	if !lo.Contains(supported, algorithm) {
		return fmt.Errorf("invalid algorithm: %s. Must be %s or %s", algorithm, types.KeyTypeEd25519, types.KeyTypeP256)
	}

	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	identityPath, err := pathutil.SafePath(outputDir, name+".identity.json")
	if err != nil {
		return fmt.Errorf("invalid identity file path: %w", err)
	}
	keyPath, err := pathutil.SafePath(outputDir, name+".key")
	if err != nil {
		return fmt.Errorf("invalid key file path: %w", err)
	}
	if encrypt {
		keyPath += ".age"
	}

	for _, path := range []string{identityPath, keyPath} {
		if _, err := os.Stat(path); err == nil && !overwrite {
			return fmt.Errorf("file already exists: %s (use --overwrite to force)", path)
		}
	}

	var keyData encryption.KeyData
	switch algorithm {
	case types.KeyTypeEd25519:
		keyData, err = encryption.GenerateEd25519Keys()
	case types.KeyTypeP256:
		keyData, err = encryption.GenerateP256Keys()
	}
	if err != nil {
		return fmt.Errorf("failed to generate %s keys: %w", algorithm, err)
	}

	publicKey, err := hex.DecodeString(keyData.PublicKeyHex)
	if err != nil {
		return err
	}
	principal := types.PrincipalFromPublicKey(algorithm, publicKey)

	createdBy := "unknown"
	if currentUser, err := user.Current(); err == nil {
		createdBy = currentUser.Username
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	identity := CallerIdentity{
		Name:        name,
		Algorithm:   string(algorithm),
		PublicKey:   keyData.PublicKeyHex,
		Principal:   principal.String(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		CreatedBy:   createdBy,
		MachineOS:   runtime.GOOS,
		MachineName: hostname,
	}
	identityBytes, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity JSON: %w", err)
	}
	if err := os.WriteFile(identityPath, identityBytes, 0600); err != nil {
		return fmt.Errorf("failed to save identity file: %w", err)
	}

	keyBytes := []byte(keyData.PrivateKeyHex)
	if encrypt {
		passphrase, err := passphraseSource()
		if err != nil {
			return err
		}
		keyBytes, err = client.EncryptKeyFile(keyBytes, passphrase)
		if err != nil {
			return err
		}
	} else {
		fmt.Println("WARNING: You are generating the private key without encryption.")
		fmt.Println("This is less secure. Consider using --encrypt flag for better security.")
	}

	if err := os.WriteFile(keyPath, keyBytes, 0600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	fmt.Println("✅ Successfully generated:")
	fmt.Println("- Private Key:", filepath.Clean(keyPath))
	fmt.Println("- Identity JSON:", filepath.Clean(identityPath))
	fmt.Println("- Principal:", principal)
	return nil
}
