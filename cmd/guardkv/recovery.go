package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/security"
	"github.com/urfave/cli/v3"
)

// recoverDatabase rebuilds a node database from its encrypted backup files.
func recoverDatabase(ctx context.Context, c *cli.Command) error {
	backupDir := c.String("backup-dir")
	recoveryPath := c.String("recovery-path")
	nodeName := c.String("name")
	force := c.Bool("force")

	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return fmt.Errorf("backup directory does not exist: %s", backupDir)
	}
	if _, err := os.Stat(recoveryPath); err == nil && !force {
		return fmt.Errorf("recovery path already exists: %s (use --force to overwrite)", recoveryPath)
	}

	backupKeyHex, err := readSecret("backup encryption key (hex)")
	if err != nil {
		return err
	}
	backupKey, err := hex.DecodeString(strings.TrimSpace(string(backupKeyHex)))
	security.ZeroBytes(backupKeyHex)
	if err != nil {
		return fmt.Errorf("backup encryption key is not valid hex: %w", err)
	}
	defer security.ZeroBytes(backupKey)

	password, err := readSecret("Badger DB password")
	if err != nil {
		return err
	}
	dbKey, err := kvstore.DeriveEncryptionKey(password, nodeName)
	security.ZeroBytes(password)
	if err != nil {
		return err
	}
	defer security.ZeroBytes(dbKey)

	if force {
		if err := os.RemoveAll(recoveryPath); err != nil {
			return fmt.Errorf("failed to remove existing recovery path: %w", err)
		}
	}

	fmt.Printf("Starting database recovery...\n")
	fmt.Printf("Backup directory: %s\n", backupDir)
	fmt.Printf("Recovery path: %s\n", recoveryPath)

	executor, err := kvstore.NewBackupExecutor(nodeName, nil, backupKey, backupDir)
	if err != nil {
		return err
	}
	if err := executor.RestoreAll(recoveryPath, dbKey); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	fmt.Printf("✅ Database recovery completed successfully!\n")
	fmt.Printf("Restored database is available at: %s\n", recoveryPath)
	return nil
}
