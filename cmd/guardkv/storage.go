package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fystack/guardkv/pkg/config"
	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/infra"
	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/security"
)

// stableStorage is the key-value store that outlives a node process.
type stableStorage struct {
	kv     kvstore.KVStore
	badger *kvstore.BadgerKVStore
	dbKey  *security.SecureBytes
}

func openStableStorage(cfg *config.AppConfig, nodeName string) (*stableStorage, error) {
	switch cfg.StableStorage.Backend {
	case constant.StableBackendConsul:
		consulClient, err := infra.GetConsulClient(cfg.Environment, cfg.Consul)
		if err != nil {
			return nil, err
		}
		logger.Info("Using consul stable storage", "address", cfg.Consul.Address)
		return &stableStorage{kv: kvstore.NewConsulKVStore(consulClient.KV(), "guardkv/"+nodeName)}, nil

	default:
		password := security.NewSecureBytes([]byte(cfg.BadgerPassword))
		defer password.Clear()

		key, err := kvstore.DeriveEncryptionKey(password.Bytes(), nodeName)
		if err != nil {
			return nil, err
		}
		dbPath := cfg.NodeDBPath(nodeName)
		badgerKV, err := kvstore.NewBadgerKVStore(dbPath, key)
		if err != nil {
			security.ZeroBytes(key)
			return nil, fmt.Errorf("failed to create badger kv store: %w", err)
		}
		logger.Info("Connected to badger kv store", "path", dbPath)
		return &stableStorage{kv: badgerKV, badger: badgerKV, dbKey: security.NewSecureBytes(key)}, nil
	}
}

// backup writes an incremental encrypted backup of the badger store.
func (s *stableStorage) backup(cfg *config.AppConfig, nodeName string) error {
	if s.badger == nil {
		logger.Warn("Backups only apply to the badger backend, skipping", "backend", cfg.StableStorage.Backend)
		return nil
	}

	backupKey, err := hex.DecodeString(cfg.Backup.EncryptionKey)
	if err != nil {
		return fmt.Errorf("backup.encryption_key is not valid hex: %w", err)
	}
	defer security.ZeroBytes(backupKey)

	executor, err := kvstore.NewBackupExecutor(nodeName, s.badger.DB(), backupKey, cfg.BackupDir(nodeName))
	if err != nil {
		return err
	}
	return executor.Execute()
}

func (s *stableStorage) Close() {
	if err := s.kv.Close(); err != nil {
		logger.Error("Failed to close stable storage", err)
	}
	if s.dbKey != nil {
		s.dbKey.Clear()
	}
}
