package kvstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/guardkv/pkg/common/pathutil"
	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/logger"
)

const (
	backupMagic       = "GUARDKV_BACKUP"
	backupAlgo        = "AES-256-GCM"
	versionFileName   = "latest.version"
	DefaultBackupDir  = "./backups"
	maxPendingWrites  = 10
	backupFilePattern = "backup-*.enc"
)

var ErrBadBackupMagic = errors.New("backup file has bad magic")

// BackupMeta is written in clear between the magic and the ciphertext.
type BackupMeta struct {
	Algo            string `json:"algo"`
	NonceB64        string `json:"nonce_b64"`
	CreatedAt       string `json:"created_at"`
	Since           uint64 `json:"since"`
	NextSince       uint64 `json:"next_since"`
	EncryptionKeyID string `json:"encryption_key_id"` // sha256(key) prefix
}

// BackupVersionInfo tracks the last incremental backup so the next one only
// carries newer versions.
type BackupVersionInfo struct {
	Counter   uint64 `json:"version"`
	Since     uint64 `json:"since"`
	UpdatedAt string `json:"updated_at"`
}

// BackupExecutor writes encrypted incremental backups of a node's stable
// storage and restores them into a fresh database.
type BackupExecutor struct {
	nodeName      string
	db            *badger.DB
	encryptionKey []byte
	backupDir     string
}

// NewBackupExecutor creates a backup executor. db may be nil when the
// executor is only used to restore.
func NewBackupExecutor(nodeName string, db *badger.DB, encryptionKey []byte, backupDir string) (*BackupExecutor, error) {
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}
	switch len(encryptionKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("backup encryption key must be 16, 24 or 32 bytes, got %d", len(encryptionKey))
	}
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &BackupExecutor{
		nodeName:      nodeName,
		db:            db,
		encryptionKey: encryptionKey,
		backupDir:     backupDir,
	}, nil
}

// Execute writes everything changed since the previous backup. It is a no-op
// when nothing changed.
func (b *BackupExecutor) Execute() error {
	if b.db == nil {
		return errors.New("backup executor has no database")
	}

	info, err := b.LoadVersionInfo()
	if err != nil {
		return fmt.Errorf("failed to load version info: %w", err)
	}

	since := info.Since
	counter := info.Counter + 1
	now := time.Now()

	var plain bytes.Buffer
	nextSince, err := b.db.Backup(&plain, since)
	if err != nil {
		return fmt.Errorf("badger backup failed: %w", err)
	}
	if plain.Len() == 0 || nextSince == since {
		logger.Info("No changes since last backup, skipping", "node", b.nodeName, "since", since)
		return nil
	}

	ct, nonce, err := encryption.EncryptAESGCM(plain.Bytes(), b.encryptionKey, []byte(backupMagic))
	if err != nil {
		return err
	}

	meta := BackupMeta{
		Algo:            backupAlgo,
		NonceB64:        base64.StdEncoding.EncodeToString(nonce),
		CreatedAt:       now.UTC().Format(time.RFC3339),
		Since:           since,
		NextSince:       nextSince,
		EncryptionKeyID: b.keyID(),
	}

	// zero-padded counter keeps lexical order equal to apply order
	filename := fmt.Sprintf("backup-%s-%010d-%s.enc", b.nodeName, counter, now.UTC().Format("2006-01-02_15-04-05"))
	outPath, err := pathutil.SafePath(b.backupDir, filename)
	if err != nil {
		return err
	}
	if err := writeBackupFile(outPath, meta, ct); err != nil {
		return err
	}

	logger.Info("Encrypted backup written", "file", filename, "version", counter)
	if err := b.SaveVersionInfo(counter, nextSince); err != nil {
		logger.Error("Failed to save backup version info", err)
	}
	return nil
}

func writeBackupFile(path string, meta BackupMeta, ciphertext []byte) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte(backupMagic)); err != nil {
		return err
	}
	if err := binary.Write(f, binary.BigEndian, uint32(len(metaJSON))); err != nil {
		return err
	}
	if _, err := f.Write(metaJSON); err != nil {
		return err
	}
	if _, err := f.Write(ciphertext); err != nil {
		return err
	}
	return f.Sync()
}

func (b *BackupExecutor) keyID() string {
	return fmt.Sprintf("%x", sha256.Sum256(b.encryptionKey))[:16]
}

func (b *BackupExecutor) SaveVersionInfo(counter, since uint64) error {
	info := BackupVersionInfo{
		Counter:   counter,
		Since:     since,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.backupDir, versionFileName), data, 0600)
}

// LoadVersionInfo returns the zero version when no backup has been taken yet.
func (b *BackupExecutor) LoadVersionInfo() (BackupVersionInfo, error) {
	var info BackupVersionInfo
	data, err := os.ReadFile(filepath.Join(b.backupDir, versionFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BackupVersionInfo{UpdatedAt: time.Now().UTC().Format(time.RFC3339)}, nil
		}
		return info, err
	}
	err = json.Unmarshal(data, &info)
	return info, err
}

func (b *BackupExecutor) SortedBackups() []string {
	files, _ := filepath.Glob(filepath.Join(b.backupDir, backupFilePattern))
	sort.Strings(files)
	return files
}

// RestoreAll replays every backup, oldest first, into a new database at
// restorePath encrypted with dbEncryptionKey.
func (b *BackupExecutor) RestoreAll(restorePath string, dbEncryptionKey []byte) error {
	if err := os.MkdirAll(restorePath, 0700); err != nil {
		return fmt.Errorf("failed to create restore directory: %w", err)
	}

	opts := badger.DefaultOptions(restorePath).
		WithEncryptionKey(dbEncryptionKey).
		WithIndexCacheSize(10 << 20).
		WithLogger(newBadgerLogger(restorePath))
	restoreDB, err := badger.Open(opts)
	if err != nil {
		return err
	}
	defer restoreDB.Close()

	for _, file := range b.SortedBackups() {
		logger.Info("Restoring backup", "file", file)
		if err := b.loadBackup(restoreDB, file); err != nil {
			return fmt.Errorf("failed to restore %s: %w", filepath.Base(file), err)
		}
	}

	logger.Info("Restore complete", "path", restorePath)
	return nil
}

func (b *BackupExecutor) loadBackup(db *badger.DB, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	magicBuf := make([]byte, len(backupMagic))
	if _, err := io.ReadFull(f, magicBuf); err != nil {
		return err
	}
	if string(magicBuf) != backupMagic {
		return ErrBadBackupMagic
	}

	var metaLen uint32
	if err := binary.Read(f, binary.BigEndian, &metaLen); err != nil {
		return err
	}
	metaBuf := make([]byte, metaLen)
	if _, err := io.ReadFull(f, metaBuf); err != nil {
		return err
	}
	var meta BackupMeta
	if err := json.Unmarshal(metaBuf, &meta); err != nil {
		return err
	}
	if meta.EncryptionKeyID != b.keyID() {
		return fmt.Errorf("backup was encrypted with a different key (%s)", meta.EncryptionKeyID)
	}

	ct, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	nonce, err := base64.StdEncoding.DecodeString(meta.NonceB64)
	if err != nil {
		return err
	}
	plain, err := encryption.DecryptAESGCM(ct, b.encryptionKey, nonce, []byte(backupMagic))
	if err != nil {
		return err
	}
	return db.Load(bytes.NewReader(plain), maxPendingWrites)
}
