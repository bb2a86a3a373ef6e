package kvstore

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRandomKey(t *testing.T, size int) []byte {
	t.Helper()
	key := make([]byte, size)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func openTestBadger(t *testing.T, dir string, key []byte) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(dir).
		WithEncryptionKey(key).
		WithIndexCacheSize(10 << 20).
		WithSyncWrites(false).
		WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	return db
}

func readBackupMeta(t *testing.T, path string) BackupMeta {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), len(backupMagic)+4)
	require.Equal(t, backupMagic, string(data[:len(backupMagic)]))

	metaLen := binary.BigEndian.Uint32(data[len(backupMagic):])
	start := len(backupMagic) + 4
	var meta BackupMeta
	require.NoError(t, json.Unmarshal(data[start:start+int(metaLen)], &meta))
	return meta
}

func TestNewBackupExecutor_RejectsBadKeyLength(t *testing.T) {
	_, err := NewBackupExecutor("node0", nil, []byte("short"), t.TempDir())
	assert.Error(t, err)
}

func TestBackupExecutor_Execute(t *testing.T) {
	testDir := t.TempDir()
	backupDir := filepath.Join(testDir, "backups")
	db := openTestBadger(t, filepath.Join(testDir, "db"), generateRandomKey(t, 32))
	defer db.Close()

	executor, err := NewBackupExecutor("node0", db, generateRandomKey(t, 32), backupDir)
	require.NoError(t, err)

	t.Run("first backup creates a file", func(t *testing.T) {
		require.NoError(t, db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte("lifecycle/authorized_set"), []byte("v1"))
		}))

		require.NoError(t, executor.Execute())

		assert.Len(t, executor.SortedBackups(), 1)
		info, err := executor.LoadVersionInfo()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), info.Counter)
		assert.Greater(t, info.Since, uint64(0))
	})

	t.Run("incremental backup only after changes", func(t *testing.T) {
		require.NoError(t, db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte("lifecycle/authorized_set"), []byte("v2"))
		}))

		require.NoError(t, executor.Execute())
		assert.Len(t, executor.SortedBackups(), 2)
	})

	t.Run("no changes skips the backup", func(t *testing.T) {
		before, err := executor.LoadVersionInfo()
		require.NoError(t, err)

		require.NoError(t, executor.Execute())

		after, err := executor.LoadVersionInfo()
		require.NoError(t, err)
		assert.Equal(t, before.Counter, after.Counter)
		assert.Len(t, executor.SortedBackups(), 2)
	})

	t.Run("metadata is readable in clear", func(t *testing.T) {
		files := executor.SortedBackups()
		first := readBackupMeta(t, files[0])
		second := readBackupMeta(t, files[1])

		assert.Equal(t, backupAlgo, first.Algo)
		assert.NotEmpty(t, first.NonceB64)
		assert.Equal(t, uint64(0), first.Since)
		assert.Equal(t, first.NextSince, second.Since)
		assert.Len(t, first.EncryptionKeyID, 16)
	})
}

func TestBackupExecutor_RestoreAll(t *testing.T) {
	testDir := t.TempDir()
	backupDir := filepath.Join(testDir, "backups")
	backupKey := generateRandomKey(t, 32)
	db := openTestBadger(t, filepath.Join(testDir, "db"), generateRandomKey(t, 32))

	executor, err := NewBackupExecutor("node0", db, backupKey, backupDir)
	require.NoError(t, err)

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("a"), []byte("1"))
	}))
	require.NoError(t, executor.Execute())
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("a"), []byte("2"))
	}))
	require.NoError(t, executor.Execute())
	require.NoError(t, db.Close())

	restorePath := filepath.Join(testDir, "restored")
	restoreKey := generateRandomKey(t, 32)
	restorer, err := NewBackupExecutor("node0", nil, backupKey, backupDir)
	require.NoError(t, err)
	require.NoError(t, restorer.RestoreAll(restorePath, restoreKey))

	restored := openTestBadger(t, restorePath, restoreKey)
	defer restored.Close()
	err = restored.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("a"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("2"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestBackupExecutor_RestoreWithWrongKey(t *testing.T) {
	testDir := t.TempDir()
	backupDir := filepath.Join(testDir, "backups")
	db := openTestBadger(t, filepath.Join(testDir, "db"), generateRandomKey(t, 32))

	executor, err := NewBackupExecutor("node0", db, generateRandomKey(t, 32), backupDir)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("a"), []byte("1"))
	}))
	require.NoError(t, executor.Execute())
	require.NoError(t, db.Close())

	wrong, err := NewBackupExecutor("node0", nil, generateRandomKey(t, 32), backupDir)
	require.NoError(t, err)
	err = wrong.RestoreAll(filepath.Join(testDir, "restored"), generateRandomKey(t, 32))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different key")
}

func TestBackupExecutor_BadMagic(t *testing.T) {
	testDir := t.TempDir()
	backupDir := filepath.Join(testDir, "backups")
	key := generateRandomKey(t, 32)

	executor, err := NewBackupExecutor("node0", nil, key, backupDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "backup-node0-0000000001-x.enc"), []byte("NOT_A_BACKUP_FILE"), 0600))

	err = executor.RestoreAll(filepath.Join(testDir, "restored"), generateRandomKey(t, 32))
	assert.ErrorIs(t, err, ErrBadBackupMagic)
}
