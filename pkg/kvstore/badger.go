package kvstore

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fystack/guardkv/pkg/logger"
	"golang.org/x/crypto/hkdf"
)

const badgerKeyInfo = "guardkv badger encryption key"

var (
	ErrEncryptionKeyNotProvided = errors.New("encryption key not provided")
)

// BadgerKVStore is an implementation of the KVStore interface using BadgerDB.
type BadgerKVStore struct {
	db *badger.DB
}

// DeriveEncryptionKey stretches a configured password into an AES-256 key for
// badger. The node name salts the derivation so nodes sharing a password get
// distinct keys.
func DeriveEncryptionKey(password []byte, nodeName string) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEncryptionKeyNotProvided
	}

	reader := hkdf.New(sha256.New, password, []byte(nodeName), []byte(badgerKeyInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive badger encryption key: %w", err)
	}
	return key, nil
}

// NewBadgerKVStore opens (or creates) an encrypted badger database at dbPath.
func NewBadgerKVStore(dbPath string, encryptionKey []byte) (*BadgerKVStore, error) {
	// must ensure encryption key is provided
	if len(encryptionKey) == 0 {
		return nil, ErrEncryptionKeyNotProvided
	}

	opts := badger.DefaultOptions(dbPath).
		WithCompression(options.ZSTD).
		WithEncryptionKey(encryptionKey).
		WithIndexCacheSize(100 << 20). // 100MB
		WithSyncWrites(true).
		WithLogger(newBadgerLogger(dbPath))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to BadgerDB successfully!", "path", dbPath)

	return &BadgerKVStore{db: db}, nil
}

// DB exposes the underlying database for the backup executor.
func (b *BadgerKVStore) DB() *badger.DB {
	return b.db
}

// Put stores a key-value pair in the BadgerDB.
func (b *BadgerKVStore) Put(key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get retrieves the value associated with a key from BadgerDB.
func (b *BadgerKVStore) Get(key string) ([]byte, error) {
	var result []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}

	return result, err
}

// Delete removes a key-value pair from BadgerDB.
func (b *BadgerKVStore) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the BadgerDB.
func (b *BadgerKVStore) Close() error {
	return b.db.Close()
}
