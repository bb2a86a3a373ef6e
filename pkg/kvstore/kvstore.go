package kvstore

import "errors"

// ErrKeyNotFound is returned by Get when the key has never been written.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// KVStore is the durable storage the lifecycle snapshot is written to.
type KVStore interface {
	// Put stores a key-value pair, replacing any previous value.
	Put(key string, value []byte) error

	// Get retrieves the value associated with a key, or ErrKeyNotFound.
	Get(key string) ([]byte, error)

	// Delete removes a key-value pair from the store.
	Delete(key string) error

	// Close closes the key-value store.
	Close() error
}
