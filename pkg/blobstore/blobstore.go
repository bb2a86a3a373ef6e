package blobstore

import (
	"errors"
	"sync"
)

var ErrNotFound = errors.New("path not found")

// Store maps paths to blobs. It performs no authorization; callers of Put
// must already have been authorized.
type Store interface {
	// Put inserts or overwrites the blob at path.
	Put(path string, contents []byte)

	// Get returns a copy of the blob at path, or ErrNotFound.
	Get(path string) ([]byte, error)

	Len() int
}

// memoryStore keeps blobs for the lifetime of the process only.
type memoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() Store {
	return &memoryStore{
		blobs: make(map[string][]byte),
	}
}

func (s *memoryStore) Put(path string, contents []byte) {
	owned := append([]byte{}, contents...)

	s.mu.Lock()
	s.blobs[path] = owned
	s.mu.Unlock()
}

func (s *memoryStore) Get(path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, blob...), nil
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
