package stable

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/guardkv/pkg/constant"
	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/types"
)

const (
	DefaultSnapshotKey = constant.DefaultSnapshotKey
	recordVersion      = 1
)

var (
	ErrSnapshotNotFound = errors.New("no snapshot in stable storage")
	ErrSnapshotCorrupt  = errors.New("snapshot in stable storage is corrupt")
	ErrEmptySnapshot    = errors.New("refusing to snapshot an empty authorized set")
)

// SnapshotStore persists the authorized set across a process replacement.
type SnapshotStore interface {
	Save(ctx context.Context, principals []types.Principal) error
	Load(ctx context.Context) ([]types.Principal, error)
	Exists(ctx context.Context) (bool, error)
}

// Record is the single durable record written before a restart.
type Record struct {
	Version    int               `json:"version"`
	Principals []types.Principal `json:"principals"`
	CreatedAt  string            `json:"created_at"`
	Checksum   string            `json:"checksum"`
}

func checksum(version int, principals []types.Principal) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\n", version)
	for _, p := range principals {
		fmt.Fprintf(h, "%d:%s\n", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewRecord builds a record with principals in their total order.
func NewRecord(principals []types.Principal, now time.Time) Record {
	sorted := append([]types.Principal{}, principals...)
	types.SortPrincipals(sorted)
	return Record{
		Version:    recordVersion,
		Principals: sorted,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		Checksum:   checksum(recordVersion, sorted),
	}
}

// Verify checks the version and checksum of a decoded record.
func (r Record) Verify() error {
	if r.Version != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, r.Version)
	}
	if r.Checksum != checksum(r.Version, r.Principals) {
		return fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}
	if len(r.Principals) == 0 {
		return fmt.Errorf("%w: empty authorized set", ErrSnapshotCorrupt)
	}
	for i, p := range r.Principals {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: principal %d: %v", ErrSnapshotCorrupt, i, err)
		}
	}
	return nil
}

// DecodeRecord parses and verifies raw record bytes.
func DecodeRecord(data []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if err := record.Verify(); err != nil {
		return Record{}, err
	}
	return record, nil
}

type kvSnapshotStore struct {
	kv  kvstore.KVStore
	key string
	now func() time.Time
}

// NewKVSnapshotStore keeps the snapshot record under key in kv.
func NewKVSnapshotStore(kv kvstore.KVStore, key string) SnapshotStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &kvSnapshotStore{kv: kv, key: key, now: time.Now}
}

func (s *kvSnapshotStore) Save(ctx context.Context, principals []types.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(principals) == 0 {
		return ErrEmptySnapshot
	}

	data, err := json.Marshal(NewRecord(principals, s.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot record: %w", err)
	}
	if err := s.kv.Put(s.key, data); err != nil {
		return fmt.Errorf("failed to write snapshot record: %w", err)
	}
	return nil
}

func (s *kvSnapshotStore) Load(ctx context.Context) ([]types.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.kv.Get(s.key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot record: %w", err)
	}

	record, err := DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	return record.Principals, nil
}

func (s *kvSnapshotStore) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.kv.Get(s.key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kvstore.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to probe snapshot record: %w", err)
	}
}
