package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/fystack/guardkv/pkg/auth"
	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/stable"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	alice types.Principal = "ed25519:a11ce"
	bob   types.Principal = "ed25519:b0b"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Put(key string, value []byte) error {
	m.data[key] = append([]byte{}, value...)
	return nil
}

func (m *memKV) Get(key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, kvstore.ErrKeyNotFound
	}
	return v, nil
}

func (m *memKV) Delete(key string) error { delete(m.data, key); return nil }
func (m *memKV) Close() error            { return nil }

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Save(ctx context.Context, principals []types.Principal) error {
	return m.Called(ctx, principals).Error(0)
}

func (m *MockSnapshotStore) Load(ctx context.Context) ([]types.Principal, error) {
	args := m.Called(ctx)
	principals, _ := args.Get(0).([]types.Principal)
	return principals, args.Error(1)
}

func (m *MockSnapshotStore) Exists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func TestInit(t *testing.T) {
	registry := auth.NewRegistry()
	c := NewController(registry, stable.NewKVSnapshotStore(newMemKV(), ""))
	assert.Equal(t, StateUninitialized, c.State())

	require.NoError(t, c.Init(alice))

	assert.Equal(t, StateRunning, c.State())
	assert.NoError(t, registry.Authorize(alice))
}

func TestInit_OnlyFromUninitialized(t *testing.T) {
	c := NewController(auth.NewRegistry(), stable.NewKVSnapshotStore(newMemKV(), ""))
	require.NoError(t, c.Init(alice))

	err := c.Init(bob)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateRunning, c.State())
}

func TestInit_EmptyCallerStaysUninitialized(t *testing.T) {
	c := NewController(auth.NewRegistry(), stable.NewKVSnapshotStore(newMemKV(), ""))

	assert.ErrorIs(t, c.Init(""), types.ErrEmptyPrincipal)
	assert.Equal(t, StateUninitialized, c.State())
}

func TestRestartAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()

	// first process
	registry := auth.NewRegistry()
	c := NewController(registry, stable.NewKVSnapshotStore(kv, ""))
	require.NoError(t, c.Init(alice))
	require.NoError(t, c.PreUpgrade(ctx))
	assert.Equal(t, StateSuspended, c.State())

	// replacement process starts from scratch and only shares stable storage
	replacement := auth.NewRegistry()
	next := NewController(replacement, stable.NewKVSnapshotStore(kv, ""))
	require.NoError(t, next.PostUpgrade(ctx))

	assert.Equal(t, StateRunning, next.State())
	assert.NoError(t, replacement.Authorize(alice))
	assert.ErrorIs(t, replacement.Authorize(bob), auth.ErrNotAuthorized)
}

func TestSnapshotRestoreIsIdempotentForMembership(t *testing.T) {
	ctx := context.Background()
	registry := auth.NewRegistry()
	c := NewController(registry, stable.NewKVSnapshotStore(newMemKV(), ""))
	require.NoError(t, c.Init(alice))
	require.NoError(t, registry.Grant(alice, bob))
	before := registry.Snapshot()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.PreUpgrade(ctx))
		require.NoError(t, c.PostUpgrade(ctx))
	}

	assert.Equal(t, before, registry.Snapshot())
}

func TestPreUpgrade_RequiresRunning(t *testing.T) {
	ctx := context.Background()
	c := NewController(auth.NewRegistry(), stable.NewKVSnapshotStore(newMemKV(), ""))

	assert.ErrorIs(t, c.PreUpgrade(ctx), ErrInvalidTransition)

	require.NoError(t, c.Init(alice))
	require.NoError(t, c.PreUpgrade(ctx))
	assert.ErrorIs(t, c.PreUpgrade(ctx), ErrInvalidTransition)
}

func TestPreUpgrade_WriteFailureAbortsTransition(t *testing.T) {
	store := &MockSnapshotStore{}
	diskFull := errors.New("disk full")
	store.On("Save", mock.Anything, []types.Principal{alice}).Return(diskFull)

	c := NewController(auth.NewRegistry(), store)
	require.NoError(t, c.Init(alice))

	err := c.PreUpgrade(context.Background())

	var persistenceErr *PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.Equal(t, "pre-upgrade", persistenceErr.Op)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, StateRunning, c.State())
	store.AssertExpectations(t)
}

func TestPostUpgrade_MissingSnapshotIsFatal(t *testing.T) {
	registry := auth.NewRegistry()
	c := NewController(registry, stable.NewKVSnapshotStore(newMemKV(), ""))

	err := c.PostUpgrade(context.Background())

	var persistenceErr *PersistenceError
	require.ErrorAs(t, err, &persistenceErr)
	assert.ErrorIs(t, err, stable.ErrSnapshotNotFound)
	assert.Equal(t, StateUninitialized, c.State())
	assert.Equal(t, 0, registry.Len())
}

func TestPostUpgrade_CorruptSnapshotIsFatal(t *testing.T) {
	kv := newMemKV()
	kv.data[stable.DefaultSnapshotKey] = []byte(`{"version":1,"principals":["ed25519:a11ce"],"checksum":"bogus"}`)
	c := NewController(auth.NewRegistry(), stable.NewKVSnapshotStore(kv, ""))

	err := c.PostUpgrade(context.Background())

	assert.ErrorIs(t, err, stable.ErrSnapshotCorrupt)
	assert.Equal(t, StateUninitialized, c.State())
}

func TestPostUpgrade_InvalidPrincipalIsFatal(t *testing.T) {
	store := &MockSnapshotStore{}
	store.On("Load", mock.Anything).Return([]types.Principal{alice, ""}, nil)
	registry := auth.NewRegistry()
	c := NewController(registry, store)

	err := c.PostUpgrade(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, types.ErrEmptyPrincipal)
	assert.Equal(t, StateUninitialized, c.State())
	assert.Equal(t, 0, registry.Len())
}

func TestPostUpgrade_NotFromRunning(t *testing.T) {
	store := &MockSnapshotStore{}
	c := NewController(auth.NewRegistry(), store)
	require.NoError(t, c.Init(alice))

	assert.ErrorIs(t, c.PostUpgrade(context.Background()), ErrInvalidTransition)
	store.AssertNotCalled(t, "Load", mock.Anything)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.Equal(t, "unknown", State(42).String())
}
