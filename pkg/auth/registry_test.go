package auth

import (
	"testing"

	"github.com/fystack/guardkv/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice types.Principal = "ed25519:a11ce"
	bob   types.Principal = "ed25519:b0b"
	carol types.Principal = "p256:ca401"
)

func newInitialized(t *testing.T, caller types.Principal) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Initialize(caller))
	return r
}

func TestInitialize(t *testing.T) {
	r := newInitialized(t, alice)

	assert.NoError(t, r.Authorize(alice))
	assert.Equal(t, 1, r.Len())
}

func TestInitialize_OnlyOnce(t *testing.T) {
	r := newInitialized(t, alice)

	err := r.Initialize(bob)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.ErrorIs(t, r.Authorize(bob), ErrNotAuthorized)
}

func TestInitialize_RejectsEmptyPrincipal(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Initialize(""), types.ErrEmptyPrincipal)
	assert.Equal(t, 0, r.Len())
}

func TestAuthorize_UnknownPrincipal(t *testing.T) {
	r := newInitialized(t, alice)

	for _, p := range []types.Principal{bob, carol, "", "ed25519:A11CE"} {
		assert.ErrorIs(t, r.Authorize(p), ErrNotAuthorized, "principal %q", p)
	}
}

func TestGrant(t *testing.T) {
	r := newInitialized(t, alice)

	require.NoError(t, r.Grant(alice, bob))
	assert.NoError(t, r.Authorize(bob))

	// a granted principal can grant in turn
	require.NoError(t, r.Grant(bob, carol))
	assert.NoError(t, r.Authorize(carol))
	assert.Equal(t, 3, r.Len())
}

func TestGrant_ExistingMemberIsNoop(t *testing.T) {
	r := newInitialized(t, alice)
	require.NoError(t, r.Grant(alice, bob))
	before := r.Snapshot()

	assert.NoError(t, r.Grant(alice, bob))
	assert.NoError(t, r.Grant(bob, alice))
	assert.Equal(t, before, r.Snapshot())
}

func TestGrant_UnauthorizedCallerLeavesSetUnchanged(t *testing.T) {
	r := newInitialized(t, alice)
	before := r.Snapshot()

	err := r.Grant(bob, carol)

	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, before, r.Snapshot())
	assert.ErrorIs(t, r.Authorize(carol), ErrNotAuthorized)
}

func TestGrant_RejectsEmptyPrincipal(t *testing.T) {
	r := newInitialized(t, alice)

	assert.ErrorIs(t, r.Grant(alice, ""), types.ErrEmptyPrincipal)
	assert.Equal(t, 1, r.Len())
}

func TestSnapshot_SortedCopy(t *testing.T) {
	r := newInitialized(t, carol)
	require.NoError(t, r.Grant(carol, bob))
	require.NoError(t, r.Grant(carol, alice))

	snap := r.Snapshot()
	assert.Equal(t, []types.Principal{alice, bob, carol}, snap)

	snap[0] = "ed25519:mallory"
	assert.ErrorIs(t, r.Authorize("ed25519:mallory"), ErrNotAuthorized)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	r := newInitialized(t, alice)
	require.NoError(t, r.Grant(alice, bob))

	restored := NewRegistry()
	require.NoError(t, restored.Restore(r.Snapshot()))

	assert.NoError(t, restored.Authorize(alice))
	assert.NoError(t, restored.Authorize(bob))
	assert.ErrorIs(t, restored.Authorize(carol), ErrNotAuthorized)
	assert.Equal(t, r.Snapshot(), restored.Snapshot())
	assert.ErrorIs(t, restored.Initialize(carol), ErrAlreadyInitialized)
}

func TestRestore_ReplacesWholesale(t *testing.T) {
	r := newInitialized(t, alice)

	require.NoError(t, r.Restore([]types.Principal{bob, bob}))

	assert.ErrorIs(t, r.Authorize(alice), ErrNotAuthorized)
	assert.NoError(t, r.Authorize(bob))
	assert.Equal(t, 1, r.Len())
}

func TestRestore_RejectsEmptyPrincipal(t *testing.T) {
	r := newInitialized(t, alice)

	err := r.Restore([]types.Principal{bob, ""})
	assert.ErrorIs(t, err, types.ErrEmptyPrincipal)
	assert.NoError(t, r.Authorize(alice))
	assert.False(t, r.Contains(bob))
	assert.Equal(t, 1, r.Len())
}
