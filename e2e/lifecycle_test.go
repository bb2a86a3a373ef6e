package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fystack/guardkv/pkg/auth"
	"github.com/fystack/guardkv/pkg/blobstore"
	"github.com/fystack/guardkv/pkg/client"
	"github.com/fystack/guardkv/pkg/encryption"
	"github.com/fystack/guardkv/pkg/event"
	"github.com/fystack/guardkv/pkg/eventconsumer"
	"github.com/fystack/guardkv/pkg/identity"
	"github.com/fystack/guardkv/pkg/kvstore"
	"github.com/fystack/guardkv/pkg/lifecycle"
	"github.com/fystack/guardkv/pkg/messaging"
	"github.com/fystack/guardkv/pkg/node"
	"github.com/fystack/guardkv/pkg/stable"
	"github.com/fystack/guardkv/pkg/types"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a NATS server; they are skipped when NATS_URL is unset.
func connectNATS(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

type nodeProcess struct {
	kv         *kvstore.BadgerKVStore
	controller *lifecycle.Controller
	registry   *auth.Registry
	consumer   eventconsumer.RequestConsumer
}

func startNode(t *testing.T, conn *nats.Conn, dbPath, prefix string, install types.Principal) *nodeProcess {
	t.Helper()
	key, err := kvstore.DeriveEncryptionKey([]byte("e2e-password"), "node0")
	require.NoError(t, err)
	kv, err := kvstore.NewBadgerKVStore(dbPath, key)
	require.NoError(t, err)

	registry := auth.NewRegistry()
	controller := lifecycle.NewController(registry, stable.NewKVSnapshotStore(kv, ""))
	if install != "" {
		require.NoError(t, controller.Init(install))
	} else {
		require.NoError(t, controller.PostUpgrade(context.Background()))
	}

	consumer := eventconsumer.NewRequestConsumer(
		node.NewNode("node0", registry, blobstore.NewMemoryStore()),
		controller,
		identity.NewVerifier(),
		messaging.NewNATSRequestServer(conn),
		messaging.NewNATSPubSub(conn),
		prefix,
	)
	require.NoError(t, consumer.Run())
	return &nodeProcess{kv: kv, controller: controller, registry: registry, consumer: consumer}
}

func (p *nodeProcess) stop(t *testing.T) {
	t.Helper()
	require.NoError(t, p.consumer.Close())
	require.NoError(t, p.controller.PreUpgrade(context.Background()))
	require.NoError(t, p.kv.Close())
}

func newCaller(t *testing.T, conn *nats.Conn, prefix string, keyType types.KeyType) client.GuardClient {
	t.Helper()
	var keyData encryption.KeyData
	var err error
	if keyType == types.KeyTypeP256 {
		keyData, err = encryption.GenerateP256Keys()
	} else {
		keyData, err = encryption.GenerateEd25519Keys()
	}
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "caller.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(keyData.PrivateKeyHex), 0600))
	signer, err := client.NewLocalSigner(keyType, client.LocalSignerOptions{KeyPath: keyPath})
	require.NoError(t, err)

	c, err := client.NewGuardClient(client.Options{NatsConn: conn, Signer: signer, SubjectPrefix: prefix})
	require.NoError(t, err)
	return c
}

func TestE2E_GrantSurvivesRestartBlobsDoNot(t *testing.T) {
	conn := connectNATS(t)
	ctx := context.Background()
	prefix := "guardkv-e2e-" + uuid.NewString()[:8]
	dbPath := filepath.Join(t.TempDir(), "node0")

	a := newCaller(t, conn, prefix, types.KeyTypeEd25519)
	b := newCaller(t, conn, prefix, types.KeyTypeP256)

	mutations := make(chan string, 4)
	sub, err := a.OnMutation(func(topic string, evt event.MutationEvent) {
		mutations <- topic
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	p := startNode(t, conn, dbPath, prefix, a.Principal())

	assert.ErrorIs(t, b.Store(ctx, "/x", []byte("v")), auth.ErrNotAuthorized)
	require.NoError(t, a.AddUser(ctx, b.Principal()))
	require.NoError(t, b.Store(ctx, "/x", []byte("v")))

	contents, err := a.Retrieve(ctx, "/x")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), contents)

	for _, want := range []string{prefix + ".event.user_added", prefix + ".event.stored"} {
		select {
		case got := <-mutations:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("no mutation event for %s", want)
		}
	}

	p.stop(t)
	p = startNode(t, conn, dbPath, prefix, "")
	defer p.stop(t)

	assert.True(t, p.registry.Contains(b.Principal()))
	_, err = a.Retrieve(ctx, "/x")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	require.NoError(t, b.Store(ctx, "/x", []byte("w")))
}
