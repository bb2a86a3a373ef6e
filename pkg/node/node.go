package node

import (
	"sync"

	"github.com/fystack/guardkv/pkg/auth"
	"github.com/fystack/guardkv/pkg/blobstore"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/types"
)

// Node is the application state of one guardkv process. The process entry
// point owns it and hands it to whatever serves requests.
type Node struct {
	name     string
	registry *auth.Registry
	blobs    blobstore.Store

	// public operations run to completion one at a time
	mu sync.Mutex
}

func NewNode(name string, registry *auth.Registry, blobs blobstore.Store) *Node {
	return &Node{
		name:     name,
		registry: registry,
		blobs:    blobs,
	}
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Registry() *auth.Registry {
	return n.registry
}

// Store writes contents at path on behalf of caller.
func (n *Node) Store(caller types.Principal, path string, contents []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.registry.Authorize(caller); err != nil {
		logger.Warn("Rejected store", "caller", caller, "path", path)
		return err
	}
	n.blobs.Put(path, contents)
	logger.Debug("Stored blob", "caller", caller, "path", path, "size", len(contents))
	return nil
}

// Retrieve returns the blob at path. Reads need no authorization.
func (n *Node) Retrieve(path string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.blobs.Get(path)
}

// AddUser grants principal mutation rights on behalf of caller.
func (n *Node) AddUser(caller, principal types.Principal) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.registry.Grant(caller, principal); err != nil {
		logger.Warn("Rejected add_user", "caller", caller, "principal", principal)
		return err
	}
	logger.Info("Principal granted", "caller", caller, "principal", principal)
	return nil
}
