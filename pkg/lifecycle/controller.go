package lifecycle

import (
	"context"
	"sync"

	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/stable"
	"github.com/fystack/guardkv/pkg/types"
)

type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Registry is the part of the authorization registry the controller drives.
type Registry interface {
	Initialize(initiatingCaller types.Principal) error
	Snapshot() []types.Principal
	Restore(set []types.Principal) error
}

// Controller runs the three host-driven hooks: first start, pre-restart and
// post-restart. It is idle between them.
type Controller struct {
	mu        sync.Mutex
	state     State
	registry  Registry
	snapshots stable.SnapshotStore
}

func NewController(registry Registry, snapshots stable.SnapshotStore) *Controller {
	return &Controller{
		state:     StateUninitialized,
		registry:  registry,
		snapshots: snapshots,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init handles the first start of a lineage: caller becomes the first
// authorized principal and the blob store starts empty.
func (c *Controller) Init(caller types.Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return transitionError(c.state, "init")
	}
	if err := c.registry.Initialize(caller); err != nil {
		return err
	}

	c.state = StateRunning
	logger.Info("Lifecycle initialized", "initializer", caller)
	return nil
}

// PreUpgrade writes the authorized set to stable storage. The host must not
// tear the process down until it returns nil. On error the controller stays
// Running.
func (c *Controller) PreUpgrade(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return transitionError(c.state, "pre-upgrade")
	}

	principals := c.registry.Snapshot()
	if err := c.snapshots.Save(ctx, principals); err != nil {
		return &PersistenceError{Op: "pre-upgrade", Err: err}
	}

	c.state = StateSuspended
	logger.Info("Authorized set saved to stable storage", "principals", len(principals))
	return nil
}

// PostUpgrade restores the authorized set written by PreUpgrade. A fresh
// replacement process calls it from Uninitialized. A missing or invalid
// snapshot is fatal: the process must not run with an empty authorized set.
func (c *Controller) PostUpgrade(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning {
		return transitionError(c.state, "post-upgrade")
	}

	principals, err := c.snapshots.Load(ctx)
	if err != nil {
		return &PersistenceError{Op: "post-upgrade", Err: err}
	}
	if err := c.registry.Restore(principals); err != nil {
		return &PersistenceError{Op: "post-upgrade", Err: err}
	}

	c.state = StateRunning
	logger.Info("Authorized set restored from stable storage", "principals", len(principals))
	return nil
}
