package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fystack/guardkv/pkg/types"
	"github.com/samber/lo"
)

var (
	ErrNotAuthorized      = errors.New("caller is not authorized")
	ErrAlreadyInitialized = errors.New("authorization registry already initialized")
)

// Registry owns the set of principals allowed to mutate state.
// Membership only ever grows; there is no revoke.
type Registry struct {
	mu          sync.RWMutex
	users       map[types.Principal]struct{}
	initialized bool
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[types.Principal]struct{}),
	}
}

// Initialize admits the principal that created the process. It runs once per
// snapshot lineage; a restarted process uses Restore instead.
func (r *Registry) Initialize(initiatingCaller types.Principal) error {
	if err := initiatingCaller.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return ErrAlreadyInitialized
	}
	r.users[initiatingCaller] = struct{}{}
	r.initialized = true
	return nil
}

func (r *Registry) Authorize(caller types.Principal) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.authorizeLocked(caller)
}

func (r *Registry) authorizeLocked(caller types.Principal) error {
	if _, ok := r.users[caller]; !ok {
		return ErrNotAuthorized
	}
	return nil
}

// Grant admits newPrincipal on behalf of caller. Granting an existing member is a no-op.
func (r *Registry) Grant(caller, newPrincipal types.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorizeLocked(caller); err != nil {
		return err
	}
	if err := newPrincipal.Validate(); err != nil {
		return err
	}
	r.users[newPrincipal] = struct{}{}
	return nil
}

func (r *Registry) Contains(p types.Principal) bool {
	return r.Authorize(p) == nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Snapshot returns a sorted copy of the membership.
func (r *Registry) Snapshot() []types.Principal {
	r.mu.RLock()
	principals := lo.Keys(r.users)
	r.mu.RUnlock()

	types.SortPrincipals(principals)
	return principals
}

// Restore replaces the membership wholesale with set. An invalid entry leaves
// the registry untouched.
func (r *Registry) Restore(set []types.Principal) error {
	users := make(map[types.Principal]struct{}, len(set))
	for _, p := range lo.Uniq(set) {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		users[p] = struct{}{}
	}

	r.mu.Lock()
	r.users = users
	r.initialized = true
	r.mu.Unlock()
	return nil
}
