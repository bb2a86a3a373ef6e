package eventconsumer

import (
	"fmt"
	"sync"
	"time"

	"github.com/fystack/guardkv/pkg/event"
	"github.com/fystack/guardkv/pkg/logger"
	"github.com/fystack/guardkv/pkg/types"
)

const (
	// DefaultRequestWindow bounds how far a signed request's timestamp may
	// drift from the node clock in either direction.
	DefaultRequestWindow = 2 * time.Minute
	defaultCleanupPeriod = time.Minute
)

// requestTracker remembers applied "caller-requestID" pairs until their
// timestamp falls out of the window, after which the window check alone
// rejects them.
type requestTracker struct {
	mu       sync.Mutex
	seen     map[string]time.Time // request key -> expiry
	window   time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func newRequestTracker(window time.Duration) *requestTracker {
	return &requestTracker{
		seen:     make(map[string]time.Time),
		window:   window,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

func requestKey(caller types.Principal, requestID string) string {
	return fmt.Sprintf("%s-%s", caller, requestID)
}

// admit records msg, or rejects it as expired or already seen.
func (t *requestTracker) admit(msg types.SignedMessage) error {
	issuedAt := msg.IssuedAt()
	now := t.now()
	if issuedAt.Before(now.Add(-t.window)) || issuedAt.After(now.Add(t.window)) {
		return fmt.Errorf("%w: issued at %s", event.ErrRequestExpired, issuedAt.UTC().Format(time.RFC3339))
	}

	key := requestKey(msg.CallerID(), msg.ID())
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[key]; ok {
		logger.Warn("Duplicate request detected", "caller", msg.CallerID().String(), "requestID", msg.ID())
		return fmt.Errorf("%w: %s", event.ErrDuplicateRequest, msg.ID())
	}
	t.seen[key] = issuedAt.Add(t.window)
	return nil
}

func (t *requestTracker) cleanupRoutine(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.cleanup()
		case <-t.stopChan:
			return
		}
	}
}

func (t *requestTracker) cleanup() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, expiry := range t.seen {
		if now.After(expiry) {
			delete(t.seen, key)
		}
	}
}

func (t *requestTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

func (t *requestTracker) stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}
