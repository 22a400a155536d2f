package ledger

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Fetch loads the value satisfying key from the store.
type Fetch[K any, V any] func(ctx context.Context, key K) (V, error)

// Cache holds the last committed value together with the key it satisfies.
//
// Every Materialize call takes a request sequence number when it is issued and
// reads its key in the same critical section, so the newest request always
// carries the newest key. At commit time only the most recently issued request
// may write; responses to superseded requests are dropped whatever order they
// arrive in. The fetch runs outside the lock.
type Cache[K any, V any] struct {
	name string

	mu        sync.Mutex
	issued    uint64
	committed uint64
	key       K
	value     V
	loaded    bool
	lastErr   error

	// onCommit runs under the cache lock right after a value was committed.
	onCommit func(key K, value V)
}

func NewCache[K any, V any](name string, onCommit func(key K, value V)) *Cache[K, V] {
	return &Cache[K, V]{name: name, onCommit: onCommit}
}

// Materialize issues exactly one fetch for the key returned by keyOf. keyOf runs
// under the cache lock and must not call back into the cache. It reports whether
// the response was committed. A superseded response returns (false, nil); a
// failed fetch of the newest request returns an ErrTransientFetch and keeps the
// previous value.
func (c *Cache[K, V]) Materialize(ctx context.Context, keyOf func() K, fetch Fetch[K, V]) (bool, error) {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	key := keyOf()
	c.mu.Unlock()

	value, err := fetch(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.issued {
		log.Debugf("%s: discarding response to request %d, request %d is newer", c.name, seq, c.issued)
		return false, nil
	}
	if err != nil {
		c.lastErr = err
		log.Warnf("%s: materialization %d failed, serving previous value: %v", c.name, seq, err)
		return false, fmt.Errorf("%w: %s: %w", ErrTransientFetch, c.name, err)
	}
	c.key = key
	c.value = value
	c.loaded = true
	c.committed = seq
	c.lastErr = nil
	if c.onCommit != nil {
		c.onCommit(key, value)
	}
	return true, nil
}

// Snapshot returns the committed value and its key. ok is false before the first commit.
func (c *Cache[K, V]) Snapshot() (value V, key K, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.key, c.loaded
}

// LastError is the failure of the newest request, or nil once a later request committed.
func (c *Cache[K, V]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Sequence returns the last issued and last committed request numbers.
func (c *Cache[K, V]) Sequence() (issued uint64, committed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued, c.committed
}
