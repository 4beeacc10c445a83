// Package session binds a conversation's accumulated backend context to one
// live handle per user. The cache is a single slot, not an LRU: only one
// conversation is active per user session in this design, and a changed
// session key means the old context is intentionally discarded, never
// migrated.
package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
)

// Handle is an opaque live conversation owned by the cache. The concrete
// type belongs to the inference backend.
type Handle interface {
	// Close releases the backend-side conversation state.
	Close() error
}

// Factory creates a new handle for a session key.
type Factory func(ctx context.Context) (Handle, error)

// Cache is the single-slot affinity cache for one user.
// State machine: Empty -> Bound(key, handle). Equal key returns the bound
// handle; a different key discards the old handle and rebinds via the
// factory. A failed factory call leaves the slot empty.
type Cache struct {
	mu     sync.Mutex
	key    string
	handle Handle

	logger  cortexa.Logger
	metrics cortexa.Metrics
}

// NewCache creates an empty cache. Nil logger/metrics default to no-ops.
func NewCache(logger cortexa.Logger, metrics cortexa.Metrics) *Cache {
	if logger == nil {
		logger = &cortexa.NoopLogger{}
	}
	if metrics == nil {
		metrics = &cortexa.NoopMetrics{}
	}
	return &Cache{logger: logger, metrics: metrics}
}

// GetOrCreate returns the bound handle when key matches the bound key, and
// otherwise discards the old handle and binds a new one from the factory.
// The lock is held across the factory call so two concurrent requests
// cannot race to create two different handles for the same slot.
func (c *Cache) GetOrCreate(ctx context.Context, key string, factory Factory) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil && c.key == key {
		c.metrics.RecordSessionEvent("hit")
		return c.handle, nil
	}

	c.discardLocked()

	handle, err := factory(ctx)
	if err != nil {
		c.metrics.RecordSessionEvent("create_failed")
		return nil, fmt.Errorf("%w: %v", cortexa.ErrSessionCreation, err)
	}

	c.key = key
	c.handle = handle
	c.metrics.RecordSessionEvent("created")
	return handle, nil
}

// Reset drops the bound handle regardless of key, returning the cache to
// Empty. Used when the user starts a new conversation.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		c.metrics.RecordSessionEvent("reset")
	}
	c.discardLocked()
}

// Bound reports the currently bound key, or "" when empty.
func (c *Cache) Bound() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return ""
	}
	return c.key
}

func (c *Cache) discardLocked() {
	if c.handle == nil {
		return
	}
	if err := c.handle.Close(); err != nil {
		// The replacement is already decided; a failed close only leaks
		// backend-side state worth logging.
		c.logger.Warn("discarding session handle failed",
			cortexa.Field{Key: "sessionKey", Value: c.key},
			cortexa.Field{Key: "error", Value: err.Error()},
		)
	} else {
		c.metrics.RecordSessionEvent("evicted")
	}
	c.key = ""
	c.handle = nil
}

// Registry holds one Cache per user. Concurrent GetOrCreate calls for the
// same user and key collapse into a single factory invocation.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Cache
	group singleflight.Group

	logger  cortexa.Logger
	metrics cortexa.Metrics
}

// NewRegistry creates an empty registry. Nil logger/metrics default to no-ops.
func NewRegistry(logger cortexa.Logger, metrics cortexa.Metrics) *Registry {
	if logger == nil {
		logger = &cortexa.NoopLogger{}
	}
	if metrics == nil {
		metrics = &cortexa.NoopMetrics{}
	}
	return &Registry{
		slots:   make(map[string]*Cache),
		logger:  logger,
		metrics: metrics,
	}
}

// GetOrCreate returns the user's bound handle for key, creating it when
// needed.
func (r *Registry) GetOrCreate(ctx context.Context, userID, key string, factory Factory) (Handle, error) {
	slot := r.slot(userID)

	v, err, _ := r.group.Do(userID+"\x00"+key, func() (interface{}, error) {
		return slot.GetOrCreate(ctx, key, factory)
	})
	if err != nil {
		return nil, err
	}
	return v.(Handle), nil
}

// Reset drops the user's bound handle, if any.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	slot, ok := r.slots[userID]
	r.mu.Unlock()
	if ok {
		slot.Reset()
	}
}

func (r *Registry) slot(userID string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[userID]
	if !ok {
		slot = NewCache(r.logger, r.metrics)
		r.slots[userID] = slot
	}
	return slot
}
