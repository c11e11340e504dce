package state

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
)

// Container is one independently persisted value. Until Hydrate has run its value is
// unknown and Get reports hydrated=false.
type Container[T any] struct {
	key      string
	storage  Storage
	defaults func() T

	mu       sync.RWMutex
	value    T
	hydrated bool
}

// NewContainer creates a container stored under key. defaults builds the value used when
// nothing is stored or the stored value is unreadable.
func NewContainer[T any](storage Storage, key string, defaults func() T) *Container[T] {
	if defaults == nil {
		defaults = func() T {
			var zero T
			return zero
		}
	}
	return &Container[T]{key: key, storage: storage, defaults: defaults}
}

func (c *Container[T]) Key() string {
	return c.key
}

// Hydrate loads the stored value. A storage failure leaves the container unhydrated.
func (c *Container[T]) Hydrate(ctx context.Context) error {
	raw, ok, err := c.storage.Load(ctx, c.key)
	if err != nil {
		return consoleerrors.Wrapf(err, "hydrate %s", c.key)
	}

	value := c.defaults()
	if ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			log.Warn().Err(consoleerrors.ErrCorruptState).Str("key", c.key).Str("cause", err.Error()).Msg("discarding stored state")
			value = c.defaults()
			if err := c.storage.Delete(ctx, c.key); err != nil {
				log.Warn().Err(err).Str("key", c.key).Msg("could not delete corrupt state")
			}
		}
	}

	c.mu.Lock()
	c.value = value
	c.hydrated = true
	c.mu.Unlock()
	return nil
}

// Get returns the current value and whether it is known
func (c *Container[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.hydrated
}

func (c *Container[T]) Hydrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hydrated
}

// Update applies fn to the value and persists the result
func (c *Container[T]) Update(ctx context.Context, fn func(*T)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hydrated {
		return consoleerrors.Wrapf(consoleerrors.ErrNotHydrated, "update %s", c.key)
	}
	value := c.value
	fn(&value)
	raw, err := json.Marshal(value)
	if err != nil {
		return consoleerrors.Wrapf(err, "encode %s", c.key)
	}
	if err := c.storage.Save(ctx, c.key, raw); err != nil {
		return consoleerrors.Wrapf(err, "save %s", c.key)
	}
	c.value = value
	return nil
}

// Reset restores the defaults and removes the stored value
func (c *Container[T]) Reset(ctx context.Context) error {
	if err := c.storage.Delete(ctx, c.key); err != nil {
		return consoleerrors.Wrapf(err, "reset %s", c.key)
	}
	c.mu.Lock()
	c.value = c.defaults()
	c.hydrated = true
	c.mu.Unlock()
	return nil
}
