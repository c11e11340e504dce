package fetchcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/retail-console/apiclient"
)

// DefaultTTL is how long an entry is served without a network call
const DefaultTTL = 15 * time.Second

// maxJoinAttempts bounds how often a waiter re-joins after the caller that owned the
// shared fetch went away
const maxJoinAttempts = 3

// Empty is returned for absent URLs. Consumers never see a null payload.
var Empty = json.RawMessage(`{}`)

// Fetcher performs the network read for url
type Fetcher func(ctx context.Context, url string) (json.RawMessage, error)

// Cache is a short-lived read cache keyed by the exact request URL (query string included).
// Keys carry no tenant namespace; callers put the shop id in the URL.
type Cache struct {
	backend   Backend
	ttl       time.Duration
	group     *singleflight.Group
	inval     *invalidationLog
	namespace string
	now       func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(backend Backend, ttl time.Duration, opts ...Option) *Cache {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		backend: backend,
		ttl:     ttl,
		group:   &singleflight.Group{},
		inval:   newInvalidationLog(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns a view of the cache whose keys are prefixed with ns.
// The view shares the backend, the in-flight de-duplication and the invalidation log of its parent.
func (c *Cache) Namespace(ns string) *Cache {
	view := *c
	view.namespace = c.namespace + ns + "|"
	return &view
}

// TTL returns the freshness window
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) key(url string) string {
	return c.namespace + url
}

// Get returns the payload for url, from the cache when fresh, otherwise from fetch.
// Concurrent misses for the same url share one network call.
func (c *Cache) Get(ctx context.Context, url string, fetch Fetcher) (json.RawMessage, error) {
	if url == "" {
		cacheRequests.WithLabelValues("empty").Inc()
		return Empty, nil
	}

	key := c.key(url)
	if entry, ok := c.fresh(ctx, key); ok {
		cacheRequests.WithLabelValues("hit").Inc()
		return entry.Payload, nil
	}

	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(key, func() (any, error) {
			return c.fill(ctx, key, url, fetch)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Shared {
				cacheRequests.WithLabelValues("shared").Inc()
			} else {
				cacheRequests.WithLabelValues("miss").Inc()
			}
			if res.Err != nil {
				// The owner of the shared call was cancelled but this caller is still waiting
				if apiclient.IsAborted(res.Err) && ctx.Err() == nil && attempt < maxJoinAttempts {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(json.RawMessage), nil
		}
	}
}

// GetJSON decodes the payload for url into out. An empty url leaves out untouched.
func (c *Cache) GetJSON(ctx context.Context, url string, fetch Fetcher, out any) error {
	if url == "" {
		return nil
	}
	payload, err := c.Get(ctx, url, fetch)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &apiclient.FetchError{Status: 502, Message: "malformed response: " + err.Error()}
	}
	return nil
}

func (c *Cache) fresh(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("fetchcache: backend read failed")
		return Entry{}, false
	}
	if !ok || c.now().Sub(entry.FetchedAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) fill(ctx context.Context, key, url string, fetch Fetcher) (json.RawMessage, error) {
	// Another caller may have filled the entry while this one waited to enter the group
	if entry, ok := c.fresh(ctx, key); ok {
		return entry.Payload, nil
	}

	start := c.inval.begin(key)
	defer c.inval.end(key)
	payload, err := fetch(ctx, url)
	if err != nil {
		if apiclient.IsAborted(err) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			cacheFetchFailures.WithLabelValues("aborted").Inc()
			return nil, context.Canceled
		}
		cacheFetchFailures.WithLabelValues("error").Inc()
		return nil, apiclient.AsFetchError(err)
	}
	// An aborted call must not mutate the cache
	if ctx.Err() != nil {
		cacheFetchFailures.WithLabelValues("aborted").Inc()
		return nil, context.Canceled
	}
	if len(payload) == 0 {
		payload = Empty
	}

	// The read began before a mutation invalidated it; callers get it but it is not kept
	if c.inval.staleSince(start, key) {
		cacheDiscardedFills.Inc()
		return payload, nil
	}
	if err := c.backend.Set(ctx, key, Entry{URL: url, FetchedAt: c.now(), Payload: payload}); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("fetchcache: backend write failed")
	}
	return payload, nil
}

// Peek returns the stored entry for url without fetching
func (c *Cache) Peek(ctx context.Context, url string) (Entry, bool) {
	entry, ok, err := c.backend.Get(ctx, c.key(url))
	if err != nil {
		return Entry{}, false
	}
	return entry, ok
}

// Invalidate drops the entry for url so the next read goes to the network regardless of TTL
func (c *Cache) Invalidate(ctx context.Context, url string) error {
	key := c.key(url)
	c.inval.record(key, true)
	c.group.Forget(key)
	return c.backend.Delete(ctx, key)
}

// InvalidatePrefix drops every entry whose url starts with prefix. Reads already in flight
// under the prefix are not stored, and later reads do not join them.
func (c *Cache) InvalidatePrefix(ctx context.Context, prefix string) error {
	for _, key := range c.inval.record(c.key(prefix), false) {
		c.group.Forget(key)
	}
	return c.backend.DeletePrefix(ctx, c.key(prefix))
}

// Refetch invalidates url and reads it again from the network
func (c *Cache) Refetch(ctx context.Context, url string, fetch Fetcher) (json.RawMessage, error) {
	if err := c.Invalidate(ctx, url); err != nil {
		return nil, err
	}
	return c.Get(ctx, url, fetch)
}
