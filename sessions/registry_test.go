package sessions_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/fetchcache"
	"github.com/jrsteele09/retail-console/sessions"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/tenants"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRegistry(t *testing.T, opts ...sessions.Option) (*sessions.Registry, *state.MemoryStorage) {
	t.Helper()
	storage := state.NewMemoryStorage()
	cache := fetchcache.New(fetchcache.NewMemoryBackend(), fetchcache.DefaultTTL)
	r := sessions.NewRegistry(storage, cache, fetchcache.QueryOptions{}, opts...)
	t.Cleanup(r.Close)
	return r, storage
}

func countingFetch(calls *atomic.Int32) fetchcache.Fetcher {
	return func(context.Context, string) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{}`), nil
	}
}

func TestRegistryGet(t *testing.T) {
	ctx := context.Background()
	r, storage := newRegistry(t)
	id := sessions.NewID()
	require.True(t, sessions.ValidID(id))
	assert.False(t, sessions.ValidID("not-an-id"))

	s := r.Get(ctx, id)
	assert.Same(t, s, r.Get(ctx, id))
	assert.True(t, s.State.Hydrated())
	assert.Equal(t, 1, r.Len())

	require.NoError(t, s.State.SelectShop(ctx, tenants.Shop{ID: 4, Role: tenants.RoleAdmin}))
	r.Delete(id)
	_, ok := r.Peek(id)
	assert.False(t, ok)

	// Persisted state outlives the live session
	again := state.NewSession(storage, id)
	require.NoError(t, again.Hydrate(ctx))
	assert.Equal(t, int64(4), again.SelectedShop().ID)
}

func TestRegistryCacheIsPerSession(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	var calls atomic.Int32

	a := r.Get(ctx, sessions.NewID())
	b := r.Get(ctx, sessions.NewID())
	_, err := a.Cache.Get(ctx, "shop/1/products/", countingFetch(&calls))
	require.NoError(t, err)
	_, err = b.Cache.Get(ctx, "shop/1/products/", countingFetch(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegistrySweep(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	var evicted []string
	var mu sync.Mutex
	r, _ := newRegistry(t, sessions.WithClock(c.Now), sessions.OnEvict(func(id string) {
		mu.Lock()
		evicted = append(evicted, id)
		mu.Unlock()
	}))

	idle := r.Get(ctx, "idle")
	_, err := idle.Cache.Get(ctx, "shop/1/", countingFetch(new(atomic.Int32)))
	require.NoError(t, err)

	c.Advance(20 * time.Minute)
	r.Get(ctx, "active")
	c.Advance(15 * time.Minute)

	assert.Equal(t, 1, r.Sweep(30*time.Minute))
	_, ok := r.Peek("idle")
	assert.False(t, ok)
	_, ok = r.Peek("active")
	assert.True(t, ok)
	_, ok = idle.Cache.Peek(ctx, "shop/1/")
	assert.False(t, ok)

	mu.Lock()
	assert.Equal(t, []string{"idle"}, evicted)
	mu.Unlock()
}

func TestSessionRevalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("focus revalidates the session's queries", func(t *testing.T) {
		r, _ := newRegistry(t)
		s := r.Get(ctx, sessions.NewID())
		var calls atomic.Int32
		_, err := s.Queries.Query(tenants.ShopsPath()).Data(ctx, countingFetch(&calls))
		require.NoError(t, err)

		s.Focus()
		require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
	})

	t.Run("reconnect revalidates every session", func(t *testing.T) {
		monitor := connectivity.NewMonitor("http://127.0.0.1:1/", time.Hour)
		r, _ := newRegistry(t, sessions.WithEventSource(monitor))
		var calls atomic.Int32
		for i := 0; i < 2; i++ {
			s := r.Get(ctx, sessions.NewID())
			_, err := s.Queries.Query(tenants.ShopsPath()).Data(ctx, countingFetch(&calls))
			require.NoError(t, err)
		}

		monitor.SetOnline(false)
		monitor.SetOnline(true)
		require.Eventually(t, func() bool { return calls.Load() == 4 }, time.Second, time.Millisecond)
	})
}
