package state_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/tenants"
)

// switchableStorage is a MemoryStorage whose saves can be made to fail
type switchableStorage struct {
	*state.MemoryStorage
	failSaves atomic.Bool
}

func (s *switchableStorage) Save(ctx context.Context, key string, value []byte) error {
	if s.failSaves.Load() {
		return errors.New("storage down")
	}
	return s.MemoryStorage.Save(ctx, key, value)
}

type failingStorage struct{}

func (failingStorage) Load(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage down")
}
func (failingStorage) Save(context.Context, string, []byte) error { return errors.New("storage down") }
func (failingStorage) Delete(context.Context, string) error       { return errors.New("storage down") }

func TestContainer(t *testing.T) {
	ctx := context.Background()

	t.Run("value is unknown before hydration", func(t *testing.T) {
		c := state.NewContainer(state.NewMemoryStorage(), state.SidebarKey, func() state.SidebarState {
			return state.SidebarState{}
		})
		_, hydrated := c.Get()
		assert.False(t, hydrated)

		err := c.Update(ctx, func(v *state.SidebarState) { v.Collapsed = true })
		assert.ErrorIs(t, err, consoleerrors.ErrNotHydrated)
	})

	t.Run("missing value hydrates to defaults", func(t *testing.T) {
		c := state.NewContainer(state.NewMemoryStorage(), state.CurrencyKey, func() state.CurrencyState {
			return state.CurrencyState{Currency: "UZS"}
		})
		require.NoError(t, c.Hydrate(ctx))
		v, hydrated := c.Get()
		assert.True(t, hydrated)
		assert.Equal(t, "UZS", v.Currency)
	})

	t.Run("updates persist across containers", func(t *testing.T) {
		storage := state.NewMemoryStorage()
		first := state.NewContainer[state.ModalState](storage, state.ModalKey, nil)
		require.NoError(t, first.Hydrate(ctx))
		require.NoError(t, first.Update(ctx, func(v *state.ModalState) { v.Open = "new-order" }))

		second := state.NewContainer[state.ModalState](storage, state.ModalKey, nil)
		require.NoError(t, second.Hydrate(ctx))
		v, _ := second.Get()
		assert.Equal(t, "new-order", v.Open)
	})

	t.Run("corrupt value falls back to defaults", func(t *testing.T) {
		storage := state.NewMemoryStorage()
		require.NoError(t, storage.Save(ctx, state.ShopKey, []byte("{not json")))

		c := state.NewContainer[state.ShopState](storage, state.ShopKey, nil)
		require.NoError(t, c.Hydrate(ctx))
		v, hydrated := c.Get()
		assert.True(t, hydrated)
		assert.Nil(t, v.Selected)

		_, ok, err := storage.Load(ctx, state.ShopKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("storage failure leaves the container unhydrated", func(t *testing.T) {
		c := state.NewContainer[state.ShopState](failingStorage{}, state.ShopKey, nil)
		require.Error(t, c.Hydrate(ctx))
		assert.False(t, c.Hydrated())
	})

	t.Run("reset restores defaults", func(t *testing.T) {
		c := state.NewContainer(state.NewMemoryStorage(), state.CurrencyKey, func() state.CurrencyState {
			return state.CurrencyState{Currency: "UZS"}
		})
		require.NoError(t, c.Hydrate(ctx))
		require.NoError(t, c.Update(ctx, func(v *state.CurrencyState) { v.Currency = "USD" }))
		require.NoError(t, c.Reset(ctx))
		v, _ := c.Get()
		assert.Equal(t, "UZS", v.Currency)
	})
}

func TestScopedStorage(t *testing.T) {
	ctx := context.Background()
	storage := state.NewMemoryStorage()
	a := state.Scoped(storage, "a")
	b := state.Scoped(storage, "b")

	require.NoError(t, a.Save(ctx, state.ShopKey, []byte(`{}`)))
	_, ok, err := b.Load(ctx, state.ShopKey)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, ok, err := storage.Load(ctx, "a:"+state.ShopKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{}`, string(raw))
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	storage := state.NewRedisStorage(client, time.Hour)

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, storage.Save(ctx, "sid:shop-storage", []byte(`{"shops":[]}`)))
		raw, ok, err := storage.Load(ctx, "sid:shop-storage")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"shops":[]}`, string(raw))
		assert.True(t, mr.Exists("console:state:sid:shop-storage"))
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := storage.Load(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("values expire", func(t *testing.T) {
		require.NoError(t, storage.Save(ctx, "short", []byte(`{}`)))
		mr.FastForward(2 * time.Hour)
		_, ok, err := storage.Load(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("session survives a new process", func(t *testing.T) {
		first := state.NewSession(storage, "browser-1")
		require.NoError(t, first.Hydrate(ctx))
		require.NoError(t, first.SelectShop(ctx, tenants.Shop{ID: 3, Name: "Bazaar", Role: tenants.RoleSeller}))

		second := state.NewSession(storage, "browser-1")
		require.NoError(t, second.Hydrate(ctx))
		shop := second.SelectedShop()
		require.NotNil(t, shop)
		assert.Equal(t, int64(3), shop.ID)
		assert.Equal(t, "/seller", second.PathMarker())
	})
}

func TestSession(t *testing.T) {
	ctx := context.Background()

	newSession := func(t *testing.T) *state.Session {
		t.Helper()
		s := state.NewSession(state.NewMemoryStorage(), "sid")
		require.NoError(t, s.Hydrate(ctx))
		return s
	}

	t.Run("not hydrated until Hydrate runs", func(t *testing.T) {
		s := state.NewSession(state.NewMemoryStorage(), "sid")
		assert.False(t, s.Hydrated())
		assert.Nil(t, s.SelectedShop())
		require.NoError(t, s.Hydrate(ctx))
		assert.True(t, s.Hydrated())
	})

	t.Run("selecting a shop mirrors its role", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.SelectShop(ctx, tenants.Shop{ID: 7, Name: "Main", Role: tenants.RoleManager}))

		shop := s.SelectedShop()
		require.NotNil(t, shop)
		assert.Equal(t, tenants.RoleManager, shop.Role)
		role, _ := s.Role.Get()
		assert.Equal(t, state.SessionState{Role: tenants.RoleManager, Path: "/manager"}, role)
	})

	t.Run("selecting a shop with an unknown role fails", func(t *testing.T) {
		s := newSession(t)
		err := s.SelectShop(ctx, tenants.Shop{ID: 7, Role: "owner"})
		assert.ErrorIs(t, err, consoleerrors.ErrInvalidRole)
		assert.Nil(t, s.SelectedShop())
	})

	t.Run("role change updates shop and marker", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.SetShops(ctx, []tenants.Shop{{ID: 7, Role: tenants.RoleAdmin}, {ID: 8, Role: tenants.RoleSeller}}))
		require.NoError(t, s.SelectShop(ctx, tenants.Shop{ID: 7, Role: tenants.RoleAdmin}))
		require.NoError(t, s.SetRole(ctx, tenants.RoleManager))

		assert.Equal(t, tenants.RoleManager, s.SelectedShop().Role)
		assert.Equal(t, tenants.RoleManager, s.Shops()[0].Role)
		assert.Equal(t, tenants.RoleSeller, s.Shops()[1].Role)
		assert.Equal(t, "/manager", s.PathMarker())
	})

	t.Run("role change leaves earlier shop lists alone", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.SetShops(ctx, []tenants.Shop{{ID: 7, Role: tenants.RoleAdmin}}))
		require.NoError(t, s.SelectShop(ctx, tenants.Shop{ID: 7, Role: tenants.RoleAdmin}))
		before := s.Shops()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				role := tenants.RoleManager
				if i%2 == 0 {
					role = tenants.RoleSeller
				}
				assert.NoError(t, s.SetRole(ctx, role))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = before[0].Role
				_ = s.Shops()[0].Role
			}
		}()
		wg.Wait()

		assert.Equal(t, tenants.RoleAdmin, before[0].Role)
		assert.Equal(t, tenants.RoleManager, s.Shops()[0].Role)
	})

	t.Run("failed role save keeps the stored shops", func(t *testing.T) {
		storage := &switchableStorage{MemoryStorage: state.NewMemoryStorage()}
		s := state.NewSession(storage, "sid")
		require.NoError(t, s.Hydrate(ctx))
		require.NoError(t, s.SetShops(ctx, []tenants.Shop{{ID: 7, Role: tenants.RoleAdmin}}))
		require.NoError(t, s.SelectShop(ctx, tenants.Shop{ID: 7, Role: tenants.RoleAdmin}))

		storage.failSaves.Store(true)
		require.Error(t, s.SetRole(ctx, tenants.RoleSeller))
		assert.Equal(t, tenants.RoleAdmin, s.Shops()[0].Role)
		assert.Equal(t, tenants.RoleAdmin, s.SelectedShop().Role)
	})

	t.Run("role change without a shop", func(t *testing.T) {
		s := newSession(t)
		assert.ErrorIs(t, s.SetRole(ctx, tenants.RoleManager), consoleerrors.ErrNoShopSelected)
	})

	t.Run("clearing the shop clears the marker", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.SelectShop(ctx, tenants.Shop{ID: 7, Role: tenants.RoleAdmin}))
		require.NoError(t, s.ClearShop(ctx))
		assert.Nil(t, s.SelectedShop())
		assert.Empty(t, s.PathMarker())
	})

	t.Run("prefs", func(t *testing.T) {
		s := newSession(t)
		assert.Equal(t, state.Prefs{Currency: state.DefaultCurrency}, s.Prefs())

		require.NoError(t, s.SavePrefs(ctx, state.Prefs{Currency: "USD", Modal: "debt", SidebarCollapsed: true}))
		assert.Equal(t, state.Prefs{Currency: "USD", Modal: "debt", SidebarCollapsed: true}, s.Prefs())

		require.NoError(t, s.Clear(ctx))
		assert.Equal(t, state.Prefs{Currency: state.DefaultCurrency}, s.Prefs())
	})
}
