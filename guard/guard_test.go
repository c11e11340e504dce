package guard_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/guard"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/tenants"
	tenantrepofakes "github.com/jrsteele09/retail-console/tenants/repofakes"
	"github.com/jrsteele09/retail-console/token"
)

var routes = guard.Routes{Login: "/login", SelectShop: "/select-shop"}

type fakeVerifier struct {
	ok    bool
	calls atomic.Int32
}

func (f *fakeVerifier) CheckToken(context.Context, token.Store) bool {
	f.calls.Add(1)
	return f.ok
}

type fixture struct {
	guard    *guard.Guard
	verifier *fakeVerifier
	session  *state.Session
	repo     *tenantrepofakes.FakeShopRepo
}

func newFixture(t *testing.T, online bool, opts ...guard.Option) *fixture {
	t.Helper()
	f := &fixture{
		verifier: &fakeVerifier{ok: true},
		session:  state.NewSession(state.NewMemoryStorage(), "sid"),
		repo:     tenantrepofakes.NewFakeShopRepo(),
	}
	require.NoError(t, f.session.Hydrate(context.Background()))
	f.guard = guard.New(f.verifier, connectivity.Static(online), []string{"en", "ru", "uz"}, routes, opts...)
	return f
}

func (f *fixture) selectShop(t *testing.T, shop tenants.Shop) {
	t.Helper()
	f.repo.Upsert(shop)
	require.NoError(t, f.session.SelectShop(context.Background(), shop))
}

func (f *fixture) nav(path string) guard.Navigation {
	return guard.Navigation{
		Path:    path,
		Tokens:  token.NewMemoryStore("access", "refresh"),
		Session: f.session,
		Access:  f.repo,
	}
}

func TestRoleRewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("admin url with a manager shop is rewritten once", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Name: "Main", Role: tenants.RoleManager})

		d := f.guard.Mount().Evaluate(ctx, f.nav("/en/admin/orders"))
		assert.Equal(t, guard.RoleMismatch, d.State)
		assert.Equal(t, "/en/manager/orders", d.Location)
		assert.True(t, d.Replace)
		assert.False(t, d.Render())

		// The corrected url starts a new mount and must not redirect again
		d = f.guard.Mount().Evaluate(ctx, f.nav(d.Location))
		assert.Equal(t, guard.RoleAligned, d.State)
		assert.False(t, d.Redirect())
		assert.True(t, d.Render())
		f.guard.Wait()
	})

	t.Run("resolve re-enters on the rewritten path", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})

		m := f.guard.Mount()
		d := m.Resolve(ctx, f.nav("/en/admin/orders"))
		assert.Equal(t, guard.RoleAligned, d.State)
		assert.Equal(t, "/en/manager/orders", d.Location)
		assert.Equal(t, "/en/manager/orders", d.Path)
		assert.True(t, d.Replace)
		assert.Equal(t, guard.RoleAligned, m.State())
		assert.Equal(t, int32(1), f.verifier.calls.Load())
		f.guard.Wait()
	})

	t.Run("aligned url resolves without a location", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleSeller})

		d := f.guard.Mount().Resolve(ctx, f.nav("/seller/products"))
		assert.Equal(t, guard.RoleAligned, d.State)
		assert.Empty(t, d.Location)
		assert.False(t, d.Replace)
		f.guard.Wait()
	})

	t.Run("missing role segment is inserted", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleAdmin})

		d := f.guard.Mount().Evaluate(ctx, f.nav("/ru/orders"))
		assert.Equal(t, guard.RoleMismatch, d.State)
		assert.Equal(t, "/ru/admin/orders", d.Location)
		f.guard.Wait()
	})
}

func TestTenantAndHydration(t *testing.T) {
	ctx := context.Background()

	t.Run("no selected shop redirects to shop selection", func(t *testing.T) {
		f := newFixture(t, true)

		d := f.guard.Mount().Resolve(ctx, f.nav("/en/admin/orders"))
		assert.Equal(t, guard.NoTenant, d.State)
		assert.Equal(t, "/select-shop", d.Location)
		assert.False(t, d.Replace)
		assert.False(t, d.Render())
		assert.Zero(t, f.repo.CheckCalls())
	})

	t.Run("unhydrated state suppresses render without redirecting", func(t *testing.T) {
		f := newFixture(t, true)
		unhydrated := state.NewSession(state.NewMemoryStorage(), "other")
		nav := f.nav("/en/admin/orders")
		nav.Session = unhydrated

		d := f.guard.Mount().Evaluate(ctx, nav)
		assert.Equal(t, guard.Unchecked, d.State)
		assert.False(t, d.Render())
		assert.False(t, d.Redirect())
	})
}

func TestTokenCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid token wins over the role outcome", func(t *testing.T) {
		f := newFixture(t, true)
		f.verifier.ok = false
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})

		d := f.guard.Mount().Resolve(ctx, f.nav("/en/admin/orders"))
		assert.Equal(t, guard.TokenInvalid, d.State)
		assert.Equal(t, "/login", d.Location)
		assert.Zero(t, f.repo.CheckCalls())
	})

	t.Run("offline skips the token and access checks", func(t *testing.T) {
		f := newFixture(t, false)
		f.verifier.ok = false
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})

		d := f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.RoleAligned, d.State)
		assert.Zero(t, f.verifier.calls.Load())
		f.guard.Wait()
		assert.Zero(t, f.repo.CheckCalls())
	})
}

func TestAsyncAccessCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation clears the shop for the next navigation", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetAccess(7, tenants.AccessCheck{HasAccess: false})

		d := f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.RoleAligned, d.State)
		f.guard.Wait()

		assert.Nil(t, f.session.SelectedShop())
		d = f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.NoTenant, d.State)
	})

	t.Run("changed role is mirrored for the next navigation", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetAccess(7, tenants.AccessCheck{HasAccess: true, Role: tenants.RoleAdmin})

		f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		f.guard.Wait()

		assert.Equal(t, "/admin", f.session.PathMarker())
		d := f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.RoleMismatch, d.State)
		assert.Equal(t, "/en/admin/orders", d.Location)
		f.guard.Wait()
	})

	t.Run("transient failure keeps the shop", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetCheckError(&apiclient.FetchError{Status: http.StatusBadGateway})

		f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		f.guard.Wait()
		assert.NotNil(t, f.session.SelectedShop())
	})

	t.Run("forbidden clears the shop", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetCheckError(&apiclient.FetchError{Status: http.StatusForbidden})

		f.guard.Mount().Evaluate(ctx, f.nav("/en/manager/orders"))
		f.guard.Wait()
		assert.Nil(t, f.session.SelectedShop())
	})

	t.Run("cancelled request does not abort the check", func(t *testing.T) {
		f := newFixture(t, true)
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetAccess(7, tenants.AccessCheck{HasAccess: false})

		reqCtx, cancel := context.WithCancel(ctx)
		f.guard.Mount().Evaluate(reqCtx, f.nav("/en/manager/orders"))
		cancel()
		f.guard.Wait()
		assert.Nil(t, f.session.SelectedShop())
	})
}

func TestStrictAccessCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation redirects before render", func(t *testing.T) {
		f := newFixture(t, true, guard.WithStrictAccessCheck(true))
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetAccess(7, tenants.AccessCheck{HasAccess: false})

		d := f.guard.Mount().Resolve(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.NoTenant, d.State)
		assert.Equal(t, "/select-shop", d.Location)
		assert.Nil(t, f.session.SelectedShop())
	})

	t.Run("failure redirects but keeps the shop", func(t *testing.T) {
		f := newFixture(t, true, guard.WithStrictAccessCheck(true))
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetCheckError(&apiclient.FetchError{Status: http.StatusInternalServerError})

		d := f.guard.Mount().Resolve(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.NoTenant, d.State)
		assert.NotNil(t, f.session.SelectedShop())
	})

	t.Run("changed role rewrites before render", func(t *testing.T) {
		f := newFixture(t, true, guard.WithStrictAccessCheck(true))
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
		f.repo.SetAccess(7, tenants.AccessCheck{HasAccess: true, Role: tenants.RoleSeller})

		d := f.guard.Mount().Resolve(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, guard.RoleAligned, d.State)
		assert.Equal(t, "/en/seller/orders", d.Location)
		assert.True(t, d.Replace)
	})

	t.Run("access is checked once per path and shop", func(t *testing.T) {
		f := newFixture(t, true, guard.WithStrictAccessCheck(true))
		f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})

		m := f.guard.Mount()
		m.Evaluate(ctx, f.nav("/en/manager/orders"))
		m.Evaluate(ctx, f.nav("/en/manager/orders"))
		assert.Equal(t, 1, f.repo.CheckCalls())

		m.Evaluate(ctx, f.nav("/en/manager/products"))
		assert.Equal(t, 2, f.repo.CheckCalls())
	})
}

// hangingAccess never answers and reports the error its context ended with
type hangingAccess struct {
	ended chan error
}

func (h *hangingAccess) CheckAccess(ctx context.Context, _ int64) (tenants.AccessCheck, error) {
	<-ctx.Done()
	h.ended <- ctx.Err()
	return tenants.AccessCheck{}, ctx.Err()
}

func TestAccessTimeout(t *testing.T) {
	f := newFixture(t, true, guard.WithAccessTimeout(20*time.Millisecond))
	f.selectShop(t, tenants.Shop{ID: 7, Role: tenants.RoleManager})
	access := &hangingAccess{ended: make(chan error, 1)}

	nav := f.nav("/en/manager/orders")
	nav.Access = access
	d := f.guard.Mount().Evaluate(context.Background(), nav)
	assert.True(t, d.Render())

	select {
	case err := <-access.ended:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("access check was not bounded by the configured timeout")
	}
	f.guard.Wait()
	assert.NotNil(t, f.session.SelectedShop())
}

func TestParsePath(t *testing.T) {
	locales := guard.LocaleSet([]string{"en", "ru", "uz"})

	tests := []struct {
		in      string
		role    tenants.Role
		rewrite string
		locale  string
		section string
	}{
		{in: "/en/admin/orders", role: tenants.RoleAdmin, rewrite: "/en/manager/orders", locale: "en", section: "orders"},
		{in: "/admin/orders/12", role: tenants.RoleAdmin, rewrite: "/manager/orders/12", section: "orders"},
		{in: "/en/orders", rewrite: "/en/manager/orders", locale: "en", section: "orders"},
		{in: "/", rewrite: "/manager"},
		{in: "/de/orders", rewrite: "/manager/de/orders", section: "de"},
		{in: "/uz/seller/", role: tenants.RoleSeller, rewrite: "/uz/manager", locale: "uz"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := guard.ParsePath(tt.in, locales)
			assert.Equal(t, tt.role, p.Role)
			assert.Equal(t, tt.locale, p.Locale)
			assert.Equal(t, tt.section, p.Section())
			assert.Equal(t, tt.rewrite, p.WithRole(tenants.RoleManager).String())
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "role_aligned", guard.RoleAligned.String())
	assert.Equal(t, "no_tenant", guard.NoTenant.String())
	assert.Equal(t, "unknown", guard.State(42).String())
}
