package state

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
	"github.com/jrsteele09/retail-console/tenants"
)

// Session groups the persisted containers of one console session
type Session struct {
	ID string

	Shop     *Container[ShopState]
	Role     *Container[SessionState]
	Currency *Container[CurrencyState]
	Modal    *Container[ModalState]
	Sidebar  *Container[SidebarState]
}

func NewSession(storage Storage, sessionID string) *Session {
	scopedStorage := Scoped(storage, sessionID)
	return &Session{
		ID:       sessionID,
		Shop:     NewContainer(scopedStorage, ShopKey, func() ShopState { return ShopState{} }),
		Role:     NewContainer(scopedStorage, SessionKey, func() SessionState { return SessionState{} }),
		Currency: NewContainer(scopedStorage, CurrencyKey, func() CurrencyState { return CurrencyState{Currency: DefaultCurrency} }),
		Modal:    NewContainer(scopedStorage, ModalKey, func() ModalState { return ModalState{} }),
		Sidebar:  NewContainer(scopedStorage, SidebarKey, func() SidebarState { return SidebarState{} }),
	}
}

// Hydrate loads every container concurrently
func (s *Session) Hydrate(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Shop.Hydrate(ctx) })
	g.Go(func() error { return s.Role.Hydrate(ctx) })
	g.Go(func() error { return s.Currency.Hydrate(ctx) })
	g.Go(func() error { return s.Modal.Hydrate(ctx) })
	g.Go(func() error { return s.Sidebar.Hydrate(ctx) })
	return g.Wait()
}

// Hydrated reports whether the state the guard depends on is known
func (s *Session) Hydrated() bool {
	return s.Shop.Hydrated() && s.Role.Hydrated()
}

// SelectedShop returns the selected shop, or nil when none is selected or state is unknown
func (s *Session) SelectedShop() *tenants.Shop {
	v, ok := s.Shop.Get()
	if !ok || v.Selected == nil {
		return nil
	}
	shop := *v.Selected
	return &shop
}

// Shops returns a copy of the last known shop list
func (s *Session) Shops() []tenants.Shop {
	v, _ := s.Shop.Get()
	return slices.Clone(v.Shops)
}

// SetShops stores the shop list offered for selection
func (s *Session) SetShops(ctx context.Context, shops []tenants.Shop) error {
	return s.Shop.Update(ctx, func(v *ShopState) {
		v.Shops = slices.Clone(shops)
	})
}

// SelectShop makes shop the active tenant and mirrors its role into the session
func (s *Session) SelectShop(ctx context.Context, shop tenants.Shop) error {
	if !shop.Role.Valid() {
		return consoleerrors.Wrapf(consoleerrors.ErrInvalidRole, "select shop %d", shop.ID)
	}
	if err := s.Shop.Update(ctx, func(v *ShopState) {
		selected := shop
		v.Selected = &selected
	}); err != nil {
		return err
	}
	return s.mirrorRole(ctx, shop.Role)
}

// ClearShop drops the active tenant so the next navigation lands on shop selection
func (s *Session) ClearShop(ctx context.Context) error {
	if err := s.Shop.Update(ctx, func(v *ShopState) {
		v.Selected = nil
	}); err != nil {
		return err
	}
	return s.Role.Update(ctx, func(v *SessionState) {
		*v = SessionState{}
	})
}

// SetRole records a changed role for the selected shop
func (s *Session) SetRole(ctx context.Context, role tenants.Role) error {
	if !role.Valid() {
		return consoleerrors.Wrapf(consoleerrors.ErrInvalidRole, "set role %q", role)
	}
	var missing bool
	if err := s.Shop.Update(ctx, func(v *ShopState) {
		if v.Selected == nil {
			missing = true
			return
		}
		selected := *v.Selected
		selected.Role = role
		v.Selected = &selected
		// The stored slice is shared with readers of the previous value
		v.Shops = slices.Clone(v.Shops)
		for i := range v.Shops {
			if v.Shops[i].ID == selected.ID {
				v.Shops[i].Role = role
			}
		}
	}); err != nil {
		return err
	}
	if missing {
		return consoleerrors.ErrNoShopSelected
	}
	return s.mirrorRole(ctx, role)
}

func (s *Session) mirrorRole(ctx context.Context, role tenants.Role) error {
	return s.Role.Update(ctx, func(v *SessionState) {
		v.Role = role
		v.Path = PathMarker(role)
	})
}

// PathMarker returns the persisted landing path, empty when no role is active
func (s *Session) PathMarker() string {
	v, _ := s.Role.Get()
	return v.Path
}

// Prefs returns the UI preferences
func (s *Session) Prefs() Prefs {
	currency, _ := s.Currency.Get()
	modal, _ := s.Modal.Get()
	sidebar, _ := s.Sidebar.Get()
	return Prefs{Currency: currency.Currency, Modal: modal.Open, SidebarCollapsed: sidebar.Collapsed}
}

// SavePrefs persists the UI preferences
func (s *Session) SavePrefs(ctx context.Context, p Prefs) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Currency.Update(ctx, func(v *CurrencyState) {
			if p.Currency != "" {
				v.Currency = p.Currency
			}
		})
	})
	g.Go(func() error {
		return s.Modal.Update(ctx, func(v *ModalState) { v.Open = p.Modal })
	})
	g.Go(func() error {
		return s.Sidebar.Update(ctx, func(v *SidebarState) { v.Collapsed = p.SidebarCollapsed })
	})
	return g.Wait()
}

// Clear resets every container, as on logout
func (s *Session) Clear(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Shop.Reset(ctx) })
	g.Go(func() error { return s.Role.Reset(ctx) })
	g.Go(func() error { return s.Currency.Reset(ctx) })
	g.Go(func() error { return s.Modal.Reset(ctx) })
	g.Go(func() error { return s.Sidebar.Reset(ctx) })
	return g.Wait()
}
