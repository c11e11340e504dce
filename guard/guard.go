package guard

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/tenants"
	"github.com/jrsteele09/retail-console/token"
)

// maxRewrites bounds re-entry after a role rewrite. A rewrite to the session role aligns on
// the first re-entry unless the role changed in between.
const maxRewrites = 2

const defaultAccessTimeout = 10 * time.Second

// Verifier checks and refreshes the token pair of a navigation
type Verifier interface {
	CheckToken(ctx context.Context, store token.Store) bool
}

// AccessChecker asks the API whether the user still has access to a shop
type AccessChecker interface {
	CheckAccess(ctx context.Context, shopID int64) (tenants.AccessCheck, error)
}

// Session is the persisted tenant state the guard reads and corrects
type Session interface {
	Hydrated() bool
	SelectedShop() *tenants.Shop
	ClearShop(ctx context.Context) error
	SetRole(ctx context.Context, role tenants.Role) error
}

// Routes are the redirect targets
type Routes struct {
	Login      string
	SelectShop string
}

// Navigation is one page request to evaluate
type Navigation struct {
	Path    string
	Tokens  token.Store
	Session Session
	Access  AccessChecker
}

type Guard struct {
	verifier      Verifier
	status        connectivity.Status
	locales       map[string]struct{}
	routes        Routes
	strict        bool
	accessTimeout time.Duration

	// pending tracks asynchronous access checks so tests and shutdown can wait for them
	pending sync.WaitGroup
}

type Option func(*Guard)

// WithStrictAccessCheck makes the remote access check complete before render
func WithStrictAccessCheck(strict bool) Option {
	return func(g *Guard) {
		g.strict = strict
	}
}

func WithAccessTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.accessTimeout = d
		}
	}
}

func New(verifier Verifier, status connectivity.Status, locales []string, routes Routes, opts ...Option) *Guard {
	g := &Guard{
		verifier:      verifier,
		status:        status,
		locales:       LocaleSet(locales),
		routes:        routes,
		accessTimeout: defaultAccessTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParsePath splits p using the configured locales
func (g *Guard) ParsePath(p string) Path {
	return ParsePath(p, g.locales)
}

// Wait blocks until asynchronous access checks have finished
func (g *Guard) Wait() {
	g.pending.Wait()
}

// Mount evaluates the navigations of one page load
type Mount struct {
	guard *Guard

	mu    sync.Mutex
	state State
	latch string
	last  Decision
}

func (g *Guard) Mount() *Mount {
	return &Mount{guard: g, state: Unchecked}
}

func (m *Mount) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Resolve evaluates nav and re-enters the role check after each rewrite. The returned
// decision describes the final path; Location carries the rewritten path when one happened.
func (m *Mount) Resolve(ctx context.Context, nav Navigation) Decision {
	d := m.Evaluate(ctx, nav)
	rewritten := ""
	for i := 0; d.State == RoleMismatch && i < maxRewrites; i++ {
		rewritten = d.Location
		nav.Path = d.Location
		d = m.reenter(ctx, nav)
	}
	if rewritten != "" && d.State == RoleAligned {
		d.Location = rewritten
		d.Replace = true
	}
	return d
}

// Evaluate runs the token check and the role check for one navigation.
// The token check is skipped offline. A failed token check wins over any role outcome.
func (m *Mount) Evaluate(ctx context.Context, nav Navigation) Decision {
	online := m.guard.status.Online()
	tokenOK := true
	var role Decision

	g, gctx := errgroup.WithContext(ctx)
	if online {
		g.Go(func() error {
			tokenOK = m.guard.verifier.CheckToken(gctx, nav.Tokens)
			return nil
		})
	}
	g.Go(func() error {
		role = m.checkRole(nav)
		return nil
	})
	_ = g.Wait()

	if !tokenOK {
		return m.settle(Decision{State: TokenInvalid, Path: nav.Path, Location: m.guard.routes.Login})
	}
	if role.State == RoleAligned && online {
		role = m.checkAccess(ctx, nav, role)
	}
	return m.settle(role)
}

// reenter repeats the role check only; the token was settled by the first evaluation
func (m *Mount) reenter(ctx context.Context, nav Navigation) Decision {
	d := m.checkRole(nav)
	if d.State == RoleAligned && m.guard.status.Online() {
		d = m.checkAccess(ctx, nav, d)
	}
	return m.settle(d)
}

func (m *Mount) settle(d Decision) Decision {
	m.mu.Lock()
	m.state = d.State
	m.mu.Unlock()
	decisions.WithLabelValues(d.State.String()).Inc()
	if d.State != RoleAligned {
		log.Debug().Str("path", d.Path).Str("state", d.State.String()).Str("location", d.Location).Msg("guard redirect")
	}
	return d
}

func (m *Mount) checkRole(nav Navigation) Decision {
	if !nav.Session.Hydrated() {
		return Decision{State: Unchecked, Path: nav.Path}
	}
	shop := nav.Session.SelectedShop()
	if shop == nil {
		return Decision{State: NoTenant, Path: nav.Path, Location: m.guard.routes.SelectShop}
	}

	p := m.guard.ParsePath(nav.Path)
	if p.Role != shop.Role {
		return Decision{State: RoleMismatch, Path: nav.Path, Location: p.WithRole(shop.Role).String(), Replace: true}
	}
	return Decision{State: RoleAligned, Path: nav.Path}
}

// checkAccess confirms access to the selected shop once per (path, shop) for this mount
func (m *Mount) checkAccess(ctx context.Context, nav Navigation, aligned Decision) Decision {
	shop := nav.Session.SelectedShop()
	if shop == nil || nav.Access == nil {
		return aligned
	}
	key := fmt.Sprintf("%s|%d", nav.Path, shop.ID)

	m.mu.Lock()
	if m.latch == key {
		last := m.last
		m.mu.Unlock()
		return last
	}
	m.latch = key
	m.mu.Unlock()

	var d Decision
	if m.guard.strict {
		d = m.guard.confirmAccess(ctx, nav, *shop, aligned)
	} else {
		d = aligned
		m.guard.pending.Add(1)
		go func() {
			defer m.guard.pending.Done()
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.guard.accessTimeout)
			defer cancel()
			m.guard.confirmAccess(bg, nav, *shop, aligned)
		}()
	}

	m.mu.Lock()
	m.last = d
	m.mu.Unlock()
	return d
}

// confirmAccess applies the remote access check to the session. Revocation clears the
// selected shop and a changed role is mirrored, so the next navigation is corrected.
func (g *Guard) confirmAccess(ctx context.Context, nav Navigation, shop tenants.Shop, aligned Decision) Decision {
	toSelection := Decision{State: NoTenant, Path: nav.Path, Location: g.routes.SelectShop}

	check, err := nav.Access.CheckAccess(ctx, shop.ID)
	if err != nil {
		if apiclient.IsAborted(err) {
			return aligned
		}
		if revoking(err) {
			accessChecks.WithLabelValues("revoked").Inc()
			g.clearShop(ctx, nav.Session, shop)
			return toSelection
		}
		accessChecks.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Int64("shop", shop.ID).Msg("shop access check failed")
		if g.strict {
			return toSelection
		}
		return aligned
	}

	if !check.HasAccess {
		accessChecks.WithLabelValues("revoked").Inc()
		g.clearShop(ctx, nav.Session, shop)
		return toSelection
	}

	if check.Role != "" && check.Role != shop.Role {
		accessChecks.WithLabelValues("role_changed").Inc()
		if err := nav.Session.SetRole(ctx, check.Role); err != nil {
			log.Error().Err(err).Int64("shop", shop.ID).Msg("could not store changed role")
			return toSelection
		}
		log.Info().Int64("shop", shop.ID).Str("from", shop.Role.String()).Str("to", check.Role.String()).Msg("shop role changed")
		p := g.ParsePath(nav.Path)
		return Decision{State: RoleMismatch, Path: nav.Path, Location: p.WithRole(check.Role).String(), Replace: true}
	}

	accessChecks.WithLabelValues("granted").Inc()
	return aligned
}

func (g *Guard) clearShop(ctx context.Context, session Session, shop tenants.Shop) {
	log.Info().Int64("shop", shop.ID).Msg("shop access revoked")
	if err := session.ClearShop(ctx); err != nil {
		log.Error().Err(err).Int64("shop", shop.ID).Msg("could not clear revoked shop")
	}
}

// revoking reports whether an access check error means the shop is gone for this user.
// Authentication failures are left to the token check.
func revoking(err error) bool {
	switch apiclient.StatusOf(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}
