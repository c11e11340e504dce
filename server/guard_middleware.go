package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/guard"
	"github.com/jrsteele09/retail-console/token"
)

// RequireGuard runs the session/role guard for tenant pages. Only role-aligned navigations
// reach next; everything else is redirected before any tenant content is written.
func (s *Server) RequireGuard() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			rs := scopeFrom(r)
			nav := guard.Navigation{
				Path:    r.URL.Path,
				Tokens:  rs.tokens,
				Session: rs.session.State,
				Access:  rs.shops(),
			}

			// HTMX swaps can rewrite the address bar in place, so they re-enter on the
			// corrected path. Full loads are redirected and re-evaluated by the browser.
			mount := s.guard.Mount()
			var d guard.Decision
			if isHTMXRequest(r) {
				d = mount.Resolve(r.Context(), nav)
			} else {
				d = mount.Evaluate(r.Context(), nav)
			}

			switch d.State {
			case guard.Unchecked:
				s.renderUnavailable(w, r)
				return
			case guard.TokenInvalid, guard.NoTenant:
				redirectSuccess(w, r, d.Location)
				return
			case guard.RoleMismatch:
				if isHTMXRequest(r) {
					redirectSuccess(w, r, withQuery(d.Location, r))
					return
				}
				redirectReplace(w, r, withQuery(d.Location, r))
				return
			}

			if d.Location != "" {
				w.Header().Set("HX-Replace-Url", withQuery(d.Location, r))
			}
			ctx := context.WithValue(r.Context(), ContextKeyDecision, d)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireToken gates API routes on a usable token pair. A well-formed access token is
// trusted locally; the API rejects it if it was revoked. Offline, reads fall through to
// the cache.
func (s *Server) RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		access, hasAccess := rs.tokens.GetAccessToken()
		_, hasRefresh := rs.tokens.GetRefreshToken()

		switch {
		case hasAccess && token.WellFormed(access):
		case !s.status.Online() && (hasAccess || hasRefresh):
		case s.auth.CheckToken(r.Context(), rs.tokens):
		default:
			if isHTMXRequest(r) {
				w.Header().Set("HX-Redirect", RouteLogin)
			}
			writeJSON(w, http.StatusUnauthorized, &apiclient.FetchError{Status: http.StatusUnauthorized, Message: "authentication required"})
			return
		}
		next(w, r)
	}
}

func decisionFrom(r *http.Request) guard.Decision {
	d, _ := r.Context().Value(ContextKeyDecision).(guard.Decision)
	return d
}

func withQuery(path string, r *http.Request) string {
	if r.URL.RawQuery == "" {
		return path
	}
	return path + "?" + r.URL.RawQuery
}
