package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/fetchcache"
	"github.com/jrsteele09/retail-console/sessions"
	"github.com/jrsteele09/retail-console/tenants"
	"github.com/jrsteele09/retail-console/token"
)

const (
	// consoleSessionCookieName identifies the browser's console session
	consoleSessionCookieName = "console_sid"
	consoleSessionMaxAge     = 30 * 24 * 60 * 60

	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyScope stores the request scope of the console session
	ContextKeyScope ContextKey = "console_scope"
	// ContextKeyDecision stores the guard decision for a page request
	ContextKeyDecision ContextKey = "guard_decision"
)

// requestScope is what one request knows about its browser
type requestScope struct {
	session *sessions.Session
	tokens  *token.CookieStore
	api     *apiclient.Client
}

// fetcher reads through the session's authenticated API client
func (rs *requestScope) fetcher() fetchcache.Fetcher {
	return func(ctx context.Context, path string) (json.RawMessage, error) {
		body, err := rs.api.Get(ctx, path)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(body), nil
	}
}

func (rs *requestScope) shops() *tenants.APIRepo {
	return tenants.NewAPIRepo(rs.api)
}

func scopeFrom(r *http.Request) *requestScope {
	rs, _ := r.Context().Value(ContextKeyScope).(*requestScope)
	return rs
}

// ConsoleSessionMiddleware attaches the browser's console session, issuing a session cookie when needed
func (s *Server) ConsoleSessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if cookie, err := r.Cookie(consoleSessionCookieName); err == nil && sessions.ValidID(cookie.Value) {
			sid = cookie.Value
		} else {
			sid = sessions.NewID()
			s.setConsoleSessionCookie(w, r, sid)
		}

		tokens := token.NewCookieStore(w, r, s.codec)
		rs := &requestScope{
			session: s.sessions.Get(r.Context(), sid),
			tokens:  tokens,
			api:     s.api.ForSession(token.TokenSource(tokens)),
		}
		if s.hub != nil {
			if access, ok := tokens.GetAccessToken(); ok {
				s.hub.Touch(sid, access)
			}
		}

		ctx := context.WithValue(r.Context(), ContextKeyScope, rs)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) setConsoleSessionCookie(w http.ResponseWriter, r *http.Request, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     consoleSessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   consoleSessionMaxAge,
	})
}

// redirectSuccess helper for htmx-aware redirects that add a history entry
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectReplace moves a full page load to path. The browser keeps only the final URL in
// its history, so the requested URL is replaced rather than pushed.
func redirectReplace(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusFound)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, path+"?error="+url.QueryEscape(errorMsg))
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFetchError answers with the {status, message} shape. Transport failures become 502.
func writeFetchError(w http.ResponseWriter, err error) {
	fe := apiclient.AsFetchError(err)
	status := fe.Status
	if status == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, fe)
}
