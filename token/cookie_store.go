package token

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"

	cookieMaxAge = int((30 * 24 * time.Hour) / time.Second)
)

var _ Store = (*CookieStore)(nil)

// CookieStore keeps the token pair in the browser's cookie jar. It is bound to one
// request/response pair; writes are visible to later reads during the same request.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	codec  Codec
	secure bool

	mu      sync.Mutex
	loaded  bool
	access  string
	refresh string
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, codec Codec) *CookieStore {
	if codec == nil {
		codec = PlainCodec{}
	}
	return &CookieStore{
		w:      w,
		r:      r,
		codec:  codec,
		secure: isSecure(r),
	}
}

func (s *CookieStore) GetAccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s.access, s.access != ""
}

func (s *CookieStore) GetRefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s.refresh, s.refresh != ""
}

func (s *CookieStore) SetTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	if access == "" {
		s.remove()
		return
	}
	if refresh == "" {
		refresh = s.refresh
	}
	if refresh == "" {
		// Both or neither: an access token without a refresh token is not persisted
		log.Warn().Msg("CookieStore.SetTokens: refusing access token without refresh token")
		s.remove()
		return
	}

	encAccess, err := s.codec.Encode(access)
	if err != nil {
		log.Err(err).Msg("CookieStore.SetTokens: encode access token")
		return
	}
	encRefresh, err := s.codec.Encode(refresh)
	if err != nil {
		log.Err(err).Msg("CookieStore.SetTokens: encode refresh token")
		return
	}

	s.setCookie(AccessCookieName, encAccess, cookieMaxAge)
	s.setCookie(RefreshCookieName, encRefresh, cookieMaxAge)
	s.access, s.refresh = access, refresh
}

func (s *CookieStore) RemoveTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove()
}

func (s *CookieStore) remove() {
	s.loaded = true
	s.access, s.refresh = "", ""
	s.setCookie(AccessCookieName, "", -1)
	s.setCookie(RefreshCookieName, "", -1)
}

func (s *CookieStore) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.access = s.read(AccessCookieName)
	s.refresh = s.read(RefreshCookieName)
}

func (s *CookieStore) read(name string) string {
	cookie, err := s.r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	value, err := s.codec.Decode(cookie.Value)
	if err != nil {
		log.Warn().Str("cookie", name).Msg("CookieStore: discarding undecodable cookie")
		return ""
	}
	return value
}

func (s *CookieStore) setCookie(name, value string, maxAge int) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}
