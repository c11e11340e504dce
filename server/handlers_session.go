package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	consoleerrors "github.com/jrsteele09/retail-console/internal/errors"
	"github.com/jrsteele09/retail-console/tenants"
)

type loginPage struct {
	AppName  string
	Username string
	Error    string
}

type selectShopPage struct {
	AppName string
	Shops   []tenants.Shop
	Error   string
}

// IndexHandler sends the browser to its last tenant area, shop selection or login
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		if _, ok := rs.tokens.GetRefreshToken(); !ok {
			if _, ok := rs.tokens.GetAccessToken(); !ok {
				redirectSuccess(w, r, RouteLogin)
				return
			}
		}
		if marker := rs.session.State.PathMarker(); marker != "" && rs.session.State.SelectedShop() != nil {
			redirectSuccess(w, r, s.localePath(marker))
			return
		}
		redirectSuccess(w, r, RouteSelectShop)
	}
}

func (s *Server) LoginPageHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("login.html")
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, tmpl, http.StatusOK, loginPage{
			AppName: s.config.GetAppName(),
			Error:   r.URL.Query().Get("error"),
		})
	}
}

// LoginSubmissionHandler exchanges credentials for a token pair and loads the shop list
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("login.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		rs := scopeFrom(r)
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		page := loginPage{AppName: s.config.GetAppName(), Username: username}

		if username == "" || password == "" {
			page.Error = "Username and password are required"
			render(w, tmpl, http.StatusBadRequest, page)
			return
		}

		if err := s.auth.Login(r.Context(), rs.tokens, username, password); err != nil {
			status := http.StatusBadGateway
			page.Error = "Sign in is unavailable, try again shortly"
			if consoleerrors.Is(err, consoleerrors.ErrInvalidCredentials) {
				status = http.StatusUnauthorized
				page.Error = "Invalid username or password"
			}
			log.Warn().Err(err).Str("username", username).Msg("Login failed")
			render(w, tmpl, status, page)
			return
		}

		// A new login starts from a clean tenant selection
		if err := rs.session.State.ClearShop(r.Context()); err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to clear shop on login")
		}
		_ = rs.session.Cache.InvalidatePrefix(r.Context(), "")
		if access, ok := rs.tokens.GetAccessToken(); ok && s.hub != nil {
			s.hub.Open(rs.session.ID, access)
		}

		shops, err := rs.shops().List(r.Context())
		if err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to list shops after login")
			redirectSuccess(w, r, RouteSelectShop)
			return
		}
		if err := rs.session.State.SetShops(r.Context(), shops); err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to store shops")
		}
		rs.session.Queries.Query(tenants.ShopsPath()).Mutate(encodeShops(shops))

		if len(shops) == 1 {
			if err := rs.session.State.SelectShop(r.Context(), shops[0]); err == nil {
				redirectSuccess(w, r, s.localePath(rs.session.State.PathMarker()))
				return
			}
		}
		redirectSuccess(w, r, RouteSelectShop)
	}
}

// LogoutHandler drops the token pair and every piece of state held for the browser
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		rs.tokens.RemoveTokens()
		if err := rs.session.State.Clear(r.Context()); err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to clear session state")
		}
		if s.hub != nil {
			s.hub.Close(rs.session.ID)
		}
		s.sessions.Delete(rs.session.ID)
		redirectSuccess(w, r, RouteLogin)
	}
}

// SelectShopPageHandler lists the shops the user can work in
func (s *Server) SelectShopPageHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("select_shop.html")
	return func(w http.ResponseWriter, r *http.Request) {
		rs := scopeFrom(r)
		if !s.auth.CheckToken(r.Context(), rs.tokens) {
			redirectSuccess(w, r, RouteLogin)
			return
		}

		page := selectShopPage{AppName: s.config.GetAppName(), Error: r.URL.Query().Get("error")}
		shops, err := s.loadShops(r, rs)
		if err != nil {
			log.Err(err).Str("session", rs.session.ID).Msg("Failed to load shops")
			page.Error = "Shops could not be loaded"
			shops = rs.session.State.Shops()
		}
		page.Shops = shops
		render(w, tmpl, http.StatusOK, page)
	}
}

// SelectShopSubmissionHandler makes the chosen shop active and enters its role area
func (s *Server) SelectShopSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		rs := scopeFrom(r)
		if !s.auth.CheckToken(r.Context(), rs.tokens) {
			redirectSuccess(w, r, RouteLogin)
			return
		}

		shopID, err := strconv.ParseInt(r.FormValue("shop_id"), 10, 64)
		if err != nil {
			redirectWithError(w, r, RouteSelectShop, "Choose a shop")
			return
		}

		shops := rs.session.State.Shops()
		if len(shops) == 0 {
			if shops, err = s.loadShops(r, rs); err != nil {
				redirectWithError(w, r, RouteSelectShop, "Shops could not be loaded")
				return
			}
		}

		var chosen *tenants.Shop
		for i := range shops {
			if shops[i].ID == shopID {
				chosen = &shops[i]
				break
			}
		}
		if chosen == nil {
			redirectWithError(w, r, RouteSelectShop, consoleerrors.ErrShopNotFound.Error())
			return
		}

		if err := rs.session.State.SelectShop(r.Context(), *chosen); err != nil {
			log.Err(err).Int64("shop", shopID).Msg("Failed to select shop")
			redirectWithError(w, r, RouteSelectShop, "The shop could not be selected")
			return
		}
		redirectSuccess(w, r, s.localePath(rs.session.State.PathMarker()))
	}
}

// loadShops reads the shop list through the session's revalidating query
func (s *Server) loadShops(r *http.Request, rs *requestScope) ([]tenants.Shop, error) {
	body, err := rs.session.Queries.Query(tenants.ShopsPath()).Data(r.Context(), rs.fetcher())
	if err != nil {
		return nil, err
	}
	shops, err := tenants.DecodeShops(body)
	if err != nil {
		return nil, err
	}
	if err := rs.session.State.SetShops(r.Context(), shops); err != nil {
		log.Err(err).Str("session", rs.session.ID).Msg("Failed to store shops")
	}
	return shops, nil
}

// localePath prefixes path with the default locale
func (s *Server) localePath(path string) string {
	locale := s.defaultLocale()
	if locale == "" {
		return path
	}
	return "/" + locale + path
}
