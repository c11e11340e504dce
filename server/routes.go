package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteIndex, ChainMiddleware(s.IndexHandler(), s.HTMLMiddleWare()...))

	// SESSION
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteSelectShop, ChainMiddleware(s.SelectShopPageHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("POST "+RouteSelectShop, ChainMiddleware(s.SelectShopSubmissionHandler(), s.HTMLMiddleWare()...))

	// API routes (token required)
	s.RegisterRouteHandler("GET "+RouteAPIData, ChainMiddleware(s.DataReadHandler(), s.APIMiddleware(s.RequireToken)...))
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		s.RegisterRouteHandler(method+" "+RouteAPIData, ChainMiddleware(s.DataMutationHandler(), s.APIMiddleware(s.RequireToken)...))
	}
	s.RegisterRouteHandler("POST "+RouteAPIRefetch, ChainMiddleware(s.RefetchHandler(), s.APIMiddleware(s.RequireToken)...))
	s.RegisterRouteHandler("POST "+RouteAPINotifyOpen, ChainMiddleware(s.NotificationsOpenHandler(), s.APIMiddleware(s.RequireToken)...))
	s.RegisterRouteHandler("GET "+RouteAPINotifications, ChainMiddleware(s.NotificationsListHandler(), s.APIMiddleware(s.RequireToken)...))

	// API routes (session only)
	s.RegisterRouteHandler("GET "+RouteAPIPrefs, ChainMiddleware(s.PrefsGetHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIPrefs, ChainMiddleware(s.PrefsPostHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIFocus, ChainMiddleware(s.FocusHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPINotifyClose, ChainMiddleware(s.NotificationsCloseHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {}, s.CorsMiddleware))

	// Operations
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.Handler())

	// Static assets
	s.RegisterRouteHandler("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteFavicon, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Tenant pages (guarded). Registered last for readability; more specific patterns win.
	s.RegisterRouteHandler("GET "+RoutePages, ChainMiddleware(s.PageHandler(), s.HTMLMiddleWare(s.RequireGuard())...))
}
