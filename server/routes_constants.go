package server

// Route path constants
const (
	// Session routes
	RouteIndex      = "/{$}"
	RouteLogin      = "/login"
	RouteLogout     = "/logout"
	RouteSelectShop = "/select-shop"

	// Tenant pages: /{locale?}/{role}/{section}/...
	RoutePages = "/{path...}"

	// API routes used by the HTMX front end
	RouteAPIData          = "/api/data/{path...}"
	RouteAPIRefetch       = "/api/refetch"
	RouteAPIPrefs         = "/api/prefs"
	RouteAPIFocus         = "/api/focus"
	RouteAPINotifications = "/api/notifications"
	RouteAPINotifyOpen    = "/api/notifications/open"
	RouteAPINotifyClose   = "/api/notifications/close"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Static Asset Routes (patterns)
	RouteStatic  = "/static/{file}"
	RouteFavicon = "/favicon.ico"
)
