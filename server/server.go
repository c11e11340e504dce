package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/guard"
	"github.com/jrsteele09/retail-console/internal/config"
	"github.com/jrsteele09/retail-console/notifications"
	"github.com/jrsteele09/retail-console/sessions"
	"github.com/jrsteele09/retail-console/token"
)

// Authenticator checks, refreshes and obtains the token pair held in a browser's cookies
type Authenticator interface {
	CheckToken(ctx context.Context, store token.Store) bool
	Login(ctx context.Context, store token.Store, username, password string) error
}

// Deps are the collaborators the console is assembled from
type Deps struct {
	API      *apiclient.Client
	Auth     Authenticator
	Codec    token.Codec
	Status   connectivity.Status
	Guard    *guard.Guard
	Sessions *sessions.Registry
	Hub      *notifications.Hub
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	api      *apiclient.Client
	auth     Authenticator
	codec    token.Codec
	status   connectivity.Status
	guard    *guard.Guard
	sessions *sessions.Registry
	hub      *notifications.Hub
	locales  map[string]struct{}
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.API == nil || deps.Auth == nil || deps.Guard == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("[Server New] api client, authenticator, guard and session registry are required")
	}
	if deps.Codec == nil {
		deps.Codec = token.PlainCodec{}
	}
	if deps.Status == nil {
		deps.Status = connectivity.Static(true)
	}

	s := &Server{
		mux:      http.NewServeMux(),
		config:   cfg,
		env:      cfg.GetEnv(),
		api:      deps.API,
		auth:     deps.Auth,
		codec:    deps.Codec,
		status:   deps.Status,
		guard:    deps.Guard,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		locales:  guard.LocaleSet(cfg.GetLocales()),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logError(method, path string, err error) {
	log.Error().Err(err).Msgf("[%-19s] %s", colourMethod(method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// defaultLocale is the locale prefixed to paths built by the console
func (s *Server) defaultLocale() string {
	return s.config.GetDefaultLocale()
}
