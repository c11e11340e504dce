package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/fetchcache"
	"github.com/jrsteele09/retail-console/guard"
	"github.com/jrsteele09/retail-console/internal/config"
	"github.com/jrsteele09/retail-console/notifications"
	"github.com/jrsteele09/retail-console/server"
	"github.com/jrsteele09/retail-console/sessions"
	"github.com/jrsteele09/retail-console/state"
	"github.com/jrsteele09/retail-console/token"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if err := config.LoadFile(os.Getenv("CONFIG_FILE")); err != nil {
		return err
	}
	c := config.New()
	configureLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, storage, closeRedis, err := storageBackends(ctx, c)
	if err != nil {
		return err
	}
	defer closeRedis()

	api, err := apiclient.New(c.GetAPIBaseURL())
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(c.GetAPIBaseURL(), c.GetProbeInterval())
	go monitor.Run(ctx)

	var verifierOpts []token.VerifierOption
	if jwks := c.GetJWKSURL(); jwks != "" {
		verifierOpts = append(verifierOpts, token.WithKeySet(token.NewRemoteKeySet(ctx, jwks)))
	}
	verifier := token.NewVerifier(token.EndpointsFor(c.GetAPIBaseURL()), monitor, verifierOpts...)

	g := guard.New(verifier, monitor, c.GetLocales(),
		guard.Routes{Login: server.RouteLogin, SelectShop: server.RouteSelectShop},
		guard.WithStrictAccessCheck(c.GetStrictAccessCheck()),
		guard.WithAccessTimeout(c.GetAccessCheckTimeout()))

	hub := notifications.NewHub(c.GetWSBaseURL(), c.GetNotificationLogSize(), c.GetReconnectInterval())
	cache := fetchcache.New(backend, c.GetFetchCacheTTL())
	registry := sessions.NewRegistry(storage, cache,
		fetchcache.QueryOptions{RetryCount: c.GetRetryCount(), RetryInterval: c.GetRetryInterval()},
		sessions.WithEventSource(monitor),
		sessions.OnEvict(hub.Close))
	go registry.Run(ctx, c.GetMaxSessionAge())

	handler, err := server.New(c, server.Deps{
		API:      api,
		Auth:     verifier,
		Codec:    token.NewCodec(c.GetCookieSecret()),
		Status:   monitor,
		Guard:    g,
		Sessions: registry,
		Hub:      hub,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		returnError = err
	case <-waitForStopSignal():
		returnError = shutdown(httpServer)
	}

	cancel()
	hub.Shutdown()
	registry.Close()
	g.Wait()
	return returnError
}

// storageBackends shares the fetch cache and session state through Redis when configured
func storageBackends(ctx context.Context, c config.Config) (fetchcache.Backend, state.Storage, func(), error) {
	redisURL := c.GetRedisURL()
	if redisURL == "" {
		log.Info().Msg("REDIS_URL not set, keeping cache and session state in memory")
		memory := fetchcache.NewMemoryBackend()
		go sweepMemory(ctx, memory, c.GetFetchCacheTTL())
		return memory, state.NewMemoryStorage(), func() {}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Using Redis for cache and session state")
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close")
		}
	}
	return fetchcache.NewRedisBackend(client, c.GetFetchCacheTTL()),
		state.NewRedisStorage(client, c.GetMaxSessionAge()*2), closeFn, nil
}

func sweepMemory(ctx context.Context, backend *fetchcache.MemoryBackend, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			backend.Sweep(now.Add(-ttl))
		}
	}
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
