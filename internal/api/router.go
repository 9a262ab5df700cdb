package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruslano69/ldapauth/internal/events"
	"github.com/ruslano69/ldapauth/internal/infra"
	"github.com/ruslano69/ldapauth/internal/ldap"
)

// Authenticator is the part of auth.Authenticator the HTTP layer needs.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) ([]string, bool)
}

// EventStore serves the last authentication event per user.
type EventStore interface {
	Last(ctx context.Context, username string) (*events.Event, error)
	Ping(ctx context.Context) error
}

// Throttle limits repeated failed logins per username.
type Throttle interface {
	Check(ctx context.Context, username string) error
	Fail(ctx context.Context, username string) (int, error)
	Reset(ctx context.Context, username string) error
}

// deps are the router's collaborators; nil optional fields disable a feature.
type deps struct {
	auth     Authenticator
	events   EventStore
	throttle Throttle
	breaker  *ldap.BreakerDirectory
	timeout  time.Duration

	adminToken string // guards /api/events; empty leaves it unmounted
}

// NewRouter wires all dependencies and returns the chi router.
func NewRouter(cfg *infra.Config, inf *infra.Infra) http.Handler {
	d := deps{auth: inf.Auth, timeout: cfg.Server.RequestTimeout, adminToken: cfg.Server.AdminToken}
	if inf.Events != nil {
		d.events = inf.Events
	}
	if inf.Throttle != nil {
		d.throttle = inf.Throttle
	}
	d.breaker, _ = inf.Directory.(*ldap.BreakerDirectory)
	return newRouter(d)
}

// NewServer returns the HTTP server for h with the configured timeouts.
func NewServer(cfg *infra.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

func newRouter(d deps) http.Handler {
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(d.timeout))

	h := &authHandler{auth: d.auth, events: d.events, throttle: d.throttle}

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(d.events, d.breaker))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/authenticate", h.Authenticate)
	if d.adminToken != "" {
		r.With(requireBearer(d.adminToken)).Get("/api/events/{username}", h.LastEvent)
	}

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports the event feed and the directory breaker. The directory
// itself is not probed: every login opens its own connection anyway.
func handleReadyz(store EventStore, breaker *ldap.BreakerDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK

		if store != nil {
			checks["events_redis"] = "ok"
			if err := store.Ping(r.Context()); err != nil {
				// degraded, not fatal: events are best-effort
				checks["events_redis"] = err.Error()
			}
		}
		if breaker != nil {
			state := breaker.State()
			checks["ldap_breaker"] = state
			if state == "open" {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, checks)
	}
}
