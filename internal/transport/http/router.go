// Package httptransport assembles the HTTP surface: middleware chain,
// record lifecycle routes, health, and metrics.
package httptransport

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curator/internal/record/handler"
	"curator/pkg/platform/middleware/auth"
	"curator/pkg/platform/middleware/requestid"
	"curator/pkg/platform/middleware/requesttime"
)

// Pinger is the slice of a connection pool the health endpoint needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthChecker reports the health of an optional dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Logger         *slog.Logger
	Records        *handler.Handler
	TokenValidator auth.JWTValidator
	DB             Pinger
	Redis          HealthChecker
}

// NewRouter wires all public endpoints.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		deps.Records.Register(api,
			auth.RequireAuth(deps.TokenValidator, deps.Logger),
			auth.OptionalAuth(deps.TokenValidator, deps.Logger),
		)
	})
	return r
}

// handleHealth reports readiness: the database must answer, Redis only when
// configured.
func handleHealth(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				deps.Logger.ErrorContext(ctx, "health check failed", "component", "postgres", "error", err)
				writeHealth(w, http.StatusServiceUnavailable, "postgres unavailable")
				return
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				deps.Logger.ErrorContext(ctx, "health check failed", "component", "redis", "error", err)
				writeHealth(w, http.StatusServiceUnavailable, "redis unavailable")
				return
			}
		}
		writeHealth(w, http.StatusOK, "ok")
	}
}

func writeHealth(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"` + message + `"}`))
}

var _ Pinger = (*sql.DB)(nil)
