// Package api assembles the csync HTTP surface: the /v1 route table,
// the auth and payload-cap middleware, and the server lifecycle.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fioncat/csync/internal/logger"
	"github.com/fioncat/csync/pkg/api/handlers"
	"github.com/fioncat/csync/pkg/api/middleware"
	"github.com/fioncat/csync/pkg/auth"
	"github.com/fioncat/csync/pkg/events"
	"github.com/fioncat/csync/pkg/metrics"
	"github.com/fioncat/csync/pkg/revision"
	"github.com/fioncat/csync/pkg/store"
)

// Services carries the long-lived server state the handlers operate on.
type Services struct {
	Store    *store.Store
	Register *revision.Register
	Bus      *events.Bus
	Tokens   *auth.TokenService

	// AdminPassword enables the reserved admin identity when non-empty.
	AdminPassword string

	// RecycleTTL is the lifetime applied to new and unpinned blobs.
	RecycleTTL time.Duration

	// SaltLength is the length of generated password salts.
	SaltLength int

	// Version is reported by /v1/healthz.
	Version string
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// The peer address is always the socket address; forwarding headers are
// not trusted because loopback checks gate the admin identity.
//
// Routes:
//   - GET /v1/healthz - unauthenticated health probe
//   - PUT/GET/PATCH/DELETE /v1/blob - blob upload, download, pin, delete
//   - GET /v1/metadata - paginated metadata listing
//   - PUT/GET/PATCH/DELETE /v1/user - user management
//   - GET /v1/token - bearer token for the authenticated principal
func NewRouter(config APIConfig, services Services) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	blobHandler := handlers.NewBlobHandler(services.Store, services.Register, services.Bus, services.RecycleTTL)
	userHandler := handlers.NewUserHandler(services.Store, services.Register, services.Bus, services.SaltLength)
	tokenHandler := handlers.NewTokenHandler(services.Tokens)
	healthHandler := handlers.NewHealthHandler(services.Version)

	r.Route("/v1", func(r chi.Router) {
		// Health probe - unauthenticated
		r.Get("/healthz", healthHandler.Healthz)

		// Everything else requires credentials
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(services.Store, services.Tokens, services.AdminPassword))
			r.Use(middleware.MaxBytes(int64(config.MaxPayloadSize)))

			r.Put("/blob", blobHandler.Put)
			r.Get("/blob", blobHandler.Get)
			r.Patch("/blob", blobHandler.Patch)
			r.Delete("/blob", blobHandler.Delete)

			r.Get("/metadata", blobHandler.Metadata)

			r.Put("/user", userHandler.Put)
			r.Get("/user", userHandler.Get)
			r.Patch("/user", userHandler.Patch)
			r.Delete("/user", userHandler.Delete)

			r.Get("/token", tokenHandler.Get)
		})
	})

	return r
}

// isHealthPath returns true if the request path is the health probe.
func isHealthPath(path string) bool {
	return path == "/v1/healthz"
}

// requestLogger is a custom middleware that logs requests using the
// internal logger and records them in the metrics registry.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, bytes, duration
//   - Health probes are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), duration)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
