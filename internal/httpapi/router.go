// Package httpapi exposes langmirror's management API: health probes,
// Prometheus metrics, reconciliation triggers, user lifecycle webhooks,
// and CRUD over alternatives, mirrors, mappings, and assignments.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/langmirror/internal/logger"
	"github.com/marmos91/langmirror/pkg/access"
	"github.com/marmos91/langmirror/pkg/assign"
	"github.com/marmos91/langmirror/pkg/daemon"
	"github.com/marmos91/langmirror/pkg/metrics"
	"github.com/marmos91/langmirror/pkg/state"
)

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - GET  /health - liveness probe
//   - GET  /metrics - Prometheus exposition (when metrics are enabled)
//   - GET  /api/v1/status - daemon status and last pass report
//   - POST /api/v1/sync - trigger a full reconciliation pass
//   - POST /api/v1/events/users - user created/deleted webhook
//   - /api/v1/alternatives/* - language alternative and mirror management
//   - /api/v1/mappings - LDAP group mapping management
//   - /api/v1/settings - sync settings
//   - /api/v1/users/{id}/* - per-user assignment and access operations
func NewRouter(store *state.Store, d *daemon.Daemon, resolver *assign.Resolver, reconciler *access.Reconciler) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", handleHealth(store))

	if metrics.IsEnabled() {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(
			metrics.GetRegistry(),
			promhttp.HandlerOpts{},
		))
	}

	h := &handler{
		store:      store,
		daemon:     d,
		resolver:   resolver,
		reconciler: reconciler,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/sync", h.sync)
		r.Post("/events/users", h.userEvent)

		r.Route("/alternatives", func(r chi.Router) {
			r.Get("/", h.listAlternatives)
			r.Post("/", h.createAlternative)
			r.Delete("/{id}", h.deleteAlternative)
			r.Post("/{id}/mirrors", h.createMirror)
			r.Delete("/{id}/mirrors/{sourceID}", h.deleteMirror)
		})

		r.Get("/mappings", h.listMappings)
		r.Put("/mappings", h.replaceMappings)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.updateSettings)

		r.Get("/assignments", h.listAssignments)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Put("/assignment", h.setAssignment)
			r.Delete("/assignment", h.clearAssignment)
			r.Get("/access", h.expectedAccess)
			r.Post("/reconcile", h.reconcileUser)
		})
	})

	return r
}

// handleHealth reports liveness plus whether the state document is
// loaded.
func handleHealth(store *state.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.Snapshot(); err != nil {
			fail(w, http.StatusServiceUnavailable, "state store unavailable")
			return
		}
		ok(w, map[string]any{"version": store.Version()})
	}
}

// requestLogger logs each API request at completion. Health and metrics
// scrapes stay at debug level to keep the logs quiet.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		}

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			logger.Debug("API request completed", logArgs...)
			return
		}
		logger.Info("API request completed", logArgs...)
	})
}
