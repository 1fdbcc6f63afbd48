package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/droserasprout/slskd/internal/logger"
	"github.com/droserasprout/slskd/pkg/upload"
)

// NewRouter creates the chi router for the management API.
//
// Routes:
//   - GET /health - liveness probe
//   - GET /api/v0/uploads - queue snapshot
//   - GET /api/v0/uploads/{username}/position - position estimate
//   - GET /api/v0/groups - group table with live slot usage
func NewRouter(governor *upload.Governor) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, OKResponse(map[string]string{
			"service": "slskd",
		}))
	})

	uploadsHandler := NewUploadsHandler(governor)
	r.Route("/api/v0", func(r chi.Router) {
		r.Get("/uploads", uploadsHandler.List)
		r.Get("/uploads/{username}/position", uploadsHandler.Position)
		r.Get("/groups", uploadsHandler.Groups)
	})

	return r
}

// requestLogger logs each request through the internal logger: start at
// DEBUG, completion at INFO with status and timing.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", logger.Duration(start),
		)
	})
}
