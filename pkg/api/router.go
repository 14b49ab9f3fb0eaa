package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
	"github.com/SajanLamichhane/chunkflow/pkg/metrics"
	"github.com/SajanLamichhane/chunkflow/pkg/service"
	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
)

// RouterConfig wires the router's dependencies.
type RouterConfig struct {
	// Service implements the upload protocol. Required.
	Service *service.Service

	// Blobs is checked by the readiness probe. May be nil, in which case
	// readiness reduces to liveness.
	Blobs blob.Store

	// Metrics collects request and transfer measurements. May be nil.
	Metrics metrics.UploadMetrics

	// MetricsHandler, when set, is mounted at GET /metrics. Typically a
	// promhttp handler over the registry the Metrics instance reports to.
	MetricsHandler http.Handler
}

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// Routes:
//   - POST /upload/create - open an upload session
//   - POST /upload/verify - instant-upload and chunk dedup checks
//   - POST /upload/chunk - store one chunk (multipart)
//   - POST /upload/merge - assemble the logical file
//   - GET /files/{fileId} - stream a file, Range-aware
//   - DELETE /files/{fileId} - remove a file manifest
//   - GET /health - liveness probe
//   - GET /health/ready - readiness probe (blob store reachable)
//   - GET /metrics - Prometheus exposition (when configured)
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	h := &uploadHandler{svc: cfg.Service, metrics: cfg.Metrics}

	r.Route("/upload", func(r chi.Router) {
		r.Post("/create", h.createFile)
		r.Post("/verify", h.verifyHash)
		r.Post("/chunk", h.uploadChunk)
		r.Post("/merge", h.mergeFile)
	})

	r.Route("/files/{fileId}", func(r chi.Router) {
		r.Get("/", h.getFile)
		r.Head("/", h.getFile)
		r.Delete("/", h.deleteFile)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", livenessHandler)
		r.Get("/ready", readinessHandler(cfg.Blobs))
	})

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}

// healthResponse is the body of the health endpoints.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	Error     string    `json:"error,omitempty"`
}

// startTime anchors the uptime reported by the health endpoints.
var startTime = time.Now()

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}

// readinessHandler reports ready only when the blob store answers its
// health check.
func readinessHandler(blobs blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if blobs != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			if err := blobs.HealthCheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{
					Status:    "unhealthy",
					Timestamp: time.Now().UTC(),
					Uptime:    time.Since(startTime).Round(time.Second).String(),
					Error:     err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC(),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
		})
	}
}

// isHealthPath reports whether the request targets a health probe.
// Probes fire every few seconds; logging them at INFO would drown
// everything else.
func isHealthPath(path string) bool {
	return path == "/health" || path == "/health/" || path == "/health/ready"
}

// requestLogger logs requests through the internal logger and records
// per-operation request metrics.
func requestLogger(m metrics.UploadMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("request started",
				logger.KeyRequestID, requestID,
				logger.KeyMethod, r.Method,
				logger.KeyPath, r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logFn := logger.Info
			if isHealthPath(r.URL.Path) {
				logFn = logger.Debug
			}
			logFn("request completed",
				logger.KeyRequestID, requestID,
				logger.KeyMethod, r.Method,
				logger.KeyPath, r.URL.Path,
				logger.KeyStatus, ww.Status(),
				"bytes", ww.BytesWritten(),
				logger.KeyDuration, duration.String(),
			)

			if !isHealthPath(r.URL.Path) {
				operation := chi.RouteContext(r.Context()).RoutePattern()
				if operation == "" {
					operation = "unmatched"
				}
				metrics.RecordRequest(m, r.Method+" "+operation, duration, ww.Status())
			}
		})
	}
}
