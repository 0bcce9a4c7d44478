package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// NewRouter wires the relay, the diagnostics and, when staticDir is set, the
// static front end behind CORS.
func NewRouter(h *Handler, staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", h.instrument("/api/chat", h.HandleChat))
	mux.Handle("GET /api/config-check", h.instrument("/api/config-check", h.ConfigCheck))
	mux.Handle("POST /api/test", h.instrument("/api/test", h.TestConnection))
	mux.Handle("GET /health", h.instrument("/health", h.Health))
	mux.Handle("GET /metrics", h.metrics.Handler())
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: h.cfg.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         600,
	})
	return c.Handler(mux)
}

// instrument records request metrics and logs one line per request.
func (h *Handler) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		defer func() {
			status := strconv.Itoa(rec.statusCode())
			if p := recover(); p != nil {
				status = "aborted"
				defer panic(p)
			}
			duration := time.Since(start)
			h.metrics.RequestsTotal.WithLabelValues(route, status).Inc()
			h.metrics.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
			h.logger.Debug("api_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("status", status),
				zap.Duration("duration", duration))
		}()

		next(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying Flusher.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
