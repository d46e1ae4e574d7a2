package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// RequestLogger emits structured logs for every HTTP request, keyed by
// request ID and, for chat traffic, the caller's session ID.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
			}
			if sessionID := r.Header.Get("X-Session-Id"); sessionID != "" {
				fields = append(fields, "session_id", sessionID)
			}
			logger.Info("request started", fields...)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Info("request completed", append(fields,
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)...)
		})
	}
}
