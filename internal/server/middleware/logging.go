package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Logger logs one line per request with its status, size and duration.
// Handlers reach a logger tagged with the request ID through LoggerFrom.
func Logger(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			reqID := GetRequestID(r.Context())
			scoped := logger.With("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey, scoped)

			next.ServeHTTP(ww, r.WithContext(ctx))

			duration := time.Since(start)
			log := logger.Infow
			if ww.status >= 500 {
				log = logger.Errorw
			} else if ww.status >= 400 {
				log = logger.Warnw
			}

			log("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(duration.Microseconds())/1000.0,
				"bytes", ww.bytes,
				"request_id", reqID,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// bytes written for logging purposes.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
