package dataapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
)

// RequestLogger creates a middleware that logs the end of each request and
// hands a request-scoped logger to handlers through the context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := base.With(slog.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(logger.WithContext(r.Context(), reqLogger))

			// Wrap the ResponseWriter to capture the status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Info for success, Warn for 4xx, Error for 5xx
			level := slog.LevelInfo
			status := ww.Status()
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}

			reqLogger.Log(r.Context(), level, "HTTP request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.String("duration", time.Since(start).String()),
				slog.String("remote_ip", r.RemoteAddr),
			)
		})
	}
}

// Metrics records request counts and latencies labelled by route pattern, so
// model names do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.DataAPIReqDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		observability.DataAPIReqTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}
