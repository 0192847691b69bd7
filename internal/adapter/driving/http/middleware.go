package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/clubsync/internal/observability"
)

// unmatchedRoute labels requests no pattern matched, keeping metric cardinality bounded.
const unmatchedRoute = "unmatched"

// quietRoutes are polled by probes and scrapers; they are logged at debug level.
var quietRoutes = map[string]bool{
	"GET /api/v1/health": true,
	"GET /metrics":       true,
}

// statusWriter captures the response status so it can be logged and counted.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(status int) {
	if !sw.wroteHeader {
		sw.status = status
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// routeOf returns the mux pattern that served r. ServeMux sets it in place
// while routing, so it is only available after the inner handler ran.
func routeOf(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	return r.Pattern
}

// loggingMiddleware logs each request and records its count and latency by
// route pattern. Server errors log at error level.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		route := routeOf(r)
		observability.ObserveHTTPRequest(route, sw.status, elapsed)

		level := slog.LevelInfo
		switch {
		case sw.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case quietRoutes[route] && sw.status < http.StatusBadRequest:
			level = slog.LevelDebug
		}

		logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", elapsed.Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware turns a handler panic into a 500 in the API's error shape.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeJSON(w, http.StatusInternalServerError, SyncErrorResponse{
					Success: false,
					Error:   "internal server error",
				})
			}
		}()

		next.ServeHTTP(w, r)
	})
}
