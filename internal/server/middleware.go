package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "marvel_http_requests_total",
	Help: "Requests served by the front end by route and status",
}, []string{"route", "status"})

// requestID assigns the request ID, stores a request-scoped logger in the
// context and applies the request deadline.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()

		logger := s.logger.With().Str("request_id", id).Logger()
		ctx = logging.WithContext(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs and counts every request. It must wrap the mux directly
// so r.Pattern is visible after routing.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()

		logger := logging.FromContext(r.Context(), s.logger)
		event := logger.Info()
		if rec.status >= 500 {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
