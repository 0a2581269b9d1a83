package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Sternrassler/marvel-client/pkg/catalog"
	"github.com/Sternrassler/marvel-client/pkg/client"
	"github.com/Sternrassler/marvel-client/pkg/logging"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"detail":"encode response"}`, http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// statusFor maps an error to the response status and detail message.
func statusFor(err error) (int, string) {
	var upstream *client.UpstreamError
	var notFound *catalog.NotFoundError

	switch {
	case errors.As(err, &upstream):
		return upstream.StatusCode, upstream.Message
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Error()
	case errors.Is(err, catalog.ErrInvalidPage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, client.ErrQuotaExhausted):
		return http.StatusTooManyRequests, "Upstream quota exhausted, try again later"
	case client.IsTimeout(err):
		return http.StatusGatewayTimeout, "Upstream request timed out"
	default:
		return http.StatusBadGateway, "Upstream request failed"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)

	logger := logging.FromContext(r.Context(), s.logger)
	event := logger.Warn()
	if status >= 500 {
		event = logger.Error()
	}
	event.Err(err).Int("status", status).Msg("Request failed")

	writeDetail(w, status, detail)
}

// intParam reads an integer query parameter, applying def when absent and
// enforcing lo and (when hi > 0) hi.
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, raw)
	}
	if v < lo {
		return 0, fmt.Errorf("%s must be >= %d (got %d)", name, lo, v)
	}
	if hi > 0 && v > hi {
		return 0, fmt.Errorf("%s must be <= %d (got %d)", name, hi, v)
	}
	return v, nil
}
