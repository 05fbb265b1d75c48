package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeError writes the API error envelope. Retryable errors carry a Retry-After hint.
func writeError(w http.ResponseWriter, err *apperrors.AppError, retryAfterSeconds int) {
	if retryAfterSeconds > 0 && apperrors.IsRetryable(err) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(errorBody{Success: false, Error: err.Error()})
}

// ClientIP extracts the caller address. X-Forwarded-For is only honored when
// the service runs behind a proxy that sets it.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
			first, _, _ := strings.Cut(forwardedFor, ",")
			return strings.TrimSpace(first)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}

	return r.RemoteAddr
}
