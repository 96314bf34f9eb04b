package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"saunafreunde/internal/blob"
	"saunafreunde/internal/database"
	"saunafreunde/internal/metrics"
	"saunafreunde/internal/models"
	"saunafreunde/shared/access"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	metrics.IncHTTPError(strconv.Itoa(status))
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusOf maps service and storage errors to HTTP status codes.
func statusOf(err error) int {
	var invalid *models.ValidationError
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case access.IsAccessDenied(err), errors.Is(err, database.ErrNotClaimant):
		return http.StatusForbidden
	case errors.Is(err, database.ErrClaimNotFound),
		errors.Is(err, database.ErrProfileNotFound),
		errors.Is(err, database.ErrPostNotFound),
		errors.Is(err, database.ErrFestivalNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrSlotTaken),
		errors.Is(err, database.ErrProfileExists),
		errors.Is(err, database.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, blob.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, blob.ErrBadKey):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrShareCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), database.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError answers with the mapped status. Internal errors are logged
// and never shown to the caller.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	var invalid *models.ValidationError
	switch {
	case errors.As(err, &invalid):
		metrics.IncHTTPError(strconv.Itoa(status))
		writeJSON(w, status, errorResponse{Error: invalid.Error(), Field: invalid.Field})
		return
	case status >= http.StatusInternalServerError:
		s.logger.Error().Err(err).
			Str("request_id", requestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}
