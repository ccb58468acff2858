package pushapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/validator"
)

// Envelope is the body of every API response.
type Envelope struct {
	Data  any          `json:"data,omitempty"`
	Meta  *Meta        `json:"meta,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// Meta carries list metadata.
type Meta struct {
	Count int `json:"count"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeResult writes data with status, or with the error's status when err
// is set. Data is kept next to the error, so a failed send still returns the
// persisted notification.
func (a *API) writeResult(w http.ResponseWriter, r *http.Request, status int, data any, meta *Meta, err error) {
	if err == nil {
		writeJSON(w, status, Envelope{Data: data, Meta: meta})
		return
	}

	code, detail := describe(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "request failed",
		logger.Component("pushapi"),
		slog.Int("status", code),
		logger.Error(err))

	writeJSON(w, code, Envelope{Data: data, Meta: meta, Error: detail})
}

// describe maps an error to its HTTP status and public detail.
func describe(err error) (int, *ErrorDetail) {
	var te *push.TransportError

	switch {
	case errors.Is(err, push.ErrValidation):
		detail := &ErrorDetail{Code: "validation_error", Message: err.Error()}
		if ve := validator.ExtractValidationErrors(err); len(ve) > 0 {
			detail.Details = make(map[string][]string, len(ve))
			for _, e := range ve {
				detail.Details[e.Field] = append(detail.Details[e.Field], e.Message)
			}
		}
		return http.StatusBadRequest, detail
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest, &ErrorDetail{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, ErrUnsupportedMediaType), errors.Is(err, ErrMissingContentType):
		return http.StatusUnsupportedMediaType, &ErrorDetail{Code: "unsupported_media_type", Message: err.Error()}
	case errors.Is(err, push.ErrNotFound):
		return http.StatusNotFound, &ErrorDetail{Code: "not_found", Message: err.Error()}
	case errors.As(err, &te):
		return http.StatusBadGateway, &ErrorDetail{Code: "gateway_error", Message: err.Error()}
	case errors.Is(err, push.ErrNoQueue):
		return http.StatusServiceUnavailable, &ErrorDetail{Code: "queue_unavailable", Message: err.Error()}
	default:
		return http.StatusInternalServerError, &ErrorDetail{Code: "internal_error", Message: err.Error()}
	}
}
