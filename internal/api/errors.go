package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"student-perf/internal/common"
	"student-perf/internal/features"
	"student-perf/internal/ml"

	"github.com/rs/zerolog/log"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps core errors onto HTTP status codes and client-facing messages.
func statusFor(err error) (int, string) {
	var (
		invalid      *features.InvalidInputError
		insufficient *ml.InsufficientDataError
		singleClass  *ml.SingleClassError
		threshold    *ml.InvalidThresholdError
		notFound     *ml.ModelNotFoundError
	)

	switch {
	case errors.As(err, &invalid),
		errors.As(err, &insufficient),
		errors.As(err, &singleClass),
		errors.As(err, &threshold):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &notFound):
		return http.StatusServiceUnavailable, common.ErrMsgModelNotTrained
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// writeError logs err and writes its mapped status and detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("route", r.URL.Path).
		Str("request_id", RequestID(r.Context())).
		Int("status", status).
		Msg("Request failed")

	writeDetail(w, status, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
