package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finmate/finance-tracker-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// errorStatus maps domain errors to an HTTP status and a client-safe message.
// Causes wrapped in ErrRolloverFailed are inspected first.
func errorStatus(err error) (int, string) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var frequency *domain.ErrUnrecognizedFrequency
	var already *domain.ErrAlreadyRolledOver
	var conflict *domain.ErrConflict
	var versionConflict *domain.ErrVersionConflict
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	var persistence *domain.ErrPersistence

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &validation), errors.As(err, &frequency):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &already), errors.As(err, &conflict), errors.As(err, &versionConflict):
		return http.StatusConflict, err.Error()
	case errors.As(err, &circuitOpen):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.As(err, &forbidden):
		return http.StatusForbidden, err.Error()
	case errors.As(err, &persistence):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, msg := errorStatus(err)
	logServiceError(logger, status, err)
	writeError(w, status, msg)
}

func logServiceError(logger *zap.Logger, status int, err error) {
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		logger.Warn("access denied", zap.Int("status", status), zap.String("error", err.Error()))
	default:
		logger.Debug("request rejected", zap.Int("status", status), zap.String("error", err.Error()))
	}
}
