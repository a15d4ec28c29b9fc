package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/CZERTAINLY/sensord/internal/hal"
	"github.com/CZERTAINLY/sensord/internal/sched"
	"github.com/CZERTAINLY/sensord/internal/service"
)

type ErrorCode string

const (
	ErrValidation  ErrorCode = "VALIDATION_ERROR"
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrUnavailable ErrorCode = "UNAVAILABLE"
	ErrInternal    ErrorCode = "INTERNAL_ERROR"
)

type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the envelope of every answer.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
}

func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil)
}

func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil)
}

func respondAccepted(w http.ResponseWriter, reqID string) {
	respondJSON(w, http.StatusAccepted, reqID, nil, nil)
}

func respondError(w http.ResponseWriter, reqID string, status int, apiErr *APIError) {
	respondJSON(w, status, reqID, nil, apiErr)
}

// respondErr maps backend errors to status codes.
func respondErr(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownSensor), errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoJournal):
		respondError(w, reqID, http.StatusNotFound, &APIError{Code: ErrNotFound, Message: err.Error()})
	case errors.Is(err, hal.ErrUnknownKind):
		respondError(w, reqID, http.StatusBadRequest, &APIError{Code: ErrValidation, Message: err.Error()})
	case errors.Is(err, sched.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		respondError(w, reqID, http.StatusServiceUnavailable, &APIError{Code: ErrUnavailable, Message: err.Error()})
	default:
		respondError(w, reqID, http.StatusInternalServerError, &APIError{Code: ErrInternal, Message: err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, apiErr *APIError) {
	resp := Response{
		RequestID: reqID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Error:     apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
