package opsapi

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "image-collector/internal/common/errors"
)

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

type successResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, successResponse{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{
		Code: code, Message: message, Details: details, RequestID: requestIDFromContext(r.Context()),
	}})
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var se *apperrors.StandardError
	if !errors.As(err, &se) {
		writeError(w, r, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), "internal server error", "")
		return
	}
	writeError(w, r, statusFor(se.Code), string(se.Code), se.Message, se.Details)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeUnknownQueue, apperrors.ErrCodeJobNotFound, apperrors.ErrCodeItemNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeJobActive, apperrors.ErrCodeItemBusy, apperrors.ErrCodeNoPendingItems:
		return http.StatusConflict
	case apperrors.ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case apperrors.ErrCodeSourceUnavailable, apperrors.ErrCodeStorageFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
