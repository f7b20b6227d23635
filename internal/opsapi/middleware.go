package opsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "image-collector/internal/common/errors"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "requestId"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error("Ops handler panic", map[string]interface{}{"path": r.URL.Path, "panic": rec})
				writeError(w, r, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), "internal server error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		h.log.Debug("Ops request", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    rec.status,
			"duration":  time.Since(start).String(),
			"requestId": requestIDFromContext(r.Context()),
		})
	})
}
