package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/models"
	"image-collector/internal/scheduler"
)

// QueueAdmin is the scheduler surface exposed to operators.
type QueueAdmin interface {
	QueueNames() []string
	AllCounts() map[string]scheduler.Counts
	Counts(queue string) (scheduler.Counts, error)
	Jobs(queue string, state scheduler.JobState, limit int) ([]scheduler.Job, error)
	GetJob(queue, jobID string) (scheduler.Job, error)
	Pause(queue string) error
	Resume(queue string) error
	RetryFailed(queue string) (int, error)
	Clean(queue string, grace time.Duration, state scheduler.JobState) (int, error)
	Remove(queue, jobID string) error
	Enqueue(ctx context.Context, queue string, payload models.JobPayload, opts scheduler.JobOptions) (scheduler.JobHandle, error)
}

// Approver applies manual review decisions to stored candidates.
type Approver interface {
	ForceApprove(ctx context.Context, key models.ItemKey, candidateID string) (*models.Item, error)
	SetPrimary(ctx context.Context, key models.ItemKey, candidateID string) (*models.Item, error)
}

// ReadinessFunc reports whether dependencies are reachable.
type ReadinessFunc func(ctx context.Context) error

type Handler struct {
	queues    QueueAdmin
	approver  Approver
	readiness ReadinessFunc
	log       logger.Logger
}

func NewHandler(queues QueueAdmin, approver Approver, ready ReadinessFunc, log logger.Logger) *Handler {
	return &Handler{
		queues:    queues,
		approver:  approver,
		readiness: ready,
		log:       log.WithFields(map[string]interface{}{"component": "opsapi"}),
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.readiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (h *Handler) listQueues(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.queues.AllCounts())
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	counts, err := h.queues.Counts(name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"name": name, "counts": counts})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	state := scheduler.JobState(r.URL.Query().Get("state"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidPayload), "limit must be a non-negative integer", "")
			return
		}
		limit = n
	}
	jobs, err := h.queues.Jobs(chi.URLParam(r, "queue"), state, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, jobs)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.queues.GetJob(chi.URLParam(r, "queue"), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, job)
}

func (h *Handler) removeJob(w http.ResponseWriter, r *http.Request) {
	if err := h.queues.Remove(chi.URLParam(r, "queue"), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pauseQueue(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *Handler) resumeQueue(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	name := chi.URLParam(r, "queue")
	op := h.queues.Resume
	if paused {
		op = h.queues.Pause
	}
	if err := op(name); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"queue": name, "paused": paused})
}

func (h *Handler) retryFailed(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	n, err := h.queues.RetryFailed(name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"queue": name, "retried": n})
}

// cleanQueue takes ?state=completed|failed and ?grace=<milliseconds>.
func (h *Handler) cleanQueue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	state := scheduler.JobState(r.URL.Query().Get("state"))
	if state == "" {
		state = scheduler.StateCompleted
	}
	if state != scheduler.StateCompleted && state != scheduler.StateFailed {
		writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidPayload), "state must be completed or failed", "")
		return
	}
	var grace time.Duration
	if raw := r.URL.Query().Get("grace"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidPayload), "grace must be milliseconds", "")
			return
		}
		grace = config.GetDuration(ms)
	}
	n, err := h.queues.Clean(name, grace, state)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]interface{}{"queue": name, "state": state, "removed": n})
}

// collectCategory enqueues a category collection. An already waiting or
// running collection of the same category is returned with 200.
func (h *Handler) collectCategory(w http.ResponseWriter, r *http.Request) {
	var payload models.CollectCategoryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidPayload), "invalid json body", err.Error())
		return
	}
	payload.Category = chi.URLParam(r, "category")

	handle, err := h.queues.Enqueue(r.Context(), config.QueueCollectCategory, payload, scheduler.JobOptions{
		JobID: config.QueueCollectCategory + ":" + payload.Category,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if handle.Existing {
		status = http.StatusOK
	}
	h.log.Info("Category collection requested", map[string]interface{}{
		"category": payload.Category, "jobId": handle.ID, "existing": handle.Existing,
	})
	writeSuccess(w, status, handle)
}

func (h *Handler) forceApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.approver.ForceApprove)
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.approver.SetPrimary)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, op func(context.Context, models.ItemKey, string) (*models.Item, error)) {
	key, err := models.ParseItemKey(chi.URLParam(r, "category") + "/" + chi.URLParam(r, "letter") + "/" + chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(apperrors.ErrCodeInvalidPayload), "invalid item key", err.Error())
		return
	}
	item, err := op(r.Context(), key, chi.URLParam(r, "candidateId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, item)
}
