package opsapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/queues", func(r chi.Router) {
		r.Get("/", h.listQueues)
		r.Route("/{queue}", func(r chi.Router) {
			r.Get("/", h.getQueue)
			r.Get("/jobs", h.listJobs)
			r.Get("/jobs/{id}", h.getJob)
			r.Delete("/jobs/{id}", h.removeJob)
			r.Post("/pause", h.pauseQueue)
			r.Post("/resume", h.resumeQueue)
			r.Post("/retry-failed", h.retryFailed)
			r.Post("/clean", h.cleanQueue)
		})
	})

	r.Post("/categories/{category}/collect", h.collectCategory)
	r.Route("/items/{category}/{letter}/{name}/images/{candidateId}", func(r chi.Router) {
		r.Post("/approve", h.forceApprove)
		r.Post("/primary", h.setPrimary)
	})
	return r
}
