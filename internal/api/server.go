// Package api exposes the minimal read-only status surface described in
// SPEC_FULL.md §11.1: health, a single job lookup, and the Prometheus
// metrics endpoint. It replaces the teacher's producer-facing job-enqueue
// API (POST /jobs, /cancel, /dlq) — this spec's core never accepts job
// submissions itself, jobs arrive by being linked under pending directly
// — but keeps the teacher's chi router-plus-rate-limiter shape.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"joblifecycle/internal/jobs"
	"joblifecycle/internal/ratelimit"
	"joblifecycle/internal/store"
	"joblifecycle/internal/telemetry"
)

// Server wires the read-only status HTTP handlers.
type Server struct {
	store   store.Store
	limiter *ratelimit.TokenBucket
}

// New constructs the status API server.
func New(st store.Store, limiter *ratelimit.TokenBucket) *Server {
	return &Server{store: st, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Mount("/metrics", telemetry.Handler())
	return r
}

// pollAllowed checks the per-job poll bucket, scoping the limit to the
// job being read rather than the caller's address: a client hammering
// one job's status is throttled independent of how many distinct jobs
// it legitimately tracks. A nil limiter (rate limiting disabled) always
// allows.
func (s *Server) pollAllowed(ctx context.Context, jobID string) (bool, error) {
	if s.limiter == nil {
		return true, nil
	}
	allowed, _, err := s.limiter.Allow(ctx, ratelimit.JobPollKey(jobID))
	return allowed, err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.store.Head(ctx, store.ResourcesRoot()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type jobView struct {
	ID      string         `json:"id"`
	Service string         `json:"service"`
	Type    string         `json:"type"`
	Status  string         `json:"status"`
	Config  map[string]any `json:"config"`
	Result  any            `json:"result,omitempty"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	allowed, err := s.pollAllowed(r.Context(), id)
	if err != nil {
		http.Error(w, "rate limiter unavailable", http.StatusInternalServerError)
		return
	}
	if !allowed {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	path := store.ResourcesRoot() + "/" + id

	job, err := jobs.Load(r.Context(), s.store, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !job.IsJob {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobView{
		ID:      job.ID,
		Service: job.Service,
		Type:    job.Type,
		Status:  string(job.Status),
		Config:  job.Config,
		Result:  job.Result,
	})
}
