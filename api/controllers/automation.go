package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexavest/nexavest-backend/api/responses"
	"github.com/nexavest/nexavest-backend/api/validators"
	"github.com/nexavest/nexavest-backend/internal/automation"
	"github.com/nexavest/nexavest-backend/pkg/logger"
)

// TriggerJob runs one automation job synchronously.
func TriggerJob(orch *automation.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := chi.URLParam(r, "job")
		if err := orch.Trigger(r.Context(), job); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": job, "status": "completed"})
	}
}

// PauseJob stops a job from running on scheduled ticks.
func PauseJob(orch *automation.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := chi.URLParam(r, "job")
		if err := orch.Pause(job); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": job, "status": "paused"})
	}
}

// ResumeJob re-enables scheduled runs.
func ResumeJob(orch *automation.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job := chi.URLParam(r, "job")
		if err := orch.Resume(job); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": job, "status": "resumed"})
	}
}

// AutomationStatus reports every registered job's state with its latest and
// projected next run.
func AutomationStatus(orch *automation.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := orch.Status(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statuses)
	}
}

// AutomationRuns lists recent run records, optionally filtered by job.
func AutomationRuns(orch *automation.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		job := validators.SanitizeString(r.URL.Query().Get("job"), 64)
		runs, err := orch.Runs(r.Context(), job, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, runs)
	}
}
