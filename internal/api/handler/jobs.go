package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/api/response"
	"github.com/kiranshivaraju/matchscope/internal/jobs"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// JobTracker follows a submitted job in the background.
type JobTracker interface {
	Track(jobID uuid.UUID, targetID int64) bool
}

type submitJobRequest struct {
	TargetID     int64 `json:"target_id" validate:"required,gt=0"`
	ForceRefresh bool  `json:"force_refresh"`
}

type submitJobResponse struct {
	JobID    uuid.UUID        `json:"job_id"`
	TargetID int64            `json:"target_id"`
	Status   models.JobStatus `json:"status"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitJobHandler(s jobs.Submitter, t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitJobRequest
		if !decode(w, r, &req) {
			return
		}

		jobID, err := s.Submit(r.Context(), req.TargetID, models.SubmitContext{
			Source:       models.SourceManual,
			ForceRefresh: req.ForceRefresh,
		})
		if err != nil {
			switch {
			case errors.Is(err, jobs.ErrJobActive):
				response.Error(w, http.StatusConflict, "JOB_ACTIVE",
					"An analysis for this target is already running", map[string]int64{"target_id": req.TargetID})
			case errors.Is(err, jobs.ErrNoJobID):
				response.Error(w, http.StatusBadGateway, "ENGINE_UNAVAILABLE",
					"The analysis engine did not return a job id", nil)
			default:
				upstreamError(w, r, err)
			}
			return
		}

		if t != nil && !t.Track(jobID, req.TargetID) {
			slog.Warn("job not tracked", "job_id", jobID, "target_id", req.TargetID)
		}

		response.Accepted(w, submitJobResponse{
			JobID:    jobID,
			TargetID: req.TargetID,
			Status:   models.JobStatusQueued,
		})
	}
}

type jobView struct {
	*models.AnalysisJob
	Terminal bool   `json:"terminal"`
	Failure  string `json:"failure,omitempty"`
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(f jobs.Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		job, err := f.Fetch(r.Context(), jobID)
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		if job == nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		view := jobView{AnalysisJob: job, Terminal: job.Status.IsTerminal()}
		var tf *jobs.TerminalFailure
		if errors.As(jobs.TerminalError(jobID, job), &tf) {
			view.Failure = tf.Message
		}
		response.JSON(w, view)
	}
}
