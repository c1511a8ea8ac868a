package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kiranshivaraju/matchscope/internal/api/response"
	"github.com/kiranshivaraju/matchscope/internal/jobs"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// BatchQueue is the part of the batch scheduler the API drives.
type BatchQueue interface {
	EnqueueMany(targetIDs []int64) int
	CancelQueue() int
	Status() models.BatchStatus
}

// Reclaimer marks abandoned jobs as failed.
type Reclaimer interface {
	ReclaimAll(ctx context.Context) (jobs.ReclaimResult, error)
	ReclaimStale(ctx context.Context, olderThan time.Duration) (jobs.ReclaimResult, error)
}

type enqueueRequest struct {
	TargetIDs []int64 `json:"target_ids" validate:"required,min=1,max=500,dive,gt=0"`
}

type enqueueResponse struct {
	Enqueued int                `json:"enqueued"`
	Status   models.BatchStatus `json:"status"`
}

// NewEnqueueBatchHandler returns an http.HandlerFunc for POST /api/v1/batch.
func NewEnqueueBatchHandler(q BatchQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if !decode(w, r, &req) {
			return
		}
		n := q.EnqueueMany(req.TargetIDs)
		response.Accepted(w, enqueueResponse{Enqueued: n, Status: q.Status()})
	}
}

// NewBatchStatusHandler returns an http.HandlerFunc for GET /api/v1/batch.
func NewBatchStatusHandler(q BatchQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, q.Status())
	}
}

// NewCancelBatchHandler returns an http.HandlerFunc for DELETE /api/v1/batch.
// Jobs already in flight keep running.
func NewCancelBatchHandler(q BatchQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, map[string]int{"cancelled": q.CancelQueue()})
	}
}

// NewReclaimHandler returns an http.HandlerFunc for
// POST /api/v1/admin/jobs/reclaim.
func NewReclaimHandler(rc Reclaimer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := rc.ReclaimAll(r.Context())
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		response.JSON(w, map[string]int64{"reclaimed": res.Count})
	}
}

type reclaimStaleRequest struct {
	OlderThan string `json:"older_than" validate:"required"`
}

// NewReclaimStaleHandler returns an http.HandlerFunc for
// POST /api/v1/admin/jobs/reclaim-stale.
func NewReclaimStaleHandler(rc Reclaimer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reclaimStaleRequest
		if !decode(w, r, &req) {
			return
		}
		age, err := time.ParseDuration(req.OlderThan)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"older_than must be a duration such as 30m", nil)
			return
		}

		res, err := rc.ReclaimStale(r.Context(), age)
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidAge) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
				return
			}
			upstreamError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"reclaimed": res.Count, "older_than": age.String()})
	}
}
