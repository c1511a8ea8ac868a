package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/matchscope/internal/api/response"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// CandidateFinder discovers predictions that need verification or a
// post-match analysis.
type CandidateFinder interface {
	FindVerifiableCandidates(ctx context.Context, from, to time.Time) ([]models.VerificationCandidate, error)
	FindMissingPostAnalysis(ctx context.Context, from, to time.Time) ([]models.CandidateSummary, error)
}

// BatchRunner sends targets to the engine's verification and post-analysis
// endpoints.
type BatchRunner interface {
	RunVerification(ctx context.Context, targetIDs []int64) (models.VerificationSummary, error)
	RunPostAnalysis(ctx context.Context, targetIDs []int64) (models.VerificationSummary, error)
}

// runRequest names targets directly or asks for discovery over a date range.
type runRequest struct {
	TargetIDs []int64 `json:"target_ids" validate:"omitempty,max=500,dive,gt=0"`
	From      string  `json:"from" validate:"required_without=TargetIDs"`
	To        string  `json:"to" validate:"required_without=TargetIDs"`
}

// NewVerificationCandidatesHandler returns an http.HandlerFunc for
// GET /api/v1/verification/candidates.
func NewVerificationCandidatesHandler(f CandidateFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, ok := queryRange(w, r)
		if !ok {
			return
		}
		found, err := f.FindVerifiableCandidates(r.Context(), from, to)
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		response.List(w, found, len(found))
	}
}

// NewPostAnalysisCandidatesHandler returns an http.HandlerFunc for
// GET /api/v1/post-analysis/candidates.
func NewPostAnalysisCandidatesHandler(f CandidateFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, ok := queryRange(w, r)
		if !ok {
			return
		}
		found, err := f.FindMissingPostAnalysis(r.Context(), from, to)
		if err != nil {
			upstreamError(w, r, err)
			return
		}
		response.List(w, found, len(found))
	}
}

// NewRunVerificationHandler returns an http.HandlerFunc for
// POST /api/v1/verification/run.
func NewRunVerificationHandler(f CandidateFinder, run BatchRunner) http.HandlerFunc {
	discover := func(ctx context.Context, from, to time.Time) ([]int64, error) {
		found, err := f.FindVerifiableCandidates(ctx, from, to)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(found))
		for i, c := range found {
			ids[i] = c.TargetID
		}
		return ids, nil
	}
	return runHandler(discover, run.RunVerification)
}

// NewRunPostAnalysisHandler returns an http.HandlerFunc for
// POST /api/v1/post-analysis/run.
func NewRunPostAnalysisHandler(f CandidateFinder, run BatchRunner) http.HandlerFunc {
	discover := func(ctx context.Context, from, to time.Time) ([]int64, error) {
		found, err := f.FindMissingPostAnalysis(ctx, from, to)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(found))
		for i, c := range found {
			ids[i] = c.TargetID
		}
		return ids, nil
	}
	return runHandler(discover, run.RunPostAnalysis)
}

type discoverFunc func(ctx context.Context, from, to time.Time) ([]int64, error)

type runFunc func(ctx context.Context, targetIDs []int64) (models.VerificationSummary, error)

func runHandler(discover discoverFunc, run runFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if !decode(w, r, &req) {
			return
		}

		ids := req.TargetIDs
		if len(ids) == 0 {
			from, to, err := parseRange(req.From, req.To)
			if err != nil {
				response.ValidationError(w, err)
				return
			}
			if ids, err = discover(r.Context(), from, to); err != nil {
				upstreamError(w, r, err)
				return
			}
		}

		sum, err := run(r.Context(), ids)
		if err != nil {
			// Only cancellation stops a run early. The partial summary goes
			// out as the error details.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("batch run interrupted", "path", r.URL.Path, "processed", sum.ProcessedCount, "error", err)
				response.Error(w, http.StatusServiceUnavailable, "RUN_INTERRUPTED",
					"The run was interrupted before all targets were processed", sum)
				return
			}
			upstreamError(w, r, err)
			return
		}
		response.JSON(w, sum)
	}
}

func queryRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		response.ValidationError(w, err)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
