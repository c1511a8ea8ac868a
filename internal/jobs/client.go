// Package jobs submits analysis jobs to the remote engine and follows them to
// a terminal state by polling the persisted job row.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/cache"
	"github.com/kiranshivaraju/matchscope/internal/config"
	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/internal/store"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// terminalJobTTL bounds how long a finished job row stays in Redis.
const terminalJobTTL = 24 * time.Hour

// Submitter starts a job for a target.
type Submitter interface {
	Submit(ctx context.Context, targetID int64, sc models.SubmitContext) (uuid.UUID, error)
}

// Fetcher reads the current state of a job. A nil job with a nil error means
// the job does not exist.
type Fetcher interface {
	Fetch(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error)
}

// Client is the job store client: submissions go to the engine, reads go to
// the job table.
type Client struct {
	engine  engine.Client
	store   store.Store
	cache   cache.Cache
	policy  string
	metrics *metrics.Metrics
}

// NewClient builds a Client. c may be nil to disable caching of finished jobs.
func NewClient(eng engine.Client, st store.Store, c cache.Cache, policy string, m *metrics.Metrics) *Client {
	if policy == "" {
		policy = config.PolicyAllowDuplicate
	}
	return &Client{engine: eng, store: st, cache: c, policy: policy, metrics: m}
}

// Submit asks the engine to start an analysis for targetID. It does not retry.
// Every failure is a *SubmissionError.
func (c *Client) Submit(ctx context.Context, targetID int64, sc models.SubmitContext) (uuid.UUID, error) {
	id, err := c.submit(ctx, targetID, sc)
	if c.metrics != nil {
		c.metrics.JobsSubmitted.WithLabelValues(metrics.Result(err)).Inc()
	}
	if err != nil {
		return uuid.Nil, &SubmissionError{TargetID: targetID, Err: err}
	}
	slog.Info("analysis job submitted", "job_id", id, "target_id", targetID, "source", sc.Source)
	return id, nil
}

func (c *Client) submit(ctx context.Context, targetID int64, sc models.SubmitContext) (uuid.UUID, error) {
	if c.policy == config.PolicyRejectIfActive {
		active, err := c.store.FindActiveJob(ctx, targetID)
		switch {
		case err == nil:
			return uuid.Nil, fmt.Errorf("%w: job %s is %s", ErrJobActive, active.ID, active.Status)
		case !errors.Is(err, store.ErrNotFound):
			return uuid.Nil, fmt.Errorf("checking active jobs: %w", err)
		}
	}

	raw, err := c.engine.SubmitAnalysis(ctx, targetID, sc)
	if err != nil {
		return uuid.Nil, err
	}
	if raw == "" {
		return uuid.Nil, ErrNoJobID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q is not a job id", ErrNoJobID, raw)
	}
	return id, nil
}

// Fetch returns the current job row, or (nil, nil) when it does not exist.
// Finished jobs never change, so they are served from the cache once seen.
func (c *Client) Fetch(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error) {
	key := cache.JobKey(jobID)
	if job := c.cached(ctx, key); job != nil {
		return job, nil
	}

	job, err := c.store.GetAnalysisJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", jobID, err)
	}

	if job.Status.IsTerminal() && c.cache != nil {
		if data, err := json.Marshal(job); err == nil {
			if err := c.cache.Set(ctx, key, data, terminalJobTTL); err != nil {
				slog.Warn("failed to cache finished job", "job_id", jobID, "error", err)
			}
		}
	}
	return job, nil
}

func (c *Client) cached(ctx context.Context, key string) *models.AnalysisJob {
	if c.cache == nil {
		return nil
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("job cache read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var job models.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil
	}
	return &job
}
