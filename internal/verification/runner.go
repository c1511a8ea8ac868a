package verification

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// Operation names used in logs and metrics.
const (
	OpVerify       = "verify"
	OpPostAnalysis = "post_analysis"
)

type batchCall func(ctx context.Context, targetIDs []int64) (*engine.BatchResult, error)

// Runner sends targets to the engine one chunk at a time, pausing between
// calls.
type Runner struct {
	engine    engine.Client
	chunkSize int
	pacing    time.Duration
	metrics   *metrics.Metrics
}

func NewRunner(eng engine.Client, chunkSize int, pacing time.Duration, m *metrics.Metrics) *Runner {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Runner{engine: eng, chunkSize: chunkSize, pacing: pacing, metrics: m}
}

// RunVerification asks the engine to verify each target. A failing item is
// recorded in the summary and the run moves on. When ctx ends the summary so
// far is returned with ctx's error.
func (r *Runner) RunVerification(ctx context.Context, targetIDs []int64) (models.VerificationSummary, error) {
	return r.run(ctx, OpVerify, targetIDs, r.engine.Verify)
}

// RunPostAnalysis asks the engine to write post-match narratives, with the
// same pacing and failure handling as RunVerification.
func (r *Runner) RunPostAnalysis(ctx context.Context, targetIDs []int64) (models.VerificationSummary, error) {
	return r.run(ctx, OpPostAnalysis, targetIDs, r.engine.GeneratePostAnalysis)
}

func (r *Runner) run(ctx context.Context, op string, targetIDs []int64, call batchCall) (models.VerificationSummary, error) {
	summary := models.VerificationSummary{Items: []models.ItemResult{}}

	var cooldown *rate.Limiter
	for _, chunk := range chunkIDs(uniqueIDs(targetIDs), r.chunkSize) {
		if cooldown != nil {
			if err := cooldown.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				return summary, err
			}
		}

		res, err := call(ctx, chunk)
		cooldown = r.cooldown()
		if err != nil && ctx.Err() != nil {
			return summary, ctx.Err()
		}

		items := chunkResults(chunk, res, err)
		for _, it := range items {
			summary.ProcessedCount += it.Processed
			r.count(op, it.OK)
			if !it.OK {
				slog.Warn("engine call failed for target", "operation", op, "target_id", it.TargetID, "error", it.Error)
			}
		}
		summary.Items = append(summary.Items, items...)
	}

	slog.Info("engine batch run finished", "operation", op,
		"targets", len(summary.Items), "processed", summary.ProcessedCount)
	return summary, nil
}

// cooldown returns a limiter whose only token was spent just now, so the next
// call waits a full pacing interval after the previous one returned.
func (r *Runner) cooldown() *rate.Limiter {
	if r.pacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l := rate.NewLimiter(rate.Every(r.pacing), 1)
	l.Allow()
	return l
}

// chunkResults turns one engine answer into per-target results. A single
// target chunk gets the whole processed count; in larger chunks each target
// the engine reports without error counts once.
func chunkResults(chunk []int64, res *engine.BatchResult, err error) []models.ItemResult {
	items := make([]models.ItemResult, len(chunk))
	for i, id := range chunk {
		items[i] = models.ItemResult{TargetID: id}
	}

	switch {
	case err != nil:
		for i := range items {
			items[i].Error = err.Error()
		}
		return items
	case res == nil || !res.Success:
		msg := "engine reported failure"
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		for i := range items {
			items[i].Error = msg
		}
		return items
	}

	details := make(map[int64]engine.ItemDetail, len(res.Details))
	for _, d := range res.Details {
		details[d.TargetID] = d
	}
	for i := range items {
		d, ok := details[items[i].TargetID]
		if ok && d.Error != "" {
			items[i].Error = d.Error
			continue
		}
		items[i].OK = true
		if ok {
			items[i].Processed = 1
		}
	}
	if len(chunk) == 1 && items[0].OK {
		items[0].Processed = res.ProcessedCount
	}
	return items
}

func (r *Runner) count(op string, ok bool) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.metrics.VerificationItems.WithLabelValues(op, result).Inc()
}
