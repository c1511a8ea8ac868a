package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/internal/store"
)

var ErrInvalidAge = errors.New("reclaim age must be positive")

// ReclaimResult reports how many jobs a sweep forced to failed.
type ReclaimResult struct {
	Count int64 `json:"count"`
}

// Reclaimer forces jobs the engine abandoned into the failed state. It is
// operator triggered only and never scheduled.
type Reclaimer struct {
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewReclaimer(st store.Store, m *metrics.Metrics) *Reclaimer {
	return &Reclaimer{store: st, metrics: m, now: time.Now}
}

// ReclaimAll fails every non-terminal job, including ones still making
// progress. Running it twice in a row reclaims nothing the second time.
func (r *Reclaimer) ReclaimAll(ctx context.Context) (ReclaimResult, error) {
	return r.reclaim(ctx, store.ReclaimFilter{})
}

// ReclaimStale fails non-terminal jobs with no update for at least olderThan.
func (r *Reclaimer) ReclaimStale(ctx context.Context, olderThan time.Duration) (ReclaimResult, error) {
	if olderThan <= 0 {
		return ReclaimResult{}, ErrInvalidAge
	}
	return r.reclaim(ctx, store.ReclaimFilter{UpdatedBefore: r.now().Add(-olderThan)})
}

func (r *Reclaimer) reclaim(ctx context.Context, filter store.ReclaimFilter) (ReclaimResult, error) {
	n, err := r.store.ReclaimJobs(ctx, filter)
	if err != nil {
		return ReclaimResult{}, fmt.Errorf("reclaim jobs: %w", err)
	}
	if r.metrics != nil {
		r.metrics.ReclaimedJobs.Add(float64(n))
	}
	slog.Info("reclaimed stuck jobs", "count", n, "updated_before", filter.UpdatedBefore)
	return ReclaimResult{Count: n}, nil
}
