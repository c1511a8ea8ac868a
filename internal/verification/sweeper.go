package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// Sweeper periodically verifies every finished match in a trailing window.
type Sweeper struct {
	discovery *Discovery
	runner    *Runner
	window    time.Duration
	cron      *cron.Cron
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweeper schedules a sweep on the standard five-field cron expression.
// A run that is still going when the next one is due makes the next one skip.
func NewSweeper(d *Discovery, r *Runner, schedule string, window time.Duration) (*Sweeper, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		discovery: d,
		runner:    r,
		window:    window,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(s.ctx); err != nil {
			slog.Error("verification sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid verification schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop cancels a running sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// RunOnce discovers verifiable targets over the trailing window and verifies
// them.
func (s *Sweeper) RunOnce(ctx context.Context) (models.VerificationSummary, error) {
	to := s.now().UTC()
	from := to.Add(-s.window)

	ids, err := s.discovery.FindVerifiable(ctx, from, to)
	if err != nil {
		return models.VerificationSummary{}, err
	}
	if len(ids) == 0 {
		slog.Debug("verification sweep found nothing to verify")
		return models.VerificationSummary{Items: []models.ItemResult{}}, nil
	}

	slog.Info("verification sweep starting", "targets", len(ids), "from", from, "to", to)
	return s.runner.RunVerification(ctx, ids)
}
