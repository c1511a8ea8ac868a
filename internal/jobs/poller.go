package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// Update is one observed change of a watched job.
type Update struct {
	JobID uuid.UUID
	// Job is nil when the job row no longer exists.
	Job *models.AnalysisJob
}

// Vanished reports whether the job disappeared while being watched.
func (u Update) Vanished() bool { return u.Job == nil }

// Status is the observed status, empty for a vanished job.
func (u Update) Status() models.JobStatus {
	if u.Job == nil {
		return ""
	}
	return u.Job.Status
}

// Terminal reports whether no further update will follow.
func (u Update) Terminal() bool {
	return u.Job == nil || u.Job.Status.IsTerminal()
}

// Watcher follows a job and reports status changes.
type Watcher interface {
	Watch(ctx context.Context, jobID uuid.UUID, onUpdate func(Update)) (cancel func())
}

// Poller watches jobs by reading them on a fixed interval.
type Poller struct {
	fetcher  Fetcher
	interval time.Duration
	metrics  *metrics.Metrics
}

func NewPoller(f Fetcher, interval time.Duration, m *metrics.Metrics) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{fetcher: f, interval: interval, metrics: m}
}

// Watch reads the job immediately and then every interval until it reaches a
// terminal state, ctx ends or cancel is called. onUpdate runs on the watch
// goroutine and only when the status changed; backward moves are dropped.
//
// cancel is idempotent, safe after the watch ended on its own, and does not
// wait for an in-flight read. It does wait for a running onUpdate, so once it
// has returned no callback is running or will run. onUpdate must not call
// cancel itself.
func (p *Poller) Watch(ctx context.Context, jobID uuid.UUID, onUpdate func(Update)) func() {
	ctx, stop := context.WithCancel(ctx)
	w := &watch{poller: p, jobID: jobID, onUpdate: onUpdate}

	go w.run(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			w.mu.Lock()
			w.cancelled = true
			w.mu.Unlock()
		})
	}
}

type watch struct {
	poller   *Poller
	jobID    uuid.UUID
	onUpdate func(Update)
	last     models.JobStatus

	// mu is held across the cancelled check and the callback.
	mu        sync.Mutex
	cancelled bool
}

func (w *watch) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job watch panicked", "job_id", w.jobID, "panic", r)
		}
	}()

	ticker := time.NewTicker(w.poller.interval)
	defer ticker.Stop()

	for {
		if w.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one read and reports whether the watch is over.
func (w *watch) poll(ctx context.Context) bool {
	job, err := w.poller.fetcher.Fetch(ctx, w.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		perr := &PollError{JobID: w.jobID, Err: err}
		slog.Warn("job poll failed", "job_id", w.jobID, "error", perr)
		if w.poller.metrics != nil {
			w.poller.metrics.PollErrors.Inc()
		}
		return false
	}

	if job == nil {
		w.deliver(Update{JobID: w.jobID})
		return true
	}

	next := job.Status
	if next == w.last {
		return false
	}
	if w.last != "" && w.last.IsKnown() && next.IsKnown() && !models.CanTransition(w.last, next) {
		slog.Warn("ignoring backward job status", "job_id", w.jobID, "from", w.last, "to", next)
		return false
	}

	w.last = next
	w.deliver(Update{JobID: w.jobID, Job: job})
	return next.IsTerminal()
}

func (w *watch) deliver(u Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return
	}
	w.onUpdate(u)
}
