package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/events"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

const publishTimeout = 5 * time.Second

// Tracker follows individually submitted jobs and publishes every observed
// transition. After a job is done it waits the settle delay and then
// announces that the report can be read.
type Tracker struct {
	watcher   Watcher
	publisher events.Publisher
	settle    time.Duration
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[uuid.UUID]func()
}

func NewTracker(w Watcher, p events.Publisher, settle time.Duration) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		watcher:   w,
		publisher: p,
		settle:    settle,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[uuid.UUID]func()),
	}
}

// Track starts following jobID. It returns false when the job is already
// tracked or the tracker is stopped.
func (t *Tracker) Track(jobID uuid.UUID, targetID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return false
	}
	if _, ok := t.active[jobID]; ok {
		return false
	}

	t.wg.Add(1)
	done := make(chan struct{})
	var finished sync.Once
	cancel := t.watcher.Watch(t.ctx, jobID, func(u Update) {
		if t.handle(targetID, u) {
			finished.Do(func() { close(done) })
		}
	})
	t.active[jobID] = cancel

	go func() {
		defer t.wg.Done()
		select {
		case <-done:
		case <-t.ctx.Done():
		}
		t.mu.Lock()
		delete(t.active, jobID)
		t.mu.Unlock()
		cancel()
	}()
	return true
}

// Active returns how many jobs are being tracked.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Stop cancels every watch and waits for the trackers to exit.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
}

// handle publishes u and reports whether tracking is over.
func (t *Tracker) handle(targetID int64, u Update) bool {
	ev := events.JobEvent{
		JobID:    u.JobID,
		TargetID: targetID,
		Status:   u.Status(),
		Kind:     events.KindTransition,
		At:       t.now().UTC(),
	}
	if u.Vanished() {
		ev.Kind = events.KindVanished
	}
	if err := TerminalError(u.JobID, u.Job); err != nil {
		ev.Message = err.Error()
	}
	t.publish(ev)

	if !u.Terminal() {
		return false
	}
	if u.Status() == models.JobStatusDone {
		timer := time.NewTimer(t.settle)
		defer timer.Stop()
		select {
		case <-t.ctx.Done():
			return true
		case <-timer.C:
		}
		ev.Kind = events.KindReportReady
		ev.At = t.now().UTC()
		t.publish(ev)
	}
	return true
}

func (t *Tracker) publish(ev events.JobEvent) {
	ctx, cancel := context.WithTimeout(t.ctx, publishTimeout)
	defer cancel()
	if err := t.publisher.PublishJobEvent(ctx, ev); err != nil {
		slog.Warn("failed to publish job event", "job_id", ev.JobID, "kind", ev.Kind, "error", err)
	}
}
