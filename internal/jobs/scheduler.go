package jobs

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// Batch outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Scheduler admits queued targets to the engine a few at a time. With a
// concurrency of one it submits strictly in FIFO order and owns at most one
// unfinished job at any moment.
type Scheduler struct {
	submitter   Submitter
	watcher     Watcher
	concurrency int
	metrics     *metrics.Metrics
	notify      chan struct{}
	now         func() time.Time

	mu        sync.Mutex
	queue     []models.BatchQueueEntry
	inFlight  map[uint64]*slot
	nextSlot  uint64
	completed int
	failed    int
	abandoned int
}

type slot struct {
	seq      uint64
	targetID int64
	cancel   func()
}

func NewScheduler(s Submitter, w Watcher, concurrency int, m *metrics.Metrics) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		submitter:   s,
		watcher:     w,
		concurrency: concurrency,
		metrics:     m,
		notify:      make(chan struct{}, 1),
		now:         time.Now,
		inFlight:    make(map[uint64]*slot),
	}
}

// EnqueueMany appends targets to the queue in order and returns the new depth.
// Duplicates are kept; each entry becomes its own job.
func (s *Scheduler) EnqueueMany(targetIDs []int64) int {
	now := s.now().UTC()

	s.mu.Lock()
	for _, id := range targetIDs {
		s.queue = append(s.queue, models.BatchQueueEntry{TargetID: id, EnqueuedAt: now})
	}
	depth := len(s.queue)
	s.mu.Unlock()

	s.setDepth(depth)
	s.Notify()
	return depth
}

// CancelQueue drops every entry that has not been submitted yet and returns
// how many were dropped. Jobs already in flight keep running.
func (s *Scheduler) CancelQueue() int {
	s.mu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.setDepth(0)
	return n
}

// Status returns a snapshot of the queue and counters.
func (s *Scheduler) Status() models.BatchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.BatchStatus{
		QueueDepth: len(s.queue),
		InFlight:   make([]int64, 0, len(s.inFlight)),
		Completed:  s.completed,
		Failed:     s.failed,
		Abandoned:  s.abandoned,
	}

	slots := make([]*slot, 0, len(s.inFlight))
	for _, sl := range s.inFlight {
		slots = append(slots, sl)
	}
	slices.SortFunc(slots, func(a, b *slot) int { return cmp.Compare(a.seq, b.seq) })
	for _, sl := range slots {
		st.InFlight = append(st.InFlight, sl.targetID)
	}
	if len(slots) > 0 {
		id := slots[0].targetID
		st.CurrentTargetID = &id
	}
	return st
}

// Notify wakes the run loop. Non-blocking.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run advances the queue until ctx is cancelled. On return the in-flight slots
// are released and counted as abandoned; queued entries stay queued for a
// later Run.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.dispatch(ctx)

		select {
		case <-ctx.Done():
			s.stopWatches()
			return
		case <-s.notify:
		}
	}
}

// dispatch fills free slots from the head of the queue.
func (s *Scheduler) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	var started []*slot
	for len(s.inFlight) < s.concurrency && len(s.queue) > 0 {
		entry := s.queue[0]
		s.queue = s.queue[1:]
		s.nextSlot++
		sl := &slot{seq: s.nextSlot, targetID: entry.TargetID}
		s.inFlight[sl.seq] = sl
		started = append(started, sl)
	}
	depth := len(s.queue)
	s.mu.Unlock()

	s.setDepth(depth)
	for _, sl := range started {
		go s.start(ctx, sl)
	}
}

func (s *Scheduler) start(ctx context.Context, sl *slot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("batch slot panicked", "target_id", sl.targetID, "panic", r)
			s.finish(sl, OutcomeFailed)
		}
	}()

	jobID, err := s.submitter.Submit(ctx, sl.targetID, models.SubmitContext{Source: models.SourceBatch})
	if err != nil {
		slog.Error("batch submit failed", "target_id", sl.targetID, "error", err)
		s.finish(sl, OutcomeFailed)
		return
	}

	cancel := s.watcher.Watch(ctx, jobID, func(u Update) { s.onUpdate(sl, jobID, u) })

	s.mu.Lock()
	_, live := s.inFlight[sl.seq]
	sl.cancel = cancel
	s.mu.Unlock()
	if !live {
		cancel()
	}
}

func (s *Scheduler) onUpdate(sl *slot, jobID uuid.UUID, u Update) {
	if u.JobID != jobID {
		slog.Debug("discarding update for another job", "want", jobID, "got", u.JobID)
		return
	}
	if !u.Terminal() {
		slog.Info("batch job progressed", "job_id", jobID, "target_id", sl.targetID, "status", u.Status())
		return
	}

	outcome := OutcomeFailed
	if u.Status() == models.JobStatusDone {
		outcome = OutcomeCompleted
	}
	slog.Info("batch job finished", "job_id", jobID, "target_id", sl.targetID,
		"status", u.Status(), "vanished", u.Vanished(), "outcome", outcome)
	s.finish(sl, outcome)
}

// finish frees the slot and counts the outcome once.
func (s *Scheduler) finish(sl *slot, outcome string) {
	s.mu.Lock()
	if _, ok := s.inFlight[sl.seq]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.inFlight, sl.seq)
	if outcome == OutcomeCompleted {
		s.completed++
	} else {
		s.failed++
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BatchJobs.WithLabelValues(outcome).Inc()
	}
	s.Notify()
}

// stopWatches releases every in-flight slot. A slot still submitting cancels
// its watch itself once it sees the slot is gone.
func (s *Scheduler) stopWatches() {
	s.mu.Lock()
	n := len(s.inFlight)
	var cancels []func()
	for seq, sl := range s.inFlight {
		if sl.cancel != nil {
			cancels = append(cancels, sl.cancel)
		}
		delete(s.inFlight, seq)
		s.abandoned++
	}
	s.mu.Unlock()

	if n > 0 {
		slog.Info("batch scheduler stopped with jobs in flight", "abandoned", n)
	}

	for _, cancel := range cancels {
		cancel()
	}
}

func (s *Scheduler) setDepth(depth int) {
	if s.metrics != nil {
		s.metrics.BatchQueueDepth.Set(float64(depth))
	}
}
