package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/events"
	"github.com/kiranshivaraju/matchscope/internal/store"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// --- engine ---

type mockEngine struct {
	mu       sync.Mutex
	calls    []int64
	contexts []models.SubmitContext
	jobID    string
	err      error
}

func (m *mockEngine) SubmitAnalysis(_ context.Context, targetID int64, sc models.SubmitContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, targetID)
	m.contexts = append(m.contexts, sc)
	return m.jobID, m.err
}

func (m *mockEngine) Verify(context.Context, []int64) (*engine.BatchResult, error) {
	return &engine.BatchResult{Success: true}, nil
}

func (m *mockEngine) GeneratePostAnalysis(context.Context, []int64) (*engine.BatchResult, error) {
	return &engine.BatchResult{Success: true}, nil
}

// --- store ---

type mockStore struct {
	mu            sync.Mutex
	jobs          map[uuid.UUID]*models.AnalysisJob
	getErr        error
	getCalls      int
	active        *models.AnalysisJob
	activeCalls   int
	reclaimCount  int64
	reclaimErr    error
	reclaimFilter *store.ReclaimFilter
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[uuid.UUID]*models.AnalysisJob)}
}

func (m *mockStore) put(job *models.AnalysisJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) GetAPIKeyByPrefix(context.Context, string) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *mockStore) UpdateAPIKeyLastUsed(context.Context, uuid.UUID) error { return nil }

func (m *mockStore) CreateAPIKey(context.Context, *models.APIKey) error { return nil }

func (m *mockStore) GetAnalysisJob(_ context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockStore) FindActiveJob(context.Context, int64) (*models.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCalls++
	if m.active == nil {
		return nil, store.ErrNotFound
	}
	return m.active, nil
}

func (m *mockStore) ReclaimJobs(_ context.Context, filter store.ReclaimFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimFilter = &filter
	return m.reclaimCount, m.reclaimErr
}

func (m *mockStore) ListUnresolvedPredictions(context.Context) ([]*models.Prediction, error) {
	return nil, nil
}

func (m *mockStore) ListResolvedWithoutPostAnalysis(context.Context, time.Time, time.Time) ([]*models.Prediction, error) {
	return nil, nil
}

// --- cache ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok, _ := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

// --- fetcher ---

// scriptedFetcher replays a fixed sequence of reads; the last one repeats.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

type fetchStep struct {
	job *models.AnalysisJob
	err error
}

func (f *scriptedFetcher) Fetch(context.Context, uuid.UUID) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	return f.steps[i].job, f.steps[i].err
}

func (f *scriptedFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func jobAt(id uuid.UUID, status models.JobStatus) *models.AnalysisJob {
	return &models.AnalysisJob{ID: id, TargetID: 1, Status: status}
}

// --- submitter ---

type fakeSubmitter struct {
	mu    sync.Mutex
	order []int64
	fail  map[int64]error
}

func (s *fakeSubmitter) Submit(_ context.Context, targetID int64, sc models.SubmitContext) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, targetID)
	if err, ok := s.fail[targetID]; ok {
		return uuid.Nil, &SubmissionError{TargetID: targetID, Err: err}
	}
	return uuid.New(), nil
}

func (s *fakeSubmitter) submitted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.order...)
}

// --- watchers ---

// manualWatcher records watches; tests deliver updates by hand.
type manualWatcher struct {
	mu      sync.Mutex
	watches []*manualWatch
}

type manualWatch struct {
	jobID     uuid.UUID
	onUpdate  func(Update)
	cancelled atomic.Bool
}

func (w *manualWatcher) Watch(_ context.Context, jobID uuid.UUID, onUpdate func(Update)) func() {
	mw := &manualWatch{jobID: jobID, onUpdate: onUpdate}
	w.mu.Lock()
	w.watches = append(w.watches, mw)
	w.mu.Unlock()
	return func() { mw.cancelled.Store(true) }
}

func (w *manualWatcher) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watches)
}

func (w *manualWatcher) get(i int) *manualWatch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watches[i]
}

func (mw *manualWatch) send(status models.JobStatus) {
	mw.onUpdate(Update{JobID: mw.jobID, Job: jobAt(mw.jobID, status)})
}

// finishingWatcher reports every watched job as terminal right away.
type finishingWatcher struct {
	status models.JobStatus
}

func (w finishingWatcher) Watch(_ context.Context, jobID uuid.UUID, onUpdate func(Update)) func() {
	go onUpdate(Update{JobID: jobID, Job: jobAt(jobID, w.status)})
	return func() {}
}

// --- publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, ev events.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func (p *recordingPublisher) all() []events.JobEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.JobEvent(nil), p.events...)
}
