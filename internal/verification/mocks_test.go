package verification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/store"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// --- store ---

// predictionStore keeps predictions in memory and answers the two discovery
// queries the way the Postgres store does.
type predictionStore struct {
	store.Store // unused methods panic

	mu       sync.Mutex
	preds    []*models.Prediction
	listErr  error
	lastFrom time.Time
	lastTo   time.Time
}

func (s *predictionStore) add(targetID int64, status string, createdAt time.Time) *models.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Prediction{
		ID:                 uuid.New(),
		TargetID:           targetID,
		HomeLabel:          "Home",
		AwayLabel:          "Away",
		VerificationStatus: status,
		CreatedAt:          createdAt,
	}
	s.preds = append(s.preds, p)
	return p
}

func (s *predictionStore) resolve(targetID int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.preds {
		if p.TargetID == targetID {
			p.VerificationStatus = status
		}
	}
}

func (s *predictionStore) ListUnresolvedPredictions(context.Context) ([]*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []*models.Prediction{}
	for _, p := range s.preds {
		if p.VerificationStatus == models.VerificationUnresolved {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *predictionStore) ListResolvedWithoutPostAnalysis(_ context.Context, from, to time.Time) ([]*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrom, s.lastTo = from, to
	out := []*models.Prediction{}
	for _, p := range s.preds {
		if p.VerificationStatus == models.VerificationUnresolved || p.PostAnalysis != nil {
			continue
		}
		if p.CreatedAt.Before(from) || p.CreatedAt.After(to) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// --- fixtures ---

type fakeFixtures struct {
	mu      sync.Mutex
	matches map[int64]models.MatchMeta
	err     error
	calls   [][]int64
	// failOn fails any chunk that contains one of these ids.
	failOn map[int64]error
}

func newFakeFixtures(matches ...models.MatchMeta) *fakeFixtures {
	f := &fakeFixtures{matches: make(map[int64]models.MatchMeta)}
	for _, m := range matches {
		f.matches[m.TargetID] = m
	}
	return f
}

func (f *fakeFixtures) GetMatches(_ context.Context, ids []int64) ([]models.MatchMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]int64(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	for _, id := range ids {
		if err, ok := f.failOn[id]; ok {
			return nil, err
		}
	}
	var out []models.MatchMeta
	for _, id := range ids {
		if m, ok := f.matches[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeFixtures) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func match(id int64, status string, kickoff time.Time) models.MatchMeta {
	return models.MatchMeta{TargetID: id, Kickoff: kickoff, StatusShort: status, HomeLabel: "Home", AwayLabel: "Away"}
}

// --- engine ---

type fakeEngine struct {
	mu       sync.Mutex
	calls    [][]int64
	callTime []time.Time
	doneTime []time.Time
	latency  time.Duration
	respond  func(ids []int64) (*engine.BatchResult, error)
}

func (e *fakeEngine) SubmitAnalysis(context.Context, int64, models.SubmitContext) (string, error) {
	return "", nil
}

func (e *fakeEngine) Verify(_ context.Context, ids []int64) (*engine.BatchResult, error) {
	return e.record(ids)
}

func (e *fakeEngine) GeneratePostAnalysis(_ context.Context, ids []int64) (*engine.BatchResult, error) {
	return e.record(ids)
}

func (e *fakeEngine) record(ids []int64) (*engine.BatchResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]int64(nil), ids...))
	e.callTime = append(e.callTime, time.Now())
	respond := e.respond
	e.mu.Unlock()

	if e.latency > 0 {
		time.Sleep(e.latency)
	}
	e.mu.Lock()
	e.doneTime = append(e.doneTime, time.Now())
	e.mu.Unlock()

	if respond == nil {
		return &engine.BatchResult{Success: true, ProcessedCount: len(ids)}, nil
	}
	return respond(ids)
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
