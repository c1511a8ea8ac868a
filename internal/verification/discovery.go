// Package verification finds predictions whose matches have finished and
// drives the engine's verification and post-analysis calls over them.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/matchscope/internal/cache"
	"github.com/kiranshivaraju/matchscope/internal/fixtures"
	"github.com/kiranshivaraju/matchscope/internal/store"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// finishedMatchTTL bounds how long finished match metadata stays cached.
const finishedMatchTTL = 30 * 24 * time.Hour

// Discovery works out which targets are ready for verification or still need
// a post-match narrative.
type Discovery struct {
	store            store.Store
	fixtures         fixtures.Client
	cache            cache.Cache
	fetchConcurrency int
	lookback         time.Duration
}

// NewDiscovery builds a Discovery. c may be nil to always ask the fixture
// source.
func NewDiscovery(st store.Store, fx fixtures.Client, c cache.Cache, fetchConcurrency int, lookback time.Duration) *Discovery {
	if fetchConcurrency <= 0 {
		fetchConcurrency = 1
	}
	return &Discovery{
		store:            st,
		fixtures:         fx,
		cache:            c,
		fetchConcurrency: fetchConcurrency,
		lookback:         lookback,
	}
}

// FindVerifiable returns the ids of targets with an unresolved prediction
// whose match finished between from and to, both days inclusive.
func (d *Discovery) FindVerifiable(ctx context.Context, from, to time.Time) ([]int64, error) {
	candidates, err := d.FindVerifiableCandidates(ctx, from, to)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.TargetID
	}
	return ids, nil
}

// FindVerifiableCandidates is FindVerifiable with the match details attached.
// Only targets that have a local unresolved prediction are ever looked up
// externally.
func (d *Discovery) FindVerifiableCandidates(ctx context.Context, from, to time.Time) ([]models.VerificationCandidate, error) {
	preds, err := d.store.ListUnresolvedPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unresolved predictions: %w", err)
	}
	candidates := []models.VerificationCandidate{}
	if len(preds) == 0 {
		return candidates, nil
	}

	ids := make([]int64, 0, len(preds))
	for _, p := range preds {
		ids = append(ids, p.TargetID)
	}
	ids = uniqueIDs(ids)

	meta, err := d.matches(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		m, ok := meta[id]
		if !ok || !m.IsFinished() || !withinDays(m.Kickoff, from, to) {
			continue
		}
		candidates = append(candidates, models.VerificationCandidate{
			TargetID:  id,
			MatchDate: m.Kickoff,
			HomeLabel: m.HomeLabel,
			AwayLabel: m.AwayLabel,
		})
	}
	return candidates, nil
}

// FindMissingPostAnalysis returns resolved predictions without a narrative
// whose match was played between from and to. Predictions are created before
// kickoff, so the local query reaches back by the lookback window.
func (d *Discovery) FindMissingPostAnalysis(ctx context.Context, from, to time.Time) ([]models.CandidateSummary, error) {
	start := startOfDay(from).Add(-d.lookback)
	end := startOfDay(to).AddDate(0, 0, 1).Add(-time.Nanosecond)

	preds, err := d.store.ListResolvedWithoutPostAnalysis(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list resolved predictions: %w", err)
	}
	out := []models.CandidateSummary{}
	if len(preds) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(preds))
	for _, p := range preds {
		ids = append(ids, p.TargetID)
	}

	meta, err := d.matches(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}

	for _, p := range preds {
		m, ok := meta[p.TargetID]
		if !ok || !withinDays(m.Kickoff, from, to) {
			continue
		}
		out = append(out, models.CandidateSummary{
			PredictionID:       p.ID,
			TargetID:           p.TargetID,
			MatchDate:          m.Kickoff,
			HomeLabel:          m.HomeLabel,
			AwayLabel:          m.AwayLabel,
			VerificationStatus: p.VerificationStatus,
		})
	}
	return out, nil
}

// matches resolves metadata for ids, from the cache where possible and from
// the fixture source in bounded parallel chunks otherwise. Ids the source does
// not know are absent from the result, as are the ids of a chunk whose fetch
// failed. An error is returned only when every chunk failed.
func (d *Discovery) matches(ctx context.Context, ids []int64) (map[int64]models.MatchMeta, error) {
	out := d.cachedMatches(ctx, ids)

	var missing []int64
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	chunks := chunkIDs(missing, fixtures.MaxIDsPerRequest)

	var (
		mu       sync.Mutex
		failed   int
		firstErr error
		g        errgroup.Group
	)
	g.SetLimit(d.fetchConcurrency)

	for _, chunk := range chunks {
		g.Go(func() error {
			matches, err := d.fixtures.GetMatches(ctx, chunk)
			if err != nil {
				slog.Warn("match metadata chunk failed, skipping its targets",
					"first_id", chunk[0], "size", len(chunk), "error", err)
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, m := range matches {
				out[m.TargetID] = m
			}
			mu.Unlock()
			d.cacheFinished(ctx, matches)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == len(chunks) {
		return nil, fmt.Errorf("fetch match metadata: %w", firstErr)
	}
	return out, nil
}

func (d *Discovery) cachedMatches(ctx context.Context, ids []int64) map[int64]models.MatchMeta {
	out := make(map[int64]models.MatchMeta, len(ids))
	if d.cache == nil {
		return out
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = cache.MatchKey(id)
	}
	hits, err := d.cache.GetMany(ctx, keys)
	if err != nil {
		slog.Warn("match cache read failed", "error", err)
		return out
	}

	for _, data := range hits {
		var m models.MatchMeta
		if err := json.Unmarshal(data, &m); err != nil || !m.IsFinished() {
			continue
		}
		out[m.TargetID] = m
	}
	return out
}

// cacheFinished stores metadata for matches that can no longer change.
func (d *Discovery) cacheFinished(ctx context.Context, matches []models.MatchMeta) {
	if d.cache == nil {
		return
	}
	for _, m := range matches {
		if !m.IsFinished() {
			continue
		}
		data, err := json.Marshal(m)
		if err != nil {
			continue
		}
		if err := d.cache.Set(ctx, cache.MatchKey(m.TargetID), data, finishedMatchTTL); err != nil {
			slog.Warn("failed to cache match metadata", "target_id", m.TargetID, "error", err)
		}
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// withinDays compares calendar days in UTC, both ends inclusive.
func withinDays(t, from, to time.Time) bool {
	day := startOfDay(t)
	return !day.Before(startOfDay(from)) && !day.After(startOfDay(to))
}

// uniqueIDs drops repeated ids and keeps first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = 1
	}
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
