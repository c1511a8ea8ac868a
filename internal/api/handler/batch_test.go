package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/matchscope/internal/jobs"
	"github.com/kiranshivaraju/matchscope/pkg/models"
)

type fakeQueue struct {
	queued    []int64
	cancelled int
}

func (q *fakeQueue) EnqueueMany(ids []int64) int {
	q.queued = append(q.queued, ids...)
	return len(ids)
}

func (q *fakeQueue) CancelQueue() int {
	n := len(q.queued)
	q.cancelled += n
	q.queued = nil
	return n
}

func (q *fakeQueue) Status() models.BatchStatus {
	return models.BatchStatus{QueueDepth: len(q.queued), InFlight: []int64{}}
}

type fakeReclaimer struct {
	count    int64
	err      error
	gotAge   time.Duration
	allCalls int
}

func (f *fakeReclaimer) ReclaimAll(_ context.Context) (jobs.ReclaimResult, error) {
	f.allCalls++
	return jobs.ReclaimResult{Count: f.count}, f.err
}

func (f *fakeReclaimer) ReclaimStale(_ context.Context, olderThan time.Duration) (jobs.ReclaimResult, error) {
	f.gotAge = olderThan
	if olderThan <= 0 {
		return jobs.ReclaimResult{}, jobs.ErrInvalidAge
	}
	return jobs.ReclaimResult{Count: f.count}, f.err
}

func TestEnqueueBatchHandler(t *testing.T) {
	q := &fakeQueue{}
	rec := httptest.NewRecorder()
	NewEnqueueBatchHandler(q).ServeHTTP(rec,
		jsonReq(t, http.MethodPost, "/api/v1/batch", map[string]any{"target_ids": []int64{1, 2, 3}}))

	data := parseData(t, rec, http.StatusAccepted)
	assert.Equal(t, float64(3), data["enqueued"])
	assert.Equal(t, []int64{1, 2, 3}, q.queued)
	status := data["status"].(map[string]any)
	assert.Equal(t, float64(3), status["queue_depth"])
}

func TestEnqueueBatchHandler_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"missing", map[string]any{}},
		{"empty", map[string]any{"target_ids": []int64{}}},
		{"non-positive id", map[string]any{"target_ids": []int64{4, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{}
			rec := httptest.NewRecorder()
			NewEnqueueBatchHandler(q).ServeHTTP(rec, jsonReq(t, http.MethodPost, "/api/v1/batch", tt.body))

			status, code := parseErr(t, rec)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", code)
			assert.Empty(t, q.queued)
		})
	}
}

func TestBatchStatusHandler(t *testing.T) {
	q := &fakeQueue{queued: []int64{7, 8}}
	rec := httptest.NewRecorder()
	NewBatchStatusHandler(q).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/batch", nil))

	data := parseData(t, rec, http.StatusOK)
	assert.Equal(t, float64(2), data["queue_depth"])
	_, hasCurrent := data["current_target_id"]
	assert.False(t, hasCurrent)
}

func TestCancelBatchHandler(t *testing.T) {
	q := &fakeQueue{queued: []int64{7, 8, 9}}
	rec := httptest.NewRecorder()
	NewCancelBatchHandler(q).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/batch", nil))

	data := parseData(t, rec, http.StatusOK)
	assert.Equal(t, float64(3), data["cancelled"])
	assert.Empty(t, q.queued)
}

func TestReclaimHandler(t *testing.T) {
	rc := &fakeReclaimer{count: 4}
	rec := httptest.NewRecorder()
	NewReclaimHandler(rc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/reclaim", nil))

	data := parseData(t, rec, http.StatusOK)
	assert.Equal(t, float64(4), data["reclaimed"])
	assert.Equal(t, 1, rc.allCalls)
}

func TestReclaimHandler_StoreError(t *testing.T) {
	rc := &fakeReclaimer{err: errors.New("deadlock detected")}
	rec := httptest.NewRecorder()
	NewReclaimHandler(rc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/jobs/reclaim", nil))

	status, code := parseErr(t, rec)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", code)
}

func TestReclaimStaleHandler(t *testing.T) {
	rc := &fakeReclaimer{count: 2}
	rec := httptest.NewRecorder()
	NewReclaimStaleHandler(rc).ServeHTTP(rec,
		jsonReq(t, http.MethodPost, "/api/v1/admin/jobs/reclaim-stale", map[string]any{"older_than": "45m"}))

	data := parseData(t, rec, http.StatusOK)
	assert.Equal(t, float64(2), data["reclaimed"])
	assert.Equal(t, "45m0s", data["older_than"])
	assert.Equal(t, 45*time.Minute, rc.gotAge)
}

func TestReclaimStaleHandler_BadAge(t *testing.T) {
	for _, age := range []string{"", "soon", "-5m", "0s"} {
		t.Run(age, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewReclaimStaleHandler(&fakeReclaimer{}).ServeHTTP(rec,
				jsonReq(t, http.MethodPost, "/api/v1/admin/jobs/reclaim-stale", map[string]any{"older_than": age}))

			status, code := parseErr(t, rec)
			require.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "VALIDATION_ERROR", code)
		})
	}
}
