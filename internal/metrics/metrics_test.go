package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.PollErrors.Inc()

	assert.Contains(t, scrape(t, a), "matchscope_poll_errors_total 1")
	assert.Contains(t, scrape(t, b), "matchscope_poll_errors_total 0")
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.BatchJobs.WithLabelValues("completed").Add(2)
	m.BatchQueueDepth.Set(5)
	m.ReclaimedJobs.Add(3)

	out := scrape(t, m)

	assert.Contains(t, out, `matchscope_batch_jobs_total{outcome="completed"} 2`)
	assert.Contains(t, out, "matchscope_batch_queue_depth 5")
	assert.Contains(t, out, "matchscope_reclaimed_jobs_total 3")
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("boom")))
}
