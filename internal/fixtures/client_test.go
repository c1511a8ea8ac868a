package fixtures

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fixtureServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

const twoFixtures = `{
  "errors": [],
  "results": 2,
  "response": [
    {"fixture": {"id": 555, "date": "2024-01-15T20:00:00+00:00", "status": {"short": "FT"}},
     "teams": {"home": {"name": "Arsenal"}, "away": {"name": "Chelsea"}}},
    {"fixture": {"id": 556, "date": "2024-01-16T19:45:00+00:00", "status": {"short": "NS"}},
     "teams": {"home": {"name": "Lyon"}, "away": {"name": "Nice"}}}
  ]
}`

func TestGetMatches_ParsesResponse(t *testing.T) {
	ts := fixtureServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fixtures" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "555-556" {
			t.Errorf("unexpected ids param: %s", got)
		}
		if got := r.Header.Get("x-apisports-key"); got != "fx-key" {
			t.Errorf("unexpected api key header: %q", got)
		}
		w.Write([]byte(twoFixtures))
	})

	c := NewHTTPClient(ts.URL, "fx-key", 5*time.Second)
	matches, err := c.GetMatches(context.Background(), []int64{555, 556})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}

	m := matches[0]
	if m.TargetID != 555 || m.StatusShort != "FT" || m.HomeLabel != "Arsenal" || m.AwayLabel != "Chelsea" {
		t.Errorf("unexpected first match: %+v", m)
	}
	want := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)
	if !m.Kickoff.Equal(want) {
		t.Errorf("unexpected kickoff: %v", m.Kickoff)
	}
	if matches[1].IsFinished() {
		t.Errorf("NS match must not be finished")
	}
}

func TestGetMatches_EmptyInputSkipsRequest(t *testing.T) {
	called := false
	ts := fixtureServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	matches, err := NewHTTPClient(ts.URL, "", time.Second).GetMatches(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches != nil || called {
		t.Errorf("expected no request and no matches")
	}
}

func TestGetMatches_TooManyIDs(t *testing.T) {
	ids := make([]int64, MaxIDsPerRequest+1)
	_, err := NewHTTPClient("http://unused", "", time.Second).GetMatches(context.Background(), ids)
	if !errors.Is(err, ErrTooManyIDs) {
		t.Fatalf("expected ErrTooManyIDs, got %v", err)
	}
}

func TestGetMatches_UpstreamErrorsObject(t *testing.T) {
	ts := fixtureServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":{"token":"Error/Missing application key"},"response":[]}`))
	})

	_, err := NewHTTPClient(ts.URL, "", time.Second).GetMatches(context.Background(), []int64{1})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestGetMatches_Non200(t *testing.T) {
	ts := fixtureServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := NewHTTPClient(ts.URL, "", time.Second).GetMatches(context.Background(), []int64{1})
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
}

func TestGetMatches_Unreachable(t *testing.T) {
	_, err := NewHTTPClient("http://127.0.0.1:1", "", time.Second).GetMatches(context.Background(), []int64{1})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{1, 22, 333}); got != "1-22-333" {
		t.Errorf("unexpected join: %s", got)
	}
}

func TestHasUpstreamErrors(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"[]", false},
		{"{}", false},
		{"null", false},
		{`{"plan":"limit reached"}`, true},
		{`["boom"]`, true},
	}
	for _, tt := range tests {
		if got := hasUpstreamErrors([]byte(tt.raw)); got != tt.want {
			t.Errorf("hasUpstreamErrors(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
