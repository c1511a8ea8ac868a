// Package fixtures reads match metadata from an API-Football compatible
// fixture source.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// MaxIDsPerRequest is the upstream cap on ids in one /fixtures call.
const MaxIDsPerRequest = 20

var (
	ErrUnreachable = errors.New("fixture source unreachable")
	ErrTimeout     = errors.New("fixture source request timeout")
	ErrBadResponse = errors.New("fixture source returned an unexpected response")
	ErrTooManyIDs  = fmt.Errorf("at most %d fixture ids per request", MaxIDsPerRequest)
)

// Client fetches match metadata by fixture id.
type Client interface {
	GetMatches(ctx context.Context, targetIDs []int64) ([]models.MatchMeta, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type fixturesResponse struct {
	Errors   json.RawMessage `json:"errors"`
	Response []fixtureEntry  `json:"response"`
}

type fixtureEntry struct {
	Fixture struct {
		ID     int64     `json:"id"`
		Date   time.Time `json:"date"`
		Status struct {
			Short string `json:"short"`
		} `json:"status"`
	} `json:"fixture"`
	Teams struct {
		Home struct {
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
}

// GetMatches returns metadata for up to MaxIDsPerRequest fixtures. Ids the
// source does not know are simply absent from the result.
func (c *HTTPClient) GetMatches(ctx context.Context, targetIDs []int64) ([]models.MatchMeta, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	if len(targetIDs) > MaxIDsPerRequest {
		return nil, ErrTooManyIDs
	}

	params := url.Values{}
	params.Set("ids", joinIDs(targetIDs))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fixtures?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var body fixturesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding fixtures: %v", ErrBadResponse, err)
	}
	if hasUpstreamErrors(body.Errors) {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, body.Errors)
	}

	matches := make([]models.MatchMeta, 0, len(body.Response))
	for _, e := range body.Response {
		matches = append(matches, models.MatchMeta{
			TargetID:    e.Fixture.ID,
			Kickoff:     e.Fixture.Date,
			StatusShort: e.Fixture.Status.Short,
			HomeLabel:   e.Teams.Home.Name,
			AwayLabel:   e.Teams.Away.Name,
		})
	}
	return matches, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-apisports-key", c.apiKey)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, "-")
}

// hasUpstreamErrors reports whether the "errors" member carries anything. The
// source sends [] when clean and an object keyed by field otherwise.
func hasUpstreamErrors(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "[]" && s != "{}" && s != "null"
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
