// Package engine talks to the remote analysis engine. It only shapes requests
// and maps responses; retry policy belongs to callers.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/kiranshivaraju/matchscope/pkg/models"
)

// Sentinel errors for engine failures.
var (
	ErrUnreachable = errors.New("engine unreachable")
	ErrTimeout     = errors.New("engine request timeout")
	ErrBadResponse = errors.New("engine returned an unexpected response")
)

// Client is the interface for the remote analysis engine.
type Client interface {
	SubmitAnalysis(ctx context.Context, targetID int64, sc models.SubmitContext) (string, error)
	Verify(ctx context.Context, targetIDs []int64) (*BatchResult, error)
	GeneratePostAnalysis(ctx context.Context, targetIDs []int64) (*BatchResult, error)
}

// BatchResult is the engine's answer to a verify or post-analysis call.
type BatchResult struct {
	Success        bool         `json:"success"`
	ProcessedCount int          `json:"processed_count"`
	Details        []ItemDetail `json:"details"`
	Error          string       `json:"error,omitempty"`
}

// ItemDetail reports what happened to one target inside a batch call.
type ItemDetail struct {
	TargetID int64  `json:"fixture_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// HTTPClient implements Client over the engine's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new engine HTTP client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	TargetID int64                `json:"fixture_id"`
	Context  models.SubmitContext `json:"context"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type batchRequest struct {
	TargetIDs []int64 `json:"fixture_ids"`
}

// SubmitAnalysis asks the engine to start an analysis and returns the raw job
// id it assigned. An empty id is returned as-is; callers decide what it means.
func (c *HTTPClient) SubmitAnalysis(ctx context.Context, targetID int64, sc models.SubmitContext) (string, error) {
	var out submitResponse
	if err := c.post(ctx, "/v1/analyses", submitRequest{TargetID: targetID, Context: sc}, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *HTTPClient) Verify(ctx context.Context, targetIDs []int64) (*BatchResult, error) {
	var out BatchResult
	if err := c.post(ctx, "/v1/verifications", batchRequest{TargetIDs: targetIDs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GeneratePostAnalysis(ctx context.Context, targetIDs []int64) (*BatchResult, error) {
	var out BatchResult
	if err := c.post(ctx, "/v1/post-analyses", batchRequest{TargetIDs: targetIDs}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrBadResponse, path, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyError maps transport-level errors to sentinel errors.
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
