// Package dubclient talks to the remote dubbing service.
package dubclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/config"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// Remote state vocabulary
const (
	RemoteQueued     = "queued"
	RemoteProcessing = "processing"
	RemoteCompleted  = "completed"
	RemoteFailed     = "failed"
)

// ErrUnknownState is returned for a remote state outside the vocabulary
var ErrUnknownState = errors.New("unknown remote dubbing state")

// SubmitRequest is the body of a dubbing submission
type SubmitRequest struct {
	SourceLocation string `json:"source_location"`
	TargetLanguage string `json:"target_language"`
	CallbackURL    string `json:"callback_url,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
}

type submitResponse struct {
	JobHandle string `json:"job_handle"`
}

// Status is a remote job's reported status
type Status struct {
	JobHandle      string `json:"job_handle"`
	State          string `json:"state"`
	ResultLocation string `json:"result_location,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RemoteError is a non-2xx response from the dubbing service
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("dubbing service returned %d: %s", e.StatusCode, e.Body)
}

// Client is an HTTP client for the remote dubbing service
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a dubbing service client
func New(cfg config.DubbingConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Submit asks the service to dub a source video. It returns the remote job handle.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	var resp submitResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/v1/dubs", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.JobHandle == "" {
		return "", fmt.Errorf("dubbing service returned no job handle")
	}

	return resp.JobHandle, nil
}

// Status fetches the current status of a remote job
func (c *Client) Status(ctx context.Context, handle string) (*Status, error) {
	var status Status
	if err := c.do(ctx, "status", http.MethodGet, "/v1/dubs/"+url.PathEscape(handle), nil, &status); err != nil {
		return nil, err
	}
	if status.JobHandle == "" {
		status.JobHandle = handle
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, out interface{}) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordRemoteRequest(operation, "error", time.Since(start).Seconds())
		return fmt.Errorf("dubbing service %s failed: %w", operation, err)
	}
	defer resp.Body.Close()

	metrics.RecordRemoteRequest(operation, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// ParseState maps the remote state vocabulary onto dub job states
func ParseState(state string) (models.DubJobState, error) {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case RemoteQueued, "accepted", "pending":
		return models.DubJobSubmitted, nil
	case RemoteProcessing, "running", "in_progress":
		return models.DubJobProcessing, nil
	case RemoteCompleted, "ready", "succeeded", "success":
		return models.DubJobReady, nil
	case RemoteFailed, "error", "cancelled", "canceled":
		return models.DubJobFailed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, state)
}
