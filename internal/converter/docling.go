package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DoclingClient talks to a remote, Docling-style conversion service over
// a submit/poll/fetch HTTP protocol.
type DoclingClient struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxAttempts  uint
	timeout      time.Duration
}

// DoclingOption configures a DoclingClient.
type DoclingOption func(*DoclingClient)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) DoclingOption {
	return func(d *DoclingClient) { d.httpClient = c }
}

// WithMaxAttempts overrides the number of submit/fetch retry attempts on
// transport errors.
func WithMaxAttempts(n uint) DoclingOption {
	return func(d *DoclingClient) { d.maxAttempts = n }
}

// WithTimeout bounds the total wall-clock time Convert will spend
// submitting, polling, and fetching a single document, independent of
// whatever deadline the caller's context already carries. Zero leaves
// Convert bounded only by the caller's context.
func WithTimeout(d time.Duration) DoclingOption {
	return func(c *DoclingClient) { c.timeout = d }
}

// NewDoclingClient builds a client against baseURL, polling task status
// every pollInterval until the overall request context expires.
func NewDoclingClient(baseURL string, pollInterval time.Duration, opts ...DoclingOption) *DoclingClient {
	d := &DoclingClient{
		baseURL:      baseURL,
		httpClient:   &http.Client{},
		pollInterval: pollInterval,
		maxAttempts:  3,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 2 * time.Second
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	Status string `json:"status"` // pending | running | completed | failed
	Error  string `json:"error"`
}

type resultResponse struct {
	MarkdownContent string `json:"markdown_content"`
}

// Convert submits content for conversion and blocks until the service
// reports completion, failure, or ctx is cancelled.
func (d *DoclingClient) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	taskID, err := d.submit(ctx, filename, content)
	if err != nil {
		return "", err
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(d.pollInterval):
		}

		status, err := d.poll(ctx, taskID)
		if err != nil {
			return "", err
		}
		switch status.Status {
		case "completed":
			return d.fetch(ctx, taskID)
		case "failed":
			return "", fmt.Errorf("%w: %s", ErrRejected, status.Error)
		default:
			continue
		}
	}
}

func (d *DoclingClient) submit(ctx context.Context, filename string, content []byte) (string, error) {
	op := func() (string, error) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		if _, err := part.Write(content); err != nil {
			return "", backoff.Permanent(err)
		}
		if err := mw.Close(); err != nil {
			return "", backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/convert", &body)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err) // transport error: retriable
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: submit status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			b, _ := io.ReadAll(resp.Body)
			return "", backoff.Permanent(fmt.Errorf("%w: submit status %d: %s", ErrRejected, resp.StatusCode, string(b)))
		}

		var sr submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("%w: decode submit response: %v", ErrRejected, err))
		}
		return sr.TaskID, nil
	}

	return backoff.Retry(ctx, op, backoff.WithMaxTries(d.maxAttempts), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

func (d *DoclingClient) poll(ctx context.Context, taskID string) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/status/%s", d.baseURL, taskID), nil)
	if err != nil {
		return statusResponse{}, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return statusResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return statusResponse{}, fmt.Errorf("%w: status poll %d", ErrUnavailable, resp.StatusCode)
	}
	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return statusResponse{}, fmt.Errorf("%w: decode status response: %v", ErrRejected, err)
	}
	return sr, nil
}

func (d *DoclingClient) fetch(ctx context.Context, taskID string) (string, error) {
	op := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/result/%s/json", d.baseURL, taskID), nil)
		if err != nil {
			return "", backoff.Permanent(err)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: fetch status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return "", backoff.Permanent(fmt.Errorf("%w: fetch status %d: %s", ErrRejected, resp.StatusCode, string(b)))
		}

		var rr resultResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return "", backoff.Permanent(fmt.Errorf("%w: decode result response: %v", ErrRejected, err))
		}
		return rr.MarkdownContent, nil
	}

	return backoff.Retry(ctx, op, backoff.WithMaxTries(d.maxAttempts), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// Health hits the service's documented health endpoint.
func (d *DoclingClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
