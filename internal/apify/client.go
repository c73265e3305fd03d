package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Static errors for Apify client operations.
var (
	// ErrTokenNotSet is returned when no API token is configured.
	ErrTokenNotSet = errors.New("apify: APIFY_API_TOKEN is not set")
	// ErrTaskIDRequired is returned when the task ID is not provided.
	ErrTaskIDRequired = errors.New("apify: task ID is required")
	// ErrRunIDRequired is returned when the run ID is not provided.
	ErrRunIDRequired = errors.New("apify: run ID is required")
	// ErrDatasetIDRequired is returned when the dataset ID is not provided.
	ErrDatasetIDRequired = errors.New("apify: dataset ID is required")
	// ErrSubmitFailed is returned when a task run cannot be started.
	ErrSubmitFailed = errors.New("apify: submit failed")
	// ErrNoRunIDReturned is returned when the submit response contains no run ID.
	ErrNoRunIDReturned = errors.New("apify: no run ID returned")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("apify: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("apify: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("apify: request failed")
)

// DefaultBaseURL is the Apify API v2 root.
const DefaultBaseURL = "https://api.apify.com/v2"

// Client defines the interface for interacting with the Apify API.
type Client interface {
	// RunTask starts a run of the saved actor task with the given input
	// override and returns the run ID.
	RunTask(ctx context.Context, taskID string, input any) (runID string, err error)

	// GetRun returns the current state of a run.
	GetRun(ctx context.Context, runID string) (Run, error)

	// DatasetItems returns the clean items of a dataset.
	DatasetItems(ctx context.Context, datasetID string) ([]Item, error)
}

// HTTPClient is the HTTP implementation of the Apify Client interface.
type HTTPClient struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets the API token.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Apify API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new Apify HTTP client.
// The token can be set via the WithToken option. If not provided,
// it is read from the environment variable APIFY_API_TOKEN.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("APIFY_API_TOKEN")
	}
	if c.token == "" {
		return nil, ErrTokenNotSet
	}

	return c, nil
}

// RunTask starts a run of the actor task taskID with input as the input
// override and returns the new run's ID.
func (c *HTTPClient) RunTask(ctx context.Context, taskID string, input any) (string, error) {
	if taskID == "" {
		return "", ErrTaskIDRequired
	}

	bodyBytes, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("apify: marshal input: %w", err)
	}

	var resp runEnvelope
	endpoint := c.endpoint("actor-tasks/"+url.PathEscape(taskID)+"/runs", nil)
	if err := c.doRequestWithRetry(ctx, http.MethodPost, endpoint, bodyBytes, &resp); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}

	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: %w", ErrSubmitFailed, ErrNoRunIDReturned)
	}

	return resp.Data.ID, nil
}

// GetRun returns the state of the run runID.
func (c *HTTPClient) GetRun(ctx context.Context, runID string) (Run, error) {
	if runID == "" {
		return Run{}, ErrRunIDRequired
	}

	var resp runEnvelope
	endpoint := c.endpoint("actor-runs/"+url.PathEscape(runID), nil)
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Run{}, err
	}

	run := Run{
		ID:        resp.Data.ID,
		Status:    Status(resp.Data.Status),
		DatasetID: resp.Data.DefaultDatasetID,
		Error:     resp.Data.Error,
	}
	if run.Error == "" && run.Status != StatusSucceeded {
		run.Error = resp.Data.StatusMessage
	}
	if run.ID == "" {
		run.ID = runID
	}

	return run, nil
}

// DatasetItems returns the clean items of dataset datasetID.
func (c *HTTPClient) DatasetItems(ctx context.Context, datasetID string) ([]Item, error) {
	if datasetID == "" {
		return nil, ErrDatasetIDRequired
	}

	var items []Item
	endpoint := c.endpoint("datasets/"+url.PathEscape(datasetID)+"/items", url.Values{"clean": {"true"}})
	if err := c.doRequestWithRetry(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, err
	}

	return items, nil
}

// endpoint builds an API URL with the token appended as a query parameter.
func (c *HTTPClient) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.token)
	return c.baseURL + "/" + path + "?" + query.Encode()
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("apify: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.doRequest(ctx, method, endpoint, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("apify: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, endpoint string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("apify: create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("apify: request failed: %w", redactURL(err))}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("apify: read response: %w", err)}
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(respBody)
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, msg)}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, msg)}
		}
		// Other errors are not retryable
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, msg)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("apify: unmarshal response: %w", err)
		}
	}

	return nil
}

// errorMessage extracts the message of an Apify error body, falling back
// to the raw body.
func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// redactURL strips the query string from the URL carried by a transport
// error so the token never ends up in logs or item results.
func redactURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if i := strings.IndexByte(uerr.URL, '?'); i >= 0 {
			uerr.URL = uerr.URL[:i]
		}
	}
	return err
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
