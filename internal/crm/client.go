package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ince88/prv/internal/logging"
)

// ErrTimeout is returned when the CRM does not answer within the configured
// per-call timeout. It maps to a 408 at the HTTP surface.
var ErrTimeout = errors.New("crm: upstream timeout")

// StatusError carries a non-2xx upstream response. The body is truncated
// for diagnostics; the code is passed through to the caller.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm: upstream status %d: %s", e.Code, e.Body)
}

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 200

// ObserveFunc records the outcome of one upstream call, for metrics.
type ObserveFunc func(operation, status string, duration time.Duration)

// Client is a MiniCRM REST client authenticated with a system id / API key
// pair. Workers bounds the task fan-out; ScanCap bounds the per-status
// project scan of the daily aggregation.
type Client struct {
	baseURL    string
	systemID   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	workers        int
	scanCap        int
	fallbackActive map[int][]int

	observe ObserveFunc

	statusCache *statusCache
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	SystemID string
	APIKey   string
	Timeout  time.Duration
	// Workers is the bound on concurrent task-list fetches (default 10).
	Workers int
	// ScanCap is the per-status project cap of the daily scan (default 100).
	ScanCap int
	// FallbackActiveStatuses maps category id to active status ids, used
	// when schema introspection fails.
	FallbackActiveStatuses map[int][]int
	Logger                 *slog.Logger
	Observe                ObserveFunc
}

// NewClient creates a MiniCRM client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.ScanCap <= 0 {
		opts.ScanCap = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		systemID:       opts.SystemID,
		apiKey:         opts.APIKey,
		httpClient:     &http.Client{Timeout: opts.Timeout},
		logger:         logging.WithService(opts.Logger, "minicrm"),
		workers:        opts.Workers,
		scanCap:        opts.ScanCap,
		fallbackActive: opts.FallbackActiveStatuses,
		observe:        opts.Observe,
		statusCache:    newStatusCache(),
	}
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

// put performs an authenticated PUT with a JSON payload.
func (c *Client) put(ctx context.Context, path string, payload any) error {
	return c.do(ctx, http.MethodPut, path, nil, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload, out any) error {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.systemID, c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(path, logging.StatusError, start)
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.record(path, logging.StatusError, start)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	c.record(path, logging.StatusSuccess, start)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) record(path, status string, start time.Time) {
	if c.observe == nil {
		return
	}
	// First path segment is the logical operation (Contact, Project, ...).
	op, _, _ := strings.Cut(strings.TrimLeft(path, "/"), "/")
	c.observe(op, status, time.Since(start))
}

// isTimeout reports whether err is a client-side timeout or deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Timeout()
	}
	return false
}

// getURL fetches an absolute URL returned by the CRM itself (e.g. the full
// contact detail link embedded in a search result).
func (c *Client) getURL(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.systemID, c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("Contact/detail", logging.StatusError, start)
		if isTimeout(err) {
			return fmt.Errorf("%w: GET %s", ErrTimeout, rawURL)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.record("Contact/detail", logging.StatusError, start)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	c.record("Contact/detail", logging.StatusSuccess, start)
	return json.NewDecoder(resp.Body).Decode(out)
}
