// Package orderdesk is the Go SDK for the trading backend consumed by the
// order ticket: order execution, option chains, symbol analysis and order
// templates, all JSON over HTTP.
package orderdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"orderdesk/internal/domain"
	"orderdesk/internal/util"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Options tunes a Client. Zero values fall back to sensible defaults.
type Options struct {
	Timeout         time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RateLimitPerMin int
	HTTPClient      *http.Client
}

// Client provides a Go SDK for interacting with the trading backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
	attempts   int
	baseDelay  time.Duration
}

// NewClient creates a new backend API client with default options.
func NewClient(baseURL string) *Client {
	return NewClientWithOptions(baseURL, Options{})
}

// NewClientWithOptions creates a client rooted at baseURL.
func NewClientWithOptions(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		limiter:    util.NewRateLimiter(opts.RateLimitPerMin),
		attempts:   attempts,
		baseDelay:  opts.RetryBaseDelay,
	}
}

// BaseURL returns the root every request path is appended to.
func (c *Client) BaseURL() string { return c.baseURL }

// ---------------------------------------------------------------------------
// Trading
// ---------------------------------------------------------------------------

// Execute sends POST /trading/execute. It is never retried: a resubmission
// must be a deliberate caller decision carrying the same correlation ID.
func (c *Client) Execute(ctx context.Context, req domain.SubmissionRequest) (*domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	if err := c.do(ctx, http.MethodPost, "/trading/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ---------------------------------------------------------------------------
// Option chain
// ---------------------------------------------------------------------------

type expirationsResponse struct {
	Expirations []string `json:"expirations"`
}

type strikesResponse struct {
	Strikes []float64 `json:"strikes"`
}

// Expirations lists the option expirations for symbol.
func (c *Client) Expirations(ctx context.Context, symbol string) ([]string, error) {
	q := url.Values{"symbol": {symbol}}
	var out expirationsResponse
	if err := c.do(ctx, http.MethodGet, "/options/chain?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Expirations, nil
}

// Strikes lists the strikes for symbol at expiration.
func (c *Client) Strikes(ctx context.Context, symbol, expiration string) ([]float64, error) {
	q := url.Values{"symbol": {symbol}, "expiration": {expiration}}
	var out strikesResponse
	if err := c.do(ctx, http.MethodGet, "/options/chain?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Strikes, nil
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// Analyze fetches the analysis object for symbol. The payload is kept
// opaque as a protobuf Struct.
func (c *Client) Analyze(ctx context.Context, symbol string) (*domain.AnalysisSnapshot, error) {
	data := &structpb.Struct{}
	if err := c.do(ctx, http.MethodGet, "/ai/analyze-symbol/"+url.PathEscape(symbol), nil, data); err != nil {
		return nil, err
	}
	return &domain.AnalysisSnapshot{
		Symbol:    symbol,
		FetchedAt: time.Now(),
		Data:      data,
	}, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// ListTemplates returns all saved order templates.
func (c *Client) ListTemplates(ctx context.Context) ([]domain.OrderTemplate, error) {
	var out []domain.OrderTemplate
	if err := c.do(ctx, http.MethodGet, "/order-templates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTemplate saves a new order template.
func (c *Client) CreateTemplate(ctx context.Context, draft domain.TemplateDraft) (*domain.OrderTemplate, error) {
	var out domain.OrderTemplate
	if err := c.do(ctx, http.MethodPost, "/order-templates", draft, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTemplate removes a template by ID.
func (c *Client) DeleteTemplate(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/order-templates/"+strconv.FormatInt(id, 10), nil, nil)
}

// MarkTemplateUsed stamps the template's last-used time. The response body
// is ignored.
func (c *Client) MarkTemplateUsed(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, "/order-templates/"+strconv.FormatInt(id, 10)+"/use", nil, nil)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do performs one logical call. GETs are retried on transport errors and 5xx
// responses; every other method is attempted once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	attempts := 1
	if method == http.MethodGet {
		attempts = c.attempts
	}
	return util.Retry(ctx, attempts, c.baseDelay, func() error {
		return c.once(ctx, method, path, body, out)
	})
}

func (c *Client) once(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return util.Permanent(err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return util.Permanent(fmt.Errorf("encoding %s %s body: %w", method, path, err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return util.Permanent(fmt.Errorf("building %s %s: %w", method, path, err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return util.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data, resp.Status),
		}
		if resp.StatusCode >= 500 {
			return apiErr
		}
		return util.Permanent(apiErr)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if msg, ok := out.(*structpb.Struct); ok {
		if err := protojson.Unmarshal(data, msg); err != nil {
			return util.Permanent(fmt.Errorf("decoding %s %s: %w", method, path, err))
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return util.Permanent(fmt.Errorf("decoding %s %s: %w", method, path, err))
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failure body, falling back
// to the raw text or the HTTP status line.
func errorMessage(body []byte, status string) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return status
}
