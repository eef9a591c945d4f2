// Package postgrest is the HTTP adapter for the hosted backend. It speaks
// the REST row endpoint (reads and the few client-writable tables), the
// remote-procedure endpoint, the token auth API, and public object storage,
// wrapping every data call in a rate limiter, retry with exponential
// backoff, and a circuit breaker.
package postgrest

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
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/breaker"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
	"github.com/studypet-hub/studypet-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the backend HTTP client.
type ClientConfig struct {
	// BaseURL is the project API origin, without a trailing slash.
	BaseURL string

	// APIKey is the project's public API key. It is sent on every request
	// and doubles as the bearer token while no user is signed in.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimit configures the client-side token bucket.
	RateLimit RateLimitConfig

	// Retrier overrides the default retry policy for data requests.
	Retrier *retry.Retrier

	// Breaker overrides the default circuit breaker.
	Breaker *breaker.CircuitBreaker

	// TokenSource supplies the signed-in user's access token. May also be
	// set later via SetTokenSource once the session manager exists.
	TokenSource backend.TokenSource

	// Logger for structured logging.
	Logger *logger.Logger

	// Debug enables per-request debug logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL, apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		Timeout:   30 * time.Second,
		RateLimit: DefaultRateLimitConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the hosted backend HTTP client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
	limiter    *RateLimiter
	breaker    *breaker.CircuitBreaker
	retrier    *retry.Retrier

	tokenMu     sync.RWMutex
	tokenSource backend.TokenSource
}

var (
	_ backend.RowQuerier      = (*Client)(nil)
	_ backend.RowWriter       = (*Client)(nil)
	_ backend.ProcedureCaller = (*Client)(nil)
	_ backend.Authenticator   = (*Client)(nil)
	_ backend.ObjectStorage   = (*Client)(nil)
)

// NewClient creates a new backend HTTP client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	log := config.Logger

	br := config.Breaker
	if br == nil {
		br = breaker.BackendBreaker(func(name string, from, to breaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	rt := config.Retrier
	if rt == nil {
		rt = retry.BackendRetrier()
	}

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      log,
		limiter:     NewRateLimiter(config.RateLimit),
		breaker:     br,
		retrier:     rt,
		tokenSource: config.TokenSource,
	}
}

// SetTokenSource wires the session manager's token source into the client.
// The client and the session manager reference each other, so one side has
// to be attached after construction.
func (c *Client) SetTokenSource(ts backend.TokenSource) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.tokenSource = ts
}

func (c *Client) bearerToken() string {
	c.tokenMu.RLock()
	ts := c.tokenSource
	c.tokenMu.RUnlock()

	if ts != nil {
		if t := ts.AccessToken(); t != "" {
			return t
		}
	}
	return c.config.APIKey
}

// Reset restores the rate limiter and circuit breaker to their initial
// state.
func (c *Client) Reset() {
	c.limiter.Reset()
	c.breaker.Reset()
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Select fetches the rows matching q and decodes the JSON array into dest.
func (c *Client) Select(ctx context.Context, q backend.Query, dest any) error {
	req := request{
		method: http.MethodGet,
		path:   "/rest/v1/" + url.PathEscape(q.Table),
		query:  encodeQuery(q),
	}
	if _, err := c.do(ctx, req, dest); err != nil {
		return fmt.Errorf("select %s: %w", q.Table, err)
	}
	return nil
}

// Count returns the exact number of rows matching q without transferring
// them. The row endpoint answers a HEAD request carrying
// "Prefer: count=exact" with the population size in Content-Range.
func (c *Client) Count(ctx context.Context, q backend.Query) (int, error) {
	req := request{
		method:  http.MethodHead,
		path:    "/rest/v1/" + url.PathEscape(q.Table),
		query:   encodeQuery(q),
		headers: map[string]string{"Prefer": "count=exact"},
	}
	hdr, err := c.do(ctx, req, nil)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return parseContentRangeTotal(hdr.Get("Content-Range"))
}

// parseContentRangeTotal extracts the total from a "0-19/57" or "*/0"
// Content-Range value.
func parseContentRangeTotal(v string) (int, error) {
	_, totalPart, found := strings.Cut(v, "/")
	if !found {
		return 0, fmt.Errorf("count: missing total in Content-Range %q", v)
	}
	total, err := strconv.Atoi(totalPart)
	if err != nil {
		return 0, fmt.Errorf("count: bad total in Content-Range %q", v)
	}
	return total, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROW WRITES
// ══════════════════════════════════════════════════════════════════════════════

// Insert writes rows (a struct or a slice of structs) into table.
func (c *Client) Insert(ctx context.Context, table string, rows any, opts backend.InsertOptions) error {
	prefer := "return=minimal"
	if opts.IgnoreDuplicates {
		prefer += ",resolution=ignore-duplicates"
	}

	req := request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + url.PathEscape(table),
		headers: map[string]string{"Prefer": prefer},
		body:    rows,
	}
	if _, err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update patches the rows matching q with the given column values.
func (c *Client) Update(ctx context.Context, q backend.Query, values map[string]any) error {
	req := request{
		method:  http.MethodPatch,
		path:    "/rest/v1/" + url.PathEscape(q.Table),
		query:   encodeQuery(q),
		headers: map[string]string{"Prefer": "return=minimal"},
		body:    values,
	}
	if _, err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("update %s: %w", q.Table, err)
	}
	return nil
}

// Delete removes the rows matching q.
func (c *Client) Delete(ctx context.Context, q backend.Query) error {
	req := request{
		method:  http.MethodDelete,
		path:    "/rest/v1/" + url.PathEscape(q.Table),
		query:   encodeQuery(q),
		headers: map[string]string{"Prefer": "return=minimal"},
	}
	if _, err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("delete %s: %w", q.Table, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOTE PROCEDURES
// ══════════════════════════════════════════════════════════════════════════════

// Call invokes the named server-side function. Procedures respond with a
// JSON object carrying a "success" flag; a false flag becomes a
// *backend.ProcedureError and dest is left untouched.
func (c *Client) Call(ctx context.Context, fn string, args map[string]any, dest any) error {
	if args == nil {
		args = map[string]any{}
	}

	var raw json.RawMessage
	req := request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(fn),
		body:   args,
	}
	if _, err := c.do(ctx, req, &raw); err != nil {
		return fmt.Errorf("call %s: %w", fn, err)
	}

	if err := backend.EnvelopeFailure(fn, raw); err != nil {
		return err
	}

	if dest != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("call %s: decode result: %w", fn, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type request struct {
	method  string
	path    string
	query   url.Values
	headers map[string]string
	body    any
}

// do performs a data request with circuit breaking, rate limiting, and
// retries. It returns the response headers for callers that need them.
func (c *Client) do(ctx context.Context, req request, result any) (http.Header, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("circuit breaker: %w", err)
	}

	var hdr http.Header
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		h, err := c.doSingle(ctx, req, result)
		if err != nil {
			var rle *backend.RateLimitError
			if errors.As(err, &rle) {
				c.limiter.RecordRateLimitHit(rle.RetryAfter)
			}
			if backend.IsRetryable(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		}

		hdr = h
		return nil
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return hdr, nil
}

// doSingle performs one HTTP request.
func (c *Client) doSingle(ctx context.Context, req request, result any) (http.Header, error) {
	fullURL := c.config.BaseURL + req.path
	if len(req.query) > 0 {
		fullURL += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		jsonBody, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	httpReq.Header.Set("apikey", c.config.APIKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken())
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	if c.config.Debug {
		c.logger.Debug("backend request", "method", req.method, "path", req.path, "request_id", requestID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &backend.RateLimitError{
			RetryAfter: retryAfterFrom(resp.Header),
			Message:    "rate limit exceeded",
		}
	}

	if resp.StatusCode >= 400 {
		return nil, apiErrorFrom(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return resp.Header, nil
}

// retryAfterFrom honors the Retry-After header, defaulting to a minute.
func retryAfterFrom(hdr http.Header) time.Duration {
	retryAfter := 60 * time.Second
	if ra := hdr.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return retryAfter
}

// apiErrorFrom maps the error payload ({"code", "message", ...}) to an
// *backend.APIError, falling back to the bare status.
func apiErrorFrom(status int, body []byte) error {
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	apiErr := &backend.APIError{Status: status}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Msg
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
