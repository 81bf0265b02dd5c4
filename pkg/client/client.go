package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Version is reported in the User-Agent header.
const Version = "0.5.0"

const (
	defaultMaxRetries    = 3
	defaultBackoffFactor = 0.5
)

// Config holds the settings consumed by the client.
type Config struct {
	// APIURL is the API host, e.g. "api.proximl.ai". A scheme may be included.
	APIURL string
	// WSURL is the websocket host, e.g. "api-ws.proximl.ai". A scheme may be included.
	WSURL string
	// Project is the active project scope. May be empty.
	Project string
	// Version overrides the User-Agent version. Default: Version.
	Version string
	// MaxRetries is the total number of attempts for a call. Default: 3.
	MaxRetries int
	// BackoffFactor is the 502 backoff base in seconds. Default: 0.5.
	BackoffFactor float64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the proximl API client. It is safe for concurrent use.
type Client struct {
	cfg    Config
	tokens TokenProvider
	logger *slog.Logger

	mu      sync.RWMutex
	project string

	rand       func() float64
	sleep      func(ctx context.Context, d time.Duration) error
	httpClient func() *http.Client
	dialer     func() *websocket.Dialer
}

// Option customizes a Client.
type Option func(*Client)

// WithSleep replaces the function used for backoff and reconnect waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithRand replaces the jitter source used for backoff.
func WithRand(r func() float64) Option {
	return func(c *Client) { c.rand = r }
}

// WithHTTPClient replaces the factory producing the per-call HTTP client.
func WithHTTPClient(f func() *http.Client) Option {
	return func(c *Client) { c.httpClient = f }
}

// WithDialer replaces the factory producing the per-connection websocket dialer.
func WithDialer(f func() *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = f }
}

// New creates a client. tokens is consulted on every call.
func New(cfg Config, tokens TokenProvider, opts ...Option) *Client {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:     cfg,
		tokens:  tokens,
		logger:  logger,
		project: cfg.Project,
		sleep:   SleepContext,
		httpClient: func() *http.Client {
			return &http.Client{Timeout: 60 * time.Second}
		},
		dialer: func() *websocket.Dialer {
			return &websocket.Dialer{
				Proxy:            http.ProxyFromEnvironment,
				HandshakeTimeout: 45 * time.Second,
			}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Project returns the active project scope.
func (c *Client) Project() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project
}

// SetProject changes the active project scope for subsequent calls.
func (c *Client) SetProject(project string) {
	c.mu.Lock()
	c.project = project
	c.mu.Unlock()
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Query performs one authenticated API call and returns the raw JSON result.
// A 502 response is retried with jittered exponential backoff; every other
// error status is returned as *APIError without retry.
func (c *Client) Query(ctx context.Context, req Request) (json.RawMessage, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	values, err := encodeParams(req.Params)
	if err != nil {
		return nil, err
	}
	scopeParams(values, method, c.Project())

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &SpecificationError{Attribute: "body", Message: err.Error()}
		}
	}

	tokens, err := c.fetchTokens(ctx)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for k, v := range req.Headers {
		headers.Set(k, v)
	}
	headers.Set("Authorization", tokens.IDToken)
	headers.Set("User-Agent", c.userAgent())
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}
	if headers.Get("X-Request-Id") == "" {
		headers.Set("X-Request-Id", uuid.NewString())
	}

	target := endpoint(c.cfg.APIURL, "https") + req.Path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}

	maxRetries := c.cfg.MaxRetries
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}
	backoff := &JitteredBackoff{Factor: c.cfg.BackoffFactor, Rand: c.rand}
	if req.BackoffFactor > 0 {
		backoff.Factor = req.BackoffFactor
	}

	c.logger.Debug("api request", "method", method, "url", target)
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := c.do(ctx, method, target, body, headers)
		if err == nil {
			return result, nil
		}
		if IsStatus(err, http.StatusBadGateway) && attempt < maxRetries-1 {
			wait := backoff.Next(attempt)
			RetriesTotal.Inc()
			c.logger.Debug("gateway unavailable, retrying", "attempt", attempt+1, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}

	return nil, &ClientError{Message: "unexpected API failure"}
}

// QueryInto performs Query and decodes the result into out.
func (c *Client) QueryInto(ctx context.Context, req Request, out any) error {
	data, err := c.Query(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, headers http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &SpecificationError{Attribute: "url", Message: err.Error()}
	}
	httpReq.Header = headers.Clone()

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		RequestsTotal.WithLabelValues(method, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{
			Message: "transport error: " + err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()
	RequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: "failed to read response: " + err.Error(),
			Err:     err,
		}
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, resp.Header.Get("Content-Type"), data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, &ClientError{Message: fmt.Sprintf("invalid JSON in %d response from %s %s", resp.StatusCode, method, target)}
	}
	return json.RawMessage(data), nil
}

func (c *Client) fetchTokens(ctx context.Context) (Tokens, error) {
	if c.tokens == nil {
		return Tokens{}, &AuthError{Message: "no token provider configured"}
	}
	tokens, err := c.tokens.Tokens(ctx)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return Tokens{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Tokens{}, ctxErr
		}
		return Tokens{}, &ClientError{
			Message: "error getting authorization tokens, verify configured credentials",
			Err:     err,
		}
	}
	return tokens, nil
}

func (c *Client) userAgent() string {
	return "proximl-sdk/" + c.cfg.Version
}

// newAPIError builds an APIError from an error response body. JSON bodies
// contribute their errorMessage or message field.
func newAPIError(status int, contentType string, body []byte) *APIError {
	message := strings.TrimSpace(string(body))
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/json" {
		var payload struct {
			ErrorMessage string `json:"errorMessage"`
			Message      string `json:"message"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			switch {
			case payload.ErrorMessage != "":
				message = payload.ErrorMessage
			case payload.Message != "":
				message = payload.Message
			}
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{Status: status, Message: message}
}

// endpoint prefixes host with scheme unless it already carries one.
func endpoint(host, scheme string) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}
	return scheme + "://" + strings.TrimSuffix(host, "/")
}
