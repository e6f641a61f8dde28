package client

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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/angeloszaimis/ai-gateway/internal/prompt"
	"github.com/angeloszaimis/ai-gateway/internal/provider"
	"github.com/angeloszaimis/ai-gateway/pkg/circuitbreaker"
)

const (
	DefaultServiceName = "gemini-proxy"
	DefaultTimeout     = 30 * time.Second

	generatePath = "/api/ai/generate"
	analyzePath  = "/api/ai/analyze-error"

	maxResponseBytes = 1 << 20
)

// ErrCircuitOpen is returned without any network I/O while the local breaker
// rejects calls.
var ErrCircuitOpen = errors.New("AI service is temporarily unavailable")

// CallConfig holds optional sampling parameters for Generate.
type CallConfig = provider.CallConfig

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// IsUnavailable reports whether err means "try again later": a local
// circuit-open rejection or a 503 from the gateway.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusServiceUnavailable
}

// Answer is a successful generate call. PolicyRejection marks answers in
// which the model refused; these are not failures.
type Answer struct {
	Text            string
	PolicyRejection bool
}

type Analysis struct {
	Solution string `json:"solution"`
	Location string `json:"location"`
}

// Client calls the gateway endpoints behind its own circuit breaker. The
// breaker is local to the client and never synchronised with the server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	registry   *circuitbreaker.Registry
	service    string
	timeout    time.Duration
	logger     *slog.Logger
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRegistry shares a breaker registry, for example between clients of
// the same process.
func WithRegistry(r *circuitbreaker.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}

func WithServiceName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.service = name
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout bounds each call. Zero disables the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if err := validation.Validate(baseURL, validation.Required, is.URL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: http.DefaultClient,
		registry:   circuitbreaker.NewDefaultRegistry(),
		service:    DefaultServiceName,
		timeout:    DefaultTimeout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) Registry() *circuitbreaker.Registry {
	return c.registry
}

// Generate calls POST /api/ai/generate.
func (c *Client) Generate(ctx context.Context, userQuery, contextDescription string, cfg *CallConfig) (Answer, error) {
	body := map[string]any{
		"prompt":             userQuery,
		"contextDescription": contextDescription,
	}
	if cfg != nil {
		body["config"] = cfg
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, generatePath, body, &out); err != nil {
		return Answer{}, err
	}

	return Answer{
		Text:            out.Text,
		PolicyRejection: prompt.IsPolicyRejection(out.Text),
	}, nil
}

// AnalyzeError calls POST /api/ai/analyze-error. stackTrace may be empty.
func (c *Client) AnalyzeError(ctx context.Context, errorMessage, stackTrace string) (Analysis, error) {
	body := map[string]string{"errorMessage": errorMessage}
	if stackTrace != "" {
		body["stackTrace"] = stackTrace
	}

	var out Analysis
	if err := c.post(ctx, analyzePath, body, &out); err != nil {
		return Analysis{}, err
	}
	return out, nil
}

// post performs one guarded round trip. Transport errors, timeouts, 5xx,
// 429 and undecodable 2xx bodies count as failures; any other answer counts
// as a success. A call abandoned by the caller is not reported either way.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.registry.AllowRequest(c.service) {
		c.logger.Warn("AI call rejected locally, circuit open",
			slog.String("service", c.service),
			slog.String("path", path))
		return ErrCircuitOpen
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("calling %s: %w", path, err)
		}
		c.failure(path, requestID, start, err.Error())
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.failure(path, requestID, start, err.Error())
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: messageFrom(raw)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.failure(path, requestID, start, se.Error())
		} else {
			c.registry.RecordSuccess(c.service)
		}
		return se
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.failure(path, requestID, start, "malformed response body")
		return fmt.Errorf("decoding %s response: %w", path, err)
	}

	c.registry.RecordSuccess(c.service)
	c.logger.Debug("AI call succeeded",
		slog.String("path", path),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (c *Client) failure(path, requestID string, start time.Time, reason string) {
	c.registry.RecordFailure(c.service)
	c.logger.Warn("AI call failed",
		slog.String("service", c.service),
		slog.String("path", path),
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.String("reason", reason))
}

func messageFrom(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
