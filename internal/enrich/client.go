package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/faucetdb/schemaguard/internal/errs"
	"github.com/faucetdb/schemaguard/internal/logger"
	"github.com/faucetdb/schemaguard/internal/model"
)

// DefaultModel is used when the configuration names none.
const DefaultModel = "gpt-4o-mini"

// Config configures the HTTP gateway.
type Config struct {
	// Endpoint is the base URL of an OpenAI-compatible API, for example
	// https://api.openai.com/v1. An empty endpoint disables enrichment.
	Endpoint          string
	APIKey            string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
	Logger            *zap.SugaredLogger
}

// Client is a Gateway backed by an OpenAI-compatible chat completions API.
type Client struct {
	url        string
	apiKey     string
	model      string
	timeout    time.Duration
	maxRetries int
	base       time.Duration
	max        time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// New returns a Client for cfg, or Disabled when no endpoint is configured.
func New(cfg Config) Gateway {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return Disabled{}
	}
	return NewClient(cfg)
}

// NewClient creates a Client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = 30 * cfg.BackoffBase
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &Client{
		url:        strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		base:       cfg.BackoffBase,
		max:        cfg.BackoffMax,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: cfg.HTTPClient,
		logger:     logger.OrNop(cfg.Logger),
	}
}

// ReconcileNames implements Gateway.
func (c *Client) ReconcileNames(ctx context.Context, req ReconcileRequest) (*ReconcileResponse, error) {
	var out ReconcileResponse
	if err := c.call(ctx, "reconcile_names", reconcileInstructions, req, reconcileSchema, &out); err != nil {
		return nil, err
	}
	if out.NamingMismatches == nil {
		out.NamingMismatches = map[string]string{}
	}
	return &out, nil
}

// Analyze implements Gateway.
func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	var out AnalysisResponse
	if err := c.call(ctx, "analyze", analysisInstructions, req, analysisSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestRules implements Gateway.
func (c *Client) SuggestRules(ctx context.Context, req RulesRequest) ([]model.DynamicRule, error) {
	var out []model.DynamicRule
	if err := c.call(ctx, "suggest_rules", rulesInstructions, req, rulesSchema, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.DynamicRule{}
	}
	return out, nil
}

// call runs one gateway operation and marks every failure
// errs.ErrEnrichmentUnavailable.
func (c *Client) call(ctx context.Context, op, instructions string, payload interface{}, schema *jsonschema.Resolved, out interface{}) error {
	start := time.Now()
	content, err := c.complete(ctx, instructions, payload)
	if err == nil {
		err = decode(content, schema, out)
	}
	if err != nil {
		c.logger.Warnw("enrichment call failed", "op", op, "duration", time.Since(start), "error", err)
		return errs.Mark(errs.Wrapf(err, "enrichment %s", op), errs.ErrEnrichmentUnavailable)
	}
	c.logger.Debugw("enrichment call complete", "op", op, "duration", time.Since(start))
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends one chat completion, retrying rate-limited attempts with
// exponential backoff, and returns the assistant text.
func (c *Client) complete(ctx context.Context, instructions string, payload interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	user, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(err, "encode request")
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: string(user)},
		},
	})
	if err != nil {
		return "", errs.Wrap(err, "encode request")
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errs.Wrap(err, "wait for rate limiter")
		}

		content, retryAfter, err := c.post(ctx, body)
		if err == nil {
			return content, nil
		}
		if !errs.Is(err, errs.ErrRateLimited) || attempt >= c.maxRetries {
			return "", err
		}

		delay := c.backoff(attempt, retryAfter)
		c.logger.Debugw("enrichment rate limited, retrying", "attempt", attempt+1, "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", errs.Wrap(ctx.Err(), "retry aborted")
		case <-timer.C:
		}
	}
}

// backoff returns base*2^attempt capped at max. A longer Retry-After hint
// wins, still capped at max.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	d := c.base
	for i := 0; i < attempt && d < c.max; i++ {
		d *= 2
	}
	if retryAfter > d {
		d = retryAfter
	}
	if d > c.max {
		d = c.max
	}
	return d
}

func (c *Client) post(ctx context.Context, body []byte) (string, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, errs.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, errs.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", 0, errs.Wrap(err, "read response")
	}

	retryAfter, hasRetryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable && hasRetryAfter:
		return "", retryAfter, errs.Mark(errs.Newf("status %d", resp.StatusCode), errs.ErrRateLimited)
	default:
		return "", 0, errs.Newf("status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", 0, errs.Wrap(err, "decode completion")
	}
	if len(chat.Choices) == 0 {
		return "", 0, errs.New("completion has no choices")
	}
	return chat.Choices[0].Message.Content, 0, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
