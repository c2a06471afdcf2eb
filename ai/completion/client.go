// Package completion is the chat-completions client used by repair and
// generation. It classifies failures, retries transport-level faults with
// exponential backoff, gates every attempt on a per-minute limiter and caches
// successful responses by content hash.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/teranos/ldschema/ai/ratelimit"
	"github.com/teranos/ldschema/ai/tracker"
	"github.com/teranos/ldschema/cache"
	"github.com/teranos/ldschema/errors"
	"github.com/teranos/ldschema/logger"
	"github.com/teranos/ldschema/version"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "gpt-4o-mini"

	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultTemperature = 0.7
	DefaultMaxAttempts = 3
	DefaultTimeout     = 60 * time.Second

	// maxErrorBody bounds how much of a failed response body is kept in the error
	maxErrorBody = 512
)

var (
	tracer    = otel.Tracer("ldschema.completion")
	userAgent = version.UserAgent("completion")
)

// Observer receives one call per Complete, typically metrics
type Observer interface {
	CompletionCall(model string, class ErrorClass, attempts int, cached bool, elapsed time.Duration)
}

// Config holds completion client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxAttempts int

	Limiter    *ratelimit.Limiter    // nil = no gate
	Cache      *cache.Cache          // nil = no caching
	Tracker    *tracker.UsageTracker // nil = no usage ledger
	Observer   Observer
	Logger     *zap.SugaredLogger // nil = nop logger
	HTTPClient *http.Client       // nil = client with Timeout

	// Sleep waits between attempts. Tests replace it to avoid real backoff.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to an OpenAI-compatible chat-completions endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a client, filling unset fields with defaults
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     log,
	}
}

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the service for a constrained output shape
type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObject requests a single JSON object response
var JSONObject = &ResponseFormat{Type: "json_object"}

// Request is a high-level completion request. Zero Model and nil Temperature
// use the client defaults.
type Request struct {
	Model          string
	Temperature    *float64
	Messages       []Message
	ResponseFormat *ResponseFormat

	// Tracking context, not sent to the service
	OperationType string
	EntityType    string
	EntityID      string
}

// Response is the first choice's content plus accounting
type Response struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
	Attempts    int    `json:"attempts"`
	Cached      bool   `json:"cached"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the default model
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends req, retrying rate-limit, server and transport failures up
// to MaxAttempts times with a 2^n second wait before retry n. Auth and other
// client errors return immediately.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	wire := chatCompletionRequest{
		Model:          c.config.Model,
		Temperature:    c.config.Temperature,
		Messages:       req.Messages,
		ResponseFormat: req.ResponseFormat,
	}
	if req.Model != "" {
		wire.Model = req.Model
	}
	if req.Temperature != nil {
		wire.Temperature = *req.Temperature
	}

	ctx, span := tracer.Start(ctx, "completion.Complete",
		trace.WithAttributes(
			attribute.String("completion.model", wire.Model),
			attribute.String("completion.operation", req.OperationType),
			attribute.Int("completion.messages", len(wire.Messages)),
		),
	)
	defer span.End()

	start := time.Now()

	if !c.IsConfigured() {
		err := errors.WithHint(&ServiceError{
			Class:   ClassAuth,
			Code:    "no_api_key",
			Message: "completion API key not configured",
		}, "set completion.api_key or LDSCHEMA_COMPLETION_API_KEY")
		c.finish(ctx, span, req, wire, start, nil, 0, err)
		return nil, err
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	cacheKey := cache.Hash("completion", string(body))
	if c.config.Cache != nil {
		var cached Response
		ok, err := c.config.Cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			c.logger.Warnw("Completion cache read failed", logger.FieldError, err)
		}
		if ok {
			cached.Cached = true
			cached.Attempts = 0
			span.SetAttributes(attribute.Bool("completion.cache_hit", true))
			c.finish(ctx, span, req, wire, start, &cached, 0, nil)
			return &cached, nil
		}
	}

	var (
		resp    *Response
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt - 1)
			c.logger.Debugw("Retrying completion request",
				logger.FieldAttempt, attempt, "max_attempts", c.config.MaxAttempts, "delay", delay)
			if err := c.config.Sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		if c.config.Limiter != nil {
			if err := c.config.Limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		resp, lastErr = c.do(ctx, body)
		if lastErr == nil {
			resp.Attempts = attempt
			if attempt > 1 {
				c.logger.Infow("Completion succeeded after retries", logger.FieldAttempt, attempt, logger.FieldModel, wire.Model)
			}
			break
		}

		c.logger.Warnw("Completion API error",
			logger.FieldAttempt, attempt, "max_attempts", c.config.MaxAttempts,
			logger.FieldError, lastErr, logger.FieldModel, wire.Model)

		var se *ServiceError
		if !errors.As(lastErr, &se) || !se.Retryable() {
			break
		}
	}
	if attempt > c.config.MaxAttempts {
		attempt = c.config.MaxAttempts
	}

	if lastErr != nil {
		err := errors.Wrapf(lastErr, "completion failed after %d attempt(s)", attempt)
		c.finish(ctx, span, req, wire, start, nil, attempt, err)
		return nil, err
	}

	if c.config.Cache != nil {
		if err := c.config.Cache.SetJSON(ctx, cacheKey, resp); err != nil {
			c.logger.Warnw("Completion cache write failed", logger.FieldError, err)
		}
	}

	c.finish(ctx, span, req, wire, start, resp, attempt, nil)
	return resp, nil
}

// do performs one HTTP attempt
func (c *Client) do(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("User-Agent", userAgent)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(err, isTimeout(err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, transportError(err, isTimeout(err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseErrorBody(httpResp.StatusCode, respBody)
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &ServiceError{Class: ClassClient, StatusCode: httpResp.StatusCode, Code: "invalid_response", Message: err.Error()}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &ServiceError{Class: ClassClient, StatusCode: httpResp.StatusCode, Code: "no_choices", Message: "no response choices"}
	}

	return &Response{
		Content:     strings.TrimSpace(chatResp.Choices[0].Message.Content),
		Model:       chatResp.Model,
		TotalTokens: chatResp.Usage.TotalTokens,
	}, nil
}

func parseErrorBody(status int, body []byte) *ServiceError {
	se := &ServiceError{
		Class:      classifyStatus(status),
		StatusCode: status,
		Code:       strconv.Itoa(status),
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		se.Message = env.Error.Message
		switch code := env.Error.Code.(type) {
		case string:
			if code != "" {
				se.Code = code
			}
		case float64:
			se.Code = strconv.Itoa(int(code))
		}
		return se
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	se.Message = msg
	return se
}

// finish records usage, metrics and span status for one Complete call
func (c *Client) finish(ctx context.Context, span trace.Span, req Request, wire chatCompletionRequest, start time.Time, resp *Response, attempts int, err error) {
	elapsed := time.Since(start)
	class := ClassOf(err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Int("completion.attempts", attempts))

	cached := resp != nil && resp.Cached
	if c.config.Observer != nil {
		c.config.Observer.CompletionCall(wire.Model, class, attempts, cached, elapsed)
	}

	if c.config.Tracker == nil {
		return
	}

	temperature := wire.Temperature
	format := ""
	if wire.ResponseFormat != nil {
		format = wire.ResponseFormat.Type
	}
	responseTime := start.Add(elapsed)
	usage := &tracker.ModelUsage{
		OperationType:     req.OperationType,
		EntityType:        req.EntityType,
		EntityID:          req.EntityID,
		ModelName:         wire.Model,
		ModelProvider:     providerName(c.config.BaseURL),
		ModelConfig:       tracker.NewModelConfig(&temperature, format),
		RequestTimestamp:  start,
		ResponseTimestamp: &responseTime,
		Success:           err == nil,
		Attempts:          attempts,
		CacheHit:          cached,
	}
	if resp != nil && !cached {
		tokens := resp.TotalTokens
		usage.TokensUsed = &tokens
	}
	if err != nil {
		msg := err.Error()
		usage.ErrorMessage = &msg
		if class != "" {
			cls := string(class)
			usage.ErrorClass = &cls
		}
	}

	if trackErr := c.config.Tracker.TrackUsage(ctx, usage); trackErr != nil {
		// Always log tracking errors; the ledger is the only record of spend
		c.logger.Warnw("Failed to track usage", logger.FieldError, trackErr, logger.FieldModel, wire.Model)
	}
}

// backoff returns the wait before retry n (1-based): 2s, 4s, 8s
func backoff(retry int) time.Duration {
	return time.Duration(math.Pow(2, float64(retry))) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// providerName derives a short provider label from the base URL host
func providerName(baseURL string) string {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	if net.ParseIP(host) != nil {
		return host
	}
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
