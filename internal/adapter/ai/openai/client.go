// Package openai implements domain.AIClient against any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

const bodySnippetLimit = 512

// Client calls /chat/completions with JSON response format, retrying
// transient failures with exponential backoff behind a circuit breaker.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	breaker *observability.CircuitBreaker
}

var _ domain.AIClient = (*Client)(nil)

// New constructs a client with an otelhttp-instrumented transport.
func New(cfg config.Config) *Client {
	timeout := 60 * time.Second
	if cfg.IsDev() {
		timeout = 120 * time.Second
	}
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: observability.NewCircuitBreaker("ai_chat", 5, 30*time.Second),
	}
}

// WithHTTPClient replaces the HTTP client; tests point it at httptest servers.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatJSON returns the first choice's content. 4xx responses other than 429
// are not retried.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	lg := obsctx.Logger(ctx)
	if c.cfg.AIAPIKey == "" {
		lg.Error("AI API key missing", slog.String("provider", "openai"))
		return "", fmt.Errorf("op=openai.ChatJSON: %w: AI_API_KEY missing", domain.ErrInvalidArgument)
	}

	body := map[string]any{
		"model":           c.cfg.AIChatModel,
		"temperature":     0.2,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=openai.ChatJSON: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.AIBaseURL, "/") + "/chat/completions"

	var out chatResponse
	op := func() error {
		start := time.Now()
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
			r.Header.Set("X-Request-Id", rid)
		}
		resp, err := c.hc.Do(r)
		if err != nil {
			observability.ObserveAIRequest("chat_json", time.Since(start), err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(resp.Body)
		observability.ObserveAIRequest("chat_json", time.Since(start), statusErr(resp.StatusCode, err))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lg.Warn("ai provider rate limited", slog.Int("status", resp.StatusCode), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			lg.Warn("ai provider 4xx", slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.AIChatModel), slog.String("body", snippet(bodyBytes)))
			return backoff.Permanent(fmt.Errorf("%w: chat status %d", domain.ErrInvalidArgument, resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			lg.Error("ai provider non-2xx", slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.AIChatModel), slog.String("body", snippet(bodyBytes)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			lg.Error("ai provider decode error", slog.Any("error", err))
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err))
		}
		return nil
	}

	err = c.breaker.Call(func() error {
		return backoff.Retry(op, backoff.WithContext(c.backoffConfig(), ctx))
	}, func(err error) bool {
		return errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, context.Canceled)
	})
	if err != nil {
		lg.Error("AI chat failed", slog.Any("error", err))
		return "", fmt.Errorf("op=openai.ChatJSON: %w", classify(err))
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("op=openai.ChatJSON: %w: empty choices", domain.ErrSchemaInvalid)
	}
	if out.Model != "" && out.Model != c.cfg.AIChatModel {
		lg.Debug("model substitution", slog.String("requested_model", c.cfg.AIChatModel), slog.String("actual_model", out.Model))
	}
	return out.Choices[0].Message.Content, nil
}

// classify maps transport failures onto the domain taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, observability.ErrCircuitOpen):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	default:
		return err
	}
}

func statusErr(code int, readErr error) error {
	if readErr != nil {
		return readErr
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("status %d", code)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > bodySnippetLimit {
		b = b[:bodySnippetLimit]
	}
	return string(b)
}
