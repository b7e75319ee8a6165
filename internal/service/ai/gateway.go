package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

const maxErrorBody = 64 * 1024

// GatewayConfig configures the OpenAI-compatible HTTP upstream.
type GatewayConfig struct {
	URL         string
	APIKey      string
	Model       string
	Temperature float64
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Gateway streams chat completions from an OpenAI-compatible endpoint.
type Gateway struct {
	cfg    GatewayConfig
	client *http.Client
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type GatewayOption func(*Gateway)

// WithHTTPClient replaces the streaming HTTP client.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) GatewayOption {
	return func(g *Gateway) { g.sleep = fn }
}

func NewGateway(cfg GatewayConfig, log *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg: cfg,
		// Streaming responses are bounded by the request context, not a client timeout.
		client: &http.Client{},
		log:    log.With("component", "gateway"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

// Open sends the completion request. 429 answers are retried with
// exponential backoff; 402 fails at once.
func (g *Gateway) Open(ctx context.Context, messages []*schema.Message) (io.ReadCloser, error) {
	body, err := json.Marshal(completionRequest{
		Model:       g.cfg.Model,
		Messages:    toWire(messages),
		Stream:      true,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := g.post(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ConnectionError{Err: err}
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.Body, nil
		}

		errBody := readErrorBody(resp)
		g.log.Warn("gateway request failed", "status", resp.StatusCode, "attempt", attempt+1, "body", truncate(errBody, 256))

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			if attempt >= g.cfg.MaxRetries {
				return nil, ErrRateLimited
			}
			delay := g.backoff(attempt)
			g.log.Info("rate limited, retrying", "delay", delay, "attempt", attempt+1, "max_retries", g.cfg.MaxRetries)
			if err := g.sleep(ctx, delay); err != nil {
				return nil, err
			}
		case http.StatusPaymentRequired:
			return nil, ErrQuotaExhausted
		default:
			return nil, &UpstreamError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, errBody)}
		}
	}
}

func (g *Gateway) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	return g.client.Do(req)
}

// backoff returns min(base * 2^attempt, max).
func (g *Gateway) backoff(attempt int) time.Duration {
	delay := g.cfg.BaseDelay << attempt
	if delay <= 0 || (g.cfg.MaxDelay > 0 && delay > g.cfg.MaxDelay) {
		return g.cfg.MaxDelay
	}
	return delay
}

func toWire(messages []*schema.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func readErrorBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return data
}

// errorMessage prefers the provider's error.message or error string.
func errorMessage(status int, body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(apiErr.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if json.Unmarshal(apiErr.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	return fmt.Sprintf("upstream request failed with status %d", status)
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n]
	}
	return s
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
