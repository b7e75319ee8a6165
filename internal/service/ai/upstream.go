package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/kaviyashree6/empathyconnect/internal/config"
)

var (
	// ErrRateLimited is returned once 429 retries are exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrQuotaExhausted is returned on 402; it is never retried.
	ErrQuotaExhausted = errors.New("ai credits exhausted")
)

// UpstreamError is a non-2xx answer other than 429 or 402.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, e.Message)
}

// ConnectionError wraps a transport failure where no response arrived.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "upstream connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Upstream opens a streaming completion and returns the provider's raw
// event-stream body. The caller closes it.
type Upstream interface {
	Open(ctx context.Context, messages []*schema.Message) (io.ReadCloser, error)
}

// ErrNotConfigured is served on every turn when no upstream credentials exist.
var ErrNotConfigured = errors.New("AI gateway API key is not configured")

// NewUpstream builds the upstream selected by cfg.Provider.
func NewUpstream(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Upstream, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case config.ProviderArk:
		m, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create ark chat model: %w", err)
		}
		u, err := NewModelUpstream(ctx, m, log)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return NewGateway(GatewayConfig{
			URL:         cfg.GatewayURL,
			APIKey:      cfg.GatewayAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		}, log), nil
	}
}

type unavailable struct{ err error }

// Unavailable returns an upstream that fails every turn with err.
func Unavailable(err error) Upstream {
	return unavailable{err: err}
}

func (u unavailable) Open(context.Context, []*schema.Message) (io.ReadCloser, error) {
	return nil, u.err
}
