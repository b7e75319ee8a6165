// Package chatclient consumes the streaming chat endpoint: it retries
// transient failures, decodes the event stream and tracks turn state.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 5 * time.Second
)

// Client talks to POST /api/chat.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	maxRetries  int
	baseDelay   time.Duration
	idleTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	hook        StateHook
	log         *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets how many times a rate limited or unreachable request is
// retried and the linear delay step between attempts.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithSleep replaces the retry wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithIdleTimeout aborts a stream that stays silent for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

func WithStateHook(hook StateHook) Option {
	return func(c *Client) { c.hook = hook }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		sleep:      sleepContext,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "chatclient")
	return c
}

// Stream sends one turn and yields its events. The sequence always ends with
// a done or error event unless the caller stops early.
func (c *Client) Stream(ctx context.Context, req chatapi.ChatRequest) iter.Seq[sse.Event] {
	return func(yield func(sse.Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		t := newTurn(c.hook, c.log)
		fail := func(err error) {
			t.to(StateError)
			yield(sse.Event{Type: sse.EventError, Err: err})
		}

		if strings.TrimSpace(req.Message) == "" {
			fail(ErrEmptyMessage)
			return
		}

		body, err := c.open(ctx, req, t)
		if err != nil {
			fail(err)
			return
		}
		defer body.Close()
		t.to(StateStreaming)

		var reader io.Reader = body
		if c.idleTimeout > 0 {
			idle := sse.WithIdleTimeout(body, c.idleTimeout, cancel)
			defer idle.Stop()
			reader = idle
		}

		for ev := range sse.Consume(reader) {
			switch ev.Type {
			case sse.EventDone:
				t.to(StateDone)
			case sse.EventError:
				t.to(StateError)
				ev.Err = &ConnectionError{Err: ev.Err}
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// open posts the request, retrying 429s and transport failures with a linear
// backoff. The returned body is positioned at the start of the event stream.
func (c *Client) open(ctx context.Context, req chatapi.ChatRequest, t *turn) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		t.to(StateSending)

		resp, err := c.post(ctx, payload)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &ConnectionError{Err: err}
			t.to(StateConnectionError)
		case resp.StatusCode == http.StatusTooManyRequests:
			drain(resp.Body)
			lastErr = ErrRateLimited
			t.to(StateRateLimited)
		case resp.StatusCode == http.StatusPaymentRequired:
			drain(resp.Body)
			return nil, ErrQuotaExhausted
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			defer resp.Body.Close()
			return nil, &RequestError{Status: resp.StatusCode, Message: errorMessage(resp)}
		default:
			return resp.Body, nil
		}

		if attempt >= c.maxRetries {
			return nil, lastErr
		}
		delay := c.baseDelay * time.Duration(attempt+1)
		c.log.Warn("chat request failed, retrying", "error", lastErr, "attempt", attempt+1, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	return c.httpClient.Do(httpReq)
}

func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body chatapi.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("chat request failed with status %d", resp.StatusCode)
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Callbacks receive the events of a turn sent with SendTurn.
type Callbacks struct {
	OnEmotion func(chatapi.EmotionAnalysis)
	OnDelta   func(string)
	OnDone    func()
	OnError   func(error)
}

// TurnOption decorates the request of a turn.
type TurnOption func(*chatapi.ChatRequest)

func WithSessionID(id string) TurnOption {
	return func(r *chatapi.ChatRequest) { r.SessionID = id }
}

func WithUserID(id string) TurnOption {
	return func(r *chatapi.ChatRequest) { r.UserID = id }
}

func WithLanguage(code string) TurnOption {
	return func(r *chatapi.ChatRequest) { r.Language = code }
}

// SendTurn streams a turn to the callbacks. Every failure, including
// cancellation, is reported through OnError.
func (c *Client) SendTurn(ctx context.Context, text string, history []chatapi.ChatMessage, cb Callbacks, opts ...TurnOption) {
	req := chatapi.ChatRequest{
		Message:             text,
		ConversationHistory: chatapi.TrimHistory(history, chatapi.HistoryLimit),
	}
	for _, opt := range opts {
		opt(&req)
	}

	for ev := range c.Stream(ctx, req) {
		switch ev.Type {
		case sse.EventEmotion:
			if cb.OnEmotion != nil {
				cb.OnEmotion(ev.Emotion)
			}
		case sse.EventDelta:
			if cb.OnDelta != nil {
				cb.OnDelta(ev.Text)
			}
		case sse.EventDone:
			if cb.OnDone != nil {
				cb.OnDone()
			}
		case sse.EventError:
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		}
	}
}

// IsRetryable reports whether a later attempt of the same turn may succeed.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	return errors.Is(err, ErrRateLimited) || errors.As(err, &connErr)
}
