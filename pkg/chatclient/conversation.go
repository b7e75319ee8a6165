package chatclient

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
)

// Conversation keeps the running history of one chat and allows a single
// turn in flight at a time.
type Conversation struct {
	client *Client
	opts   []TurnOption

	mu      sync.Mutex
	history []chatapi.ChatMessage
	busy    bool
}

func NewConversation(client *Client, opts ...TurnOption) *Conversation {
	return &Conversation{client: client, opts: opts}
}

// Send runs one turn. onEvent, when set, sees every event as it arrives. The
// returned string is the full assistant reply.
func (cv *Conversation) Send(ctx context.Context, text string, onEvent func(sse.Event)) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	cv.mu.Lock()
	if cv.busy {
		cv.mu.Unlock()
		return "", ErrTurnInProgress
	}
	cv.busy = true
	prior := append([]chatapi.ChatMessage(nil), cv.history...)
	cv.history = append(cv.history, chatapi.ChatMessage{Role: chatapi.RoleUser, Content: text})
	cv.mu.Unlock()

	defer func() {
		cv.mu.Lock()
		cv.busy = false
		cv.mu.Unlock()
	}()

	req := chatapi.ChatRequest{
		Message:             text,
		ConversationHistory: chatapi.TrimHistory(prior, chatapi.HistoryLimit),
	}
	for _, opt := range cv.opts {
		opt(&req)
	}

	var reply strings.Builder
	for ev := range cv.client.Stream(ctx, req) {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case sse.EventDelta:
			reply.WriteString(ev.Text)
		case sse.EventError:
			return "", ev.Err
		case sse.EventDone:
			if reply.Len() > 0 {
				cv.mu.Lock()
				cv.history = append(cv.history, chatapi.ChatMessage{Role: chatapi.RoleAssistant, Content: reply.String()})
				cv.mu.Unlock()
			}
			return reply.String(), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", &ConnectionError{Err: io.ErrUnexpectedEOF}
}

// History returns a copy of the messages exchanged so far.
func (cv *Conversation) History() []chatapi.ChatMessage {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return append([]chatapi.ChatMessage(nil), cv.history...)
}

// Busy reports whether a turn is streaming.
func (cv *Conversation) Busy() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.busy
}
