package voice

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaviyashree6/empathyconnect/internal/config"
	chatService "github.com/kaviyashree6/empathyconnect/internal/service/chat"
	"github.com/kaviyashree6/empathyconnect/internal/voice"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
)

const chatReply = "data: {\"type\":\"emotion\",\"emotion\":{\"emotion\":\"negative\",\"intensity\":6,\"risk_level\":\"low\",\"primary_feeling\":\"sad\"}}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"I'm sorry you feel sad.\"}}]}\n\n" +
	"data: [DONE]\n\n"

type received struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type chatRecorder struct {
	mu       sync.Mutex
	requests []chatapi.ChatRequest
}

func (c *chatRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatapi.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, chatReply)
}

func setup(t *testing.T) (*websocket.Conn, *chatRecorder, *chatService.Service) {
	t.Helper()
	chat := &chatRecorder{}
	chatSrv := httptest.NewServer(chat)
	t.Cleanup(chatSrv.Close)

	sessions := chatService.NewService()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebSocketHandler(sessions, config.VoiceConfig{
		ChatURL:      chatSrv.URL,
		Debounce:     time.Millisecond,
		SpeakTimeout: 2 * time.Second,
	}, log)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws?sessionId=wxyz-1&language=hi"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, chat, sessions
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(received) bool) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(kind string) func(received) bool {
	return func(m received) bool { return m.Type == kind }
}

func stateIs(want voice.State) func(received) bool {
	return func(m received) bool {
		if m.Type != "state" {
			return false
		}
		var data struct {
			State voice.State `json:"state"`
		}
		_ = json.Unmarshal(m.Data, &data)
		return data.State == want
	}
}

func send(t *testing.T, conn *websocket.Conn, kind string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": kind, "data": json.RawMessage(raw)}))
}

type speakData struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Language string `json:"language"`
	Locale   string `json:"locale"`
}

func TestVoiceCallRoundTrip(t *testing.T) {
	conn, chat, sessions := setup(t)

	connected := readUntil(t, conn, ofType("info"))
	assert.Equal(t, "wxyz-1", connected.SessionID)
	_, err := sessions.GetSession(t.Context(), "wxyz-1")
	require.NoError(t, err, "the bridge registers the session")

	send(t, conn, "start", map[string]any{})

	var greeting speakData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, ofType("speak")).Data, &greeting))
	assert.Equal(t, voice.Greeting("hi"), greeting.Text)
	assert.Equal(t, "hi-IN", greeting.Locale)

	send(t, conn, "spoken", map[string]any{"id": greeting.ID})
	readUntil(t, conn, stateIs(voice.StateListening))

	send(t, conn, "transcript", map[string]any{"text": "I feel sad", "isFinal": true})
	readUntil(t, conn, stateIs(voice.StateThinking))

	var reply speakData
	require.NoError(t, json.Unmarshal(readUntil(t, conn, ofType("speak")).Data, &reply))
	assert.Equal(t, "I'm sorry you feel sad.", reply.Text)

	send(t, conn, "spoken", map[string]any{"id": reply.ID})
	readUntil(t, conn, stateIs(voice.StateListening))

	chat.mu.Lock()
	require.Len(t, chat.requests, 1)
	assert.Equal(t, "wxyz-1", chat.requests[0].SessionID)
	assert.Equal(t, "hi", chat.requests[0].Language)
	assert.Equal(t, "I feel sad", chat.requests[0].Message)
	chat.mu.Unlock()

	send(t, conn, "end", map[string]any{})
	readUntil(t, conn, stateIs(voice.StateIdle))
}

func TestVoiceRejectsUnknownMessages(t *testing.T) {
	conn, _, _ := setup(t)
	readUntil(t, conn, ofType("info"))

	send(t, conn, "dance", map[string]any{})
	msg := readUntil(t, conn, ofType("error"))
	assert.Contains(t, string(msg.Data), "unsupported message type")
}

func TestVoiceConfigChangesLanguage(t *testing.T) {
	conn, _, _ := setup(t)
	readUntil(t, conn, ofType("info"))

	send(t, conn, "config", map[string]any{"language": "ta"})
	msg := readUntil(t, conn, func(m received) bool {
		return m.Type == "info" && strings.Contains(string(m.Data), `"config"`)
	})
	assert.Contains(t, string(msg.Data), "ta-IN")
}
