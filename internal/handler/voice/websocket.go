package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kaviyashree6/empathyconnect/internal/config"
	chatService "github.com/kaviyashree6/empathyconnect/internal/service/chat"
	"github.com/kaviyashree6/empathyconnect/internal/voice"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/chatclient"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler bridges a browser's speech recognizer and synthesizer to
// a voice session.
type WebSocketHandler struct {
	sessions   *chatService.Service
	cfg        config.VoiceConfig
	clientOpts []chatclient.Option
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *chatService.Service, cfg config.VoiceConfig, log *slog.Logger, clientOpts ...chatclient.Option) *WebSocketHandler {
	return &WebSocketHandler{
		sessions:   sessions,
		cfg:        cfg,
		clientOpts: clientOpts,
		log:        log.With("component", "voice-ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptMessage struct {
	Text    string `json:"text"`
	IsFinal *bool  `json:"isFinal,omitempty"`
}

type spokenMessage struct {
	ID int64 `json:"id"`
}

type configMessage struct {
	Language string `json:"language"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		language = "en"
	}

	var err error
	if sessionID == "" {
		created, cerr := h.sessions.CreateSession(r.Context(), "", language)
		sessionID, err = created.ID, cerr
	} else {
		_, err = h.sessions.EnsureSession(r.Context(), sessionID, "", language)
	}
	if err != nil {
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log := h.log.With("session", sessionID)
	log.Info("voice connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: sessionID, log: log, spoken: make(chan int64, 1)}

	var session *voice.Session
	clientOpts := append([]chatclient.Option{
		chatclient.WithLogger(log),
		chatclient.WithStateHook(func(_, to chatclient.TurnState) {
			if to == chatclient.StateRateLimited || to == chatclient.StateConnectionError {
				c.send("info", map[string]any{"type": "retrying", "reason": to})
			}
		}),
	}, h.clientOpts...)
	conv := chatclient.NewConversation(
		chatclient.New(h.cfg.ChatURL, clientOpts...),
		chatclient.WithSessionID(sessionID),
		func(req *chatapi.ChatRequest) { req.Language = session.Language() },
	)

	session = voice.NewSession(conv, c,
		voice.WithNotifier(c),
		voice.WithLanguage(language),
		voice.WithDebounce(h.cfg.Debounce),
		voice.WithSpeakTimeout(h.cfg.SpeakTimeout),
		voice.WithLogger(log),
	)
	defer session.Stop()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go c.pingLoop(ctx)

	c.send("info", map[string]any{
		"type":     "connected",
		"language": language,
		"locale":   voice.RecognitionLocale(language),
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("voice connection read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if done := h.handleMessage(ctx, c, session, &msg); done {
			log.Info("voice call ended by client")
			return
		}
	}
}

// handleMessage dispatches one client message and reports whether the call ended.
func (h *WebSocketHandler) handleMessage(ctx context.Context, c *connection, session *voice.Session, msg *inboundMessage) bool {
	switch msg.Type {
	case "start":
		if err := session.Start(ctx); err != nil {
			c.sendError(err.Error())
		}
	case "transcript":
		var t transcriptMessage
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			c.sendError("invalid transcript payload")
			return false
		}
		if t.IsFinal != nil && !*t.IsFinal {
			c.send("partial", map[string]any{"text": t.Text})
			return false
		}
		if !session.HandleTranscript(t.Text) {
			c.log.Debug("transcript ignored", "state", session.State())
		}
	case "spoken":
		var s spokenMessage
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &s)
		}
		c.ackSpoken(s.ID)
	case "config":
		var cfg configMessage
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			c.sendError("invalid config payload")
			return false
		}
		session.SetLanguage(cfg.Language)
		language := session.Language()
		c.send("info", map[string]any{
			"type":     "config",
			"language": language,
			"locale":   voice.RecognitionLocale(language),
		})
	case "end":
		session.Stop()
		return true
	default:
		c.sendError("unsupported message type: " + msg.Type)
	}
	return false
}

// connection serialises writes to the socket and doubles as the session's
// speaker and notifier.
type connection struct {
	conn      *websocket.Conn
	sessionID string
	log       *slog.Logger

	writeMu  sync.Mutex
	spoken   chan int64
	speechID atomic.Int64
}

func (c *connection) send(kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: c.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		c.log.Debug("voice write failed", "type", kind, "error", err)
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

// Speak asks the browser to read text aloud and waits for its "spoken" ack.
func (c *connection) Speak(ctx context.Context, text, language string) error {
	id := c.speechID.Add(1)
	select {
	case <-c.spoken:
	default:
	}

	c.send("speak", map[string]any{
		"id":       id,
		"text":     text,
		"language": language,
		"locale":   voice.RecognitionLocale(language),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ack := <-c.spoken:
			if ack == 0 || ack == id {
				return nil
			}
		}
	}
}

func (c *connection) StopSpeaking() {
	c.send("stop_speech", nil)
}

func (c *connection) ackSpoken(id int64) {
	select {
	case c.spoken <- id:
	default:
	}
}

func (c *connection) StateChanged(s voice.State) {
	c.send("state", map[string]any{"state": s})
}

func (c *connection) Transcript(role chatapi.Role, text string) {
	c.send("transcript", map[string]any{"role": role, "text": text})
}

func (c *connection) Failed(err error) {
	c.sendError(err.Error())
}

// pingLoop 定期发送ping消息
func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
