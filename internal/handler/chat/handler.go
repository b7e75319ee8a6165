package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kaviyashree6/empathyconnect/internal/model/chat"
	"github.com/kaviyashree6/empathyconnect/internal/service/ai"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	chatService "github.com/kaviyashree6/empathyconnect/internal/service/chat"
	"github.com/kaviyashree6/empathyconnect/pkg/chatapi"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
	"github.com/kaviyashree6/empathyconnect/pkg/utils"
)

const maxRequestBytes = 1 << 20

const (
	msgRateLimited    = "Rate limit exceeded. Please try again in a moment."
	msgQuotaExhausted = "AI credits exhausted."
)

// Classifier labels a single message.
type Classifier interface {
	Classify(message string) chatapi.EmotionAnalysis
}

// AlertRecorder files crisis alerts without blocking the turn.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, in alertService.Input)
}

// Deps groups the collaborators of the chat handler.
type Deps struct {
	Classifier  Classifier
	Alerts      AlertRecorder
	Prompts     *ai.PromptBuilder
	Upstream    ai.Upstream
	Sessions    *chatService.Service
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Handler serves the streaming chat endpoint and session lookups.
type Handler struct {
	classifier  Classifier
	alerts      AlertRecorder
	prompts     *ai.PromptBuilder
	upstream    ai.Upstream
	sessions    *chatService.Service
	idleTimeout time.Duration
	log         *slog.Logger
}

func New(d Deps) *Handler {
	prompts := d.Prompts
	if prompts == nil {
		prompts = ai.NewPromptBuilder(chatapi.HistoryLimit)
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		classifier:  d.Classifier,
		alerts:      d.Alerts,
		prompts:     prompts,
		upstream:    d.Upstream,
		sessions:    d.Sessions,
		idleTimeout: d.IdleTimeout,
		log:         log.With("component", "chat"),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/messages", h.handleTranscript)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatapi.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	log := h.log.With("session", req.SessionID)
	analysis := h.classifier.Classify(req.Message)
	log.Debug("message classified", "emotion", analysis.Emotion, "risk", analysis.RiskLevel, "intensity", analysis.Intensity)

	messageID := h.recordUserMessage(r.Context(), req, analysis, log)

	h.alerts.RecordAlert(r.Context(), alertService.Input{
		SessionID:      req.SessionID,
		UserID:         req.UserID,
		MessageID:      messageID,
		RiskLevel:      analysis.RiskLevel,
		PrimaryFeeling: analysis.PrimaryFeeling,
		Message:        req.Message,
	})

	messages, err := h.prompts.Build(r.Context(), ai.Turn{
		Message:  req.Message,
		History:  req.ConversationHistory,
		Language: req.Language,
		Analysis: analysis,
	})
	if err != nil {
		log.Error("failed to build prompt", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to build prompt")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	body, err := h.upstream.Open(ctx, messages)
	if err != nil {
		h.respondUpstreamError(w, err, log)
		return
	}
	defer body.Close()

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	idle := sse.WithIdleTimeout(body, h.idleTimeout, cancel)
	defer idle.Stop()

	reply := &replyRecorder{dec: sse.NewDecoder()}
	if err := sse.Multiplex(w, flusher, analysis, io.TeeReader(idle, reply)); err != nil {
		log.Warn("chat stream ended early", "error", err)
		return
	}

	h.recordAssistantReply(r.Context(), req.SessionID, reply.String(), log)
}

func (h *Handler) respondUpstreamError(w http.ResponseWriter, err error, log *slog.Logger) {
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		log.Warn("upstream rate limited")
		utils.RespondError(w, http.StatusTooManyRequests, msgRateLimited)
	case errors.Is(err, ai.ErrQuotaExhausted):
		log.Warn("upstream quota exhausted")
		utils.RespondError(w, http.StatusPaymentRequired, msgQuotaExhausted)
	case errors.Is(err, context.Canceled):
		log.Info("client went away before upstream answered")
	default:
		log.Error("upstream request failed", "error", err)
		msg := err.Error()
		var upErr *ai.UpstreamError
		if errors.As(err, &upErr) && upErr.Message != "" {
			msg = upErr.Message
		}
		utils.RespondError(w, http.StatusInternalServerError, msg)
	}
}

// recordUserMessage stores the user side of the turn and returns its id, or
// "" when the turn is anonymous or storage failed.
func (h *Handler) recordUserMessage(ctx context.Context, req chatapi.ChatRequest, analysis chatapi.EmotionAnalysis, log *slog.Logger) string {
	if h.sessions == nil || strings.TrimSpace(req.SessionID) == "" {
		return ""
	}
	if _, err := h.sessions.EnsureSession(ctx, req.SessionID, req.UserID, req.Language); err != nil {
		log.Warn("failed to register session", "error", err)
		return ""
	}
	saved, err := h.sessions.SaveMessage(ctx, chat.Message{
		SessionID: req.SessionID,
		Role:      chatapi.RoleUser,
		Content:   req.Message,
		Emotion:   &analysis,
	})
	if err != nil {
		log.Warn("failed to save user message", "error", err)
		return ""
	}
	return saved.ID
}

func (h *Handler) recordAssistantReply(ctx context.Context, sessionID, reply string, log *slog.Logger) {
	if h.sessions == nil || sessionID == "" || reply == "" {
		return
	}
	if _, err := h.sessions.SaveMessage(context.WithoutCancel(ctx), chat.Message{
		SessionID: sessionID,
		Role:      chatapi.RoleAssistant,
		Content:   reply,
	}); err != nil {
		log.Warn("failed to save assistant reply", "error", err)
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID   string `json:"userId"`
		Language string `json:"language"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	session, err := h.sessions.CreateSession(r.Context(), payload.UserID, payload.Language)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	messages, err := h.sessions.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}

// replyRecorder decodes the forwarded upstream bytes to rebuild the reply.
type replyRecorder struct {
	dec  *sse.Decoder
	text strings.Builder
}

func (rr *replyRecorder) Write(p []byte) (int, error) {
	for _, ev := range rr.dec.Feed(p) {
		if ev.Type == sse.EventDelta {
			rr.text.WriteString(ev.Text)
		}
	}
	return len(p), nil
}

func (rr *replyRecorder) String() string {
	for _, ev := range rr.dec.Flush() {
		if ev.Type == sse.EventDelta {
			rr.text.WriteString(ev.Text)
		}
	}
	return rr.text.String()
}
