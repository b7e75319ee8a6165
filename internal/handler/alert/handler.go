package alert

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	model "github.com/kaviyashree6/empathyconnect/internal/model/alert"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	"github.com/kaviyashree6/empathyconnect/pkg/sse"
	"github.com/kaviyashree6/empathyconnect/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler exposes the crisis alert review queue to therapists.
type Handler struct {
	svc       *alertService.Service
	log       *slog.Logger
	heartbeat time.Duration
}

func New(svc *alertService.Service, log *slog.Logger) *Handler {
	return &Handler{
		svc:       svc,
		log:       log.With("component", "alert-api"),
		heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes 注册告警相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/stream", h.handleStream)
		r.Get("/{alertID}", h.handleGet)
		r.Post("/{alertID}/acknowledge", h.handleTransition(h.svc.Acknowledge))
		r.Post("/{alertID}/resolve", h.handleTransition(h.svc.Resolve))
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := model.Filter{Status: model.Status(strings.TrimSpace(r.URL.Query().Get("status")))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []model.CrisisAlert{}
	}
	utils.RespondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, a)
}

type transitionFunc func(ctx context.Context, id, by string) (model.CrisisAlert, error)

func (h *Handler) handleTransition(apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			By string `json:"by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		by := strings.TrimSpace(payload.By)
		if by == "" {
			utils.RespondError(w, http.StatusBadRequest, "by is required")
			return
		}

		a, err := apply(r.Context(), chi.URLParam(r, "alertID"), by)
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, http.StatusOK, a)
	}
}

// handleStream pushes alert changes to a dashboard until the client leaves.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	sse.SetHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "connected"); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	h.log.Info("alert feed subscriber connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			h.log.Info("alert feed subscriber left", "remote", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev.Alert); err != nil {
				h.log.Warn("failed to push alert event", "error", err)
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, model.ErrInvalidTransition):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidStatus):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("alert request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
