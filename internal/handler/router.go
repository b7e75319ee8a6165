package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kaviyashree6/empathyconnect/internal/config"
	alertHandler "github.com/kaviyashree6/empathyconnect/internal/handler/alert"
	"github.com/kaviyashree6/empathyconnect/internal/handler/chat"
	"github.com/kaviyashree6/empathyconnect/internal/handler/voice"
	middlewarePkg "github.com/kaviyashree6/empathyconnect/internal/middleware"
	"github.com/kaviyashree6/empathyconnect/internal/service/ai"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	chatService "github.com/kaviyashree6/empathyconnect/internal/service/chat"
	"github.com/kaviyashree6/empathyconnect/pkg/utils"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Config     config.Config
	Classifier chat.Classifier
	Alerts     *alertService.Service
	Sessions   *chatService.Service
	Upstream   ai.Upstream
	Logger     *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(svc.Logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(chat.Deps{
		Classifier:  svc.Classifier,
		Alerts:      svc.Alerts,
		Prompts:     ai.NewPromptBuilder(0),
		Upstream:    svc.Upstream,
		Sessions:    svc.Sessions,
		IdleTimeout: svc.Config.AI.StreamIdleTimeout,
		Logger:      svc.Logger,
	})
	alerts := alertHandler.New(svc.Alerts, svc.Logger)
	voiceHandler := voice.NewWebSocketHandler(svc.Sessions, svc.Config.Voice, svc.Logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		alerts.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)
	})

	return r
}
