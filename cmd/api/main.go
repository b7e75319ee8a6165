package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kaviyashree6/empathyconnect/internal/analysis/emotion"
	"github.com/kaviyashree6/empathyconnect/internal/config"
	"github.com/kaviyashree6/empathyconnect/internal/database"
	"github.com/kaviyashree6/empathyconnect/internal/handler"
	"github.com/kaviyashree6/empathyconnect/internal/model/alert"
	"github.com/kaviyashree6/empathyconnect/internal/service/ai"
	alertService "github.com/kaviyashree6/empathyconnect/internal/service/alert"
	"github.com/kaviyashree6/empathyconnect/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, closeLog := config.SetupLogger(cfg.Log.File, cfg.Log.Level)
	defer closeLog()
	slog.SetDefault(log)

	if envErr != nil {
		log.Debug("no .env file loaded, using process environment", "error", envErr)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	classifier, err := newClassifier(cfg.Classifier, log)
	if err != nil {
		return err
	}

	store, err := newAlertStore(ctx, cfg.Alert, log)
	if err != nil {
		return err
	}

	alerts := alertService.NewService(store, alertService.NewFeed(32), log,
		alertService.WithWriteTimeout(cfg.Alert.WriteTimeout))
	defer alerts.Wait()

	upstream, err := ai.NewUpstream(ctx, cfg.AI, log)
	if err != nil {
		log.Warn("AI upstream unavailable, chat turns will fail", "provider", cfg.AI.Provider, "error", err)
		upstream = ai.Unavailable(err)
	} else {
		log.Info("AI upstream ready", "provider", cfg.AI.Provider, "model", cfg.AI.Model)
	}

	router := handler.NewRouter(handler.Services{
		Config:     *cfg,
		Classifier: classifier,
		Alerts:     alerts,
		Sessions:   chat.NewService(),
		Upstream:   upstream,
		Logger:     log,
	})

	return startServer(ctx, cfg.Server, router, log)
}

func newClassifier(cfg config.ClassifierConfig, log *slog.Logger) (*emotion.Classifier, error) {
	classifier := emotion.Default()
	source := "built-in"
	if cfg.RulesFile != "" {
		rules, err := emotion.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load classifier rules: %w", err)
		}
		classifier = emotion.NewClassifier(rules)
		source = cfg.RulesFile
	}

	rules := classifier.Rules()
	names := make([]string, 0, len(rules))
	for _, r := range rules {
		names = append(names, r.Name)
	}
	log.Info("classifier rules loaded", "source", source, "rules", names)
	return classifier, nil
}

func newAlertStore(ctx context.Context, cfg config.AlertConfig, log *slog.Logger) (alert.Store, error) {
	if cfg.Store == config.AlertStoreMemory {
		log.Warn("crisis alerts are kept in memory and will not survive a restart")
		return alert.NewMemoryStore(), nil
	}

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	store := alert.NewGormStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate alert store: %w", err)
	}
	log.Info("alert store ready", "driver", cfg.Store)
	return store, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("EmpathyConnect backend listening", "addr", serverCfg.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
