package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/cookingpapa/internal/app"
	"github.com/suPer8Hu/cookingpapa/internal/config"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi"
	"github.com/suPer8Hu/cookingpapa/internal/httpapi/handlers"
	"github.com/suPer8Hu/cookingpapa/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	h := &handlers.Handler{
		Store:        a.Store,
		Assistant:    a.Assistant,
		Reservations: a.Orchestrator,
		Log:          log,
	}
	if a.Publisher != nil {
		h.Jobs = a.Publisher
	}

	gin.SetMode(gin.ReleaseMode)
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
	}, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", zap.String("addr", cfg.HTTPAddr), zap.String("db_driver", cfg.DBDriver), zap.String("ai_provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
