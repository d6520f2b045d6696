// Package main runs the live polling server: WebSocket intents in, addressed
// notifications out, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Axshuman/live-polling-system/config"
	"github.com/Axshuman/live-polling-system/internal/engine"
	"github.com/Axshuman/live-polling-system/internal/middleware"
	"github.com/Axshuman/live-polling-system/internal/realtime"
	"github.com/Axshuman/live-polling-system/internal/registry"
	"github.com/Axshuman/live-polling-system/internal/scheduler"
	"github.com/Axshuman/live-polling-system/internal/sessions"
	"github.com/Axshuman/live-polling-system/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	reg := registry.New(logger)
	sched := scheduler.New(logger)
	hub := realtime.NewHub(logger)
	eng := engine.New(reg, sched, hub, logger)
	sessionHandler := sessions.NewHandler(eng)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/sessions/:id", sessionHandler.GetByID)
	router.GET("/ws", realtime.ServeWs(hub, eng, reg, cfg.Poll.DefaultTimeLimitSec, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
