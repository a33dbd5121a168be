package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskify/internal/config"
	"taskify/internal/db"
	httpServer "taskify/internal/http"
	"taskify/internal/http/middleware"
	"taskify/internal/logger"
	"taskify/internal/repository"
	"taskify/internal/service"

	"github.com/gin-gonic/gin"
)

var Version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret, cfg.JWTTTL)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	var store repository.Store
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		dbPool := db.MustConnect(cfg.DatabaseURL, cfg.DBMaxConns)
		defer dbPool.Close()
		store = repository.NewPostgresStore(dbPool)
	}

	if middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB) {
		logger.Info("redis rate limiter enabled", "addr", cfg.RedisAddr)
		defer middleware.CloseRedis()
	}

	r := httpServer.NewRouter(store, cfg, Version)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", Version, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
