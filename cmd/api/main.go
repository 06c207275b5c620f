package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/newswatch/internal/api"
	"github.com/LJTian/newswatch/internal/app"
	"github.com/LJTian/newswatch/internal/config"
	"github.com/LJTian/newswatch/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Options{Service: "newswatch"})
		boot.Fatal().Err(err).Msg("load config failed")
	}
	root := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "newswatch"})

	a, err := app.Build(cfg, root)
	if err != nil {
		root.Fatal().Err(err).Msg("init app failed")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root.Info().
		Int("subscriptions", len(cfg.Subscriptions)).
		Int("targets", len(cfg.Targets)).
		Str("fetcher", cfg.Fetcher).
		Msg("config loaded")
	a.Scheduler.Start(ctx)

	// API
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.Component(root, "http")))
	// 配置了访问密码时启用 Basic Auth，健康检查免认证
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, api.PublicPaths...))
	}
	api.NewServer(a.Store, a.Scheduler, cfg).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		root.Info().Str("addr", srv.Addr).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			root.Error().Err(err).Msg("server exit")
			stop()
		}
	}()

	<-ctx.Done()
	root.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		root.Warn().Err(err).Msg("http shutdown")
	}
	// 等待进行中的周期或清理跑完
	a.Scheduler.Stop()
	root.Info().Msg("bye")
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
